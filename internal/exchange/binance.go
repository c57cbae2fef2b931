// Package exchange
package exchange

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mfmahdi/dcabot/internal/market"
	"github.com/mfmahdi/dcabot/internal/order"
)

type BinanceExchange struct {
	client *binance.Client
	log    *zap.SugaredLogger
}

// NewBinanceExchange connects to Binance spot. Sandbox mode targets the spot
// testnet instead of production.
func NewBinanceExchange(apiKey, secretKey string, sandbox bool, log *zap.SugaredLogger) *BinanceExchange {
	binance.UseTestnet = sandbox
	return &BinanceExchange{
		client: binance.NewClient(apiKey, secretKey),
		log:    log,
	}
}

func (b *BinanceExchange) Name() string {
	return "binance"
}

func (b *BinanceExchange) ResolveMarket(ctx context.Context, symbol string) (market.Spec, error) {
	info, err := b.client.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil {
		return market.Spec{}, fmt.Errorf("fetching exchange info for %s: %w", symbol, err)
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}

		priceFilter := s.PriceFilter()
		lotFilter := s.LotSizeFilter()
		if priceFilter == nil || lotFilter == nil {
			return market.Spec{}, fmt.Errorf("market %s: missing price or lot size filter", symbol)
		}

		quoteInc, err := decimal.NewFromString(priceFilter.TickSize)
		if err != nil {
			return market.Spec{}, fmt.Errorf("market %s: parsing tick size %q: %w", symbol, priceFilter.TickSize, err)
		}
		baseInc, err := decimal.NewFromString(lotFilter.StepSize)
		if err != nil {
			return market.Spec{}, fmt.Errorf("market %s: parsing step size %q: %w", symbol, lotFilter.StepSize, err)
		}
		minQty, err := decimal.NewFromString(lotFilter.MinQuantity)
		if err != nil {
			return market.Spec{}, fmt.Errorf("market %s: parsing min quantity %q: %w", symbol, lotFilter.MinQuantity, err)
		}

		spec := market.Spec{
			Symbol:         s.Symbol,
			BaseCurrency:   s.BaseAsset,
			QuoteCurrency:  s.QuoteAsset,
			BaseIncrement:  baseInc,
			QuoteIncrement: quoteInc,
			MinOrderSize:   minQty,
		}
		if err := spec.Validate(); err != nil {
			return market.Spec{}, err
		}
		return spec, nil
	}

	return market.Spec{}, fmt.Errorf("market %s not found on %s", symbol, b.Name())
}

func (b *BinanceExchange) FetchOrderBook(ctx context.Context, symbol string) (market.Book, error) {
	res, err := b.client.NewDepthService().Symbol(symbol).Limit(5).Do(ctx)
	if err != nil {
		return market.Book{}, fmt.Errorf("fetching order book for %s: %w", symbol, err)
	}
	if len(res.Bids) == 0 || len(res.Asks) == 0 {
		return market.Book{}, fmt.Errorf("order book for %s has no bids or asks", symbol)
	}

	bid, err := decimal.NewFromString(res.Bids[0].Price)
	if err != nil {
		return market.Book{}, fmt.Errorf("parsing best bid %q: %w", res.Bids[0].Price, err)
	}
	ask, err := decimal.NewFromString(res.Asks[0].Price)
	if err != nil {
		return market.Book{}, fmt.Errorf("parsing best ask %q: %w", res.Asks[0].Price, err)
	}

	return market.Book{Symbol: symbol, Bid: bid, Ask: ask}, nil
}

func (b *BinanceExchange) SubmitOrder(ctx context.Context, req SubmitRequest) (order.State, error) {
	res, err := b.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(binance.SideType(req.Side)).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(req.Quantity.String()).
		Price(req.Price.String()).
		NewClientOrderID(uuid.NewString()).
		Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) {
			return order.State{}, &RejectionError{Code: apiErr.Code, Reason: apiErr.Message}
		}
		return order.State{}, fmt.Errorf("submitting %s %s order: %w", req.Symbol, req.Side, err)
	}

	b.log.Infof("Exchange | %s order accepted: id=%d status=%s", b.Name(), res.OrderID, res.Status)

	state := order.State{
		OrderID:        strconv.FormatInt(res.OrderID, 10),
		Symbol:         res.Symbol,
		Side:           req.Side,
		Price:          req.Price,
		OriginalAmount: req.Quantity,
		IsCancelled:    closedWithoutFill(res.Status),
		CreatedAt:      time.UnixMilli(res.TransactTime).UTC(),
	}
	if executed, err := decimal.NewFromString(res.ExecutedQuantity); err == nil {
		state.ExecutedAmount = executed
	}
	state.RemainingAmount = state.OriginalAmount.Sub(state.ExecutedAmount)

	for _, f := range res.Fills {
		fill, err := fillFromBinance(f.Quantity, f.Price, f.Commission, f.CommissionAsset)
		if err != nil {
			b.log.Warnf("Exchange | %s dropping malformed fill on order %d: %v", b.Name(), res.OrderID, err)
			continue
		}
		state.Fills = append(state.Fills, fill)
	}

	return state, nil
}

func (b *BinanceExchange) GetOrderStatus(ctx context.Context, symbol, orderID string, withFills bool) (order.State, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return order.State{}, fmt.Errorf("parsing order id %q: %w", orderID, err)
	}

	res, err := b.client.NewGetOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err != nil {
		return order.State{}, fmt.Errorf("fetching status of order %s: %w", orderID, err)
	}

	state, err := stateFromBinanceOrder(res)
	if err != nil {
		return order.State{}, err
	}

	if withFills {
		trades, err := b.client.NewListTradesService().Symbol(symbol).OrderId(id).Do(ctx)
		if err != nil {
			return order.State{}, fmt.Errorf("fetching fills of order %s: %w", orderID, err)
		}
		for _, t := range trades {
			if t.OrderID != id {
				continue
			}
			fill, err := fillFromBinance(t.Quantity, t.Price, t.Commission, t.CommissionAsset)
			if err != nil {
				b.log.Warnf("Exchange | %s dropping malformed trade %d on order %s: %v", b.Name(), t.ID, orderID, err)
				continue
			}
			state.Fills = append(state.Fills, fill)
		}
	}

	return state, nil
}

func (b *BinanceExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("parsing order id %q: %w", orderID, err)
	}
	if _, err := b.client.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx); err != nil {
		return fmt.Errorf("cancelling order %s: %w", orderID, err)
	}
	return nil
}

// stateFromBinanceOrder maps an exchange order onto the local model. The
// remaining amount is derived from original minus executed, both exact.
func stateFromBinanceOrder(o *binance.Order) (order.State, error) {
	orig, err := decimal.NewFromString(o.OrigQuantity)
	if err != nil {
		return order.State{}, fmt.Errorf("parsing original quantity %q: %w", o.OrigQuantity, err)
	}
	executed, err := decimal.NewFromString(o.ExecutedQuantity)
	if err != nil {
		return order.State{}, fmt.Errorf("parsing executed quantity %q: %w", o.ExecutedQuantity, err)
	}
	price, err := decimal.NewFromString(o.Price)
	if err != nil {
		return order.State{}, fmt.Errorf("parsing price %q: %w", o.Price, err)
	}

	return order.State{
		OrderID:         strconv.FormatInt(o.OrderID, 10),
		Symbol:          o.Symbol,
		Side:            order.Side(o.Side),
		Price:           price,
		OriginalAmount:  orig,
		ExecutedAmount:  executed,
		RemainingAmount: orig.Sub(executed),
		IsCancelled:     closedWithoutFill(o.Status),
		CreatedAt:       time.UnixMilli(o.Time).UTC(),
	}, nil
}

// closedWithoutFill groups the statuses where the exchange stopped working
// the order: cancelled in the UI, expired, or rejected after acceptance.
func closedWithoutFill(status binance.OrderStatusType) bool {
	switch status {
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypeExpired, binance.OrderStatusTypeRejected:
		return true
	default:
		return false
	}
}

func fillFromBinance(qty, price, commission, commissionAsset string) (order.Fill, error) {
	q, err := decimal.NewFromString(qty)
	if err != nil {
		return order.Fill{}, fmt.Errorf("parsing fill quantity %q: %w", qty, err)
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return order.Fill{}, fmt.Errorf("parsing fill price %q: %w", price, err)
	}
	fee, err := decimal.NewFromString(commission)
	if err != nil {
		return order.Fill{}, fmt.Errorf("parsing fill commission %q: %w", commission, err)
	}
	return order.Fill{
		Quantity:    q,
		Price:       p,
		FeeAmount:   fee,
		FeeCurrency: commissionAsset,
	}, nil
}
