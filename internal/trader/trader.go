// Package trader
package trader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mfmahdi/dcabot/internal/exchange"
	"github.com/mfmahdi/dcabot/internal/journal"
	"github.com/mfmahdi/dcabot/internal/market"
	"github.com/mfmahdi/dcabot/internal/notifier"
	"github.com/mfmahdi/dcabot/internal/order"
	"github.com/mfmahdi/dcabot/internal/pricing"
	"github.com/mfmahdi/dcabot/internal/utils"
)

// Outcome is the terminal result of a run.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeFilled
	OutcomeRejected
	OutcomeTimedOut
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFilled:
		return "FILLED"
	case OutcomeRejected:
		return "REJECTED"
	case OutcomeTimedOut:
		return "TIMED_OUT"
	case OutcomeCancelled:
		return "CANCELLED"
	default:
		return "NONE"
	}
}

// Config holds the per-run knobs.
type Config struct {
	PollInterval time.Duration // delay between status checks
	WarnAfter    time.Duration // wait budget before giving up on the order
}

// Result summarizes a finished run.
type Result struct {
	Outcome     Outcome
	Order       order.State
	TotalFee    decimal.Decimal
	FeeCurrency string
}

// Trader places a single limit order and watches it to a terminal state.
// One Trader runs one order; there is no retry and no second submission.
type Trader struct {
	cfg      Config
	ex       exchange.Exchange
	notifier notifier.Notifier
	clock    utils.Clock
	log      *zap.SugaredLogger
}

func New(cfg Config, ex exchange.Exchange, n notifier.Notifier, clock utils.Clock, log *zap.SugaredLogger) *Trader {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.WarnAfter <= 0 {
		cfg.WarnAfter = 5 * time.Minute
	}
	if n == nil {
		n = notifier.Nop{}
	}
	if clock == nil {
		clock = utils.RealClock{}
	}
	return &Trader{cfg: cfg, ex: ex, notifier: n, clock: clock, log: log}
}

// Run executes one request end to end: resolve the market, price the order
// off the current book, submit it, then poll until it fills, is cancelled,
// or the wait budget runs out.
func (t *Trader) Run(ctx context.Context, req order.Request) (Result, error) {
	spec, err := t.ex.ResolveMarket(ctx, req.Symbol)
	if err != nil {
		return Result{}, fmt.Errorf("resolving market %s: %w", req.Symbol, err)
	}
	t.log.Infof("Trader | %s: base=%s quote=%s base_increment=%s quote_increment=%s min_order_size=%s",
		spec.Symbol, spec.BaseCurrency, spec.QuoteCurrency, spec.BaseIncrement, spec.QuoteIncrement, spec.MinOrderSize)

	if err := req.Validate(spec); err != nil {
		return Result{}, err
	}

	book, err := t.ex.FetchOrderBook(ctx, req.Symbol)
	if err != nil {
		return Result{}, fmt.Errorf("fetching order book for %s: %w", req.Symbol, err)
	}

	price := pricing.MakerPrice(book, spec, req.Side)
	t.log.Infof("Trader | %s: bid=%s ask=%s midmarket price=%s %s",
		spec.Symbol, book.Bid, book.Ask, price, spec.QuoteCurrency)

	quantity, err := req.BaseQuantity(spec, price)
	if err != nil {
		return Result{}, err
	}

	state, err := t.submit(ctx, req, spec, price, quantity)
	if err != nil {
		var rejection *exchange.RejectionError
		if errors.As(err, &rejection) {
			return Result{Outcome: OutcomeRejected}, err
		}
		return Result{}, err
	}

	return t.monitor(ctx, req, spec, state)
}

// submit places the order. Placement is attempted exactly once: a limit
// order submission is not idempotent, so a failure here is fatal to the run.
func (t *Trader) submit(ctx context.Context, req order.Request, spec market.Spec, price, quantity decimal.Decimal) (order.State, error) {
	state, err := t.ex.SubmitOrder(ctx, exchange.SubmitRequest{
		Symbol:   req.Symbol,
		Side:     req.Side,
		Quantity: quantity,
		Price:    price,
	})
	if err != nil {
		var rejection *exchange.RejectionError
		if errors.As(err, &rejection) {
			t.log.Errorf("Trader | Unable to place %s %s: %s", spec.BaseCurrency, req.Side, rejection.Reason)
			t.notify(
				fmt.Sprintf("ERROR placing %s %s order: %s", spec.BaseCurrency, req.Side, rejection.Reason),
				journal.New("error", "order_rejected", map[string]any{
					"market": req.Symbol,
					"side":   req.Side,
					"code":   rejection.Code,
					"reason": rejection.Reason,
				}),
			)
		}
		return order.State{}, err
	}

	t.log.Infof("Trader | Order placed: id=%s price=%s %s amount=%s %s",
		state.OrderID, state.Price, spec.QuoteCurrency, state.OriginalAmount, spec.BaseCurrency)
	return state, nil
}

// monitor polls the order on a fixed cadence until one of three terminal
// outcomes: filled, cancelled on the exchange, or wait budget exhausted.
// A timeout only stops the run from watching; the order may still be live.
func (t *Trader) monitor(ctx context.Context, req order.Request, spec market.Spec, state order.State) (Result, error) {
	var waited time.Duration

	for state.RemainingAmount.Sign() > 0 {
		if waited > t.cfg.WarnAfter {
			subject := fmt.Sprintf("%s %s order of %s %s OPEN/UNFILLED",
				req.Symbol, req.Side, req.Amount, req.AmountCurrency)
			t.log.Warnf("Trader | %s", subject)
			t.notify(subject, journal.New("warning", "order_unfilled", orderData(state)))
			return Result{Outcome: OutcomeTimedOut, Order: state}, nil
		}

		if state.IsCancelled {
			// Most likely cancelled manually on the exchange.
			subject := fmt.Sprintf("%s %s order of %s %s CANCELLED",
				req.Symbol, req.Side, req.Amount, req.AmountCurrency)
			t.log.Warnf("Trader | %s", subject)
			t.notify(subject, journal.New("order", "order_cancelled", orderData(state)))
			return Result{Outcome: OutcomeCancelled, Order: state}, nil
		}

		t.log.Infof("Trader | Order %s still pending, sleeping for %s (total %s)",
			state.OrderID, t.cfg.PollInterval, waited)
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-t.clock.After(t.cfg.PollInterval):
		}
		waited += t.cfg.PollInterval

		refreshed, err := t.ex.GetOrderStatus(ctx, req.Symbol, state.OrderID, true)
		if err != nil {
			return Result{}, fmt.Errorf("fetching status of order %s: %w", state.OrderID, err)
		}
		state = refreshed
	}

	totalFee, feeCurrency := state.TotalFees()
	if state.MixedFeeCurrencies() {
		t.log.Warnf("Trader | Order %s settled fees in more than one currency, totals reported in %s only",
			state.OrderID, feeCurrency)
	}

	subject := fmt.Sprintf("%s %s order of %s %s complete @ %s %s",
		req.Symbol, req.Side, req.Amount, req.AmountCurrency, state.Price, spec.QuoteCurrency)
	t.log.Infof("Trader | %s, total fee %s %s", subject, totalFee, feeCurrency)

	data := orderData(state)
	data["total_fee"] = totalFee.String()
	data["fee_currency"] = feeCurrency
	t.notify(subject, journal.New("order", "order_filled", data))

	return Result{
		Outcome:     OutcomeFilled,
		Order:       state,
		TotalFee:    totalFee,
		FeeCurrency: feeCurrency,
	}, nil
}

// notify is fire and forget: a failed notification is logged, never fatal.
func (t *Trader) notify(subject string, event journal.Event) {
	if err := t.notifier.Send(subject, event); err != nil {
		t.log.Warnf("Trader | %s notification failed: %v", t.notifier.Name(), err)
	}
}

func orderData(state order.State) map[string]any {
	return map[string]any{
		"order_id":         state.OrderID,
		"market":           state.Symbol,
		"side":             state.Side,
		"price":            state.Price.String(),
		"original_amount":  state.OriginalAmount.String(),
		"executed_amount":  state.ExecutedAmount.String(),
		"remaining_amount": state.RemainingAmount.String(),
		"is_cancelled":     state.IsCancelled,
	}
}
