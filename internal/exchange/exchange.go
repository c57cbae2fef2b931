// Package exchange
package exchange

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mfmahdi/dcabot/internal/market"
	"github.com/mfmahdi/dcabot/internal/order"
)

// Exchange is the interface for all supported exchanges.
type Exchange interface {
	Name() string
	ResolveMarket(ctx context.Context, symbol string) (market.Spec, error)
	FetchOrderBook(ctx context.Context, symbol string) (market.Book, error)
	SubmitOrder(ctx context.Context, req SubmitRequest) (order.State, error)
	GetOrderStatus(ctx context.Context, symbol, orderID string, withFills bool) (order.State, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
}

// SubmitRequest is a priced, sized limit order ready for the wire.
type SubmitRequest struct {
	Symbol   string
	Side     order.Side
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

// RejectionError is a structured refusal from the exchange. Placement is
// never retried after one of these.
type RejectionError struct {
	Code   int64
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("order rejected by exchange (code %d): %s", e.Code, e.Reason)
}
