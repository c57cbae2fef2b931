// Package order
package order

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mfmahdi/dcabot/internal/market"
)

// ErrInvalidRequest marks a request that can never be submitted.
var ErrInvalidRequest = errors.New("invalid order request")

// Side of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// ParseSide accepts "buy"/"sell" in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(s) {
	case string(Buy):
		return Buy, nil
	case string(Sell):
		return Sell, nil
	default:
		return "", fmt.Errorf("%w: side must be BUY or SELL, got %q", ErrInvalidRequest, s)
	}
}

// Request is what the operator asked for on the command line. The amount is
// denominated in AmountCurrency, which must be one side of the market.
type Request struct {
	Symbol         string
	Side           Side
	Amount         decimal.Decimal
	AmountCurrency string
}

// NewRequest parses the raw CLI arguments into a Request.
func NewRequest(symbol, side, amount, amountCurrency string) (Request, error) {
	s, err := ParseSide(side)
	if err != nil {
		return Request{}, err
	}
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return Request{}, fmt.Errorf("%w: parsing amount %q: %v", ErrInvalidRequest, amount, err)
	}
	if amt.Sign() <= 0 {
		return Request{}, fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidRequest, amt)
	}
	return Request{
		Symbol:         strings.ToUpper(symbol),
		Side:           s,
		Amount:         amt,
		AmountCurrency: strings.ToUpper(amountCurrency),
	}, nil
}

// Validate checks the request against the resolved market spec.
func (r Request) Validate(spec market.Spec) error {
	if r.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidRequest, r.Amount)
	}
	if _, err := spec.Denomination(r.AmountCurrency); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// BaseQuantity converts the requested amount into a base-currency quantity at
// the given limit price. A quote-denominated amount ("spend 14 USDT") is
// divided by the price first; either way the result is quantized to the base
// increment.
func (r Request) BaseQuantity(spec market.Spec, price decimal.Decimal) (decimal.Decimal, error) {
	denom, err := spec.Denomination(r.AmountCurrency)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if denom == market.DenomQuote {
		if price.Sign() <= 0 {
			return decimal.Decimal{}, fmt.Errorf("%w: cannot size a quote amount at price %s", ErrInvalidRequest, price)
		}
		return market.Quantize(r.Amount.Div(price), spec.BaseIncrement), nil
	}
	return market.Quantize(r.Amount, spec.BaseIncrement), nil
}

// Fill is one execution of an order.
type Fill struct {
	Quantity    decimal.Decimal
	Price       decimal.Decimal
	FeeAmount   decimal.Decimal
	FeeCurrency string
}

// State is the exchange's view of an order. It is only ever refreshed by
// re-fetching status; nothing here is mutated locally.
type State struct {
	OrderID         string
	Symbol          string
	Side            Side
	Price           decimal.Decimal
	OriginalAmount  decimal.Decimal
	ExecutedAmount  decimal.Decimal
	RemainingAmount decimal.Decimal
	IsCancelled     bool
	Fills           []Fill
	CreatedAt       time.Time
}

// TotalFees sums fee amounts across all fills. The currency comes from the
// first fill: a single order settles its fees in one currency.
func (s State) TotalFees() (decimal.Decimal, string) {
	total := decimal.Zero
	currency := ""
	for _, f := range s.Fills {
		total = total.Add(f.FeeAmount)
		if currency == "" {
			currency = f.FeeCurrency
		}
	}
	return total, currency
}

// MixedFeeCurrencies reports whether the fills settled fees in more than one
// currency, which would make the TotalFees currency misleading.
func (s State) MixedFeeCurrencies() bool {
	seen := ""
	for _, f := range s.Fills {
		if f.FeeCurrency == "" {
			continue
		}
		if seen == "" {
			seen = f.FeeCurrency
			continue
		}
		if f.FeeCurrency != seen {
			return true
		}
	}
	return false
}
