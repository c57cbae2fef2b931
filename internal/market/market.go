// Package market
package market

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrCurrencyNotInMarket is returned when an amount currency matches neither
// side of the market.
var ErrCurrencyNotInMarket = errors.New("currency not in market")

// Denomination says which side of the market an amount is expressed in.
type Denomination int

const (
	DenomBase Denomination = iota
	DenomQuote
)

// Spec holds the static trading rules of one market. Immutable once resolved.
type Spec struct {
	Symbol         string
	BaseCurrency   string
	QuoteCurrency  string
	BaseIncrement  decimal.Decimal // smallest tradable base-currency step
	QuoteIncrement decimal.Decimal // smallest tradable price step
	MinOrderSize   decimal.Decimal
}

// Validate checks that the resolved spec is usable for pricing and sizing.
func (s Spec) Validate() error {
	if s.BaseCurrency == "" || s.QuoteCurrency == "" {
		return fmt.Errorf("market %s: missing base or quote currency", s.Symbol)
	}
	if s.BaseIncrement.Sign() <= 0 {
		return fmt.Errorf("market %s: base increment must be positive, got %s", s.Symbol, s.BaseIncrement)
	}
	if s.QuoteIncrement.Sign() <= 0 {
		return fmt.Errorf("market %s: quote increment must be positive, got %s", s.Symbol, s.QuoteIncrement)
	}
	return nil
}

// Denomination resolves an amount currency against the market.
func (s Spec) Denomination(currency string) (Denomination, error) {
	switch {
	case strings.EqualFold(currency, s.QuoteCurrency):
		return DenomQuote, nil
	case strings.EqualFold(currency, s.BaseCurrency):
		return DenomBase, nil
	default:
		return 0, fmt.Errorf("%w: %s is neither %s nor %s on %s",
			ErrCurrencyNotInMarket, currency, s.BaseCurrency, s.QuoteCurrency, s.Symbol)
	}
}

// Book is a best bid/ask snapshot taken at a single point in time.
type Book struct {
	Symbol string
	Bid    decimal.Decimal
	Ask    decimal.Decimal
}

// Quantize rounds v to the nearest multiple of inc, ties to even.
func Quantize(v, inc decimal.Decimal) decimal.Decimal {
	return v.Div(inc).RoundBank(0).Mul(inc)
}

// QuantizeDown rounds v down to a multiple of inc.
func QuantizeDown(v, inc decimal.Decimal) decimal.Decimal {
	return v.Div(inc).Floor().Mul(inc)
}

// QuantizeUp rounds v up to a multiple of inc.
func QuantizeUp(v, inc decimal.Decimal) decimal.Decimal {
	return v.Div(inc).Ceil().Mul(inc)
}
