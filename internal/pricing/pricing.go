// Package pricing
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/mfmahdi/dcabot/internal/market"
	"github.com/mfmahdi/dcabot/internal/order"
)

var two = decimal.NewFromInt(2)

// MakerPrice derives a single limit price from a best bid/ask snapshot.
// Bid and ask are first normalized to the quote increment, the midpoint is
// snapped down to the increment grid, and the final rounding biases the
// result by side: buys round down, sells round up, so a buy price is never
// above the sell price for the same book.
//
// A crossed book (bid above ask) is processed mechanically; input validity
// is the caller's problem.
func MakerPrice(book market.Book, spec market.Spec, side order.Side) decimal.Decimal {
	bid := market.Quantize(book.Bid, spec.QuoteIncrement)
	ask := market.Quantize(book.Ask, spec.QuoteIncrement)

	mid := ask.Add(bid).Div(two)
	snapped := market.QuantizeDown(mid, spec.QuoteIncrement)

	if side == order.Sell {
		return market.QuantizeUp(snapped, spec.QuoteIncrement)
	}
	return market.QuantizeDown(snapped, spec.QuoteIncrement)
}
