package matching

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/nastyazhadan/matching-engine/internal/domain/models"
	"github.com/nastyazhadan/matching-engine/internal/orderbook"
)

// LimitStrategy matches a LIMIT order by price-time priority: a BUY
// crosses while the best ask is at or below its price, a SELL crosses
// while the best bid is at or above it. Any unmatched remainder rests at
// the tail of its own side's queue at its price.
type LimitStrategy struct{}

func (LimitStrategy) Match(_ context.Context, incoming models.Order, book *orderbook.Book) (Result, error) {
	gate := func(makerPrice decimal.Decimal) bool {
		if incoming.Side == models.SideBuy {
			return makerPrice.LessThanOrEqual(incoming.Price)
		}
		return makerPrice.GreaterThanOrEqual(incoming.Price)
	}

	result := walk(incoming, book, gate)

	if result.Order.Remaining().IsPositive() {
		book.Insert(result.Order)
	}

	return result, nil
}
