// Package depth implements the Depth Aggregator described by spec.md
// §4.11: a pure function over an in-memory orderbook.Book, no I/O,
// producing a truncated, quantity-summed price-level view.
package depth

import (
	"github.com/shopspring/decimal"

	"github.com/nastyazhadan/matching-engine/internal/domain/models"
	"github.com/nastyazhadan/matching-engine/internal/orderbook"
)

// Level is one aggregated price level: the summed remaining quantity and
// count of resting orders at that price.
type Level struct {
	Price            decimal.Decimal
	TotalQuantity    decimal.Decimal
	OrderCount       int
}

// View is the aggregated depth snapshot for one symbol.
type View struct {
	Symbol   string
	Bids     []Level
	Asks     []Level
	BestBid  *decimal.Decimal
	BestAsk  *decimal.Decimal
	Spread   *decimal.Decimal
}

// Compute produces a View for book, truncated to limit levels per side.
// limit is clamped into [1, maxLimit]; a non-positive or zero value
// defaults to maxLimit. maxLimit is the caller-supplied depth.limit.max
// (spec.md §6) — this package performs no I/O, so it takes the ceiling
// as a parameter rather than reading config itself.
func Compute(book *orderbook.Book, limit, maxLimit int) View {
	if maxLimit <= 0 {
		maxLimit = 100
	}
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}

	v := View{Symbol: book.Symbol}
	v.Bids = levels(book, models.SideBuy, limit)
	v.Asks = levels(book, models.SideSell, limit)

	if bid, ok := book.BestBid(); ok {
		b := bid
		v.BestBid = &b
	}
	if ask, ok := book.BestAsk(); ok {
		a := ask
		v.BestAsk = &a
	}
	if v.BestBid != nil && v.BestAsk != nil {
		spread := v.BestAsk.Sub(*v.BestBid)
		v.Spread = &spread
	}

	return v
}

func levels(book *orderbook.Book, side models.Side, limit int) []Level {
	out := make([]Level, 0, limit)

	book.Ascend(side, func(price decimal.Decimal, orders []models.Order) bool {
		if len(out) >= limit {
			return false
		}

		total := decimal.Zero
		for _, o := range orders {
			total = total.Add(o.Remaining())
		}

		out = append(out, Level{
			Price:         price,
			TotalQuantity: total,
			OrderCount:    len(orders),
		})
		return true
	})

	return out
}
