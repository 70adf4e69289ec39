// Package matching implements the LIMIT and MARKET matching strategies
// and the per-symbol serialized coordinator that drives them against an
// orderbook.Book.
package matching

import (
	"context"

	"github.com/nastyazhadan/matching-engine/internal/domain/models"
	"github.com/nastyazhadan/matching-engine/internal/orderbook"
)

// Result is the output of matching one incoming order against a book:
// the updated incoming order, trades in execution order, and every
// maker order that was mutated (including ones removed from the book).
type Result struct {
	Order  models.Order
	Trades []models.Trade
	Makers []models.Order
}

// Strategy computes fills, trades, and residuals for one incoming order
// against a book. The two variants (LIMIT, MARKET) are dispatched on
// order.Type by the coordinator.
type Strategy interface {
	Match(ctx context.Context, incoming models.Order, book *orderbook.Book) (Result, error)
}

// ForType returns the strategy registered for an order type, or
// (nil, false) if none matches.
func ForType(t models.OrderType) (Strategy, bool) {
	switch t {
	case models.OrderTypeLimit:
		return LimitStrategy{}, true
	case models.OrderTypeMarket:
		return MarketStrategy{}, true
	default:
		return nil, false
	}
}
