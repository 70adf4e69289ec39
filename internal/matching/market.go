package matching

import (
	"context"

	"github.com/nastyazhadan/matching-engine/internal/domain/models"
	"github.com/nastyazhadan/matching-engine/internal/orderbook"
)

// MarketStrategy matches a MARKET order against every available price
// level with no price predicate. It never rests: an empty opposite
// ladder yields REJECTED with zero trades (walk's Fill(0) normalization
// handles this), and liquidity exhaustion short of full quantity yields
// PARTIALLY_FILLED.
type MarketStrategy struct{}

func (MarketStrategy) Match(_ context.Context, incoming models.Order, book *orderbook.Book) (Result, error) {
	return walk(incoming, book, nil), nil
}
