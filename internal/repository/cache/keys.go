// Package cache implements the fast Redis-backed ladder cache described by
// spec.md §4.9, keyed exactly as spec.md §6 lists: a sorted set of prices
// per side, a FIFO order-id list per price, an order field hash, and a
// per-symbol metadata hash.
package cache

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/nastyazhadan/matching-engine/internal/domain/models"
)

func sideSegment(side models.Side) string {
	if side == models.SideBuy {
		return "bid"
	}
	return "ask"
}

func keyPrices(symbol string, side models.Side) string {
	return fmt.Sprintf("orderbook:%s:%s:prices", symbol, sideSegment(side))
}

func keyPriceList(symbol string, side models.Side, price string) string {
	return fmt.Sprintf("orderbook:%s:%s:price:%s", symbol, sideSegment(side), price)
}

func keyOrder(orderID int64) string {
	return fmt.Sprintf("order:%s", strconv.FormatInt(orderID, 10))
}

func keyMetadata(symbol string) string {
	return fmt.Sprintf("orderbook:%s:metadata", symbol)
}

// bidScore and askScore implement the score convention from spec.md §4.9:
// −price for bids so ascending ZRANGE order yields descending price;
// +price for asks so ascending ZRANGE order yields ascending price. Using
// the same ascending scan for both sides recovers each ladder's natural
// priority order without a side-specific traversal.
func bidScore(price decimal.Decimal) float64 { return -price.InexactFloat64() }
func askScore(price decimal.Decimal) float64 { return price.InexactFloat64() }

func scoreFor(side models.Side, price decimal.Decimal) float64 {
	if side == models.SideBuy {
		return bidScore(price)
	}
	return askScore(price)
}
