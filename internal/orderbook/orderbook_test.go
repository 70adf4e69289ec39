package orderbook_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nastyazhadan/matching-engine/internal/domain/models"
	"github.com/nastyazhadan/matching-engine/internal/orderbook"
)

func order(id int64, side models.Side, price, qty string) models.Order {
	return models.Order{
		ID:       id,
		Symbol:   "BTC-USD",
		Side:     side,
		Type:     models.OrderTypeLimit,
		Price:    decimal.RequireFromString(price),
		Quantity: decimal.RequireFromString(qty),
		Status:   models.StatusOpen,
	}
}

func TestBidsDescendingAsksAscending(t *testing.T) {
	book := orderbook.New("BTC-USD")
	book.Insert(order(1, models.SideBuy, "100", "1"))
	book.Insert(order(2, models.SideBuy, "102", "1"))
	book.Insert(order(3, models.SideBuy, "101", "1"))

	var prices []string
	book.Ascend(models.SideBuy, func(price decimal.Decimal, _ []models.Order) bool {
		prices = append(prices, price.String())
		return true
	})
	assert.Equal(t, []string{"102", "101", "100"}, prices)

	book.Insert(order(4, models.SideSell, "105", "1"))
	book.Insert(order(5, models.SideSell, "103", "1"))
	book.Insert(order(6, models.SideSell, "104", "1"))

	prices = nil
	book.Ascend(models.SideSell, func(price decimal.Decimal, _ []models.Order) bool {
		prices = append(prices, price.String())
		return true
	})
	assert.Equal(t, []string{"103", "104", "105"}, prices)
}

func TestRemoveByIDPreservesFIFO(t *testing.T) {
	book := orderbook.New("BTC-USD")
	book.Insert(order(1, models.SideSell, "100", "1"))
	book.Insert(order(2, models.SideSell, "100", "1"))
	book.Insert(order(3, models.SideSell, "100", "1"))

	removed, ok := book.RemoveByID(models.SideSell, decimal.RequireFromString("100"), 2)
	require.True(t, ok)
	assert.Equal(t, int64(2), removed.ID)

	front, ok := book.Front(models.SideSell, decimal.RequireFromString("100"))
	require.True(t, ok)
	assert.Equal(t, int64(1), front.ID, "removing a middle order must not disturb FIFO of the remainder")

	first, _ := book.RemoveHead(models.SideSell, decimal.RequireFromString("100"))
	assert.Equal(t, int64(1), first.ID)
	second, _ := book.RemoveHead(models.SideSell, decimal.RequireFromString("100"))
	assert.Equal(t, int64(3), second.ID)
}

func TestEmptyLevelDropsPriceKey(t *testing.T) {
	book := orderbook.New("BTC-USD")
	book.Insert(order(1, models.SideBuy, "100", "1"))

	_, ok := book.RemoveHead(models.SideBuy, decimal.RequireFromString("100"))
	require.True(t, ok)

	_, hasBid := book.BestBid()
	assert.False(t, hasBid)
}

func TestSpread(t *testing.T) {
	book := orderbook.New("BTC-USD")
	_, ok := book.Spread()
	assert.False(t, ok, "spread is null when either side is empty")

	book.Insert(order(1, models.SideBuy, "99", "1"))
	book.Insert(order(2, models.SideSell, "101", "1"))

	spread, ok := book.Spread()
	require.True(t, ok)
	assert.True(t, spread.Equal(decimal.RequireFromString("2")))
}

func TestSnapshotRoundTrip(t *testing.T) {
	book := orderbook.New("BTC-USD")
	book.Version = 7
	book.Insert(order(1, models.SideBuy, "100", "1"))
	book.Insert(order(2, models.SideBuy, "100", "2"))
	book.Insert(order(3, models.SideBuy, "99", "3"))
	book.Insert(order(4, models.SideSell, "101", "1"))

	snap := book.ToSnapshot()
	rebuilt := orderbook.FromSnapshot(snap)
	roundTripped := rebuilt.ToSnapshot()

	assert.Equal(t, snap.Version, roundTripped.Version)
	assert.Equal(t, snap.Symbol, roundTripped.Symbol)
	require.Len(t, roundTripped.Bids, len(snap.Bids))
	for i := range snap.Bids {
		assert.True(t, snap.Bids[i].Price.Equal(roundTripped.Bids[i].Price))
		require.Len(t, roundTripped.Bids[i].Orders, len(snap.Bids[i].Orders))
		for j := range snap.Bids[i].Orders {
			assert.Equal(t, snap.Bids[i].Orders[j].ID, roundTripped.Bids[i].Orders[j].ID)
		}
	}
	require.Len(t, roundTripped.Asks, len(snap.Asks))
}
