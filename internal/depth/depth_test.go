package depth_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nastyazhadan/matching-engine/internal/depth"
	"github.com/nastyazhadan/matching-engine/internal/domain/models"
	"github.com/nastyazhadan/matching-engine/internal/orderbook"
)

func order(id int64, side models.Side, price, qty, filled string) models.Order {
	return models.Order{
		ID:             id,
		Symbol:         "BTC-USD",
		Side:           side,
		Type:           models.OrderTypeLimit,
		Price:          decimal.RequireFromString(price),
		Quantity:       decimal.RequireFromString(qty),
		FilledQuantity: decimal.RequireFromString(filled),
		Status:         models.StatusOpen,
	}
}

func TestComputeSumsQuantityAndOrderCount(t *testing.T) {
	book := orderbook.New("BTC-USD")
	book.Insert(order(1, models.SideBuy, "100", "1.0", "0"))
	book.Insert(order(2, models.SideBuy, "100", "2.0", "0.5"))
	book.Insert(order(3, models.SideSell, "101", "3.0", "0"))

	v := depth.Compute(book, 10, 100)

	require.Len(t, v.Bids, 1)
	assert.True(t, v.Bids[0].Price.Equal(decimal.RequireFromString("100")))
	assert.True(t, v.Bids[0].TotalQuantity.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, 2, v.Bids[0].OrderCount)

	require.Len(t, v.Asks, 1)
	assert.True(t, v.Asks[0].TotalQuantity.Equal(decimal.RequireFromString("3.0")))

	require.NotNil(t, v.BestBid)
	require.NotNil(t, v.BestAsk)
	require.NotNil(t, v.Spread)
	assert.True(t, v.Spread.Equal(decimal.RequireFromString("1")))
}

func TestComputeEmptyBookHasNilSpread(t *testing.T) {
	book := orderbook.New("BTC-USD")
	v := depth.Compute(book, 10, 100)

	assert.Nil(t, v.BestBid)
	assert.Nil(t, v.BestAsk)
	assert.Nil(t, v.Spread)
	assert.Empty(t, v.Bids)
	assert.Empty(t, v.Asks)
}

func TestComputeTruncatesToLimit(t *testing.T) {
	book := orderbook.New("BTC-USD")
	for i, price := range []string{"100", "99", "98", "97"} {
		book.Insert(order(int64(i+1), models.SideBuy, price, "1", "0"))
	}

	v := depth.Compute(book, 2, 100)
	require.Len(t, v.Bids, 2)
	assert.True(t, v.Bids[0].Price.Equal(decimal.RequireFromString("100")))
	assert.True(t, v.Bids[1].Price.Equal(decimal.RequireFromString("99")))
}

func TestComputeClampsOutOfRangeLimit(t *testing.T) {
	book := orderbook.New("BTC-USD")
	book.Insert(order(1, models.SideBuy, "100", "1", "0"))

	v := depth.Compute(book, 0, 100)
	require.Len(t, v.Bids, 1)

	v = depth.Compute(book, 500, 100)
	require.Len(t, v.Bids, 1)

	v = depth.Compute(book, 5, 0)
	require.Len(t, v.Bids, 1)
}
