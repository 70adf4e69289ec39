package dto_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nastyazhadan/matching-engine/internal/domain/models"
	"github.com/nastyazhadan/matching-engine/internal/repository/postgres/dto"
)

func TestOrderRoundTrip(t *testing.T) {
	order := models.Order{
		ID:             42,
		UserID:         uuid.New(),
		Symbol:         "BTC-USD",
		Side:           models.SideBuy,
		Type:           models.OrderTypeLimit,
		Price:          decimal.RequireFromString("50000.12345678"),
		Quantity:       decimal.RequireFromString("1.5"),
		FilledQuantity: decimal.RequireFromString("0.5"),
		Status:         models.StatusPartiallyFilled,
		CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
		UpdatedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}

	row := dto.FromOrder(order)
	require.NotNil(t, row.Price)

	back, err := row.ToOrder()
	require.NoError(t, err)

	assert.Equal(t, order.ID, back.ID)
	assert.Equal(t, order.UserID, back.UserID)
	assert.True(t, order.Price.Equal(back.Price))
	assert.True(t, order.Quantity.Equal(back.Quantity))
	assert.True(t, order.FilledQuantity.Equal(back.FilledQuantity))
	assert.Equal(t, order.Status, back.Status)
}

func TestMarketOrderHasNilPrice(t *testing.T) {
	order := models.Order{
		ID:       7,
		Symbol:   "ETH-USD",
		Side:     models.SideSell,
		Type:     models.OrderTypeMarket,
		Quantity: decimal.RequireFromString("2"),
	}

	row := dto.FromOrder(order)
	assert.Nil(t, row.Price)

	back, err := row.ToOrder()
	require.NoError(t, err)
	assert.True(t, back.Price.IsZero())
}
