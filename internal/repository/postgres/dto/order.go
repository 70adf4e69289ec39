// Package dto holds the Postgres row shapes for orders and trades, and
// the conversions to and from internal/domain/models,
// following the teacher's repository/postgres/dto convention.
package dto

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nastyazhadan/matching-engine/internal/domain/models"
)

// Order is the orders table row. Price and Quantity are stored as TEXT to
// carry shopspring/decimal's exact fixed-point representation without a
// lossy float round-trip; Price is nullable for the MARKET order type.
type Order struct {
	ID              int64     `db:"id"`
	UserID          uuid.UUID `db:"user_id"`
	Symbol          string    `db:"symbol"`
	Side            int16     `db:"side"`
	Type            int16     `db:"type"`
	Price           *string   `db:"price"`
	Quantity        string    `db:"quantity"`
	FilledQuantity  string    `db:"filled_quantity"`
	Status          int16     `db:"status"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func FromOrder(o models.Order) Order {
	row := Order{
		ID:             o.ID,
		UserID:         o.UserID,
		Symbol:         o.Symbol,
		Side:           int16(o.Side),
		Type:           int16(o.Type),
		Quantity:       o.Quantity.String(),
		FilledQuantity: o.FilledQuantity.String(),
		Status:         int16(o.Status),
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	if o.Type == models.OrderTypeLimit {
		price := o.Price.String()
		row.Price = &price
	}
	return row
}

func (o Order) ToOrder() (models.Order, error) {
	quantity, err := decimal.NewFromString(o.Quantity)
	if err != nil {
		return models.Order{}, fmt.Errorf("dto.Order.ToOrder: parse quantity: %w", err)
	}
	filled, err := decimal.NewFromString(o.FilledQuantity)
	if err != nil {
		return models.Order{}, fmt.Errorf("dto.Order.ToOrder: parse filled_quantity: %w", err)
	}

	var price decimal.Decimal
	if o.Price != nil {
		price, err = decimal.NewFromString(*o.Price)
		if err != nil {
			return models.Order{}, fmt.Errorf("dto.Order.ToOrder: parse price: %w", err)
		}
	}

	return models.Order{
		ID:             o.ID,
		UserID:         o.UserID,
		Symbol:         o.Symbol,
		Side:           models.Side(o.Side),
		Type:           models.OrderType(o.Type),
		Price:          price,
		Quantity:       quantity,
		FilledQuantity: filled,
		Status:         models.OrderStatus(o.Status),
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}, nil
}
