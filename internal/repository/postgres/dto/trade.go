package dto

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nastyazhadan/matching-engine/internal/domain/models"
)

type Trade struct {
	ID          int64     `db:"id"`
	BuyOrderID  int64     `db:"buy_order_id"`
	SellOrderID int64     `db:"sell_order_id"`
	Symbol      string    `db:"symbol"`
	Price       string    `db:"price"`
	Quantity    string    `db:"quantity"`
	CreatedAt   time.Time `db:"created_at"`
}

func FromTrade(t models.Trade) Trade {
	return Trade{
		ID:          t.ID,
		BuyOrderID:  t.BuyOrderID,
		SellOrderID: t.SellOrderID,
		Symbol:      t.Symbol,
		Price:       t.Price.String(),
		Quantity:    t.Quantity.String(),
		CreatedAt:   t.CreatedAt,
	}
}

func (t Trade) ToTrade() (models.Trade, error) {
	price, err := decimal.NewFromString(t.Price)
	if err != nil {
		return models.Trade{}, fmt.Errorf("dto.Trade.ToTrade: parse price: %w", err)
	}
	quantity, err := decimal.NewFromString(t.Quantity)
	if err != nil {
		return models.Trade{}, fmt.Errorf("dto.Trade.ToTrade: parse quantity: %w", err)
	}

	return models.Trade{
		ID:          t.ID,
		BuyOrderID:  t.BuyOrderID,
		SellOrderID: t.SellOrderID,
		Symbol:      t.Symbol,
		Price:       price,
		Quantity:    quantity,
		CreatedAt:   t.CreatedAt,
	}, nil
}
