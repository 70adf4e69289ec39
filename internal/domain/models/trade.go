package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is immutable once created; the price always equals the resting
// (maker) order's price.
type Trade struct {
	ID          int64
	BuyOrderID  int64
	SellOrderID int64
	Symbol      string
	Price       decimal.Decimal
	Quantity    decimal.Decimal
	CreatedAt   time.Time
}
