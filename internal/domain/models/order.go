package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Side uint8

const (
	SideUnspecified Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNSPECIFIED"
	}
}

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

type OrderType uint8

const (
	OrderTypeUnspecified OrderType = iota
	OrderTypeLimit
	OrderTypeMarket
)

type OrderStatus uint8

const (
	StatusUnspecified OrderStatus = iota
	StatusPending
	StatusOpen
	StatusPartiallyFilled
	StatusFilled
	StatusCancelled
	StatusRejected
	StatusFailed
)

func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusFailed:
		return true
	default:
		return false
	}
}

// MaxScale is the maximum number of decimal places for price and quantity
// fields, per the fixed-point requirement. No code in this module rounds or
// rejects values against it.
const MaxScale = 8

// Order is the core trading primitive. Price is the zero value for
// OrderTypeMarket orders.
type Order struct {
	ID              int64
	UserID          uuid.UUID
	Symbol          string
	Side            Side
	Type            OrderType
	Price           decimal.Decimal
	Quantity        decimal.Decimal
	FilledQuantity  decimal.Decimal
	Status          OrderStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Remaining returns quantity minus filled_quantity.
func (o Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

func (o Order) IsFilled() bool {
	return o.FilledQuantity.Equal(o.Quantity)
}

// Fill increments filled_quantity by qty and recomputes status. MARKET
// orders never become OPEN.
func (o Order) Fill(qty decimal.Decimal) Order {
	o.FilledQuantity = o.FilledQuantity.Add(qty)
	o.Status = o.statusForFill()
	return o
}

func (o Order) statusForFill() OrderStatus {
	if o.FilledQuantity.GreaterThanOrEqual(o.Quantity) {
		return StatusFilled
	}
	if o.FilledQuantity.IsPositive() {
		return StatusPartiallyFilled
	}
	if o.Type == OrderTypeMarket {
		return StatusRejected
	}
	return StatusOpen
}

// Clone returns a value copy suitable for a fresh matching attempt (used
// when the coordinator restarts a match after a version conflict).
func (o Order) Clone() Order {
	return o
}
