package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceLevel is a serializable view of one price key on one side of a
// book: the resting orders in FIFO arrival order.
type PriceLevel struct {
	Price  decimal.Decimal
	Orders []Order
}

// BookSnapshot is the durable, serializable representation of an
// OrderBook row/document: bids descending, asks ascending, each a slice
// of PriceLevel in iteration order. It round-trips through both the
// primary store's jsonb column and the cache store's keyed layout.
type BookSnapshot struct {
	Symbol    string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Version   int64
	UpdatedAt time.Time
}
