// Package events defines the wire payloads carried on the order-input,
// order-status-update, and trade-output streams, encoded as JSON.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NewOrder is the order-input payload, keyed by symbol.
type NewOrder struct {
	MessageID     uuid.UUID        `json:"message_id"`
	CorrelationID uuid.UUID        `json:"correlation_id"`
	Timestamp     time.Time        `json:"timestamp"`
	OrderID       int64            `json:"order_id"`
	UserID        uuid.UUID        `json:"user_id"`
	Symbol        string           `json:"symbol"`
	Side          string           `json:"side"`
	Type          string           `json:"type"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	Quantity      decimal.Decimal  `json:"quantity"`
}

// Status reasons, per spec.md §4.4 and §7.
const (
	ReasonMatched         = "MATCHED"
	ReasonCancelled       = "CANCELLED"
	ReasonProcessingError = "PROCESSING_ERROR"
)

// OrderStatus is the order-status-update payload, keyed by user_id.
type OrderStatus struct {
	OrderID            int64           `json:"order_id"`
	UserID             uuid.UUID       `json:"user_id"`
	Symbol             string          `json:"symbol"`
	Status             string          `json:"status"`
	FilledQuantity     decimal.Decimal `json:"filled_quantity"`
	RemainingQuantity  decimal.Decimal `json:"remaining_quantity"`
	Timestamp          time.Time       `json:"timestamp"`
	Reason             string          `json:"reason"`
	ErrorMessage       *string         `json:"error_message,omitempty"`
}

// TradeExecuted is the trade-output payload, keyed by symbol.
type TradeExecuted struct {
	MessageID    uuid.UUID       `json:"message_id"`
	Timestamp    time.Time       `json:"timestamp"`
	TradeID      int64           `json:"trade_id"`
	BuyOrderID   int64           `json:"buy_order_id"`
	SellOrderID  int64           `json:"sell_order_id"`
	Symbol       string          `json:"symbol"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	TakerOrderID int64           `json:"taker_order_id"`
	MakerOrderID int64           `json:"maker_order_id"`
}

// Stream names, used as sarama topics.
const (
	TopicOrderInput        = "order-input"
	TopicOrderInputDLQ     = "order-input-dlq"
	TopicOrderStatusUpdate = "order-status-update"
	TopicTradeOutput       = "trade-output"
	TopicTradeOutputDLQ    = "trade-output-dlq"
)
