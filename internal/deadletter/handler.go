// Package deadletter implements the Dead Letter Handler described by
// spec.md §4.12: it consumes order-input-dlq, marks the affected Order
// FAILED and publishes a terminal status event, and drains
// trade-output-dlq without action (trades are already durable at
// publish time). The consumer-group handler shape is grounded on the
// pack's sarama settlement processor
// (Aidin1998-finalex/internal/settlement/settlement_processor.go).
package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/nastyazhadan/matching-engine/internal/domain/apperrors"
	"github.com/nastyazhadan/matching-engine/internal/domain/models"
	"github.com/nastyazhadan/matching-engine/internal/events"
	logger "github.com/nastyazhadan/matching-engine/pkg/logging/zap"
)

// OrderStore is the slice of the primary store this handler exercises.
type OrderStore interface {
	GetByID(ctx context.Context, id int64) (models.Order, error)
	UpdateStatus(ctx context.Context, id int64, status models.OrderStatus) error
}

// StatusPublisher is the slice of the egress publisher this handler
// exercises, kept narrow for testability.
type StatusPublisher interface {
	PublishOrderStatusWithError(ctx context.Context, order models.Order, reason, errMsg string) error
}

// Handler consumes order-input-dlq and drains trade-output-dlq.
type Handler struct {
	orders    OrderStore
	publisher StatusPublisher
}

func New(orders OrderStore, publisher StatusPublisher) *Handler {
	return &Handler{orders: orders, publisher: publisher}
}

// Setup and Cleanup satisfy sarama.ConsumerGroupHandler.
func (h *Handler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *Handler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim dispatches by topic so one consumer group can join both
// DLQ topics: order-input-dlq records are handled, trade-output-dlq
// records are drained without action. Every record, valid or not, is
// acknowledged — DLQ records must never re-loop (spec.md §4.12).
func (h *Handler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if claim.Topic() == events.TopicOrderInputDLQ {
			ctx := context.Background()
			if err := h.handleOrderInput(ctx, msg.Value); err != nil {
				logger.Error(ctx, "dead-letter handling failed", zap.Error(err))
			}
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}

func (h *Handler) handleOrderInput(ctx context.Context, raw []byte) error {
	const op = "deadletter.Handler.handleOrderInput"

	var payload events.NewOrder
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("%s: unmarshal: %w", op, err)
	}

	order, err := h.orders.GetByID(ctx, payload.OrderID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			logger.Warn(ctx, "dead-letter order not found", zap.Int64("order_id", payload.OrderID))
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if order.Status != models.StatusPending {
		return nil
	}

	if err := h.orders.UpdateStatus(ctx, order.ID, models.StatusFailed); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	order.Status = models.StatusFailed

	if err := h.publisher.PublishOrderStatusWithError(ctx, order, events.ReasonProcessingError, "exhausted ingress retries"); err != nil {
		logger.Error(ctx, "failed to publish FAILED status", zap.Int64("order_id", order.ID), zap.Error(err))
	}
	return nil
}
