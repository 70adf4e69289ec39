// Package ingress implements the Ingress Dispatcher described by
// spec.md §4.5: consumes order-input (partitioned by symbol), enforces
// idempotency, resolves the target Order, dispatches to the Matching
// Coordinator, and acknowledges or routes to the dead-letter stream on
// exhausted retry. Consumer-group handling is grounded on the pack's
// sarama settlement processor
// (Aidin1998-finalex/internal/settlement/settlement_processor.go);
// concurrency across claims is bounded by a golang.org/x/sync/semaphore
// weighted semaphore.
package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/nastyazhadan/matching-engine/internal/config"
	"github.com/nastyazhadan/matching-engine/internal/domain/apperrors"
	"github.com/nastyazhadan/matching-engine/internal/domain/models"
	"github.com/nastyazhadan/matching-engine/internal/events"
	logger "github.com/nastyazhadan/matching-engine/pkg/logging/zap"
)

// IdempotencyStore is the slice of internal/idempotency.Store this
// dispatcher exercises.
type IdempotencyStore interface {
	ContainsProcessed(ctx context.Context, id string) (bool, error)
	MarkProcessed(ctx context.Context, id string, orderID int64) error
}

// OrderStore is the slice of the primary store needed to resolve the
// target Order by id before dispatch.
type OrderStore interface {
	GetByID(ctx context.Context, id int64) (models.Order, error)
}

// Coordinator is the slice of matching.Coordinator this dispatcher drives.
type Coordinator interface {
	Process(ctx context.Context, order models.Order) error
}

// DLQProducer publishes a record to a dead-letter topic. Kept narrow
// (distinct from egress.Producer) since the dispatcher only ever sends,
// never drains, and never needs completion channels on the hot path —
// it blocks on SendMessage so a DLQ failure is visible immediately.
type DLQProducer interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
}

// defaultRetryBackoff is the per-record retry schedule used when
// Config.RetryBackoff is empty: 100/200/400 ms per spec.md §4.5.
var defaultRetryBackoff = []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}

// defaultRetryMax is the attempt count used when Config.RetryMax is
// unset (ingress.retry.max, spec.md §6).
const defaultRetryMax = 3

type Config struct {
	// Concurrency bounds the number of records processed at once across
	// every claimed partition (ingress.concurrency).
	Concurrency int
	// RetryBackoff is the inter-attempt delay schedule
	// (ingress.retry.backoff). Sleeps beyond the slice's length reuse
	// its last entry.
	RetryBackoff []time.Duration
	// RetryMax is the number of Coordinator.Process attempts before a
	// record routes to the dead-letter stream (ingress.retry.max).
	RetryMax int
}

// Dispatcher is the sarama.ConsumerGroupHandler for order-input.
type Dispatcher struct {
	idempotency IdempotencyStore
	orders      OrderStore
	coordinator Coordinator
	dlq         DLQProducer

	sem          *semaphore.Weighted
	retryBackoff []time.Duration
	retryMax     int
}

func New(idempotency IdempotencyStore, orders OrderStore, coordinator Coordinator, dlq DLQProducer, cfg Config) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = defaultRetryMax
	}
	if len(cfg.RetryBackoff) == 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	return &Dispatcher{
		idempotency:  idempotency,
		orders:       orders,
		coordinator:  coordinator,
		dlq:          dlq,
		sem:          semaphore.NewWeighted(int64(cfg.Concurrency)),
		retryBackoff: cfg.RetryBackoff,
		retryMax:     cfg.RetryMax,
	}
}

func (d *Dispatcher) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (d *Dispatcher) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim processes records for one claimed partition one at a
// time, in partition order, acquiring the global concurrency semaphore
// before each record — bounding total in-flight records across every
// partition this process has claimed without reordering within a
// partition.
func (d *Dispatcher) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()

	for msg := range claim.Messages() {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			return nil
		}
		err := d.handle(ctx, msg)
		d.sem.Release(1)

		if err != nil {
			logger.Error(ctx, "ingress record not acknowledged, awaiting redelivery",
				zap.String("topic", msg.Topic), zap.Int32("partition", msg.Partition), zap.Int64("offset", msg.Offset), zap.Error(err))
			// Stop this claim: marking a later record would commit past the
			// failed one. The next session resumes from the last marked offset.
			return nil
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}

// handle implements the five-step contract of spec.md §4.5. A non-nil
// return means the record must not be acknowledged; the caller leaves
// the offset uncommitted so the broker redelivers it.
func (d *Dispatcher) handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	const op = "ingress.Dispatcher.handle"

	var payload events.NewOrder
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		logger.Error(ctx, "malformed order-input record, acknowledging", zap.Error(err))
		return nil
	}

	messageID := payload.MessageID.String()

	processed, err := d.idempotency.ContainsProcessed(ctx, messageID)
	if err != nil {
		return fmt.Errorf("%s: idempotency check: %w", op, err)
	}
	if processed {
		return nil
	}

	order, err := d.orders.GetByID(ctx, payload.OrderID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			logger.Warn(ctx, "order-input references unknown order, acknowledging", zap.Int64("order_id", payload.OrderID))
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if order.Status != models.StatusPending {
		return nil
	}

	if err := d.processWithRetry(ctx, order); err != nil {
		d.sendToDLQ(ctx, msg, err)
		return nil
	}

	if err := d.idempotency.MarkProcessed(ctx, messageID, order.ID); err != nil {
		logger.Error(ctx, "failed to mark message processed", zap.String("message_id", messageID), zap.Error(err))
	}
	return nil
}

// processWithRetry applies the configured retryMax-attempt,
// retryBackoff-delay retry policy around one Coordinator.Process call.
func (d *Dispatcher) processWithRetry(ctx context.Context, order models.Order) error {
	var lastErr error
	for attempt := 0; attempt < d.retryMax; attempt++ {
		lastErr = d.coordinator.Process(ctx, order)
		if lastErr == nil {
			return nil
		}
		if attempt < d.retryMax-1 {
			select {
			case <-time.After(d.backoffFor(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("ingress.Dispatcher.processWithRetry: %w: %w", apperrors.ErrTerminal, lastErr)
}

// backoffFor returns the configured delay for the given zero-based
// attempt index, reusing the schedule's last entry once exhausted.
func (d *Dispatcher) backoffFor(attempt int) time.Duration {
	if attempt < len(d.retryBackoff) {
		return d.retryBackoff[attempt]
	}
	return d.retryBackoff[len(d.retryBackoff)-1]
}

// sendToDLQ publishes the original record to order-input-dlq. The
// Dead Letter Handler is responsible for the FAILED transition; the
// dispatcher's job ends at routing.
func (d *Dispatcher) sendToDLQ(ctx context.Context, msg *sarama.ConsumerMessage, cause error) {
	out := &sarama.ProducerMessage{
		Topic: events.TopicOrderInputDLQ,
		Key:   sarama.ByteEncoder(msg.Key),
		Value: sarama.ByteEncoder(msg.Value),
	}
	if _, _, err := d.dlq.SendMessage(out); err != nil {
		logger.Error(ctx, "failed to route record to DLQ", zap.Error(err), zap.NamedError("cause", cause))
		return
	}
	logger.Warn(ctx, "routed record to order-input-dlq", zap.Error(cause))
}

// NewConsumerConfig returns the sarama.Config matching spec.md §6's
// consumer table: earliest offset reset, manual commit, and the
// fetch/session/heartbeat/buffering tuning read from kafkaCfg.
// max_poll_records has no direct sarama equivalent; it is applied to
// ChannelBufferSize, the closest analog (the number of fetched records
// sarama buffers per partition ahead of ConsumeClaim).
func NewConsumerConfig(kafkaCfg config.KafkaConfig) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Offsets.AutoCommit.Enable = false
	cfg.Consumer.Fetch.Min = kafkaCfg.FetchMinBytes
	cfg.Consumer.MaxWaitTime = 500 * time.Millisecond
	cfg.Consumer.Group.Session.Timeout = kafkaCfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = kafkaCfg.HeartbeatInterval
	if kafkaCfg.MaxPollRecords > 0 {
		cfg.ChannelBufferSize = kafkaCfg.MaxPollRecords
	}
	return cfg
}
