// Package egress implements the Egress Publisher described by
// spec.md §4.6: fire-and-forget emission of order-status and
// trade-executed events on their respective sarama topics, partitioned
// by user_id and symbol, with completion callbacks that log failure
// instead of propagating it.
package egress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nastyazhadan/matching-engine/internal/config"
	"github.com/nastyazhadan/matching-engine/internal/domain/models"
	"github.com/nastyazhadan/matching-engine/internal/events"
	logger "github.com/nastyazhadan/matching-engine/pkg/logging/zap"
)

// Producer is the slice of sarama.AsyncProducer this publisher drives,
// kept narrow so tests can supply a fake instead of a live broker.
type Producer interface {
	Input() chan<- *sarama.ProducerMessage
	Successes() <-chan *sarama.ProducerMessage
	Errors() <-chan *sarama.ProducerError
	Close() error
}

// NewProducerConfig returns the sarama.Config matching spec.md §6's
// producer table: acks=1, snappy compression, and the
// batch/linger/retry/in-flight/timeout tuning read from kafkaCfg.
func NewProducerConfig(kafkaCfg config.KafkaConfig) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Flush.Bytes = kafkaCfg.ProducerBatchSize
	cfg.Producer.Flush.Frequency = kafkaCfg.ProducerLinger
	cfg.Producer.Retry.Max = kafkaCfg.ProducerRetries
	cfg.Net.MaxOpenRequests = kafkaCfg.MaxInFlight
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Timeout = kafkaCfg.DeliveryTimeout
	return cfg
}

// Publisher emits order-status and trade-executed events. It implements
// matching.Publisher (and is reused by the dead-letter handler for its
// FAILED status event) and deadletter.StatusPublisher.
type Publisher struct {
	producer Producer
	done     chan struct{}
}

// New starts the completion-draining goroutines and returns a ready
// Publisher. Callers must call Close during shutdown.
func New(producer Producer) *Publisher {
	p := &Publisher{producer: producer, done: make(chan struct{})}
	go p.drain()
	return p
}

func (p *Publisher) drain() {
	defer close(p.done)
	successes := p.producer.Successes()
	errs := p.producer.Errors()
	for successes != nil || errs != nil {
		select {
		case msg, ok := <-successes:
			if !ok {
				successes = nil
				continue
			}
			logger.Debug(context.Background(), "publish succeeded",
				zap.String("topic", msg.Topic), zap.Int64("offset", msg.Offset))
		case perr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Error(context.Background(), "publish failed",
				zap.String("topic", perr.Msg.Topic), zap.Error(perr.Err))
		}
	}
}

// Close closes the underlying producer and waits for the drain
// goroutine to observe both channels closing.
func (p *Publisher) Close() error {
	err := p.producer.Close()
	<-p.done
	return err
}

// PublishOrderStatus implements matching.Publisher. Marshal and enqueue
// (context) errors are returned to the caller; broker delivery failures
// arrive on the producer's Errors channel and are only logged.
func (p *Publisher) PublishOrderStatus(ctx context.Context, order models.Order, reason string) error {
	const op = "egress.Publisher.PublishOrderStatus"

	payload := events.OrderStatus{
		OrderID:           order.ID,
		UserID:            order.UserID,
		Symbol:            order.Symbol,
		Status:            statusString(order.Status),
		FilledQuantity:    order.FilledQuantity,
		RemainingQuantity: order.Remaining(),
		Timestamp:         time.Now().UTC(),
		Reason:            reason,
	}
	return p.publish(ctx, events.TopicOrderStatusUpdate, order.UserID.String(), payload, op)
}

// PublishOrderStatusWithError is used by the dead-letter handler to
// attach error_message on the PROCESSING_ERROR reason event.
func (p *Publisher) PublishOrderStatusWithError(ctx context.Context, order models.Order, reason, errMsg string) error {
	const op = "egress.Publisher.PublishOrderStatusWithError"

	payload := events.OrderStatus{
		OrderID:           order.ID,
		UserID:            order.UserID,
		Symbol:            order.Symbol,
		Status:            statusString(order.Status),
		FilledQuantity:    order.FilledQuantity,
		RemainingQuantity: order.Remaining(),
		Timestamp:         time.Now().UTC(),
		Reason:            reason,
		ErrorMessage:      &errMsg,
	}
	return p.publish(ctx, events.TopicOrderStatusUpdate, order.UserID.String(), payload, op)
}

// PublishTrade implements matching.Publisher. Trade events are
// already durable in the primary store by the time this is called; the
// wire event is informational, so failure is logged, not retried.
func (p *Publisher) PublishTrade(ctx context.Context, trade models.Trade, takerOrderID, makerOrderID int64) error {
	const op = "egress.Publisher.PublishTrade"

	payload := events.TradeExecuted{
		MessageID:    uuid.New(),
		Timestamp:    time.Now().UTC(),
		TradeID:      trade.ID,
		BuyOrderID:   trade.BuyOrderID,
		SellOrderID:  trade.SellOrderID,
		Symbol:       trade.Symbol,
		Price:        trade.Price,
		Quantity:     trade.Quantity,
		TakerOrderID: takerOrderID,
		MakerOrderID: makerOrderID,
	}
	return p.publish(ctx, events.TopicTradeOutput, trade.Symbol, payload, op)
}

func (p *Publisher) publish(ctx context.Context, topic, key string, payload interface{}, op string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", op, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(body),
	}

	select {
	case p.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
}

func statusString(s models.OrderStatus) string {
	switch s {
	case models.StatusPending:
		return "PENDING"
	case models.StatusOpen:
		return "OPEN"
	case models.StatusPartiallyFilled:
		return "PARTIALLY_FILLED"
	case models.StatusFilled:
		return "FILLED"
	case models.StatusCancelled:
		return "CANCELLED"
	case models.StatusRejected:
		return "REJECTED"
	case models.StatusFailed:
		return "FAILED"
	default:
		return "UNSPECIFIED"
	}
}
