package matching

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nastyazhadan/matching-engine/internal/domain/apperrors"
	"github.com/nastyazhadan/matching-engine/internal/domain/models"
	"github.com/nastyazhadan/matching-engine/internal/orderbook"
	logger "github.com/nastyazhadan/matching-engine/pkg/logging/zap"
)

// BookLoader reads the current durable state of one symbol's book. Found
// is false when the symbol has never been persisted; the coordinator
// then starts it at an empty book, version 0.
type BookLoader interface {
	Load(ctx context.Context, symbol string) (snapshot models.BookSnapshot, found bool, err error)
}

// CommitStore persists a match or cancellation result atomically,
// conditional on expectedVersion. A version mismatch is surfaced as
// apperrors.ErrVersionConflict.
type CommitStore interface {
	CommitMatch(ctx context.Context, symbol string, expectedVersion int64, snapshot models.BookSnapshot, incoming models.Order, makers []models.Order, trades []models.Trade) (committedTrades []models.Trade, newVersion int64, updatedAt time.Time, err error)
	CommitCancel(ctx context.Context, symbol string, expectedVersion int64, snapshot models.BookSnapshot, cancelled models.Order) (newVersion int64, updatedAt time.Time, err error)
}

// Publisher emits the egress events described by spec.md §4.6. Failures
// are logged, never propagated: emission is best-effort.
type Publisher interface {
	PublishOrderStatus(ctx context.Context, order models.Order, reason string) error
	PublishTrade(ctx context.Context, trade models.Trade, takerOrderID, makerOrderID int64) error
}

// Registrar records a symbol as needing periodic cache sync. Idempotent.
type Registrar interface {
	Register(symbol string)
}

type Config struct {
	MaxVersionRetries int
	RetryBackoff      func(attempt int) time.Duration
}

func DefaultBackoff(attempt int) time.Duration {
	return time.Duration(attempt+1) * 20 * time.Millisecond
}

// Coordinator is the single entry point described by spec.md §4.4: one
// operation, Process, plus the supplemental Cancel this core adds (see
// SPEC_FULL.md §10). It keeps one in-memory orderbook.Book per symbol and
// serializes all mutation of that book through a per-symbol worker
// goroutine.
type Coordinator struct {
	mu      sync.Mutex
	books   map[string]*orderbook.Book
	workers map[string]*symbolWorker

	loader    BookLoader
	committer CommitStore
	publisher Publisher
	registrar Registrar

	maxRetries int
	backoff    func(attempt int) time.Duration
}

func NewCoordinator(loader BookLoader, committer CommitStore, publisher Publisher, registrar Registrar, cfg Config) *Coordinator {
	if cfg.MaxVersionRetries <= 0 {
		cfg.MaxVersionRetries = 3
	}
	if cfg.RetryBackoff == nil {
		cfg.RetryBackoff = DefaultBackoff
	}

	return &Coordinator{
		books:      make(map[string]*orderbook.Book),
		workers:    make(map[string]*symbolWorker),
		loader:     loader,
		committer:  committer,
		publisher:  publisher,
		registrar:  registrar,
		maxRetries: cfg.MaxVersionRetries,
		backoff:    cfg.RetryBackoff,
	}
}

func (c *Coordinator) workerFor(symbol string) *symbolWorker {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.workers[symbol]
	if !ok {
		w = newSymbolWorker()
		c.workers[symbol] = w
	}
	return w
}

// Stop drains and stops every per-symbol worker; used during graceful
// shutdown.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	workers := make([]*symbolWorker, 0, len(c.workers))
	for _, w := range c.workers {
		workers = append(workers, w)
	}
	c.mu.Unlock()

	for _, w := range workers {
		w.stop()
	}
}

func (c *Coordinator) cachedBook(symbol string) (*orderbook.Book, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.books[symbol]
	return b, ok
}

func (c *Coordinator) setBook(symbol string, b *orderbook.Book) {
	c.mu.Lock()
	c.books[symbol] = b
	c.mu.Unlock()
}

// bookFor returns the coordinator's cached book for symbol, loading it
// from the primary store (or creating an empty one) the first time the
// symbol is seen.
func (c *Coordinator) bookFor(ctx context.Context, symbol string) (*orderbook.Book, error) {
	if b, ok := c.cachedBook(symbol); ok {
		return b, nil
	}

	b, err := c.reload(ctx, symbol)
	if err != nil {
		return nil, err
	}
	c.setBook(symbol, b)
	return b, nil
}

// reload always hits the primary store, bypassing the in-memory cache;
// used on first sight of a symbol and again after a version conflict.
func (c *Coordinator) reload(ctx context.Context, symbol string) (*orderbook.Book, error) {
	const op = "Coordinator.reload"

	snapshot, found, err := c.loader.Load(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, apperrors.ErrUpstreamUnavailable)
	}
	if !found {
		return orderbook.New(symbol), nil
	}
	return orderbook.FromSnapshot(snapshot), nil
}

// Process implements spec.md §4.4: load-or-create the book, enter the
// per-symbol writer region, match, persist with bounded retry on version
// conflict, then emit events best-effort.
func (c *Coordinator) Process(ctx context.Context, order models.Order) error {
	worker := c.workerFor(order.Symbol)

	resultCh := make(chan error, 1)
	worker.submit(func() {
		resultCh <- c.process(ctx, order)
	})

	select {
	case err := <-resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) process(ctx context.Context, incoming models.Order) error {
	const op = "Coordinator.process"

	strategy, ok := ForType(incoming.Type)
	if !ok {
		return fmt.Errorf("%s: %w", op, apperrors.ErrInvalidOrderType)
	}

	book, err := c.bookFor(ctx, incoming.Symbol)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		clone := book.Clone()

		result, err := strategy.Match(ctx, incoming.Clone(), clone)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		trades, newVersion, updatedAt, err := c.committer.CommitMatch(ctx, incoming.Symbol, clone.Version, clone.ToSnapshot(), result.Order, result.Makers, result.Trades)
		if errors.Is(err, apperrors.ErrVersionConflict) {
			if attempt == c.maxRetries {
				return fmt.Errorf("%s: %w", op, apperrors.ErrPersistenceConflict)
			}
			logger.Warn(ctx, "order book version conflict, retrying",
				zap.String("symbol", incoming.Symbol), zap.Int("attempt", attempt))
			time.Sleep(c.backoff(attempt))

			fresh, rerr := c.reload(ctx, incoming.Symbol)
			if rerr != nil {
				return fmt.Errorf("%s: %w", op, rerr)
			}
			c.setBook(incoming.Symbol, fresh)
			book = fresh
			continue
		}
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		clone.Version = newVersion
		clone.UpdatedAt = updatedAt
		c.setBook(incoming.Symbol, clone)
		c.registrar.Register(incoming.Symbol)

		c.publishMatch(ctx, result.Order, result.Makers, trades)
		return nil
	}

	return fmt.Errorf("%s: %w", op, apperrors.ErrPersistenceConflict)
}

func (c *Coordinator) publishMatch(ctx context.Context, incoming models.Order, makers []models.Order, trades []models.Trade) {
	if err := c.publisher.PublishOrderStatus(ctx, incoming, eventReasonMatched); err != nil {
		logger.Error(ctx, "failed to publish order status", zap.Int64("order_id", incoming.ID), zap.Error(err))
	}

	for i, trade := range trades {
		var makerID int64
		if i < len(makers) {
			makerID = makers[i].ID
		}
		if err := c.publisher.PublishTrade(ctx, trade, incoming.ID, makerID); err != nil {
			logger.Error(ctx, "failed to publish trade", zap.Int64("trade_id", trade.ID), zap.Error(err))
		}
	}

	for _, maker := range makers {
		if err := c.publisher.PublishOrderStatus(ctx, maker, eventReasonMatched); err != nil {
			logger.Error(ctx, "failed to publish maker status", zap.Int64("order_id", maker.ID), zap.Error(err))
		}
	}
}

// Cancel removes order from its resting ladder (MARKET orders never rest
// and so can never be cancelled) and persists CANCELLED with the same
// version-conditional retry as Process.
func (c *Coordinator) Cancel(ctx context.Context, order models.Order) error {
	worker := c.workerFor(order.Symbol)

	resultCh := make(chan error, 1)
	worker.submit(func() {
		resultCh <- c.cancel(ctx, order)
	})

	select {
	case err := <-resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) cancel(ctx context.Context, target models.Order) error {
	const op = "Coordinator.cancel"

	if target.Status.Terminal() {
		return fmt.Errorf("%s: %w", op, apperrors.ErrAlreadyTerminal)
	}

	book, err := c.bookFor(ctx, target.Symbol)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		clone := book.Clone()

		removed, ok := clone.RemoveByID(target.Side, target.Price, target.ID)
		if !ok {
			return fmt.Errorf("%s: %w", op, apperrors.ErrNotFound)
		}

		removed.Status = models.StatusCancelled

		newVersion, updatedAt, err := c.committer.CommitCancel(ctx, target.Symbol, clone.Version, clone.ToSnapshot(), removed)
		if errors.Is(err, apperrors.ErrVersionConflict) {
			if attempt == c.maxRetries {
				return fmt.Errorf("%s: %w", op, apperrors.ErrPersistenceConflict)
			}
			time.Sleep(c.backoff(attempt))

			fresh, rerr := c.reload(ctx, target.Symbol)
			if rerr != nil {
				return fmt.Errorf("%s: %w", op, rerr)
			}
			c.setBook(target.Symbol, fresh)
			book = fresh
			continue
		}
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		clone.Version = newVersion
		clone.UpdatedAt = updatedAt
		c.setBook(target.Symbol, clone)
		c.registrar.Register(target.Symbol)

		if pubErr := c.publisher.PublishOrderStatus(ctx, removed, eventReasonCancelled); pubErr != nil {
			logger.Error(ctx, "failed to publish cancel status", zap.Int64("order_id", removed.ID), zap.Error(pubErr))
		}
		return nil
	}

	return fmt.Errorf("%s: %w", op, apperrors.ErrPersistenceConflict)
}

const (
	eventReasonMatched   = "MATCHED"
	eventReasonCancelled = "CANCELLED"
)
