// Package resilience wraps the Matching Coordinator's primary-store
// calls in a circuit breaker, so a failing Postgres instance fails fast
// after a threshold instead of hanging the per-symbol writer goroutine
// (spec.md §5's "no unbounded blocking inside the writer region").
// sony/gobreaker/v2 is declared in the teacher's shared/go.mod but never
// wired by the teacher's own code; this is where it is finally
// exercised.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/nastyazhadan/matching-engine/internal/domain/apperrors"
	"github.com/nastyazhadan/matching-engine/internal/domain/models"
	"github.com/nastyazhadan/matching-engine/internal/matching"
)

type Config struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	MaxFailures uint32
}

func (c Config) settings(name string) gobreaker.Settings {
	if c.MaxRequests == 0 {
		c.MaxRequests = 3
	}
	if c.Interval == 0 {
		c.Interval = 10 * time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MaxFailures == 0 {
		c.MaxFailures = 5
	}
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: c.MaxRequests,
		Interval:    c.Interval,
		Timeout:     c.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= c.MaxFailures
		},
		// A version conflict is the expected outcome of optimistic
		// concurrency under contention (spec.md §4.4/§5/§7), not a
		// primary-store health signal — it must not count toward
		// tripping the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, apperrors.ErrVersionConflict)
		},
	}
}

type loadResult struct {
	snapshot models.BookSnapshot
	found    bool
}

type matchResult struct {
	trades    []models.Trade
	version   int64
	updatedAt time.Time
}

type cancelResult struct {
	version   int64
	updatedAt time.Time
}

// Store decorates a matching.BookLoader/matching.CommitStore pair with
// one circuit breaker per operation, so a load storm doesn't trip the
// breaker used by commits and vice versa.
type Store struct {
	loader    matching.BookLoader
	committer matching.CommitStore

	loadCB   *gobreaker.CircuitBreaker[loadResult]
	matchCB  *gobreaker.CircuitBreaker[matchResult]
	cancelCB *gobreaker.CircuitBreaker[cancelResult]
}

// Wrap returns a Store that satisfies both matching.BookLoader and
// matching.CommitStore by delegating through a breaker per operation.
func Wrap(loader matching.BookLoader, committer matching.CommitStore, cfg Config) *Store {
	return &Store{
		loader:    loader,
		committer: committer,
		loadCB:    gobreaker.NewCircuitBreaker[loadResult](cfg.settings("primary-load")),
		matchCB:   gobreaker.NewCircuitBreaker[matchResult](cfg.settings("primary-commit-match")),
		cancelCB:  gobreaker.NewCircuitBreaker[cancelResult](cfg.settings("primary-commit-cancel")),
	}
}

func (s *Store) Load(ctx context.Context, symbol string) (models.BookSnapshot, bool, error) {
	const op = "resilience.Store.Load"

	res, err := s.loadCB.Execute(func() (loadResult, error) {
		snap, found, err := s.loader.Load(ctx, symbol)
		return loadResult{snapshot: snap, found: found}, err
	})
	if err != nil {
		return models.BookSnapshot{}, false, translate(op, err)
	}
	return res.snapshot, res.found, nil
}

func (s *Store) CommitMatch(ctx context.Context, symbol string, expectedVersion int64, snapshot models.BookSnapshot, incoming models.Order, makers []models.Order, trades []models.Trade) ([]models.Trade, int64, time.Time, error) {
	const op = "resilience.Store.CommitMatch"

	res, err := s.matchCB.Execute(func() (matchResult, error) {
		committed, version, updatedAt, err := s.committer.CommitMatch(ctx, symbol, expectedVersion, snapshot, incoming, makers, trades)
		return matchResult{trades: committed, version: version, updatedAt: updatedAt}, err
	})
	if err != nil {
		return nil, 0, time.Time{}, translate(op, err)
	}
	return res.trades, res.version, res.updatedAt, nil
}

func (s *Store) CommitCancel(ctx context.Context, symbol string, expectedVersion int64, snapshot models.BookSnapshot, cancelled models.Order) (int64, time.Time, error) {
	const op = "resilience.Store.CommitCancel"

	res, err := s.cancelCB.Execute(func() (cancelResult, error) {
		version, updatedAt, err := s.committer.CommitCancel(ctx, symbol, expectedVersion, snapshot, cancelled)
		return cancelResult{version: version, updatedAt: updatedAt}, err
	})
	if err != nil {
		return 0, time.Time{}, translate(op, err)
	}
	return res.version, res.updatedAt, nil
}

// translate passes a version conflict through unwrapped so the
// coordinator's errors.Is(err, apperrors.ErrVersionConflict) retry path
// keeps working; any breaker-originated rejection becomes a transient
// persistence error, and anything else passes through wrapped.
func translate(op string, err error) error {
	if errors.Is(err, apperrors.ErrVersionConflict) {
		return err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", op, apperrors.ErrTransientPersistence)
	}
	return fmt.Errorf("%s: %w", op, err)
}
