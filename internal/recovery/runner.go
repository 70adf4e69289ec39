// Package recovery implements the Recovery Runner described by
// spec.md §4.10: a boot-time, sequential-over-symbols reconciliation
// between the primary store and the cache, executed once before
// ingress is enabled.
package recovery

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nastyazhadan/matching-engine/internal/domain/models"
	logger "github.com/nastyazhadan/matching-engine/pkg/logging/zap"
)

// PrimaryStore is the slice of the primary store this runner exercises.
type PrimaryStore interface {
	ListSymbols(ctx context.Context) ([]string, error)
	Load(ctx context.Context, symbol string) (models.BookSnapshot, bool, error)
	Restore(ctx context.Context, symbol string, expectedVersion int64, snapshot models.BookSnapshot) (int64, time.Time, error)
}

// CacheStore is the slice of the cache repository this runner exercises.
type CacheStore interface {
	Ping(ctx context.Context) error
	ReadSnapshot(ctx context.Context, symbol string) (models.BookSnapshot, bool, error)
	WriteSnapshot(ctx context.Context, snap models.BookSnapshot) error
}

// Registrar records a symbol as needing periodic cache sync going
// forward; satisfied by cachesync.Registry.
type Registrar interface {
	Register(symbol string)
}

type Runner struct {
	primary   PrimaryStore
	cache     CacheStore
	registrar Registrar
}

func New(primary PrimaryStore, cache CacheStore, registrar Registrar) *Runner {
	return &Runner{primary: primary, cache: cache, registrar: registrar}
}

// Run reconciles every symbol present in the primary store, registering
// each for periodic sync regardless of outcome. It never returns an
// error for a single symbol's reconciliation failure — those are
// logged and skipped, since a boot-time recovery stall over one bad
// symbol should not block the rest from starting.
func (r *Runner) Run(ctx context.Context) error {
	const op = "recovery.Runner.Run"

	symbols, err := r.primary.ListSymbols(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for _, symbol := range symbols {
		r.reconcile(ctx, symbol)
		r.registrar.Register(symbol)
	}
	return nil
}

func (r *Runner) reconcile(ctx context.Context, symbol string) {
	if err := r.cache.Ping(ctx); err != nil {
		logger.Warn(ctx, "recovery: cache unreachable, falling back to primary", zap.String("symbol", symbol), zap.Error(err))
		return
	}

	primarySnap, primaryFound, err := r.primary.Load(ctx, symbol)
	if err != nil {
		logger.Error(ctx, "recovery: failed to load primary snapshot", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	cacheSnap, cacheFound, err := r.cache.ReadSnapshot(ctx, symbol)
	if err != nil {
		logger.Error(ctx, "recovery: failed to read cache snapshot", zap.String("symbol", symbol), zap.Error(err))
		return
	}

	switch {
	case !primaryFound && !cacheFound:
		return
	case primaryFound && !cacheFound:
		r.pushToCache(ctx, primarySnap)
	case !primaryFound && cacheFound:
		r.writeBackToPrimary(ctx, symbol, primarySnap.Version, cacheSnap)
	case newer(primarySnap, cacheSnap):
		r.pushToCache(ctx, primarySnap)
	default:
		r.writeBackToPrimary(ctx, symbol, primarySnap.Version, cacheSnap)
	}
}

// newer reports whether a is strictly newer than b: higher version, or
// equal version and a later updated_at.
func newer(a, b models.BookSnapshot) bool {
	if a.Version != b.Version {
		return a.Version > b.Version
	}
	return a.UpdatedAt.After(b.UpdatedAt)
}

func (r *Runner) pushToCache(ctx context.Context, snap models.BookSnapshot) {
	if err := r.cache.WriteSnapshot(ctx, snap); err != nil {
		logger.Error(ctx, "recovery: failed to push primary snapshot to cache", zap.String("symbol", snap.Symbol), zap.Error(err))
	}
}

// writeBackToPrimary persists the cache's snapshot back to the primary
// store: per spec.md §4.10 step 3, the incoming object's identity is
// the existing row's (symbol is already shared), its version is set to
// the primary row's current version so the conditional update succeeds
// and increments it by exactly one.
func (r *Runner) writeBackToPrimary(ctx context.Context, symbol string, currentPrimaryVersion int64, cacheSnap models.BookSnapshot) {
	toWrite := cacheSnap
	toWrite.Symbol = symbol

	if _, _, err := r.primary.Restore(ctx, symbol, currentPrimaryVersion, toWrite); err != nil {
		logger.Error(ctx, "recovery: failed to write cache snapshot back to primary", zap.String("symbol", symbol), zap.Error(err))
	}
}
