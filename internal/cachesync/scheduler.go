// Package cachesync implements the scheduled push side of Cache
// Persistence & Sync (spec.md §4.9): a registry of symbols fed by the
// Matching Coordinator on first match, and a ticker-driven scheduler
// that pushes each registered symbol's primary-store snapshot into the
// cache every 5 seconds after a 10-second initial delay, skipping a
// tick when the cache is unreachable.
package cachesync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nastyazhadan/matching-engine/internal/domain/models"
	logger "github.com/nastyazhadan/matching-engine/pkg/logging/zap"
)

// DefaultInterval and DefaultInitialDelay match cache.sync.interval and
// cache.sync.initial_delay's stated spec.md §4.9 values.
const (
	DefaultInterval     = 5 * time.Second
	DefaultInitialDelay = 10 * time.Second
)

// Registry is the set of symbols registered for periodic sync. It
// implements matching.Registrar and recovery.Registrar.
type Registry struct {
	mu      sync.Mutex
	symbols map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{symbols: make(map[string]struct{})}
}

// Register adds symbol to the sync set. Idempotent.
func (r *Registry) Register(symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.symbols[symbol] = struct{}{}
}

// Symbols returns a snapshot of the currently registered symbols.
func (r *Registry) Symbols() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.symbols))
	for s := range r.symbols {
		out = append(out, s)
	}
	return out
}

// PrimaryLoader reads a symbol's durable book snapshot, the same
// interface the coordinator uses against the primary store.
type PrimaryLoader interface {
	Load(ctx context.Context, symbol string) (models.BookSnapshot, bool, error)
}

// CacheWriter is the slice of the cache repository the scheduler drives.
type CacheWriter interface {
	Ping(ctx context.Context) error
	WriteSnapshot(ctx context.Context, snap models.BookSnapshot) error
}

type Config struct {
	Interval     time.Duration
	InitialDelay time.Duration
}

// Scheduler drives the periodic push described above.
type Scheduler struct {
	registry *Registry
	primary  PrimaryLoader
	cache    CacheWriter
	cfg      Config

	stop chan struct{}
	done chan struct{}
}

func New(registry *Registry, primary PrimaryLoader, cache CacheWriter, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultInitialDelay
	}
	return &Scheduler{
		registry: registry,
		primary:  primary,
		cache:    cache,
		cfg:      cfg,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start blocks, ticking until ctx is cancelled or Stop is called.
// Callers run it in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	defer close(s.done)

	select {
	case <-time.After(s.cfg.InitialDelay):
	case <-ctx.Done():
		return
	case <-s.stop:
		return
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		}
	}
}

// Stop signals Start to return and waits for it to do so.
func (s *Scheduler) Stop(ctx context.Context) error {
	close(s.stop)
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// tick probes cache availability once and, if reachable, pushes every
// registered symbol's current primary snapshot. A probe failure skips
// the entire tick, per spec.md §4.9.
func (s *Scheduler) tick(ctx context.Context) {
	if err := s.cache.Ping(ctx); err != nil {
		logger.Warn(ctx, "cache unreachable, skipping sync tick", zap.Error(err))
		return
	}

	for _, symbol := range s.registry.Symbols() {
		s.pushSymbol(ctx, symbol)
	}
}

func (s *Scheduler) pushSymbol(ctx context.Context, symbol string) {
	snap, found, err := s.primary.Load(ctx, symbol)
	if err != nil {
		logger.Error(ctx, "cache sync: failed to load primary snapshot", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	if !found {
		return
	}
	if err := s.cache.WriteSnapshot(ctx, snap); err != nil {
		logger.Error(ctx, "cache sync: failed to write snapshot", zap.String("symbol", symbol), zap.Error(err))
	}
}
