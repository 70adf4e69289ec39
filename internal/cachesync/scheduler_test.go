package cachesync_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nastyazhadan/matching-engine/internal/cachesync"
	"github.com/nastyazhadan/matching-engine/internal/domain/models"
)

type fakePrimary struct {
	mu   sync.Mutex
	snap map[string]models.BookSnapshot
}

func newFakePrimary() *fakePrimary { return &fakePrimary{snap: map[string]models.BookSnapshot{}} }

func (f *fakePrimary) set(symbol string, version int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap[symbol] = models.BookSnapshot{Symbol: symbol, Version: version}
}

func (f *fakePrimary) Load(ctx context.Context, symbol string) (models.BookSnapshot, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.snap[symbol]
	return s, ok, nil
}

type fakeCache struct {
	mu       sync.Mutex
	pingErr  error
	written  []models.BookSnapshot
}

func (f *fakeCache) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeCache) WriteSnapshot(ctx context.Context, snap models.BookSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, snap)
	return nil
}

func (f *fakeCache) writtenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.written)
}

func TestSchedulerPushesRegisteredSymbolsAfterInitialDelay(t *testing.T) {
	registry := cachesync.NewRegistry()
	registry.Register("BTC-USD")

	primary := newFakePrimary()
	primary.set("BTC-USD", 1)
	cache := &fakeCache{}

	sched := cachesync.New(registry, primary, cache, cachesync.Config{
		Interval:     20 * time.Millisecond,
		InitialDelay: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	go sched.Start(ctx)

	require.Eventually(t, func() bool { return cache.writtenCount() > 0 }, 500*time.Millisecond, 5*time.Millisecond)
}

func TestSchedulerSkipsTickOnProbeFailure(t *testing.T) {
	registry := cachesync.NewRegistry()
	registry.Register("ETH-USD")

	primary := newFakePrimary()
	primary.set("ETH-USD", 1)
	cache := &fakeCache{pingErr: assertErr}

	sched := cachesync.New(registry, primary, cache, cachesync.Config{
		Interval:     10 * time.Millisecond,
		InitialDelay: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	sched.Start(ctx)

	assert.Equal(t, 0, cache.writtenCount())
}

var assertErr = assertError{}

type assertError struct{}

func (assertError) Error() string { return "cache unreachable" }

func TestStopReturnsBeforeTimeout(t *testing.T) {
	registry := cachesync.NewRegistry()
	primary := newFakePrimary()
	cache := &fakeCache{}

	sched := cachesync.New(registry, primary, cache, cachesync.Config{
		Interval:     time.Second,
		InitialDelay: time.Hour,
	})

	go sched.Start(context.Background())

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sched.Stop(stopCtx))
}
