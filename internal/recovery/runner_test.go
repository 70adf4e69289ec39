package recovery_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nastyazhadan/matching-engine/internal/domain/models"
	"github.com/nastyazhadan/matching-engine/internal/recovery"
)

type fakePrimary struct {
	symbols   []string
	snapshots map[string]models.BookSnapshot
	restored  map[string]models.BookSnapshot
	restoreErr error
}

func newFakePrimary() *fakePrimary {
	return &fakePrimary{snapshots: map[string]models.BookSnapshot{}, restored: map[string]models.BookSnapshot{}}
}

func (f *fakePrimary) ListSymbols(ctx context.Context) ([]string, error) { return f.symbols, nil }

func (f *fakePrimary) Load(ctx context.Context, symbol string) (models.BookSnapshot, bool, error) {
	s, ok := f.snapshots[symbol]
	return s, ok, nil
}

func (f *fakePrimary) Restore(ctx context.Context, symbol string, expectedVersion int64, snapshot models.BookSnapshot) (int64, time.Time, error) {
	if f.restoreErr != nil {
		return 0, time.Time{}, f.restoreErr
	}
	f.restored[symbol] = snapshot
	return expectedVersion + 1, time.Now(), nil
}

type fakeCache struct {
	pingErr   error
	snapshots map[string]models.BookSnapshot
	written   map[string]models.BookSnapshot
}

func newFakeCache() *fakeCache {
	return &fakeCache{snapshots: map[string]models.BookSnapshot{}, written: map[string]models.BookSnapshot{}}
}

func (f *fakeCache) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeCache) ReadSnapshot(ctx context.Context, symbol string) (models.BookSnapshot, bool, error) {
	s, ok := f.snapshots[symbol]
	return s, ok, nil
}

func (f *fakeCache) WriteSnapshot(ctx context.Context, snap models.BookSnapshot) error {
	f.written[snap.Symbol] = snap
	return nil
}

type fakeRegistrar struct {
	registered []string
}

func (f *fakeRegistrar) Register(symbol string) { f.registered = append(f.registered, symbol) }

func TestRunPushesPrimaryWhenOnlyPrimaryHasData(t *testing.T) {
	primary := newFakePrimary()
	primary.symbols = []string{"BTC-USD"}
	primary.snapshots["BTC-USD"] = models.BookSnapshot{Symbol: "BTC-USD", Version: 3}
	cache := newFakeCache()
	reg := &fakeRegistrar{}

	r := recovery.New(primary, cache, reg)
	require.NoError(t, r.Run(context.Background()))

	_, ok := cache.written["BTC-USD"]
	assert.True(t, ok)
	assert.Contains(t, reg.registered, "BTC-USD")
}

func TestRunWritesBackToPrimaryWhenCacheIsNewer(t *testing.T) {
	primary := newFakePrimary()
	primary.symbols = []string{"ETH-USD"}
	primary.snapshots["ETH-USD"] = models.BookSnapshot{Symbol: "ETH-USD", Version: 2, UpdatedAt: time.Unix(100, 0)}
	cache := newFakeCache()
	cache.snapshots["ETH-USD"] = models.BookSnapshot{Symbol: "ETH-USD", Version: 5, UpdatedAt: time.Unix(200, 0)}
	reg := &fakeRegistrar{}

	r := recovery.New(primary, cache, reg)
	require.NoError(t, r.Run(context.Background()))

	restored, ok := primary.restored["ETH-USD"]
	require.True(t, ok)
	assert.Equal(t, int64(5), restored.Version)
}

func TestRunPushesPrimaryWhenVersionsTieButPrimaryTimestampNewer(t *testing.T) {
	primary := newFakePrimary()
	primary.symbols = []string{"SOL-USD"}
	primary.snapshots["SOL-USD"] = models.BookSnapshot{Symbol: "SOL-USD", Version: 4, UpdatedAt: time.Unix(300, 0)}
	cache := newFakeCache()
	cache.snapshots["SOL-USD"] = models.BookSnapshot{Symbol: "SOL-USD", Version: 4, UpdatedAt: time.Unix(100, 0)}
	reg := &fakeRegistrar{}

	r := recovery.New(primary, cache, reg)
	require.NoError(t, r.Run(context.Background()))

	_, pushed := cache.written["SOL-USD"]
	assert.True(t, pushed)
	_, writtenBack := primary.restored["SOL-USD"]
	assert.False(t, writtenBack)
}

func TestRunSkipsReconciliationWhenCacheUnreachable(t *testing.T) {
	primary := newFakePrimary()
	primary.symbols = []string{"BTC-USD"}
	primary.snapshots["BTC-USD"] = models.BookSnapshot{Symbol: "BTC-USD", Version: 1}
	cache := newFakeCache()
	cache.pingErr = assertError{}
	reg := &fakeRegistrar{}

	r := recovery.New(primary, cache, reg)
	require.NoError(t, r.Run(context.Background()))

	assert.Empty(t, cache.written)
	assert.Contains(t, reg.registered, "BTC-USD")
}

type assertError struct{}

func (assertError) Error() string { return "cache unreachable" }
