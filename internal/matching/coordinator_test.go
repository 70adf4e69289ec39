package matching_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nastyazhadan/matching-engine/internal/domain/apperrors"
	"github.com/nastyazhadan/matching-engine/internal/domain/models"
	"github.com/nastyazhadan/matching-engine/internal/matching"
	"github.com/nastyazhadan/matching-engine/internal/orderbook"
)

// fakeLoader hands back a canned snapshot (or "not found") for every
// symbol it is asked to load.
type fakeLoader struct {
	mu        sync.Mutex
	snapshots map[string]models.BookSnapshot
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{snapshots: make(map[string]models.BookSnapshot)}
}

func (f *fakeLoader) Load(_ context.Context, symbol string) (models.BookSnapshot, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.snapshots[symbol]
	return snap, ok, nil
}

func (f *fakeLoader) seed(book *orderbook.Book) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[book.Symbol] = book.ToSnapshot()
}

// fakeCommitter simulates the version-conditional primary store commit.
// conflictsRemaining lets a test force N consecutive ErrVersionConflict
// responses before a commit finally succeeds.
type fakeCommitter struct {
	mu                 sync.Mutex
	version            int64
	conflictsRemaining int
	commits            int
	cancels            int
}

func (f *fakeCommitter) CommitMatch(_ context.Context, _ string, expectedVersion int64, _ models.BookSnapshot, _ models.Order, _ []models.Order, trades []models.Trade) ([]models.Trade, int64, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits++

	if f.conflictsRemaining > 0 {
		f.conflictsRemaining--
		return nil, 0, time.Time{}, apperrors.ErrVersionConflict
	}
	if expectedVersion != f.version {
		return nil, 0, time.Time{}, apperrors.ErrVersionConflict
	}
	f.version++
	return trades, f.version, time.Now(), nil
}

func (f *fakeCommitter) CommitCancel(_ context.Context, _ string, expectedVersion int64, _ models.BookSnapshot, _ models.Order) (int64, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++

	if f.conflictsRemaining > 0 {
		f.conflictsRemaining--
		return 0, time.Time{}, apperrors.ErrVersionConflict
	}
	if expectedVersion != f.version {
		return 0, time.Time{}, apperrors.ErrVersionConflict
	}
	f.version++
	return f.version, time.Now(), nil
}

// fakePublisher records every event handed to it; PublishOrderStatus can
// be made to fail to verify publish errors never propagate.
type fakePublisher struct {
	mu           sync.Mutex
	statuses     []models.Order
	trades       []models.Trade
	statusErr    error
}

func (f *fakePublisher) PublishOrderStatus(_ context.Context, order models.Order, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, order)
	return f.statusErr
}

func (f *fakePublisher) PublishTrade(_ context.Context, trade models.Trade, _, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trades = append(f.trades, trade)
	return nil
}

func (f *fakePublisher) statusCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.statuses)
}

// fakeRegistrar records which symbols were registered for cache sync.
type fakeRegistrar struct {
	mu      sync.Mutex
	symbols map[string]int
}

func newFakeRegistrar() *fakeRegistrar {
	return &fakeRegistrar{symbols: make(map[string]int)}
}

func (f *fakeRegistrar) Register(symbol string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.symbols[symbol]++
}

func noBackoff(int) time.Duration { return time.Millisecond }

func TestCoordinator_ProcessSuccessPath(t *testing.T) {
	loader := newFakeLoader()
	committer := &fakeCommitter{}
	publisher := &fakePublisher{}
	registrar := newFakeRegistrar()

	book := orderbook.New("BTC-USD")
	book.Insert(restingOrder(1, models.SideSell, "50000", "1.0"))
	loader.seed(book)

	coord := matching.NewCoordinator(loader, committer, publisher, registrar, matching.Config{RetryBackoff: noBackoff})

	err := coord.Process(context.Background(), incomingLimit(2, models.SideBuy, "50000", "1.0"))
	require.NoError(t, err)

	assert.Equal(t, 1, committer.commits)
	assert.Equal(t, int64(1), committer.version)
	assert.Equal(t, 1, registrar.symbols["BTC-USD"])
	assert.NotZero(t, publisher.statusCount())
}

func TestCoordinator_RetriesOnVersionConflictThenSucceeds(t *testing.T) {
	loader := newFakeLoader()
	committer := &fakeCommitter{conflictsRemaining: 2}
	publisher := &fakePublisher{}
	registrar := newFakeRegistrar()

	book := orderbook.New("BTC-USD")
	book.Insert(restingOrder(1, models.SideSell, "50000", "1.0"))
	loader.seed(book)

	coord := matching.NewCoordinator(loader, committer, publisher, registrar, matching.Config{
		MaxVersionRetries: 3,
		RetryBackoff:      noBackoff,
	})

	err := coord.Process(context.Background(), incomingLimit(2, models.SideBuy, "50000", "1.0"))
	require.NoError(t, err)
	assert.Equal(t, 3, committer.commits) // two conflicts, one success
}

func TestCoordinator_RetriesExhaustedReturnsPersistenceConflict(t *testing.T) {
	loader := newFakeLoader()
	committer := &fakeCommitter{conflictsRemaining: 100}
	publisher := &fakePublisher{}
	registrar := newFakeRegistrar()

	book := orderbook.New("BTC-USD")
	book.Insert(restingOrder(1, models.SideSell, "50000", "1.0"))
	loader.seed(book)

	coord := matching.NewCoordinator(loader, committer, publisher, registrar, matching.Config{
		MaxVersionRetries: 2,
		RetryBackoff:      noBackoff,
	})

	err := coord.Process(context.Background(), incomingLimit(2, models.SideBuy, "50000", "1.0"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrPersistenceConflict))
}

func TestCoordinator_InvalidOrderType(t *testing.T) {
	loader := newFakeLoader()
	committer := &fakeCommitter{}
	publisher := &fakePublisher{}
	registrar := newFakeRegistrar()

	coord := matching.NewCoordinator(loader, committer, publisher, registrar, matching.Config{RetryBackoff: noBackoff})

	bad := incomingLimit(1, models.SideBuy, "50000", "1.0")
	bad.Type = models.OrderTypeUnspecified

	err := coord.Process(context.Background(), bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidOrderType))
}

func TestCoordinator_PublishFailureDoesNotFailProcess(t *testing.T) {
	loader := newFakeLoader()
	committer := &fakeCommitter{}
	publisher := &fakePublisher{statusErr: errors.New("broker unreachable")}
	registrar := newFakeRegistrar()

	book := orderbook.New("BTC-USD")
	book.Insert(restingOrder(1, models.SideSell, "50000", "1.0"))
	loader.seed(book)

	coord := matching.NewCoordinator(loader, committer, publisher, registrar, matching.Config{RetryBackoff: noBackoff})

	err := coord.Process(context.Background(), incomingLimit(2, models.SideBuy, "50000", "1.0"))
	require.NoError(t, err)
}

// Scenario 7: cancel a resting order, then verify a second cancel of the
// same (now terminal) order fails deterministically.
func TestCoordinator_CancelRestingOrderThenRejectsSecondCancel(t *testing.T) {
	loader := newFakeLoader()
	committer := &fakeCommitter{}
	publisher := &fakePublisher{}
	registrar := newFakeRegistrar()

	resting := restingOrder(1, models.SideSell, "50000", "1.0")
	book := orderbook.New("BTC-USD")
	book.Insert(resting)
	loader.seed(book)

	coord := matching.NewCoordinator(loader, committer, publisher, registrar, matching.Config{RetryBackoff: noBackoff})

	err := coord.Cancel(context.Background(), resting)
	require.NoError(t, err)
	assert.Equal(t, 1, committer.cancels)

	_, ok := loader.snapshots["BTC-USD"] // cache untouched; coordinator owns in-memory book
	require.True(t, ok)

	cancelled := resting
	cancelled.Status = models.StatusCancelled
	err = coord.Cancel(context.Background(), cancelled)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyTerminal))
}

func TestCoordinator_CancelUnknownOrderReturnsNotFound(t *testing.T) {
	loader := newFakeLoader()
	committer := &fakeCommitter{}
	publisher := &fakePublisher{}
	registrar := newFakeRegistrar()

	book := orderbook.New("BTC-USD")
	loader.seed(book)

	coord := matching.NewCoordinator(loader, committer, publisher, registrar, matching.Config{RetryBackoff: noBackoff})

	ghost := restingOrder(99, models.SideSell, "50000", "1.0")
	err := coord.Cancel(context.Background(), ghost)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}
