//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgContainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/nastyazhadan/matching-engine/internal/domain/apperrors"
	"github.com/nastyazhadan/matching-engine/internal/domain/models"
	"github.com/nastyazhadan/matching-engine/internal/repository/postgres"
	"github.com/nastyazhadan/matching-engine/migrations"
)

const (
	dbUser     = "test_user"
	dbPassword = "test_password"
	dbName     = "matching_engine_test"

	startupTimeout = 30 * time.Second
	suiteTimeout   = 2 * time.Minute
)

func newTestStore(t *testing.T) *postgres.PrimaryStore {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), suiteTimeout)
	t.Cleanup(cancel)

	container, err := pgContainer.Run(ctx,
		"postgres:17.0-alpine3.20",
		pgContainer.WithDatabase(dbName),
		pgContainer.WithUsername(dbUser),
		pgContainer.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(startupTimeout),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := postgres.NewPool(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	sqlDB := stdlib.OpenDBFromPool(pool)
	t.Cleanup(func() { _ = sqlDB.Close() })

	goose.SetBaseFS(migrations.Migrations)
	t.Cleanup(func() { goose.SetBaseFS(nil) })
	require.NoError(t, goose.SetDialect("postgres"))
	require.NoError(t, goose.UpContext(ctx, sqlDB, "."))

	return postgres.NewPrimaryStore(pool)
}

func TestPrimaryStore_InsertAndLoadOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	order := models.Order{
		UserID:    uuid.New(),
		Symbol:    "BTC-USD",
		Side:      models.SideBuy,
		Type:      models.OrderTypeLimit,
		Price:     decimal.RequireFromString("50000"),
		Quantity:  decimal.RequireFromString("1.0"),
		Status:    models.StatusPending,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	id, err := store.Insert(ctx, order)
	require.NoError(t, err)
	require.NotZero(t, id)

	got, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, order.Symbol, got.Symbol)
	require.True(t, order.Price.Equal(got.Price))
}

func TestPrimaryStore_GetByIDNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetByID(context.Background(), 999999)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPrimaryStore_CommitMatchIsAllOrNothingOnConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	taker := models.Order{
		UserID:    uuid.New(),
		Symbol:    "BTC-USD",
		Side:      models.SideBuy,
		Type:      models.OrderTypeLimit,
		Price:     decimal.RequireFromString("50000"),
		Quantity:  decimal.RequireFromString("1.0"),
		Status:    models.StatusPending,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	takerID, err := store.Insert(ctx, taker)
	require.NoError(t, err)
	taker.ID = takerID
	taker.Status = models.StatusFilled
	taker.FilledQuantity = taker.Quantity

	snapshot := models.BookSnapshot{Symbol: "BTC-USD"}

	// Wrong expected version (book row does not exist, so only 0 is valid).
	_, _, _, err = store.CommitMatch(ctx, "BTC-USD", 5, snapshot, taker, nil, nil)
	require.ErrorIs(t, err, apperrors.ErrVersionConflict)

	// The taker's status update must have been rolled back alongside the
	// failed book upsert.
	reread, err := store.GetByID(ctx, takerID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, reread.Status)
}
