// Package postgres is the primary store: orders, trades, and order_books
// rows behind jackc/pgx/v5, grounded on the teacher's
// shared/infra/postgres and orderService/internal/infrastructure/postgres
// packages.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool opens and pings a pgxpool.Pool against dsn.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.NewPool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.NewPool: ping: %w", err)
	}
	return pool, nil
}
