package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nastyazhadan/matching-engine/internal/domain/apperrors"
	"github.com/nastyazhadan/matching-engine/internal/domain/models"
	"github.com/nastyazhadan/matching-engine/internal/repository/postgres/dto"
)

const orderColumns = `id, user_id, symbol, side, type, price, quantity, filled_quantity, status, created_at, updated_at`

// OrderStore is the orders table repository, used standalone by ingress
// (order lookup before dispatch) and the dead-letter handler (terminal
// status transition) independently of the match-commit transaction.
type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Insert creates the PENDING row for a newly accepted order and assigns
// its BIGSERIAL id.
func (s *OrderStore) Insert(ctx context.Context, order models.Order) (int64, error) {
	const op = "postgres.OrderStore.Insert"

	row := dto.FromOrder(order)

	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO orders (user_id, symbol, side, type, price, quantity, filled_quantity, status, created_at, updated_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
         RETURNING id`,
		row.UserID, row.Symbol, row.Side, row.Type, row.Price, row.Quantity, row.FilledQuantity, row.Status, row.CreatedAt, row.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// GetByID re-reads an order by its generated identity, the read-your-writes
// path the ingress dispatcher relies on after decoding an order_id off the
// wire (spec.md §3 Open Question (b)).
func (s *OrderStore) GetByID(ctx context.Context, id int64) (models.Order, error) {
	const op = "postgres.OrderStore.GetByID"

	rows, err := s.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	if err != nil {
		return models.Order{}, fmt.Errorf("%s: query: %w", op, err)
	}

	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[dto.Order])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Order{}, fmt.Errorf("%s: %w", op, apperrors.ErrNotFound)
		}
		return models.Order{}, fmt.Errorf("%s: collect: %w", op, err)
	}

	order, err := row.ToOrder()
	if err != nil {
		return models.Order{}, fmt.Errorf("%s: %w", op, err)
	}
	return order, nil
}

// UpdateStatus sets status (and updated_at) directly, bypassing the
// version-conditional book commit. Used by the dead-letter handler's
// PENDING-to-FAILED transition, which touches no book state.
func (s *OrderStore) UpdateStatus(ctx context.Context, id int64, status models.OrderStatus) error {
	const op = "postgres.OrderStore.UpdateStatus"

	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`,
		int16(status), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, apperrors.ErrNotFound)
	}
	return nil
}
