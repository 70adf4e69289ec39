package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nastyazhadan/matching-engine/internal/domain/apperrors"
	"github.com/nastyazhadan/matching-engine/internal/domain/models"
)

// BookStore is the order_books repository plus the transactional
// match/cancel commit path spec.md §4.4/§4.8 requires to be all-or-nothing.
// It implements the matching.BookLoader and matching.CommitStore
// interfaces so the coordinator can be wired directly to it.
type BookStore struct {
	pool *pgxpool.Pool
}

func NewBookStore(pool *pgxpool.Pool) *BookStore {
	return &BookStore{pool: pool}
}

// Load reads the current snapshot for symbol. found is false when the
// symbol has no order_books row yet, matching spec.md §3's "books are
// created lazily on first arrival" invariant.
func (s *BookStore) Load(ctx context.Context, symbol string) (models.BookSnapshot, bool, error) {
	const op = "postgres.BookStore.Load"

	var bidsJSON, asksJSON []byte
	var version int64
	var updatedAt time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT bids, asks, version, updated_at FROM order_books WHERE symbol = $1`,
		symbol,
	).Scan(&bidsJSON, &asksJSON, &version, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.BookSnapshot{}, false, nil
		}
		return models.BookSnapshot{}, false, fmt.Errorf("%s: %w", op, err)
	}

	snapshot, err := decodeSnapshot(symbol, bidsJSON, asksJSON, version, updatedAt)
	if err != nil {
		return models.BookSnapshot{}, false, fmt.Errorf("%s: %w", op, err)
	}
	return snapshot, true, nil
}

// ListSymbols returns every symbol with a durable book row; used by the
// boot-time recovery runner to discover what to reconcile.
func (s *BookStore) ListSymbols(ctx context.Context) ([]string, error) {
	const op = "postgres.BookStore.ListSymbols"

	rows, err := s.pool.Query(ctx, `SELECT symbol FROM order_books`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		symbols = append(symbols, symbol)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return symbols, nil
}

// CommitMatch implements matching.CommitStore: updates the taker and every
// maker row, inserts each trade, and conditionally upserts the order_books
// snapshot — all inside one transaction, so a version conflict leaves
// orders/trades untouched (spec.md §4.4's "all-or-nothing" requirement).
func (s *BookStore) CommitMatch(ctx context.Context, symbol string, expectedVersion int64, snapshot models.BookSnapshot, incoming models.Order, makers []models.Order, trades []models.Trade) ([]models.Trade, int64, time.Time, error) {
	const op = "postgres.BookStore.CommitMatch"

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, 0, time.Time{}, fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := updateOrder(ctx, tx, incoming); err != nil {
		return nil, 0, time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	for _, maker := range makers {
		if err := updateOrder(ctx, tx, maker); err != nil {
			return nil, 0, time.Time{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	committed := make([]models.Trade, len(trades))
	for i, trade := range trades {
		id, err := insertTrade(ctx, tx, trade)
		if err != nil {
			return nil, 0, time.Time{}, fmt.Errorf("%s: %w", op, err)
		}
		trade.ID = id
		committed[i] = trade
	}

	newVersion, updatedAt, err := upsertBook(ctx, tx, symbol, expectedVersion, snapshot)
	if err != nil {
		return nil, 0, time.Time{}, err // apperrors.ErrVersionConflict passes through unwrapped for errors.Is
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, time.Time{}, fmt.Errorf("%s: commit: %w", op, err)
	}
	return committed, newVersion, updatedAt, nil
}

// CommitCancel implements matching.CommitStore for the supplemental
// Cancel operation (SPEC_FULL.md §10): persists CANCELLED on the target
// order and upserts the book snapshot with the order removed, under the
// same version discipline as a match commit.
func (s *BookStore) CommitCancel(ctx context.Context, symbol string, expectedVersion int64, snapshot models.BookSnapshot, cancelled models.Order) (int64, time.Time, error) {
	const op = "postgres.BookStore.CommitCancel"

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := updateOrder(ctx, tx, cancelled); err != nil {
		return 0, time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	newVersion, updatedAt, err := upsertBook(ctx, tx, symbol, expectedVersion, snapshot)
	if err != nil {
		return 0, time.Time{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, time.Time{}, fmt.Errorf("%s: commit: %w", op, err)
	}
	return newVersion, updatedAt, nil
}

// Restore conditionally upserts symbol's book row with no accompanying
// order/trade changes, used by the boot-time recovery runner's
// cache-newer write-back path (spec.md §4.10 step 3): the runner sets
// expectedVersion to the primary row's current version before calling
// this, so the conditional update increments it by exactly one.
func (s *BookStore) Restore(ctx context.Context, symbol string, expectedVersion int64, snapshot models.BookSnapshot) (int64, time.Time, error) {
	const op = "postgres.BookStore.Restore"

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	newVersion, updatedAt, err := upsertBook(ctx, tx, symbol, expectedVersion, snapshot)
	if err != nil {
		return 0, time.Time{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, time.Time{}, fmt.Errorf("%s: commit: %w", op, err)
	}
	return newVersion, updatedAt, nil
}

// updateOrder persists the status/fill transition a match or cancel
// produced. order.UpdatedAt is not trusted here — models.Order.Fill
// leaves it untouched, so the write timestamp is taken at commit time
// instead, matching OrderStore.UpdateStatus's convention.
func updateOrder(ctx context.Context, tx pgx.Tx, order models.Order) error {
	_, err := tx.Exec(ctx,
		`UPDATE orders SET status = $1, filled_quantity = $2, updated_at = $3 WHERE id = $4`,
		int16(order.Status), order.FilledQuantity.String(), time.Now().UTC(), order.ID,
	)
	if err != nil {
		return fmt.Errorf("update order %d: %w", order.ID, err)
	}
	return nil
}

func insertTrade(ctx context.Context, tx pgx.Tx, trade models.Trade) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx,
		`INSERT INTO trades (buy_order_id, sell_order_id, symbol, price, quantity, created_at)
         VALUES ($1, $2, $3, $4, $5, $6)
         RETURNING id`,
		trade.BuyOrderID, trade.SellOrderID, trade.Symbol, trade.Price.String(), trade.Quantity.String(), trade.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert trade: %w", err)
	}
	return id, nil
}

// upsertBook persists the ladder state the caller already computed
// in-memory (the coordinator's post-match or post-cancel clone), under the
// `version = :expected` predicate spec.md §4.8 requires; a predicate miss
// returns apperrors.ErrVersionConflict for the coordinator to retry.
func upsertBook(ctx context.Context, tx pgx.Tx, symbol string, expectedVersion int64, snapshot models.BookSnapshot) (int64, time.Time, error) {
	bidsJSON, err := json.Marshal(snapshot.Bids)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("postgres.upsertBook: marshal bids: %w", err)
	}
	asksJSON, err := json.Marshal(snapshot.Asks)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("postgres.upsertBook: marshal asks: %w", err)
	}

	now := time.Now().UTC()

	var newVersion int64
	var updatedAt time.Time
	err = tx.QueryRow(ctx,
		`INSERT INTO order_books (symbol, bids, asks, version, updated_at)
         VALUES ($1, $2::jsonb, $3::jsonb, 1, $4)
         ON CONFLICT (symbol) DO UPDATE
           SET bids = EXCLUDED.bids, asks = EXCLUDED.asks,
               version = order_books.version + 1, updated_at = EXCLUDED.updated_at
           WHERE order_books.version = $5
         RETURNING version, updated_at`,
		symbol, bidsJSON, asksJSON, now, expectedVersion,
	).Scan(&newVersion, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, time.Time{}, apperrors.ErrVersionConflict
		}
		return 0, time.Time{}, fmt.Errorf("postgres.upsertBook: %w", err)
	}
	// The insert branch does not see $5: a missing row with a non-zero
	// expected version lands here at version 1 and is a predicate miss too.
	if newVersion != expectedVersion+1 {
		return 0, time.Time{}, apperrors.ErrVersionConflict
	}

	return newVersion, updatedAt, nil
}

func decodeSnapshot(symbol string, bidsJSON, asksJSON []byte, version int64, updatedAt time.Time) (models.BookSnapshot, error) {
	var snapshot models.BookSnapshot
	snapshot.Symbol = symbol
	snapshot.Version = version
	snapshot.UpdatedAt = updatedAt

	if err := json.Unmarshal(bidsJSON, &snapshot.Bids); err != nil {
		return models.BookSnapshot{}, fmt.Errorf("unmarshal bids: %w", err)
	}
	if err := json.Unmarshal(asksJSON, &snapshot.Asks); err != nil {
		return models.BookSnapshot{}, fmt.Errorf("unmarshal asks: %w", err)
	}
	return snapshot, nil
}
