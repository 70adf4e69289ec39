package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// PrimaryStore bundles the orders and order_books repositories behind the
// one pool, the shape internal/app wires into the coordinator, ingress,
// and dead-letter handler.
type PrimaryStore struct {
	*OrderStore
	*BookStore
}

func NewPrimaryStore(pool *pgxpool.Pool) *PrimaryStore {
	return &PrimaryStore{
		OrderStore: NewOrderStore(pool),
		BookStore:  NewBookStore(pool),
	}
}
