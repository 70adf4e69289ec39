// Package orderbook implements the priced, time-ordered bid/ask ladders
// that back one trading symbol's in-memory matching state. Each side is a
// B-tree keyed by price (google/btree, as in the pack's btree-based
// matcher) whose nodes hold a FIFO queue (container/list) of resting
// orders at that price, giving amortized O(1) head/tail access and
// O(log n) per-price insert/remove.
package orderbook

import (
	"container/list"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"github.com/nastyazhadan/matching-engine/internal/domain/models"
)

const btreeDegree = 32

// Book is the in-memory representation of one symbol's order book. It is
// not safe for use from more than one writer goroutine at a time; readers
// (depth queries, cancellation lookups) take the internal RWMutex.
type Book struct {
	Symbol    string
	Version   int64
	UpdatedAt time.Time

	mu   sync.RWMutex
	bids *btree.BTree
	asks *btree.BTree
}

// New returns an empty book for symbol at version 0.
func New(symbol string) *Book {
	return &Book{
		Symbol: symbol,
		bids:   btree.New(btreeDegree),
		asks:   btree.New(btreeDegree),
	}
}

type level struct {
	price  decimal.Decimal
	orders *list.List // of *models.Order
}

func newLevel(price decimal.Decimal) *level {
	return &level{price: price, orders: list.New()}
}

// bidItem orders descending (highest price first via Min()).
type bidItem struct{ level *level }

func (b bidItem) Less(than btree.Item) bool {
	return b.level.price.GreaterThan(than.(bidItem).level.price)
}

// askItem orders ascending (lowest price first via Min()).
type askItem struct{ level *level }

func (a askItem) Less(than btree.Item) bool {
	return a.level.price.LessThan(than.(askItem).level.price)
}

func (b *Book) ladder(side models.Side) *btree.BTree {
	if side == models.SideBuy {
		return b.bids
	}
	return b.asks
}

func keyItem(side models.Side, price decimal.Decimal) btree.Item {
	if side == models.SideBuy {
		return bidItem{level: &level{price: price}}
	}
	return askItem{level: &level{price: price}}
}

func levelOf(side models.Side, item btree.Item) *level {
	if side == models.SideBuy {
		return item.(bidItem).level
	}
	return item.(askItem).level
}

func wrap(side models.Side, lvl *level) btree.Item {
	if side == models.SideBuy {
		return bidItem{level: lvl}
	}
	return askItem{level: lvl}
}

// Insert appends order to the tail of its side's queue at its price,
// creating the price level if it is new.
func (b *Book) Insert(order models.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tree := b.ladder(order.Side)
	key := keyItem(order.Side, order.Price)

	existing := tree.Get(key)
	var lvl *level
	if existing != nil {
		lvl = levelOf(order.Side, existing)
	} else {
		lvl = newLevel(order.Price)
		tree.ReplaceOrInsert(wrap(order.Side, lvl))
	}

	o := order
	lvl.orders.PushBack(&o)
}

// RemoveHead removes and returns the first (oldest) order resting at
// price on side, dropping the price key if it becomes empty.
func (b *Book) RemoveHead(side models.Side, price decimal.Decimal) (models.Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tree := b.ladder(side)
	item := tree.Get(keyItem(side, price))
	if item == nil {
		return models.Order{}, false
	}

	lvl := levelOf(side, item)
	front := lvl.orders.Front()
	if front == nil {
		tree.Delete(keyItem(side, price))
		return models.Order{}, false
	}

	lvl.orders.Remove(front)
	if lvl.orders.Len() == 0 {
		tree.Delete(keyItem(side, price))
	}

	return *front.Value.(*models.Order), true
}

// RemoveByID scans the queue at price for orderID and removes it without
// disturbing FIFO order of the remaining entries. Used by cancellation,
// which can target any position; filled makers leave through RemoveHead.
func (b *Book) RemoveByID(side models.Side, price decimal.Decimal, orderID int64) (models.Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tree := b.ladder(side)
	item := tree.Get(keyItem(side, price))
	if item == nil {
		return models.Order{}, false
	}

	lvl := levelOf(side, item)
	for e := lvl.orders.Front(); e != nil; e = e.Next() {
		o := e.Value.(*models.Order)
		if o.ID == orderID {
			lvl.orders.Remove(e)
			if lvl.orders.Len() == 0 {
				tree.Delete(keyItem(side, price))
			}
			return *o, true
		}
	}

	return models.Order{}, false
}

// Front returns the order at the head of the queue at price on side
// without removing it, and whether the level is non-empty.
func (b *Book) Front(side models.Side, price decimal.Decimal) (*models.Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	item := b.ladder(side).Get(keyItem(side, price))
	if item == nil {
		return nil, false
	}
	lvl := levelOf(side, item)
	front := lvl.orders.Front()
	if front == nil {
		return nil, false
	}
	return front.Value.(*models.Order), true
}

// Best returns the best (first-key) price on side: lowest ask or
// highest bid.
func (b *Book) Best(side models.Side) (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	item := b.ladder(side).Min()
	if item == nil {
		return decimal.Zero, false
	}
	return levelOf(side, item).price, true
}

// BestBid, BestAsk, and Spread implement the depth-view convenience API.
func (b *Book) BestBid() (decimal.Decimal, bool) { return b.Best(models.SideBuy) }
func (b *Book) BestAsk() (decimal.Decimal, bool) { return b.Best(models.SideSell) }

func (b *Book) Spread() (decimal.Decimal, bool) {
	bid, ok1 := b.BestBid()
	ask, ok2 := b.BestAsk()
	if !ok1 || !ok2 {
		return decimal.Zero, false
	}
	return ask.Sub(bid), true
}

// Ascend iterates price keys on side in the ladder's natural priority
// order: for asks that is ascending price (lowest first); for bids the
// comparator is inverted (bidItem.Less) so the same Ascend traversal
// yields descending price (highest first), matching the OrderBook
// invariant that bids iterate highest-price first.
func (b *Book) Ascend(side models.Side, fn func(price decimal.Decimal, orders []models.Order) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	b.ladder(side).Ascend(func(item btree.Item) bool {
		lvl := levelOf(side, item)
		orders := make([]models.Order, 0, lvl.orders.Len())
		for e := lvl.orders.Front(); e != nil; e = e.Next() {
			orders = append(orders, *e.Value.(*models.Order))
		}
		return fn(lvl.price, orders)
	})
}

// ToSnapshot exports the book to its serializable form for persistence.
func (b *Book) ToSnapshot() models.BookSnapshot {
	snap := models.BookSnapshot{
		Symbol:    b.Symbol,
		Version:   b.Version,
		UpdatedAt: b.UpdatedAt,
	}
	b.Ascend(models.SideBuy, func(price decimal.Decimal, orders []models.Order) bool {
		snap.Bids = append(snap.Bids, models.PriceLevel{Price: price, Orders: orders})
		return true
	})
	b.Ascend(models.SideSell, func(price decimal.Decimal, orders []models.Order) bool {
		snap.Asks = append(snap.Asks, models.PriceLevel{Price: price, Orders: orders})
		return true
	})
	return snap
}

// Clone returns a deep copy of the book, used by the coordinator to run
// a speculative match attempt without mutating the authoritative
// in-memory state until persistence has confirmed it.
func (b *Book) Clone() *Book {
	return FromSnapshot(b.ToSnapshot())
}

// FromSnapshot rebuilds an in-memory Book from its serializable form,
// restoring ordering discipline on both sides and FIFO order within each
// price queue.
func FromSnapshot(snap models.BookSnapshot) *Book {
	b := New(snap.Symbol)
	b.Version = snap.Version
	b.UpdatedAt = snap.UpdatedAt

	for _, lvl := range snap.Bids {
		for _, o := range lvl.Orders {
			b.Insert(o)
		}
	}
	for _, lvl := range snap.Asks {
		for _, o := range lvl.Orders {
			b.Insert(o)
		}
	}

	return b
}
