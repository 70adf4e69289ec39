package cache

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/nastyazhadan/matching-engine/internal/domain/models"
)

// client is the narrow slice of redis.Cmdable BookCache exercises, kept
// small so tests can supply a fake rather than a live Redis connection —
// the same technique internal/idempotency uses.
type client interface {
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
	ZRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

type BookCache struct {
	client client
}

func New(c *redis.Client) *BookCache {
	return newWithClient(c)
}

func newWithClient(c client) *BookCache {
	return &BookCache{client: c}
}

// Ping probes cache availability; used by the cache-sync scheduler's
// per-tick skip-on-failure check and by boot-time recovery.
func (c *BookCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// WriteSnapshot atomically replaces symbol's cached ladder state: delete
// the price sets, any stale per-price lists, and metadata, then re-insert
// everything in one transactional pipeline, per spec.md §4.9's
// no-partial-visibility requirement.
func (c *BookCache) WriteSnapshot(ctx context.Context, snap models.BookSnapshot) error {
	const op = "cache.BookCache.WriteSnapshot"

	staleKeys, err := c.staleListKeys(ctx, snap.Symbol)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keyPrices(snap.Symbol, models.SideBuy), keyPrices(snap.Symbol, models.SideSell), keyMetadata(snap.Symbol))
		if len(staleKeys) > 0 {
			pipe.Del(ctx, staleKeys...)
		}

		queueLevels(ctx, pipe, snap.Symbol, models.SideBuy, snap.Bids)
		queueLevels(ctx, pipe, snap.Symbol, models.SideSell, snap.Asks)

		pipe.HSet(ctx, keyMetadata(snap.Symbol), map[string]interface{}{
			"version":    snap.Version,
			"updated_at": snap.UpdatedAt.Format(metadataTimeLayout),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func queueLevels(ctx context.Context, pipe redis.Pipeliner, symbol string, side models.Side, levels []models.PriceLevel) {
	if len(levels) == 0 {
		return
	}

	pricesKey := keyPrices(symbol, side)
	for _, lvl := range levels {
		priceStr := lvl.Price.String()
		pipe.ZAdd(ctx, pricesKey, redis.Z{Score: scoreFor(side, lvl.Price), Member: priceStr})

		if len(lvl.Orders) == 0 {
			continue
		}
		orderIDs := make([]interface{}, 0, len(lvl.Orders))
		for _, o := range lvl.Orders {
			orderIDs = append(orderIDs, o.ID)
			pipe.HSet(ctx, keyOrder(o.ID), orderFields(o))
		}
		pipe.RPush(ctx, keyPriceList(symbol, side, priceStr), orderIDs...)
	}
}

// staleListKeys reads the price members currently cached for symbol (on
// both sides) before the write transaction starts, so the transaction can
// delete the per-price list keys belonging to price levels that are about
// to disappear instead of leaving them orphaned.
func (c *BookCache) staleListKeys(ctx context.Context, symbol string) ([]string, error) {
	var keys []string
	for _, side := range []models.Side{models.SideBuy, models.SideSell} {
		members, err := c.client.ZRange(ctx, keyPrices(symbol, side), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("zrange %s: %w", keyPrices(symbol, side), err)
		}
		for _, price := range members {
			keys = append(keys, keyPriceList(symbol, side, price))
		}
	}
	return keys, nil
}

// ReadSnapshot rebuilds symbol's ladder from the cache. found is false
// when no metadata hash exists (symbol never cached, or evicted).
func (c *BookCache) ReadSnapshot(ctx context.Context, symbol string) (models.BookSnapshot, bool, error) {
	const op = "cache.BookCache.ReadSnapshot"

	meta, err := c.client.HGetAll(ctx, keyMetadata(symbol)).Result()
	if err != nil {
		return models.BookSnapshot{}, false, fmt.Errorf("%s: %w", op, err)
	}
	if len(meta) == 0 {
		return models.BookSnapshot{}, false, nil
	}

	snap := models.BookSnapshot{Symbol: symbol}
	if err := parseMetadata(meta, &snap); err != nil {
		return models.BookSnapshot{}, false, fmt.Errorf("%s: %w", op, err)
	}

	bids, err := c.readLevels(ctx, symbol, models.SideBuy)
	if err != nil {
		return models.BookSnapshot{}, false, fmt.Errorf("%s: %w", op, err)
	}
	asks, err := c.readLevels(ctx, symbol, models.SideSell)
	if err != nil {
		return models.BookSnapshot{}, false, fmt.Errorf("%s: %w", op, err)
	}
	snap.Bids = bids
	snap.Asks = asks

	return snap, true, nil
}

// readLevels scans the price sorted set in ascending score order, which
// under the §4.9 score convention yields each side's correct priority
// order (descending for bids, ascending for asks) without special-casing
// the traversal.
func (c *BookCache) readLevels(ctx context.Context, symbol string, side models.Side) ([]models.PriceLevel, error) {
	prices, err := c.client.ZRange(ctx, keyPrices(symbol, side), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange: %w", err)
	}

	levels := make([]models.PriceLevel, 0, len(prices))
	for _, priceStr := range prices {
		price, err := parseDecimal(priceStr)
		if err != nil {
			return nil, err
		}

		orderIDs, err := c.client.LRange(ctx, keyPriceList(symbol, side, priceStr), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("lrange: %w", err)
		}

		orders := make([]models.Order, 0, len(orderIDs))
		for _, idStr := range orderIDs {
			id, err := strconv.ParseInt(idStr, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse order id %q: %w", idStr, err)
			}
			fields, err := c.client.HGetAll(ctx, keyOrder(id)).Result()
			if err != nil {
				return nil, fmt.Errorf("hgetall order %s: %w", idStr, err)
			}
			order, err := orderFromFields(fields)
			if err != nil {
				return nil, fmt.Errorf("order %s: %w", idStr, err)
			}
			orders = append(orders, order)
		}

		levels = append(levels, models.PriceLevel{Price: price, Orders: orders})
	}
	return levels, nil
}
