// Package idempotency implements the two keyed "sent"/"processed" sets
// described by spec.md §4.7, backed by Redis with TTL expiry.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sentPrefix      = "idempotency:sent:"
	processedPrefix = "idempotency:processed:"

	// DefaultTTL matches the 24h window from spec.md §6.
	DefaultTTL = 24 * time.Hour
)

// client is the slice of redis.Cmdable this store exercises, kept
// narrow so a test fake does not need to implement the entire
// go-redis command surface.
type client interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

type Store struct {
	client client
	ttl    time.Duration
}

var ErrClientNil = errors.New("idempotency: nil redis client")

func New(c *redis.Client, ttl time.Duration) (*Store, error) {
	if c == nil {
		return nil, ErrClientNil
	}
	return newWithClient(c, ttl), nil
}

func newWithClient(c client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: c, ttl: ttl}
}

// RecordSent marks id as sent for orderID, called by the upstream
// producer before its publish. The core does not populate this set
// itself; it is exposed so an embedding producer process can share the
// same store instance.
func (s *Store) RecordSent(ctx context.Context, id string, orderID int64) error {
	const op = "idempotency.Store.RecordSent"

	if err := s.client.Set(ctx, sentPrefix+id, orderID, s.ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ContainsProcessed reports whether message_id id has already been
// recorded as processed.
func (s *Store) ContainsProcessed(ctx context.Context, id string) (bool, error) {
	const op = "idempotency.Store.ContainsProcessed"

	n, err := s.client.Exists(ctx, processedPrefix+id).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n > 0, nil
}

// MarkProcessed records id as processed for orderID with the store's TTL.
func (s *Store) MarkProcessed(ctx context.Context, id string, orderID int64) error {
	const op = "idempotency.Store.MarkProcessed"

	if err := s.client.Set(ctx, processedPrefix+id, orderID, s.ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RemoveProcessed deletes a processed marker; exposed for compensating
// tests and manual operational replay.
func (s *Store) RemoveProcessed(ctx context.Context, id string) error {
	const op = "idempotency.Store.RemoveProcessed"

	if err := s.client.Del(ctx, processedPrefix+id).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Ping probes store availability.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
