package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	values map[string]interface{}
	pingErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{values: make(map[string]interface{})}
}

func (f *fakeClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	f.values[key] = value
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeClient) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

func (f *fakeClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			delete(f.values, k)
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

func (f *fakeClient) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if f.pingErr != nil {
		cmd.SetErr(f.pingErr)
		return cmd
	}
	cmd.SetVal("PONG")
	return cmd
}

func TestMarkAndContainsProcessed(t *testing.T) {
	store := newWithClient(newFakeClient(), time.Hour)
	ctx := context.Background()

	ok, err := store.ContainsProcessed(ctx, "msg-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.MarkProcessed(ctx, "msg-1", 42))

	ok, err = store.ContainsProcessed(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRemoveProcessed(t *testing.T) {
	store := newWithClient(newFakeClient(), time.Hour)
	ctx := context.Background()

	require.NoError(t, store.MarkProcessed(ctx, "msg-2", 7))
	require.NoError(t, store.RemoveProcessed(ctx, "msg-2"))

	ok, err := store.ContainsProcessed(ctx, "msg-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDefaultTTLAppliedWhenZero(t *testing.T) {
	store := newWithClient(newFakeClient(), 0)
	assert.Equal(t, DefaultTTL, store.ttl)
}
