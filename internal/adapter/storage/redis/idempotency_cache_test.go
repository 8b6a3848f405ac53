package redis

import (
	"context"
	"testing"
	"time"

	"subscription-ledger/internal/core/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIdempotencyCache(t *testing.T) (*IdempotencyCache, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewIdempotencyCache(client), s
}

func TestIdempotencyCache_ReceiptRoundTrip(t *testing.T) {
	cache, s := newIdempotencyCache(t)
	ctx := context.Background()
	key := domain.BuildPaymentIdempotencyKey(uuid.New(), uuid.New(), "invoice-7")
	receipt := []byte(`{"event_id":"abc","amount":100}`)

	got, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got, "unsettled pull has no receipt")

	require.NoError(t, cache.Set(ctx, key, receipt, 24*time.Hour))

	got, err = cache.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, receipt, got)
	assert.Equal(t, 24*time.Hour, s.TTL("ledger:payment:"+key))
}

func TestIdempotencyCache_ReceiptExpires(t *testing.T) {
	cache, s := newIdempotencyCache(t)
	ctx := context.Background()
	key := domain.BuildPaymentIdempotencyKey(uuid.New(), uuid.New(), "invoice-8")

	require.NoError(t, cache.Set(ctx, key, []byte(`{}`), time.Second))
	s.FastForward(2 * time.Second)

	got, err := cache.Get(ctx, key)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestIdempotencyCache_FirstWriteWins(t *testing.T) {
	cache, s := newIdempotencyCache(t)
	ctx := context.Background()
	key := domain.BuildPaymentIdempotencyKey(uuid.New(), uuid.New(), "invoice-9")

	require.NoError(t, cache.Set(ctx, key, []byte("first"), time.Hour))
	require.NoError(t, cache.Set(ctx, key, []byte("second"), time.Hour))

	got, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got)
	s.CheckGet(t, "ledger:payment:"+key, "first")
}

func TestIdempotencyCache_Unreachable(t *testing.T) {
	cache, s := newIdempotencyCache(t)
	s.Close()

	_, err := cache.Get(context.Background(), "k")
	assert.ErrorContains(t, err, "redis idempotency get")
	assert.ErrorContains(t, cache.Set(context.Background(), "k", []byte("v"), time.Minute), "redis idempotency set")
}
