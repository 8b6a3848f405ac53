package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRateLimitStore(t *testing.T, now *time.Time) (*RateLimitStore, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRateLimitStore(client)
	store.now = func() time.Time { return *now }
	return store, s
}

func TestRateLimitStore_Allow(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	store, _ := newRateLimitStore(t, &now)
	ctx := context.Background()

	steps := []struct {
		key           string
		wantAllowed   bool
		wantRemaining int64
	}{
		{"owner-1:payments", true, 2},
		{"owner-1:payments", true, 1},
		{"owner-1:payments", true, 0},
		{"owner-1:payments", false, 0},
		{"owner-2:payments", true, 2},
	}
	for i, st := range steps {
		res, err := store.Allow(ctx, st.key, 3, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, st.wantAllowed, res.Allowed, "step %d", i)
		assert.Equal(t, st.wantRemaining, res.Remaining, "step %d", i)
		assert.Equal(t, int64(3), res.Limit)
		assert.Equal(t, (now.Unix()/60+1)*60, res.ResetAt)
	}
}

func TestRateLimitStore_NewWindowResets(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	store, _ := newRateLimitStore(t, &now)
	ctx := context.Background()

	_, err := store.Allow(ctx, "owner-1:auth_login", 1, time.Minute)
	require.NoError(t, err)
	res, err := store.Allow(ctx, "owner-1:auth_login", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	now = now.Add(time.Minute)
	res, err = store.Allow(ctx, "owner-1:auth_login", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRateLimitStore_CounterExpires(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	store, s := newRateLimitStore(t, &now)

	_, err := store.Allow(context.Background(), "owner-1:queries", 10, time.Minute)
	require.NoError(t, err)

	key := rateLimitPrefix + "owner-1:queries:" + "30000000"
	assert.True(t, s.Exists(key))
	assert.Equal(t, 61*time.Second, s.TTL(key))

	s.FastForward(62 * time.Second)
	assert.False(t, s.Exists(key))
}

func TestRateLimitStore_SubSecondWindow(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	store, _ := newRateLimitStore(t, &now)

	res, err := store.Allow(context.Background(), "k", 1, 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, now.Unix()+1, res.ResetAt)
}
