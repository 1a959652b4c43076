package search

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCache(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewCacheFromClient(client, ttl, zap.NewNop()), mr
}

func TestCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	records := []Record{
		{ID: "r-1", Title: "First", Content: "cached content", Verified: true, Score: 0.8},
		{ID: "r-2", Title: "Second", Content: "more content", Tags: []string{"a", "b"}},
	}
	cache.Set(ctx, "semantic", "raft", 10, false, records)

	got, ok := cache.Get(ctx, "semantic", "raft", 10, false)
	require.True(t, ok)
	assert.Equal(t, records, got)
}

func TestCacheMissOnDifferentKey(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	cache.Set(ctx, "semantic", "raft", 10, false, []Record{{ID: "r-1"}})

	_, ok := cache.Get(ctx, "semantic", "raft", 10, true)
	assert.False(t, ok)
	_, ok = cache.Get(ctx, "fulltext", "raft", 10, false)
	assert.False(t, ok)
	_, ok = cache.Get(ctx, "semantic", "paxos", 10, false)
	assert.False(t, ok)
}

func TestCacheExpiry(t *testing.T) {
	cache, mr := newTestCache(t, time.Second)
	ctx := context.Background()

	cache.Set(ctx, "semantic", "raft", 10, false, []Record{{ID: "r-1"}})
	_, ok := cache.Get(ctx, "semantic", "raft", 10, false)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	_, ok = cache.Get(ctx, "semantic", "raft", 10, false)
	assert.False(t, ok)
}

func TestCacheCorruptPayloadIsMiss(t *testing.T) {
	cache, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, mr.Set(cacheKey("semantic", "raft", 10, false), "not json"))
	_, ok := cache.Get(ctx, "semantic", "raft", 10, false)
	assert.False(t, ok)
}

func TestCacheNilReceiverIsSafe(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	_, ok := cache.Get(ctx, "semantic", "raft", 10, false)
	assert.False(t, ok)
	cache.Set(ctx, "semantic", "raft", 10, false, []Record{{ID: "r-1"}})
	assert.NoError(t, cache.Close())
}
