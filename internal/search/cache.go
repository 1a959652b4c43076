package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/meridianhq/deepsearch/internal/metrics"
)

// Cache stores recent search results in Redis so repeated queries within a
// run burst do not hit the vector backend again.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewCache builds a Redis-backed result cache.
func NewCache(addr string, ttl time.Duration, logger *zap.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if ttl == 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{client: client, ttl: ttl, log: logger}, nil
}

// NewCacheFromClient wraps an existing Redis client (used by tests).
func NewCacheFromClient(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl == 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{client: client, ttl: ttl, log: logger}
}

func cacheKey(method, query string, limit int, verifiedOnly bool) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%t", method, query, limit, verifiedOnly)))
	return "deepsearch:search:" + hex.EncodeToString(sum[:16])
}

// Get returns cached records for the key, or (nil, false) on a miss. Redis
// errors are logged and treated as misses.
func (c *Cache) Get(ctx context.Context, method, query string, limit int, verifiedOnly bool) ([]Record, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, cacheKey(method, query, limit, verifiedOnly)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("search cache get failed", zap.Error(err))
		}
		metrics.CacheMisses.Inc()
		return nil, false
	}
	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		c.log.Warn("search cache payload corrupt", zap.Error(err))
		metrics.CacheMisses.Inc()
		return nil, false
	}
	metrics.CacheHits.Inc()
	return records, true
}

// Set stores records under the key. Failures are logged, never returned.
func (c *Cache) Set(ctx context.Context, method, query string, limit int, verifiedOnly bool, records []Record) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(method, query, limit, verifiedOnly), raw, c.ttl).Err(); err != nil {
		c.log.Warn("search cache set failed", zap.Error(err))
	}
}

// Close shuts down the Redis connection.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
