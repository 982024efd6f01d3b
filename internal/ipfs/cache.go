package ipfs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache stores fetched metadata documents keyed by content hash. Content
// is immutable by construction, so entries never need invalidation.
type Cache interface {
	Get(ctx context.Context, hash string) ([]byte, bool)
	Set(ctx context.Context, hash string, data []byte)
}

// MemoryCache caches documents in process memory.
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: make(map[string][]byte)}
}

func (c *MemoryCache) Get(_ context.Context, hash string) ([]byte, bool) {
	c.mu.RLock()
	data, ok := c.data[hash]
	c.mu.RUnlock()
	return data, ok
}

func (c *MemoryCache) Set(_ context.Context, hash string, data []byte) {
	c.mu.Lock()
	c.data[hash] = data
	c.mu.Unlock()
}

// RedisCache caches documents in Redis with a TTL. Cache errors are
// logged and treated as misses so Redis outages never fail a fetch.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, hash string) ([]byte, bool) {
	data, err := c.client.Get(ctx, cacheKey(hash)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("metadata cache read failed", zap.String("hash", hash), zap.Error(err))
		}
		return nil, false
	}
	return data, true
}

func (c *RedisCache) Set(ctx context.Context, hash string, data []byte) {
	if err := c.client.Set(ctx, cacheKey(hash), data, c.ttl).Err(); err != nil {
		c.logger.Warn("metadata cache write failed", zap.String("hash", hash), zap.Error(err))
	}
}

func cacheKey(hash string) string {
	return "ipfs:meta:" + hash
}
