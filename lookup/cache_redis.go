package lookup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCache implements ArtifactCache against a redis client, the shape
// spec §4.7's tier-1 cache describes, grounded directly on the
// Get/Set/Exists idiom of SoySergo's cache_repository.go.
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisCache constructs a RedisCache.
func NewRedisCache(client *redis.Client, logger *zap.Logger) *RedisCache {
	return &RedisCache{client: client, logger: logger}
}

// Get returns the cached value, or (nil, nil) on a cache miss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		c.logger.Error("artifact cache get failed", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("artifact cache get: %w", err)
	}
	c.logger.Debug("artifact cache hit", zap.String("key", key))
	return val, nil
}

// Set stores value under key with the given ttl.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.Error("artifact cache set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("artifact cache set: %w", err)
	}
	c.logger.Debug("artifact cache set", zap.String("key", key), zap.Duration("ttl", ttl))
	return nil
}
