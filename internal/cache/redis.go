// Package cache stores rendered feed pages in Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	generationKey = "imitation:feed:generation"
	pageKeyFormat = "imitation:feed:%d:%d:%d"

	unknownGeneration int64 = -1
)

var errMissingClient = errors.New("cache: redis client required")

// FeedCacheConfig describes the dependencies of the Redis feed cache.
type FeedCacheConfig struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *zap.Logger
}

// FeedCache keeps feed pages under a generation number. Invalidation bumps the
// generation so every older page becomes unreachable and expires on its own.
type FeedCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewFeedCache constructs the Redis-backed feed cache.
func NewFeedCache(cfg FeedCacheConfig) (*FeedCache, error) {
	if cfg.Client == nil {
		return nil, errMissingClient
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("cache: ttl must be positive, got %s", cfg.TTL)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedCache{client: cfg.Client, ttl: cfg.TTL, logger: logger}, nil
}

// Load returns the cached page together with the generation it was looked up under.
// The generation is negative when it could not be read.
func (c *FeedCache) Load(ctx context.Context, offset, limit int) ([]byte, int64, bool) {
	generation, ok := c.generation(ctx)
	if !ok {
		return nil, unknownGeneration, false
	}
	payload, err := c.client.Get(ctx, pageKey(generation, offset, limit)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, generation, false
	}
	if err != nil {
		c.logger.Warn("feed cache read failed", zap.Error(err))
		return nil, generation, false
	}
	return payload, generation, true
}

// Save stores a page under the generation returned by the Load that missed. A page read
// before an invalidation therefore lands in an orphaned generation and is never served.
func (c *FeedCache) Save(ctx context.Context, generation int64, offset, limit int, payload []byte) {
	if generation < 0 {
		return
	}
	if err := c.client.Set(ctx, pageKey(generation, offset, limit), payload, c.ttl).Err(); err != nil {
		c.logger.Warn("feed cache write failed", zap.Error(err))
	}
}

// Invalidate orphans every cached page.
func (c *FeedCache) Invalidate(ctx context.Context) {
	if err := c.client.Incr(ctx, generationKey).Err(); err != nil {
		c.logger.Warn("feed cache invalidation failed", zap.Error(err))
	}
}

func (c *FeedCache) generation(ctx context.Context) (int64, bool) {
	generation, err := c.client.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	if err != nil {
		c.logger.Warn("feed cache generation lookup failed", zap.Error(err))
		return 0, false
	}
	return generation, true
}

func pageKey(generation int64, offset, limit int) string {
	return fmt.Sprintf(pageKeyFormat, generation, offset, limit)
}
