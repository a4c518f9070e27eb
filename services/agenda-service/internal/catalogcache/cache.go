package catalogcache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a read-through Redis cache for catalog listings. The catalog
// changes rarely and is read on every cascade step, so a short TTL keeps the
// database mostly out of the hot path. Every Redis failure is fail-open: the
// caller falls back to the loader.
type Cache struct {
	rdb    *redis.Client
	logger *slog.Logger
	ttl    time.Duration
	prefix string
}

func New(rdb *redis.Client, logger *slog.Logger, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{rdb: rdb, logger: logger, ttl: ttl, prefix: "agenda:catalog:"}
}

// Enabled reports whether a Redis client was configured at all.
func (c *Cache) Enabled() bool {
	return c != nil && c.rdb != nil
}

// GetOrLoad returns the cached value under key, or runs load and stores the
// result. dest must be a pointer to the slice the loader fills.
func GetOrLoad[T any](ctx context.Context, c *Cache, key string, load func(context.Context) ([]T, error)) ([]T, error) {
	if !c.Enabled() {
		return load(ctx)
	}

	raw, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if err == nil {
		var cached []T
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		c.logger.Warn("catalog cache entry corrupt, reloading", "key", key)
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("catalog cache read failed", "key", key, "err", err)
	}

	fresh, err := load(ctx)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(fresh); err == nil {
		if err := c.rdb.Set(ctx, c.prefix+key, raw, c.ttl).Err(); err != nil {
			c.logger.Warn("catalog cache write failed", "key", key, "err", err)
		}
	}
	return fresh, nil
}
