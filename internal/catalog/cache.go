package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/apdplat/authz/internal/observability"
)

const (
	cacheVersionKey = "catalog:version"
	cachePrefix     = "catalog"
)

// Cache decorates a Source with a versioned Redis snapshot. Redis failures
// fall back to the source; only source failures reach the caller.
type Cache struct {
	client  *redis.Client
	source  Source
	ttl     time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
	group   singleflight.Group
}

var _ Source = (*Cache)(nil)

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, source Source, ttl time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, source: source, ttl: ttl, logger: logger, metrics: metrics}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		// SetNX keeps a concurrent Invalidate from being overwritten.
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Invalidate bumps the version so the next lookup reloads from the source.
func (c *Cache) Invalidate(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return 0, fmt.Errorf("catalog: invalidate cache: %w", err)
	}
	c.logger.Info("catalog cache invalidated", slog.Int64("version", ver))
	return ver, nil
}

// ListModules returns the cached module rows, loading them on a miss.
func (c *Cache) ListModules(ctx context.Context) ([]ModuleRow, error) {
	var rows []ModuleRow
	err := c.fetch(ctx, "modules", &rows, func(ctx context.Context) (any, error) {
		return c.source.ListModules(ctx)
	})
	return rows, err
}

// ListCommands returns the cached command rows, loading them on a miss.
func (c *Cache) ListCommands(ctx context.Context) ([]CommandRow, error) {
	var rows []CommandRow
	err := c.fetch(ctx, "commands", &rows, func(ctx context.Context) (any, error) {
		return c.source.ListCommands(ctx)
	})
	return rows, err
}

// Warm loads both listings into the cache.
func (c *Cache) Warm(ctx context.Context) error {
	if _, err := c.ListModules(ctx); err != nil {
		return err
	}
	_, err := c.ListCommands(ctx)
	return err
}

func (c *Cache) fetch(ctx context.Context, name string, dest any, loader func(context.Context) (any, error)) error {
	if c.client == nil {
		return c.load(ctx, dest, loader)
	}
	ver, err := c.Version(ctx)
	if err != nil {
		c.metrics.ObserveCacheLookup(observability.CacheError)
		c.logger.Warn("catalog cache version", slog.Any("error", err))
		return c.load(ctx, dest, loader)
	}
	key := fmt.Sprintf("%s:%s:%d", cachePrefix, name, ver)

	payload, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if err := json.Unmarshal(payload, dest); err == nil {
			c.metrics.ObserveCacheLookup(observability.CacheHit)
			return nil
		}
		c.logger.Warn("catalog cache decode", slog.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		c.metrics.ObserveCacheLookup(observability.CacheError)
		c.logger.Warn("catalog cache get", slog.String("key", key), slog.Any("error", err))
		return c.load(ctx, dest, loader)
	}
	c.metrics.ObserveCacheLookup(observability.CacheMiss)

	raw, err, _ := c.group.Do(key, func() (any, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Warn("catalog cache set", slog.String("key", key), slog.Any("error", err))
		}
		return raw, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(raw.([]byte), dest)
}

func (c *Cache) load(ctx context.Context, dest any, loader func(context.Context) (any, error)) error {
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
