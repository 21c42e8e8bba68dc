package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/schoolworks/maintenance-desk/internal/domain"
)

type cachedCatalog struct {
	next   CatalogRepository
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedCatalogRepository serves reference data from Redis and falls
// through to next on a miss. Cache errors are logged and never fail a read.
func NewCachedCatalogRepository(next CatalogRepository, client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) CatalogRepository {
	if client == nil {
		return next
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &cachedCatalog{next: next, client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (c *cachedCatalog) key(kind string) string {
	return c.prefix + ":catalog:" + kind
}

func (c *cachedCatalog) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var out []domain.Category
	if c.load(ctx, "categories", &out) {
		return out, nil
	}
	out, err := c.next.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, "categories", out)
	return out, nil
}

func (c *cachedCatalog) CreateCategory(ctx context.Context, category *domain.Category) error {
	if err := c.next.CreateCategory(ctx, category); err != nil {
		return err
	}
	c.invalidate(ctx, "categories")
	return nil
}

func (c *cachedCatalog) ListLocations(ctx context.Context) ([]domain.Location, error) {
	var out []domain.Location
	if c.load(ctx, "locations", &out) {
		return out, nil
	}
	out, err := c.next.ListLocations(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, "locations", out)
	return out, nil
}

func (c *cachedCatalog) CreateLocation(ctx context.Context, location *domain.Location) error {
	if err := c.next.CreateLocation(ctx, location); err != nil {
		return err
	}
	c.invalidate(ctx, "locations")
	return nil
}

func (c *cachedCatalog) load(ctx context.Context, kind string, dst any) bool {
	raw, err := c.client.Get(ctx, c.key(kind)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("catalog cache read failed", zap.String("kind", kind), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.logger.Warn("catalog cache decode failed", zap.String("kind", kind), zap.Error(err))
		return false
	}
	return true
}

func (c *cachedCatalog) store(ctx context.Context, kind string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(kind), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("catalog cache write failed", zap.String("kind", kind), zap.Error(err))
	}
}

func (c *cachedCatalog) invalidate(ctx context.Context, kind string) {
	if err := c.client.Del(ctx, c.key(kind)).Err(); err != nil {
		c.logger.Warn("catalog cache invalidate failed", zap.String("kind", kind), zap.Error(err))
	}
}
