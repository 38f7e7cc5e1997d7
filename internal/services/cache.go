package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"reftrack/internal/models"

	"github.com/redis/go-redis/v9"
)

const affiliateCachePrefix = "affiliate:ident:"

// AffiliateCache keeps affiliates looked up by the redirect flow in Redis.
// Every Redis failure degrades to a cache miss.
type AffiliateCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewAffiliateCache(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *AffiliateCache {
	return &AffiliateCache{rdb: rdb, ttl: ttl, logger: logger}
}

func (c *AffiliateCache) Get(ctx context.Context, identifier string) (*models.Affiliate, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, affiliateCachePrefix+identifier).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug("Affiliate cache read failed", "identifier", identifier, "error", err)
		}
		return nil, false
	}
	var a models.Affiliate
	if err := json.Unmarshal(raw, &a); err != nil {
		c.logger.Warn("Affiliate cache entry corrupt", "identifier", identifier, "error", err)
		return nil, false
	}
	return &a, true
}

func (c *AffiliateCache) Set(ctx context.Context, a *models.Affiliate) {
	if c == nil || c.rdb == nil || a == nil {
		return
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, affiliateCachePrefix+a.UniqueIdentifier, raw, c.ttl).Err(); err != nil {
		c.logger.Debug("Affiliate cache write failed", "identifier", a.UniqueIdentifier, "error", err)
	}
}

func (c *AffiliateCache) Invalidate(ctx context.Context, identifier string) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, affiliateCachePrefix+identifier).Err(); err != nil {
		c.logger.Debug("Affiliate cache delete failed", "identifier", identifier, "error", err)
	}
}
