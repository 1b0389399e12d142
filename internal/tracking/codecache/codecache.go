// Package codecache keeps active tracking bundles in Redis keyed by code so
// redirects and pixels resolve without touching Postgres.
package codecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/metrics"
	"github.com/ignite/creatorhub/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "trk:code"
	cacheLabel = "tracking_code"
)

// Cache implements attribution.CodeCache over Redis. Redis errors degrade to
// cache misses.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a cache. A non-positive ttl defaults to ten minutes.
func New(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

func key(codeType domain.CodeType, code string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, codeType, code)
}

// Get returns the cached bundle for code.
func (c *Cache) Get(ctx context.Context, codeType domain.CodeType, code string) (*domain.TrackingBundle, bool) {
	raw, err := c.client.Get(ctx, key(codeType, code)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("code cache get failed", "code_type", string(codeType), "error", err.Error())
		}
		metrics.CacheMisses.WithLabelValues(cacheLabel).Inc()
		return nil, false
	}
	var b domain.TrackingBundle
	if err := json.Unmarshal(raw, &b); err != nil {
		metrics.CacheMisses.WithLabelValues(cacheLabel).Inc()
		return nil, false
	}
	if !b.IsActive {
		return nil, false
	}
	metrics.CacheHits.WithLabelValues(cacheLabel).Inc()
	return &b, true
}

// Set stores an active bundle. Inactive bundles are never cached.
func (c *Cache) Set(ctx context.Context, codeType domain.CodeType, code string, b *domain.TrackingBundle) {
	if b == nil || !b.IsActive {
		return
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key(codeType, code), raw, c.ttl).Err(); err != nil {
		logger.Warn("code cache set failed", "code_type", string(codeType), "error", err.Error())
	}
}

// Forget drops every cached code of b, used after the bundle changes.
func (c *Cache) Forget(ctx context.Context, b *domain.TrackingBundle) {
	keys := []string{key(domain.CodeAffiliate, b.AffiliateCode), key(domain.CodeShortLink, b.ShortLinkCode)}
	if b.CouponCode != nil {
		keys = append(keys, key(domain.CodeCoupon, *b.CouponCode))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		logger.Warn("code cache forget failed", "bundle_id", b.ID, "error", err.Error())
	}
}
