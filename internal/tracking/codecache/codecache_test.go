package codecache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ignite/creatorhub/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*Cache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, time.Minute), mr
}

func bundle() *domain.TrackingBundle {
	coupon := "SUMMER10"
	return &domain.TrackingBundle{
		ID:              "b-1",
		CollaborationID: "collab-1",
		CampaignID:      "camp-1",
		AffiliateCode:   "JANE1A2B",
		ShortLinkCode:   "aB3_x9Q",
		CouponCode:      &coupon,
		TrackingURL:     "https://shop.example.com/?utm_source=creator",
		IsActive:        true,
	}
}

func TestSetGet(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	_, ok := c.Get(ctx, domain.CodeShortLink, "aB3_x9Q")
	assert.False(t, ok)

	c.Set(ctx, domain.CodeShortLink, "aB3_x9Q", bundle())
	assert.True(t, mr.Exists("trk:code:short_link:aB3_x9Q"))

	got, ok := c.Get(ctx, domain.CodeShortLink, "aB3_x9Q")
	require.True(t, ok)
	assert.Equal(t, "b-1", got.ID)
	assert.Equal(t, "https://shop.example.com/?utm_source=creator", got.TrackingURL)

	mr.FastForward(2 * time.Minute)
	_, ok = c.Get(ctx, domain.CodeShortLink, "aB3_x9Q")
	assert.False(t, ok)
}

func TestInactiveBundlesAreNotCached(t *testing.T) {
	c, mr := setupTestRedis(t)
	b := bundle()
	b.IsActive = false

	c.Set(context.Background(), domain.CodeAffiliate, b.AffiliateCode, b)
	assert.False(t, mr.Exists("trk:code:affiliate:JANE1A2B"))
}

func TestForget(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()
	b := bundle()
	c.Set(ctx, domain.CodeAffiliate, b.AffiliateCode, b)
	c.Set(ctx, domain.CodeCoupon, *b.CouponCode, b)

	c.Forget(ctx, b)

	_, ok := c.Get(ctx, domain.CodeAffiliate, b.AffiliateCode)
	assert.False(t, ok)
	_, ok = c.Get(ctx, domain.CodeCoupon, *b.CouponCode)
	assert.False(t, ok)
}

func TestRedisDownIsAMiss(t *testing.T) {
	c, mr := setupTestRedis(t)
	mr.Close()

	_, ok := c.Get(context.Background(), domain.CodeAffiliate, "JANE1A2B")
	assert.False(t, ok)
	c.Set(context.Background(), domain.CodeAffiliate, "JANE1A2B", bundle())
}
