package attribution_test

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/repository/memory"
	"github.com/ignite/creatorhub/internal/service/attribution"
	"github.com/ignite/creatorhub/internal/tasks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingQueue struct {
	mu    sync.Mutex
	tasks []tasks.Task
}

func (q *recordingQueue) Enqueue(_ context.Context, t tasks.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, t)
	return nil
}

func (q *recordingQueue) ofType(typ tasks.Type) []tasks.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []tasks.Task
	for _, t := range q.tasks {
		if t.Type == typ {
			out = append(out, t)
		}
	}
	return out
}

type fixture struct {
	repo         *memory.AttributionStore
	integrations *memory.IntegrationStore
	queue        *recordingQueue
	svc          *attribution.Service
}

func newFixture(opts ...attribution.Option) *fixture {
	f := &fixture{
		repo:         memory.NewAttributionStore(),
		integrations: memory.NewIntegrationStore(),
		queue:        &recordingQueue{},
	}
	f.repo.PutCollaboration(domain.Collaboration{
		ID:              "collab-1",
		CampaignID:      "camp-1",
		CampaignName:    "Summer Glow 2026",
		BrandID:         "brand-1",
		CreatorID:       "creator-1",
		CreatorHandle:   "@jane.doe",
		CampaignBaseURL: "https://shop.example.com/glow?src=ig",
		AgreedFee:       decimal.NewFromInt(500),
	})
	opts = append([]attribution.Option{attribution.WithIntegrations(f.integrations)}, opts...)
	f.svc = attribution.NewService(f.repo, f.queue, attribution.Config{
		ShortLinkBaseURL:  "https://go.example.com/s/",
		DefaultLandingURL: "https://creatorhub.example.com",
	}, opts...)
	return f
}

var (
	affiliatePattern = regexp.MustCompile(`^[A-Z0-9]{1,8}$`)
	shortPattern     = regexp.MustCompile(`^[A-Za-z0-9_-]{7}$`)
)

func TestGenerateTrackingBundle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	b, err := f.svc.GenerateTrackingBundle(ctx, "collab-1")
	require.NoError(t, err)

	assert.Regexp(t, affiliatePattern, b.AffiliateCode)
	assert.True(t, strings.HasPrefix(b.AffiliateCode, "JANE"))
	assert.Len(t, b.AffiliateCode, 8)
	assert.Regexp(t, shortPattern, b.ShortLinkCode)
	assert.Equal(t, "https://go.example.com/s/"+b.ShortLinkCode, b.ShortLinkURL)
	assert.True(t, b.IsActive)

	u, err := url.Parse(b.TrackingURL)
	require.NoError(t, err)
	assert.Equal(t, "shop.example.com", u.Host)
	q := u.Query()
	assert.Equal(t, "ig", q.Get("src"))
	assert.Equal(t, "janedoe", q.Get("utm_source"))
	assert.Equal(t, "influencer", q.Get("utm_medium"))
	assert.Equal(t, "summer-glow-2026", q.Get("utm_campaign"))
	assert.Equal(t, b.AffiliateCode, q.Get("utm_content"))
	assert.Equal(t, b.AffiliateCode, q.Get("ref"))

	r, err := f.svc.GetResult(ctx, "collab-1")
	require.NoError(t, err)
	assert.Zero(t, r.TotalClicks)
	assert.True(t, r.CreatorCost.Equal(decimal.NewFromInt(500)))
}

func TestGenerateTrackingBundleIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.svc.GenerateTrackingBundle(ctx, "collab-1")
	require.NoError(t, err)
	second, err := f.svc.GenerateTrackingBundle(ctx, "collab-1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.repo.BundleCount())
}

func TestGenerateTrackingBundleConcurrent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := f.svc.GenerateTrackingBundle(ctx, "collab-1")
			if assert.NoError(t, err) {
				ids[i] = b.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, f.repo.BundleCount())
}

func TestGenerateRetriesOnCodeCollision(t *testing.T) {
	// Both collaborations draw identical entropy for their first attempt.
	entropy := bytes.Repeat([]byte{0xAB}, 14)
	entropy = append(entropy, bytes.Repeat([]byte{0xCD}, 7)...)
	f := newFixture(attribution.WithRandom(bytes.NewReader(entropy)))
	f.repo.PutCollaboration(domain.Collaboration{
		ID: "collab-2", CampaignID: "camp-1", BrandID: "brand-1", CreatorHandle: "@janet",
	})
	ctx := context.Background()

	a, err := f.svc.GenerateTrackingBundle(ctx, "collab-1")
	require.NoError(t, err)
	b, err := f.svc.GenerateTrackingBundle(ctx, "collab-2")
	require.NoError(t, err)

	assert.Equal(t, "JANEABAB", a.AffiliateCode)
	assert.NotEqual(t, a.AffiliateCode, b.AffiliateCode)
	assert.NotEqual(t, a.ShortLinkCode, b.ShortLinkCode)
}

func TestGenerateUnknownCollaboration(t *testing.T) {
	f := newFixture()
	_, err := f.svc.GenerateTrackingBundle(context.Background(), "nope")
	assert.ErrorIs(t, err, attribution.ErrCollaborationNotFound)
}

func TestLandingURLFallbacks(t *testing.T) {
	f := newFixture()
	f.repo.PutCollaboration(domain.Collaboration{ID: "c-brand", CampaignID: "camp-1", BrandWebsite: "https://brand.example.com", CreatorHandle: "bob"})
	f.repo.PutCollaboration(domain.Collaboration{ID: "c-default", CampaignID: "camp-1", CreatorHandle: "al"})
	ctx := context.Background()

	b, err := f.svc.GenerateTrackingBundle(ctx, "c-brand")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(b.TrackingURL, "https://brand.example.com?"), b.TrackingURL)

	b, err = f.svc.GenerateTrackingBundle(ctx, "c-default")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(b.TrackingURL, "https://creatorhub.example.com?"), b.TrackingURL)
	assert.True(t, strings.HasPrefix(b.AffiliateCode, "AL"))
	assert.Len(t, b.AffiliateCode, 6)
}

func TestBuildTrackingURLFallsBackToPlainQuery(t *testing.T) {
	got := attribution.BuildTrackingURL("shop/landing", [][2]string{{"utm_source", "jane doe"}, {"ref", "A&B"}})
	assert.Equal(t, "shop/landing?utm_source=jane+doe&ref=A%26B", got)

	got = attribution.BuildTrackingURL("https://x.test/p?a=1", [][2]string{{"ref", "Z"}})
	assert.Equal(t, "https://x.test/p?a=1&ref=Z", got)
}

func purchase(code, orderID string, value int64) attribution.EventInput {
	v := decimal.NewFromInt(value)
	return attribution.EventInput{
		Codes:      attribution.CodeParams{AffiliateCode: code},
		EventType:  domain.EventPurchase,
		Source:     domain.SourceWebhook,
		OrderID:    orderID,
		OrderValue: &v,
		UserHash:   "u-1",
		Region:     "us",
		OccurredAt: time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestRecordEventUpdatesCounters(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	b, err := f.svc.GenerateTrackingBundle(ctx, "collab-1")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := f.svc.RecordEvent(ctx, attribution.EventInput{
			Codes:     attribution.CodeParams{ShortCode: b.ShortLinkCode},
			EventType: domain.EventClick,
			Source:    domain.SourceRedirect,
		})
		require.NoError(t, err)
	}
	res, err := f.svc.RecordEvent(ctx, purchase(strings.ToLower(b.AffiliateCode), "order-1", 1000))
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.NotEmpty(t, res.EventID)

	r := res.Result
	require.NotNil(t, r)
	assert.Equal(t, int64(4), r.TotalClicks)
	assert.Equal(t, int64(1), r.TotalConversions)
	assert.Equal(t, "1000", r.TotalRevenue.String())
	assert.Equal(t, "25", r.ConversionRate.String())
	assert.Equal(t, "2", r.ROAS.String())
	assert.Equal(t, "500", r.CostPerConversion.String())
	assert.Equal(t, "1000", r.AverageOrderValue.String())
}

func TestPurchaseDeduplication(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	b, err := f.svc.GenerateTrackingBundle(ctx, "collab-1")
	require.NoError(t, err)

	first, err := f.svc.RecordEvent(ctx, purchase(b.AffiliateCode, "order-42", 80))
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := f.svc.RecordEvent(ctx, purchase(b.AffiliateCode, "order-42", 80))
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Empty(t, second.EventID)

	assert.Equal(t, 1, f.repo.EventCount())
	r, _ := f.svc.GetResult(ctx, "collab-1")
	assert.Equal(t, int64(1), r.TotalConversions)
	assert.Len(t, f.queue.ofType(tasks.TypeLiftConversion), 1)
}

func TestPurchaseEnqueuesFollowUps(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.integrations.Put(ctx, domain.IntegrationConfig{BrandID: "brand-1", Provider: domain.ProviderGA4, Enabled: true}))
	require.NoError(t, f.integrations.Put(ctx, domain.IntegrationConfig{BrandID: "brand-1", Provider: domain.ProviderMetaCAPI, Enabled: true}))
	require.NoError(t, f.integrations.Put(ctx, domain.IntegrationConfig{BrandID: "brand-1", Provider: domain.ProviderShopify, Enabled: false}))
	b, err := f.svc.GenerateTrackingBundle(ctx, "collab-1")
	require.NoError(t, err)

	_, err = f.svc.RecordEvent(ctx, purchase(b.AffiliateCode, "order-7", 120))
	require.NoError(t, err)

	forwards := f.queue.ofType(tasks.TypeForwardPurchase)
	require.Len(t, forwards, 2)
	var p tasks.ForwardPurchasePayload
	require.NoError(t, forwards[0].Decode(&p))
	assert.Equal(t, "ga4", p.Provider)
	assert.Equal(t, "order-7", p.OrderID)
	assert.Equal(t, "USD", p.Currency)

	lift := f.queue.ofType(tasks.TypeLiftConversion)
	require.Len(t, lift, 1)
	var lp tasks.LiftConversionPayload
	require.NoError(t, lift[0].Decode(&lp))
	assert.Equal(t, "camp-1", lp.CampaignID)
	assert.Equal(t, "US", lp.Region)
	assert.Equal(t, "120", lp.Revenue.String())
}

func TestClicksAndPageViewsEnqueueExposure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.integrations.Put(ctx, domain.IntegrationConfig{BrandID: "brand-1", Provider: domain.ProviderGA4, Enabled: true}))
	b, err := f.svc.GenerateTrackingBundle(ctx, "collab-1")
	require.NoError(t, err)

	for _, ev := range []domain.AttributionEventType{domain.EventClick, domain.EventPageView} {
		_, err = f.svc.RecordEvent(ctx, attribution.EventInput{
			Codes:     attribution.CodeParams{AffiliateCode: b.AffiliateCode},
			EventType: ev,
			UserHash:  "u-1",
			SessionID: "s-1",
			Region:    " ca ",
		})
		require.NoError(t, err)
	}

	exposures := f.queue.ofType(tasks.TypeLiftExposure)
	require.Len(t, exposures, 2)
	var p tasks.LiftExposurePayload
	require.NoError(t, exposures[0].Decode(&p))
	assert.Equal(t, tasks.LiftExposurePayload{CampaignID: "camp-1", Region: "CA", UserID: "u-1", SessionID: "s-1"}, p)
	assert.Empty(t, f.queue.ofType(tasks.TypeForwardPurchase))
	assert.Empty(t, f.queue.ofType(tasks.TypeLiftConversion))
}

func TestRecordEventValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	b, err := f.svc.GenerateTrackingBundle(ctx, "collab-1")
	require.NoError(t, err)

	_, err = f.svc.RecordEvent(ctx, attribution.EventInput{Codes: attribution.CodeParams{AffiliateCode: b.AffiliateCode}, EventType: "signup"})
	assert.ErrorIs(t, err, attribution.ErrInvalidEventType)

	neg := purchase(b.AffiliateCode, "o", -1)
	_, err = f.svc.RecordEvent(ctx, neg)
	assert.ErrorIs(t, err, attribution.ErrInvalidOrderValue)

	_, err = f.svc.RecordEvent(ctx, attribution.EventInput{EventType: domain.EventClick})
	assert.ErrorIs(t, err, attribution.ErrNoCode)

	_, err = f.svc.RecordEvent(ctx, purchase("ZZZZ0000", "o2", 5))
	assert.ErrorIs(t, err, attribution.ErrBundleNotFound)
}

func TestInactiveBundleNotResolved(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	b, err := f.svc.GenerateTrackingBundle(ctx, "collab-1")
	require.NoError(t, err)
	f.repo.SetBundleActive(b.ID, false)

	_, err = f.svc.FindBundleByCode(ctx, b.AffiliateCode, domain.CodeAffiliate)
	assert.ErrorIs(t, err, attribution.ErrBundleNotFound)
}

func TestResolveOrder(t *testing.T) {
	f := newFixture()
	f.repo.PutCollaboration(domain.Collaboration{ID: "collab-2", CampaignID: "camp-1", BrandID: "brand-1", CreatorHandle: "sam"})
	ctx := context.Background()
	b1, err := f.svc.GenerateTrackingBundle(ctx, "collab-1")
	require.NoError(t, err)
	b2, err := f.svc.GenerateTrackingBundle(ctx, "collab-2")
	require.NoError(t, err)
	_, err = f.svc.AssignCouponCode(ctx, "collab-2", "sam10")
	require.NoError(t, err)

	got, err := f.svc.ResolveBundle(ctx, attribution.CodeParams{AffiliateCode: b1.AffiliateCode, ShortCode: b2.ShortLinkCode, CouponCode: "SAM10"})
	require.NoError(t, err)
	assert.Equal(t, b1.ID, got.ID, "affiliate code wins")

	got, err = f.svc.ResolveBundle(ctx, attribution.CodeParams{ShortCode: b2.ShortLinkCode, CouponCode: "nothing"})
	require.NoError(t, err)
	assert.Equal(t, b2.ID, got.ID)

	got, err = f.svc.ResolveBundle(ctx, attribution.CodeParams{AffiliateCode: "MISSING1", CouponCode: "sam10"})
	require.NoError(t, err)
	assert.Equal(t, b2.ID, got.ID, "falls through to coupon")
}

func TestAssignCouponCode(t *testing.T) {
	f := newFixture()
	f.repo.PutCollaboration(domain.Collaboration{ID: "collab-2", CampaignID: "camp-1", BrandID: "brand-1", CreatorHandle: "sam"})
	ctx := context.Background()
	_, err := f.svc.GenerateTrackingBundle(ctx, "collab-1")
	require.NoError(t, err)
	_, err = f.svc.GenerateTrackingBundle(ctx, "collab-2")
	require.NoError(t, err)

	b, err := f.svc.AssignCouponCode(ctx, "collab-1", " jane15 ")
	require.NoError(t, err)
	require.NotNil(t, b.CouponCode)
	assert.Equal(t, "JANE15", *b.CouponCode)

	_, err = f.svc.AssignCouponCode(ctx, "collab-1", "JANE15")
	assert.NoError(t, err, "same code again is a no-op")
	_, err = f.svc.AssignCouponCode(ctx, "collab-1", "OTHER")
	assert.ErrorIs(t, err, attribution.ErrCouponAlreadySet)
	_, err = f.svc.AssignCouponCode(ctx, "collab-2", "JANE15")
	assert.ErrorIs(t, err, attribution.ErrCodeCollision)
	_, err = f.svc.AssignCouponCode(ctx, "collab-2", "x!")
	assert.ErrorIs(t, err, attribution.ErrInvalidCoupon)
}

func TestRecalculateIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	b, err := f.svc.GenerateTrackingBundle(ctx, "collab-1")
	require.NoError(t, err)
	for i, v := range []int64{30, 45, 25} {
		_, err := f.svc.RecordEvent(ctx, purchase(b.AffiliateCode, "o-"+string(rune('a'+i)), v))
		require.NoError(t, err)
	}

	first, err := f.svc.RecalculateMetrics(ctx, "collab-1")
	require.NoError(t, err)
	second, err := f.svc.RecalculateMetrics(ctx, "collab-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, "33.33", second.AverageOrderValue.String())
	assert.Equal(t, "166.67", second.CostPerConversion.String())
	assert.Equal(t, "0.2", second.ROAS.String())
	assert.True(t, second.ConversionRate.IsZero(), "no clicks")
}

func TestRebuildMatchesIncrementalCounters(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	b, err := f.svc.GenerateTrackingBundle(ctx, "collab-1")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.svc.RecordEvent(ctx, attribution.EventInput{Codes: attribution.CodeParams{AffiliateCode: b.AffiliateCode}, EventType: domain.EventClick})
		require.NoError(t, err)
	}
	_, err = f.svc.RecordEvent(ctx, purchase(b.AffiliateCode, "o-1", 90))
	require.NoError(t, err)

	before, err := f.svc.GetResult(ctx, "collab-1")
	require.NoError(t, err)
	rebuilt, err := f.svc.RebuildResult(ctx, "collab-1")
	require.NoError(t, err)

	assert.Equal(t, before.TotalClicks, rebuilt.TotalClicks)
	assert.Equal(t, before.TotalConversions, rebuilt.TotalConversions)
	assert.True(t, before.TotalRevenue.Equal(rebuilt.TotalRevenue))
	assert.True(t, before.ConversionRate.Equal(rebuilt.ConversionRate))
}

func TestRecalculateGuardsZeroDivisors(t *testing.T) {
	r := attribution.Recalculate(domain.AttributionResult{CreatorCost: decimal.Zero, TotalRevenue: decimal.NewFromInt(10)})
	assert.True(t, r.ConversionRate.IsZero())
	assert.True(t, r.ROAS.IsZero())
	assert.True(t, r.CostPerConversion.IsZero())
	assert.True(t, r.AverageOrderValue.IsZero())
}

func TestWindowTotals(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	b, err := f.svc.GenerateTrackingBundle(ctx, "collab-1")
	require.NoError(t, err)

	in := purchase(b.AffiliateCode, "w-1", 50)
	in.OccurredAt = time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC)
	_, err = f.svc.RecordEvent(ctx, in)
	require.NoError(t, err)
	in = purchase(b.AffiliateCode, "w-2", 70)
	in.OccurredAt = time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)
	_, err = f.svc.RecordEvent(ctx, in)
	require.NoError(t, err)

	totals, err := f.svc.WindowTotals(ctx, "camp-1", time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(1), totals.Conversions)
	assert.Equal(t, "50", totals.Revenue.String())
}
