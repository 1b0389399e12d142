package lifttest_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/repository/memory"
	"github.com/ignite/creatorhub/internal/service/lifttest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

// fixedWindows returns totals keyed by the window start.
type fixedWindows map[int64]domain.WindowTotals

func (w fixedWindows) WindowTotals(_ context.Context, _ string, from, _ time.Time) (domain.WindowTotals, error) {
	return w[from.Unix()], nil
}

func newService(opts ...lifttest.Option) (*lifttest.Service, *memory.LiftTestStore, *clock) {
	store := memory.NewLiftTestStore()
	c := &clock{now: t0}
	opts = append([]lifttest.Option{lifttest.WithClock(c.Now)}, opts...)
	return lifttest.NewService(store, opts...), store, c
}

func geoTest(t *testing.T, svc *lifttest.Service) *domain.LiftTest {
	t.Helper()
	lt, err := svc.Create(context.Background(), lifttest.CreateInput{
		CampaignID:     "camp-1",
		Name:           "US vs CA",
		TestType:       domain.LiftGeographic,
		TestRegions:    []string{"us"},
		ControlRegions: []string{"CA"},
	})
	require.NoError(t, err)
	return lt
}

func splitTest(t *testing.T, svc *lifttest.Service, pct int) *domain.LiftTest {
	t.Helper()
	lt, err := svc.Create(context.Background(), lifttest.CreateInput{
		CampaignID:        "camp-1",
		Name:              "Holdout",
		TestType:          domain.LiftRandomSplit,
		TestPercentage:    pct,
		ControlPercentage: 100 - pct,
	})
	require.NoError(t, err)
	return lt
}

func TestCreateBuildsGroups(t *testing.T) {
	svc, _, _ := newService()
	lt := geoTest(t, svc)

	assert.Equal(t, domain.LiftDraft, lt.Status)
	assert.Equal(t, "region", lt.SplitMethod)
	require.Len(t, lt.Groups, 2)
	assert.Equal(t, []string{"US"}, lt.Group(domain.GroupTest).Regions)
	assert.Equal(t, []string{"CA"}, lt.Group(domain.GroupControl).Regions)

	got, err := svc.Get(context.Background(), lt.ID)
	require.NoError(t, err)
	assert.Equal(t, lt.ID, got.ID)
	assert.Nil(t, got.Result)
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newService()
	start := t0
	end := t0.Add(-time.Hour)

	cases := []struct {
		name string
		in   lifttest.CreateInput
		want error
	}{
		{"no campaign", lifttest.CreateInput{Name: "x", TestType: domain.LiftRandomSplit}, lifttest.ErrCampaignRequired},
		{"no name", lifttest.CreateInput{CampaignID: "c", TestType: domain.LiftRandomSplit}, lifttest.ErrNameRequired},
		{"bad type", lifttest.CreateInput{CampaignID: "c", Name: "x", TestType: "ab"}, lifttest.ErrInvalidType},
		{"missing regions", lifttest.CreateInput{CampaignID: "c", Name: "x", TestType: domain.LiftGeographic, TestRegions: []string{"US"}}, lifttest.ErrInvalidRegions},
		{"overlapping regions", lifttest.CreateInput{CampaignID: "c", Name: "x", TestType: domain.LiftGeographic, TestRegions: []string{"US"}, ControlRegions: []string{"us"}}, lifttest.ErrInvalidRegions},
		{"percentage too high", lifttest.CreateInput{CampaignID: "c", Name: "x", TestType: domain.LiftRandomSplit, TestPercentage: 101}, lifttest.ErrInvalidPercentage},
		{"negative percentage", lifttest.CreateInput{CampaignID: "c", Name: "x", TestType: domain.LiftRandomSplit, ControlPercentage: -1}, lifttest.ErrInvalidPercentage},
		{"missing baseline", lifttest.CreateInput{CampaignID: "c", Name: "x", TestType: domain.LiftTimeBased}, lifttest.ErrInvalidBaseline},
		{"inverted baseline", lifttest.CreateInput{CampaignID: "c", Name: "x", TestType: domain.LiftTimeBased, BaselineStart: &start, BaselineEnd: &end}, lifttest.ErrInvalidBaseline},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestLifecycle(t *testing.T) {
	svc, _, c := newService()
	ctx := context.Background()
	lt := splitTest(t, svc, 50)

	_, err := svc.Pause(ctx, lt.ID)
	assert.ErrorIs(t, err, lifttest.ErrInvalidTransition)
	_, err = svc.Resume(ctx, lt.ID)
	assert.ErrorIs(t, err, lifttest.ErrInvalidTransition)

	c.now = t0.Add(time.Hour)
	started, err := svc.Start(ctx, lt.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LiftRunning, started.Status)
	require.NotNil(t, started.StartedAt)
	assert.Equal(t, t0.Add(time.Hour), *started.StartedAt)

	_, err = svc.Start(ctx, lt.ID)
	assert.ErrorIs(t, err, lifttest.ErrInvalidTransition)

	_, err = svc.Pause(ctx, lt.ID)
	require.NoError(t, err)
	c.now = t0.Add(2 * time.Hour)
	resumed, err := svc.Resume(ctx, lt.ID)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Hour), *resumed.StartedAt, "resume keeps the original start")

	done, err := svc.Complete(ctx, lt.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LiftCompleted, done.Status)
	require.NotNil(t, done.EndedAt)

	_, err = svc.Resume(ctx, lt.ID)
	assert.ErrorIs(t, err, lifttest.ErrInvalidTransition)

	_, err = svc.Start(ctx, "missing")
	assert.ErrorIs(t, err, lifttest.ErrNotFound)
}

func TestAssignOnlyWhileRunning(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()
	lt := splitTest(t, svc, 50)

	g, err := svc.AssignUserToGroup(ctx, lt.ID, lifttest.AssignInput{UserID: "u-1"})
	require.NoError(t, err)
	assert.Nil(t, g, "draft tests do not assign")

	_, err = svc.Start(ctx, lt.ID)
	require.NoError(t, err)
	g, err = svc.AssignUserToGroup(ctx, lt.ID, lifttest.AssignInput{UserID: "u-1"})
	require.NoError(t, err)
	assert.NotNil(t, g)

	_, err = svc.Pause(ctx, lt.ID)
	require.NoError(t, err)
	g, err = svc.AssignUserToGroup(ctx, lt.ID, lifttest.AssignInput{UserID: "u-1"})
	require.NoError(t, err)
	assert.Nil(t, g)
}

func TestRandomSplitIsDeterministic(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()
	lt := splitTest(t, svc, 50)
	_, err := svc.Start(ctx, lt.ID)
	require.NoError(t, err)

	inTest := 0
	for i := 0; i < 1000; i++ {
		in := lifttest.AssignInput{UserID: fmt.Sprintf("user-%d", i)}
		first, err := svc.AssignUserToGroup(ctx, lt.ID, in)
		require.NoError(t, err)
		for j := 0; j < 3; j++ {
			again, err := svc.AssignUserToGroup(ctx, lt.ID, in)
			require.NoError(t, err)
			require.Equal(t, first.ID, again.ID)
		}
		if first.GroupType == domain.GroupTest {
			inTest++
		}
	}
	assert.InDelta(t, 500, inTest, 100)
}

func TestRandomSplitUsesSessionWithoutUser(t *testing.T) {
	assert.Equal(t,
		lifttest.Bucket("", "sess-9", "test-1"),
		lifttest.Bucket("sess-9", "", "test-1"))
	b := lifttest.Bucket("user-1", "sess-1", "test-1")
	assert.GreaterOrEqual(t, b, 0)
	assert.Less(t, b, 100)
}

func TestRandomSplitExtremes(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()
	none := splitTest(t, svc, 0)
	all := splitTest(t, svc, 100)
	for _, id := range []string{none.ID, all.ID} {
		_, err := svc.Start(ctx, id)
		require.NoError(t, err)
	}

	for i := 0; i < 50; i++ {
		in := lifttest.AssignInput{UserID: fmt.Sprintf("u%d", i)}
		g, err := svc.AssignUserToGroup(ctx, none.ID, in)
		require.NoError(t, err)
		assert.Equal(t, domain.GroupControl, g.GroupType)
		g, err = svc.AssignUserToGroup(ctx, all.ID, in)
		require.NoError(t, err)
		assert.Equal(t, domain.GroupTest, g.GroupType)
	}
}

func TestGeographicScenario(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()
	lt := geoTest(t, svc)
	_, err := svc.Start(ctx, lt.ID)
	require.NoError(t, err)

	for _, c := range []struct {
		region  string
		revenue int64
	}{{"US", 100}, {"ca", 40}, {"FR", 25}} {
		n, err := svc.RecordCampaignConversion(ctx, "camp-1", lifttest.ConversionInput{Region: c.region, Revenue: decimal.NewFromInt(c.revenue)})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}

	got, err := svc.Get(ctx, lt.ID)
	require.NoError(t, err)
	test, control := got.Group(domain.GroupTest), got.Group(domain.GroupControl)
	assert.Equal(t, int64(1), test.Conversions)
	assert.Equal(t, "100", test.Revenue.String())
	assert.Equal(t, int64(2), control.Conversions, "FR falls back to control")
	assert.Equal(t, "65", control.Revenue.String())
}

func TestConversionSkipsTestsThatAreNotRunning(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()
	geoTest(t, svc)

	n, err := svc.RecordCampaignConversion(ctx, "camp-1", lifttest.ConversionInput{Region: "US"})
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = svc.RecordCampaignConversion(ctx, "camp-1", lifttest.ConversionInput{Revenue: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, lifttest.ErrInvalidValue)
}

func TestRecordGroupEvent(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()
	lt := geoTest(t, svc)
	groupID := lt.Group(domain.GroupTest).ID

	_, err := svc.RecordGroupEvent(ctx, groupID, domain.GroupImpression, decimal.Zero)
	assert.ErrorIs(t, err, lifttest.ErrNotRunning)

	_, err = svc.Start(ctx, lt.ID)
	require.NoError(t, err)
	for _, ev := range []domain.GroupEventType{domain.GroupImpression, domain.GroupImpression, domain.GroupUniqueUser, domain.GroupConversion} {
		_, err := svc.RecordGroupEvent(ctx, groupID, ev, decimal.NewFromInt(999))
		require.NoError(t, err)
	}
	g, err := svc.RecordGroupEvent(ctx, groupID, domain.GroupRevenue, decimal.RequireFromString("19.99"))
	require.NoError(t, err)

	assert.Equal(t, int64(2), g.Impressions)
	assert.Equal(t, int64(1), g.UniqueUsers)
	assert.Equal(t, int64(1), g.Conversions)
	assert.Equal(t, "19.99", g.Revenue.String())

	_, err = svc.RecordGroupEvent(ctx, groupID, "refund", decimal.Zero)
	assert.ErrorIs(t, err, lifttest.ErrInvalidEventType)
	_, err = svc.RecordGroupEvent(ctx, groupID, domain.GroupRevenue, decimal.NewFromInt(-5))
	assert.ErrorIs(t, err, lifttest.ErrInvalidValue)
	_, err = svc.RecordGroupEvent(ctx, "nope", domain.GroupImpression, decimal.Zero)
	assert.ErrorIs(t, err, lifttest.ErrGroupNotFound)

	_, err = svc.Complete(ctx, lt.ID)
	require.NoError(t, err)
	_, err = svc.RecordGroupEvent(ctx, groupID, domain.GroupImpression, decimal.Zero)
	assert.ErrorIs(t, err, lifttest.ErrNotRunning)
}

func seedCounters(t *testing.T, store *memory.LiftTestStore, lt *domain.LiftTest, test, control domain.GroupDelta) {
	t.Helper()
	err := store.WithinTx(context.Background(), func(tx lifttest.Tx) error {
		if err := tx.IncrementGroup(context.Background(), lt.Group(domain.GroupTest).ID, test); err != nil {
			return err
		}
		return tx.IncrementGroup(context.Background(), lt.Group(domain.GroupControl).ID, control)
	})
	require.NoError(t, err)
}

func TestCalculateResults(t *testing.T) {
	svc, store, _ := newService()
	ctx := context.Background()
	lt := geoTest(t, svc)
	seedCounters(t, store, lt,
		domain.GroupDelta{UniqueUsers: 1000, Impressions: 5000, Conversions: 500, Revenue: decimal.NewFromInt(25000)},
		domain.GroupDelta{UniqueUsers: 1000, Impressions: 5000, Conversions: 10, Revenue: decimal.NewFromInt(500)},
	)

	r, err := svc.CalculateResults(ctx, lt.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), r.TestSampleSize, "unique users take precedence over impressions")
	assert.InDelta(t, 0.5, r.TestConversionRate, 1e-9)
	assert.InDelta(t, 0.01, r.ControlConversionRate, 1e-9)
	assert.InDelta(t, 4900, r.LiftPercentage, 1e-6)
	assert.InDelta(t, 0.49, r.AbsoluteLift, 1e-9)
	assert.Equal(t, "24500", r.IncrementalRevenue.String())
	assert.Less(t, r.PValue, 0.01)
	assert.Equal(t, domain.HighlySignificant, r.Significance)
	assert.True(t, r.IsSignificant)
	assert.Contains(t, r.Interpretation, "positive lift")

	again, err := svc.CalculateResults(ctx, lt.ID)
	require.NoError(t, err)
	assert.Equal(t, r, again)

	got, err := svc.Get(ctx, lt.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Result)
	assert.Equal(t, r.PValue, got.Result.PValue)
}

func TestCalculateResultsWithoutData(t *testing.T) {
	svc, _, _ := newService()
	lt := splitTest(t, svc, 50)

	r, err := svc.CalculateResults(context.Background(), lt.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, r.PValue)
	assert.Zero(t, r.LiftPercentage)
	assert.Equal(t, domain.NotSignificant, r.Significance)
	assert.False(t, r.IsSignificant)
	assert.True(t, r.IncrementalRevenue.IsZero())
}

func TestCalculateTimeBasedResults(t *testing.T) {
	baselineStart := t0.AddDate(0, 0, -20)
	baselineEnd := t0.AddDate(0, 0, -10)
	windows := fixedWindows{
		baselineStart.Unix(): {Clicks: 1000, Conversions: 20, Revenue: decimal.NewFromInt(1000)},
		t0.Unix():            {Clicks: 500, Conversions: 20, Revenue: decimal.NewFromInt(800)},
	}
	svc, _, c := newService(lifttest.WithWindowSource(windows))
	ctx := context.Background()

	lt, err := svc.Create(ctx, lifttest.CreateInput{
		CampaignID:    "camp-1",
		Name:          "Before and after",
		TestType:      domain.LiftTimeBased,
		BaselineStart: &baselineStart,
		BaselineEnd:   &baselineEnd,
	})
	require.NoError(t, err)
	assert.Equal(t, "window", lt.SplitMethod)

	_, err = svc.CalculateTimeBasedResults(ctx, lt.ID)
	assert.ErrorIs(t, err, lifttest.ErrNotStarted)

	_, err = svc.Start(ctx, lt.ID)
	require.NoError(t, err)
	g, err := svc.AssignUserToGroup(ctx, lt.ID, lifttest.AssignInput{UserID: "u"})
	require.NoError(t, err)
	assert.Nil(t, g, "time-based tests have no population split")

	c.now = t0.AddDate(0, 0, 5)
	_, err = svc.Complete(ctx, lt.ID)
	require.NoError(t, err)

	r, err := svc.CalculateResults(ctx, lt.ID)
	require.NoError(t, err)
	assert.InDelta(t, 4, r.TestConversionRate, 1e-9, "20 conversions over 5 days")
	assert.InDelta(t, 2, r.ControlConversionRate, 1e-9, "20 conversions over 10 days")
	assert.InDelta(t, 100, r.LiftPercentage, 1e-9)
	assert.Equal(t, int64(500), r.TestSampleSize)
	assert.Equal(t, int64(1000), r.ControlSampleSize)
	assert.Equal(t, "300", r.IncrementalRevenue.String())
}

func TestTimeBasedRequiresWindowType(t *testing.T) {
	svc, _, _ := newService()
	lt := geoTest(t, svc)
	_, err := svc.CalculateTimeBasedResults(context.Background(), lt.ID)
	assert.ErrorIs(t, err, lifttest.ErrNotTimeBased)
}

func TestResultsFromConversionsOnly(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()
	lt := geoTest(t, svc)
	_, err := svc.Start(ctx, lt.ID)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		_, err := svc.RecordCampaignConversion(ctx, "camp-1", lifttest.ConversionInput{Region: "US", Revenue: decimal.NewFromInt(10)})
		require.NoError(t, err)
	}
	for i := 0; i < 5; i++ {
		_, err := svc.RecordCampaignConversion(ctx, "camp-1", lifttest.ConversionInput{Region: "CA", Revenue: decimal.NewFromInt(10)})
		require.NoError(t, err)
	}

	r, err := svc.CalculateResults(ctx, lt.ID)
	require.NoError(t, err)
	assert.Zero(t, r.TestSampleSize)
	assert.Zero(t, r.ControlSampleSize)
	assert.InDelta(t, 3900, r.LiftPercentage, 1e-9)
	assert.Equal(t, "1950", r.IncrementalRevenue.String())
	assert.Equal(t, domain.NotSignificant, r.Significance)
}

func TestExposuresFeedImpressions(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()
	lt := geoTest(t, svc)

	n, err := svc.RecordCampaignExposure(ctx, "camp-1", lifttest.ExposureInput{Region: "US"})
	require.NoError(t, err)
	assert.Zero(t, n, "draft tests take no exposures")

	_, err = svc.Start(ctx, lt.ID)
	require.NoError(t, err)
	for _, region := range []string{"US", "us", "CA", "FR"} {
		n, err := svc.RecordCampaignExposure(ctx, "camp-1", lifttest.ExposureInput{Region: region})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}
	_, err = svc.RecordCampaignConversion(ctx, "camp-1", lifttest.ConversionInput{Region: "US"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, lt.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Group(domain.GroupTest).Impressions)
	assert.Equal(t, int64(2), got.Group(domain.GroupControl).Impressions)

	r, err := svc.CalculateResults(ctx, lt.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), r.TestSampleSize)
	assert.InDelta(t, 0.5, r.TestConversionRate, 1e-9)
	assert.Zero(t, r.ControlConversionRate)
}

// staleRunning serves a listing captured before the tests changed state.
type staleRunning struct {
	*memory.LiftTestStore
	snapshot []domain.LiftTest
}

func (s *staleRunning) ListRunning(context.Context, string) ([]domain.LiftTest, error) {
	return s.snapshot, nil
}

func TestConversionRechecksStatusUnderLock(t *testing.T) {
	svc, store, _ := newService()
	ctx := context.Background()
	lt := geoTest(t, svc)
	_, err := svc.Start(ctx, lt.ID)
	require.NoError(t, err)

	snapshot, err := store.ListRunning(ctx, "camp-1")
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	_, err = svc.Complete(ctx, lt.ID)
	require.NoError(t, err)

	stale := lifttest.NewService(&staleRunning{LiftTestStore: store, snapshot: snapshot})
	n, err := stale.RecordCampaignConversion(ctx, "camp-1", lifttest.ConversionInput{Region: "US", Revenue: decimal.NewFromInt(50)})
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = stale.RecordCampaignExposure(ctx, "camp-1", lifttest.ExposureInput{Region: "US"})
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := svc.Get(ctx, lt.ID)
	require.NoError(t, err)
	test := got.Group(domain.GroupTest)
	assert.Zero(t, test.Conversions)
	assert.Zero(t, test.Impressions)
	assert.True(t, test.Revenue.IsZero())
}
