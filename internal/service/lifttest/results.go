package lifttest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/stats"
	"github.com/shopspring/decimal"
)

// CalculateResults compares the Test and Control group counters and stores
// the result. Time-based tests are delegated to CalculateTimeBasedResults.
// Repeated calls without new events yield the same figures.
func (s *Service) CalculateResults(ctx context.Context, testID string) (*domain.LiftTestResult, error) {
	t, err := s.repo.GetTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	if t.TestType == domain.LiftTimeBased {
		return s.calculateTimeBased(ctx, t)
	}

	test, control := t.Group(domain.GroupTest), t.Group(domain.GroupControl)
	if test == nil || control == nil {
		return nil, ErrGroupNotFound
	}
	out := stats.Compare(s.sig,
		stats.Sample{Conversions: test.Conversions, Trials: test.SampleSize()},
		stats.Sample{Conversions: control.Conversions, Trials: control.SampleSize()},
	)
	r := s.result(t.ID, out, test.SampleSize(), control.SampleSize())
	r.IncrementalRevenue = test.Revenue.Sub(control.Revenue).Round(2)
	return s.store(ctx, r)
}

// CalculateTimeBasedResults compares the campaign window against the
// baseline window of the same traffic. Conversions are normalized to a
// daily rate before computing lift because the windows may differ in
// length; significance still uses conversions over clicks.
func (s *Service) CalculateTimeBasedResults(ctx context.Context, testID string) (*domain.LiftTestResult, error) {
	t, err := s.repo.GetTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	return s.calculateTimeBased(ctx, t)
}

func (s *Service) calculateTimeBased(ctx context.Context, t *domain.LiftTest) (*domain.LiftTestResult, error) {
	if t.TestType != domain.LiftTimeBased || t.BaselineStart == nil || t.BaselineEnd == nil {
		return nil, ErrNotTimeBased
	}
	if t.StartedAt == nil {
		return nil, ErrNotStarted
	}
	if s.windows == nil {
		return nil, fmt.Errorf("lift test %s: no attribution window source configured", t.ID)
	}

	activeEnd := s.now()
	if t.EndedAt != nil {
		activeEnd = *t.EndedAt
	}
	baseline, err := s.windows.WindowTotals(ctx, t.CampaignID, *t.BaselineStart, *t.BaselineEnd)
	if err != nil {
		return nil, fmt.Errorf("baseline window: %w", err)
	}
	active, err := s.windows.WindowTotals(ctx, t.CampaignID, *t.StartedAt, activeEnd)
	if err != nil {
		return nil, fmt.Errorf("campaign window: %w", err)
	}

	baselineDays := windowDays(*t.BaselineStart, *t.BaselineEnd)
	activeDays := windowDays(*t.StartedAt, activeEnd)
	testDaily := float64(active.Conversions) / activeDays
	controlDaily := float64(baseline.Conversions) / baselineDays

	out := stats.CompareRates(s.sig,
		stats.Sample{Conversions: active.Conversions, Trials: active.Clicks},
		stats.Sample{Conversions: baseline.Conversions, Trials: baseline.Clicks},
		testDaily, controlDaily,
	)
	r := s.result(t.ID, out, active.Clicks, baseline.Clicks)

	// Revenue above the baseline daily run rate over the campaign window.
	days := decimal.NewFromFloat(activeDays)
	activeRevenue := active.Revenue
	baselineDailyRevenue := baseline.Revenue.Div(decimal.NewFromFloat(baselineDays))
	r.IncrementalRevenue = activeRevenue.Sub(baselineDailyRevenue.Mul(days)).Round(2)
	return s.store(ctx, r)
}

// windowDays is the window length in days, at least one.
func windowDays(from, to time.Time) float64 {
	d := to.Sub(from).Hours() / 24
	if d < 1 {
		return 1
	}
	return math.Round(d*1e4) / 1e4
}

func (s *Service) result(testID string, out stats.Outcome, testN, controlN int64) *domain.LiftTestResult {
	return &domain.LiftTestResult{
		LiftTestID:            testID,
		LiftPercentage:        out.LiftPercentage,
		AbsoluteLift:          out.AbsoluteLift,
		PValue:                out.PValue,
		ChiSquared:            out.ChiSquared,
		ConfidenceLower:       out.ConfidenceLower,
		ConfidenceUpper:       out.ConfidenceUpper,
		TestSampleSize:        testN,
		ControlSampleSize:     controlN,
		TestConversionRate:    out.TestRate,
		ControlConversionRate: out.ControlRate,
		Significance:          out.Class,
		IsSignificant:         out.IsSignificant,
		Interpretation:        out.Interpretation,
		CalculatedAt:          s.now(),
	}
}

func (s *Service) store(ctx context.Context, r *domain.LiftTestResult) (*domain.LiftTestResult, error) {
	if err := s.repo.InsertResult(ctx, r); err != nil {
		return nil, fmt.Errorf("store lift result: %w", err)
	}
	return r, nil
}
