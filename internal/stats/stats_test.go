package stats

import (
	"math"
	"testing"

	"github.com/ignite/creatorhub/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestIdenticalGroupsAreNotSignificant(t *testing.T) {
	s := NewChiSquared().Test(100, 1000, 100, 1000)

	assert.InDelta(t, 1.0, s.PValue, 1e-9)
	assert.Equal(t, 0.0, s.ChiSquared)
	assert.False(t, s.IsSignificant)
}

func TestExtremeDisparityIsHighlySignificant(t *testing.T) {
	s := NewChiSquared().Test(500, 1000, 10, 1000)

	assert.Less(t, s.PValue, 0.01)
	assert.True(t, s.IsSignificant)
	assert.Equal(t, domain.HighlySignificant, Classify(s.PValue))
}

func TestDegenerateTablesReturnPOne(t *testing.T) {
	cases := [][4]int64{
		{0, 0, 0, 0},
		{0, 1000, 0, 1000},   // nobody converted
		{1000, 1000, 50, 50}, // everybody converted
		{10, 100, 0, 0},      // empty control
		{-5, 100, -1, 100},   // negative counts clamp to zero
	}
	for _, c := range cases {
		s := NewChiSquared().Test(c[0], c[1], c[2], c[3])
		assert.Equal(t, 1.0, s.PValue, "%v", c)
		assert.False(t, math.IsNaN(s.ChiSquared))
	}
}

func TestYatesCorrectionClampsAtZero(t *testing.T) {
	// |O-E| is 0.25 in every cell, below the 0.5 correction.
	chi := ChiSquaredStatistic(10, 20, 9, 19)
	assert.Equal(t, 0.0, chi)
}

func TestKnownChiSquared(t *testing.T) {
	// a=30 b=70 c=15 d=85: E = 22.5/77.5 per row.
	// Yates: (|30-22.5|-0.5)^2 = 49 per cell.
	chi := ChiSquaredStatistic(30, 100, 15, 100)
	want := 49/22.5 + 49/77.5 + 49/22.5 + 49/77.5
	assert.InDelta(t, want, chi, 1e-9)
}

func TestPValueMatchesReferenceValues(t *testing.T) {
	assert.InDelta(t, 0.05, PValue(3.841459), 1e-4)
	assert.InDelta(t, 0.01, PValue(6.634897), 1e-4)
	assert.InDelta(t, 0.10, PValue(2.705543), 1e-4)
	assert.Equal(t, 1.0, PValue(0))
	assert.Equal(t, 1.0, PValue(-3))
}

func TestErfApproximationBound(t *testing.T) {
	for x := -4.0; x <= 4.0; x += 0.05 {
		assert.InDelta(t, math.Erf(x), Erf(x), 2e-7, "x=%v", x)
	}
}

func TestLift(t *testing.T) {
	assert.InDelta(t, 50.0, Lift(0.15, 0.10), 1e-9)
	assert.InDelta(t, -50.0, Lift(0.05, 0.10), 1e-9)
	assert.Equal(t, 100.0, Lift(0.2, 0))
	assert.Equal(t, 0.0, Lift(0, 0))
}

func TestConfidenceIntervalContainsPointEstimate(t *testing.T) {
	lower, upper := ConfidenceInterval(150, 1000, 100, 1000, Z95)
	assert.Less(t, lower, 50.0)
	assert.Greater(t, upper, 50.0)
	assert.Greater(t, lower, 0.0)

	lower, upper = ConfidenceInterval(10, 100, 0, 100, Z95)
	assert.Equal(t, 0.0, lower)
	assert.Equal(t, 0.0, upper)
}

func TestClassifyBoundaries(t *testing.T) {
	assert.Equal(t, domain.HighlySignificant, Classify(0.009))
	assert.Equal(t, domain.Significant, Classify(0.01))
	assert.Equal(t, domain.Significant, Classify(0.049))
	assert.Equal(t, domain.Trending, Classify(0.05))
	assert.Equal(t, domain.Trending, Classify(0.099))
	assert.Equal(t, domain.NotSignificant, Classify(0.10))
}

func TestInterpretDirection(t *testing.T) {
	pos := Interpret(domain.Significant, 12)
	neg := Interpret(domain.Significant, -12)
	assert.NotEqual(t, pos, neg)
	assert.Contains(t, pos, "positive")
	assert.Contains(t, neg, "negative")
	assert.Equal(t, Interpret(domain.NotSignificant, 40), Interpret(domain.NotSignificant, -40))
}

func TestCompare(t *testing.T) {
	o := Compare(NewChiSquared(), Sample{Conversions: 500, Trials: 1000}, Sample{Conversions: 10, Trials: 1000})

	assert.InDelta(t, 0.5, o.TestRate, 1e-9)
	assert.InDelta(t, 0.01, o.ControlRate, 1e-9)
	assert.InDelta(t, 4900.0, o.LiftPercentage, 1e-6)
	assert.InDelta(t, 0.49, o.AbsoluteLift, 1e-9)
	assert.Equal(t, domain.HighlySignificant, o.Class)
	assert.True(t, o.IsSignificant)

	zero := Compare(NewChiSquared(), Sample{}, Sample{})
	assert.Equal(t, 0.0, zero.LiftPercentage)
	assert.Equal(t, 1.0, zero.PValue)
	assert.Equal(t, domain.NotSignificant, zero.Class)
}

func TestCompareWithoutTrialsUsesConversionCounts(t *testing.T) {
	o := Compare(NewChiSquared(), Sample{Conversions: 200}, Sample{Conversions: 5})
	assert.InDelta(t, 3900.0, o.LiftPercentage, 1e-9)
	assert.Zero(t, o.TestRate)
	assert.Zero(t, o.ControlRate)
	assert.Equal(t, 1.0, o.PValue)
	assert.Equal(t, domain.NotSignificant, o.Class)

	noControl := Compare(NewChiSquared(), Sample{Conversions: 3}, Sample{})
	assert.Equal(t, 100.0, noControl.LiftPercentage)

	fewer := Compare(NewChiSquared(), Sample{Conversions: 5}, Sample{Conversions: 10})
	assert.InDelta(t, -50.0, fewer.LiftPercentage, 1e-9)
}
