package stats

import (
	"math"

	"github.com/ignite/creatorhub/internal/domain"
)

// Z95 is the two-sided 95% normal quantile.
const Z95 = 1.96

// Lift returns (test-control)/control*100. When control is zero the result
// is 100 if test is positive and 0 otherwise.
func Lift(test, control float64) float64 {
	if control == 0 {
		if test > 0 {
			return 100
		}
		return 0
	}
	return (test - control) / control * 100
}

// Rate returns conversions/n, or 0 when n is 0.
func Rate(conversions, n int64) float64 {
	if n <= 0 {
		return 0
	}
	return float64(conversions) / float64(n)
}

// ConfidenceInterval returns a two-sided interval on relative lift, in
// percent, using the delta method on R = pT/pC:
//
//	Var(R) ~= Var(pT)/pC^2 + pT^2 * Var(pC)/pC^4
//
// where Var(p) = p(1-p)/n. Degenerate input returns (0, 0).
func ConfidenceInterval(testConv, testN, controlConv, controlN int64, z float64) (lower, upper float64) {
	testConv = clamp(testConv, testN)
	controlConv = clamp(controlConv, controlN)
	if testN <= 0 || controlN <= 0 {
		return 0, 0
	}
	pT := Rate(testConv, testN)
	pC := Rate(controlConv, controlN)
	if pC == 0 {
		return 0, 0
	}

	varT := pT * (1 - pT) / float64(testN)
	varC := pC * (1 - pC) / float64(controlN)
	variance := varT/(pC*pC) + (pT*pT)*varC/(pC*pC*pC*pC)
	se := math.Sqrt(variance)

	lift := pT/pC - 1
	return (lift - z*se) * 100, (lift + z*se) * 100
}

// Classify maps a p-value to a significance class.
func Classify(p float64) domain.Significance {
	switch {
	case p < 0.01:
		return domain.HighlySignificant
	case p < 0.05:
		return domain.Significant
	case p < 0.10:
		return domain.Trending
	default:
		return domain.NotSignificant
	}
}

var interpretations = map[domain.Significance][2]string{
	domain.HighlySignificant: {
		"Highly significant positive lift. The campaign is driving incremental conversions; scale it up.",
		"Highly significant negative lift. The campaign is suppressing conversions; pause it and review.",
	},
	domain.Significant: {
		"Significant positive lift. The campaign is likely driving incremental conversions; consider increasing investment.",
		"Significant negative lift. The campaign may be hurting conversions; review creative and targeting.",
	},
	domain.Trending: {
		"Positive lift is trending but not yet significant. Keep the test running to collect more data.",
		"Negative lift is trending but not yet significant. Keep the test running and monitor closely.",
	},
}

const (
	interpretNotSignificant = "No statistically significant difference yet. Continue the test or increase the sample size."
	interpretNoDifference   = "No difference between test and control."
)

// Interpret returns the fixed interpretation for a class and lift direction.
func Interpret(class domain.Significance, lift float64) string {
	if class == domain.NotSignificant {
		return interpretNotSignificant
	}
	if lift == 0 {
		return interpretNoDifference
	}
	texts, ok := interpretations[class]
	if !ok {
		return interpretNotSignificant
	}
	if lift > 0 {
		return texts[0]
	}
	return texts[1]
}

// Sample is the conversions and trials for one group.
type Sample struct {
	Conversions int64
	Trials      int64
}

// Outcome is the full comparison of a test and a control sample.
type Outcome struct {
	TestRate        float64
	ControlRate     float64
	LiftPercentage  float64
	AbsoluteLift    float64
	ChiSquared      float64
	PValue          float64
	ConfidenceLower float64
	ConfidenceUpper float64
	Class           domain.Significance
	IsSignificant   bool
	Interpretation  string
}

// Compare runs sig over the two samples and derives lift and interval.
// When neither sample has trials the lift falls back to the raw
// conversion counts; rates and significance stay at their empty values.
func Compare(sig SignificanceTest, test, control Sample) Outcome {
	testRate := Rate(test.Conversions, test.Trials)
	controlRate := Rate(control.Conversions, control.Trials)
	out := CompareRates(sig, test, control, testRate, controlRate)
	if test.Trials == 0 && control.Trials == 0 {
		lift := Lift(float64(test.Conversions), float64(control.Conversions))
		out.LiftPercentage = round4(lift)
		out.Interpretation = Interpret(out.Class, lift)
	}
	return out
}

// CompareRates is Compare with caller-supplied rates for the lift figures.
// Time-based tests pass daily rates here while significance still uses
// conversions over trials.
func CompareRates(sig SignificanceTest, test, control Sample, testRate, controlRate float64) Outcome {
	s := sig.Test(test.Conversions, test.Trials, control.Conversions, control.Trials)
	lift := Lift(testRate, controlRate)
	lower, upper := ConfidenceInterval(test.Conversions, test.Trials, control.Conversions, control.Trials, Z95)
	class := Classify(s.PValue)
	return Outcome{
		TestRate:        testRate,
		ControlRate:     controlRate,
		LiftPercentage:  round4(lift),
		AbsoluteLift:    round4(testRate - controlRate),
		ChiSquared:      s.ChiSquared,
		PValue:          s.PValue,
		ConfidenceLower: round4(lower),
		ConfidenceUpper: round4(upper),
		Class:           class,
		IsSignificant:   s.IsSignificant,
		Interpretation:  Interpret(class, lift),
	}
}

func round4(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*1e4) / 1e4
}
