// Package stats computes lift and significance for two-group conversion
// experiments. Callers depend on the SignificanceTest interface so the
// closed-form chi-squared implementation can be replaced without touching
// them.
package stats

import "math"

// DefaultAlpha is the significance threshold.
const DefaultAlpha = 0.05

// Significance is the outcome of a significance test.
type Significance struct {
	ChiSquared    float64 `json:"chi_squared"`
	PValue        float64 `json:"p_value"`
	IsSignificant bool    `json:"is_significant"`
}

// SignificanceTest compares conversions out of trials for a test and a
// control group. Implementations never fail on degenerate input; they
// report p = 1 instead.
type SignificanceTest interface {
	Test(testConv, testN, controlConv, controlN int64) Significance
}

// ChiSquared is a 2x2 contingency-table chi-squared test with Yates'
// continuity correction and one degree of freedom.
type ChiSquared struct {
	Alpha float64
}

// NewChiSquared returns a test using DefaultAlpha.
func NewChiSquared() ChiSquared { return ChiSquared{Alpha: DefaultAlpha} }

// Test implements SignificanceTest.
func (c ChiSquared) Test(testConv, testN, controlConv, controlN int64) Significance {
	alpha := c.Alpha
	if alpha <= 0 {
		alpha = DefaultAlpha
	}
	chi := ChiSquaredStatistic(testConv, testN, controlConv, controlN)
	p := PValue(chi)
	return Significance{ChiSquared: chi, PValue: p, IsSignificant: p < alpha}
}

// ChiSquaredStatistic builds the table
//
//	          converted   not converted
//	test      a           b
//	control   c           d
//
// and returns sum((max(0, |O-E| - 0.5))^2 / E). A table with an empty row
// or column yields 0.
func ChiSquaredStatistic(testConv, testN, controlConv, controlN int64) float64 {
	testConv = clamp(testConv, testN)
	controlConv = clamp(controlConv, controlN)
	if testN <= 0 || controlN <= 0 {
		return 0
	}

	a := float64(testConv)
	b := float64(testN - testConv)
	c := float64(controlConv)
	d := float64(controlN - controlConv)
	n := a + b + c + d

	rows := [2]float64{a + b, c + d}
	cols := [2]float64{a + c, b + d}
	if cols[0] == 0 || cols[1] == 0 {
		return 0
	}

	observed := [2][2]float64{{a, b}, {c, d}}
	var chi float64
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			expected := rows[i] * cols[j] / n
			diff := math.Abs(observed[i][j]-expected) - 0.5
			if diff < 0 {
				diff = 0
			}
			chi += diff * diff / expected
		}
	}
	return chi
}

// PValue converts a 1-df chi-squared statistic to a p-value:
// p = 1 - erf(sqrt(chi/2)).
func PValue(chi float64) float64 {
	if chi <= 0 || math.IsNaN(chi) {
		return 1
	}
	p := 1 - Erf(math.Sqrt(chi/2))
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Erf is the Abramowitz-Stegun 7.1.26 approximation (|error| <= 1.5e-7).
func Erf(x float64) float64 {
	const (
		a1 = 0.254829592
		a2 = -0.284496736
		a3 = 1.421413741
		a4 = -1.453152027
		a5 = 1.061405429
		p  = 0.3275911
	)
	sign := 1.0
	if x < 0 {
		sign = -1
		x = -x
	}
	t := 1 / (1 + p*x)
	y := 1 - ((((a5*t+a4)*t+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)
	return sign * y
}

func clamp(conv, n int64) int64 {
	if conv < 0 {
		return 0
	}
	if n >= 0 && conv > n {
		return n
	}
	return conv
}
