// Package money holds the fixed-point helpers and fee schedule shared by every
// place that surfaces campaign funding requirements.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Fee rates are applied multiplicatively to the budget and never compounded.
var (
	PlatformFeeRate   = decimal.RequireFromString("0.05")
	ProcessingFeeRate = decimal.RequireFromString("0.029")
)

var hundred = decimal.NewFromInt(100)

// Allocation is the funding breakdown for a target budget.
type Allocation struct {
	Budget        decimal.Decimal `json:"budget"`
	PlatformFee   decimal.Decimal `json:"platform_fee"`
	ProcessingFee decimal.Decimal `json:"processing_fee"`
	TotalRequired decimal.Decimal `json:"total_required"`
}

// AllocationTotals computes platform and processing fees for a budget.
func AllocationTotals(budget decimal.Decimal) Allocation {
	budget = Round(budget)
	platform := Round(budget.Mul(PlatformFeeRate))
	processing := Round(budget.Mul(ProcessingFeeRate))
	return Allocation{
		Budget:        budget,
		PlatformFee:   platform,
		ProcessingFee: processing,
		TotalRequired: budget.Add(platform).Add(processing),
	}
}

// EscrowAmount returns budget * pct / 100 rounded to cents.
func EscrowAmount(budget, pct decimal.Decimal) decimal.Decimal {
	return Round(budget.Mul(pct).Div(hundred))
}

// Round rounds half away from zero to cents.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Format renders an amount with exactly two decimal places.
func Format(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// FormatPtr renders a nullable amount; nil renders as an empty string.
func FormatPtr(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return Format(*d)
}

// Parse reads a decimal amount such as "1200" or "1200.50".
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d, nil
}

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}
