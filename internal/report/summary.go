// Package report renders human-readable summaries of lift tests and
// collaboration attribution, and exports ledger statements.
package report

import (
	"fmt"
	"strings"

	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/pkg/money"
	"github.com/osteele/liquid"
)

const liftTemplate = `Lift test "{{ test.name }}" ({{ test.type | humanize }}, {{ test.status }})
{% if result -%}
Test group: {{ result.test_conversions }} conversions from {{ result.test_n }} ({{ result.test_rate }})
Control group: {{ result.control_conversions }} conversions from {{ result.control_n }} ({{ result.control_rate }})
Lift: {{ result.lift }} ({{ result.ci }} 95% CI), p = {{ result.p_value }}
Incremental revenue: {{ result.incremental_revenue }}
Significance: {{ result.significance | humanize }}
{{ result.interpretation }}
{%- else -%}
No results calculated yet.
{%- endif %}`

const attributionTemplate = `Attribution for {{ bundle.affiliate_code }}{% if bundle.coupon %} / coupon {{ bundle.coupon }}{% endif %}
Clicks: {{ result.clicks }}
Conversions: {{ result.conversions }} ({{ result.conversion_rate }}% of clicks)
Revenue: {{ result.revenue }} against creator cost {{ result.cost }}
ROAS: {{ result.roas }}x{% if result.cpa %}, cost per conversion {{ result.cpa }}{% endif %}
Average order value: {{ result.aov }}`

// Renderer holds the parsed summary templates. It is safe for concurrent use.
type Renderer struct {
	engine      *liquid.Engine
	lift        *liquid.Template
	attribution *liquid.Template
}

// NewRenderer parses the built-in templates.
func NewRenderer() (*Renderer, error) {
	engine := liquid.NewEngine()
	// Humanize snake case: {{ "random_split" | humanize }} -> "random split"
	engine.RegisterFilter("humanize", func(s string) string {
		return strings.ReplaceAll(s, "_", " ")
	})

	lift, err := engine.ParseString(liftTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse lift template: %w", err)
	}
	attr, err := engine.ParseString(attributionTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse attribution template: %w", err)
	}
	return &Renderer{engine: engine, lift: lift, attribution: attr}, nil
}

// LiftSummary describes a test and its latest result.
func (r *Renderer) LiftSummary(t *domain.LiftTest) (string, error) {
	bindings := map[string]interface{}{
		"test": map[string]interface{}{
			"name":   t.Name,
			"type":   string(t.TestType),
			"status": string(t.Status),
		},
	}
	if res := t.Result; res != nil {
		var testConv, controlConv int64
		if g := t.Group(domain.GroupTest); g != nil {
			testConv = g.Conversions
		}
		if g := t.Group(domain.GroupControl); g != nil {
			controlConv = g.Conversions
		}
		bindings["result"] = map[string]interface{}{
			"test_conversions":    testConv,
			"control_conversions": controlConv,
			"test_n":              res.TestSampleSize,
			"control_n":           res.ControlSampleSize,
			"test_rate":           percent(res.TestConversionRate * 100),
			"control_rate":        percent(res.ControlConversionRate * 100),
			"lift":                signedPercent(res.LiftPercentage),
			"ci":                  fmt.Sprintf("%s to %s", signedPercent(res.ConfidenceLower), signedPercent(res.ConfidenceUpper)),
			"p_value":             fmt.Sprintf("%.4f", res.PValue),
			"incremental_revenue": money.Format(res.IncrementalRevenue),
			"significance":        string(res.Significance),
			"interpretation":      res.Interpretation,
		}
	}
	out, err := r.lift.RenderString(bindings)
	if err != nil {
		return "", fmt.Errorf("render lift summary: %w", err)
	}
	return out, nil
}

// AttributionSummary describes a collaboration's attributed performance.
func (r *Renderer) AttributionSummary(b *domain.TrackingBundle, res *domain.AttributionResult) (string, error) {
	bundle := map[string]interface{}{"affiliate_code": b.AffiliateCode}
	if b.CouponCode != nil {
		bundle["coupon"] = *b.CouponCode
	}
	result := map[string]interface{}{
		"clicks":          res.TotalClicks,
		"conversions":     res.TotalConversions,
		"conversion_rate": res.ConversionRate.StringFixed(2),
		"revenue":         money.Format(res.TotalRevenue),
		"cost":            money.Format(res.CreatorCost),
		"roas":            res.ROAS.StringFixed(2),
		"aov":             money.Format(res.AverageOrderValue),
	}
	if res.TotalConversions > 0 {
		result["cpa"] = money.Format(res.CostPerConversion)
	}
	out, err := r.attribution.RenderString(map[string]interface{}{"bundle": bundle, "result": result})
	if err != nil {
		return "", fmt.Errorf("render attribution summary: %w", err)
	}
	return out, nil
}

func percent(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}

func signedPercent(v float64) string {
	return fmt.Sprintf("%+.1f%%", v)
}
