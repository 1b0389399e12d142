package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LiftTestType selects how test and control are formed.
type LiftTestType string

const (
	LiftGeographic  LiftTestType = "geographic"
	LiftRandomSplit LiftTestType = "random_split"
	LiftTimeBased   LiftTestType = "time_based"
)

// Valid reports whether t is a known test type.
func (t LiftTestType) Valid() bool {
	return t == LiftGeographic || t == LiftRandomSplit || t == LiftTimeBased
}

// Population reports whether the type splits traffic into two populations.
// Time-based tests compare two windows of the same traffic instead.
func (t LiftTestType) Population() bool {
	return t == LiftGeographic || t == LiftRandomSplit
}

// LiftTestStatus is the test lifecycle state.
type LiftTestStatus string

const (
	LiftDraft     LiftTestStatus = "draft"
	LiftRunning   LiftTestStatus = "running"
	LiftPaused    LiftTestStatus = "paused"
	LiftCompleted LiftTestStatus = "completed"
)

// CanTransitionTo encodes draft -> running -> {paused <-> running} -> completed.
func (s LiftTestStatus) CanTransitionTo(next LiftTestStatus) bool {
	switch s {
	case LiftDraft:
		return next == LiftRunning
	case LiftRunning:
		return next == LiftPaused || next == LiftCompleted
	case LiftPaused:
		return next == LiftRunning || next == LiftCompleted
	}
	return false
}

// GroupType distinguishes the treated group from the control group.
type GroupType string

const (
	GroupTest    GroupType = "test"
	GroupControl GroupType = "control"
)

// GroupEventType is a counter that RecordGroupEvent can increment.
type GroupEventType string

const (
	GroupImpression GroupEventType = "impression"
	GroupUniqueUser GroupEventType = "unique_user"
	GroupConversion GroupEventType = "conversion"
	GroupRevenue    GroupEventType = "revenue"
)

// Valid reports whether t is a known group event type.
func (t GroupEventType) Valid() bool {
	switch t {
	case GroupImpression, GroupUniqueUser, GroupConversion, GroupRevenue:
		return true
	}
	return false
}

// LiftTest is an incrementality experiment scoped to one campaign.
type LiftTest struct {
	ID            string          `json:"id" db:"id"`
	CampaignID    string          `json:"campaign_id" db:"campaign_id"`
	Name          string          `json:"name" db:"name"`
	TestType      LiftTestType    `json:"test_type" db:"test_type"`
	Status        LiftTestStatus  `json:"status" db:"status"`
	SplitMethod   string          `json:"split_method" db:"split_method"`
	TargetLiftPct *float64        `json:"target_lift_pct,omitempty" db:"target_lift_pct"`
	BaselineStart *time.Time      `json:"baseline_start,omitempty" db:"baseline_start"`
	BaselineEnd   *time.Time      `json:"baseline_end,omitempty" db:"baseline_end"`
	StartedAt     *time.Time      `json:"started_at,omitempty" db:"started_at"`
	EndedAt       *time.Time      `json:"ended_at,omitempty" db:"ended_at"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
	Groups        []LiftTestGroup `json:"groups"`
	Result        *LiftTestResult `json:"result,omitempty"`
}

// Group returns the group of the given type, or nil.
func (t *LiftTest) Group(gt GroupType) *LiftTestGroup {
	for i := range t.Groups {
		if t.Groups[i].GroupType == gt {
			return &t.Groups[i]
		}
	}
	return nil
}

// LiftTestGroup carries monotonic counters while its test is running.
type LiftTestGroup struct {
	ID          string          `json:"id" db:"id"`
	LiftTestID  string          `json:"lift_test_id" db:"lift_test_id"`
	GroupType   GroupType       `json:"group_type" db:"group_type"`
	Regions     []string        `json:"regions,omitempty" db:"regions"`
	Percentage  int             `json:"percentage" db:"percentage"`
	Impressions int64           `json:"impressions" db:"impressions"`
	UniqueUsers int64           `json:"unique_users" db:"unique_users"`
	Conversions int64           `json:"conversions" db:"conversions"`
	Revenue     decimal.Decimal `json:"revenue" db:"revenue"`
}

// SampleSize is unique users when tracked, otherwise impressions.
func (g *LiftTestGroup) SampleSize() int64 {
	if g.UniqueUsers > 0 {
		return g.UniqueUsers
	}
	return g.Impressions
}

// GroupDelta is a set of non-negative counter increments.
type GroupDelta struct {
	Impressions int64
	UniqueUsers int64
	Conversions int64
	Revenue     decimal.Decimal
}

// Significance classifies a p-value.
type Significance string

const (
	NotSignificant    Significance = "not_significant"
	Trending          Significance = "trending"
	Significant       Significance = "significant"
	HighlySignificant Significance = "highly_significant"
)

// LiftTestResult is derived from group counters on demand and never edited.
type LiftTestResult struct {
	LiftTestID            string          `json:"lift_test_id" db:"lift_test_id"`
	LiftPercentage        float64         `json:"lift_percentage" db:"lift_percentage"`
	AbsoluteLift          float64         `json:"absolute_lift" db:"absolute_lift"`
	IncrementalRevenue    decimal.Decimal `json:"incremental_revenue" db:"incremental_revenue"`
	PValue                float64         `json:"p_value" db:"p_value"`
	ChiSquared            float64         `json:"chi_squared" db:"chi_squared"`
	ConfidenceLower       float64         `json:"confidence_lower" db:"confidence_lower"`
	ConfidenceUpper       float64         `json:"confidence_upper" db:"confidence_upper"`
	TestSampleSize        int64           `json:"test_sample_size" db:"test_sample_size"`
	ControlSampleSize     int64           `json:"control_sample_size" db:"control_sample_size"`
	TestConversionRate    float64         `json:"test_conversion_rate" db:"test_conversion_rate"`
	ControlConversionRate float64         `json:"control_conversion_rate" db:"control_conversion_rate"`
	Significance          Significance    `json:"significance" db:"significance"`
	IsSignificant         bool            `json:"is_significant" db:"is_significant"`
	Interpretation        string          `json:"interpretation" db:"interpretation"`
	CalculatedAt          time.Time       `json:"calculated_at" db:"calculated_at"`
}

// WindowTotals aggregates attribution events for one campaign time window.
type WindowTotals struct {
	Clicks      int64
	Conversions int64
	Revenue     decimal.Decimal
}
