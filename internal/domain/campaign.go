package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
)

// Valid reports whether s is a known status.
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignDraft, CampaignActive, CampaignPaused, CampaignCompleted:
		return true
	}
	return false
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
// Campaigns are never deleted; completed is terminal.
func (s CampaignStatus) CanTransitionTo(next CampaignStatus) bool {
	switch s {
	case CampaignDraft:
		return next == CampaignActive || next == CampaignCompleted
	case CampaignActive:
		return next == CampaignPaused || next == CampaignCompleted
	case CampaignPaused:
		return next == CampaignActive || next == CampaignCompleted
	}
	return false
}

// EscrowStatus records whether escrow has been locked for a campaign.
type EscrowStatus string

const (
	EscrowNone   EscrowStatus = "none"
	EscrowLocked EscrowStatus = "locked"
)

// PaymentModel describes how creators on the campaign are paid.
type PaymentModel string

const (
	PaymentFixed       PaymentModel = "fixed"
	PaymentPerPost     PaymentModel = "per_post"
	PaymentPerformance PaymentModel = "performance"
	PaymentHybrid      PaymentModel = "hybrid"
)

// Valid reports whether m is a known payment model.
func (m PaymentModel) Valid() bool {
	switch m {
	case PaymentFixed, PaymentPerPost, PaymentPerformance, PaymentHybrid:
		return true
	}
	return false
}

// RiskLevel buckets a 0-100 risk score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Campaign is a brand-owned spending unit.
//
// Invariant: EscrowBalance == TotalFunded - TotalReleased. Every mutating
// ledger operation maintains it; it is never derived from history alone.
type Campaign struct {
	ID               string          `json:"id" db:"id"`
	BrandID          string          `json:"brand_id" db:"brand_id"`
	Name             string          `json:"name" db:"name"`
	TargetBudget     decimal.Decimal `json:"target_budget" db:"target_budget"`
	EscrowPercentage decimal.Decimal `json:"escrow_percentage" db:"escrow_percentage"`
	PaymentModel     PaymentModel    `json:"payment_model" db:"payment_model"`
	RiskScore        int             `json:"risk_score" db:"risk_score"`
	RiskLevel        RiskLevel       `json:"risk_level" db:"risk_level"`
	Status           CampaignStatus  `json:"status" db:"status"`
	EscrowStatus     EscrowStatus    `json:"escrow_status" db:"escrow_status"`
	EscrowBalance    decimal.Decimal `json:"escrow_balance" db:"escrow_balance"`
	TotalFunded      decimal.Decimal `json:"total_funded" db:"total_funded"`
	TotalReleased    decimal.Decimal `json:"total_released" db:"total_released"`
	BaseURL          string          `json:"base_url" db:"base_url"`
	StartDate        time.Time       `json:"start_date" db:"start_date"`
	EndDate          time.Time       `json:"end_date" db:"end_date"`
	Milestones       Milestones      `json:"milestones" db:"milestones"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// BalanceConsistent reports whether the escrow balance matches funded minus released.
func (c *Campaign) BalanceConsistent() bool {
	return c.EscrowBalance.Equal(c.TotalFunded.Sub(c.TotalReleased))
}

// OutstandingCommitment is max(0, totalFunded - totalReleased).
func (c *Campaign) OutstandingCommitment() decimal.Decimal {
	v := c.TotalFunded.Sub(c.TotalReleased)
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// CampaignEscrow is the 1:1 escrow record for a campaign.
//
// Invariant: RemainingAmount == LockedAmount - ReleasedAmount >= 0.
type CampaignEscrow struct {
	ID              string          `json:"id" db:"id"`
	CampaignID      string          `json:"campaign_id" db:"campaign_id"`
	LockedAmount    decimal.Decimal `json:"locked_amount" db:"locked_amount"`
	ReleasedAmount  decimal.Decimal `json:"released_amount" db:"released_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount" db:"remaining_amount"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// Consistent reports whether remaining == locked - released and remaining >= 0.
func (e *CampaignEscrow) Consistent() bool {
	return e.RemainingAmount.Equal(e.LockedAmount.Sub(e.ReleasedAmount)) && !e.RemainingAmount.IsNegative()
}
