package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the kind of money movement.
type TransactionType string

const (
	TxDeposit    TransactionType = "deposit"
	TxPayment    TransactionType = "payment"
	TxWithdrawal TransactionType = "withdrawal"
)

// TransactionStatus tracks gateway confirmation. Only pending rows change.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxCompleted TransactionStatus = "completed"
	TxFailed    TransactionStatus = "failed"
)

// Transaction is an append-only money movement. A nil CampaignID means the
// movement belongs to the brand's vault. Deposits are positive, withdrawals
// negative. Once completed, amount and type never change.
type Transaction struct {
	ID               string            `json:"id" db:"id"`
	BrandID          string            `json:"brand_id" db:"brand_id"`
	UserID           string            `json:"user_id" db:"user_id"`
	CampaignID       *string           `json:"campaign_id,omitempty" db:"campaign_id"`
	Amount           decimal.Decimal   `json:"amount" db:"amount"`
	Type             TransactionType   `json:"type" db:"type"`
	Status           TransactionStatus `json:"status" db:"status"`
	GatewayProvider  string            `json:"gateway_provider,omitempty" db:"gateway_provider"`
	GatewayReference *string           `json:"gateway_reference,omitempty" db:"gateway_reference"`
	Description      string            `json:"description" db:"description"`
	CreatedAt        time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at" db:"updated_at"`
}

// IsVault reports whether the transaction is vault-level.
func (t *Transaction) IsVault() bool { return t.CampaignID == nil }

// LedgerEntryType is the kind of escrow bookkeeping row.
type LedgerEntryType string

const (
	LedgerFunding    LedgerEntryType = "funding"
	LedgerRelease    LedgerEntryType = "release"
	LedgerAdjustment LedgerEntryType = "adjustment"
)

// Valid reports whether t is a known ledger entry type.
func (t LedgerEntryType) Valid() bool {
	switch t {
	case LedgerFunding, LedgerRelease, LedgerAdjustment:
		return true
	}
	return false
}

// LedgerEntryStatus mirrors TransactionStatus for escrow ledger rows.
type LedgerEntryStatus string

const (
	LedgerPending   LedgerEntryStatus = "pending"
	LedgerCompleted LedgerEntryStatus = "completed"
	LedgerFailed    LedgerEntryStatus = "failed"
)

// EscrowLedgerEntry is campaign-scoped milestone bookkeeping tied to a brand.
// A (CampaignID, MilestoneID) pair has at most one completed release.
type EscrowLedgerEntry struct {
	ID          string            `json:"id" db:"id"`
	BrandID     string            `json:"brand_id" db:"brand_id"`
	CampaignID  string            `json:"campaign_id" db:"campaign_id"`
	Type        LedgerEntryType   `json:"type" db:"type"`
	Amount      decimal.Decimal   `json:"amount" db:"amount"`
	MilestoneID *string           `json:"milestone_id,omitempty" db:"milestone_id"`
	Status      LedgerEntryStatus `json:"status" db:"status"`
	Description string            `json:"description" db:"description"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
}

// SignedAmount is the entry's effect on the running balance: releases
// subtract, funding and adjustments add.
func (e *EscrowLedgerEntry) SignedAmount() decimal.Decimal {
	if e.Type == LedgerRelease {
		return e.Amount.Neg()
	}
	return e.Amount
}

// AuditEvent records a state-changing action for later review.
type AuditEvent struct {
	ID         string          `json:"id" db:"id"`
	ActorID    string          `json:"actor_id" db:"actor_id"`
	EntityType string          `json:"entity_type" db:"entity_type"`
	EntityID   string          `json:"entity_id" db:"entity_id"`
	Action     string          `json:"action" db:"action"`
	Metadata   json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// LiquidityState classifies a brand's ability to honor pending releases.
type LiquidityState string

const (
	LiquidityHealthy LiquidityState = "healthy"
	LiquidityWatch   LiquidityState = "watch"
	LiquidityRisk    LiquidityState = "risk"
)
