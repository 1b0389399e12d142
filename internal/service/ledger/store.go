// Package ledger defines the data access contract for money movements:
// campaigns, their escrow records, transactions, escrow ledger entries and
// audit events.
//
// Every ledger write goes through Store.WithinTx. The Tx handed to the
// callback is the only write path, and any error returned from the callback
// rolls back every write made through it. Implementations live in
// repository/postgres/ and repository/memory/.
package ledger

import (
	"context"

	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/pkg/apperr"
)

// Sentinel errors returned by Store implementations.
var (
	ErrCampaignNotFound    = apperr.New(apperr.KindNotFound, "campaign_not_found", "campaign not found")
	ErrEscrowNotFound      = apperr.New(apperr.KindNotFound, "escrow_not_found", "campaign escrow not found")
	ErrTransactionNotFound = apperr.New(apperr.KindNotFound, "transaction_not_found", "transaction not found")
	ErrEscrowExists        = apperr.New(apperr.KindConflict, "escrow_already_locked", "escrow already exists for campaign")
	ErrDuplicateRelease    = apperr.New(apperr.KindConflict, "already_released", "milestone already released")
	ErrDuplicateReference  = apperr.New(apperr.KindConflict, "duplicate_gateway_reference", "gateway reference already recorded")
	ErrTransactionSettled  = apperr.New(apperr.KindConflict, "transaction_settled", "transaction is no longer pending")
)

// Store is the transactional ledger.
type Store interface {
	Reader
	// WithinTx runs fn in one database transaction. fn's error, or a panic,
	// rolls everything back.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Reader holds the non-locking reads. Results reflect committed state.
type Reader interface {
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)
	ListCampaigns(ctx context.Context, brandID string, f CampaignFilter) ([]domain.Campaign, error)
	// ListAllCampaigns walks every campaign for reconciliation.
	ListAllCampaigns(ctx context.Context) ([]domain.Campaign, error)
	GetEscrow(ctx context.Context, campaignID string) (*domain.CampaignEscrow, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	GetTransactionByReference(ctx context.Context, provider, reference string) (*domain.Transaction, error)
	// ListTransactions returns a brand's transactions oldest first.
	ListTransactions(ctx context.Context, brandID string) ([]domain.Transaction, error)
	// ListLedgerEntries returns a brand's escrow ledger entries oldest first.
	ListLedgerEntries(ctx context.Context, brandID string) ([]domain.EscrowLedgerEntry, error)
}

// Tx is the write path. Getters named ForUpdate take row locks that are held
// until commit so checks made on their results stay valid.
type Tx interface {
	GetCampaignForUpdate(ctx context.Context, id string) (*domain.Campaign, error)
	InsertCampaign(ctx context.Context, c *domain.Campaign) error
	// UpdateCampaignFunds persists escrow_balance, total_funded,
	// total_released and escrow_status from c.
	UpdateCampaignFunds(ctx context.Context, c *domain.Campaign) error
	UpdateCampaignStatus(ctx context.Context, id string, status domain.CampaignStatus) error

	GetEscrowForUpdate(ctx context.Context, campaignID string) (*domain.CampaignEscrow, error)
	// InsertEscrow fails with ErrEscrowExists when the campaign already has one.
	InsertEscrow(ctx context.Context, e *domain.CampaignEscrow) error
	UpdateEscrow(ctx context.Context, e *domain.CampaignEscrow) error

	InsertTransaction(ctx context.Context, t *domain.Transaction) error
	GetTransactionForUpdate(ctx context.Context, id string) (*domain.Transaction, error)
	// SettleTransaction moves a pending transaction to t.Status and records its
	// gateway fields. It fails with ErrTransactionSettled if the stored row is
	// no longer pending.
	SettleTransaction(ctx context.Context, t *domain.Transaction) error

	// InsertLedgerEntry fails with ErrDuplicateRelease when a second completed
	// release for the same milestone is written.
	InsertLedgerEntry(ctx context.Context, e *domain.EscrowLedgerEntry) error
	HasCompletedRelease(ctx context.Context, campaignID, milestoneID string) (bool, error)

	InsertAuditEvent(ctx context.Context, a *domain.AuditEvent) error
}

// CampaignFilter narrows ListCampaigns.
type CampaignFilter struct {
	Status domain.CampaignStatus
}
