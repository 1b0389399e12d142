package capital

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/service/ledger"
	"github.com/shopspring/decimal"
)

// Movement describes one escrow operation.
type Movement struct {
	CampaignID  string
	Amount      decimal.Decimal
	UserID      string
	Description string
}

// Service implements the low-level escrow operations. It holds no state
// beyond its clock and is safe for concurrent use.
type Service struct {
	now func() time.Time
}

// NewService creates a capital service.
func NewService() *Service {
	return &Service{now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// LockEscrow creates the campaign's escrow with locked = remaining = amount,
// sets the campaign's balance and funded total to amount and marks escrow
// locked, then appends a completed campaign-scoped deposit.
// A second lock for the same campaign fails with ErrEscrowExists.
func (s *Service) LockEscrow(ctx context.Context, tx ledger.Tx, m Movement) (*domain.CampaignEscrow, error) {
	if !m.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	c, err := tx.GetCampaignForUpdate(ctx, m.CampaignID)
	if err != nil {
		return nil, err
	}
	if _, err := tx.GetEscrowForUpdate(ctx, m.CampaignID); err == nil {
		return nil, ErrEscrowExists
	} else if !errors.Is(err, ledger.ErrEscrowNotFound) {
		return nil, fmt.Errorf("check escrow: %w", err)
	}

	now := s.now()
	e := &domain.CampaignEscrow{
		ID:              uuid.New().String(),
		CampaignID:      m.CampaignID,
		LockedAmount:    m.Amount,
		ReleasedAmount:  decimal.Zero,
		RemainingAmount: m.Amount,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.InsertEscrow(ctx, e); err != nil {
		return nil, err
	}

	c.EscrowBalance = m.Amount
	c.TotalFunded = m.Amount
	c.EscrowStatus = domain.EscrowLocked
	c.UpdatedAt = now
	if err := tx.UpdateCampaignFunds(ctx, c); err != nil {
		return nil, fmt.Errorf("update campaign funds: %w", err)
	}

	desc := m.Description
	if desc == "" {
		desc = "Escrow lock for " + c.Name
	}
	if err := s.appendTransaction(ctx, tx, c, m, domain.TxDeposit, m.Amount, desc, now); err != nil {
		return nil, err
	}
	return e, nil
}

// FundEscrow adds amount to the campaign's escrow, creating the escrow row
// when none exists, and appends a completed campaign-scoped deposit.
func (s *Service) FundEscrow(ctx context.Context, tx ledger.Tx, m Movement) (*domain.CampaignEscrow, error) {
	if !m.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	c, err := tx.GetCampaignForUpdate(ctx, m.CampaignID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	e, err := tx.GetEscrowForUpdate(ctx, m.CampaignID)
	switch {
	case errors.Is(err, ledger.ErrEscrowNotFound):
		e = &domain.CampaignEscrow{
			ID:              uuid.New().String(),
			CampaignID:      m.CampaignID,
			LockedAmount:    m.Amount,
			ReleasedAmount:  decimal.Zero,
			RemainingAmount: m.Amount,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.InsertEscrow(ctx, e); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("load escrow: %w", err)
	default:
		e.LockedAmount = e.LockedAmount.Add(m.Amount)
		e.RemainingAmount = e.RemainingAmount.Add(m.Amount)
		e.UpdatedAt = now
		if err := tx.UpdateEscrow(ctx, e); err != nil {
			return nil, fmt.Errorf("update escrow: %w", err)
		}
	}

	c.TotalFunded = c.TotalFunded.Add(m.Amount)
	c.EscrowBalance = c.EscrowBalance.Add(m.Amount)
	c.EscrowStatus = domain.EscrowLocked
	c.UpdatedAt = now
	if err := tx.UpdateCampaignFunds(ctx, c); err != nil {
		return nil, fmt.Errorf("update campaign funds: %w", err)
	}

	desc := m.Description
	if desc == "" {
		desc = "Escrow funding for " + c.Name
	}
	if err := s.appendTransaction(ctx, tx, c, m, domain.TxDeposit, m.Amount, desc, now); err != nil {
		return nil, err
	}
	return e, nil
}

// ReleaseEscrow pays amount out of the campaign's escrow. It fails with
// ErrInsufficientEscrow when amount exceeds the remaining escrow.
func (s *Service) ReleaseEscrow(ctx context.Context, tx ledger.Tx, m Movement) (*domain.CampaignEscrow, error) {
	if !m.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	c, err := tx.GetCampaignForUpdate(ctx, m.CampaignID)
	if err != nil {
		return nil, err
	}
	e, err := tx.GetEscrowForUpdate(ctx, m.CampaignID)
	if err != nil {
		return nil, err
	}
	if m.Amount.GreaterThan(e.RemainingAmount) {
		return nil, ErrInsufficientEscrow
	}

	now := s.now()
	e.RemainingAmount = e.RemainingAmount.Sub(m.Amount)
	e.ReleasedAmount = e.ReleasedAmount.Add(m.Amount)
	e.UpdatedAt = now
	if err := tx.UpdateEscrow(ctx, e); err != nil {
		return nil, fmt.Errorf("update escrow: %w", err)
	}

	c.EscrowBalance = c.EscrowBalance.Sub(m.Amount)
	c.TotalReleased = c.TotalReleased.Add(m.Amount)
	c.UpdatedAt = now
	if err := tx.UpdateCampaignFunds(ctx, c); err != nil {
		return nil, fmt.Errorf("update campaign funds: %w", err)
	}

	desc := m.Description
	if desc == "" {
		desc = "Escrow release for " + c.Name
	}
	if err := s.appendTransaction(ctx, tx, c, m, domain.TxPayment, m.Amount, desc, now); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) appendTransaction(ctx context.Context, tx ledger.Tx, c *domain.Campaign, m Movement, typ domain.TransactionType, amount decimal.Decimal, desc string, now time.Time) error {
	campaignID := c.ID
	t := &domain.Transaction{
		ID:          uuid.New().String(),
		BrandID:     c.BrandID,
		UserID:      m.UserID,
		CampaignID:  &campaignID,
		Amount:      amount,
		Type:        typ,
		Status:      domain.TxCompleted,
		Description: desc,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.InsertTransaction(ctx, t); err != nil {
		return fmt.Errorf("insert %s transaction: %w", typ, err)
	}
	return nil
}
