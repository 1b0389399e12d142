package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/metrics"
	"github.com/ignite/creatorhub/internal/pkg/apperr"
	"github.com/ignite/creatorhub/internal/pkg/logger"
	"github.com/ignite/creatorhub/internal/pkg/money"
	"github.com/ignite/creatorhub/internal/service/capital"
	"github.com/ignite/creatorhub/internal/service/ledger"
	"github.com/shopspring/decimal"
)

var (
	coverageRisk  = decimal.NewFromInt(1)
	coverageWatch = decimal.NewFromInt(2)
)

// Service implements escrow business logic over the ledger store.
type Service struct {
	store   ledger.Store
	capital *capital.Service
	now     func() time.Time
}

// NewService creates an escrow service.
func NewService(store ledger.Store, cap *capital.Service) *Service {
	return &Service{
		store:   store,
		capital: cap,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Overview is the brand's vault position.
type Overview struct {
	VaultBalance     decimal.Decimal       `json:"vault_balance"`
	AllocatedFunds   decimal.Decimal       `json:"allocated_funds"`
	PendingReleases  decimal.Decimal       `json:"pending_releases"`
	AvailableBalance decimal.Decimal       `json:"available_balance"`
	CoverageRatio    *decimal.Decimal      `json:"coverage_ratio"` // nil when nothing is pending
	LiquidityState   domain.LiquidityState `json:"liquidity_state"`
	Campaigns        []CampaignPosition    `json:"campaigns"`
}

// CampaignPosition is one campaign's line in the overview.
type CampaignPosition struct {
	CampaignID    string                `json:"campaign_id"`
	Name          string                `json:"name"`
	Status        domain.CampaignStatus `json:"status"`
	EscrowBalance decimal.Decimal       `json:"escrow_balance"`
	TotalFunded   decimal.Decimal       `json:"total_funded"`
	TotalReleased decimal.Decimal       `json:"total_released"`
	Outstanding   decimal.Decimal       `json:"outstanding"`
}

// GetOverview computes vault, allocation and liquidity figures for a brand.
//
// Vault balance counts only vault-level completed deposits plus completed
// withdrawals (stored negative); campaign-scoped deposits are already
// counted as allocated funds.
func (s *Service) GetOverview(ctx context.Context, brandID string) (*Overview, error) {
	txs, err := s.store.ListTransactions(ctx, brandID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	campaigns, err := s.store.ListCampaigns(ctx, brandID, ledger.CampaignFilter{})
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}

	vault := VaultBalance(txs)

	allocated := decimal.Zero
	pending := decimal.Zero
	positions := make([]CampaignPosition, 0, len(campaigns))
	for i := range campaigns {
		c := &campaigns[i]
		allocated = allocated.Add(c.EscrowBalance)
		outstanding := c.OutstandingCommitment()
		if c.Status == domain.CampaignActive {
			pending = pending.Add(outstanding)
		}
		positions = append(positions, CampaignPosition{
			CampaignID:    c.ID,
			Name:          c.Name,
			Status:        c.Status,
			EscrowBalance: c.EscrowBalance,
			TotalFunded:   c.TotalFunded,
			TotalReleased: c.TotalReleased,
			Outstanding:   outstanding,
		})
	}

	available := money.Max(decimal.Zero, vault.Sub(allocated).Sub(pending))
	ratio, state := Liquidity(available, pending)
	return &Overview{
		VaultBalance:     vault,
		AllocatedFunds:   allocated,
		PendingReleases:  pending,
		AvailableBalance: available,
		CoverageRatio:    ratio,
		LiquidityState:   state,
		Campaigns:        positions,
	}, nil
}

// VaultBalance sums completed vault deposits and completed withdrawals.
func VaultBalance(txs []domain.Transaction) decimal.Decimal {
	total := decimal.Zero
	for i := range txs {
		t := &txs[i]
		if t.Status != domain.TxCompleted {
			continue
		}
		switch {
		case t.Type == domain.TxDeposit && t.IsVault():
			total = total.Add(t.Amount)
		case t.Type == domain.TxWithdrawal:
			total = total.Add(t.Amount)
		}
	}
	return total
}

// Liquidity classifies coverage of pending releases by available cash:
// ratio < 1 is risk, < 2 is watch, otherwise healthy. Nothing pending is
// healthy with a nil ratio.
func Liquidity(available, pending decimal.Decimal) (*decimal.Decimal, domain.LiquidityState) {
	if !pending.IsPositive() {
		return nil, domain.LiquidityHealthy
	}
	ratio := available.DivRound(pending, 4)
	switch {
	case ratio.LessThan(coverageRisk):
		return &ratio, domain.LiquidityRisk
	case ratio.LessThan(coverageWatch):
		return &ratio, domain.LiquidityWatch
	default:
		return &ratio, domain.LiquidityHealthy
	}
}

// Result is the campaign state after a fund or release.
type Result struct {
	Campaign domain.Campaign          `json:"campaign"`
	Escrow   domain.CampaignEscrow    `json:"escrow"`
	Entry    domain.EscrowLedgerEntry `json:"entry"`
}

// FundCampaign moves amount into the campaign's escrow. The ledger entry,
// campaign totals, escrow upsert, deposit transaction and audit event are
// written together or not at all.
func (s *Service) FundCampaign(ctx context.Context, brandID, campaignID string, amount decimal.Decimal, actorID string) (res *Result, err error) {
	defer func() { metrics.RecordLedgerOp("fund", err, apperr.KindOf(err) != apperr.KindInternal) }()

	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	amount = money.Round(amount)

	err = s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		c, err := s.ownedCampaign(ctx, tx, brandID, campaignID)
		if err != nil {
			return err
		}
		now := s.now()
		entry := &domain.EscrowLedgerEntry{
			ID:          uuid.New().String(),
			BrandID:     brandID,
			CampaignID:  campaignID,
			Type:        domain.LedgerFunding,
			Amount:      amount,
			Status:      domain.LedgerCompleted,
			Description: "Funding for " + c.Name,
			CreatedAt:   now,
		}
		if err := tx.InsertLedgerEntry(ctx, entry); err != nil {
			return fmt.Errorf("insert funding entry: %w", err)
		}

		e, err := s.capital.FundEscrow(ctx, tx, capital.Movement{
			CampaignID:  campaignID,
			Amount:      amount,
			UserID:      actorID,
			Description: entry.Description,
		})
		if err != nil {
			return err
		}

		if err := ledger.Audit(ctx, tx, actorID, "campaign", campaignID, "escrow.funded", map[string]interface{}{
			"amount":   money.Format(amount),
			"entry_id": entry.ID,
		}, now); err != nil {
			return fmt.Errorf("audit: %w", err)
		}

		updated, err := tx.GetCampaignForUpdate(ctx, campaignID)
		if err != nil {
			return err
		}
		res = &Result{Campaign: *updated, Escrow: *e, Entry: *entry}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("campaign funded", "campaign_id", campaignID, "brand_id", brandID, "amount", money.Format(amount))
	return res, nil
}

// ReleaseMilestone pays amount out of the campaign's escrow. With a
// milestone id, a second completed release for the same milestone fails with
// ErrAlreadyReleased. A zero amount takes the milestone's own amount when one
// is recorded on the campaign.
func (s *Service) ReleaseMilestone(ctx context.Context, brandID, campaignID, milestoneID string, amount decimal.Decimal, actorID string) (res *Result, err error) {
	defer func() { metrics.RecordLedgerOp("release", err, apperr.KindOf(err) != apperr.KindInternal) }()

	if amount.IsNegative() {
		return nil, ErrInvalidAmount
	}

	err = s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		c, err := s.ownedCampaign(ctx, tx, brandID, campaignID)
		if err != nil {
			return err
		}

		var milestone *string
		if milestoneID != "" {
			milestone = &milestoneID
			released, err := tx.HasCompletedRelease(ctx, campaignID, milestoneID)
			if err != nil {
				return fmt.Errorf("check release: %w", err)
			}
			if released {
				return ErrAlreadyReleased
			}
			if amount.IsZero() {
				if m, ok := c.Milestones.Find(milestoneID); ok && m.Amount != nil {
					amount = *m.Amount
				}
			}
		}
		amount = money.Round(amount)
		if !amount.IsPositive() {
			return ErrInvalidAmount
		}
		if amount.GreaterThan(c.EscrowBalance) {
			return ErrInsufficientEscrow
		}

		now := s.now()
		desc := "Release for " + c.Name
		if milestone != nil {
			desc = fmt.Sprintf("Milestone %s release for %s", milestoneID, c.Name)
		}
		entry := &domain.EscrowLedgerEntry{
			ID:          uuid.New().String(),
			BrandID:     brandID,
			CampaignID:  campaignID,
			Type:        domain.LedgerRelease,
			Amount:      amount,
			MilestoneID: milestone,
			Status:      domain.LedgerCompleted,
			Description: desc,
			CreatedAt:   now,
		}
		if err := tx.InsertLedgerEntry(ctx, entry); err != nil {
			if errors.Is(err, ledger.ErrDuplicateRelease) {
				return ErrAlreadyReleased
			}
			return fmt.Errorf("insert release entry: %w", err)
		}

		e, err := s.capital.ReleaseEscrow(ctx, tx, capital.Movement{
			CampaignID:  campaignID,
			Amount:      amount,
			UserID:      actorID,
			Description: desc,
		})
		if err != nil {
			return err
		}

		if err := ledger.Audit(ctx, tx, actorID, "campaign", campaignID, "escrow.released", map[string]interface{}{
			"amount":       money.Format(amount),
			"milestone_id": milestoneID,
			"entry_id":     entry.ID,
		}, now); err != nil {
			return fmt.Errorf("audit: %w", err)
		}

		updated, err := tx.GetCampaignForUpdate(ctx, campaignID)
		if err != nil {
			return err
		}
		res = &Result{Campaign: *updated, Escrow: *e, Entry: *entry}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("milestone released", "campaign_id", campaignID, "milestone_id", milestoneID, "amount", money.Format(amount))
	return res, nil
}

// ownedCampaign locks the campaign and hides campaigns owned by other brands.
func (s *Service) ownedCampaign(ctx context.Context, tx ledger.Tx, brandID, campaignID string) (*domain.Campaign, error) {
	c, err := tx.GetCampaignForUpdate(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.BrandID != brandID {
		return nil, ErrCampaignNotFound
	}
	return c, nil
}

// AllocationTotals returns the fee breakdown for a budget.
func (s *Service) AllocationTotals(budget decimal.Decimal) money.Allocation {
	return money.AllocationTotals(budget)
}

// FundingRequirement compares a budget's total requirement with the vault.
type FundingRequirement struct {
	money.Allocation
	AvailableBalance decimal.Decimal `json:"available_balance"`
	Shortfall        decimal.Decimal `json:"shortfall"`
	Sufficient       bool            `json:"sufficient"`
}

// CheckFundingRequirement reports whether the brand's available vault
// balance covers the budget plus fees.
func (s *Service) CheckFundingRequirement(ctx context.Context, brandID string, budget decimal.Decimal) (*FundingRequirement, error) {
	if !budget.IsPositive() {
		return nil, ErrInvalidAmount
	}
	ov, err := s.GetOverview(ctx, brandID)
	if err != nil {
		return nil, err
	}
	alloc := money.AllocationTotals(budget)
	shortfall := money.Max(decimal.Zero, alloc.TotalRequired.Sub(ov.AvailableBalance))
	return &FundingRequirement{
		Allocation:       alloc,
		AvailableBalance: ov.AvailableBalance,
		Shortfall:        shortfall,
		Sufficient:       shortfall.IsZero(),
	}, nil
}
