package campaign

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/metrics"
	"github.com/ignite/creatorhub/internal/pkg/apperr"
	"github.com/ignite/creatorhub/internal/pkg/logger"
	"github.com/ignite/creatorhub/internal/pkg/money"
	"github.com/ignite/creatorhub/internal/service/capital"
	"github.com/ignite/creatorhub/internal/service/ledger"
	"github.com/ignite/creatorhub/internal/service/risk"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Service implements campaign business logic. All public methods are safe
// for concurrent use if the underlying store is.
type Service struct {
	store   ledger.Store
	capital *capital.Service
	now     func() time.Time
}

// NewService creates a campaign service backed by the given store.
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

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Name             string
	TargetBudget     decimal.Decimal
	EscrowPercentage decimal.Decimal
	PaymentModel     domain.PaymentModel
	BaseURL          string
	StartDate        time.Time
	EndDate          time.Time
	Milestones       domain.Milestones
	// Activate creates the campaign active instead of draft.
	Activate bool
}

func (in *CreateInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return ErrNameRequired
	}
	if !in.TargetBudget.IsPositive() {
		return ErrInvalidBudget
	}
	if in.EscrowPercentage.IsNegative() || in.EscrowPercentage.GreaterThan(hundred) {
		return ErrInvalidEscrowPct
	}
	if !in.EndDate.After(in.StartDate) {
		return ErrInvalidDates
	}
	if in.PaymentModel == "" {
		in.PaymentModel = domain.PaymentFixed
	}
	if !in.PaymentModel.Valid() {
		return ErrInvalidModel
	}
	return nil
}

// Create validates the input and creates the campaign with its escrow lock in
// one transaction.
func (s *Service) Create(ctx context.Context, brandID, userID string, in CreateInput) (c *domain.Campaign, err error) {
	defer func() { metrics.RecordLedgerOp("create_campaign", err, apperr.KindOf(err) != apperr.KindInternal) }()

	if err := in.validate(); err != nil {
		return nil, err
	}

	assessment := risk.Score(risk.Input{
		Budget:           in.TargetBudget,
		EscrowPercentage: in.EscrowPercentage,
		StartDate:        in.StartDate,
		EndDate:          in.EndDate,
	})

	status := domain.CampaignDraft
	if in.Activate {
		status = domain.CampaignActive
	}
	now := s.now()
	row := &domain.Campaign{
		ID:               uuid.New().String(),
		BrandID:          brandID,
		Name:             strings.TrimSpace(in.Name),
		TargetBudget:     money.Round(in.TargetBudget),
		EscrowPercentage: in.EscrowPercentage,
		PaymentModel:     in.PaymentModel,
		RiskScore:        assessment.Score,
		RiskLevel:        assessment.Level,
		Status:           status,
		EscrowStatus:     domain.EscrowNone,
		EscrowBalance:    decimal.Zero,
		TotalFunded:      decimal.Zero,
		TotalReleased:    decimal.Zero,
		BaseURL:          in.BaseURL,
		StartDate:        in.StartDate,
		EndDate:          in.EndDate,
		Milestones:       in.Milestones,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	lockAmount := money.EscrowAmount(row.TargetBudget, in.EscrowPercentage)

	err = s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		if err := tx.InsertCampaign(ctx, row); err != nil {
			return fmt.Errorf("insert campaign: %w", err)
		}

		if lockAmount.IsPositive() {
			desc := "Initial escrow for " + row.Name
			if err := tx.InsertLedgerEntry(ctx, &domain.EscrowLedgerEntry{
				ID:          uuid.New().String(),
				BrandID:     brandID,
				CampaignID:  row.ID,
				Type:        domain.LedgerFunding,
				Amount:      lockAmount,
				Status:      domain.LedgerCompleted,
				Description: desc,
				CreatedAt:   now,
			}); err != nil {
				return fmt.Errorf("insert funding entry: %w", err)
			}
			if _, err := s.capital.LockEscrow(ctx, tx, capital.Movement{
				CampaignID:  row.ID,
				Amount:      lockAmount,
				UserID:      userID,
				Description: desc,
			}); err != nil {
				return err
			}
		}

		if err := ledger.Audit(ctx, tx, userID, "campaign", row.ID, "campaign.created", map[string]interface{}{
			"target_budget":     money.Format(row.TargetBudget),
			"escrow_percentage": in.EscrowPercentage.String(),
			"escrow_locked":     money.Format(lockAmount),
			"risk_score":        assessment.Score,
		}, now); err != nil {
			return fmt.Errorf("audit: %w", err)
		}

		created, err := tx.GetCampaignForUpdate(ctx, row.ID)
		if err != nil {
			return err
		}
		c = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("campaign created", "campaign_id", c.ID, "brand_id", brandID,
		"risk_score", c.RiskScore, "escrow_locked", money.Format(c.EscrowBalance))
	return c, nil
}

// Get returns a campaign owned by the brand. Another brand's campaign is
// reported as ErrNotFound.
func (s *Service) Get(ctx context.Context, brandID, id string) (*domain.Campaign, error) {
	c, err := s.store.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.BrandID != brandID {
		return nil, ErrNotFound
	}
	return c, nil
}

// List returns the brand's campaigns, newest first.
func (s *Service) List(ctx context.Context, brandID string, f ledger.CampaignFilter) ([]domain.Campaign, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	return s.store.ListCampaigns(ctx, brandID, f)
}

// UpdateStatus moves a campaign through its lifecycle.
func (s *Service) UpdateStatus(ctx context.Context, brandID, id, actorID string, status domain.CampaignStatus) (*domain.Campaign, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	var out *domain.Campaign
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		c, err := tx.GetCampaignForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if c.BrandID != brandID {
			return ErrNotFound
		}
		if !c.Status.CanTransitionTo(status) {
			return ErrInvalidTransition
		}
		if err := tx.UpdateCampaignStatus(ctx, id, status); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		if err := ledger.Audit(ctx, tx, actorID, "campaign", id, "campaign.status_changed", map[string]interface{}{
			"from": string(c.Status),
			"to":   string(status),
		}, s.now()); err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		c.Status = status
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
