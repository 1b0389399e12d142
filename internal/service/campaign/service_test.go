package campaign_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/repository/memory"
	"github.com/ignite/creatorhub/internal/service/campaign"
	"github.com/ignite/creatorhub/internal/service/capital"
	"github.com/ignite/creatorhub/internal/service/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testBrand = "brand-1"
	testUser  = "user-1"
)

var start = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

func newService(store ledger.Store) *campaign.Service {
	return campaign.NewService(store, capital.NewService())
}

func validInput() campaign.CreateInput {
	return campaign.CreateInput{
		Name:             "Summer Drop",
		TargetBudget:     decimal.NewFromInt(10000),
		EscrowPercentage: decimal.NewFromInt(20),
		PaymentModel:     domain.PaymentFixed,
		StartDate:        start,
		EndDate:          start.AddDate(0, 2, 0),
	}
}

func TestCreateLocksEscrow(t *testing.T) {
	store := memory.NewLedgerStore()
	svc := newService(store)
	ctx := context.Background()

	c, err := svc.Create(ctx, testBrand, testUser, validInput())
	require.NoError(t, err)

	assert.Equal(t, domain.CampaignDraft, c.Status)
	assert.Equal(t, domain.EscrowLocked, c.EscrowStatus)
	assert.Equal(t, "2000.00", c.EscrowBalance.StringFixed(2))
	assert.Equal(t, "2000.00", c.TotalFunded.StringFixed(2))
	assert.True(t, c.BalanceConsistent())
	assert.Equal(t, 55, c.RiskScore) // 20 budget + 30 escrow + 5 duration
	assert.Equal(t, domain.RiskMedium, c.RiskLevel)

	e, err := store.GetEscrow(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, e.RemainingAmount.Equal(c.EscrowBalance))

	events := store.AuditEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "campaign.created", events[0].Action)
	assert.Equal(t, c.ID, events[0].EntityID)
}

func TestCreateWithoutEscrow(t *testing.T) {
	store := memory.NewLedgerStore()
	svc := newService(store)
	ctx := context.Background()

	in := validInput()
	in.EscrowPercentage = decimal.Zero
	c, err := svc.Create(ctx, testBrand, testUser, in)
	require.NoError(t, err)

	assert.Equal(t, domain.EscrowNone, c.EscrowStatus)
	assert.True(t, c.EscrowBalance.IsZero())
	_, err = store.GetEscrow(ctx, c.ID)
	assert.ErrorIs(t, err, ledger.ErrEscrowNotFound)
}

func TestCreateValidation(t *testing.T) {
	svc := newService(memory.NewLedgerStore())
	tests := []struct {
		name   string
		mutate func(*campaign.CreateInput)
		want   error
	}{
		{"empty name", func(in *campaign.CreateInput) { in.Name = "  " }, campaign.ErrNameRequired},
		{"zero budget", func(in *campaign.CreateInput) { in.TargetBudget = decimal.Zero }, campaign.ErrInvalidBudget},
		{"escrow over 100", func(in *campaign.CreateInput) { in.EscrowPercentage = decimal.NewFromInt(101) }, campaign.ErrInvalidEscrowPct},
		{"negative escrow", func(in *campaign.CreateInput) { in.EscrowPercentage = decimal.NewFromInt(-1) }, campaign.ErrInvalidEscrowPct},
		{"end before start", func(in *campaign.CreateInput) { in.EndDate = start.Add(-time.Hour) }, campaign.ErrInvalidDates},
		{"bad model", func(in *campaign.CreateInput) { in.PaymentModel = "barter" }, campaign.ErrInvalidModel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			_, err := svc.Create(context.Background(), testBrand, testUser, in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// failingAudit wraps the memory store and fails audit writes, to prove that
// the campaign row and escrow lock roll back with it.
type failingAudit struct {
	*memory.LedgerStore
}

type failingAuditTx struct {
	ledger.Tx
}

func (f failingAudit) WithinTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return f.LedgerStore.WithinTx(ctx, func(tx ledger.Tx) error {
		return fn(failingAuditTx{tx})
	})
}

func (failingAuditTx) InsertAuditEvent(context.Context, *domain.AuditEvent) error {
	return errors.New("audit table unavailable")
}

func TestCreateRollsBackOnAuditFailure(t *testing.T) {
	store := memory.NewLedgerStore()
	svc := newService(failingAudit{store})
	ctx := context.Background()

	_, err := svc.Create(ctx, testBrand, testUser, validInput())
	require.Error(t, err)

	list, err := store.ListCampaigns(ctx, testBrand, ledger.CampaignFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	txs, _ := store.ListTransactions(ctx, testBrand)
	assert.Empty(t, txs)
}

func TestGetHidesOtherBrands(t *testing.T) {
	store := memory.NewLedgerStore()
	svc := newService(store)
	ctx := context.Background()

	c, err := svc.Create(ctx, testBrand, testUser, validInput())
	require.NoError(t, err)

	got, err := svc.Get(ctx, testBrand, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	_, err = svc.Get(ctx, "brand-2", c.ID)
	assert.ErrorIs(t, err, campaign.ErrNotFound)
	_, err = svc.Get(ctx, testBrand, "missing")
	assert.ErrorIs(t, err, campaign.ErrNotFound)
}

func TestUpdateStatusTransitions(t *testing.T) {
	store := memory.NewLedgerStore()
	svc := newService(store)
	ctx := context.Background()

	c, err := svc.Create(ctx, testBrand, testUser, validInput())
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, testBrand, c.ID, testUser, domain.CampaignPaused)
	assert.ErrorIs(t, err, campaign.ErrInvalidTransition, "draft cannot pause")

	for _, next := range []domain.CampaignStatus{domain.CampaignActive, domain.CampaignPaused, domain.CampaignActive, domain.CampaignCompleted} {
		got, err := svc.UpdateStatus(ctx, testBrand, c.ID, testUser, next)
		require.NoError(t, err)
		assert.Equal(t, next, got.Status)
	}

	_, err = svc.UpdateStatus(ctx, testBrand, c.ID, testUser, domain.CampaignActive)
	assert.ErrorIs(t, err, campaign.ErrInvalidTransition, "completed is terminal")

	_, err = svc.UpdateStatus(ctx, "brand-2", c.ID, testUser, domain.CampaignActive)
	assert.ErrorIs(t, err, campaign.ErrNotFound)
}

func TestListFiltersByStatus(t *testing.T) {
	store := memory.NewLedgerStore()
	svc := newService(store)
	ctx := context.Background()

	in := validInput()
	_, err := svc.Create(ctx, testBrand, testUser, in)
	require.NoError(t, err)
	in.Activate = true
	_, err = svc.Create(ctx, testBrand, testUser, in)
	require.NoError(t, err)
	_, err = svc.Create(ctx, "brand-2", testUser, in)
	require.NoError(t, err)

	all, err := svc.List(ctx, testBrand, ledger.CampaignFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := svc.List(ctx, testBrand, ledger.CampaignFilter{Status: domain.CampaignActive})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, domain.CampaignActive, active[0].Status)

	_, err = svc.List(ctx, testBrand, ledger.CampaignFilter{Status: "archived"})
	assert.ErrorIs(t, err, campaign.ErrInvalidStatus)
}
