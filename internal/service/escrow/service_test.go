package escrow_test

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/repository/memory"
	"github.com/ignite/creatorhub/internal/service/campaign"
	"github.com/ignite/creatorhub/internal/service/capital"
	"github.com/ignite/creatorhub/internal/service/escrow"
	"github.com/ignite/creatorhub/internal/service/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	brandID = "brand-1"
	actorID = "user-1"
)

// tickingClock advances one second per call so ledger entries order strictly.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixture struct {
	store     *memory.LedgerStore
	escrow    *escrow.Service
	campaigns *campaign.Service
}

func newFixture() *fixture {
	clock := &tickingClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	store := memory.NewLedgerStore()
	cap := capital.NewService().WithClock(clock.Now)
	return &fixture{
		store:     store,
		escrow:    escrow.NewService(store, cap).WithClock(clock.Now),
		campaigns: campaign.NewService(store, cap).WithClock(clock.Now),
	}
}

func (f *fixture) createCampaign(t *testing.T, budget, pct int64, active bool) *domain.Campaign {
	t.Helper()
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	c, err := f.campaigns.Create(context.Background(), brandID, actorID, campaign.CreateInput{
		Name:             "Campaign",
		TargetBudget:     decimal.NewFromInt(budget),
		EscrowPercentage: decimal.NewFromInt(pct),
		StartDate:        start,
		EndDate:          start.AddDate(0, 1, 0),
		Activate:         active,
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) depositToVault(t *testing.T, amount int64) {
	t.Helper()
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	err := f.store.WithinTx(context.Background(), func(tx ledger.Tx) error {
		return tx.InsertTransaction(context.Background(), &domain.Transaction{
			ID:        "vault-" + decimal.NewFromInt(amount).String(),
			BrandID:   brandID,
			UserID:    actorID,
			Amount:    decimal.NewFromInt(amount),
			Type:      domain.TxDeposit,
			Status:    domain.TxCompleted,
			CreatedAt: now,
			UpdatedAt: now,
		})
	})
	require.NoError(t, err)
}

func assertConserved(t *testing.T, store *memory.LedgerStore, campaignID string) {
	t.Helper()
	c, err := store.GetCampaign(context.Background(), campaignID)
	require.NoError(t, err)
	assert.True(t, c.BalanceConsistent(), "escrow balance %s != funded %s - released %s", c.EscrowBalance, c.TotalFunded, c.TotalReleased)
	e, err := store.GetEscrow(context.Background(), campaignID)
	if err != nil {
		assert.True(t, c.EscrowBalance.IsZero())
		return
	}
	assert.True(t, e.Consistent())
	assert.True(t, e.RemainingAmount.Equal(c.EscrowBalance), "escrow remaining %s != campaign balance %s", e.RemainingAmount, c.EscrowBalance)
}

func TestFundingRoundTrip(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	c := f.createCampaign(t, 10000, 20, true)
	assert.Equal(t, "2000.00", c.EscrowBalance.StringFixed(2))
	assert.Equal(t, "2000.00", c.TotalFunded.StringFixed(2))

	res, err := f.escrow.FundCampaign(ctx, brandID, c.ID, decimal.NewFromInt(3000), actorID)
	require.NoError(t, err)
	assert.Equal(t, "5000.00", res.Campaign.EscrowBalance.StringFixed(2))
	assert.Equal(t, "5000.00", res.Campaign.TotalFunded.StringFixed(2))
	assertConserved(t, f.store, c.ID)

	res, err = f.escrow.ReleaseMilestone(ctx, brandID, c.ID, "m1", decimal.NewFromInt(1200), actorID)
	require.NoError(t, err)
	assert.Equal(t, "3800.00", res.Campaign.EscrowBalance.StringFixed(2))
	assert.Equal(t, "1200.00", res.Campaign.TotalReleased.StringFixed(2))
	assert.Equal(t, domain.LedgerRelease, res.Entry.Type)
	assertConserved(t, f.store, c.ID)
}

func TestNoDoubleRelease(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.createCampaign(t, 10000, 50, true)

	_, err := f.escrow.ReleaseMilestone(ctx, brandID, c.ID, "m1", decimal.NewFromInt(100), actorID)
	require.NoError(t, err)

	before, _ := f.store.GetCampaign(ctx, c.ID)
	entriesBefore, _ := f.store.ListLedgerEntries(ctx, brandID)

	_, err = f.escrow.ReleaseMilestone(ctx, brandID, c.ID, "m1", decimal.NewFromInt(100), actorID)
	assert.ErrorIs(t, err, escrow.ErrAlreadyReleased)

	after, _ := f.store.GetCampaign(ctx, c.ID)
	entriesAfter, _ := f.store.ListLedgerEntries(ctx, brandID)
	assert.Equal(t, before, after)
	assert.Equal(t, entriesBefore, entriesAfter)

	// A different milestone is still releasable.
	_, err = f.escrow.ReleaseMilestone(ctx, brandID, c.ID, "m2", decimal.NewFromInt(100), actorID)
	assert.NoError(t, err)
}

func TestInsufficientReleaseIsAtomic(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.createCampaign(t, 1000, 10, true)

	before, _ := f.store.GetCampaign(ctx, c.ID)
	escrowBefore, _ := f.store.GetEscrow(ctx, c.ID)
	txsBefore, _ := f.store.ListTransactions(ctx, brandID)

	_, err := f.escrow.ReleaseMilestone(ctx, brandID, c.ID, "m1", decimal.NewFromInt(101), actorID)
	assert.ErrorIs(t, err, escrow.ErrInsufficientEscrow)

	after, _ := f.store.GetCampaign(ctx, c.ID)
	escrowAfter, _ := f.store.GetEscrow(ctx, c.ID)
	txsAfter, _ := f.store.ListTransactions(ctx, brandID)
	assert.Equal(t, before, after)
	assert.Equal(t, escrowBefore, escrowAfter)
	assert.Equal(t, txsBefore, txsAfter)
}

func TestOwnershipMismatchIsNotFound(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.createCampaign(t, 1000, 10, true)

	_, err := f.escrow.FundCampaign(ctx, "brand-2", c.ID, decimal.NewFromInt(10), actorID)
	assert.ErrorIs(t, err, escrow.ErrCampaignNotFound)
	_, err = f.escrow.ReleaseMilestone(ctx, "brand-2", c.ID, "", decimal.NewFromInt(10), actorID)
	assert.ErrorIs(t, err, escrow.ErrCampaignNotFound)
}

func TestReleaseUsesMilestoneAmount(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	amt := decimal.NewFromInt(250)
	c, err := f.campaigns.Create(ctx, brandID, actorID, campaign.CreateInput{
		Name:             "With milestones",
		TargetBudget:     decimal.NewFromInt(1000),
		EscrowPercentage: decimal.NewFromInt(100),
		StartDate:        start,
		EndDate:          start.AddDate(0, 1, 0),
		Milestones:       domain.Milestones{{ID: "draft", Name: "draft", Status: "approved", Amount: &amt}},
	})
	require.NoError(t, err)

	res, err := f.escrow.ReleaseMilestone(ctx, brandID, c.ID, "draft", decimal.Zero, actorID)
	require.NoError(t, err)
	assert.Equal(t, "250.00", res.Entry.Amount.StringFixed(2))
	assert.Equal(t, "750.00", res.Campaign.EscrowBalance.StringFixed(2))

	_, err = f.escrow.ReleaseMilestone(ctx, brandID, c.ID, "unknown", decimal.Zero, actorID)
	assert.ErrorIs(t, err, escrow.ErrInvalidAmount, "a milestone without a stored amount needs an explicit one")
}

func TestInvalidAmounts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.createCampaign(t, 1000, 10, true)

	_, err := f.escrow.FundCampaign(ctx, brandID, c.ID, decimal.Zero, actorID)
	assert.ErrorIs(t, err, escrow.ErrInvalidAmount)
	_, err = f.escrow.ReleaseMilestone(ctx, brandID, c.ID, "", decimal.Zero, actorID)
	assert.ErrorIs(t, err, escrow.ErrInvalidAmount)
	_, err = f.escrow.ReleaseMilestone(ctx, brandID, c.ID, "", decimal.NewFromInt(-1), actorID)
	assert.ErrorIs(t, err, escrow.ErrInvalidAmount)
}

func TestLedgerConservationUnderRandomOps(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.createCampaign(t, 5000, 20, true)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		amount := decimal.NewFromInt(int64(rng.Intn(900) + 1))
		if rng.Intn(2) == 0 {
			_, err := f.escrow.FundCampaign(ctx, brandID, c.ID, amount, actorID)
			require.NoError(t, err)
		} else {
			_, err := f.escrow.ReleaseMilestone(ctx, brandID, c.ID, "", amount, actorID)
			if err != nil {
				require.ErrorIs(t, err, escrow.ErrInsufficientEscrow)
			}
		}
		assertConserved(t, f.store, c.ID)
	}
}

func TestConcurrentReleasesNeverOverdraw(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.createCampaign(t, 1000, 100, true)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.escrow.ReleaseMilestone(ctx, brandID, c.ID, "", decimal.NewFromInt(100), actorID)
		}()
	}
	wg.Wait()

	got, _ := f.store.GetCampaign(ctx, c.ID)
	assert.True(t, got.EscrowBalance.IsZero())
	assert.Equal(t, "1000", got.TotalReleased.String())
	assertConserved(t, f.store, c.ID)
}

func TestVaultCoverageScenario(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.depositToVault(t, 5000)
	f.createCampaign(t, 12500, 20, true) // 2500 locked, active
	f.createCampaign(t, 2500, 20, false) // 500 locked, draft

	ov, err := f.escrow.GetOverview(ctx, brandID)
	require.NoError(t, err)
	assert.Equal(t, "5000", ov.VaultBalance.String())
	assert.Equal(t, "3000", ov.AllocatedFunds.String())
	assert.Equal(t, "2500", ov.PendingReleases.String())
	assert.True(t, ov.AvailableBalance.IsZero())
	require.NotNil(t, ov.CoverageRatio)
	assert.True(t, ov.CoverageRatio.IsZero())
	assert.Equal(t, domain.LiquidityRisk, ov.LiquidityState)
	assert.Len(t, ov.Campaigns, 2)
}

func TestOverviewNothingPending(t *testing.T) {
	f := newFixture()
	f.depositToVault(t, 800)

	ov, err := f.escrow.GetOverview(context.Background(), brandID)
	require.NoError(t, err)
	assert.Nil(t, ov.CoverageRatio)
	assert.Equal(t, domain.LiquidityHealthy, ov.LiquidityState)
	assert.Equal(t, "800", ov.AvailableBalance.String())
}

func TestLiquidityThresholds(t *testing.T) {
	tests := []struct {
		available, pending int64
		want               domain.LiquidityState
	}{
		{0, 100, domain.LiquidityRisk},
		{99, 100, domain.LiquidityRisk},
		{100, 100, domain.LiquidityWatch},
		{199, 100, domain.LiquidityWatch},
		{200, 100, domain.LiquidityHealthy},
		{5, 0, domain.LiquidityHealthy},
	}
	for _, tt := range tests {
		_, got := escrow.Liquidity(decimal.NewFromInt(tt.available), decimal.NewFromInt(tt.pending))
		assert.Equal(t, tt.want, got, "available=%d pending=%d", tt.available, tt.pending)
	}
}

func TestVaultBalanceIgnoresCampaignDeposits(t *testing.T) {
	cid := "c1"
	txs := []domain.Transaction{
		{Type: domain.TxDeposit, Status: domain.TxCompleted, Amount: decimal.NewFromInt(1000)},
		{Type: domain.TxDeposit, Status: domain.TxPending, Amount: decimal.NewFromInt(400)},
		{Type: domain.TxDeposit, Status: domain.TxCompleted, Amount: decimal.NewFromInt(300), CampaignID: &cid},
		{Type: domain.TxWithdrawal, Status: domain.TxCompleted, Amount: decimal.NewFromInt(-250)},
	}
	assert.Equal(t, "750", escrow.VaultBalance(txs).String())
}

func TestCheckFundingRequirement(t *testing.T) {
	f := newFixture()
	f.depositToVault(t, 5000)

	req, err := f.escrow.CheckFundingRequirement(context.Background(), brandID, decimal.NewFromInt(4000))
	require.NoError(t, err)
	assert.Equal(t, "4316.00", req.TotalRequired.StringFixed(2))
	assert.True(t, req.Sufficient)

	req, err = f.escrow.CheckFundingRequirement(context.Background(), brandID, decimal.NewFromInt(10000))
	require.NoError(t, err)
	assert.False(t, req.Sufficient)
	assert.Equal(t, "5790.00", req.Shortfall.StringFixed(2))
}
