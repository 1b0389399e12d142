package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/pkg/distlock"
	"github.com/ignite/creatorhub/internal/service/ledger"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	campaigns []domain.Campaign
	escrows   map[string]domain.CampaignEscrow
	calls     int
	err       error
}

func (s *stubSource) ListAllCampaigns(context.Context) ([]domain.Campaign, error) {
	s.calls++
	return s.campaigns, s.err
}

func (s *stubSource) GetEscrow(_ context.Context, id string) (*domain.CampaignEscrow, error) {
	e, ok := s.escrows[id]
	if !ok {
		return nil, ledger.ErrEscrowNotFound
	}
	return &e, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func campaign(id, balance, funded, released string) domain.Campaign {
	return domain.Campaign{ID: id, BrandID: "brand-1", EscrowBalance: dec(balance), TotalFunded: dec(funded), TotalReleased: dec(released)}
}

func escrowRow(id, locked, released, remaining string) domain.CampaignEscrow {
	return domain.CampaignEscrow{CampaignID: id, LockedAmount: dec(locked), ReleasedAmount: dec(released), RemainingAmount: dec(remaining)}
}

func TestReconcilerFindsDrift(t *testing.T) {
	src := &stubSource{
		campaigns: []domain.Campaign{
			campaign("ok", "1500", "2000", "500"),
			campaign("unfunded", "0", "0", "0"),
			campaign("bad-balance", "1600", "2000", "500"),
			campaign("bad-escrow", "1000", "1000", "0"),
			campaign("orphan", "300", "300", "0"),
		},
		escrows: map[string]domain.CampaignEscrow{
			"ok":          escrowRow("ok", "2000", "500", "1500"),
			"bad-balance": escrowRow("bad-balance", "2000", "500", "1500"),
			"bad-escrow":  escrowRow("bad-escrow", "1000", "0", "900"),
		},
	}

	report, err := NewReconciler(src, nil, "").RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, report.Checked)

	reasons := map[string][]string{}
	for _, d := range report.Drifts {
		reasons[d.CampaignID] = append(reasons[d.CampaignID], d.Reason)
	}
	assert.NotContains(t, reasons, "ok")
	assert.NotContains(t, reasons, "unfunded")
	assert.ElementsMatch(t, []string{"escrow_balance_mismatch", "escrow_campaign_mismatch"}, reasons["bad-balance"])
	assert.ElementsMatch(t, []string{"escrow_remaining_mismatch", "escrow_campaign_mismatch"}, reasons["bad-escrow"])
	assert.Equal(t, []string{"missing_escrow"}, reasons["orphan"])
	assert.Equal(t, 3, driftedCampaigns(report.Drifts))
}

func TestReconcilerPropagatesErrors(t *testing.T) {
	src := &stubSource{err: errors.New("db down")}
	r := NewReconciler(src, nil, "")
	_, err := r.RunOnce(context.Background())
	assert.Error(t, err)
	assert.Nil(t, r.LastReport())
}

func TestReconcilerSkipsWhenLockHeld(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	holder := distlock.NewRedisLock(client, "reconcile", time.Minute)
	ok, err := holder.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	src := &stubSource{campaigns: []domain.Campaign{campaign("ok", "0", "0", "0")}}
	r := NewReconciler(src, distlock.NewRedisLock(client, "reconcile", time.Minute), "")

	r.runScheduled(ctx)
	assert.Equal(t, 0, src.calls)

	require.NoError(t, holder.Release(ctx))
	r.runScheduled(ctx)
	assert.Equal(t, 1, src.calls)
	require.NotNil(t, r.LastReport())
	assert.False(t, mr.Exists("lock:reconcile"))
}

func TestReconcilerStartRejectsBadSchedule(t *testing.T) {
	r := NewReconciler(&stubSource{}, nil, "not a schedule")
	assert.Error(t, r.Start(context.Background()))

	r = NewReconciler(&stubSource{}, nil, "@every 1h")
	require.NoError(t, r.Start(context.Background()))
	r.Stop()
}
