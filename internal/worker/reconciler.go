package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/metrics"
	"github.com/ignite/creatorhub/internal/pkg/distlock"
	"github.com/ignite/creatorhub/internal/pkg/logger"
	"github.com/ignite/creatorhub/internal/pkg/money"
	"github.com/ignite/creatorhub/internal/service/ledger"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER RECONCILER: report-only balance audit
// =============================================================================
// Every run walks all campaigns and checks
//   - escrowBalance == totalFunded - totalReleased
//   - escrow.remaining == escrow.locked - escrow.released >= 0
//   - escrow.remaining == escrowBalance
// Drift is logged per campaign and exported as a gauge. Nothing is repaired:
// corrections go through adjustment entries made by an operator.

// DefaultReconcileSchedule runs the audit every fifteen minutes.
const DefaultReconcileSchedule = "*/15 * * * *"

// ReconcileSource is the read side the reconciler needs.
type ReconcileSource interface {
	ListAllCampaigns(ctx context.Context) ([]domain.Campaign, error)
	GetEscrow(ctx context.Context, campaignID string) (*domain.CampaignEscrow, error)
}

// Drift describes one inconsistent campaign.
type Drift struct {
	CampaignID string
	BrandID    string
	Reason     string
	Expected   decimal.Decimal
	Actual     decimal.Decimal
}

// ReconcileReport summarizes a run.
type ReconcileReport struct {
	Checked  int
	Drifts   []Drift
	Duration time.Duration
}

// Reconciler schedules the audit with cron and guards each run with a
// distributed lock so only one worker instance reports.
type Reconciler struct {
	source   ReconcileSource
	lock     distlock.DistLock
	schedule string
	timeout  time.Duration

	cron *cron.Cron
	mu   sync.Mutex
	last *ReconcileReport
}

// NewReconciler creates a reconciler. lock may be nil for a single instance.
func NewReconciler(source ReconcileSource, lock distlock.DistLock, schedule string) *Reconciler {
	if schedule == "" {
		schedule = DefaultReconcileSchedule
	}
	return &Reconciler{
		source:   source,
		lock:     lock,
		schedule: schedule,
		timeout:  10 * time.Minute,
	}
}

// Start registers the job and starts the scheduler.
func (r *Reconciler) Start(ctx context.Context) error {
	r.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := r.cron.AddFunc(r.schedule, func() { r.runScheduled(ctx) }); err != nil {
		return err
	}
	r.cron.Start()
	logger.Info("reconciler started", "schedule", r.schedule)
	return nil
}

// Stop stops the scheduler and waits for a running audit.
func (r *Reconciler) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
	logger.Info("reconciler stopped")
}

// LastReport returns the most recent completed run, if any.
func (r *Reconciler) LastReport() *ReconcileReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Reconciler) runScheduled(parent context.Context) {
	if parent.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(parent, r.timeout)
	defer cancel()

	run := func(ctx context.Context) error {
		_, err := r.RunOnce(ctx)
		return err
	}
	var err error
	if r.lock != nil {
		err = distlock.Run(ctx, r.lock, run)
	} else {
		err = run(ctx)
	}
	switch {
	case errors.Is(err, distlock.ErrNotAcquired):
		logger.Debug("reconciliation skipped, another worker holds the lock")
	case err != nil:
		logger.Error("reconciliation failed", "error", err.Error())
	}
}

// RunOnce audits every campaign.
func (r *Reconciler) RunOnce(ctx context.Context) (*ReconcileReport, error) {
	start := time.Now()
	campaigns, err := r.source.ListAllCampaigns(ctx)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{Checked: len(campaigns)}
	for i := range campaigns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		drifts, err := r.check(ctx, &campaigns[i])
		if err != nil {
			return nil, err
		}
		report.Drifts = append(report.Drifts, drifts...)
	}
	report.Duration = time.Since(start)

	for _, d := range report.Drifts {
		logger.Error("ledger drift",
			"campaign_id", d.CampaignID,
			"brand_id", d.BrandID,
			"reason", d.Reason,
			"expected", money.Format(d.Expected),
			"actual", money.Format(d.Actual))
	}
	metrics.LedgerDrift.Set(float64(driftedCampaigns(report.Drifts)))
	logger.Info("reconciliation complete",
		"campaigns", report.Checked,
		"drifts", len(report.Drifts),
		"duration", report.Duration.Round(time.Millisecond).String())

	r.mu.Lock()
	r.last = report
	r.mu.Unlock()
	return report, nil
}

func (r *Reconciler) check(ctx context.Context, c *domain.Campaign) ([]Drift, error) {
	var out []Drift
	add := func(reason string, expected, actual decimal.Decimal) {
		out = append(out, Drift{CampaignID: c.ID, BrandID: c.BrandID, Reason: reason, Expected: expected, Actual: actual})
	}

	if !c.BalanceConsistent() {
		add("escrow_balance_mismatch", c.TotalFunded.Sub(c.TotalReleased), c.EscrowBalance)
	}

	e, err := r.source.GetEscrow(ctx, c.ID)
	if errors.Is(err, ledger.ErrEscrowNotFound) {
		if !c.EscrowBalance.IsZero() {
			add("missing_escrow", decimal.Zero, c.EscrowBalance)
		}
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	if !e.Consistent() {
		add("escrow_remaining_mismatch", e.LockedAmount.Sub(e.ReleasedAmount), e.RemainingAmount)
	}
	if !e.RemainingAmount.Equal(c.EscrowBalance) {
		add("escrow_campaign_mismatch", c.EscrowBalance, e.RemainingAmount)
	}
	return out, nil
}

func driftedCampaigns(drifts []Drift) int {
	seen := make(map[string]struct{}, len(drifts))
	for _, d := range drifts {
		seen[d.CampaignID] = struct{}{}
	}
	return len(seen)
}
