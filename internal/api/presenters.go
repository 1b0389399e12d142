package api

import (
	"time"

	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/pkg/money"
	"github.com/ignite/creatorhub/internal/service/attribution"
	"github.com/ignite/creatorhub/internal/service/escrow"
	"github.com/ignite/creatorhub/internal/service/payments"
	"github.com/shopspring/decimal"
)

// amount serializes money as a string with exactly two decimal places.
type amount decimal.Decimal

func (a amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + money.Format(decimal.Decimal(a)) + `"`), nil
}

func optionalAmount(d *decimal.Decimal) *amount {
	if d == nil {
		return nil
	}
	a := amount(*d)
	return &a
}

type campaignView struct {
	ID               string                `json:"id"`
	Name             string                `json:"name"`
	TargetBudget     amount                `json:"target_budget"`
	EscrowPercentage amount                `json:"escrow_percentage"`
	PaymentModel     domain.PaymentModel   `json:"payment_model"`
	RiskScore        int                   `json:"risk_score"`
	RiskLevel        domain.RiskLevel      `json:"risk_level"`
	Status           domain.CampaignStatus `json:"status"`
	EscrowStatus     domain.EscrowStatus   `json:"escrow_status"`
	EscrowBalance    amount                `json:"escrow_balance"`
	TotalFunded      amount                `json:"total_funded"`
	TotalReleased    amount                `json:"total_released"`
	BaseURL          string                `json:"base_url,omitempty"`
	StartDate        time.Time             `json:"start_date"`
	EndDate          time.Time             `json:"end_date"`
	Milestones       domain.Milestones     `json:"milestones"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

func presentCampaign(c *domain.Campaign) campaignView {
	return campaignView{
		ID:               c.ID,
		Name:             c.Name,
		TargetBudget:     amount(c.TargetBudget),
		EscrowPercentage: amount(c.EscrowPercentage),
		PaymentModel:     c.PaymentModel,
		RiskScore:        c.RiskScore,
		RiskLevel:        c.RiskLevel,
		Status:           c.Status,
		EscrowStatus:     c.EscrowStatus,
		EscrowBalance:    amount(c.EscrowBalance),
		TotalFunded:      amount(c.TotalFunded),
		TotalReleased:    amount(c.TotalReleased),
		BaseURL:          c.BaseURL,
		StartDate:        c.StartDate,
		EndDate:          c.EndDate,
		Milestones:       c.Milestones,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

func presentCampaigns(cs []domain.Campaign) []campaignView {
	out := make([]campaignView, 0, len(cs))
	for i := range cs {
		out = append(out, presentCampaign(&cs[i]))
	}
	return out
}

type escrowView struct {
	CampaignID      string `json:"campaign_id"`
	LockedAmount    amount `json:"locked_amount"`
	ReleasedAmount  amount `json:"released_amount"`
	RemainingAmount amount `json:"remaining_amount"`
}

type ledgerEntryView struct {
	ID             string                   `json:"id"`
	CampaignID     string                   `json:"campaign_id"`
	CampaignName   string                   `json:"campaign_name,omitempty"`
	Type           domain.LedgerEntryType   `json:"type"`
	Amount         amount                   `json:"amount"`
	MilestoneID    *string                  `json:"milestone_id,omitempty"`
	Status         domain.LedgerEntryStatus `json:"status"`
	Description    string                   `json:"description"`
	RunningBalance *amount                  `json:"running_balance,omitempty"`
	CreatedAt      time.Time                `json:"created_at"`
}

func presentLedgerEntry(e *domain.EscrowLedgerEntry) ledgerEntryView {
	return ledgerEntryView{
		ID:          e.ID,
		CampaignID:  e.CampaignID,
		Type:        e.Type,
		Amount:      amount(e.Amount),
		MilestoneID: e.MilestoneID,
		Status:      e.Status,
		Description: e.Description,
		CreatedAt:   e.CreatedAt,
	}
}

func presentLedgerRows(rows []escrow.LedgerRow) []ledgerEntryView {
	out := make([]ledgerEntryView, 0, len(rows))
	for i := range rows {
		v := presentLedgerEntry(&rows[i].EscrowLedgerEntry)
		v.CampaignName = rows[i].CampaignName
		v.RunningBalance = optionalAmount(&rows[i].RunningBalance)
		out = append(out, v)
	}
	return out
}

type escrowResultView struct {
	Campaign campaignView    `json:"campaign"`
	Escrow   escrowView      `json:"escrow"`
	Entry    ledgerEntryView `json:"entry"`
}

func presentEscrowResult(res *escrow.Result) escrowResultView {
	return escrowResultView{
		Campaign: presentCampaign(&res.Campaign),
		Escrow: escrowView{
			CampaignID:      res.Escrow.CampaignID,
			LockedAmount:    amount(res.Escrow.LockedAmount),
			ReleasedAmount:  amount(res.Escrow.ReleasedAmount),
			RemainingAmount: amount(res.Escrow.RemainingAmount),
		},
		Entry: presentLedgerEntry(&res.Entry),
	}
}

type positionView struct {
	CampaignID    string                `json:"campaign_id"`
	Name          string                `json:"name"`
	Status        domain.CampaignStatus `json:"status"`
	EscrowBalance amount                `json:"escrow_balance"`
	TotalFunded   amount                `json:"total_funded"`
	TotalReleased amount                `json:"total_released"`
	Outstanding   amount                `json:"outstanding"`
}

type overviewView struct {
	VaultBalance     amount                `json:"vault_balance"`
	AllocatedFunds   amount                `json:"allocated_funds"`
	PendingReleases  amount                `json:"pending_releases"`
	AvailableBalance amount                `json:"available_balance"`
	CoverageRatio    *amount               `json:"coverage_ratio"`
	LiquidityState   domain.LiquidityState `json:"liquidity_state"`
	Campaigns        []positionView        `json:"campaigns"`
}

func presentOverview(o *escrow.Overview) overviewView {
	v := overviewView{
		VaultBalance:     amount(o.VaultBalance),
		AllocatedFunds:   amount(o.AllocatedFunds),
		PendingReleases:  amount(o.PendingReleases),
		AvailableBalance: amount(o.AvailableBalance),
		CoverageRatio:    optionalAmount(o.CoverageRatio),
		LiquidityState:   o.LiquidityState,
		Campaigns:        make([]positionView, 0, len(o.Campaigns)),
	}
	for _, p := range o.Campaigns {
		v.Campaigns = append(v.Campaigns, positionView{
			CampaignID:    p.CampaignID,
			Name:          p.Name,
			Status:        p.Status,
			EscrowBalance: amount(p.EscrowBalance),
			TotalFunded:   amount(p.TotalFunded),
			TotalReleased: amount(p.TotalReleased),
			Outstanding:   amount(p.Outstanding),
		})
	}
	return v
}

type allocationView struct {
	Budget        amount `json:"budget"`
	PlatformFee   amount `json:"platform_fee"`
	ProcessingFee amount `json:"processing_fee"`
	TotalRequired amount `json:"total_required"`
}

func presentAllocation(a money.Allocation) allocationView {
	return allocationView{
		Budget:        amount(a.Budget),
		PlatformFee:   amount(a.PlatformFee),
		ProcessingFee: amount(a.ProcessingFee),
		TotalRequired: amount(a.TotalRequired),
	}
}

type fundingRequirementView struct {
	allocationView
	AvailableBalance amount `json:"available_balance"`
	Shortfall        amount `json:"shortfall"`
	Sufficient       bool   `json:"sufficient"`
}

type transactionView struct {
	ID               string                   `json:"id"`
	CampaignID       *string                  `json:"campaign_id,omitempty"`
	Amount           amount                   `json:"amount"`
	Type             domain.TransactionType   `json:"type"`
	Status           domain.TransactionStatus `json:"status"`
	GatewayProvider  string                   `json:"gateway_provider,omitempty"`
	GatewayReference *string                  `json:"gateway_reference,omitempty"`
	Description      string                   `json:"description"`
	CreatedAt        time.Time                `json:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at"`
}

func presentTransaction(t *domain.Transaction) transactionView {
	return transactionView{
		ID:               t.ID,
		CampaignID:       t.CampaignID,
		Amount:           amount(t.Amount),
		Type:             t.Type,
		Status:           t.Status,
		GatewayProvider:  t.GatewayProvider,
		GatewayReference: t.GatewayReference,
		Description:      t.Description,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}

type depositView struct {
	Transaction transactionView `json:"transaction"`
	Allocation  allocationView  `json:"allocation"`
	CheckoutURL string          `json:"checkout_url"`
	SessionID   string          `json:"session_id"`
}

func presentDeposit(d *payments.Deposit) depositView {
	return depositView{
		Transaction: presentTransaction(&d.Transaction),
		Allocation:  presentAllocation(d.Allocation),
		CheckoutURL: d.CheckoutURL,
		SessionID:   d.SessionID,
	}
}

type attributionResultView struct {
	CollaborationID   string    `json:"collaboration_id"`
	TrackingBundleID  string    `json:"tracking_bundle_id"`
	TotalClicks       int64     `json:"total_clicks"`
	TotalConversions  int64     `json:"total_conversions"`
	TotalRevenue      amount    `json:"total_revenue"`
	CreatorCost       amount    `json:"creator_cost"`
	ConversionRate    amount    `json:"conversion_rate"`
	ROAS              amount    `json:"roas"`
	CostPerConversion amount    `json:"cost_per_conversion"`
	AverageOrderValue amount    `json:"average_order_value"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func presentResult(r *domain.AttributionResult) *attributionResultView {
	if r == nil {
		return nil
	}
	return &attributionResultView{
		CollaborationID:   r.CollaborationID,
		TrackingBundleID:  r.TrackingBundleID,
		TotalClicks:       r.TotalClicks,
		TotalConversions:  r.TotalConversions,
		TotalRevenue:      amount(r.TotalRevenue),
		CreatorCost:       amount(r.CreatorCost),
		ConversionRate:    amount(r.ConversionRate),
		ROAS:              amount(r.ROAS),
		CostPerConversion: amount(r.CostPerConversion),
		AverageOrderValue: amount(r.AverageOrderValue),
		UpdatedAt:         r.UpdatedAt,
	}
}

type recordView struct {
	EventID   string                 `json:"event_id,omitempty"`
	BundleID  string                 `json:"bundle_id"`
	Duplicate bool                   `json:"duplicate"`
	Result    *attributionResultView `json:"result,omitempty"`
}

func presentRecord(r *attribution.RecordResult) recordView {
	return recordView{EventID: r.EventID, BundleID: r.BundleID, Duplicate: r.Duplicate, Result: presentResult(r.Result)}
}

type liftGroupView struct {
	ID          string           `json:"id"`
	GroupType   domain.GroupType `json:"group_type"`
	Regions     []string         `json:"regions,omitempty"`
	Percentage  int              `json:"percentage"`
	Impressions int64            `json:"impressions"`
	UniqueUsers int64            `json:"unique_users"`
	Conversions int64            `json:"conversions"`
	Revenue     amount           `json:"revenue"`
}

func presentGroup(g *domain.LiftTestGroup) *liftGroupView {
	if g == nil {
		return nil
	}
	return &liftGroupView{
		ID:          g.ID,
		GroupType:   g.GroupType,
		Regions:     g.Regions,
		Percentage:  g.Percentage,
		Impressions: g.Impressions,
		UniqueUsers: g.UniqueUsers,
		Conversions: g.Conversions,
		Revenue:     amount(g.Revenue),
	}
}

type liftResultView struct {
	LiftPercentage        float64             `json:"lift_percentage"`
	AbsoluteLift          float64             `json:"absolute_lift"`
	IncrementalRevenue    amount              `json:"incremental_revenue"`
	PValue                float64             `json:"p_value"`
	ChiSquared            float64             `json:"chi_squared"`
	ConfidenceLower       float64             `json:"confidence_lower"`
	ConfidenceUpper       float64             `json:"confidence_upper"`
	TestSampleSize        int64               `json:"test_sample_size"`
	ControlSampleSize     int64               `json:"control_sample_size"`
	TestConversionRate    float64             `json:"test_conversion_rate"`
	ControlConversionRate float64             `json:"control_conversion_rate"`
	Significance          domain.Significance `json:"significance"`
	IsSignificant         bool                `json:"is_significant"`
	Interpretation        string              `json:"interpretation"`
	CalculatedAt          time.Time           `json:"calculated_at"`
}

func presentLiftResult(r *domain.LiftTestResult) *liftResultView {
	if r == nil {
		return nil
	}
	return &liftResultView{
		LiftPercentage:        r.LiftPercentage,
		AbsoluteLift:          r.AbsoluteLift,
		IncrementalRevenue:    amount(r.IncrementalRevenue),
		PValue:                r.PValue,
		ChiSquared:            r.ChiSquared,
		ConfidenceLower:       r.ConfidenceLower,
		ConfidenceUpper:       r.ConfidenceUpper,
		TestSampleSize:        r.TestSampleSize,
		ControlSampleSize:     r.ControlSampleSize,
		TestConversionRate:    r.TestConversionRate,
		ControlConversionRate: r.ControlConversionRate,
		Significance:          r.Significance,
		IsSignificant:         r.IsSignificant,
		Interpretation:        r.Interpretation,
		CalculatedAt:          r.CalculatedAt,
	}
}

type liftTestView struct {
	ID            string                `json:"id"`
	CampaignID    string                `json:"campaign_id"`
	Name          string                `json:"name"`
	TestType      domain.LiftTestType   `json:"test_type"`
	Status        domain.LiftTestStatus `json:"status"`
	SplitMethod   string                `json:"split_method"`
	TargetLiftPct *float64              `json:"target_lift_pct,omitempty"`
	BaselineStart *time.Time            `json:"baseline_start,omitempty"`
	BaselineEnd   *time.Time            `json:"baseline_end,omitempty"`
	StartedAt     *time.Time            `json:"started_at,omitempty"`
	EndedAt       *time.Time            `json:"ended_at,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	Groups        []liftGroupView       `json:"groups"`
	Result        *liftResultView       `json:"result,omitempty"`
}

func presentLiftTest(t *domain.LiftTest) liftTestView {
	v := liftTestView{
		ID:            t.ID,
		CampaignID:    t.CampaignID,
		Name:          t.Name,
		TestType:      t.TestType,
		Status:        t.Status,
		SplitMethod:   t.SplitMethod,
		TargetLiftPct: t.TargetLiftPct,
		BaselineStart: t.BaselineStart,
		BaselineEnd:   t.BaselineEnd,
		StartedAt:     t.StartedAt,
		EndedAt:       t.EndedAt,
		CreatedAt:     t.CreatedAt,
		Groups:        make([]liftGroupView, 0, len(t.Groups)),
		Result:        presentLiftResult(t.Result),
	}
	for i := range t.Groups {
		v.Groups = append(v.Groups, *presentGroup(&t.Groups[i]))
	}
	return v
}
