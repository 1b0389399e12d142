package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/pkg/httputil"
	"github.com/ignite/creatorhub/internal/pkg/money"
	"github.com/ignite/creatorhub/internal/report"
	"github.com/ignite/creatorhub/internal/service/escrow"
	"github.com/shopspring/decimal"
)

type amountRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"gt=0"`
}

// releaseRequest may omit the amount to release the milestone's own.
type releaseRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"gte=0"`
}

// HandleEscrowOverview returns the brand's vault position.
//
//	GET /api/escrow/overview
func (h *Handlers) HandleEscrowOverview(w http.ResponseWriter, r *http.Request) {
	ov, err := h.escrow.GetOverview(r.Context(), identity(r).BrandID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, presentOverview(ov))
}

// HandleFundCampaign moves money into a campaign's escrow.
//
//	POST /api/escrow/campaigns/{campaignID}/fund
func (h *Handlers) HandleFundCampaign(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decodeValid(w, r, &req) {
		return
	}
	id := identity(r)
	res, err := h.escrow.FundCampaign(r.Context(), id.BrandID, chi.URLParam(r, "campaignID"), req.Amount, id.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, presentEscrowResult(res))
}

// HandleReleaseMilestone pays out one milestone from escrow.
//
//	POST /api/escrow/campaigns/{campaignID}/milestones/{milestoneID}/release
func (h *Handlers) HandleReleaseMilestone(w http.ResponseWriter, r *http.Request) {
	var req releaseRequest
	if !decodeValid(w, r, &req) {
		return
	}
	id := identity(r)
	res, err := h.escrow.ReleaseMilestone(r.Context(), id.BrandID,
		chi.URLParam(r, "campaignID"), chi.URLParam(r, "milestoneID"), req.Amount, id.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, presentEscrowResult(res))
}

// HandleEscrowTransactions pages the brand's escrow ledger with running
// balances. Query: page, limit, sort_by (created_at|amount|type),
// sort_order (asc|desc), search, type.
//
//	GET /api/escrow/transactions
func (h *Handlers) HandleEscrowTransactions(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r, 20, 100)
	q := r.URL.Query()
	page, err := h.escrow.GetTransactions(r.Context(), identity(r).BrandID, escrow.TransactionQuery{
		Page:      p.Page,
		Limit:     p.Limit,
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("sort_order"),
		Search:    q.Get("search"),
		Type:      domain.LedgerEntryType(q.Get("type")),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, NewPage(presentLedgerRows(page.Rows), p, page.Total))
}

// HandleAllocation previews the fees for a budget. With check=true the
// brand's available vault balance is compared against the total.
//
//	GET /api/escrow/allocation?budget=10000[&check=true]
func (h *Handlers) HandleAllocation(w http.ResponseWriter, r *http.Request) {
	budget, err := money.Parse(r.URL.Query().Get("budget"))
	if err != nil || !budget.IsPositive() {
		httputil.WriteError(w, escrow.ErrInvalidAmount)
		return
	}
	if r.URL.Query().Get("check") != "true" {
		httputil.OK(w, presentAllocation(h.escrow.AllocationTotals(budget)))
		return
	}
	req, err := h.escrow.CheckFundingRequirement(r.Context(), identity(r).BrandID, budget)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, fundingRequirementView{
		allocationView:   presentAllocation(req.Allocation),
		AvailableBalance: amount(req.AvailableBalance),
		Shortfall:        amount(req.Shortfall),
		Sufficient:       req.Sufficient,
	})
}

// HandleStatementExport uploads the brand's ledger statement as CSV and
// returns a short-lived download link.
//
//	POST /api/escrow/statements
func (h *Handlers) HandleStatementExport(w http.ResponseWriter, r *http.Request) {
	if h.statements == nil {
		httputil.WriteError(w, report.ErrExportDisabled)
		return
	}
	exp, err := h.statements.Export(r.Context(), identity(r).BrandID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.Created(w, exp)
}
