package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/pkg/httputil"
	"github.com/ignite/creatorhub/internal/service/campaign"
	"github.com/ignite/creatorhub/internal/service/ledger"
	"github.com/shopspring/decimal"
)

type createCampaignRequest struct {
	Name             string              `json:"name" validate:"required,max=200"`
	TargetBudget     decimal.Decimal     `json:"target_budget" validate:"gt=0"`
	EscrowPercentage decimal.Decimal     `json:"escrow_percentage" validate:"gte=0,lte=100"`
	PaymentModel     domain.PaymentModel `json:"payment_model" validate:"omitempty,oneof=fixed per_post performance hybrid"`
	BaseURL          string              `json:"base_url" validate:"omitempty,url"`
	StartDate        time.Time           `json:"start_date"`
	EndDate          time.Time           `json:"end_date"`
	Milestones       domain.Milestones   `json:"milestones"`
	Activate         bool                `json:"activate"`
}

type statusRequest struct {
	Status domain.CampaignStatus `json:"status" validate:"required,oneof=draft active paused completed"`
}

// HandleCreateCampaign creates a campaign and locks its escrow share.
//
//	POST /api/campaigns
func (h *Handlers) HandleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if !decodeValid(w, r, &req) {
		return
	}
	id := identity(r)
	c, err := h.campaigns.Create(r.Context(), id.BrandID, id.UserID, campaign.CreateInput{
		Name:             req.Name,
		TargetBudget:     req.TargetBudget,
		EscrowPercentage: req.EscrowPercentage,
		PaymentModel:     req.PaymentModel,
		BaseURL:          req.BaseURL,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		Milestones:       req.Milestones,
		Activate:         req.Activate,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.Created(w, presentCampaign(c))
}

// HandleListCampaigns lists the brand's campaigns, optionally by status.
//
//	GET /api/campaigns?status=active
func (h *Handlers) HandleListCampaigns(w http.ResponseWriter, r *http.Request) {
	cs, err := h.campaigns.List(r.Context(), identity(r).BrandID, ledger.CampaignFilter{
		Status: domain.CampaignStatus(r.URL.Query().Get("status")),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"campaigns": presentCampaigns(cs)})
}

// HandleGetCampaign returns one campaign.
//
//	GET /api/campaigns/{campaignID}
func (h *Handlers) HandleGetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Get(r.Context(), identity(r).BrandID, chi.URLParam(r, "campaignID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, presentCampaign(c))
}

// HandleUpdateCampaignStatus moves a campaign through its lifecycle.
//
//	PUT /api/campaigns/{campaignID}/status
func (h *Handlers) HandleUpdateCampaignStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeValid(w, r, &req) {
		return
	}
	id := identity(r)
	c, err := h.campaigns.UpdateStatus(r.Context(), id.BrandID, chi.URLParam(r, "campaignID"), id.UserID, req.Status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, presentCampaign(c))
}
