package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/pkg/httputil"
	"github.com/ignite/creatorhub/internal/service/attribution"
	"github.com/shopspring/decimal"
)

// collaborationID returns the path's collaboration when it belongs to the
// caller's brand.
func (h *Handlers) collaborationID(r *http.Request) (string, error) {
	id := chi.URLParam(r, "collaborationID")
	c, err := h.attribution.GetCollaboration(r.Context(), id)
	if err != nil {
		return "", err
	}
	if c.BrandID != identity(r).BrandID {
		return "", attribution.ErrCollaborationNotFound
	}
	return id, nil
}

// HandleGenerateTrackingBundle creates the collaboration's tracking codes,
// or returns the existing ones.
//
//	POST /api/collaborations/{collaborationID}/tracking
func (h *Handlers) HandleGenerateTrackingBundle(w http.ResponseWriter, r *http.Request) {
	id, err := h.collaborationID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	b, err := h.attribution.GenerateTrackingBundle(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, b)
}

// HandleGetTrackingBundle returns the collaboration's tracking codes.
//
//	GET /api/collaborations/{collaborationID}/tracking
func (h *Handlers) HandleGetTrackingBundle(w http.ResponseWriter, r *http.Request) {
	id, err := h.collaborationID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	b, err := h.attribution.GetBundle(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, b)
}

type couponRequest struct {
	Code string `json:"code" validate:"required,alphanum,min=3,max=32"`
}

// HandleAssignCoupon attaches a coupon code to the bundle once.
//
//	PUT /api/collaborations/{collaborationID}/tracking/coupon
func (h *Handlers) HandleAssignCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if !decodeValid(w, r, &req) {
		return
	}
	id, err := h.collaborationID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	b, err := h.attribution.AssignCouponCode(r.Context(), id, req.Code)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, b)
}

// HandleGetAttribution returns the collaboration's attribution metrics.
//
//	GET /api/collaborations/{collaborationID}/attribution
func (h *Handlers) HandleGetAttribution(w http.ResponseWriter, r *http.Request) {
	h.attributionResult(w, r, h.attribution.GetResult)
}

// HandleRecalculateAttribution recomputes derived metrics from counters.
//
//	POST /api/collaborations/{collaborationID}/attribution/recalculate
func (h *Handlers) HandleRecalculateAttribution(w http.ResponseWriter, r *http.Request) {
	h.attributionResult(w, r, h.attribution.RecalculateMetrics)
}

// HandleRebuildAttribution recomputes counters from the event history.
//
//	POST /api/collaborations/{collaborationID}/attribution/rebuild
func (h *Handlers) HandleRebuildAttribution(w http.ResponseWriter, r *http.Request) {
	h.attributionResult(w, r, h.attribution.RebuildResult)
}

func (h *Handlers) attributionResult(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, collaborationID string) (*domain.AttributionResult, error)) {
	id, err := h.collaborationID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := fn(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, presentResult(res))
}

// HandleAttributionSummary renders a plain-text summary of the
// collaboration's performance.
//
//	GET /api/collaborations/{collaborationID}/attribution/summary
func (h *Handlers) HandleAttributionSummary(w http.ResponseWriter, r *http.Request) {
	id, err := h.collaborationID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	b, err := h.attribution.GetBundle(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.attribution.GetResult(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	text, err := h.reports.AttributionSummary(b, res)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"summary": text})
}

type trackEventRequest struct {
	AffiliateCode string                      `json:"affiliate_code" validate:"omitempty,max=32"`
	ShortCode     string                      `json:"short_code" validate:"omitempty,max=32"`
	CouponCode    string                      `json:"coupon_code" validate:"omitempty,max=32"`
	EventType     domain.AttributionEventType `json:"event_type" validate:"required,oneof=click page_view purchase"`
	OrderID       string                      `json:"order_id" validate:"omitempty,max=128"`
	OrderValue    *decimal.Decimal            `json:"order_value"`
	UserHash      string                      `json:"user_hash" validate:"omitempty,max=128"`
	SessionID     string                      `json:"session_id" validate:"omitempty,max=128"`
	Region        string                      `json:"region" validate:"omitempty,max=8"`
	OccurredAt    *time.Time                  `json:"occurred_at"`
}

// HandleTrackEvent records an attribution event sent by a storefront or
// server integration. Purchases repeated with the same order id answer
// with duplicate=true.
//
//	POST /track/events
func (h *Handlers) HandleTrackEvent(w http.ResponseWriter, r *http.Request) {
	var req trackEventRequest
	if !decodeValid(w, r, &req) {
		return
	}
	raw, _ := json.Marshal(req)
	in := attribution.EventInput{
		Codes: attribution.CodeParams{
			AffiliateCode: req.AffiliateCode,
			ShortCode:     req.ShortCode,
			CouponCode:    req.CouponCode,
		},
		EventType:  req.EventType,
		Source:     domain.SourceAPI,
		OrderID:    req.OrderID,
		OrderValue: req.OrderValue,
		UserHash:   req.UserHash,
		SessionID:  req.SessionID,
		Region:     req.Region,
		RawPayload: raw,
	}
	if req.OccurredAt != nil {
		in.OccurredAt = req.OccurredAt.UTC()
	}
	res, err := h.attribution.RecordEvent(r.Context(), in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, presentRecord(res))
}
