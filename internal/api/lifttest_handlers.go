package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/pkg/httputil"
	"github.com/ignite/creatorhub/internal/service/lifttest"
	"github.com/shopspring/decimal"
)

type createLiftTestRequest struct {
	CampaignID        string              `json:"campaign_id" validate:"required"`
	Name              string              `json:"name" validate:"required,max=200"`
	TestType          domain.LiftTestType `json:"test_type" validate:"required,oneof=geographic random_split time_based"`
	TargetLiftPct     *float64            `json:"target_lift_pct" validate:"omitempty,gte=0"`
	TestRegions       []string            `json:"test_regions" validate:"omitempty,dive,max=8"`
	ControlRegions    []string            `json:"control_regions" validate:"omitempty,dive,max=8"`
	TestPercentage    int                 `json:"test_percentage" validate:"gte=0,lte=100"`
	ControlPercentage int                 `json:"control_percentage" validate:"gte=0,lte=100"`
	BaselineStart     *time.Time          `json:"baseline_start"`
	BaselineEnd       *time.Time          `json:"baseline_end"`
}

// liftTest loads the path's test and checks that its campaign belongs to
// the caller's brand.
func (h *Handlers) liftTest(r *http.Request) (*domain.LiftTest, error) {
	t, err := h.lift.Get(r.Context(), chi.URLParam(r, "testID"))
	if err != nil {
		return nil, err
	}
	if _, err := h.campaigns.Get(r.Context(), identity(r).BrandID, t.CampaignID); err != nil {
		return nil, lifttest.ErrNotFound
	}
	return t, nil
}

// HandleCreateLiftTest creates a draft test with its two groups.
//
//	POST /api/lift-tests
func (h *Handlers) HandleCreateLiftTest(w http.ResponseWriter, r *http.Request) {
	var req createLiftTestRequest
	if !decodeValid(w, r, &req) {
		return
	}
	if _, err := h.campaigns.Get(r.Context(), identity(r).BrandID, req.CampaignID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	t, err := h.lift.Create(r.Context(), lifttest.CreateInput{
		CampaignID:        req.CampaignID,
		Name:              req.Name,
		TestType:          req.TestType,
		TargetLiftPct:     req.TargetLiftPct,
		TestRegions:       req.TestRegions,
		ControlRegions:    req.ControlRegions,
		TestPercentage:    req.TestPercentage,
		ControlPercentage: req.ControlPercentage,
		BaselineStart:     req.BaselineStart,
		BaselineEnd:       req.BaselineEnd,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.Created(w, presentLiftTest(t))
}

// HandleListLiftTests lists a campaign's tests.
//
//	GET /api/campaigns/{campaignID}/lift-tests
func (h *Handlers) HandleListLiftTests(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Get(r.Context(), identity(r).BrandID, chi.URLParam(r, "campaignID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	tests, err := h.lift.ListByCampaign(r.Context(), c.ID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]liftTestView, 0, len(tests))
	for i := range tests {
		out = append(out, presentLiftTest(&tests[i]))
	}
	httputil.OK(w, map[string]interface{}{"lift_tests": out})
}

// HandleGetLiftTest returns a test with its groups and latest result.
//
//	GET /api/lift-tests/{testID}
func (h *Handlers) HandleGetLiftTest(w http.ResponseWriter, r *http.Request) {
	t, err := h.liftTest(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, presentLiftTest(t))
}

// liftTransition serves start, pause, resume and complete.
func (h *Handlers) liftTransition(fn func(ctx context.Context, id string) (*domain.LiftTest, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := h.liftTest(r)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		t, err = fn(r.Context(), t.ID)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.OK(w, presentLiftTest(t))
	}
}

type assignRequest struct {
	Region    string `json:"region" validate:"omitempty,max=8"`
	UserID    string `json:"user_id" validate:"omitempty,max=128"`
	SessionID string `json:"session_id" validate:"omitempty,max=128"`
}

// HandleAssignLiftGroup returns the visitor's group, or null when the test
// is not assigning.
//
//	POST /api/lift-tests/{testID}/assign
func (h *Handlers) HandleAssignLiftGroup(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !decodeValid(w, r, &req) {
		return
	}
	t, err := h.liftTest(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	g, err := h.lift.AssignUserToGroup(r.Context(), t.ID, lifttest.AssignInput{
		Region:    req.Region,
		UserID:    req.UserID,
		SessionID: req.SessionID,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"group": presentGroup(g)})
}

type groupEventRequest struct {
	EventType domain.GroupEventType `json:"event_type" validate:"required,oneof=impression unique_user conversion revenue"`
	Value     decimal.Decimal       `json:"value" validate:"gte=0"`
}

// HandleRecordGroupEvent increments one counter of a test group.
//
//	POST /api/lift-tests/{testID}/groups/{groupID}/events
func (h *Handlers) HandleRecordGroupEvent(w http.ResponseWriter, r *http.Request) {
	var req groupEventRequest
	if !decodeValid(w, r, &req) {
		return
	}
	t, err := h.liftTest(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	groupID := chi.URLParam(r, "groupID")
	owned := false
	for _, g := range t.Groups {
		if g.ID == groupID {
			owned = true
			break
		}
	}
	if !owned {
		httputil.WriteError(w, lifttest.ErrGroupNotFound)
		return
	}
	g, err := h.lift.RecordGroupEvent(r.Context(), groupID, req.EventType, req.Value)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, presentGroup(g))
}

// HandleCalculateLiftResults computes and stores a fresh result.
//
//	POST /api/lift-tests/{testID}/results
func (h *Handlers) HandleCalculateLiftResults(w http.ResponseWriter, r *http.Request) {
	t, err := h.liftTest(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.lift.CalculateResults(r.Context(), t.ID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, presentLiftResult(res))
}

// HandleLiftReport renders the latest result as text.
//
//	GET /api/lift-tests/{testID}/report
func (h *Handlers) HandleLiftReport(w http.ResponseWriter, r *http.Request) {
	t, err := h.liftTest(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	text, err := h.reports.LiftSummary(t)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"summary": text})
}
