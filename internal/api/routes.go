package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ignite/creatorhub/internal/metrics"
)

// Mounter adds routes to the top-level router. The tracking redirect and
// pixel handler implements it.
type Mounter interface {
	Mount(r chi.Router)
}

// RouteOptions configures SetupRoutes.
type RouteOptions struct {
	AllowedOrigins []string
	Health         *HealthChecker
	Tracking       Mounter
}

// SetupRoutes configures all routes.
//
// Public: /health*, /metrics, /webhooks/*, /track/events and the tracking
// redirect and pixel. Everything under /api requires X-Brand-ID.
func SetupRoutes(h *Handlers, opts RouteOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", HeaderBrandID, HeaderUserID},
		ExposedHeaders:   []string{"Link", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if opts.Health != nil {
		r.Get("/health", opts.Health.HandleHealth)
		r.Get("/health/live", opts.Health.HandleLiveness)
		r.Get("/health/ready", opts.Health.HandleReadiness)
		r.Get("/health/db", opts.Health.HandleDBStats)
	} else {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}`))
		})
	}
	r.Handle("/metrics", metrics.Handler())

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/payments", h.HandlePaymentWebhook)
		r.Post("/shopify/{brandID}", h.HandleShopifyWebhook)
	})
	r.Post("/track/events", h.HandleTrackEvent)
	if opts.Tracking != nil {
		opts.Tracking.Mount(r)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(RequireBrand)

		r.Route("/escrow", func(r chi.Router) {
			r.Get("/overview", h.HandleEscrowOverview)
			r.Get("/transactions", h.HandleEscrowTransactions)
			r.Get("/allocation", h.HandleAllocation)
			r.Post("/statements", h.HandleStatementExport)
			r.Post("/campaigns/{campaignID}/fund", h.HandleFundCampaign)
			r.Post("/campaigns/{campaignID}/milestones/{milestoneID}/release", h.HandleReleaseMilestone)
		})

		r.Route("/deposits", func(r chi.Router) {
			r.Post("/", h.HandleInitiateDeposit)
			r.Post("/{transactionID}/verify", h.HandleVerifyDeposit)
		})

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", h.HandleListCampaigns)
			r.Post("/", h.HandleCreateCampaign)
			r.Get("/{campaignID}", h.HandleGetCampaign)
			r.Put("/{campaignID}/status", h.HandleUpdateCampaignStatus)
			r.Get("/{campaignID}/lift-tests", h.HandleListLiftTests)
		})

		r.Route("/collaborations/{collaborationID}", func(r chi.Router) {
			r.Post("/tracking", h.HandleGenerateTrackingBundle)
			r.Get("/tracking", h.HandleGetTrackingBundle)
			r.Put("/tracking/coupon", h.HandleAssignCoupon)
			r.Get("/attribution", h.HandleGetAttribution)
			r.Post("/attribution/recalculate", h.HandleRecalculateAttribution)
			r.Post("/attribution/rebuild", h.HandleRebuildAttribution)
			r.Get("/attribution/summary", h.HandleAttributionSummary)
		})

		r.Route("/lift-tests", func(r chi.Router) {
			r.Post("/", h.HandleCreateLiftTest)
			r.Get("/{testID}", h.HandleGetLiftTest)
			r.Post("/{testID}/start", h.liftTransition(h.lift.Start))
			r.Post("/{testID}/pause", h.liftTransition(h.lift.Pause))
			r.Post("/{testID}/resume", h.liftTransition(h.lift.Resume))
			r.Post("/{testID}/complete", h.liftTransition(h.lift.Complete))
			r.Post("/{testID}/assign", h.HandleAssignLiftGroup)
			r.Post("/{testID}/results", h.HandleCalculateLiftResults)
			r.Get("/{testID}/report", h.HandleLiftReport)
			r.Post("/{testID}/groups/{groupID}/events", h.HandleRecordGroupEvent)
		})
	})

	return r
}
