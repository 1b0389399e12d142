package api

import (
	"context"

	"github.com/ignite/creatorhub/internal/integrations"
	"github.com/ignite/creatorhub/internal/report"
	"github.com/ignite/creatorhub/internal/service/attribution"
	"github.com/ignite/creatorhub/internal/service/campaign"
	"github.com/ignite/creatorhub/internal/service/escrow"
	"github.com/ignite/creatorhub/internal/service/lifttest"
	"github.com/ignite/creatorhub/internal/service/payments"
)

// StatementExporter uploads a brand's ledger statement.
type StatementExporter interface {
	Export(ctx context.Context, brandID string) (*report.Export, error)
}

// WebhookParser verifies and decodes a payment gateway webhook.
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (*payments.GatewayEvent, error)
}

// Handlers holds the services behind the HTTP API.
type Handlers struct {
	escrow       *escrow.Service
	campaigns    *campaign.Service
	payments     *payments.Service
	attribution  *attribution.Service
	lift         *lifttest.Service
	reports      *report.Renderer
	statements   StatementExporter
	integrations integrations.ConfigSource
	webhooks     WebhookParser
}

// Services groups the dependencies of NewHandlers. Statements, Webhooks and
// Integrations are optional; their endpoints answer with an error or are
// skipped when unset.
type Services struct {
	Escrow       *escrow.Service
	Campaigns    *campaign.Service
	Payments     *payments.Service
	Attribution  *attribution.Service
	LiftTests    *lifttest.Service
	Reports      *report.Renderer
	Statements   StatementExporter
	Integrations integrations.ConfigSource
	Webhooks     WebhookParser
}

// NewHandlers creates the API handlers.
func NewHandlers(s Services) *Handlers {
	return &Handlers{
		escrow:       s.Escrow,
		campaigns:    s.Campaigns,
		payments:     s.Payments,
		attribution:  s.Attribution,
		lift:         s.LiftTests,
		reports:      s.Reports,
		statements:   s.Statements,
		integrations: s.Integrations,
		webhooks:     s.Webhooks,
	}
}
