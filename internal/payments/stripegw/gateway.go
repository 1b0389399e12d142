// Package stripegw adapts Stripe Checkout to the payments.Gateway interface
// and turns signed Stripe webhooks into payments.GatewayEvent values.
package stripegw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ignite/creatorhub/internal/service/payments"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// ProviderName is stored as the transactions' gateway_provider.
const ProviderName = "stripe"

var (
	// ErrInvalidSignature marks a webhook whose signature did not verify.
	ErrInvalidSignature = errors.New("invalid stripe signature")
	// ErrUnhandledEvent is returned by ParseWebhook for event types that do
	// not settle a deposit.
	ErrUnhandledEvent = errors.New("unhandled stripe event")
)

// Config holds the Stripe credentials and redirect targets.
type Config struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	// APIURL overrides the API base URL. Tests point it at a local server.
	APIURL     string
	HTTPClient *http.Client
}

// Gateway is a Stripe Checkout payment gateway.
type Gateway struct {
	api *client.API
	cfg Config
}

var _ payments.Gateway = (*Gateway)(nil)

// New creates a Stripe gateway with its own client; the package-level
// stripe.Key is never touched.
func New(cfg Config) *Gateway {
	var backends *stripe.Backends
	if cfg.APIURL != "" || cfg.HTTPClient != nil {
		bc := &stripe.BackendConfig{HTTPClient: cfg.HTTPClient, MaxNetworkRetries: stripe.Int64(0)}
		if cfg.APIURL != "" {
			bc.URL = stripe.String(cfg.APIURL)
		}
		backends = stripe.NewBackendsWithConfig(bc)
	}
	api := &client.API{}
	api.Init(cfg.SecretKey, backends)
	return &Gateway{api: api, cfg: cfg}
}

func (g *Gateway) Name() string { return ProviderName }

// CreateCheckoutSession opens a one-off payment session for req.Amount.
func (g *Gateway) CreateCheckoutSession(ctx context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(g.cfg.SuccessURL),
		CancelURL:         stripe.String(g.cfg.CancelURL),
		ClientReferenceID: stripe.String(req.TransactionID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Currency)),
				UnitAmount: stripe.Int64(toMinorUnits(req.Amount)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Description),
				},
			},
			Quantity: stripe.Int64(1),
		}},
	}
	params.Context = ctx
	params.AddMetadata("transaction_id", req.TransactionID)
	params.AddMetadata("brand_id", req.BrandID)

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create checkout session: %w", err)
	}
	return &payments.CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

// GetCheckoutStatus maps a session to paid, failed (expired) or pending.
func (g *Gateway) GetCheckoutStatus(ctx context.Context, sessionID string) (payments.GatewayStatus, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := g.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return "", fmt.Errorf("stripe get checkout session: %w", err)
	}
	return sessionStatus(s), nil
}

func sessionStatus(s *stripe.CheckoutSession) payments.GatewayStatus {
	switch {
	case s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		return payments.StatusPaid
	case s.Status == stripe.CheckoutSessionStatusExpired:
		return payments.StatusFailed
	default:
		return payments.StatusPending
	}
}

// ParseWebhook verifies the Stripe-Signature header and extracts the
// deposit outcome from checkout session events.
func (g *Gateway) ParseWebhook(payload []byte, signature string) (*payments.GatewayEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var status payments.GatewayStatus
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		status = payments.StatusPending
	case stripe.EventTypeCheckoutSessionExpired, stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		status = payments.StatusFailed
	default:
		return nil, ErrUnhandledEvent
	}

	var s stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	if status == payments.StatusPending && s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
		status = payments.StatusPaid
	}

	ev := &payments.GatewayEvent{ReferenceID: s.ID, TransactionID: s.ClientReferenceID, Status: status}
	if id := s.Metadata["transaction_id"]; id != "" {
		ev.TransactionID = id
	}
	if s.AmountTotal > 0 {
		amount := fromMinorUnits(s.AmountTotal)
		ev.Amount = &amount
	}
	return ev, nil
}

var cents = decimal.NewFromInt(100)

func toMinorUnits(d decimal.Decimal) int64 {
	return d.Mul(cents).Round(0).IntPart()
}

func fromMinorUnits(v int64) decimal.Decimal {
	return decimal.NewFromInt(v).Div(cents)
}
