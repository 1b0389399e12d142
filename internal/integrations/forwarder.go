package integrations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/metrics"
	"github.com/ignite/creatorhub/internal/pkg/logger"
	"github.com/ignite/creatorhub/internal/tasks"
)

// ConfigSource looks up one brand integration config.
type ConfigSource interface {
	Get(ctx context.Context, brandID string, provider domain.IntegrationProvider) (*domain.IntegrationConfig, bool, error)
}

// Options configures the default senders.
type Options struct {
	Timeout     time.Duration
	Retries     int
	GA4URL      string
	MetaBaseURL string
}

// DefaultSenders builds the GA4, Meta and Shopify senders over one retrying
// HTTP client.
func DefaultSenders(o Options) []Sender {
	client := newDefaultClient(o.Timeout, o.Retries)
	return []Sender{
		NewGA4Sender(client, o.GA4URL),
		NewMetaSender(client, o.MetaBaseURL),
		NewShopifySender(client),
	}
}

// Forwarder routes purchases to the sender for the configured provider.
type Forwarder struct {
	configs ConfigSource
	senders map[domain.IntegrationProvider]Sender
}

// NewForwarder creates a forwarder over the given senders.
func NewForwarder(configs ConfigSource, senders ...Sender) *Forwarder {
	f := &Forwarder{configs: configs, senders: make(map[domain.IntegrationProvider]Sender, len(senders))}
	for _, s := range senders {
		f.senders[s.Provider()] = s
	}
	return f
}

// errSkipped marks a purchase that was not sent because the integration is
// absent or disabled.
var errSkipped = errors.New("integration not enabled")

// Forward sends one purchase to one provider. A missing or disabled config
// is skipped without error. Failures that cannot succeed on retry are
// returned as permanent task errors.
func (f *Forwarder) Forward(ctx context.Context, brandID string, provider domain.IntegrationProvider, order OrderData) (Result, error) {
	sender, ok := f.senders[provider]
	if !ok {
		metrics.IntegrationForwards.WithLabelValues(string(provider), "failed").Inc()
		return Result{Provider: provider, Error: "unsupported provider"},
			tasks.Permanent(fmt.Errorf("unsupported integration provider %q", provider))
	}

	cfg, found, err := f.configs.Get(ctx, brandID, provider)
	if err != nil {
		return Result{Provider: provider, Error: err.Error(), Retryable: true}, fmt.Errorf("load integration config: %w", err)
	}
	if !found || !cfg.Enabled {
		metrics.IntegrationForwards.WithLabelValues(string(provider), "skipped").Inc()
		logger.Debug("integration skipped", "brand_id", brandID, "provider", string(provider))
		return Result{Provider: provider, Error: errSkipped.Error()}, nil
	}

	res := sender.SendPurchaseEvent(ctx, *cfg, order)
	if res.Success {
		metrics.IntegrationForwards.WithLabelValues(string(provider), "ok").Inc()
		logger.Info("purchase forwarded", "brand_id", brandID, "provider", string(provider), "order_id", order.OrderID)
		return res, nil
	}

	metrics.IntegrationForwards.WithLabelValues(string(provider), "failed").Inc()
	err = fmt.Errorf("forward to %s: %s", provider, res.Error)
	if !res.Retryable {
		err = tasks.Permanent(err)
	}
	return res, err
}

// HandleTask is the tasks.Handler for TypeForwardPurchase.
func (f *Forwarder) HandleTask(ctx context.Context, t tasks.Task) error {
	var p tasks.ForwardPurchasePayload
	if err := t.Decode(&p); err != nil {
		return err
	}
	_, err := f.Forward(ctx, p.BrandID, domain.IntegrationProvider(p.Provider), OrderData{
		OrderID:    p.OrderID,
		Value:      p.Value,
		Currency:   p.Currency,
		UserHash:   p.UserHash,
		CampaignID: p.CampaignID,
		BundleID:   p.BundleID,
		OccurredAt: p.OccurredAt,
	})
	return err
}
