// Package integrations forwards attributed purchases to the analytics and
// commerce platforms a brand has connected: GA4 Measurement Protocol, the
// Meta Conversions API and Shopify order notes.
//
// Each Sender speaks one provider's HTTP API through the retrying client in
// pkg/httpretry. The Forwarder resolves a brand's config and routes one
// purchase to one provider; it is the handler for the forward-purchase task.
package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/pkg/httpretry"
	"github.com/shopspring/decimal"
)

// OrderData is the purchase being forwarded.
type OrderData struct {
	OrderID    string
	Value      decimal.Decimal
	Currency   string
	UserHash   string
	CampaignID string
	BundleID   string
	OccurredAt time.Time
}

// Result reports the outcome of one send. Retryable is set for failures a
// later attempt could fix (transport errors, 429, 5xx).
type Result struct {
	Provider   domain.IntegrationProvider `json:"provider"`
	Success    bool                       `json:"success"`
	Error      string                     `json:"error,omitempty"`
	Retryable  bool                       `json:"-"`
	StatusCode int                        `json:"status_code,omitempty"`
}

// Sender delivers purchases to one provider.
type Sender interface {
	Provider() domain.IntegrationProvider
	SendPurchaseEvent(ctx context.Context, cfg domain.IntegrationConfig, order OrderData) Result
}

func failure(p domain.IntegrationProvider, format string, args ...interface{}) Result {
	return Result{Provider: p, Error: fmt.Sprintf(format, args...)}
}

func missingCredential(p domain.IntegrationProvider, key string) Result {
	return failure(p, "missing credential %s", key)
}

// postJSON sends body and classifies the response. Headers are applied
// after Content-Type.
func postJSON(ctx context.Context, client httpretry.HTTPDoer, p domain.IntegrationProvider, method, url string, body interface{}, headers map[string]string) Result {
	raw, err := json.Marshal(body)
	if err != nil {
		return failure(p, "encode request: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(raw))
	if err != nil {
		return failure(p, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		r := failure(p, "request failed: %v", err)
		r.Retryable = ctx.Err() == nil
		return r
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		r := failure(p, "status %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
		r.StatusCode = resp.StatusCode
		r.Retryable = resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return r
	}
	return Result{Provider: p, Success: true, StatusCode: resp.StatusCode}
}

func newDefaultClient(timeout time.Duration, retries int) httpretry.HTTPDoer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return httpretry.NewRetryClient(&http.Client{Timeout: timeout}, retries)
}
