package integrations

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/pkg/httpretry"
)

const (
	defaultGA4URL        = "https://www.google-analytics.com/mp/collect"
	defaultMetaGraphURL  = "https://graph.facebook.com/v18.0"
	shopifyAPIVersion    = "2024-01"
	shopifyAccessTokenHd = "X-Shopify-Access-Token"
)

// GA4Sender posts purchase events to the GA4 Measurement Protocol.
// Credentials: measurement_id, api_secret.
type GA4Sender struct {
	client  httpretry.HTTPDoer
	baseURL string
}

// NewGA4Sender creates a GA4 sender. An empty baseURL uses Google's endpoint.
func NewGA4Sender(client httpretry.HTTPDoer, baseURL string) *GA4Sender {
	if baseURL == "" {
		baseURL = defaultGA4URL
	}
	return &GA4Sender{client: client, baseURL: baseURL}
}

func (s *GA4Sender) Provider() domain.IntegrationProvider { return domain.ProviderGA4 }

func (s *GA4Sender) SendPurchaseEvent(ctx context.Context, cfg domain.IntegrationConfig, o OrderData) Result {
	measurementID := cfg.Credential("measurement_id")
	if measurementID == "" {
		return missingCredential(domain.ProviderGA4, "measurement_id")
	}
	secret := cfg.Credential("api_secret")
	if secret == "" {
		return missingCredential(domain.ProviderGA4, "api_secret")
	}

	q := url.Values{}
	q.Set("measurement_id", measurementID)
	q.Set("api_secret", secret)

	clientID := o.UserHash
	if clientID == "" {
		clientID = o.OrderID
	}
	body := map[string]interface{}{
		"client_id": clientID,
		"events": []map[string]interface{}{{
			"name": "purchase",
			"params": map[string]interface{}{
				"transaction_id": o.OrderID,
				"value":          o.Value.InexactFloat64(),
				"currency":       o.Currency,
				"campaign_id":    o.CampaignID,
				"affiliation":    o.BundleID,
			},
		}},
	}
	if !o.OccurredAt.IsZero() {
		body["timestamp_micros"] = o.OccurredAt.UnixMicro()
	}
	return postJSON(ctx, s.client, domain.ProviderGA4, http.MethodPost, s.baseURL+"?"+q.Encode(), body, nil)
}

// MetaSender posts Purchase events to the Meta Conversions API.
// Credentials: pixel_id, access_token.
type MetaSender struct {
	client  httpretry.HTTPDoer
	baseURL string
}

// NewMetaSender creates a Meta CAPI sender. An empty baseURL uses the Graph API.
func NewMetaSender(client httpretry.HTTPDoer, baseURL string) *MetaSender {
	if baseURL == "" {
		baseURL = defaultMetaGraphURL
	}
	return &MetaSender{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *MetaSender) Provider() domain.IntegrationProvider { return domain.ProviderMetaCAPI }

func (s *MetaSender) SendPurchaseEvent(ctx context.Context, cfg domain.IntegrationConfig, o OrderData) Result {
	pixelID := cfg.Credential("pixel_id")
	if pixelID == "" {
		return missingCredential(domain.ProviderMetaCAPI, "pixel_id")
	}
	token := cfg.Credential("access_token")
	if token == "" {
		return missingCredential(domain.ProviderMetaCAPI, "access_token")
	}

	event := map[string]interface{}{
		"event_name":    "Purchase",
		"event_time":    o.OccurredAt.Unix(),
		"event_id":      o.OrderID,
		"action_source": "website",
		"custom_data": map[string]interface{}{
			"value":    o.Value.InexactFloat64(),
			"currency": o.Currency,
			"order_id": o.OrderID,
		},
	}
	if o.UserHash != "" {
		event["user_data"] = map[string]interface{}{"external_id": []string{o.UserHash}}
	}
	body := map[string]interface{}{"data": []interface{}{event}}
	if code := cfg.Credential("test_event_code"); code != "" {
		body["test_event_code"] = code
	}

	endpoint := fmt.Sprintf("%s/%s/events?access_token=%s", s.baseURL, url.PathEscape(pixelID), url.QueryEscape(token))
	return postJSON(ctx, s.client, domain.ProviderMetaCAPI, http.MethodPost, endpoint, body, nil)
}

// ShopifySender annotates the order with the attributing bundle through the
// Admin API. Credentials: shop_domain, access_token. A shop_domain without
// a scheme is reached over https.
type ShopifySender struct {
	client httpretry.HTTPDoer
}

// NewShopifySender creates a Shopify sender.
func NewShopifySender(client httpretry.HTTPDoer) *ShopifySender {
	return &ShopifySender{client: client}
}

func (s *ShopifySender) Provider() domain.IntegrationProvider { return domain.ProviderShopify }

func (s *ShopifySender) SendPurchaseEvent(ctx context.Context, cfg domain.IntegrationConfig, o OrderData) Result {
	shop := cfg.Credential("shop_domain")
	if shop == "" {
		return missingCredential(domain.ProviderShopify, "shop_domain")
	}
	token := cfg.Credential("access_token")
	if token == "" {
		return missingCredential(domain.ProviderShopify, "access_token")
	}
	if o.OrderID == "" {
		return failure(domain.ProviderShopify, "order id required")
	}
	if !strings.Contains(shop, "://") {
		shop = "https://" + shop
	}

	body := map[string]interface{}{
		"order": map[string]interface{}{
			"id": o.OrderID,
			"note_attributes": []map[string]string{
				{"name": "creatorhub_campaign", "value": o.CampaignID},
				{"name": "creatorhub_bundle", "value": o.BundleID},
			},
		},
	}
	endpoint := fmt.Sprintf("%s/admin/api/%s/orders/%s.json", strings.TrimRight(shop, "/"), shopifyAPIVersion, url.PathEscape(o.OrderID))
	return postJSON(ctx, s.client, domain.ProviderShopify, http.MethodPut, endpoint, body,
		map[string]string{shopifyAccessTokenHd: token})
}
