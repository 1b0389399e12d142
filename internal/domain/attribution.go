package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Collaboration is the read-only view of a creator's participation in a
// campaign. Rows are owned by the profile service; this module only reads
// the identifiers and the handle used for code generation.
type Collaboration struct {
	ID              string          `json:"id" db:"id"`
	CampaignID      string          `json:"campaign_id" db:"campaign_id"`
	CampaignName    string          `json:"campaign_name" db:"campaign_name"`
	BrandID         string          `json:"brand_id" db:"brand_id"`
	CreatorID       string          `json:"creator_id" db:"creator_id"`
	CreatorHandle   string          `json:"creator_handle" db:"creator_handle"`
	CampaignBaseURL string          `json:"campaign_base_url" db:"campaign_base_url"`
	BrandWebsite    string          `json:"brand_website" db:"brand_website"`
	AgreedFee       decimal.Decimal `json:"agreed_fee" db:"agreed_fee"`
}

// CodeType names which tracking code a lookup is matching against.
type CodeType string

const (
	CodeAffiliate CodeType = "affiliate"
	CodeShortLink CodeType = "short_link"
	CodeCoupon    CodeType = "coupon"
)

// Valid reports whether t is a known code type.
func (t CodeType) Valid() bool {
	return t == CodeAffiliate || t == CodeShortLink || t == CodeCoupon
}

// TrackingBundle is the set of codes and URLs issued to one collaboration.
// Affiliate and short-link codes are globally unique and never regenerated.
type TrackingBundle struct {
	ID              string    `json:"id" db:"id"`
	CollaborationID string    `json:"collaboration_id" db:"collaboration_id"`
	CampaignID      string    `json:"campaign_id" db:"campaign_id"`
	BrandID         string    `json:"brand_id" db:"brand_id"`
	AffiliateCode   string    `json:"affiliate_code" db:"affiliate_code"`
	ShortLinkCode   string    `json:"short_link_code" db:"short_link_code"`
	CouponCode      *string   `json:"coupon_code,omitempty" db:"coupon_code"`
	UTMSource       string    `json:"utm_source" db:"utm_source"`
	UTMMedium       string    `json:"utm_medium" db:"utm_medium"`
	UTMCampaign     string    `json:"utm_campaign" db:"utm_campaign"`
	UTMContent      string    `json:"utm_content" db:"utm_content"`
	TrackingURL     string    `json:"tracking_url" db:"tracking_url"`
	ShortLinkURL    string    `json:"short_link_url" db:"short_link_url"`
	IsActive        bool      `json:"is_active" db:"is_active"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// AttributionEventType is what happened.
type AttributionEventType string

const (
	EventClick    AttributionEventType = "click"
	EventPageView AttributionEventType = "page_view"
	EventPurchase AttributionEventType = "purchase"
)

// Valid reports whether t is a known event type.
func (t AttributionEventType) Valid() bool {
	return t == EventClick || t == EventPageView || t == EventPurchase
}

// EventSource is where an event entered the system.
type EventSource string

const (
	SourceWebhook  EventSource = "webhook"
	SourcePixel    EventSource = "pixel"
	SourceAPI      EventSource = "api"
	SourceShopify  EventSource = "shopify"
	SourceRedirect EventSource = "redirect"
	SourceSync     EventSource = "sync"
)

// AttributionEvent is an append-only record of one tracked interaction.
// A non-nil OrderID is attributed at most once system-wide.
type AttributionEvent struct {
	ID               string               `json:"id" db:"id"`
	TrackingBundleID string               `json:"tracking_bundle_id" db:"tracking_bundle_id"`
	CampaignID       string               `json:"campaign_id" db:"campaign_id"`
	EventType        AttributionEventType `json:"event_type" db:"event_type"`
	EventSource      EventSource          `json:"event_source" db:"event_source"`
	OrderValue       *decimal.Decimal     `json:"order_value,omitempty" db:"order_value"`
	OrderID          *string              `json:"order_id,omitempty" db:"order_id"`
	UserHash         string               `json:"user_hash,omitempty" db:"user_hash"`
	Region           string               `json:"region,omitempty" db:"region"`
	OccurredAt       time.Time            `json:"occurred_at" db:"occurred_at"`
	CreatedAt        time.Time            `json:"created_at" db:"created_at"`
	RawPayload       json.RawMessage      `json:"raw_payload,omitempty" db:"raw_payload"`
}

// AttributionResult is the materialized aggregate for a collaboration.
// It can always be rebuilt from the collaboration's event history.
type AttributionResult struct {
	CollaborationID   string          `json:"collaboration_id" db:"collaboration_id"`
	TrackingBundleID  string          `json:"tracking_bundle_id" db:"tracking_bundle_id"`
	TotalClicks       int64           `json:"total_clicks" db:"total_clicks"`
	TotalConversions  int64           `json:"total_conversions" db:"total_conversions"`
	TotalRevenue      decimal.Decimal `json:"total_revenue" db:"total_revenue"`
	CreatorCost       decimal.Decimal `json:"creator_cost" db:"creator_cost"`
	ConversionRate    decimal.Decimal `json:"conversion_rate" db:"conversion_rate"`
	ROAS              decimal.Decimal `json:"roas" db:"roas"`
	CostPerConversion decimal.Decimal `json:"cost_per_conversion" db:"cost_per_conversion"`
	AverageOrderValue decimal.Decimal `json:"average_order_value" db:"average_order_value"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// IntegrationProvider names an outbound purchase destination.
type IntegrationProvider string

const (
	ProviderGA4      IntegrationProvider = "ga4"
	ProviderMetaCAPI IntegrationProvider = "meta_capi"
	ProviderShopify  IntegrationProvider = "shopify"
)

// IntegrationConfig is a brand's configuration for one provider. Credentials
// are provider-specific keys (measurement_id, api_secret, pixel_id, ...).
type IntegrationConfig struct {
	ID          string              `json:"id" db:"id"`
	BrandID     string              `json:"brand_id" db:"brand_id"`
	Provider    IntegrationProvider `json:"provider" db:"provider"`
	Enabled     bool                `json:"enabled" db:"enabled"`
	Credentials map[string]string   `json:"-" db:"credentials"`
	CreatedAt   time.Time           `json:"created_at" db:"created_at"`
}

// Credential returns a credential value or "".
func (c *IntegrationConfig) Credential(key string) string {
	if c.Credentials == nil {
		return ""
	}
	return c.Credentials[key]
}
