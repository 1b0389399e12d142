package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/integrations"
	"github.com/ignite/creatorhub/internal/payments/stripegw"
	"github.com/ignite/creatorhub/internal/pkg/httputil"
	"github.com/ignite/creatorhub/internal/pkg/logger"
	"github.com/ignite/creatorhub/internal/pkg/money"
	"github.com/ignite/creatorhub/internal/service/attribution"
	"github.com/shopspring/decimal"
)

// Webhook senders retry anything that is not 2xx, so processing failures
// are logged and acknowledged. Only a failed signature is rejected.

const maxWebhookBytes = 512 << 10

var received = map[string]bool{"received": true}

func readWebhook(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		logger.Error("webhook body unreadable", "path", r.URL.Path, "error", err.Error())
		httputil.OK(w, received)
		return nil, false
	}
	return body, true
}

func unauthorized(w http.ResponseWriter) {
	httputil.JSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "invalid signature", Code: "invalid_signature"})
}

// HandlePaymentWebhook settles deposits from payment gateway notifications.
//
//	POST /webhooks/payments
func (h *Handlers) HandlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, ok := readWebhook(w, r)
	if !ok {
		return
	}
	if h.webhooks == nil {
		logger.Warn("payment webhook received but no gateway is configured")
		httputil.OK(w, received)
		return
	}

	ev, err := h.webhooks.ParseWebhook(body, r.Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, stripegw.ErrInvalidSignature):
		logger.Warn("payment webhook signature rejected", "error", err.Error())
		unauthorized(w)
		return
	case errors.Is(err, stripegw.ErrUnhandledEvent):
		httputil.OK(w, received)
		return
	case err != nil:
		logger.Error("payment webhook decode failed", "error", err.Error())
		httputil.OK(w, received)
		return
	}

	if _, err := h.payments.HandleGatewayEvent(r.Context(), *ev); err != nil {
		logger.Error("payment webhook processing failed",
			"reference_id", ev.ReferenceID, "status", string(ev.Status), "error", err.Error())
	}
	httputil.OK(w, received)
}

type shopifyOrder struct {
	ID            jsonID `json:"id"`
	TotalPrice    string `json:"total_price"`
	LandingSite   string `json:"landing_site"`
	CreatedAt     string `json:"created_at"`
	DiscountCodes []struct {
		Code string `json:"code"`
	} `json:"discount_codes"`
	NoteAttributes []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"note_attributes"`
	Customer *struct {
		ID jsonID `json:"id"`
	} `json:"customer"`
	ShippingAddress *struct {
		CountryCode string `json:"country_code"`
	} `json:"shipping_address"`
}

// jsonID accepts numeric or string ids.
type jsonID string

func (id *jsonID) UnmarshalJSON(b []byte) error {
	*id = jsonID(strings.Trim(string(b), `"`))
	if *id == "null" {
		*id = ""
	}
	return nil
}

// codes extracts tracking codes: ref/aff and s from the landing URL or the
// cart note attributes, and the first discount code as the coupon.
func (o *shopifyOrder) codes() attribution.CodeParams {
	var p attribution.CodeParams
	if o.LandingSite != "" {
		if u, err := url.Parse(o.LandingSite); err == nil {
			q := u.Query()
			p.AffiliateCode = firstNonEmpty(q.Get("ref"), q.Get("aff"))
			p.ShortCode = q.Get("s")
		}
	}
	for _, a := range o.NoteAttributes {
		switch strings.ToLower(a.Name) {
		case "creatorhub_ref", "affiliate_code", "ref":
			if p.AffiliateCode == "" {
				p.AffiliateCode = strings.TrimSpace(a.Value)
			}
		}
	}
	if len(o.DiscountCodes) > 0 {
		p.CouponCode = strings.TrimSpace(o.DiscountCodes[0].Code)
	}
	return p
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// HandleShopifyWebhook attributes a Shopify order to the creator whose code
// it carries. The brand's shopify integration holds the webhook secret.
//
//	POST /webhooks/shopify/{brandID}
func (h *Handlers) HandleShopifyWebhook(w http.ResponseWriter, r *http.Request) {
	body, ok := readWebhook(w, r)
	if !ok {
		return
	}
	brandID := chi.URLParam(r, "brandID")

	secret := ""
	if h.integrations != nil {
		cfg, found, err := h.integrations.Get(r.Context(), brandID, domain.ProviderShopify)
		if err != nil {
			logger.Error("shopify webhook config lookup failed", "brand_id", brandID, "error", err.Error())
		}
		if found && cfg.Enabled {
			secret = cfg.Credential("webhook_secret")
		}
	}
	if !integrations.VerifyShopifyHMAC(body, secret, r.Header.Get("X-Shopify-Hmac-Sha256")) {
		logger.Warn("shopify webhook signature rejected", "brand_id", brandID)
		unauthorized(w)
		return
	}

	switch topic := r.Header.Get("X-Shopify-Topic"); topic {
	case "", "orders/create", "orders/paid":
	default:
		httputil.OK(w, received)
		return
	}

	var order shopifyOrder
	if err := json.Unmarshal(body, &order); err != nil {
		logger.Error("shopify webhook decode failed", "brand_id", brandID, "error", err.Error())
		httputil.OK(w, received)
		return
	}
	codes := order.codes()
	if codes.Empty() {
		httputil.OK(w, map[string]interface{}{"received": true, "attributed": false})
		return
	}

	b, err := h.attribution.ResolveBundle(r.Context(), codes)
	if err == nil && b.BrandID != brandID {
		err = attribution.ErrBundleNotFound
	}
	if err != nil {
		logger.Info("shopify order not attributed", "brand_id", brandID, "order_id", string(order.ID), "reason", err.Error())
		httputil.OK(w, map[string]interface{}{"received": true, "attributed": false})
		return
	}

	in := attribution.EventInput{
		Codes:      codes,
		EventType:  domain.EventPurchase,
		Source:     domain.SourceShopify,
		OrderID:    string(order.ID),
		RawPayload: body,
	}
	if v, err := money.Parse(order.TotalPrice); err == nil {
		v = money.Round(v)
		in.OrderValue = &v
	} else {
		zero := decimal.Zero
		in.OrderValue = &zero
	}
	if order.Customer != nil && order.Customer.ID != "" {
		in.UserHash = "shopify:" + string(order.Customer.ID)
	}
	if order.ShippingAddress != nil {
		in.Region = order.ShippingAddress.CountryCode
	}
	if t, err := time.Parse(time.RFC3339, order.CreatedAt); err == nil {
		in.OccurredAt = t.UTC()
	}

	res, err := h.attribution.RecordEvent(r.Context(), in)
	if err != nil {
		logger.Error("shopify order attribution failed", "brand_id", brandID, "order_id", in.OrderID, "error", err.Error())
		httputil.OK(w, received)
		return
	}
	httputil.OK(w, map[string]interface{}{"received": true, "attributed": true, "duplicate": res.Duplicate})
}
