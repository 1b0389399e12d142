// Package tracking serves the public short-link redirect and conversion
// pixel. Both answer immediately; the attribution event is recorded by a
// background task resolved by code.
package tracking

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/pkg/apperr"
	"github.com/ignite/creatorhub/internal/pkg/logger"
	"github.com/ignite/creatorhub/internal/pkg/money"
	"github.com/ignite/creatorhub/internal/tasks"
)

// 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

// BundleFinder resolves an active bundle by one of its codes.
type BundleFinder interface {
	FindBundleByCode(ctx context.Context, code string, codeType domain.CodeType) (*domain.TrackingBundle, error)
}

type Handler struct {
	bundles BundleFinder
	queue   tasks.Queue
	now     func() time.Time
}

func NewHandler(bundles BundleFinder, queue tasks.Queue) *Handler {
	return &Handler{bundles: bundles, queue: queue, now: func() time.Time { return time.Now().UTC() }}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	h.Mount(r)
	r.Get("/health", h.HandleHealth)
	return r
}

// Mount registers the public tracking routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/s/{code}", h.HandleRedirect)
	r.Get("/t/pixel.gif", h.HandlePixel)
}

// HandleRedirect sends the visitor to the bundle's tracking URL and records
// a click afterwards.
func (h *Handler) HandleRedirect(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	b, err := h.bundles.FindBundleByCode(r.Context(), code, domain.CodeShortLink)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindNotFound {
			logger.Error("short link lookup failed", "code", code, "error", err.Error())
		}
		http.NotFound(w, r)
		return
	}

	http.Redirect(w, r, b.TrackingURL, http.StatusFound)

	h.enqueue(tasks.RecordEventPayload{
		ShortCode:  b.ShortLinkCode,
		EventType:  string(domain.EventClick),
		Source:     string(domain.SourceRedirect),
		UserHash:   visitorHash(r),
		Region:     region(r),
		OccurredAt: h.now(),
	})
}

// HandlePixel always answers with the GIF. Query parameters: aff, s or cp
// identify the bundle; t is the event type (page_view by default); oid and
// v carry a purchase.
func (h *Handler) HandlePixel(w http.ResponseWriter, r *http.Request) {
	defer h.servePixel(w)

	q := r.URL.Query()
	p := tasks.RecordEventPayload{
		AffiliateCode: strings.TrimSpace(q.Get("aff")),
		ShortCode:     strings.TrimSpace(q.Get("s")),
		CouponCode:    strings.TrimSpace(q.Get("cp")),
		EventType:     q.Get("t"),
		Source:        string(domain.SourcePixel),
		OrderID:       strings.TrimSpace(q.Get("oid")),
		UserHash:      visitorHash(r),
		Region:        region(r),
		OccurredAt:    h.now(),
	}
	if p.AffiliateCode == "" && p.ShortCode == "" && p.CouponCode == "" {
		return
	}
	if p.EventType == "" {
		p.EventType = string(domain.EventPageView)
	}
	if !domain.AttributionEventType(p.EventType).Valid() {
		return
	}
	if v := q.Get("v"); v != "" {
		value, err := money.Parse(v)
		if err != nil || value.IsNegative() {
			return
		}
		value = money.Round(value)
		p.OrderValue = &value
	}
	h.enqueue(p)
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) enqueue(p tasks.RecordEventPayload) {
	t, err := tasks.New(tasks.TypeRecordEvent, p)
	if err == nil {
		// The request context ends with the response.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = h.queue.Enqueue(ctx, t)
	}
	if err != nil {
		level := logger.Error
		if errors.Is(err, tasks.ErrQueueFull) {
			level = logger.Warn
		}
		level("tracking event dropped", "event_type", p.EventType, "source", p.Source, "error", err.Error())
	}
}

func (h *Handler) servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(pixelGIF)
}

// visitorHash is a stable pseudonymous visitor id; the address itself is
// never stored.
func visitorHash(r *http.Request) string {
	sum := sha256.Sum256([]byte(realIP(r) + "|" + r.UserAgent()))
	return hex.EncodeToString(sum[:16])
}

func region(r *http.Request) string {
	if v := r.URL.Query().Get("r"); v != "" {
		return strings.ToUpper(strings.TrimSpace(v))
	}
	return strings.ToUpper(strings.TrimSpace(r.Header.Get("CloudFront-Viewer-Country")))
}

func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
