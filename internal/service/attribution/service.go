package attribution

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/pkg/logger"
	"github.com/ignite/creatorhub/internal/tasks"
	"github.com/shopspring/decimal"
)

const (
	affiliatePrefixLen = 4
	affiliateCodeLen   = 8
	shortCodeBytes     = 5 // 7 base64url characters
	maxCodeAttempts    = 5
	utmMedium          = "influencer"
)

// Config holds the URLs bundles are built from.
type Config struct {
	// ShortLinkBaseURL prefixes short codes, e.g. https://go.example.com/s/
	ShortLinkBaseURL string
	// DefaultLandingURL is used when neither the campaign nor the brand has a URL.
	DefaultLandingURL string
	// Currency tags forwarded purchases.
	Currency string
}

// Service implements attribution business logic.
type Service struct {
	repo         Repository
	queue        tasks.Queue
	integrations IntegrationDirectory
	cache        CodeCache
	cfg          Config
	random       io.Reader
	now          func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithIntegrations enables purchase forwarding to the brand's integrations.
func WithIntegrations(d IntegrationDirectory) Option {
	return func(s *Service) { s.integrations = d }
}

// WithCodeCache caches code lookups.
func WithCodeCache(c CodeCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithRandom replaces the code entropy source, for tests.
func WithRandom(r io.Reader) Option {
	return func(s *Service) { s.random = r }
}

// WithClock overrides the clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates an attribution service. queue may be nil, in which case
// purchases are recorded without follow-up tasks.
func NewService(repo Repository, queue tasks.Queue, cfg Config, opts ...Option) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	s := &Service{
		repo:   repo,
		queue:  queue,
		cfg:    cfg,
		random: rand.Reader,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// GenerateTrackingBundle returns the collaboration's bundle, creating it on
// first call together with a zeroed result. Codes are never regenerated.
func (s *Service) GenerateTrackingBundle(ctx context.Context, collaborationID string) (*domain.TrackingBundle, error) {
	existing, err := s.repo.GetBundleByCollaboration(ctx, collaborationID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrBundleNotFound) {
		return nil, err
	}

	collab, err := s.repo.GetCollaboration(ctx, collaborationID)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		b, err := s.buildBundle(collab)
		if err != nil {
			return nil, err
		}

		err = s.repo.WithinTx(ctx, func(tx Tx) error {
			current, err := tx.GetBundleByCollaboration(ctx, collaborationID)
			if err == nil {
				b = current
				return nil
			}
			if !errors.Is(err, ErrBundleNotFound) {
				return err
			}
			if err := tx.InsertBundle(ctx, b); err != nil {
				return err
			}
			return tx.InsertResult(ctx, &domain.AttributionResult{
				CollaborationID:   collaborationID,
				TrackingBundleID:  b.ID,
				TotalRevenue:      decimal.Zero,
				CreatorCost:       collab.AgreedFee,
				ConversionRate:    decimal.Zero,
				ROAS:              decimal.Zero,
				CostPerConversion: decimal.Zero,
				AverageOrderValue: decimal.Zero,
				UpdatedAt:         b.CreatedAt,
			})
		})
		switch {
		case err == nil:
			logger.Info("tracking bundle ready", "collaboration_id", collaborationID, "bundle_id", b.ID)
			return b, nil
		case errors.Is(err, ErrCodeCollision):
			logger.Debug("tracking code collision, regenerating", "collaboration_id", collaborationID, "attempt", attempt)
			continue
		case errors.Is(err, ErrBundleExists):
			return s.repo.GetBundleByCollaboration(ctx, collaborationID)
		default:
			return nil, err
		}
	}
	return nil, ErrCodeSpaceExhausted
}

func (s *Service) buildBundle(c *domain.Collaboration) (*domain.TrackingBundle, error) {
	affiliate, err := s.affiliateCode(c.CreatorHandle)
	if err != nil {
		return nil, err
	}
	short, err := s.shortCode()
	if err != nil {
		return nil, err
	}

	source := strings.ToLower(handlePrefixSource(c.CreatorHandle))
	campaign := slug(c.CampaignName)
	if campaign == "" {
		campaign = c.CampaignID
	}
	b := &domain.TrackingBundle{
		ID:              uuid.New().String(),
		CollaborationID: c.ID,
		CampaignID:      c.CampaignID,
		BrandID:         c.BrandID,
		AffiliateCode:   affiliate,
		ShortLinkCode:   short,
		UTMSource:       source,
		UTMMedium:       utmMedium,
		UTMCampaign:     campaign,
		UTMContent:      affiliate,
		ShortLinkURL:    strings.TrimRight(s.cfg.ShortLinkBaseURL, "/") + "/" + short,
		IsActive:        true,
		CreatedAt:       s.now(),
	}
	b.TrackingURL = BuildTrackingURL(s.landingURL(c), [][2]string{
		{"utm_source", b.UTMSource},
		{"utm_medium", b.UTMMedium},
		{"utm_campaign", b.UTMCampaign},
		{"utm_content", b.UTMContent},
		{"ref", b.AffiliateCode},
	})
	return b, nil
}

func (s *Service) landingURL(c *domain.Collaboration) string {
	for _, u := range []string{c.CampaignBaseURL, c.BrandWebsite, s.cfg.DefaultLandingURL} {
		if strings.TrimSpace(u) != "" {
			return strings.TrimSpace(u)
		}
	}
	return ""
}

// affiliateCode is up to four letters or digits from the handle followed by
// four random hex digits, upper-cased.
func (s *Service) affiliateCode(handle string) (string, error) {
	prefix := strings.ToUpper(handlePrefixSource(handle))
	if len(prefix) > affiliatePrefixLen {
		prefix = prefix[:affiliatePrefixLen]
	}
	if prefix == "" {
		prefix = "CRTR"
	}
	buf := make([]byte, 2)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return "", fmt.Errorf("read entropy: %w", err)
	}
	code := prefix + strings.ToUpper(hex.EncodeToString(buf))
	if len(code) > affiliateCodeLen {
		code = code[:affiliateCodeLen]
	}
	return code, nil
}

func (s *Service) shortCode() (string, error) {
	buf := make([]byte, shortCodeBytes)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return "", fmt.Errorf("read entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// handlePrefixSource keeps the ASCII letters and digits of a handle.
func handlePrefixSource(handle string) string {
	var b strings.Builder
	for _, r := range handle {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// BuildTrackingURL appends params to base in order, URL-encoded. When base
// does not parse as an absolute URL the params are appended as a plain
// query string.
func BuildTrackingURL(base string, params [][2]string) string {
	u, err := url.Parse(base)
	if err == nil && u.Scheme != "" && u.Host != "" {
		q := u.RawQuery
		for _, p := range params {
			if q != "" {
				q += "&"
			}
			q += url.QueryEscape(p[0]) + "=" + url.QueryEscape(p[1])
		}
		u.RawQuery = q
		return u.String()
	}

	parts := make([]string, 0, len(params))
	for _, p := range params {
		parts = append(parts, url.QueryEscape(p[0])+"="+url.QueryEscape(p[1]))
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + strings.Join(parts, "&")
}

// AssignCouponCode sets the bundle's coupon code once. Assigning the same
// code again is a no-op.
func (s *Service) AssignCouponCode(ctx context.Context, collaborationID, code string) (*domain.TrackingBundle, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !validCoupon(code) {
		return nil, ErrInvalidCoupon
	}

	var out *domain.TrackingBundle
	err := s.repo.WithinTx(ctx, func(tx Tx) error {
		b, err := tx.GetBundleByCollaboration(ctx, collaborationID)
		if err != nil {
			return err
		}
		if b.CouponCode != nil {
			if *b.CouponCode == code {
				out = b
				return nil
			}
			return ErrCouponAlreadySet
		}
		if err := tx.SetCouponCode(ctx, b.ID, code); err != nil {
			return err
		}
		b.CouponCode = &code
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, domain.CodeCoupon, code, out)
	}
	return out, nil
}

func validCoupon(code string) bool {
	if len(code) < 3 || len(code) > 32 {
		return false
	}
	for _, r := range code {
		if !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// FindBundleByCode returns the active bundle whose code of the given type
// matches exactly.
func (s *Service) FindBundleByCode(ctx context.Context, code string, codeType domain.CodeType) (*domain.TrackingBundle, error) {
	if !codeType.Valid() {
		return nil, ErrInvalidCodeType
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrBundleNotFound
	}
	if codeType == domain.CodeAffiliate || codeType == domain.CodeCoupon {
		code = strings.ToUpper(code)
	}
	if s.cache != nil {
		if b, ok := s.cache.Get(ctx, codeType, code); ok {
			return b, nil
		}
	}
	b, err := s.repo.FindBundleByCode(ctx, code, codeType)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, codeType, code, b)
	}
	return b, nil
}

// CodeParams carries whichever codes an inbound request supplied.
type CodeParams struct {
	AffiliateCode string
	ShortCode     string
	CouponCode    string
}

// Empty reports whether no code was supplied.
func (p CodeParams) Empty() bool {
	return p.AffiliateCode == "" && p.ShortCode == "" && p.CouponCode == ""
}

// ResolveBundle tries the affiliate code, then the short code, then the
// coupon code, returning the first active match.
func (s *Service) ResolveBundle(ctx context.Context, p CodeParams) (*domain.TrackingBundle, error) {
	if p.Empty() {
		return nil, ErrNoCode
	}
	candidates := []struct {
		code string
		typ  domain.CodeType
	}{
		{p.AffiliateCode, domain.CodeAffiliate},
		{p.ShortCode, domain.CodeShortLink},
		{p.CouponCode, domain.CodeCoupon},
	}
	for _, c := range candidates {
		if c.code == "" {
			continue
		}
		b, err := s.FindBundleByCode(ctx, c.code, c.typ)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, ErrBundleNotFound) {
			return nil, err
		}
	}
	return nil, ErrBundleNotFound
}

// GetCollaboration returns the collaboration context owned by the profile
// service.
func (s *Service) GetCollaboration(ctx context.Context, collaborationID string) (*domain.Collaboration, error) {
	return s.repo.GetCollaboration(ctx, collaborationID)
}

// GetBundle returns the collaboration's bundle.
func (s *Service) GetBundle(ctx context.Context, collaborationID string) (*domain.TrackingBundle, error) {
	return s.repo.GetBundleByCollaboration(ctx, collaborationID)
}

// GetResult returns the collaboration's attribution result.
func (s *Service) GetResult(ctx context.Context, collaborationID string) (*domain.AttributionResult, error) {
	return s.repo.GetResult(ctx, collaborationID)
}

// WindowTotals exposes campaign window aggregates for time-based lift tests.
func (s *Service) WindowTotals(ctx context.Context, campaignID string, from, to time.Time) (domain.WindowTotals, error) {
	return s.repo.CampaignWindowTotals(ctx, campaignID, from, to)
}
