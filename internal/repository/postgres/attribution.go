package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/service/attribution"
	"github.com/shopspring/decimal"
)

// AttributionRepo implements attribution.Repository against PostgreSQL.
type AttributionRepo struct{ db *sql.DB }

// NewAttributionRepo creates a Postgres-backed attribution repository.
func NewAttributionRepo(db *sql.DB) *AttributionRepo { return &AttributionRepo{db: db} }

var _ attribution.Repository = (*AttributionRepo)(nil)

func (r *AttributionRepo) WithinTx(ctx context.Context, fn func(tx attribution.Tx) error) error {
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(&attributionTx{q: tx})
	})
}

func (r *AttributionRepo) GetCollaboration(ctx context.Context, id string) (*domain.Collaboration, error) {
	c := &domain.Collaboration{}
	err := r.db.QueryRowContext(ctx, `
		SELECT c.id, c.campaign_id, cp.name, cp.brand_id, c.creator_id, c.creator_handle,
		       cp.base_url, COALESCE(b.website, ''), c.agreed_fee
		FROM collaborations c
		JOIN campaigns cp ON cp.id = c.campaign_id
		LEFT JOIN brands b ON b.id = cp.brand_id
		WHERE c.id = $1
	`, id).Scan(
		&c.ID, &c.CampaignID, &c.CampaignName, &c.BrandID, &c.CreatorID, &c.CreatorHandle,
		&c.CampaignBaseURL, &c.BrandWebsite, &c.AgreedFee,
	)
	if err == sql.ErrNoRows {
		return nil, attribution.ErrCollaborationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get collaboration: %w", err)
	}
	return c, nil
}

const bundleColumns = `
	id, collaboration_id, campaign_id, brand_id, affiliate_code, short_link_code,
	coupon_code, utm_source, utm_medium, utm_campaign, utm_content,
	tracking_url, short_link_url, is_active, created_at`

func scanBundle(row rowScanner) (*domain.TrackingBundle, error) {
	b := &domain.TrackingBundle{}
	var coupon sql.NullString
	err := row.Scan(
		&b.ID, &b.CollaborationID, &b.CampaignID, &b.BrandID, &b.AffiliateCode, &b.ShortLinkCode,
		&coupon, &b.UTMSource, &b.UTMMedium, &b.UTMCampaign, &b.UTMContent,
		&b.TrackingURL, &b.ShortLinkURL, &b.IsActive, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.CouponCode = nullString(coupon)
	return b, nil
}

func getBundle(ctx context.Context, q querier, where string, args ...interface{}) (*domain.TrackingBundle, error) {
	b, err := scanBundle(q.QueryRowContext(ctx, `SELECT`+bundleColumns+` FROM tracking_bundles WHERE `+where, args...))
	if err == sql.ErrNoRows {
		return nil, attribution.ErrBundleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tracking bundle: %w", err)
	}
	return b, nil
}

func (r *AttributionRepo) GetBundleByCollaboration(ctx context.Context, collaborationID string) (*domain.TrackingBundle, error) {
	return getBundle(ctx, r.db, "collaboration_id = $1", collaborationID)
}

var codeColumn = map[domain.CodeType]string{
	domain.CodeAffiliate: "affiliate_code",
	domain.CodeShortLink: "short_link_code",
	domain.CodeCoupon:    "coupon_code",
}

func (r *AttributionRepo) FindBundleByCode(ctx context.Context, code string, codeType domain.CodeType) (*domain.TrackingBundle, error) {
	col, ok := codeColumn[codeType]
	if !ok {
		return nil, attribution.ErrInvalidCodeType
	}
	return getBundle(ctx, r.db, col+" = $1 AND is_active = true", code)
}

const resultColumns = `
	collaboration_id, tracking_bundle_id, total_clicks, total_conversions, total_revenue,
	creator_cost, conversion_rate, roas, cost_per_conversion, average_order_value, updated_at`

func getResult(ctx context.Context, q querier, collaborationID, lock string) (*domain.AttributionResult, error) {
	res := &domain.AttributionResult{}
	err := q.QueryRowContext(ctx,
		`SELECT`+resultColumns+` FROM attribution_results WHERE collaboration_id = $1`+lock, collaborationID,
	).Scan(
		&res.CollaborationID, &res.TrackingBundleID, &res.TotalClicks, &res.TotalConversions, &res.TotalRevenue,
		&res.CreatorCost, &res.ConversionRate, &res.ROAS, &res.CostPerConversion, &res.AverageOrderValue, &res.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, attribution.ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attribution result: %w", err)
	}
	return res, nil
}

func (r *AttributionRepo) GetResult(ctx context.Context, collaborationID string) (*domain.AttributionResult, error) {
	return getResult(ctx, r.db, collaborationID, "")
}

func orderAttributedQ(ctx context.Context, q querier, orderID string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM attribution_events WHERE order_id = $1)`, orderID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check order: %w", err)
	}
	return exists, nil
}

func (r *AttributionRepo) OrderAttributed(ctx context.Context, orderID string) (bool, error) {
	return orderAttributedQ(ctx, r.db, orderID)
}

func (r *AttributionRepo) CampaignWindowTotals(ctx context.Context, campaignID string, from, to time.Time) (domain.WindowTotals, error) {
	var t domain.WindowTotals
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FILTER (WHERE event_type = 'click'),
		       COUNT(*) FILTER (WHERE event_type = 'purchase'),
		       COALESCE(SUM(order_value) FILTER (WHERE event_type = 'purchase'), 0)
		FROM attribution_events
		WHERE campaign_id = $1 AND occurred_at >= $2 AND occurred_at < $3
	`, campaignID, from, to).Scan(&t.Clicks, &t.Conversions, &t.Revenue)
	if err != nil {
		return domain.WindowTotals{}, fmt.Errorf("campaign window totals: %w", err)
	}
	return t, nil
}

type attributionTx struct{ q querier }

func (t *attributionTx) GetBundleByCollaboration(ctx context.Context, collaborationID string) (*domain.TrackingBundle, error) {
	return getBundle(ctx, t.q, "collaboration_id = $1", collaborationID)
}

func (t *attributionTx) InsertBundle(ctx context.Context, b *domain.TrackingBundle) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO tracking_bundles (`+bundleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, b.ID, b.CollaborationID, b.CampaignID, b.BrandID, b.AffiliateCode, b.ShortLinkCode,
		b.CouponCode, b.UTMSource, b.UTMMedium, b.UTMCampaign, b.UTMContent,
		b.TrackingURL, b.ShortLinkURL, b.IsActive, b.CreatedAt)
	if name, ok := violatedConstraint(err); ok {
		if name == "tracking_bundles_collaboration_id_key" {
			return attribution.ErrBundleExists
		}
		return attribution.ErrCodeCollision
	}
	if err != nil {
		return fmt.Errorf("insert tracking bundle: %w", err)
	}
	return nil
}

func (t *attributionTx) SetCouponCode(ctx context.Context, bundleID, code string) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE tracking_bundles SET coupon_code = $1 WHERE id = $2`, code, bundleID)
	if _, ok := violatedConstraint(err); ok {
		return attribution.ErrCodeCollision
	}
	if err != nil {
		return fmt.Errorf("set coupon code: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return attribution.ErrBundleNotFound
	}
	return nil
}

func (t *attributionTx) OrderAttributed(ctx context.Context, orderID string) (bool, error) {
	return orderAttributedQ(ctx, t.q, orderID)
}

func (t *attributionTx) InsertEvent(ctx context.Context, e *domain.AttributionEvent) error {
	var raw interface{}
	if len(e.RawPayload) > 0 {
		raw = []byte(e.RawPayload)
	}
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO attribution_events
			(id, tracking_bundle_id, campaign_id, event_type, event_source, order_value,
			 order_id, user_hash, region, occurred_at, created_at, raw_payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, e.ID, e.TrackingBundleID, e.CampaignID, e.EventType, e.EventSource, e.OrderValue,
		e.OrderID, e.UserHash, e.Region, e.OccurredAt, e.CreatedAt, raw)
	if name, ok := violatedConstraint(err); ok && name == "attribution_events_order_id_key" {
		return attribution.ErrDuplicateOrder
	}
	if err != nil {
		return fmt.Errorf("insert attribution event: %w", err)
	}
	return nil
}

func (t *attributionTx) ListEvents(ctx context.Context, bundleID string) ([]domain.AttributionEvent, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT id, tracking_bundle_id, campaign_id, event_type, event_source, order_value,
		       order_id, user_hash, region, occurred_at, created_at
		FROM attribution_events
		WHERE tracking_bundle_id = $1
		ORDER BY occurred_at, id
	`, bundleID)
	if err != nil {
		return nil, fmt.Errorf("list attribution events: %w", err)
	}
	defer rows.Close()

	var out []domain.AttributionEvent
	for rows.Next() {
		var e domain.AttributionEvent
		var value decimal.NullDecimal
		var orderID sql.NullString
		if err := rows.Scan(
			&e.ID, &e.TrackingBundleID, &e.CampaignID, &e.EventType, &e.EventSource, &value,
			&orderID, &e.UserHash, &e.Region, &e.OccurredAt, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan attribution event: %w", err)
		}
		if value.Valid {
			v := value.Decimal
			e.OrderValue = &v
		}
		e.OrderID = nullString(orderID)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t *attributionTx) InsertResult(ctx context.Context, res *domain.AttributionResult) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO attribution_results (`+resultColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, res.CollaborationID, res.TrackingBundleID, res.TotalClicks, res.TotalConversions, res.TotalRevenue,
		res.CreatorCost, res.ConversionRate, res.ROAS, res.CostPerConversion, res.AverageOrderValue, res.UpdatedAt)
	if _, ok := violatedConstraint(err); ok {
		return attribution.ErrBundleExists
	}
	if err != nil {
		return fmt.Errorf("insert attribution result: %w", err)
	}
	return nil
}

func (t *attributionTx) GetResultForUpdate(ctx context.Context, collaborationID string) (*domain.AttributionResult, error) {
	return getResult(ctx, t.q, collaborationID, forUpdate)
}

func (t *attributionTx) UpdateResult(ctx context.Context, res *domain.AttributionResult) error {
	result, err := t.q.ExecContext(ctx, `
		UPDATE attribution_results
		SET total_clicks = $1, total_conversions = $2, total_revenue = $3,
		    conversion_rate = $4, roas = $5, cost_per_conversion = $6,
		    average_order_value = $7, updated_at = $8
		WHERE collaboration_id = $9
	`, res.TotalClicks, res.TotalConversions, res.TotalRevenue,
		res.ConversionRate, res.ROAS, res.CostPerConversion,
		res.AverageOrderValue, res.UpdatedAt, res.CollaborationID)
	if err != nil {
		return fmt.Errorf("update attribution result: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return attribution.ErrResultNotFound
	}
	return nil
}
