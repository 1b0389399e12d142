package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/service/lifttest"
	"github.com/lib/pq"
)

// LiftTestRepo implements lifttest.Repository against PostgreSQL.
type LiftTestRepo struct{ db *sql.DB }

// NewLiftTestRepo creates a Postgres-backed lift test repository.
func NewLiftTestRepo(db *sql.DB) *LiftTestRepo { return &LiftTestRepo{db: db} }

var _ lifttest.Repository = (*LiftTestRepo)(nil)

func (r *LiftTestRepo) WithinTx(ctx context.Context, fn func(tx lifttest.Tx) error) error {
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(&liftTx{q: tx})
	})
}

const liftTestColumns = `
	id, campaign_id, name, test_type, status, split_method, target_lift_pct,
	baseline_start, baseline_end, started_at, ended_at, created_at, updated_at`

func scanLiftTest(row rowScanner) (*domain.LiftTest, error) {
	t := &domain.LiftTest{}
	var target sql.NullFloat64
	var baselineStart, baselineEnd, startedAt, endedAt sql.NullTime
	err := row.Scan(
		&t.ID, &t.CampaignID, &t.Name, &t.TestType, &t.Status, &t.SplitMethod, &target,
		&baselineStart, &baselineEnd, &startedAt, &endedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if target.Valid {
		v := target.Float64
		t.TargetLiftPct = &v
	}
	t.BaselineStart = nullTime(baselineStart)
	t.BaselineEnd = nullTime(baselineEnd)
	t.StartedAt = nullTime(startedAt)
	t.EndedAt = nullTime(endedAt)
	return t, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func loadGroups(ctx context.Context, q querier, testID string) ([]domain.LiftTestGroup, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, lift_test_id, group_type, regions, percentage, impressions, unique_users, conversions, revenue
		FROM lift_test_groups
		WHERE lift_test_id = $1
		ORDER BY group_type DESC
	`, testID)
	if err != nil {
		return nil, fmt.Errorf("list lift groups: %w", err)
	}
	defer rows.Close()

	var out []domain.LiftTestGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lift group: %w", err)
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

func scanGroup(row rowScanner) (*domain.LiftTestGroup, error) {
	g := &domain.LiftTestGroup{}
	err := row.Scan(&g.ID, &g.LiftTestID, &g.GroupType, pq.Array(&g.Regions), &g.Percentage,
		&g.Impressions, &g.UniqueUsers, &g.Conversions, &g.Revenue)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (r *LiftTestRepo) latestResult(ctx context.Context, testID string) (*domain.LiftTestResult, error) {
	res := &domain.LiftTestResult{}
	err := r.db.QueryRowContext(ctx, `
		SELECT lift_test_id, lift_percentage, absolute_lift, incremental_revenue, p_value, chi_squared,
		       confidence_lower, confidence_upper, test_sample_size, control_sample_size,
		       test_conversion_rate, control_conversion_rate, significance, is_significant,
		       interpretation, calculated_at
		FROM lift_test_results
		WHERE lift_test_id = $1
		ORDER BY calculated_at DESC, id DESC
		LIMIT 1
	`, testID).Scan(
		&res.LiftTestID, &res.LiftPercentage, &res.AbsoluteLift, &res.IncrementalRevenue, &res.PValue, &res.ChiSquared,
		&res.ConfidenceLower, &res.ConfidenceUpper, &res.TestSampleSize, &res.ControlSampleSize,
		&res.TestConversionRate, &res.ControlConversionRate, &res.Significance, &res.IsSignificant,
		&res.Interpretation, &res.CalculatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest lift result: %w", err)
	}
	return res, nil
}

func (r *LiftTestRepo) GetTest(ctx context.Context, id string) (*domain.LiftTest, error) {
	t, err := scanLiftTest(r.db.QueryRowContext(ctx, `SELECT`+liftTestColumns+` FROM lift_tests WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, lifttest.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lift test: %w", err)
	}
	if t.Groups, err = loadGroups(ctx, r.db, id); err != nil {
		return nil, err
	}
	if t.Result, err = r.latestResult(ctx, id); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *LiftTestRepo) ListByCampaign(ctx context.Context, campaignID string) ([]domain.LiftTest, error) {
	return r.list(ctx, `SELECT`+liftTestColumns+` FROM lift_tests WHERE campaign_id = $1 ORDER BY created_at DESC, id`, campaignID)
}

func (r *LiftTestRepo) ListRunning(ctx context.Context, campaignID string) ([]domain.LiftTest, error) {
	return r.list(ctx, `SELECT`+liftTestColumns+` FROM lift_tests WHERE campaign_id = $1 AND status = 'running' ORDER BY created_at DESC, id`, campaignID)
}

func (r *LiftTestRepo) list(ctx context.Context, q string, campaignID string) ([]domain.LiftTest, error) {
	rows, err := r.db.QueryContext(ctx, q, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list lift tests: %w", err)
	}
	var out []domain.LiftTest
	for rows.Next() {
		t, err := scanLiftTest(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan lift test: %w", err)
		}
		out = append(out, *t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if out[i].Groups, err = loadGroups(ctx, r.db, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *LiftTestRepo) InsertResult(ctx context.Context, res *domain.LiftTestResult) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lift_test_results
			(lift_test_id, lift_percentage, absolute_lift, incremental_revenue, p_value, chi_squared,
			 confidence_lower, confidence_upper, test_sample_size, control_sample_size,
			 test_conversion_rate, control_conversion_rate, significance, is_significant,
			 interpretation, calculated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, res.LiftTestID, res.LiftPercentage, res.AbsoluteLift, res.IncrementalRevenue, res.PValue, res.ChiSquared,
		res.ConfidenceLower, res.ConfidenceUpper, res.TestSampleSize, res.ControlSampleSize,
		res.TestConversionRate, res.ControlConversionRate, res.Significance, res.IsSignificant,
		res.Interpretation, res.CalculatedAt)
	if err != nil {
		return fmt.Errorf("insert lift result: %w", err)
	}
	return nil
}

type liftTx struct{ q querier }

func (t *liftTx) InsertTest(ctx context.Context, lt *domain.LiftTest) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO lift_tests (`+liftTestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, lt.ID, lt.CampaignID, lt.Name, lt.TestType, lt.Status, lt.SplitMethod, lt.TargetLiftPct,
		lt.BaselineStart, lt.BaselineEnd, lt.StartedAt, lt.EndedAt, lt.CreatedAt, lt.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert lift test: %w", err)
	}
	for _, g := range lt.Groups {
		_, err := t.q.ExecContext(ctx, `
			INSERT INTO lift_test_groups
				(id, lift_test_id, group_type, regions, percentage, impressions, unique_users, conversions, revenue)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, g.ID, lt.ID, g.GroupType, pq.Array(g.Regions), g.Percentage,
			g.Impressions, g.UniqueUsers, g.Conversions, g.Revenue)
		if err != nil {
			return fmt.Errorf("insert lift group: %w", err)
		}
	}
	return nil
}

func (t *liftTx) GetTestForUpdate(ctx context.Context, id string) (*domain.LiftTest, error) {
	lt, err := scanLiftTest(t.q.QueryRowContext(ctx, `SELECT`+liftTestColumns+` FROM lift_tests WHERE id = $1 FOR UPDATE`, id))
	if err == sql.ErrNoRows {
		return nil, lifttest.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lift test: %w", err)
	}
	if lt.Groups, err = loadGroups(ctx, t.q, id); err != nil {
		return nil, err
	}
	return lt, nil
}

func (t *liftTx) UpdateStatus(ctx context.Context, lt *domain.LiftTest) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE lift_tests SET status = $1, started_at = $2, ended_at = $3, updated_at = $4
		WHERE id = $5
	`, lt.Status, lt.StartedAt, lt.EndedAt, lt.UpdatedAt, lt.ID)
	if err != nil {
		return fmt.Errorf("update lift test status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return lifttest.ErrNotFound
	}
	return nil
}

func (t *liftTx) GetGroupForUpdate(ctx context.Context, groupID string) (*domain.LiftTestGroup, error) {
	g, err := scanGroup(t.q.QueryRowContext(ctx, `
		SELECT id, lift_test_id, group_type, regions, percentage, impressions, unique_users, conversions, revenue
		FROM lift_test_groups WHERE id = $1 FOR UPDATE
	`, groupID))
	if err == sql.ErrNoRows {
		return nil, lifttest.ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lift group: %w", err)
	}
	return g, nil
}

// IncrementGroup adds in the database so concurrent increments never lose
// updates.
func (t *liftTx) IncrementGroup(ctx context.Context, groupID string, d domain.GroupDelta) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE lift_test_groups
		SET impressions = impressions + $1, unique_users = unique_users + $2,
		    conversions = conversions + $3, revenue = revenue + $4
		WHERE id = $5
	`, d.Impressions, d.UniqueUsers, d.Conversions, d.Revenue, groupID)
	if err != nil {
		return fmt.Errorf("increment lift group: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return lifttest.ErrGroupNotFound
	}
	return nil
}
