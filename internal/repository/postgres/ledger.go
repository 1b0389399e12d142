package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/service/ledger"
)

// LedgerStore implements ledger.Store against PostgreSQL.
type LedgerStore struct{ db *sql.DB }

// NewLedgerStore creates a Postgres-backed ledger store.
func NewLedgerStore(db *sql.DB) *LedgerStore { return &LedgerStore{db: db} }

var _ ledger.Store = (*LedgerStore)(nil)

// WithinTx runs fn in one database transaction.
func (s *LedgerStore) WithinTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return inTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(&ledgerTx{q: tx})
	})
}

const campaignColumns = `
	id, brand_id, name, target_budget, escrow_percentage, payment_model,
	risk_score, risk_level, status, escrow_status, escrow_balance,
	total_funded, total_released, base_url, start_date, end_date,
	milestones, created_at, updated_at`

func scanCampaign(row rowScanner) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	err := row.Scan(
		&c.ID, &c.BrandID, &c.Name, &c.TargetBudget, &c.EscrowPercentage, &c.PaymentModel,
		&c.RiskScore, &c.RiskLevel, &c.Status, &c.EscrowStatus, &c.EscrowBalance,
		&c.TotalFunded, &c.TotalReleased, &c.BaseURL, &c.StartDate, &c.EndDate,
		&c.Milestones, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func getCampaign(ctx context.Context, q querier, id, lock string) (*domain.Campaign, error) {
	c, err := scanCampaign(q.QueryRowContext(ctx,
		`SELECT`+campaignColumns+` FROM campaigns WHERE id = $1`+lock, id))
	if err == sql.ErrNoRows {
		return nil, ledger.ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (s *LedgerStore) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	return getCampaign(ctx, s.db, id, "")
}

func (s *LedgerStore) ListCampaigns(ctx context.Context, brandID string, f ledger.CampaignFilter) ([]domain.Campaign, error) {
	q := `SELECT` + campaignColumns + ` FROM campaigns WHERE brand_id = $1`
	args := []interface{}{brandID}
	if f.Status != "" {
		q += " AND status = $2"
		args = append(args, f.Status)
	}
	q += " ORDER BY created_at DESC, id"
	return s.queryCampaigns(ctx, q, args...)
}

func (s *LedgerStore) ListAllCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	return s.queryCampaigns(ctx, `SELECT`+campaignColumns+` FROM campaigns ORDER BY created_at DESC, id`)
}

func (s *LedgerStore) queryCampaigns(ctx context.Context, q string, args ...interface{}) ([]domain.Campaign, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

const escrowColumns = `id, campaign_id, locked_amount, released_amount, remaining_amount, created_at, updated_at`

func getEscrow(ctx context.Context, q querier, campaignID, lock string) (*domain.CampaignEscrow, error) {
	e := &domain.CampaignEscrow{}
	err := q.QueryRowContext(ctx,
		`SELECT `+escrowColumns+` FROM campaign_escrows WHERE campaign_id = $1`+lock, campaignID,
	).Scan(&e.ID, &e.CampaignID, &e.LockedAmount, &e.ReleasedAmount, &e.RemainingAmount, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrEscrowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get escrow: %w", err)
	}
	return e, nil
}

func (s *LedgerStore) GetEscrow(ctx context.Context, campaignID string) (*domain.CampaignEscrow, error) {
	return getEscrow(ctx, s.db, campaignID, "")
}

const transactionColumns = `
	id, brand_id, user_id, campaign_id, amount, type, status,
	gateway_provider, gateway_reference, description, created_at, updated_at`

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	var campaignID, reference sql.NullString
	err := row.Scan(
		&t.ID, &t.BrandID, &t.UserID, &campaignID, &t.Amount, &t.Type, &t.Status,
		&t.GatewayProvider, &reference, &t.Description, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.CampaignID = nullString(campaignID)
	t.GatewayReference = nullString(reference)
	return t, nil
}

func getTransaction(ctx context.Context, q querier, where string, args ...interface{}) (*domain.Transaction, error) {
	t, err := scanTransaction(q.QueryRowContext(ctx, `SELECT`+transactionColumns+` FROM transactions WHERE `+where, args...))
	if err == sql.ErrNoRows {
		return nil, ledger.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (s *LedgerStore) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return getTransaction(ctx, s.db, "id = $1", id)
}

func (s *LedgerStore) GetTransactionByReference(ctx context.Context, provider, reference string) (*domain.Transaction, error) {
	return getTransaction(ctx, s.db, "gateway_provider = $1 AND gateway_reference = $2", provider, reference)
}

func (s *LedgerStore) ListTransactions(ctx context.Context, brandID string) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT`+transactionColumns+` FROM transactions WHERE brand_id = $1 ORDER BY created_at, id`, brandID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *LedgerStore) ListLedgerEntries(ctx context.Context, brandID string) ([]domain.EscrowLedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, brand_id, campaign_id, type, amount, milestone_id, status, description, created_at
		FROM escrow_ledger
		WHERE brand_id = $1
		ORDER BY created_at, id
	`, brandID)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var out []domain.EscrowLedgerEntry
	for rows.Next() {
		var e domain.EscrowLedgerEntry
		var milestone sql.NullString
		if err := rows.Scan(&e.ID, &e.BrandID, &e.CampaignID, &e.Type, &e.Amount, &milestone, &e.Status, &e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.MilestoneID = nullString(milestone)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ledgerTx runs the write path on one *sql.Tx. ForUpdate reads take row
// locks held until commit.
type ledgerTx struct{ q querier }

const forUpdate = " FOR UPDATE"

func (t *ledgerTx) GetCampaignForUpdate(ctx context.Context, id string) (*domain.Campaign, error) {
	return getCampaign(ctx, t.q, id, forUpdate)
}

func (t *ledgerTx) InsertCampaign(ctx context.Context, c *domain.Campaign) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO campaigns (`+campaignColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`, c.ID, c.BrandID, c.Name, c.TargetBudget, c.EscrowPercentage, c.PaymentModel,
		c.RiskScore, c.RiskLevel, c.Status, c.EscrowStatus, c.EscrowBalance,
		c.TotalFunded, c.TotalReleased, c.BaseURL, c.StartDate, c.EndDate,
		c.Milestones, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

func (t *ledgerTx) UpdateCampaignFunds(ctx context.Context, c *domain.Campaign) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE campaigns
		SET escrow_balance = $1, total_funded = $2, total_released = $3, escrow_status = $4, updated_at = $5
		WHERE id = $6
	`, c.EscrowBalance, c.TotalFunded, c.TotalReleased, c.EscrowStatus, c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("update campaign funds: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ledger.ErrCampaignNotFound
	}
	return nil
}

func (t *ledgerTx) UpdateCampaignStatus(ctx context.Context, id string, status domain.CampaignStatus) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE campaigns SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ledger.ErrCampaignNotFound
	}
	return nil
}

func (t *ledgerTx) GetEscrowForUpdate(ctx context.Context, campaignID string) (*domain.CampaignEscrow, error) {
	return getEscrow(ctx, t.q, campaignID, forUpdate)
}

func (t *ledgerTx) InsertEscrow(ctx context.Context, e *domain.CampaignEscrow) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO campaign_escrows (`+escrowColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.CampaignID, e.LockedAmount, e.ReleasedAmount, e.RemainingAmount, e.CreatedAt, e.UpdatedAt)
	if name, ok := violatedConstraint(err); ok && name == "campaign_escrows_campaign_id_key" {
		return ledger.ErrEscrowExists
	}
	if err != nil {
		return fmt.Errorf("insert escrow: %w", err)
	}
	return nil
}

func (t *ledgerTx) UpdateEscrow(ctx context.Context, e *domain.CampaignEscrow) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE campaign_escrows
		SET locked_amount = $1, released_amount = $2, remaining_amount = $3, updated_at = $4
		WHERE campaign_id = $5
	`, e.LockedAmount, e.ReleasedAmount, e.RemainingAmount, e.UpdatedAt, e.CampaignID)
	if err != nil {
		return fmt.Errorf("update escrow: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ledger.ErrEscrowNotFound
	}
	return nil
}

func (t *ledgerTx) InsertTransaction(ctx context.Context, tr *domain.Transaction) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, tr.ID, tr.BrandID, tr.UserID, tr.CampaignID, tr.Amount, tr.Type, tr.Status,
		tr.GatewayProvider, tr.GatewayReference, tr.Description, tr.CreatedAt, tr.UpdatedAt)
	if name, ok := violatedConstraint(err); ok && name == "transactions_gateway_reference_key" {
		return ledger.ErrDuplicateReference
	}
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (t *ledgerTx) GetTransactionForUpdate(ctx context.Context, id string) (*domain.Transaction, error) {
	return getTransaction(ctx, t.q, "id = $1"+forUpdate, id)
}

// SettleTransaction only touches a row that is still pending, so two
// confirmations racing for the same transaction cannot both succeed.
func (t *ledgerTx) SettleTransaction(ctx context.Context, tr *domain.Transaction) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1, gateway_provider = $2, gateway_reference = $3, updated_at = $4
		WHERE id = $5 AND status = 'pending'
	`, tr.Status, tr.GatewayProvider, tr.GatewayReference, tr.UpdatedAt, tr.ID)
	if name, ok := violatedConstraint(err); ok && name == "transactions_gateway_reference_key" {
		return ledger.ErrDuplicateReference
	}
	if err != nil {
		return fmt.Errorf("settle transaction: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		if _, err := getTransaction(ctx, t.q, "id = $1", tr.ID); err != nil {
			return err
		}
		return ledger.ErrTransactionSettled
	}
	return nil
}

func (t *ledgerTx) InsertLedgerEntry(ctx context.Context, e *domain.EscrowLedgerEntry) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO escrow_ledger (id, brand_id, campaign_id, type, amount, milestone_id, status, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.BrandID, e.CampaignID, e.Type, e.Amount, e.MilestoneID, e.Status, e.Description, e.CreatedAt)
	if name, ok := violatedConstraint(err); ok && name == "escrow_ledger_completed_release_uniq" {
		return ledger.ErrDuplicateRelease
	}
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (t *ledgerTx) HasCompletedRelease(ctx context.Context, campaignID, milestoneID string) (bool, error) {
	var exists bool
	err := t.q.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM escrow_ledger
			WHERE campaign_id = $1 AND milestone_id = $2 AND type = 'release' AND status = 'completed'
		)
	`, campaignID, milestoneID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check release: %w", err)
	}
	return exists, nil
}

func (t *ledgerTx) InsertAuditEvent(ctx context.Context, a *domain.AuditEvent) error {
	var metadata interface{}
	if len(a.Metadata) > 0 {
		metadata = []byte(a.Metadata)
	}
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO audit_events (id, actor_id, entity_type, entity_id, action, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.ActorID, a.EntityType, a.EntityID, a.Action, metadata, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}
