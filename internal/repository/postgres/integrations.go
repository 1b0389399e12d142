package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/ignite/creatorhub/internal/domain"
)

// IntegrationRepo stores brand integration configs.
type IntegrationRepo struct{ db *sql.DB }

// NewIntegrationRepo creates a Postgres-backed integration repository.
func NewIntegrationRepo(db *sql.DB) *IntegrationRepo { return &IntegrationRepo{db: db} }

const integrationColumns = `id, brand_id, provider, enabled, credentials, created_at`

func scanIntegration(row rowScanner) (*domain.IntegrationConfig, error) {
	c := &domain.IntegrationConfig{}
	var creds []byte
	if err := row.Scan(&c.ID, &c.BrandID, &c.Provider, &c.Enabled, &creds, &c.CreatedAt); err != nil {
		return nil, err
	}
	if len(creds) > 0 {
		if err := json.Unmarshal(creds, &c.Credentials); err != nil {
			return nil, fmt.Errorf("decode credentials: %w", err)
		}
	}
	return c, nil
}

// ListEnabled returns the brand's enabled configs ordered by provider.
func (r *IntegrationRepo) ListEnabled(ctx context.Context, brandID string) ([]domain.IntegrationConfig, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+integrationColumns+` FROM integration_configs WHERE brand_id = $1 AND enabled = true ORDER BY provider`,
		brandID)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	defer rows.Close()

	var out []domain.IntegrationConfig
	for rows.Next() {
		c, err := scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan integration: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Get returns one config, or ok=false.
func (r *IntegrationRepo) Get(ctx context.Context, brandID string, provider domain.IntegrationProvider) (*domain.IntegrationConfig, bool, error) {
	c, err := scanIntegration(r.db.QueryRowContext(ctx,
		`SELECT `+integrationColumns+` FROM integration_configs WHERE brand_id = $1 AND provider = $2`,
		brandID, provider))
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get integration: %w", err)
	}
	return c, true, nil
}

// Put stores or replaces a brand's config for its provider.
func (r *IntegrationRepo) Put(ctx context.Context, c domain.IntegrationConfig) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	creds, err := json.Marshal(c.Credentials)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO integration_configs (id, brand_id, provider, enabled, credentials, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (brand_id, provider) DO UPDATE SET enabled = $4, credentials = $5
	`, c.ID, c.BrandID, c.Provider, c.Enabled, creds)
	if err != nil {
		return fmt.Errorf("put integration: %w", err)
	}
	return nil
}
