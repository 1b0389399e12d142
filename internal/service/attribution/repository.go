package attribution

import (
	"context"
	"time"

	"github.com/ignite/creatorhub/internal/domain"
)

// Repository defines the data access contract for attribution.
// Implementations must be safe for concurrent use.
type Repository interface {
	// WithinTx runs fn in one transaction; fn's error rolls it back.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	GetCollaboration(ctx context.Context, id string) (*domain.Collaboration, error)
	GetBundleByCollaboration(ctx context.Context, collaborationID string) (*domain.TrackingBundle, error)
	// FindBundleByCode matches active bundles only.
	FindBundleByCode(ctx context.Context, code string, codeType domain.CodeType) (*domain.TrackingBundle, error)
	GetResult(ctx context.Context, collaborationID string) (*domain.AttributionResult, error)
	OrderAttributed(ctx context.Context, orderID string) (bool, error)
	// CampaignWindowTotals sums clicks, purchases and revenue over the
	// campaign's bundles for events occurring in [from, to).
	CampaignWindowTotals(ctx context.Context, campaignID string, from, to time.Time) (domain.WindowTotals, error)
}

// Tx is the write path.
type Tx interface {
	GetBundleByCollaboration(ctx context.Context, collaborationID string) (*domain.TrackingBundle, error)
	// InsertBundle fails with ErrBundleExists when the collaboration already
	// has a bundle and ErrCodeCollision when a code is taken.
	InsertBundle(ctx context.Context, b *domain.TrackingBundle) error
	// SetCouponCode fails with ErrCodeCollision when the code is taken.
	SetCouponCode(ctx context.Context, bundleID, code string) error

	OrderAttributed(ctx context.Context, orderID string) (bool, error)
	// InsertEvent fails with ErrDuplicateOrder when the order id is taken.
	InsertEvent(ctx context.Context, e *domain.AttributionEvent) error
	ListEvents(ctx context.Context, bundleID string) ([]domain.AttributionEvent, error)

	InsertResult(ctx context.Context, r *domain.AttributionResult) error
	GetResultForUpdate(ctx context.Context, collaborationID string) (*domain.AttributionResult, error)
	UpdateResult(ctx context.Context, r *domain.AttributionResult) error
}

// IntegrationDirectory lists a brand's enabled integrations.
type IntegrationDirectory interface {
	ListEnabled(ctx context.Context, brandID string) ([]domain.IntegrationConfig, error)
}

// CodeCache caches active bundles by code.
type CodeCache interface {
	Get(ctx context.Context, codeType domain.CodeType, code string) (*domain.TrackingBundle, bool)
	Set(ctx context.Context, codeType domain.CodeType, code string, b *domain.TrackingBundle)
}
