package lifttest

import (
	"context"
	"time"

	"github.com/ignite/creatorhub/internal/domain"
)

// Repository defines the data access contract for lift tests. Reads return
// the test with its groups and latest result.
type Repository interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	GetTest(ctx context.Context, id string) (*domain.LiftTest, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]domain.LiftTest, error)
	// ListRunning returns the campaign's running tests.
	ListRunning(ctx context.Context, campaignID string) ([]domain.LiftTest, error)
	// InsertResult stores a calculated result; the newest one wins on read.
	InsertResult(ctx context.Context, r *domain.LiftTestResult) error
}

// Tx is the write path.
type Tx interface {
	// InsertTest stores the test and its groups.
	InsertTest(ctx context.Context, t *domain.LiftTest) error
	GetTestForUpdate(ctx context.Context, id string) (*domain.LiftTest, error)
	UpdateStatus(ctx context.Context, t *domain.LiftTest) error
	// GetGroupForUpdate returns the group and the id of its test.
	GetGroupForUpdate(ctx context.Context, groupID string) (*domain.LiftTestGroup, error)
	// IncrementGroup adds d to the group's counters.
	IncrementGroup(ctx context.Context, groupID string, d domain.GroupDelta) error
}

// WindowSource aggregates attribution events for a campaign over [from, to).
// The attribution service satisfies it.
type WindowSource interface {
	WindowTotals(ctx context.Context, campaignID string, from, to time.Time) (domain.WindowTotals, error)
}
