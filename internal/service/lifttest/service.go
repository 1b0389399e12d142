// Package lifttest runs incrementality experiments for campaigns. A test
// splits traffic into Test and Control groups by region or by a stable hash
// of the user, or compares a baseline window against the campaign window for
// the same traffic, and reports lift with a chi-squared significance test.
package lifttest

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/metrics"
	"github.com/ignite/creatorhub/internal/pkg/logger"
	"github.com/ignite/creatorhub/internal/stats"
	"github.com/shopspring/decimal"
)

const (
	splitRegion = "region"
	splitHash   = "hash"
	splitWindow = "window"
)

// Service implements lift test business logic.
type Service struct {
	repo    Repository
	windows WindowSource
	sig     stats.SignificanceTest
	now     func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithWindowSource enables time-based results.
func WithWindowSource(w WindowSource) Option {
	return func(s *Service) { s.windows = w }
}

// WithSignificanceTest replaces the chi-squared test.
func WithSignificanceTest(t stats.SignificanceTest) Option {
	return func(s *Service) { s.sig = t }
}

// WithClock overrides the clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a lift test service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo: repo,
		sig:  stats.NewChiSquared(),
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateInput describes a new test. Only the fields of the chosen type are
// read.
type CreateInput struct {
	CampaignID    string
	Name          string
	TestType      domain.LiftTestType
	TargetLiftPct *float64

	// Geographic
	TestRegions    []string
	ControlRegions []string

	// Random split
	TestPercentage    int
	ControlPercentage int

	// Time based
	BaselineStart *time.Time
	BaselineEnd   *time.Time
}

func (in *CreateInput) validate() error {
	if strings.TrimSpace(in.CampaignID) == "" {
		return ErrCampaignRequired
	}
	if strings.TrimSpace(in.Name) == "" {
		return ErrNameRequired
	}
	switch in.TestType {
	case domain.LiftGeographic:
		in.TestRegions = normalizeRegions(in.TestRegions)
		in.ControlRegions = normalizeRegions(in.ControlRegions)
		if len(in.TestRegions) == 0 || len(in.ControlRegions) == 0 {
			return ErrInvalidRegions
		}
		for _, r := range in.TestRegions {
			if containsRegion(in.ControlRegions, r) {
				return ErrInvalidRegions
			}
		}
	case domain.LiftRandomSplit:
		if in.TestPercentage < 0 || in.TestPercentage > 100 || in.ControlPercentage < 0 || in.ControlPercentage > 100 {
			return ErrInvalidPercentage
		}
	case domain.LiftTimeBased:
		if in.BaselineStart == nil || in.BaselineEnd == nil || !in.BaselineEnd.After(*in.BaselineStart) {
			return ErrInvalidBaseline
		}
	default:
		return ErrInvalidType
	}
	return nil
}

func normalizeRegions(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, r := range in {
		r = strings.ToUpper(strings.TrimSpace(r))
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

func containsRegion(regions []string, region string) bool {
	for _, r := range regions {
		if r == region {
			return true
		}
	}
	return false
}

// Create stores a draft test with its Test and Control groups.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.LiftTest, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := s.now()
	t := &domain.LiftTest{
		ID:            uuid.New().String(),
		CampaignID:    in.CampaignID,
		Name:          strings.TrimSpace(in.Name),
		TestType:      in.TestType,
		Status:        domain.LiftDraft,
		TargetLiftPct: in.TargetLiftPct,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	test := domain.LiftTestGroup{ID: uuid.New().String(), LiftTestID: t.ID, GroupType: domain.GroupTest, Revenue: decimal.Zero}
	control := domain.LiftTestGroup{ID: uuid.New().String(), LiftTestID: t.ID, GroupType: domain.GroupControl, Revenue: decimal.Zero}

	switch in.TestType {
	case domain.LiftGeographic:
		t.SplitMethod = splitRegion
		test.Regions = in.TestRegions
		control.Regions = in.ControlRegions
	case domain.LiftRandomSplit:
		t.SplitMethod = splitHash
		test.Percentage = in.TestPercentage
		control.Percentage = in.ControlPercentage
	case domain.LiftTimeBased:
		t.SplitMethod = splitWindow
		bs, be := in.BaselineStart.UTC(), in.BaselineEnd.UTC()
		t.BaselineStart, t.BaselineEnd = &bs, &be
	}
	t.Groups = []domain.LiftTestGroup{test, control}

	if err := s.repo.WithinTx(ctx, func(tx Tx) error {
		return tx.InsertTest(ctx, t)
	}); err != nil {
		return nil, fmt.Errorf("insert lift test: %w", err)
	}
	logger.Info("lift test created", "lift_test_id", t.ID, "campaign_id", t.CampaignID, "type", string(t.TestType))
	return t, nil
}

// Get returns the test with its groups and latest result.
func (s *Service) Get(ctx context.Context, id string) (*domain.LiftTest, error) {
	return s.repo.GetTest(ctx, id)
}

// ListByCampaign returns the campaign's tests, newest first.
func (s *Service) ListByCampaign(ctx context.Context, campaignID string) ([]domain.LiftTest, error) {
	return s.repo.ListByCampaign(ctx, campaignID)
}

// Start moves a draft test to running.
func (s *Service) Start(ctx context.Context, id string) (*domain.LiftTest, error) {
	return s.transition(ctx, id, domain.LiftRunning, domain.LiftDraft)
}

// Pause stops assignment on a running test.
func (s *Service) Pause(ctx context.Context, id string) (*domain.LiftTest, error) {
	return s.transition(ctx, id, domain.LiftPaused, domain.LiftRunning)
}

// Resume restarts a paused test.
func (s *Service) Resume(ctx context.Context, id string) (*domain.LiftTest, error) {
	return s.transition(ctx, id, domain.LiftRunning, domain.LiftPaused)
}

// Complete ends a running or paused test. Its counters are frozen.
func (s *Service) Complete(ctx context.Context, id string) (*domain.LiftTest, error) {
	return s.transition(ctx, id, domain.LiftCompleted, domain.LiftRunning, domain.LiftPaused)
}

func (s *Service) transition(ctx context.Context, id string, next domain.LiftTestStatus, from ...domain.LiftTestStatus) (*domain.LiftTest, error) {
	var out *domain.LiftTest
	err := s.repo.WithinTx(ctx, func(tx Tx) error {
		t, err := tx.GetTestForUpdate(ctx, id)
		if err != nil {
			return err
		}
		allowed := false
		for _, f := range from {
			if t.Status == f {
				allowed = true
			}
		}
		if !allowed || !t.Status.CanTransitionTo(next) {
			return ErrInvalidTransition
		}

		now := s.now()
		if next == domain.LiftRunning && t.StartedAt == nil {
			t.StartedAt = &now
		}
		if next == domain.LiftCompleted {
			t.EndedAt = &now
		}
		t.Status = next
		t.UpdatedAt = now
		if err := tx.UpdateStatus(ctx, t); err != nil {
			return fmt.Errorf("update lift test status: %w", err)
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("lift test status changed", "lift_test_id", id, "status", string(next))
	return out, nil
}

// AssignInput identifies the visitor being assigned.
type AssignInput struct {
	Region    string
	UserID    string
	SessionID string
}

// AssignUserToGroup returns the group the visitor belongs to, or nil when the
// test is not running or compares time windows instead of populations.
func (s *Service) AssignUserToGroup(ctx context.Context, testID string, in AssignInput) (*domain.LiftTestGroup, error) {
	t, err := s.repo.GetTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	return assign(t, in), nil
}

func assign(t *domain.LiftTest, in AssignInput) *domain.LiftTestGroup {
	if t.Status != domain.LiftRunning || !t.TestType.Population() {
		return nil
	}
	test, control := t.Group(domain.GroupTest), t.Group(domain.GroupControl)
	if test == nil || control == nil {
		return nil
	}

	switch t.TestType {
	case domain.LiftGeographic:
		region := strings.ToUpper(strings.TrimSpace(in.Region))
		if region != "" && containsRegion(test.Regions, region) {
			return test
		}
		// Unmatched regions count as control.
		return control
	case domain.LiftRandomSplit:
		if Bucket(in.UserID, in.SessionID, t.ID) < test.Percentage {
			return test
		}
		return control
	}
	return nil
}

// Bucket hashes the visitor identity (user id, else session id) together
// with the test id into 0..99 using 32-bit FNV-1a.
func Bucket(userID, sessionID, testID string) int {
	key := userID
	if key == "" {
		key = sessionID
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key + testID))
	return int(h.Sum32() % 100)
}

// RecordGroupEvent increments one counter of a running test's group.
// Impressions, unique users and conversions add one; revenue adds value.
func (s *Service) RecordGroupEvent(ctx context.Context, groupID string, eventType domain.GroupEventType, value decimal.Decimal) (*domain.LiftTestGroup, error) {
	if !eventType.Valid() {
		return nil, ErrInvalidEventType
	}
	if value.IsNegative() {
		return nil, ErrInvalidValue
	}

	var d domain.GroupDelta
	switch eventType {
	case domain.GroupImpression:
		d.Impressions = 1
	case domain.GroupUniqueUser:
		d.UniqueUsers = 1
	case domain.GroupConversion:
		d.Conversions = 1
	case domain.GroupRevenue:
		d.Revenue = value
	}

	var out *domain.LiftTestGroup
	err := s.repo.WithinTx(ctx, func(tx Tx) error {
		g, err := tx.GetGroupForUpdate(ctx, groupID)
		if err != nil {
			return err
		}
		t, err := tx.GetTestForUpdate(ctx, g.LiftTestID)
		if err != nil {
			return err
		}
		if t.Status != domain.LiftRunning {
			return ErrNotRunning
		}
		if err := tx.IncrementGroup(ctx, groupID, d); err != nil {
			return fmt.Errorf("increment group: %w", err)
		}
		out = applyDelta(*g, d)
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.LiftGroupEvents.WithLabelValues(string(out.GroupType), string(eventType)).Inc()
	return out, nil
}

func applyDelta(g domain.LiftTestGroup, d domain.GroupDelta) *domain.LiftTestGroup {
	g.Impressions += d.Impressions
	g.UniqueUsers += d.UniqueUsers
	g.Conversions += d.Conversions
	g.Revenue = g.Revenue.Add(d.Revenue)
	return &g
}

// ConversionInput is one attributed purchase for a campaign.
type ConversionInput struct {
	Region    string
	UserID    string
	SessionID string
	Revenue   decimal.Decimal
}

// RecordCampaignConversion credits a conversion and its revenue to the
// assigned group of every running population test of the campaign. A
// failure on one test is logged and does not stop the others. It returns
// the number of groups credited.
func (s *Service) RecordCampaignConversion(ctx context.Context, campaignID string, in ConversionInput) (int, error) {
	if in.Revenue.IsNegative() {
		return 0, ErrInvalidValue
	}
	who := AssignInput{Region: in.Region, UserID: in.UserID, SessionID: in.SessionID}
	return s.creditRunning(ctx, campaignID, who, domain.GroupConversion, domain.GroupDelta{Conversions: 1, Revenue: in.Revenue})
}

// ExposureInput is one click or page view attributed to a campaign.
type ExposureInput struct {
	Region    string
	UserID    string
	SessionID string
}

// RecordCampaignExposure adds one impression to the assigned group of every
// running population test of the campaign, giving conversion rates a
// denominator. It returns the number of groups credited.
func (s *Service) RecordCampaignExposure(ctx context.Context, campaignID string, in ExposureInput) (int, error) {
	who := AssignInput{Region: in.Region, UserID: in.UserID, SessionID: in.SessionID}
	return s.creditRunning(ctx, campaignID, who, domain.GroupImpression, domain.GroupDelta{Impressions: 1})
}

// creditRunning applies d to the visitor's group in each running test. The
// test is re-read under lock so one paused or completed after the listing
// is skipped.
func (s *Service) creditRunning(ctx context.Context, campaignID string, who AssignInput, ev domain.GroupEventType, d domain.GroupDelta) (int, error) {
	running, err := s.repo.ListRunning(ctx, campaignID)
	if err != nil {
		return 0, fmt.Errorf("list running lift tests: %w", err)
	}

	credited := 0
	for i := range running {
		var g *domain.LiftTestGroup
		err := s.repo.WithinTx(ctx, func(tx Tx) error {
			t, err := tx.GetTestForUpdate(ctx, running[i].ID)
			if err != nil {
				return err
			}
			if t.Status != domain.LiftRunning {
				return ErrNotRunning
			}
			if g = assign(t, who); g == nil {
				return nil
			}
			return tx.IncrementGroup(ctx, g.ID, d)
		})
		switch {
		case errors.Is(err, ErrNotRunning):
			continue
		case err != nil:
			logger.Error("lift group event not recorded", "lift_test_id", running[i].ID, "event_type", string(ev), "error", err.Error())
			continue
		case g == nil:
			continue
		}
		metrics.LiftGroupEvents.WithLabelValues(string(g.GroupType), string(ev)).Inc()
		credited++
	}
	return credited, nil
}
