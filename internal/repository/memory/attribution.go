package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/service/attribution"
)

type attributionState struct {
	collaborations map[string]domain.Collaboration
	bundles        map[string]domain.TrackingBundle    // keyed by id
	results        map[string]domain.AttributionResult // keyed by collaboration id
	events         []domain.AttributionEvent
}

func (s *attributionState) clone() *attributionState {
	out := &attributionState{
		collaborations: make(map[string]domain.Collaboration, len(s.collaborations)),
		bundles:        make(map[string]domain.TrackingBundle, len(s.bundles)),
		results:        make(map[string]domain.AttributionResult, len(s.results)),
		events:         append([]domain.AttributionEvent(nil), s.events...),
	}
	for k, v := range s.collaborations {
		out.collaborations[k] = v
	}
	for k, v := range s.bundles {
		out.bundles[k] = v
	}
	for k, v := range s.results {
		out.results[k] = v
	}
	return out
}

// AttributionStore implements attribution.Repository in memory.
type AttributionStore struct {
	mu    sync.Mutex
	state *attributionState
}

// NewAttributionStore returns an empty store.
func NewAttributionStore() *AttributionStore {
	return &AttributionStore{state: &attributionState{
		collaborations: make(map[string]domain.Collaboration),
		bundles:        make(map[string]domain.TrackingBundle),
		results:        make(map[string]domain.AttributionResult),
	}}
}

var _ attribution.Repository = (*AttributionStore)(nil)

// PutCollaboration registers a collaboration. The profile service owns these
// rows in production.
func (s *AttributionStore) PutCollaboration(c domain.Collaboration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.collaborations[c.ID] = c
}

// SetBundleActive toggles a bundle, for tests.
func (s *AttributionStore) SetBundleActive(bundleID string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.state.bundles[bundleID]; ok {
		b.IsActive = active
		s.state.bundles[bundleID] = b
	}
}

// EventCount returns the number of stored events, for tests.
func (s *AttributionStore) EventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.events)
}

// BundleCount returns the number of stored bundles, for tests.
func (s *AttributionStore) BundleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.bundles)
}

func (s *AttributionStore) WithinTx(ctx context.Context, fn func(tx attribution.Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("memory attribution: panic in transaction: %v", p)
		}
	}()
	if err := fn(&attributionTx{state: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *AttributionStore) GetCollaboration(_ context.Context, id string) (*domain.Collaboration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.state.collaborations[id]
	if !ok {
		return nil, attribution.ErrCollaborationNotFound
	}
	return &c, nil
}

func (s *AttributionStore) GetBundleByCollaboration(_ context.Context, collaborationID string) (*domain.TrackingBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bundleByCollaboration(s.state, collaborationID)
}

func (s *AttributionStore) FindBundleByCode(_ context.Context, code string, codeType domain.CodeType) (*domain.TrackingBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.state.bundles {
		if !b.IsActive {
			continue
		}
		var match bool
		switch codeType {
		case domain.CodeAffiliate:
			match = b.AffiliateCode == code
		case domain.CodeShortLink:
			match = b.ShortLinkCode == code
		case domain.CodeCoupon:
			match = b.CouponCode != nil && *b.CouponCode == code
		}
		if match {
			return &b, nil
		}
	}
	return nil, attribution.ErrBundleNotFound
}

func (s *AttributionStore) GetResult(_ context.Context, collaborationID string) (*domain.AttributionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.state.results[collaborationID]
	if !ok {
		return nil, attribution.ErrResultNotFound
	}
	return &r, nil
}

func (s *AttributionStore) OrderAttributed(_ context.Context, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return orderAttributed(s.state, orderID), nil
}

func (s *AttributionStore) CampaignWindowTotals(_ context.Context, campaignID string, from, to time.Time) (domain.WindowTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var t domain.WindowTotals
	for _, e := range s.state.events {
		if e.CampaignID != campaignID || e.OccurredAt.Before(from) || !e.OccurredAt.Before(to) {
			continue
		}
		switch e.EventType {
		case domain.EventClick:
			t.Clicks++
		case domain.EventPurchase:
			t.Conversions++
			if e.OrderValue != nil {
				t.Revenue = t.Revenue.Add(*e.OrderValue)
			}
		}
	}
	return t, nil
}

func bundleByCollaboration(st *attributionState, collaborationID string) (*domain.TrackingBundle, error) {
	for _, b := range st.bundles {
		if b.CollaborationID == collaborationID {
			return &b, nil
		}
	}
	return nil, attribution.ErrBundleNotFound
}

func orderAttributed(st *attributionState, orderID string) bool {
	for _, e := range st.events {
		if e.OrderID != nil && *e.OrderID == orderID {
			return true
		}
	}
	return false
}

type attributionTx struct {
	state *attributionState
}

func (t *attributionTx) GetBundleByCollaboration(_ context.Context, collaborationID string) (*domain.TrackingBundle, error) {
	return bundleByCollaboration(t.state, collaborationID)
}

func (t *attributionTx) InsertBundle(_ context.Context, b *domain.TrackingBundle) error {
	for _, existing := range t.state.bundles {
		if existing.CollaborationID == b.CollaborationID {
			return attribution.ErrBundleExists
		}
		if existing.AffiliateCode == b.AffiliateCode || existing.ShortLinkCode == b.ShortLinkCode {
			return attribution.ErrCodeCollision
		}
	}
	t.state.bundles[b.ID] = *b
	return nil
}

func (t *attributionTx) SetCouponCode(_ context.Context, bundleID, code string) error {
	for id, existing := range t.state.bundles {
		if id != bundleID && existing.CouponCode != nil && *existing.CouponCode == code {
			return attribution.ErrCodeCollision
		}
	}
	b, ok := t.state.bundles[bundleID]
	if !ok {
		return attribution.ErrBundleNotFound
	}
	c := code
	b.CouponCode = &c
	t.state.bundles[bundleID] = b
	return nil
}

func (t *attributionTx) OrderAttributed(_ context.Context, orderID string) (bool, error) {
	return orderAttributed(t.state, orderID), nil
}

func (t *attributionTx) InsertEvent(_ context.Context, e *domain.AttributionEvent) error {
	if e.OrderID != nil && orderAttributed(t.state, *e.OrderID) {
		return attribution.ErrDuplicateOrder
	}
	t.state.events = append(t.state.events, *e)
	return nil
}

func (t *attributionTx) ListEvents(_ context.Context, bundleID string) ([]domain.AttributionEvent, error) {
	var out []domain.AttributionEvent
	for _, e := range t.state.events {
		if e.TrackingBundleID == bundleID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

func (t *attributionTx) InsertResult(_ context.Context, r *domain.AttributionResult) error {
	if _, ok := t.state.results[r.CollaborationID]; ok {
		return attribution.ErrBundleExists
	}
	t.state.results[r.CollaborationID] = *r
	return nil
}

func (t *attributionTx) GetResultForUpdate(_ context.Context, collaborationID string) (*domain.AttributionResult, error) {
	r, ok := t.state.results[collaborationID]
	if !ok {
		return nil, attribution.ErrResultNotFound
	}
	return &r, nil
}

func (t *attributionTx) UpdateResult(_ context.Context, r *domain.AttributionResult) error {
	if _, ok := t.state.results[r.CollaborationID]; !ok {
		return attribution.ErrResultNotFound
	}
	t.state.results[r.CollaborationID] = *r
	return nil
}
