package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/service/lifttest"
)

type liftState struct {
	tests   map[string]domain.LiftTest
	results map[string]domain.LiftTestResult // latest, keyed by test id
}

func copyLiftTest(t domain.LiftTest) domain.LiftTest {
	groups := make([]domain.LiftTestGroup, len(t.Groups))
	for i, g := range t.Groups {
		g.Regions = append([]string(nil), g.Regions...)
		groups[i] = g
	}
	t.Groups = groups
	t.Result = nil
	return t
}

func (s *liftState) clone() *liftState {
	out := &liftState{
		tests:   make(map[string]domain.LiftTest, len(s.tests)),
		results: make(map[string]domain.LiftTestResult, len(s.results)),
	}
	for k, v := range s.tests {
		out.tests[k] = copyLiftTest(v)
	}
	for k, v := range s.results {
		out.results[k] = v
	}
	return out
}

// LiftTestStore implements lifttest.Repository in memory.
type LiftTestStore struct {
	mu    sync.Mutex
	state *liftState
}

// NewLiftTestStore returns an empty store.
func NewLiftTestStore() *LiftTestStore {
	return &LiftTestStore{state: &liftState{
		tests:   make(map[string]domain.LiftTest),
		results: make(map[string]domain.LiftTestResult),
	}}
}

var _ lifttest.Repository = (*LiftTestStore)(nil)

func (s *LiftTestStore) WithinTx(ctx context.Context, fn func(tx lifttest.Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("memory lift tests: panic in transaction: %v", p)
		}
	}()
	if err := fn(&liftTx{state: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *LiftTestStore) read(t domain.LiftTest) domain.LiftTest {
	out := copyLiftTest(t)
	if r, ok := s.state.results[t.ID]; ok {
		out.Result = &r
	}
	return out
}

func (s *LiftTestStore) GetTest(_ context.Context, id string) (*domain.LiftTest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.state.tests[id]
	if !ok {
		return nil, lifttest.ErrNotFound
	}
	out := s.read(t)
	return &out, nil
}

func (s *LiftTestStore) ListByCampaign(_ context.Context, campaignID string) ([]domain.LiftTest, error) {
	return s.list(campaignID, false), nil
}

func (s *LiftTestStore) ListRunning(_ context.Context, campaignID string) ([]domain.LiftTest, error) {
	return s.list(campaignID, true), nil
}

func (s *LiftTestStore) list(campaignID string, runningOnly bool) []domain.LiftTest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.LiftTest
	for _, t := range s.state.tests {
		if t.CampaignID != campaignID || (runningOnly && t.Status != domain.LiftRunning) {
			continue
		}
		out = append(out, s.read(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *LiftTestStore) InsertResult(_ context.Context, r *domain.LiftTestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.tests[r.LiftTestID]; !ok {
		return lifttest.ErrNotFound
	}
	s.state.results[r.LiftTestID] = *r
	return nil
}

type liftTx struct {
	state *liftState
}

func (t *liftTx) InsertTest(_ context.Context, lt *domain.LiftTest) error {
	if _, ok := t.state.tests[lt.ID]; ok {
		return fmt.Errorf("lift test %s already exists", lt.ID)
	}
	t.state.tests[lt.ID] = copyLiftTest(*lt)
	return nil
}

func (t *liftTx) GetTestForUpdate(_ context.Context, id string) (*domain.LiftTest, error) {
	lt, ok := t.state.tests[id]
	if !ok {
		return nil, lifttest.ErrNotFound
	}
	out := copyLiftTest(lt)
	return &out, nil
}

func (t *liftTx) UpdateStatus(_ context.Context, lt *domain.LiftTest) error {
	cur, ok := t.state.tests[lt.ID]
	if !ok {
		return lifttest.ErrNotFound
	}
	cur.Status = lt.Status
	cur.StartedAt = lt.StartedAt
	cur.EndedAt = lt.EndedAt
	cur.UpdatedAt = lt.UpdatedAt
	t.state.tests[lt.ID] = cur
	return nil
}

func (t *liftTx) findGroup(groupID string) (string, int, bool) {
	for id, lt := range t.state.tests {
		for i, g := range lt.Groups {
			if g.ID == groupID {
				return id, i, true
			}
		}
	}
	return "", 0, false
}

func (t *liftTx) GetGroupForUpdate(_ context.Context, groupID string) (*domain.LiftTestGroup, error) {
	testID, i, ok := t.findGroup(groupID)
	if !ok {
		return nil, lifttest.ErrGroupNotFound
	}
	g := t.state.tests[testID].Groups[i]
	g.Regions = append([]string(nil), g.Regions...)
	return &g, nil
}

func (t *liftTx) IncrementGroup(_ context.Context, groupID string, d domain.GroupDelta) error {
	testID, i, ok := t.findGroup(groupID)
	if !ok {
		return lifttest.ErrGroupNotFound
	}
	lt := t.state.tests[testID]
	g := &lt.Groups[i]
	g.Impressions += d.Impressions
	g.UniqueUsers += d.UniqueUsers
	g.Conversions += d.Conversions
	g.Revenue = g.Revenue.Add(d.Revenue)
	t.state.tests[testID] = lt
	return nil
}
