package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/service/ledger"
)

type ledgerState struct {
	campaigns    map[string]domain.Campaign
	escrows      map[string]domain.CampaignEscrow // keyed by campaign id
	transactions []domain.Transaction
	entries      []domain.EscrowLedgerEntry
	audits       []domain.AuditEvent
}

func (s *ledgerState) clone() *ledgerState {
	out := &ledgerState{
		campaigns:    make(map[string]domain.Campaign, len(s.campaigns)),
		escrows:      make(map[string]domain.CampaignEscrow, len(s.escrows)),
		transactions: append([]domain.Transaction(nil), s.transactions...),
		entries:      append([]domain.EscrowLedgerEntry(nil), s.entries...),
		audits:       append([]domain.AuditEvent(nil), s.audits...),
	}
	for k, v := range s.campaigns {
		out.campaigns[k] = v
	}
	for k, v := range s.escrows {
		out.escrows[k] = v
	}
	return out
}

// LedgerStore implements ledger.Store in memory.
type LedgerStore struct {
	mu    sync.Mutex
	state *ledgerState
}

// NewLedgerStore returns an empty store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{state: &ledgerState{
		campaigns: make(map[string]domain.Campaign),
		escrows:   make(map[string]domain.CampaignEscrow),
	}}
}

var _ ledger.Store = (*LedgerStore)(nil)

// WithinTx runs fn against a copy of the state and commits it if fn succeeds.
func (s *LedgerStore) WithinTx(ctx context.Context, fn func(tx ledger.Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("memory ledger: panic in transaction: %v", p)
		}
	}()
	if err := fn(&ledgerTx{state: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// AuditEvents returns committed audit events, for tests.
func (s *LedgerStore) AuditEvents() []domain.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AuditEvent(nil), s.state.audits...)
}

func (s *LedgerStore) GetCampaign(_ context.Context, id string) (*domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.state.campaigns[id]
	if !ok {
		return nil, ledger.ErrCampaignNotFound
	}
	return &c, nil
}

func (s *LedgerStore) ListCampaigns(_ context.Context, brandID string, f ledger.CampaignFilter) ([]domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Campaign
	for _, c := range s.state.campaigns {
		if c.BrandID != brandID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		out = append(out, c)
	}
	sortCampaigns(out)
	return out, nil
}

func (s *LedgerStore) ListAllCampaigns(_ context.Context) ([]domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Campaign, 0, len(s.state.campaigns))
	for _, c := range s.state.campaigns {
		out = append(out, c)
	}
	sortCampaigns(out)
	return out, nil
}

func (s *LedgerStore) GetEscrow(_ context.Context, campaignID string) (*domain.CampaignEscrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.state.escrows[campaignID]
	if !ok {
		return nil, ledger.ErrEscrowNotFound
	}
	return &e, nil
}

func (s *LedgerStore) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.state.transactions {
		if t.ID == id {
			return &t, nil
		}
	}
	return nil, ledger.ErrTransactionNotFound
}

func (s *LedgerStore) GetTransactionByReference(_ context.Context, provider, reference string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.state.transactions {
		if t.GatewayProvider == provider && t.GatewayReference != nil && *t.GatewayReference == reference {
			return &t, nil
		}
	}
	return nil, ledger.ErrTransactionNotFound
}

func (s *LedgerStore) ListTransactions(_ context.Context, brandID string) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Transaction
	for _, t := range s.state.transactions {
		if t.BrandID == brandID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *LedgerStore) ListLedgerEntries(_ context.Context, brandID string) ([]domain.EscrowLedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.EscrowLedgerEntry
	for _, e := range s.state.entries {
		if e.BrandID == brandID {
			out = append(out, e)
		}
	}
	return out, nil
}

func sortCampaigns(cs []domain.Campaign) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].CreatedAt.Equal(cs[j].CreatedAt) {
			return cs[i].ID < cs[j].ID
		}
		return cs[i].CreatedAt.After(cs[j].CreatedAt)
	})
}

// ledgerTx mutates a private copy of the state.
type ledgerTx struct {
	state *ledgerState
}

func (t *ledgerTx) GetCampaignForUpdate(_ context.Context, id string) (*domain.Campaign, error) {
	c, ok := t.state.campaigns[id]
	if !ok {
		return nil, ledger.ErrCampaignNotFound
	}
	return &c, nil
}

func (t *ledgerTx) InsertCampaign(_ context.Context, c *domain.Campaign) error {
	if _, ok := t.state.campaigns[c.ID]; ok {
		return fmt.Errorf("campaign %s already exists", c.ID)
	}
	t.state.campaigns[c.ID] = *c
	return nil
}

func (t *ledgerTx) UpdateCampaignFunds(_ context.Context, c *domain.Campaign) error {
	cur, ok := t.state.campaigns[c.ID]
	if !ok {
		return ledger.ErrCampaignNotFound
	}
	cur.EscrowBalance = c.EscrowBalance
	cur.TotalFunded = c.TotalFunded
	cur.TotalReleased = c.TotalReleased
	cur.EscrowStatus = c.EscrowStatus
	cur.UpdatedAt = c.UpdatedAt
	t.state.campaigns[c.ID] = cur
	return nil
}

func (t *ledgerTx) UpdateCampaignStatus(_ context.Context, id string, status domain.CampaignStatus) error {
	cur, ok := t.state.campaigns[id]
	if !ok {
		return ledger.ErrCampaignNotFound
	}
	cur.Status = status
	t.state.campaigns[id] = cur
	return nil
}

func (t *ledgerTx) GetEscrowForUpdate(_ context.Context, campaignID string) (*domain.CampaignEscrow, error) {
	e, ok := t.state.escrows[campaignID]
	if !ok {
		return nil, ledger.ErrEscrowNotFound
	}
	return &e, nil
}

func (t *ledgerTx) InsertEscrow(_ context.Context, e *domain.CampaignEscrow) error {
	if _, ok := t.state.escrows[e.CampaignID]; ok {
		return ledger.ErrEscrowExists
	}
	t.state.escrows[e.CampaignID] = *e
	return nil
}

func (t *ledgerTx) UpdateEscrow(_ context.Context, e *domain.CampaignEscrow) error {
	if _, ok := t.state.escrows[e.CampaignID]; !ok {
		return ledger.ErrEscrowNotFound
	}
	t.state.escrows[e.CampaignID] = *e
	return nil
}

func (t *ledgerTx) InsertTransaction(_ context.Context, tr *domain.Transaction) error {
	if tr.GatewayReference != nil {
		for _, existing := range t.state.transactions {
			if existing.GatewayReference != nil && *existing.GatewayReference == *tr.GatewayReference {
				return ledger.ErrDuplicateReference
			}
		}
	}
	t.state.transactions = append(t.state.transactions, *tr)
	return nil
}

func (t *ledgerTx) GetTransactionForUpdate(_ context.Context, id string) (*domain.Transaction, error) {
	for _, tr := range t.state.transactions {
		if tr.ID == id {
			return &tr, nil
		}
	}
	return nil, ledger.ErrTransactionNotFound
}

func (t *ledgerTx) SettleTransaction(_ context.Context, tr *domain.Transaction) error {
	for i, existing := range t.state.transactions {
		if existing.ID != tr.ID {
			continue
		}
		if existing.Status != domain.TxPending {
			return ledger.ErrTransactionSettled
		}
		if tr.GatewayReference != nil {
			for j, other := range t.state.transactions {
				if j != i && other.GatewayReference != nil && *other.GatewayReference == *tr.GatewayReference {
					return ledger.ErrDuplicateReference
				}
			}
		}
		existing.Status = tr.Status
		existing.GatewayProvider = tr.GatewayProvider
		existing.GatewayReference = tr.GatewayReference
		existing.UpdatedAt = tr.UpdatedAt
		t.state.transactions[i] = existing
		return nil
	}
	return ledger.ErrTransactionNotFound
}

func (t *ledgerTx) InsertLedgerEntry(_ context.Context, e *domain.EscrowLedgerEntry) error {
	if e.Type == domain.LedgerRelease && e.Status == domain.LedgerCompleted && e.MilestoneID != nil {
		if t.hasCompletedRelease(e.CampaignID, *e.MilestoneID) {
			return ledger.ErrDuplicateRelease
		}
	}
	t.state.entries = append(t.state.entries, *e)
	return nil
}

func (t *ledgerTx) HasCompletedRelease(_ context.Context, campaignID, milestoneID string) (bool, error) {
	return t.hasCompletedRelease(campaignID, milestoneID), nil
}

func (t *ledgerTx) hasCompletedRelease(campaignID, milestoneID string) bool {
	for _, e := range t.state.entries {
		if e.CampaignID == campaignID && e.Type == domain.LedgerRelease &&
			e.Status == domain.LedgerCompleted && e.MilestoneID != nil && *e.MilestoneID == milestoneID {
			return true
		}
	}
	return false
}

func (t *ledgerTx) InsertAuditEvent(_ context.Context, a *domain.AuditEvent) error {
	t.state.audits = append(t.state.audits, *a)
	return nil
}
