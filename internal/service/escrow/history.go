package escrow

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/service/ledger"
	"github.com/shopspring/decimal"
)

// LedgerRow is one escrow ledger entry with the brand's running balance
// after it was applied.
type LedgerRow struct {
	domain.EscrowLedgerEntry
	CampaignName   string          `json:"campaign_name"`
	RunningBalance decimal.Decimal `json:"running_balance"`
}

// TransactionQuery filters and pages the ledger history.
type TransactionQuery struct {
	Page      int
	Limit     int
	SortBy    string // created_at, amount, type
	SortOrder string // asc, desc
	Search    string
	Type      domain.LedgerEntryType
}

// TransactionPage is one page of ledger history.
type TransactionPage struct {
	Rows  []LedgerRow `json:"rows"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

// Statement replays every ledger entry for the brand oldest first. Completed
// funding and adjustment entries add to the running balance and completed
// releases subtract; other entries carry the balance unchanged.
func (s *Service) Statement(ctx context.Context, brandID string) ([]LedgerRow, error) {
	entries, err := s.store.ListLedgerEntries(ctx, brandID)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	campaigns, err := s.store.ListCampaigns(ctx, brandID, ledger.CampaignFilter{})
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	names := make(map[string]string, len(campaigns))
	for _, c := range campaigns {
		names[c.ID] = c.Name
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})

	rows := make([]LedgerRow, 0, len(entries))
	balance := decimal.Zero
	for i := range entries {
		e := entries[i]
		if e.Status == domain.LedgerCompleted {
			balance = balance.Add(e.SignedAmount())
		}
		rows = append(rows, LedgerRow{
			EscrowLedgerEntry: e,
			CampaignName:      names[e.CampaignID],
			RunningBalance:    balance,
		})
	}
	return rows, nil
}

// GetTransactions returns a filtered, sorted page of the ledger history. The
// running balance is computed over the full history before filtering.
func (s *Service) GetTransactions(ctx context.Context, brandID string, q TransactionQuery) (*TransactionPage, error) {
	if q.Type != "" && !q.Type.Valid() {
		return nil, ErrInvalidEntryType
	}
	rows, err := s.Statement(ctx, brandID)
	if err != nil {
		return nil, err
	}

	search := strings.ToLower(strings.TrimSpace(q.Search))
	filtered := rows[:0:0]
	for _, r := range rows {
		if q.Type != "" && r.Type != q.Type {
			continue
		}
		if search != "" && !rowMatches(r, search) {
			continue
		}
		filtered = append(filtered, r)
	}

	sortRows(filtered, q.SortBy, q.SortOrder)

	page, limit := q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	total := len(filtered)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return &TransactionPage{
		Rows:  filtered[start:end],
		Total: int64(total),
		Page:  page,
		Limit: limit,
	}, nil
}

func rowMatches(r LedgerRow, search string) bool {
	if strings.Contains(strings.ToLower(r.Description), search) ||
		strings.Contains(strings.ToLower(r.CampaignName), search) {
		return true
	}
	return r.MilestoneID != nil && strings.Contains(strings.ToLower(*r.MilestoneID), search)
}

func sortRows(rows []LedgerRow, by, order string) {
	asc := strings.EqualFold(order, "asc")
	var less func(a, b *LedgerRow) bool
	switch by {
	case "amount":
		less = func(a, b *LedgerRow) bool { return a.Amount.LessThan(b.Amount) }
	case "type":
		less = func(a, b *LedgerRow) bool { return a.Type < b.Type }
	default:
		less = func(a, b *LedgerRow) bool { return a.CreatedAt.Before(b.CreatedAt) }
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if asc {
			return less(&rows[i], &rows[j])
		}
		return less(&rows[j], &rows[i])
	})
}
