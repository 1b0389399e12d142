package domain

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Milestone is a discrete deliverable within a campaign, independently
// releasable from escrow.
type Milestone struct {
	ID     string           `json:"id"`
	Name   string           `json:"name"`
	Status string           `json:"status"`
	Amount *decimal.Decimal `json:"amount,omitempty"`
	Date   *time.Time       `json:"date,omitempty"`
}

// Milestones is the normalized form of a campaign's milestone blob.
//
// Stored payloads come in two shapes: an object mapping name to status
// ({"Draft approved": "done"}) or a list of {id, name, status, amount, date}.
// Both decode into the same list. Encoding always writes the list form.
type Milestones []Milestone

// UnmarshalJSON accepts either stored shape.
func (m *Milestones) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = nil
		return nil
	}

	switch data[0] {
	case '{':
		var byName map[string]string
		if err := json.Unmarshal(data, &byName); err != nil {
			return fmt.Errorf("milestones object form: %w", err)
		}
		names := make([]string, 0, len(byName))
		for name := range byName {
			names = append(names, name)
		}
		sort.Strings(names)
		out := make(Milestones, 0, len(names))
		for _, name := range names {
			out = append(out, Milestone{ID: name, Name: name, Status: byName[name]})
		}
		*m = out
		return nil
	case '[':
		var list []Milestone
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("milestones list form: %w", err)
		}
		for i := range list {
			if list[i].ID == "" {
				list[i].ID = list[i].Name
			}
		}
		*m = list
		return nil
	default:
		return fmt.Errorf("milestones: unsupported JSON shape")
	}
}

// MarshalJSON always writes the list form; nil encodes as [].
func (m Milestones) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Milestone(m))
}

// Find returns the milestone with the given id.
func (m Milestones) Find(id string) (Milestone, bool) {
	for _, ms := range m {
		if ms.ID == id {
			return ms, true
		}
	}
	return Milestone{}, false
}

// Value implements driver.Valuer for jsonb columns.
func (m Milestones) Value() (driver.Value, error) {
	b, err := m.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for jsonb columns.
func (m *Milestones) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		return m.UnmarshalJSON(v)
	case string:
		return m.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("milestones: cannot scan %T", src)
	}
}
