// Package tasks carries the side effects that must not block or fail a
// user-facing request: recording redirect clicks, forwarding purchases to
// integrations and feeding running lift tests.
//
// Producers enqueue a Task after their own write has committed. A Dispatcher
// runs the registered handler with bounded retries; each task is handled in
// isolation so one failing integration never blocks another. Tasks travel
// through an in-process MemoryQueue or through SQS between the server and
// the worker binary.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type names a task handler.
type Type string

const (
	TypeRecordEvent     Type = "attribution.record_event"
	TypeForwardPurchase Type = "integration.forward_purchase"
	TypeLiftConversion  Type = "lifttest.record_conversion"
	TypeLiftExposure    Type = "lifttest.record_exposure"
)

// Task is one unit of deferred work.
type Task struct {
	ID         string          `json:"id"`
	Type       Type            `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// New builds a task with a JSON-encoded payload.
func New(t Type, payload interface{}) (Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Task{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return Task{
		ID:         uuid.New().String(),
		Type:       t,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// Decode unmarshals the payload into dst. A malformed payload is permanent.
func (t Task) Decode(dst interface{}) error {
	if err := json.Unmarshal(t.Payload, dst); err != nil {
		return Permanent(fmt.Errorf("decode %s payload: %w", t.Type, err))
	}
	return nil
}

// Queue accepts tasks for asynchronous handling.
type Queue interface {
	Enqueue(ctx context.Context, t Task) error
}

// Handler processes one task. Returning an error wrapped with Permanent stops
// retries.
type Handler func(ctx context.Context, t Task) error

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// RecordEventPayload is an attribution event resolved by code. Redirects and
// pixels enqueue it so the response never waits on the database.
type RecordEventPayload struct {
	AffiliateCode string           `json:"affiliate_code,omitempty"`
	ShortCode     string           `json:"short_code,omitempty"`
	CouponCode    string           `json:"coupon_code,omitempty"`
	EventType     string           `json:"event_type"`
	Source        string           `json:"source"`
	OrderID       string           `json:"order_id,omitempty"`
	OrderValue    *decimal.Decimal `json:"order_value,omitempty"`
	UserHash      string           `json:"user_hash,omitempty"`
	Region        string           `json:"region,omitempty"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

// ForwardPurchasePayload sends one attributed purchase to one integration.
type ForwardPurchasePayload struct {
	BrandID    string          `json:"brand_id"`
	Provider   string          `json:"provider"`
	CampaignID string          `json:"campaign_id"`
	BundleID   string          `json:"bundle_id"`
	OrderID    string          `json:"order_id"`
	Value      decimal.Decimal `json:"value"`
	Currency   string          `json:"currency"`
	UserHash   string          `json:"user_hash,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// LiftConversionPayload feeds a purchase into the campaign's running tests.
type LiftConversionPayload struct {
	CampaignID string          `json:"campaign_id"`
	Region     string          `json:"region,omitempty"`
	UserID     string          `json:"user_id,omitempty"`
	SessionID  string          `json:"session_id,omitempty"`
	Revenue    decimal.Decimal `json:"revenue"`
}

// LiftExposurePayload feeds a click or page view into the campaign's running
// tests as an impression.
type LiftExposurePayload struct {
	CampaignID string `json:"campaign_id"`
	Region     string `json:"region,omitempty"`
	UserID     string `json:"user_id,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
}
