package attribution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/metrics"
	"github.com/ignite/creatorhub/internal/pkg/logger"
	"github.com/ignite/creatorhub/internal/tasks"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// EventInput is one inbound event, attributed through whichever codes it
// carries.
type EventInput struct {
	Codes      CodeParams
	EventType  domain.AttributionEventType
	Source     domain.EventSource
	OrderID    string
	OrderValue *decimal.Decimal
	UserHash   string
	SessionID  string
	Region     string
	OccurredAt time.Time
	RawPayload json.RawMessage
}

// RecordResult reports what RecordEvent did.
type RecordResult struct {
	EventID   string                    `json:"event_id,omitempty"`
	BundleID  string                    `json:"bundle_id"`
	Duplicate bool                      `json:"duplicate"`
	Result    *domain.AttributionResult `json:"result,omitempty"`
}

// RecordEvent appends the event, updates the collaboration's counters and
// recalculates its metrics in one transaction. An order id that was already
// attributed is reported with Duplicate set and changes nothing.
func (s *Service) RecordEvent(ctx context.Context, in EventInput) (*RecordResult, error) {
	if !in.EventType.Valid() {
		return nil, ErrInvalidEventType
	}
	if in.OrderValue != nil && in.OrderValue.IsNegative() {
		return nil, ErrInvalidOrderValue
	}
	in.OrderID = strings.TrimSpace(in.OrderID)

	bundle, err := s.ResolveBundle(ctx, in.Codes)
	if err != nil {
		return nil, err
	}

	res := &RecordResult{BundleID: bundle.ID}
	if in.OrderID != "" {
		seen, err := s.repo.OrderAttributed(ctx, in.OrderID)
		if err != nil {
			return nil, fmt.Errorf("check order: %w", err)
		}
		if seen {
			metrics.DuplicatePurchases.Inc()
			res.Duplicate = true
			return res, nil
		}
	}

	occurred := in.OccurredAt
	if occurred.IsZero() {
		occurred = s.now()
	}
	event := &domain.AttributionEvent{
		ID:               uuid.New().String(),
		TrackingBundleID: bundle.ID,
		CampaignID:       bundle.CampaignID,
		EventType:        in.EventType,
		EventSource:      in.Source,
		OrderValue:       in.OrderValue,
		UserHash:         in.UserHash,
		Region:           strings.ToUpper(strings.TrimSpace(in.Region)),
		OccurredAt:       occurred,
		CreatedAt:        s.now(),
		RawPayload:       in.RawPayload,
	}
	if in.OrderID != "" {
		orderID := in.OrderID
		event.OrderID = &orderID
	}

	err = s.repo.WithinTx(ctx, func(tx Tx) error {
		if event.OrderID != nil {
			seen, err := tx.OrderAttributed(ctx, *event.OrderID)
			if err != nil {
				return fmt.Errorf("check order: %w", err)
			}
			if seen {
				return ErrDuplicateOrder
			}
		}
		if err := tx.InsertEvent(ctx, event); err != nil {
			return err
		}

		r, err := tx.GetResultForUpdate(ctx, bundle.CollaborationID)
		if err != nil {
			return err
		}
		switch event.EventType {
		case domain.EventClick:
			r.TotalClicks++
		case domain.EventPurchase:
			r.TotalConversions++
			if event.OrderValue != nil {
				r.TotalRevenue = r.TotalRevenue.Add(*event.OrderValue)
			}
		}
		updated := Recalculate(*r)
		updated.UpdatedAt = s.now()
		if err := tx.UpdateResult(ctx, &updated); err != nil {
			return fmt.Errorf("update result: %w", err)
		}
		res.Result = &updated
		return nil
	})
	if errors.Is(err, ErrDuplicateOrder) {
		metrics.DuplicatePurchases.Inc()
		return &RecordResult{BundleID: bundle.ID, Duplicate: true}, nil
	}
	if err != nil {
		return nil, err
	}

	res.EventID = event.ID
	metrics.AttributionEvents.WithLabelValues(string(event.EventType), string(event.EventSource)).Inc()

	switch event.EventType {
	case domain.EventPurchase:
		s.enqueuePurchaseFollowUps(ctx, bundle, event, in.SessionID)
	case domain.EventClick, domain.EventPageView:
		s.enqueueExposure(ctx, event, in.SessionID)
	}
	return res, nil
}

// enqueueExposure counts a click or page view as an impression in the
// campaign's running lift tests.
func (s *Service) enqueueExposure(ctx context.Context, e *domain.AttributionEvent, sessionID string) {
	if s.queue == nil {
		return
	}
	s.enqueue(ctx, tasks.TypeLiftExposure, tasks.LiftExposurePayload{
		CampaignID: e.CampaignID,
		Region:     e.Region,
		UserID:     e.UserHash,
		SessionID:  sessionID,
	})
}

// enqueuePurchaseFollowUps schedules integration forwarding and lift-test
// recording. Enqueue failures are logged; the event itself has committed.
func (s *Service) enqueuePurchaseFollowUps(ctx context.Context, b *domain.TrackingBundle, e *domain.AttributionEvent, sessionID string) {
	if s.queue == nil {
		return
	}
	value := decimal.Zero
	if e.OrderValue != nil {
		value = *e.OrderValue
	}
	orderID := ""
	if e.OrderID != nil {
		orderID = *e.OrderID
	}

	if s.integrations != nil {
		configs, err := s.integrations.ListEnabled(ctx, b.BrandID)
		if err != nil {
			logger.Error("list integrations failed", "brand_id", b.BrandID, "error", err.Error())
		}
		for _, cfg := range configs {
			s.enqueue(ctx, tasks.TypeForwardPurchase, tasks.ForwardPurchasePayload{
				BrandID:    b.BrandID,
				Provider:   string(cfg.Provider),
				CampaignID: b.CampaignID,
				BundleID:   b.ID,
				OrderID:    orderID,
				Value:      value,
				Currency:   s.cfg.Currency,
				UserHash:   e.UserHash,
				OccurredAt: e.OccurredAt,
			})
		}
	}

	s.enqueue(ctx, tasks.TypeLiftConversion, tasks.LiftConversionPayload{
		CampaignID: b.CampaignID,
		Region:     e.Region,
		UserID:     e.UserHash,
		SessionID:  sessionID,
		Revenue:    value,
	})
}

func (s *Service) enqueue(ctx context.Context, typ tasks.Type, payload interface{}) {
	t, err := tasks.New(typ, payload)
	if err == nil {
		err = s.queue.Enqueue(ctx, t)
	}
	if err != nil {
		logger.Error("enqueue task failed", "type", string(typ), "error", err.Error())
	}
}

// RecalculateMetrics recomputes derived metrics from the stored counters.
// Calling it repeatedly without new events yields the same values.
func (s *Service) RecalculateMetrics(ctx context.Context, collaborationID string) (*domain.AttributionResult, error) {
	var out *domain.AttributionResult
	err := s.repo.WithinTx(ctx, func(tx Tx) error {
		r, err := tx.GetResultForUpdate(ctx, collaborationID)
		if err != nil {
			return err
		}
		updated := Recalculate(*r)
		if sameMetrics(&updated, r) {
			out = r
			return nil
		}
		updated.UpdatedAt = s.now()
		if err := tx.UpdateResult(ctx, &updated); err != nil {
			return fmt.Errorf("update result: %w", err)
		}
		out = &updated
		return nil
	})
	return out, err
}

// RebuildResult recounts the collaboration's counters from its full event
// history and recalculates the metrics.
func (s *Service) RebuildResult(ctx context.Context, collaborationID string) (*domain.AttributionResult, error) {
	var out *domain.AttributionResult
	err := s.repo.WithinTx(ctx, func(tx Tx) error {
		b, err := tx.GetBundleByCollaboration(ctx, collaborationID)
		if err != nil {
			return err
		}
		r, err := tx.GetResultForUpdate(ctx, collaborationID)
		if err != nil {
			return err
		}
		events, err := tx.ListEvents(ctx, b.ID)
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}

		r.TotalClicks, r.TotalConversions, r.TotalRevenue = 0, 0, decimal.Zero
		for _, e := range events {
			switch e.EventType {
			case domain.EventClick:
				r.TotalClicks++
			case domain.EventPurchase:
				r.TotalConversions++
				if e.OrderValue != nil {
					r.TotalRevenue = r.TotalRevenue.Add(*e.OrderValue)
				}
			}
		}
		updated := Recalculate(*r)
		updated.UpdatedAt = s.now()
		if err := tx.UpdateResult(ctx, &updated); err != nil {
			return fmt.Errorf("update result: %w", err)
		}
		out = &updated
		return nil
	})
	return out, err
}

// Recalculate derives conversion rate, ROAS, cost per conversion and average
// order value from the counters. Each divisor of zero yields zero.
func Recalculate(r domain.AttributionResult) domain.AttributionResult {
	clicks := decimal.NewFromInt(r.TotalClicks)
	conversions := decimal.NewFromInt(r.TotalConversions)

	r.ConversionRate = decimal.Zero
	if r.TotalClicks > 0 {
		r.ConversionRate = conversions.Div(clicks).Mul(hundred).Round(4)
	}
	r.ROAS = decimal.Zero
	if r.CreatorCost.IsPositive() {
		r.ROAS = r.TotalRevenue.DivRound(r.CreatorCost, 4)
	}
	r.CostPerConversion = decimal.Zero
	r.AverageOrderValue = decimal.Zero
	if r.TotalConversions > 0 {
		r.CostPerConversion = r.CreatorCost.DivRound(conversions, 2)
		r.AverageOrderValue = r.TotalRevenue.DivRound(conversions, 2)
	}
	return r
}

func sameMetrics(a, b *domain.AttributionResult) bool {
	return a.ConversionRate.Equal(b.ConversionRate) &&
		a.ROAS.Equal(b.ROAS) &&
		a.CostPerConversion.Equal(b.CostPerConversion) &&
		a.AverageOrderValue.Equal(b.AverageOrderValue)
}
