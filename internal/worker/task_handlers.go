package worker

import (
	"context"
	"fmt"

	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/pkg/apperr"
	"github.com/ignite/creatorhub/internal/pkg/logger"
	"github.com/ignite/creatorhub/internal/service/attribution"
	"github.com/ignite/creatorhub/internal/service/lifttest"
	"github.com/ignite/creatorhub/internal/tasks"
)

// EventRecorder records attribution events.
type EventRecorder interface {
	RecordEvent(ctx context.Context, in attribution.EventInput) (*attribution.RecordResult, error)
}

// LiftRecorder feeds purchases and exposures into running lift tests.
type LiftRecorder interface {
	RecordCampaignConversion(ctx context.Context, campaignID string, in lifttest.ConversionInput) (int, error)
	RecordCampaignExposure(ctx context.Context, campaignID string, in lifttest.ExposureInput) (int, error)
}

// PurchaseForwarder sends purchases to brand integrations.
type PurchaseForwarder interface {
	HandleTask(ctx context.Context, t tasks.Task) error
}

// RegisterTaskHandlers binds every task type to its service. The same
// registration serves the in-process queue and the SQS consumer.
func RegisterTaskHandlers(d *tasks.Dispatcher, events EventRecorder, lift LiftRecorder, fwd PurchaseForwarder) {
	d.Register(tasks.TypeRecordEvent, recordEventHandler(events))
	d.Register(tasks.TypeLiftConversion, liftConversionHandler(lift))
	d.Register(tasks.TypeLiftExposure, liftExposureHandler(lift))
	d.Register(tasks.TypeForwardPurchase, fwd.HandleTask)
}

func recordEventHandler(events EventRecorder) tasks.Handler {
	return func(ctx context.Context, t tasks.Task) error {
		var p tasks.RecordEventPayload
		if err := t.Decode(&p); err != nil {
			return err
		}
		res, err := events.RecordEvent(ctx, attribution.EventInput{
			Codes: attribution.CodeParams{
				AffiliateCode: p.AffiliateCode,
				ShortCode:     p.ShortCode,
				CouponCode:    p.CouponCode,
			},
			EventType:  domain.AttributionEventType(p.EventType),
			Source:     domain.EventSource(p.Source),
			OrderID:    p.OrderID,
			OrderValue: p.OrderValue,
			UserHash:   p.UserHash,
			Region:     p.Region,
			OccurredAt: p.OccurredAt,
		})
		if err != nil {
			return classify(err)
		}
		if res.Duplicate {
			logger.Debug("duplicate order ignored", "task_id", t.ID, "order_id", p.OrderID)
		}
		return nil
	}
}

func liftConversionHandler(lift LiftRecorder) tasks.Handler {
	return func(ctx context.Context, t tasks.Task) error {
		var p tasks.LiftConversionPayload
		if err := t.Decode(&p); err != nil {
			return err
		}
		n, err := lift.RecordCampaignConversion(ctx, p.CampaignID, lifttest.ConversionInput{
			Region:    p.Region,
			UserID:    p.UserID,
			SessionID: p.SessionID,
			Revenue:   p.Revenue,
		})
		if err != nil {
			return classify(err)
		}
		if n > 0 {
			logger.Debug("lift conversion recorded", "campaign_id", p.CampaignID, "groups", n)
		}
		return nil
	}
}

func liftExposureHandler(lift LiftRecorder) tasks.Handler {
	return func(ctx context.Context, t tasks.Task) error {
		var p tasks.LiftExposurePayload
		if err := t.Decode(&p); err != nil {
			return err
		}
		_, err := lift.RecordCampaignExposure(ctx, p.CampaignID, lifttest.ExposureInput{
			Region:    p.Region,
			UserID:    p.UserID,
			SessionID: p.SessionID,
		})
		if err != nil {
			return classify(err)
		}
		return nil
	}
}

// classify stops retries for errors a second attempt cannot fix.
func classify(err error) error {
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindNotFound, apperr.KindConflict, apperr.KindForbidden:
		return tasks.Permanent(err)
	}
	return fmt.Errorf("task handler: %w", err)
}
