package lifttest

import "github.com/ignite/creatorhub/internal/pkg/apperr"

// Sentinel errors for lift tests.
var (
	ErrNotFound          = apperr.New(apperr.KindNotFound, "lift_test_not_found", "lift test not found")
	ErrGroupNotFound     = apperr.New(apperr.KindNotFound, "lift_group_not_found", "lift test group not found")
	ErrInvalidTransition = apperr.New(apperr.KindConflict, "invalid_transition", "invalid lift test status transition")
	ErrNotRunning        = apperr.New(apperr.KindConflict, "lift_test_not_running", "lift test is not running")
	ErrNotStarted        = apperr.New(apperr.KindConflict, "lift_test_not_started", "lift test has not started")
	ErrNotTimeBased      = apperr.New(apperr.KindValidation, "not_time_based", "lift test is not time based")
	ErrNameRequired      = apperr.New(apperr.KindValidation, "name_required", "name is required")
	ErrCampaignRequired  = apperr.New(apperr.KindValidation, "campaign_required", "campaign_id is required")
	ErrInvalidType       = apperr.New(apperr.KindValidation, "invalid_test_type", "unknown lift test type")
	ErrInvalidRegions    = apperr.New(apperr.KindValidation, "invalid_regions", "test and control need distinct, non-empty region lists")
	ErrInvalidPercentage = apperr.New(apperr.KindValidation, "invalid_percentage", "group percentages must be between 0 and 100")
	ErrInvalidBaseline   = apperr.New(apperr.KindValidation, "invalid_baseline", "baseline end must be after baseline start")
	ErrInvalidEventType  = apperr.New(apperr.KindValidation, "invalid_event_type", "unknown group event type")
	ErrInvalidValue      = apperr.New(apperr.KindValidation, "invalid_value", "revenue must not be negative")
)
