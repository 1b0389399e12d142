package campaign

import (
	"github.com/ignite/creatorhub/internal/pkg/apperr"
	"github.com/ignite/creatorhub/internal/service/ledger"
)

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound          = ledger.ErrCampaignNotFound
	ErrInvalidTransition = apperr.New(apperr.KindConflict, "invalid_transition", "invalid status transition")
	ErrNameRequired      = apperr.New(apperr.KindValidation, "name_required", "name is required")
	ErrInvalidBudget     = apperr.New(apperr.KindValidation, "invalid_budget", "target budget must be greater than zero")
	ErrInvalidEscrowPct  = apperr.New(apperr.KindValidation, "invalid_escrow_percentage", "escrow percentage must be between 0 and 100")
	ErrInvalidDates      = apperr.New(apperr.KindValidation, "invalid_date_range", "end date must be after start date")
	ErrInvalidModel      = apperr.New(apperr.KindValidation, "invalid_payment_model", "unknown payment model")
	ErrInvalidStatus     = apperr.New(apperr.KindValidation, "invalid_status", "unknown campaign status")
)
