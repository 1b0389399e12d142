package escrow

import (
	"github.com/ignite/creatorhub/internal/pkg/apperr"
	"github.com/ignite/creatorhub/internal/service/capital"
	"github.com/ignite/creatorhub/internal/service/ledger"
)

// Sentinel errors for the escrow service layer.
var (
	ErrCampaignNotFound   = ledger.ErrCampaignNotFound
	ErrAlreadyReleased    = ledger.ErrDuplicateRelease
	ErrInsufficientEscrow = capital.ErrInsufficientEscrow
	ErrInvalidAmount      = capital.ErrInvalidAmount
	ErrInvalidEntryType   = apperr.New(apperr.KindValidation, "invalid_type", "type must be funding, release or adjustment")
)
