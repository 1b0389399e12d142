package capital

import (
	"github.com/ignite/creatorhub/internal/pkg/apperr"
	"github.com/ignite/creatorhub/internal/service/ledger"
)

// Sentinel errors for capital operations.
var (
	ErrInvalidAmount      = apperr.New(apperr.KindValidation, "invalid_amount", "amount must be greater than zero")
	ErrInsufficientEscrow = apperr.New(apperr.KindConflict, "insufficient_escrow", "insufficient escrow balance")
	ErrEscrowExists       = ledger.ErrEscrowExists
	ErrEscrowNotFound     = ledger.ErrEscrowNotFound
)
