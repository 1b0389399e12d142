package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/creatorhub/internal/pkg/httputil"
)

// HandleInitiateDeposit starts a vault deposit and returns the checkout URL.
//
//	POST /api/deposits
func (h *Handlers) HandleInitiateDeposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decodeValid(w, r, &req) {
		return
	}
	id := identity(r)
	dep, err := h.payments.InitiateDeposit(r.Context(), id.BrandID, id.UserID, req.Amount)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.Created(w, presentDeposit(dep))
}

// HandleVerifyDeposit polls the gateway and settles the deposit if paid.
//
//	POST /api/deposits/{transactionID}/verify
func (h *Handlers) HandleVerifyDeposit(w http.ResponseWriter, r *http.Request) {
	tx, err := h.payments.VerifyDeposit(r.Context(), identity(r).BrandID, chi.URLParam(r, "transactionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, presentTransaction(tx))
}
