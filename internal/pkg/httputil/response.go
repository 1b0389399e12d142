package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ignite/creatorhub/internal/pkg/apperr"
	"github.com/ignite/creatorhub/internal/pkg/logger"
)

// maxBodyBytes caps request bodies read by Decode.
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// JSON encodes data with status.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("response encode failed", "error", err)
	}
}

func OK(w http.ResponseWriter, data any)      { JSON(w, http.StatusOK, data) }
func Created(w http.ResponseWriter, data any) { JSON(w, http.StatusCreated, data) }

// BadRequest writes a 400 with a bare message.
func BadRequest(w http.ResponseWriter, message string) {
	JSON(w, http.StatusBadRequest, ErrorResponse{Error: message, Code: "bad_request"})
}

// ValidationFailed writes a 400 carrying per-field details.
func ValidationFailed(w http.ResponseWriter, code, message string, details any) {
	JSON(w, http.StatusBadRequest, ErrorResponse{Error: message, Code: code, Details: details})
}

// WriteError maps err to a status by its apperr kind. Internal errors are
// logged and answered with a generic body; gateway errors are logged and
// passed through.
func WriteError(w http.ResponseWriter, err error) {
	switch kind := apperr.KindOf(err); kind {
	case apperr.KindInternal:
		logger.Error("internal error", "error", err)
		JSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: "internal_error"})
	default:
		if kind == apperr.KindGateway {
			logger.Warn("upstream gateway error", "error", err)
		}
		JSON(w, kind.HTTPStatus(), ErrorResponse{Error: apperr.MessageOf(err), Code: apperr.CodeOf(err)})
	}
}

// Decode reads a JSON body of at most 1 MiB into dst. On failure it writes
// the 400 itself and returns false.
func Decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if err == nil {
		return true
	}
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		JSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large", Code: "body_too_large"})
		return false
	}
	BadRequest(w, "invalid JSON: "+err.Error())
	return false
}
