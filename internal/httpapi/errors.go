package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/netledger/netledger/internal/errs"
)

// errorResponse is the standard error payload for the API.
type errorResponse struct {
	Error string `json:"Error"`
	Code  string `json:"Code,omitempty"`
}

func writeErr(w http.ResponseWriter, status int, msg, code string) {
	toJSON(w, status, errorResponse{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeErr(w, http.StatusBadRequest, msg, "invalid_argument")
}

func unauthorized(w http.ResponseWriter) {
	writeErr(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
}

// serviceError maps a sentinel coming out of the service layer to its HTTP
// status. Context cancellation surfaces as a timeout.
func serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrInvalid):
		writeErr(w, http.StatusBadRequest, err.Error(), "invalid_argument")
	case errors.Is(err, errs.ErrUnauthorized):
		unauthorized(w)
	case errors.Is(err, errs.ErrNotFound):
		writeErr(w, http.StatusNotFound, "not_found", "not_found")
	case errors.Is(err, errs.ErrTimeout), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeErr(w, http.StatusRequestTimeout, "timeout", "timeout")
	case errors.Is(err, errs.ErrConflict):
		writeErr(w, http.StatusConflict, err.Error(), "conflict")
	default:
		writeErr(w, http.StatusInternalServerError, "internal_error", "internal_error")
	}
}
