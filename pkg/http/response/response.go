// Package response writes JSON bodies and maps service errors to HTTP status codes.
package response

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/domainerr"
)

type errorBody struct {
	Error string `json:"error"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error sending response", "error", err)
	}
}

// Error writes err as {"error": "..."} with the status it maps to.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		slog.WarnContext(r.Context(), "Request rejected", "path", r.URL.Path, "status", status, "error", err)
	}

	JSON(w, status, errorBody{Error: err.Error()})
}

// BadRequest writes a request decoding or validation failure as a 400.
func BadRequest(w http.ResponseWriter, r *http.Request, err error) {
	slog.WarnContext(r.Context(), "Error decoding request", "path", r.URL.Path, "error", err)
	JSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
}

// StatusFor maps the domain error taxonomy to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domainerr.ErrEntityNotFound):
		return http.StatusNotFound
	case errors.Is(err, domainerr.ErrInvalidEntity):
		return http.StatusBadRequest
	case errors.Is(err, domainerr.ErrInventoryUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domainerr.ErrInvalidAction), errors.Is(err, domainerr.ErrConcurrentUpdate):
		return http.StatusConflict
	case errors.Is(err, domainerr.ErrPriceUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
