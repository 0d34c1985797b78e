package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/acs-auto/internal/acs"
	"github.com/nerrad567/acs-auto/internal/dataset"
	"github.com/nerrad567/acs-auto/internal/infrastructure/config"
	"github.com/nerrad567/acs-auto/internal/macro"
	"github.com/nerrad567/acs-auto/internal/session"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeForbidden      = "forbidden"
	ErrCodeConflict       = "conflict"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeMethodNotAllow = "method_not_allowed"
	ErrCodeNotImplemented = "not_implemented"
	ErrCodeUnavailable    = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeConflict writes a 409 error response.
func writeConflict(w http.ResponseWriter, message string) {
	writeError(w, http.StatusConflict, ErrCodeConflict, message)
}

// writeDomainError maps a domain error to its HTTP status. Unknown errors
// are logged and reported as 500 without detail.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, macro.ErrUnknownCategory),
		errors.Is(err, macro.ErrMacroNotFound),
		errors.Is(err, macro.ErrStepNotFound),
		errors.Is(err, macro.ErrRunNotFound),
		errors.Is(err, config.ErrUnknownSection),
		errors.Is(err, config.ErrUnknownKey):
		writeNotFound(w, err.Error())
	case errors.Is(err, macro.ErrBusy),
		errors.Is(err, macro.ErrNameExists),
		errors.Is(err, macro.ErrLastMacro),
		errors.Is(err, config.ErrKeyExists),
		errors.Is(err, session.ErrNoActiveMacro),
		errors.Is(err, session.ErrNoDataset),
		errors.Is(err, session.ErrNoCurrentRow):
		writeConflict(w, err.Error())
	case errors.Is(err, macro.ErrInvalidName),
		errors.Is(err, macro.ErrInvalidMacro),
		errors.Is(err, macro.ErrCorrupt),
		errors.Is(err, config.ErrInvalidValue),
		errors.Is(err, acs.ErrUnknownDeviceType),
		errors.Is(err, acs.ErrUnknownDevicePower),
		errors.Is(err, dataset.ErrUnsupportedFormat),
		errors.Is(err, dataset.ErrNoRows),
		errors.Is(err, dataset.ErrUnknownField),
		errors.Is(err, session.ErrNotSelectable):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, acs.ErrNoWindow):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	default:
		s.logger.Error("request failed",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeInternalError(w, "internal server error")
	}
}
