package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ruteri/casper-member-portal/interfaces"
)

// Error codes carried in error responses.
const (
	CodeValidation         = "validation_error"
	CodeVerificationFailed = "verification_failed"
	CodePersistence        = "persistence_error"
	CodeUnauthorized       = "unauthorized"
	CodeForbidden          = "forbidden"
	CodeNotFound           = "not_found"
	CodeLocked             = "account_locked"
	CodeInternal           = "internal_error"
)

// RequestError carries the HTTP status and error code of a failed request.
type RequestError struct {
	StatusCode int
	Code       string
	Err        error
}

func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

type successEnvelope struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type errorEnvelope struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Detail  string `json:"detail,omitempty"`
}

// classify maps an error returned by a service to its response.
func classify(err error) *RequestError {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	switch {
	case errors.Is(err, interfaces.ErrValidation):
		return &RequestError{http.StatusBadRequest, CodeValidation, err}
	case errors.Is(err, interfaces.ErrVerificationFailed):
		return &RequestError{http.StatusBadRequest, CodeVerificationFailed, err}
	case errors.Is(err, errUnauthorized):
		return &RequestError{http.StatusUnauthorized, CodeUnauthorized, err}
	case errors.Is(err, interfaces.ErrForbidden):
		return &RequestError{http.StatusForbidden, CodeForbidden, err}
	case errors.Is(err, interfaces.ErrNotFound):
		return &RequestError{http.StatusNotFound, CodeNotFound, err}
	case errors.Is(err, interfaces.ErrLocked):
		return &RequestError{http.StatusConflict, CodeLocked, err}
	case errors.Is(err, interfaces.ErrPersistence):
		return &RequestError{http.StatusServiceUnavailable, CodePersistence, err}
	default:
		return &RequestError{http.StatusInternalServerError, CodeInternal, err}
	}
}

var publicMessages = map[string]string{
	CodeValidation:         "invalid request",
	CodeVerificationFailed: "failed verification",
	CodePersistence:        "temporarily unable to save, retry later",
	CodeUnauthorized:       "unauthorized",
	CodeForbidden:          "forbidden",
	CodeNotFound:           "not found",
	CodeLocked:             "account is busy, retry later",
	CodeInternal:           "internal error",
}

// writeError writes the error response. Validation messages are always
// returned; other detail only when debugErrors is set.
func writeError(w http.ResponseWriter, log *slog.Logger, debugErrors bool, err error) {
	reqErr := classify(err)

	resp := errorEnvelope{
		Message: publicMessages[reqErr.Code],
		Code:    reqErr.Code,
	}
	if reqErr.Code == CodeValidation || debugErrors {
		resp.Detail = reqErr.Err.Error()
	}

	if reqErr.StatusCode >= http.StatusInternalServerError {
		log.Error("Request failed", slog.String("code", reqErr.Code), "err", err)
	} else {
		log.Debug("Request rejected", slog.String("code", reqErr.Code), "err", err)
	}

	writeJSON(w, log, reqErr.StatusCode, resp)
}

func writeSuccess(w http.ResponseWriter, log *slog.Logger, data any) {
	writeJSON(w, log, http.StatusOK, successEnvelope{Message: "ok", Data: data})
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Failed to encode response", "err", err)
	}
}
