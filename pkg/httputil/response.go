package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/utafrali/posledger/pkg/errors"
	"github.com/utafrali/posledger/pkg/logger"
	"github.com/utafrali/posledger/pkg/validator"
)

// Response is the JSON envelope returned by every endpoint.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse is the error half of the envelope.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	Details   map[string]any    `json:"details,omitempty"`
	Retryable bool              `json:"retryable,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; an encode failure cannot be reported.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err onto the envelope. AppErrors carry their own code,
// status and details; sentinel errors get generic codes. 5xx responses are
// logged with the request-scoped logger when one is present.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context(), fallback)
	requestID := logger.CorrelationIDFromContext(r.Context())

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Status >= http.StatusInternalServerError {
			logInternal(l, r, err)
		}
		WriteJSON(w, appErr.Status, Response{Error: &ErrorResponse{
			Code:      appErr.Code,
			Message:   appErr.Message,
			Details:   appErr.Details,
			Retryable: appErr.Retryable,
			RequestID: requestID,
		}})
		return
	}

	status := http.StatusInternalServerError
	code := "INTERNAL_ERROR"
	message := "an internal error occurred"

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		status, code, message = http.StatusNotFound, "NOT_FOUND", "resource not found"
	case errors.Is(err, apperrors.ErrAlreadyExists):
		status, code, message = http.StatusConflict, "ALREADY_EXISTS", "resource already exists"
	case errors.Is(err, apperrors.ErrInvalidInput):
		status, code, message = http.StatusBadRequest, "INVALID_INPUT", err.Error()
	case errors.Is(err, apperrors.ErrConflict):
		status, code, message = http.StatusConflict, "CONFLICT", err.Error()
	case errors.Is(err, apperrors.ErrServiceUnavail):
		status, code, message = http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "service temporarily unavailable"
	}

	if status >= http.StatusInternalServerError {
		logInternal(l, r, err)
	}

	WriteJSON(w, status, Response{Error: &ErrorResponse{Code: code, Message: message, RequestID: requestID}})
}

func logInternal(l *slog.Logger, r *http.Request, err error) {
	l.ErrorContext(r.Context(), "internal error",
		slog.String("error", err.Error()),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)
}

// WriteValidationError writes a 400 with per-field messages when err is a
// validator.ValidationError.
func WriteValidationError(w http.ResponseWriter, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteJSON(w, http.StatusBadRequest, Response{Error: &ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "request validation failed",
			Fields:  valErr.Fields(),
		}})
		return
	}

	WriteJSON(w, http.StatusBadRequest, Response{Error: &ErrorResponse{Code: "INVALID_INPUT", Message: err.Error()}})
}

// WriteBadParam writes a 400 INVALID_PARAMETER response.
func WriteBadParam(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusBadRequest, Response{Error: &ErrorResponse{Code: "INVALID_PARAMETER", Message: message}})
}
