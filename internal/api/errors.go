package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/errly-io/errly/internal/api/middleware"
)

// Stable error codes clients branch on. The human-readable message may
// change; these strings may not.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeValidationError    = "VALIDATION_ERROR"
	CodeInvalidTimestamp   = "INVALID_TIMESTAMP"
	CodeIngestFailed       = "INGEST_FAILED"
	CodeNotFound           = "NOT_FOUND"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// APIError is the Errly error envelope: a human-readable message plus a
// stable symbolic code.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// BadRequest builds a 400 error for malformed request structure.
func BadRequest(message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Message: message, Code: CodeBadRequest}
}

// ValidationError builds a 400 error for payloads that parse but fail
// field-level validation.
func ValidationError(message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Message: message, Code: CodeValidationError}
}

// InvalidTimestamp builds a 400 error for unparseable event timestamps.
func InvalidTimestamp(message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Message: message, Code: CodeInvalidTimestamp}
}

// IngestFailed builds a 500 error for storage failures during ingestion.
// The message is fixed so clients can retry on it without string matching.
func IngestFailed() *APIError {
	return &APIError{Status: http.StatusInternalServerError, Message: "ingest_failed", Code: CodeIngestFailed}
}

// NotFound builds a 404 error.
func NotFound(message string) *APIError {
	return &APIError{Status: http.StatusNotFound, Message: message, Code: CodeNotFound}
}

// InternalServerError builds a 500 error.
func InternalServerError(message string) *APIError {
	return &APIError{Status: http.StatusInternalServerError, Message: message, Code: CodeInternalError}
}

// ServiceUnavailable builds a 503 error.
func ServiceUnavailable(message string) *APIError {
	return &APIError{Status: http.StatusServiceUnavailable, Message: message, Code: CodeServiceUnavailable}
}

// WriteErrorResponse writes the error envelope and logs the failure with the
// request ID for traceability.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, apiErr *APIError) {
	requestID := middleware.GetRequestID(r.Context())

	logger.Warn("request failed",
		slog.Int("status", apiErr.Status),
		slog.String("code", apiErr.Code),
		slog.String("message", apiErr.Message),
		slog.String("path", r.URL.Path),
		slog.String("request_id", requestID),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)

	if err := json.NewEncoder(w).Encode(apiErr); err != nil {
		logger.Error("failed to encode error response",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
	}
}

// writeJSON writes a success payload, falling back to a 500 envelope when
// encoding fails before headers are sent.
func writeJSON(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to encode response",
			slog.String("request_id", middleware.GetRequestID(r.Context())),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, logger, InternalServerError("Failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if _, err := w.Write(data); err != nil {
		logger.Error("failed to write response",
			slog.String("request_id", middleware.GetRequestID(r.Context())),
			slog.String("error", err.Error()),
		)
	}
}
