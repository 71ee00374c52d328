// Error handling utilities for the admin API. Full errors are logged
// server-side; clients get sanitized messages.

package admin

import (
	"log/slog"

	"github.com/getfaultd/faultd/pkg/fault"
)

// Safe error messages for client responses.
const (
	// ErrMsgInternalError is returned for unexpected internal errors.
	ErrMsgInternalError = "An internal error occurred"

	// ErrMsgInvalidJSON is returned for JSON parsing errors.
	ErrMsgInvalidJSON = "Invalid JSON in request body"

	// ErrMsgOperationFailed is returned for generic operation failures.
	ErrMsgOperationFailed = "Operation failed"

	// ErrMsgNotFound is returned when a resource is not found.
	ErrMsgNotFound = "Resource not found"
)

// sanitizeError logs the full error server-side and returns a message
// safe for the client. Lookup misses keep their detail: the available
// names are part of the API contract, not an internal.
func sanitizeError(err error, log *slog.Logger, operation string, details ...any) string {
	if log != nil {
		args := []any{"component", "admin", "operation", operation, "error", err}
		args = append(args, details...)
		log.Error("operation failed", args...)
	}

	if fault.IsNotFound(err) {
		return err.Error()
	}
	return ErrMsgOperationFailed
}

// sanitizeJSONError logs a body-parsing failure and returns the generic
// message.
func sanitizeJSONError(err error, log *slog.Logger) string {
	if log != nil {
		log.Debug("JSON parsing failed", "component", "admin", "error", err)
	}
	return ErrMsgInvalidJSON
}
