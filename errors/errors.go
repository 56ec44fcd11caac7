// Package errors provides unified error handling for the streaming kit.
// It implements structured error types with machine-readable codes,
// HTTP status mapping, and retryable detection.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the recommended HTTP status code for this error.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// --- Common Error Constructors ---

// Configuration creates a new AppError for a malformed or mismatched
// construction input. Fatal at the call site, never retried.
func Configuration(reason string) *AppError {
	return &AppError{
		Code: ErrCodeConfiguration, Message: reason,
		HTTPStatus: http.StatusInternalServerError, Retryable: false,
	}
}

// State creates a new AppError for an operation attempted in the wrong
// lifecycle state.
func State(operation, state string) *AppError {
	return &AppError{
		Code: ErrCodeState, Message: fmt.Sprintf("cannot %s while session is %s", operation, state),
		HTTPStatus: http.StatusConflict, Retryable: false,
		Details: map[string]any{"operation": operation, "state": state},
	}
}

// Serialization creates a new AppError for a failed serializer or
// sanitizer hook.
func Serialization(cause error) *AppError {
	return &AppError{
		Code: ErrCodeSerialization, Message: "payload could not be serialized for the wire",
		HTTPStatus: http.StatusInternalServerError, Retryable: false, Cause: cause,
	}
}

// Transport creates a new AppError for a failure propagated from an
// external producer or the underlying transport.
func Transport(operation string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeTransport, Message: fmt.Sprintf("transport failure during %s", operation),
		HTTPStatus: http.StatusBadGateway, Retryable: true,
		Details: map[string]any{"operation": operation}, Cause: cause,
	}
}

// Timeout creates a new AppError for a request that timed out.
func Timeout(operation string) *AppError {
	return &AppError{
		Code: ErrCodeTimeout, Message: "the operation took too long",
		HTTPStatus: http.StatusGatewayTimeout, Retryable: true,
		Details: map[string]any{"operation": operation},
	}
}

// Internal creates a new AppError for an unexpected internal failure.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "an unexpected error occurred",
		HTTPStatus: http.StatusInternalServerError, Retryable: false, Cause: cause,
	}
}

// --- Kind predicates ---

// As extracts an *AppError from err's chain, or nil.
func As(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// hasCode reports whether err carries the given error code.
func hasCode(err error, code ErrorCode) bool {
	if appErr := As(err); appErr != nil {
		return appErr.Code == code
	}
	return false
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool { return hasCode(err, ErrCodeConfiguration) }

// IsState reports whether err is a lifecycle state error.
func IsState(err error) bool { return hasCode(err, ErrCodeState) }

// IsSerialization reports whether err is a serialization error.
func IsSerialization(err error) bool { return hasCode(err, ErrCodeSerialization) }

// IsTransport reports whether err is a transport error.
func IsTransport(err error) bool { return hasCode(err, ErrCodeTransport) }
