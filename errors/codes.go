package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Fatal call-site errors (never retryable).
const (
	// ErrCodeConfiguration indicates a malformed or mismatched construction
	// input, such as pairing a request with the wrong transport's response.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION_ERROR"
	// ErrCodeState indicates an operation attempted against a session that
	// is not in the required lifecycle state.
	ErrCodeState ErrorCode = "STATE_ERROR"
	// ErrCodeSerialization indicates a serializer or sanitizer hook failed
	// while encoding a payload.
	ErrCodeSerialization ErrorCode = "SERIALIZATION_ERROR"
)

// Upstream errors.
const (
	// ErrCodeTransport indicates a failure propagated from an external
	// producer or the underlying transport during streaming.
	ErrCodeTransport ErrorCode = "TRANSPORT_ERROR"
	// ErrCodeTimeout indicates an operation exceeded its deadline.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeInternal indicates an unexpected internal failure.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeConfiguration: false,
	ErrCodeState:         false,
	ErrCodeSerialization: false,
	ErrCodeTransport:     true,
	ErrCodeTimeout:       true,
	ErrCodeInternal:      false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
