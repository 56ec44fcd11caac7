package sse

// Generic event type constants (infrastructure only).
// Domain-specific event types should be defined in your application.
const (
	// EventTypeMessage is the protocol default; frames of this type omit
	// the "event:" line entirely.
	EventTypeMessage = "message"

	// EventTypeConnected is conventionally sent once after a client
	// successfully connects.
	EventTypeConnected = "connected"

	// EventTypeError is sent when an error occurs.
	EventTypeError = "error"
)

// Event describes one pushed event as seen by push observers.
type Event struct {
	// Data is the payload exactly as the caller supplied it, before
	// serialization.
	Data any
	// Type is the resolved event type name.
	Type string
	// ID is the resolved event identifier.
	ID string
}
