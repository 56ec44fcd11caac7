package sse

// Recorder receives instrumentation callbacks from sessions and
// channels. The observability package provides an OpenTelemetry-backed
// implementation; the default is a no-op.
type Recorder interface {
	// SessionConnected is called once when a session finishes bootstrap.
	SessionConnected(transport string)
	// SessionDisconnected is called exactly once per session teardown.
	SessionDisconnected(transport string)
	// EventPushed is called per event written, with the frame size.
	EventPushed(eventType string, bytes int)
	// BroadcastSent is called once per broadcast with the recipient count.
	BroadcastSent(recipients int)
}

type nopRecorder struct{}

func (nopRecorder) SessionConnected(string)    {}
func (nopRecorder) SessionDisconnected(string) {}
func (nopRecorder) EventPushed(string, int)    {}
func (nopRecorder) BroadcastSent(int)          {}
