// Package observability provides OpenTelemetry tracing and metrics setup,
// plus pre-built instruments for stream delivery (sessions, pushed events,
// broadcasts). StreamMetrics satisfies sse.Recorder so it can be plugged
// into a channel or session via sse.WithMetrics.
package observability
