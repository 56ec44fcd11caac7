package sse

import (
	"context"
	"fmt"

	"github.com/amit-t/stream-llm/component"
)

// Component wraps a broadcast Channel as a lifecycle-managed
// component. Register it with the component registry so Start/Stop are
// handled automatically and Health reports the live session count.
type Component[C, S any] struct {
	channel *Channel[C, S]
	path    string
}

// ensure Component satisfies component.Component and Describable.
var (
	_ component.Component   = (*Component[any, any])(nil)
	_ component.Describable = (*Component[any, any])(nil)
)

// NewComponent creates a new streaming component with a fresh Channel.
func NewComponent[C, S any](path string, opts ...Option) *Component[C, S] {
	return &Component[C, S]{
		channel: NewChannel[C, S](opts...),
		path:    path,
	}
}

// Channel returns the underlying Channel for broadcasting and
// session management.
func (c *Component[C, S]) Channel() *Channel[C, S] { return c.channel }

// Name returns the component name.
func (c *Component[C, S]) Name() string { return "sse" }

// Start is a no-op: sessions attach lazily as clients connect.
func (c *Component[C, S]) Start(_ context.Context) error { return nil }

// Stop closes every registered session so the server can drain.
func (c *Component[C, S]) Stop(_ context.Context) error {
	for _, sess := range c.channel.ActiveSessions() {
		sess.Close()
	}
	return nil
}

// Health returns the health status of the streaming channel.
func (c *Component[C, S]) Health(_ context.Context) component.Health {
	return component.Health{
		Name:    c.Name(),
		Status:  component.StatusHealthy,
		Message: fmt.Sprintf("%d sessions connected", c.channel.SessionCount()),
	}
}

// Describe returns infrastructure summary info for startup display.
func (c *Component[C, S]) Describe() component.Description {
	return component.Description{
		Name:    "SSE Channel",
		Type:    "sse",
		Details: fmt.Sprintf("Path: %s", c.path),
	}
}
