package sse

import (
	"slices"
	"sync"

	"github.com/amit-t/stream-llm/errors"
	"github.com/amit-t/stream-llm/logger"
)

// Channel fans one logical event out to many independently-lifecycled
// sessions. C is an opaque application state bag for the channel
// itself; S is the state type of its member sessions. Sessions
// deregister themselves automatically when they disconnect.
type Channel[C, S any] struct {
	// State is application-defined and entirely owned by the caller.
	State C

	log     *logger.Logger
	metrics Recorder

	mu       sync.RWMutex
	sessions map[*Session[S]]struct{}

	onRegister   []func(*Session[S])
	onDeregister []func(*Session[S])
	onBroadcast  []func(Event, int)
}

// NewChannel creates an empty broadcast channel. Only the logger and
// metrics options apply; everything else is session-level.
func NewChannel[C, S any](opts ...Option) *Channel[C, S] {
	o := newOptions(opts...)
	return &Channel[C, S]{
		log:      o.Logger,
		metrics:  o.Metrics,
		sessions: make(map[*Session[S]]struct{}),
	}
}

// Register adds a connected session to the channel. Registering the
// same session twice is a no-op. The channel subscribes to the
// session's disconnect so it can clean up after it without an explicit
// Deregister call.
func (ch *Channel[C, S]) Register(s *Session[S]) error {
	if s == nil {
		return errors.Configuration("register requires a session")
	}
	if !s.Connected() {
		return errors.State("register", "not connected")
	}

	ch.mu.Lock()
	if _, exists := ch.sessions[s]; exists {
		ch.mu.Unlock()
		return nil
	}
	ch.sessions[s] = struct{}{}
	observers := slices.Clone(ch.onRegister)
	total := len(ch.sessions)
	ch.mu.Unlock()

	s.OnDisconnect(func() {
		ch.Deregister(s)
	})

	ch.log.Debug("session registered", logger.Fields("sessions", total))
	for _, fn := range observers {
		fn(s)
	}
	return nil
}

// Deregister removes a session from the channel. Removing an unknown
// session is a no-op; observers are notified only when a removal
// actually happened. Reports whether the session was removed.
func (ch *Channel[C, S]) Deregister(s *Session[S]) bool {
	if s == nil {
		return false
	}

	ch.mu.Lock()
	if _, exists := ch.sessions[s]; !exists {
		ch.mu.Unlock()
		return false
	}
	delete(ch.sessions, s)
	observers := slices.Clone(ch.onDeregister)
	total := len(ch.sessions)
	ch.mu.Unlock()

	ch.log.Debug("session deregistered", logger.Fields("sessions", total))
	for _, fn := range observers {
		fn(s)
	}
	return true
}

// BroadcastOption configures a single broadcast call.
type BroadcastOption[S any] func(*broadcastConfig[S])

type broadcastConfig[S any] struct {
	eventType string
	id        string
	filter    func(*Session[S]) bool
}

// WithBroadcastType sets the event type for every recipient.
func WithBroadcastType[S any](eventType string) BroadcastOption[S] {
	return func(bc *broadcastConfig[S]) {
		if eventType != "" {
			bc.eventType = eventType
		}
	}
}

// WithBroadcastID sets an explicit shared event id for the broadcast.
func WithBroadcastID[S any](id string) BroadcastOption[S] {
	return func(bc *broadcastConfig[S]) { bc.id = id }
}

// WithFilter restricts delivery to sessions the predicate accepts.
func WithFilter[S any](fn func(*Session[S]) bool) BroadcastOption[S] {
	return func(bc *broadcastConfig[S]) { bc.filter = fn }
}

// Broadcast pushes one logical event to every registered session that
// passes the filter. All recipients see the same event id, so clients
// can correlate the event across sessions. A failing recipient (for
// example one that disconnected between filtering and pushing) never
// blocks delivery to the rest. Returns the resolved event id.
func (ch *Channel[C, S]) Broadcast(data any, opts ...BroadcastOption[S]) string {
	bc := broadcastConfig[S]{eventType: EventTypeMessage}
	for _, opt := range opts {
		opt(&bc)
	}
	if bc.id == "" {
		bc.id = newEventID()
	}

	ch.mu.RLock()
	recipients := make([]*Session[S], 0, len(ch.sessions))
	for s := range ch.sessions {
		if bc.filter == nil || bc.filter(s) {
			recipients = append(recipients, s)
		}
	}
	observers := slices.Clone(ch.onBroadcast)
	ch.mu.RUnlock()

	delivered := 0
	for _, s := range recipients {
		if err := s.Push(data, WithType(bc.eventType), WithID(bc.id)); err != nil {
			// Per-recipient failures are isolated from the rest.
			ch.log.Warn("broadcast delivery failed", logger.ErrorFields("broadcast", err))
			continue
		}
		delivered++
	}

	ch.metrics.BroadcastSent(delivered)
	ch.log.Debug("broadcast sent", logger.Fields(
		logger.FieldEventID, bc.id,
		logger.FieldEventType, bc.eventType,
		"recipients", delivered,
	))

	ev := Event{Data: data, Type: bc.eventType, ID: bc.id}
	for _, fn := range observers {
		fn(ev, delivered)
	}
	return bc.id
}

// OnRegister registers fn to observe successful registrations.
func (ch *Channel[C, S]) OnRegister(fn func(*Session[S])) {
	if fn == nil {
		return
	}
	ch.mu.Lock()
	ch.onRegister = append(ch.onRegister, fn)
	ch.mu.Unlock()
}

// OnDeregister registers fn to observe actual removals.
func (ch *Channel[C, S]) OnDeregister(fn func(*Session[S])) {
	if fn == nil {
		return
	}
	ch.mu.Lock()
	ch.onDeregister = append(ch.onDeregister, fn)
	ch.mu.Unlock()
}

// OnBroadcast registers fn to observe each broadcast call once, with
// the delivered recipient count.
func (ch *Channel[C, S]) OnBroadcast(fn func(Event, int)) {
	if fn == nil {
		return
	}
	ch.mu.Lock()
	ch.onBroadcast = append(ch.onBroadcast, fn)
	ch.mu.Unlock()
}

// ActiveSessions returns a snapshot of the registered sessions.
func (ch *Channel[C, S]) ActiveSessions() []*Session[S] {
	ch.mu.RLock()
	defer ch.mu.RUnlock()

	sessions := make([]*Session[S], 0, len(ch.sessions))
	for s := range ch.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// SessionCount returns the number of registered sessions.
func (ch *Channel[C, S]) SessionCount() int {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return len(ch.sessions)
}
