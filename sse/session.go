package sse

import (
	"context"
	"iter"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/amit-t/stream-llm/errors"
	"github.com/amit-t/stream-llm/logger"
)

// sessionState is the lifecycle position of a Session.
type sessionState int

const (
	statePending sessionState = iota
	stateConnected
	stateDisconnected
)

func (s sessionState) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateConnected:
		return "connected"
	case stateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Resumption hints accepted from the client, in lookup order.
const (
	lastEventIDHeader     = "Last-Event-ID"
	lastEventIDQueryParam = "lastEventId"
	lastEventIDAltParam   = "evs_last_event_id"
)

// Query parameters that request oversized comment padding, a
// compatibility workaround for polyfills and buffering proxies that
// expect a minimum preamble size before delivering events.
const (
	paddingQueryParam  = "padding"
	preambleQueryParam = "evs_preamble"
	paddingLength      = 2048
)

// Chunk is one piece of an externally produced stream, in the shape
// streaming clients conventionally emit: a value or a terminal error.
type Chunk struct {
	// Data is the chunk payload.
	Data any
	// Err, when set, aborts consumption and rejects the Stream call.
	Err error
}

// Session owns one client's open push channel: exactly one Connection,
// one private Buffer, and the pending -> connected -> disconnected
// state machine. S is an opaque application state bag the core never
// inspects.
type Session[S any] struct {
	// State is application-defined and entirely owned by the caller.
	State S

	conn Connection
	buf  *Buffer
	opts *Options
	log  *logger.Logger

	mu           sync.Mutex
	state        sessionState
	lastEventID  string
	onConnect    []func()
	onDisconnect []func()
	onPush       []func(Event)

	done         chan struct{}
	shutdownOnce sync.Once
}

// NewSession wraps a Connection in a pending session. No I/O happens
// until Connect runs. When the client supplied a resumption hint and
// trusting it is enabled, the session's last event id is seeded from
// the hint; the core never replays events itself.
func NewSession[S any](conn Connection, opts ...Option) (*Session[S], error) {
	if conn == nil {
		return nil, errors.Configuration("session requires a connection")
	}
	o := newOptions(opts...)

	s := &Session[S]{
		conn:  conn,
		buf:   NewBuffer(WithSerializer(o.Serializer), WithSanitizer(o.Sanitizer)),
		opts:  o,
		log:   o.Logger,
		state: statePending,
		done:  make(chan struct{}),
	}
	if o.TrustClientEventID {
		s.lastEventID = clientEventID(conn)
	}
	return s, nil
}

// clientEventID extracts the client's resumption hint from the request.
func clientEventID(conn Connection) string {
	if id := conn.RequestHeader().Get(lastEventIDHeader); id != "" {
		return id
	}
	q := conn.URL().Query()
	if id := q.Get(lastEventIDQueryParam); id != "" {
		return id
	}
	return q.Get(lastEventIDAltParam)
}

// Connect runs the bootstrap exactly once: commit the response head,
// emit optional padding and the retry directive, flush, start the
// heartbeat and the disconnect watcher, mark the session connected,
// and notify connect observers.
func (s *Session[S]) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Transport("connect", err)
	}

	s.mu.Lock()

	if s.state != statePending {
		s.mu.Unlock()
		return errors.State("connect", s.state.String())
	}

	if err := s.conn.SendHead(s.opts.StatusCode, s.responseHeaders()); err != nil {
		s.mu.Unlock()
		return err
	}

	q := s.conn.URL().Query()
	if q.Has(paddingQueryParam) || q.Has(preambleQueryParam) {
		s.buf.Comment(strings.Repeat(" ", paddingLength))
	}
	if s.opts.Retry > 0 {
		s.buf.Retry(s.opts.Retry)
	}
	if err := s.flushLocked(); err != nil {
		s.mu.Unlock()
		return err
	}

	s.state = stateConnected
	observers := slices.Clone(s.onConnect)
	lastID := s.lastEventID

	go s.watchDisconnect()
	if s.opts.KeepAlive > 0 {
		go s.heartbeatLoop(s.opts.KeepAlive)
	}
	s.mu.Unlock()

	s.opts.Metrics.SessionConnected(s.conn.Transport())
	s.log.Debug("session connected", logger.Fields(
		logger.FieldTransport, s.conn.Transport(),
		logger.FieldEventID, lastID,
	))
	for _, fn := range observers {
		fn()
	}
	return nil
}

// responseHeaders merges caller headers over the protocol defaults.
func (s *Session[S]) responseHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	for k, vs := range s.opts.Headers {
		h[http.CanonicalHeaderKey(k)] = vs
	}
	return h
}

// Connected reports whether the session is currently connected.
func (s *Session[S]) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateConnected
}

// LastEventID returns the identifier of the most recently pushed
// event, or the client's resumption hint before any push.
func (s *Session[S]) LastEventID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEventID
}

// Push sends one event immediately: exactly one write per call. The
// event id defaults to a generated identifier and always becomes the
// session's last event id.
func (s *Session[S]) Push(data any, opts ...EventOption) error {
	ec := resolveEventOptions(opts...)

	s.mu.Lock()
	err := s.pushLocked(data, &ec)
	var observers []func(Event)
	if err == nil {
		observers = slices.Clone(s.onPush)
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}
	ev := Event{Data: data, Type: ec.eventType, ID: ec.id}
	for _, fn := range observers {
		fn(ev)
	}
	return nil
}

// pushLocked frames and writes one event. Caller holds s.mu.
func (s *Session[S]) pushLocked(data any, ec *eventConfig) error {
	if s.state != stateConnected {
		return errors.State("push", s.state.String())
	}
	if ec.id == "" {
		ec.id = newEventID()
	}
	if err := s.buf.Push(data, WithType(ec.eventType), WithID(ec.id)); err != nil {
		return err
	}

	text := s.buf.Read()
	s.buf.Clear()
	if err := s.conn.SendChunk(text); err != nil {
		return err
	}

	s.lastEventID = ec.id
	s.opts.Metrics.EventPushed(ec.eventType, len(text))
	return nil
}

// Batch hands the session's private buffer to fn; everything fn queues
// is flushed in a single write after fn returns. This is the only path
// that coalesces multiple events into one write. A failing fn discards
// the queued batch so no partial batch reaches the wire.
func (s *Session[S]) Batch(fn func(*Buffer) error) error {
	if fn == nil {
		return errors.Configuration("batch requires a callback")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateConnected {
		return errors.State("batch", s.state.String())
	}
	if err := fn(s.buf); err != nil {
		s.buf.Clear()
		return err
	}
	return s.flushLocked()
}

// flushLocked writes and clears the accumulated buffer. Caller holds s.mu.
func (s *Session[S]) flushLocked() error {
	text := s.buf.Read()
	if text == "" {
		return nil
	}
	s.buf.Clear()
	return s.conn.SendChunk(text)
}

// Stream consumes chunks from src as they arrive, pushing each one
// until src closes. The first source, transform, or push failure
// rejects the call; chunks already pushed stay delivered. A disconnect
// mid-stream surfaces as the next push's StateError, which callers
// must treat as their signal to stop the producer.
func (s *Session[S]) Stream(ctx context.Context, src <-chan Chunk, opts ...StreamOption) error {
	if src == nil {
		return errors.Configuration("stream requires a source channel")
	}
	sc := resolveStreamOptions(opts...)

	index := 0
	for {
		select {
		case <-ctx.Done():
			return errors.Transport("stream", ctx.Err())
		case chunk, ok := <-src:
			if !ok {
				return nil
			}
			if chunk.Err != nil {
				return errors.Transport("stream", chunk.Err)
			}
			data := chunk.Data
			if sc.transform != nil {
				transformed, err := sc.transform(data)
				if err != nil {
					return errors.Transport("transform", err)
				}
				data = transformed
			}
			if err := s.Push(data, WithType(sc.eventType), WithID(sc.eventID(index))); err != nil {
				return err
			}
			index++
		}
	}
}

// Iterate pushes one event per sequence value, flushing per item, in
// source order. With an id prefix configured, ids are deterministic
// "<prefix>-<index>" resumption keys.
func (s *Session[S]) Iterate(ctx context.Context, seq iter.Seq2[any, error], opts ...StreamOption) error {
	if seq == nil {
		return errors.Configuration("iterate requires a sequence")
	}
	sc := resolveStreamOptions(opts...)

	index := 0
	for v, err := range seq {
		if err != nil {
			return errors.Transport("iterate", err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Transport("iterate", ctxErr)
		}
		data := v
		if sc.transform != nil {
			transformed, tErr := sc.transform(data)
			if tErr != nil {
				return errors.Transport("transform", tErr)
			}
			data = transformed
		}
		if err := s.Push(data, WithType(sc.eventType), WithID(sc.eventID(index))); err != nil {
			return err
		}
		index++
	}
	return nil
}

// OnConnect registers fn to run once the session finishes bootstrap.
// If the session already connected, fn runs immediately.
func (s *Session[S]) OnConnect(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	if s.state != statePending {
		s.mu.Unlock()
		fn()
		return
	}
	s.onConnect = append(s.onConnect, fn)
	s.mu.Unlock()
}

// OnDisconnect registers fn to run when the session tears down. If the
// session is already disconnected, fn runs immediately.
func (s *Session[S]) OnDisconnect(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	if s.state == stateDisconnected {
		s.mu.Unlock()
		fn()
		return
	}
	s.onDisconnect = append(s.onDisconnect, fn)
	s.mu.Unlock()
}

// OnPush registers fn to observe every successfully pushed event.
func (s *Session[S]) OnPush(fn func(Event)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.onPush = append(s.onPush, fn)
	s.mu.Unlock()
}

// Done is closed exactly once when the session disconnects.
func (s *Session[S]) Done() <-chan struct{} {
	return s.done
}

// Close tears down a connected session. On a session that never
// connected it only releases the connection; the lifecycle invariant
// that disconnection follows connection is preserved.
func (s *Session[S]) Close() {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()

	if st == stateConnected {
		s.shutdown()
		return
	}
	s.conn.Cleanup()
}

// watchDisconnect waits for the transport's abort signal.
func (s *Session[S]) watchDisconnect() {
	select {
	case <-s.conn.Context().Done():
		s.shutdown()
	case <-s.done:
	}
}

// heartbeatLoop emits a comment frame on a fixed interval, independent
// of application pushes, until the session tears down.
func (s *Session[S]) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.keepAlive()
		}
	}
}

// keepAlive writes one heartbeat comment frame.
func (s *Session[S]) keepAlive() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateConnected {
		return
	}
	var b strings.Builder
	writeCommentFrame(&b, "keep-alive")
	if err := s.conn.SendChunk(b.String()); err != nil {
		s.log.Warn("heartbeat write failed", logger.ErrorFields("keep-alive", err))
	}
}

// shutdown runs the teardown path exactly once: release the
// connection, stop the heartbeat, mark the session terminal, and
// notify observers.
func (s *Session[S]) shutdown() {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		s.state = stateDisconnected
		observers := slices.Clone(s.onDisconnect)
		lastID := s.lastEventID
		s.mu.Unlock()

		s.conn.Cleanup()
		close(s.done)

		s.opts.Metrics.SessionDisconnected(s.conn.Transport())
		s.log.Debug("session disconnected", logger.Fields(
			logger.FieldTransport, s.conn.Transport(),
			logger.FieldEventID, lastID,
		))
		for _, fn := range observers {
			fn()
		}
	})
}

// Upgrade adapts a net/http request/response pair into a connected
// session, picking the HTTP/2 or HTTP/1.x adapter by inspecting the
// request once.
func Upgrade[S any](w http.ResponseWriter, r *http.Request, opts ...Option) (*Session[S], error) {
	if r == nil {
		return nil, errors.Configuration("upgrade requires a request")
	}

	var (
		conn Connection
		err  error
	)
	if r.ProtoMajor == 2 {
		conn, err = NewHTTP2Connection(w, r)
	} else {
		conn, err = NewHTTPConnection(w, r)
	}
	if err != nil {
		return nil, err
	}

	sess, err := NewSession[S](conn, opts...)
	if err != nil {
		return nil, err
	}
	if err := sess.Connect(r.Context()); err != nil {
		return nil, err
	}
	return sess, nil
}
