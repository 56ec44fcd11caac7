package sse

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/amit-t/stream-llm/errors"
)

// mockConn is an in-memory Connection that records everything written
// through it. Safe for the session's background goroutines.
type mockConn struct {
	mu       sync.Mutex
	url      *url.URL
	header   http.Header
	headSent bool
	status   int
	headers  http.Header
	writes   []string
	chunkErr error
	cleanups int

	ctx    context.Context
	cancel context.CancelFunc
}

var _ Connection = (*mockConn)(nil)

func newMockConn(target string) *mockConn {
	u, err := url.Parse(target)
	if err != nil {
		panic(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &mockConn{
		url:    u,
		header: http.Header{},
		ctx:    ctx,
		cancel: cancel,
	}
}

func (m *mockConn) URL() *url.URL              { return m.url }
func (m *mockConn) RequestHeader() http.Header { return m.header }

func (m *mockConn) SendHead(status int, headers http.Header) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.headSent {
		return nil
	}
	m.status = status
	m.headers = headers
	m.headSent = true
	return nil
}

func (m *mockConn) SendChunk(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chunkErr != nil {
		return m.chunkErr
	}
	m.writes = append(m.writes, text)
	return nil
}

func (m *mockConn) Cleanup() {
	m.mu.Lock()
	m.cleanups++
	m.mu.Unlock()
	m.cancel()
}

func (m *mockConn) Context() context.Context { return m.ctx }
func (m *mockConn) Transport() string        { return "mock" }

func (m *mockConn) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes)
}

func (m *mockConn) write(i int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[i]
}

func (m *mockConn) allWrites() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return strings.Join(m.writes, "")
}

func (m *mockConn) cleanupCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleanups
}

// connectedSession builds and connects a session over a fresh mock
// connection with heartbeats and the retry directive disabled, so
// writes in tests are exactly the writes the test makes.
func connectedSession(t *testing.T, opts ...Option) (*Session[any], *mockConn) {
	t.Helper()
	conn := newMockConn("/events")
	all := append([]Option{WithKeepAlive(-1), WithRetry(-1)}, opts...)
	sess, err := NewSession[any](conn, all...)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("expected no error connecting, got %v", err)
	}
	return sess, conn
}

func TestNewSessionRequiresConnection(t *testing.T) {
	if _, err := NewSession[any](nil); !errors.IsConfiguration(err) {
		t.Errorf("expected configuration error for nil connection, got %v", err)
	}
}

func TestSessionPushBeforeConnect(t *testing.T) {
	sess, err := NewSession[any](newMockConn("/events"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// An alternative design would queue early pushes until Connect runs;
	// here they fail fast so callers bootstrap before producing.
	pushErr := sess.Push("early")
	if !errors.IsState(pushErr) {
		t.Errorf("expected state error for push before connect, got %v", pushErr)
	}
	if sess.Connected() {
		t.Error("expected session to stay pending")
	}
}

func TestSessionConnectBootstrap(t *testing.T) {
	conn := newMockConn("/events")
	sess, err := NewSession[any](conn, WithKeepAlive(-1))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !sess.Connected() {
		t.Error("expected session connected")
	}
	if conn.status != http.StatusOK {
		t.Errorf("expected status 200, got %d", conn.status)
	}
	if ct := conn.headers.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected text/event-stream content type, got '%s'", ct)
	}
	if cc := conn.headers.Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("expected no-cache, got '%s'", cc)
	}
	if ab := conn.headers.Get("X-Accel-Buffering"); ab != "no" {
		t.Errorf("expected X-Accel-Buffering no, got '%s'", ab)
	}

	// The default retry directive is part of the bootstrap flush.
	if conn.writeCount() != 1 {
		t.Fatalf("expected a single bootstrap write, got %d", conn.writeCount())
	}
	if conn.write(0) != "retry: 2000\n\n" {
		t.Errorf("expected retry directive, got %q", conn.write(0))
	}
}

func TestSessionConnectCustomHeadersWin(t *testing.T) {
	conn := newMockConn("/events")
	sess, _ := NewSession[any](conn,
		WithKeepAlive(-1), WithRetry(-1),
		WithHeader("Cache-Control", "no-store"),
		WithHeader("X-Custom", "yes"),
		WithStatusCode(http.StatusAccepted))

	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if conn.status != http.StatusAccepted {
		t.Errorf("expected status 202, got %d", conn.status)
	}
	if cc := conn.headers.Get("Cache-Control"); cc != "no-store" {
		t.Errorf("expected caller header to win, got '%s'", cc)
	}
	if conn.headers.Get("X-Custom") != "yes" {
		t.Error("expected custom header present")
	}
}

func TestSessionConnectTwice(t *testing.T) {
	sess, _ := connectedSession(t)

	err := sess.Connect(context.Background())
	if !errors.IsState(err) {
		t.Errorf("expected state error for second connect, got %v", err)
	}
}

func TestSessionConnectCanceledContext(t *testing.T) {
	conn := newMockConn("/events")
	sess, _ := NewSession[any](conn)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sess.Connect(ctx)
	if !errors.IsTransport(err) {
		t.Errorf("expected transport error for canceled context, got %v", err)
	}
	if sess.Connected() {
		t.Error("expected session to stay pending")
	}
}

func TestSessionConnectPadding(t *testing.T) {
	conn := newMockConn("/events?padding=1")
	sess, _ := NewSession[any](conn, WithKeepAlive(-1), WithRetry(-1))

	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if conn.writeCount() != 1 {
		t.Fatalf("expected one bootstrap write, got %d", conn.writeCount())
	}
	expected := ": " + strings.Repeat(" ", 2048) + "\n\n"
	if conn.write(0) != expected {
		t.Errorf("expected padding comment of 2048 spaces, got %d bytes", len(conn.write(0)))
	}
}

func TestSessionOnConnect(t *testing.T) {
	conn := newMockConn("/events")
	sess, _ := NewSession[any](conn, WithKeepAlive(-1), WithRetry(-1))

	var notifications int
	sess.OnConnect(func() { notifications++ })

	if notifications != 0 {
		t.Fatal("expected no notification before connect")
	}
	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if notifications != 1 {
		t.Errorf("expected one connect notification, got %d", notifications)
	}

	// Registering after the fact fires immediately.
	var late bool
	sess.OnConnect(func() { late = true })
	if !late {
		t.Error("expected immediate callback on an already connected session")
	}
}

func TestSessionOnConnectNotFiredOnFailedConnect(t *testing.T) {
	conn := newMockConn("/events")
	sess, _ := NewSession[any](conn)

	var fired bool
	sess.OnConnect(func() { fired = true })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sess.Connect(ctx); err == nil {
		t.Fatal("expected connect to fail")
	}
	if fired {
		t.Error("expected no notification for a failed bootstrap")
	}
}

func TestSessionPushFrame(t *testing.T) {
	sess, conn := connectedSession(t)

	err := sess.Push(map[string]int{"x": 1}, WithType("update"), WithID("e1"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if conn.writeCount() != 1 {
		t.Fatalf("expected one write per push, got %d", conn.writeCount())
	}
	expected := "id: e1\nevent: update\ndata: {\"x\":1}\n\n"
	if conn.write(0) != expected {
		t.Errorf("expected %q, got %q", expected, conn.write(0))
	}
	if sess.LastEventID() != "e1" {
		t.Errorf("expected last event id 'e1', got '%s'", sess.LastEventID())
	}
}

func TestSessionPushGeneratesID(t *testing.T) {
	sess, conn := connectedSession(t)

	if err := sess.Push("hello"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if sess.LastEventID() == "" {
		t.Error("expected a generated last event id")
	}
	if !strings.HasPrefix(conn.write(0), "id: ") {
		t.Errorf("expected id line in frame, got %q", conn.write(0))
	}
}

func TestSessionPushSerializationFailure(t *testing.T) {
	sess, conn := connectedSession(t)

	err := sess.Push(make(chan int))
	if !errors.IsSerialization(err) {
		t.Errorf("expected serialization error, got %v", err)
	}
	if conn.writeCount() != 0 {
		t.Errorf("expected no write after failed serialization, got %d", conn.writeCount())
	}
	if sess.LastEventID() != "" {
		t.Errorf("expected last event id unchanged, got '%s'", sess.LastEventID())
	}
}

func TestSessionPushObserver(t *testing.T) {
	sess, _ := connectedSession(t)

	var events []Event
	sess.OnPush(func(ev Event) { events = append(events, ev) })

	if err := sess.Push("hello", WithType("greet"), WithID("g1")); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("expected one observed event, got %d", len(events))
	}
	if events[0].Type != "greet" || events[0].ID != "g1" || events[0].Data != "hello" {
		t.Errorf("unexpected observed event: %+v", events[0])
	}
}

func TestSessionResumption(t *testing.T) {
	t.Run("header", func(t *testing.T) {
		conn := newMockConn("/events?lastEventId=q1")
		conn.header.Set("Last-Event-ID", "h1")
		sess, _ := NewSession[any](conn)
		if sess.LastEventID() != "h1" {
			t.Errorf("expected header to win, got '%s'", sess.LastEventID())
		}
	})

	t.Run("query fallback", func(t *testing.T) {
		conn := newMockConn("/events?lastEventId=q1")
		sess, _ := NewSession[any](conn)
		if sess.LastEventID() != "q1" {
			t.Errorf("expected query hint, got '%s'", sess.LastEventID())
		}
	})

	t.Run("alternate query param", func(t *testing.T) {
		conn := newMockConn("/events?evs_last_event_id=a1")
		sess, _ := NewSession[any](conn)
		if sess.LastEventID() != "a1" {
			t.Errorf("expected alternate query hint, got '%s'", sess.LastEventID())
		}
	})

	t.Run("trust disabled", func(t *testing.T) {
		conn := newMockConn("/events?lastEventId=q1")
		conn.header.Set("Last-Event-ID", "h1")
		sess, _ := NewSession[any](conn, WithTrustClientEventID(false))
		if sess.LastEventID() != "" {
			t.Errorf("expected no seed with trust disabled, got '%s'", sess.LastEventID())
		}
	})
}

func TestSessionBatchSingleWrite(t *testing.T) {
	sess, conn := connectedSession(t)

	err := sess.Batch(func(buf *Buffer) error {
		if err := buf.Push("one", WithID("b1")); err != nil {
			return err
		}
		if err := buf.Push("two", WithID("b2")); err != nil {
			return err
		}
		buf.Comment("mid-batch")
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if conn.writeCount() != 1 {
		t.Fatalf("expected the whole batch in one write, got %d", conn.writeCount())
	}
	expected := "id: b1\ndata: one\n\nid: b2\ndata: two\n\n: mid-batch\n\n"
	if conn.write(0) != expected {
		t.Errorf("expected %q, got %q", expected, conn.write(0))
	}
}

func TestSessionBatchFailureDiscardsQueued(t *testing.T) {
	sess, conn := connectedSession(t)

	boom := fmt.Errorf("batch failed")
	err := sess.Batch(func(buf *Buffer) error {
		if err := buf.Push("staged"); err != nil {
			return err
		}
		return boom
	})
	if err != boom {
		t.Errorf("expected callback error returned, got %v", err)
	}
	if conn.writeCount() != 0 {
		t.Errorf("expected no writes from failed batch, got %d", conn.writeCount())
	}

	// A later push must not resurrect the discarded frames.
	if err := sess.Push("after", WithID("a1")); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if strings.Contains(conn.allWrites(), "staged") {
		t.Errorf("expected discarded batch to never reach the wire, got %q", conn.allWrites())
	}
}

func TestSessionBatchNilCallback(t *testing.T) {
	sess, _ := connectedSession(t)

	if err := sess.Batch(nil); !errors.IsConfiguration(err) {
		t.Errorf("expected configuration error for nil callback, got %v", err)
	}
}

func TestSessionBatchBeforeConnect(t *testing.T) {
	sess, _ := NewSession[any](newMockConn("/events"))

	err := sess.Batch(func(buf *Buffer) error { return nil })
	if !errors.IsState(err) {
		t.Errorf("expected state error, got %v", err)
	}
}

func TestSessionHeartbeat(t *testing.T) {
	conn := newMockConn("/events")
	sess, _ := NewSession[any](conn, WithKeepAlive(10*time.Millisecond), WithRetry(-1))

	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer sess.Close()

	time.Sleep(50 * time.Millisecond)

	if !strings.Contains(conn.allWrites(), ": keep-alive\n\n") {
		t.Errorf("expected heartbeat comment frames, got %q", conn.allWrites())
	}
}

func TestSessionDisconnectOnTransportAbort(t *testing.T) {
	sess, conn := connectedSession(t)

	var notifications int
	var mu sync.Mutex
	sess.OnDisconnect(func() {
		mu.Lock()
		notifications++
		mu.Unlock()
	})

	// Simulate the client going away.
	conn.cancel()

	select {
	case <-sess.Done():
	case <-time.After(time.Second):
		t.Fatal("expected session teardown after transport abort")
	}
	time.Sleep(10 * time.Millisecond)

	if sess.Connected() {
		t.Error("expected session disconnected")
	}
	mu.Lock()
	got := notifications
	mu.Unlock()
	if got != 1 {
		t.Errorf("expected exactly one disconnect notification, got %d", got)
	}

	err := sess.Push("late")
	if !errors.IsState(err) {
		t.Errorf("expected state error for push after disconnect, got %v", err)
	}
}

func TestSessionCloseIdempotent(t *testing.T) {
	sess, conn := connectedSession(t)

	var notifications int
	sess.OnDisconnect(func() { notifications++ })

	sess.Close()
	sess.Close()

	if notifications != 1 {
		t.Errorf("expected one disconnect notification, got %d", notifications)
	}
	if conn.cleanupCount() == 0 {
		t.Error("expected connection cleanup on close")
	}
	select {
	case <-sess.Done():
	default:
		t.Error("expected done channel closed after close")
	}
}

func TestSessionCloseBeforeConnect(t *testing.T) {
	conn := newMockConn("/events")
	sess, _ := NewSession[any](conn)

	var fired bool
	sess.OnDisconnect(func() { fired = true })

	sess.Close()

	if conn.cleanupCount() != 1 {
		t.Errorf("expected connection released, got %d cleanups", conn.cleanupCount())
	}
	// A session that never connected never disconnects.
	if fired {
		t.Error("expected no disconnect notification for a pending session")
	}
}

func TestSessionOnDisconnectAfterDisconnect(t *testing.T) {
	sess, _ := connectedSession(t)
	sess.Close()

	var fired bool
	sess.OnDisconnect(func() { fired = true })
	if !fired {
		t.Error("expected immediate callback on an already disconnected session")
	}
}

func TestSessionStream(t *testing.T) {
	sess, conn := connectedSession(t)

	src := make(chan Chunk, 3)
	src <- Chunk{Data: "a"}
	src <- Chunk{Data: "b"}
	src <- Chunk{Data: "c"}
	close(src)

	err := sess.Stream(context.Background(), src,
		WithEventType("token"), WithIDPrefix("gen"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if conn.writeCount() != 3 {
		t.Fatalf("expected three writes, got %d", conn.writeCount())
	}
	if conn.write(0) != "id: gen-0\nevent: token\ndata: a\n\n" {
		t.Errorf("unexpected first frame: %q", conn.write(0))
	}
	if conn.write(2) != "id: gen-2\nevent: token\ndata: c\n\n" {
		t.Errorf("unexpected last frame: %q", conn.write(2))
	}
	if sess.LastEventID() != "gen-2" {
		t.Errorf("expected last event id 'gen-2', got '%s'", sess.LastEventID())
	}
}

func TestSessionStreamNilSource(t *testing.T) {
	sess, _ := connectedSession(t)

	if err := sess.Stream(context.Background(), nil); !errors.IsConfiguration(err) {
		t.Errorf("expected configuration error for nil source, got %v", err)
	}
}

func TestSessionStreamSourceError(t *testing.T) {
	sess, conn := connectedSession(t)

	src := make(chan Chunk, 2)
	src <- Chunk{Data: "a"}
	src <- Chunk{Err: fmt.Errorf("upstream broke")}
	close(src)

	err := sess.Stream(context.Background(), src)
	if !errors.IsTransport(err) {
		t.Errorf("expected transport error, got %v", err)
	}
	// The chunk delivered before the failure stays delivered.
	if conn.writeCount() != 1 {
		t.Errorf("expected one successful write before failure, got %d", conn.writeCount())
	}
}

func TestSessionStreamContextCancel(t *testing.T) {
	sess, _ := connectedSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := make(chan Chunk)
	err := sess.Stream(ctx, src)
	if !errors.IsTransport(err) {
		t.Errorf("expected transport error for canceled context, got %v", err)
	}
}

func TestSessionStreamTransform(t *testing.T) {
	sess, conn := connectedSession(t)

	src := make(chan Chunk, 1)
	src <- Chunk{Data: "raw"}
	close(src)

	err := sess.Stream(context.Background(), src,
		WithIDPrefix("t"),
		WithTransform(func(v any) (any, error) {
			return strings.ToUpper(v.(string)), nil
		}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if conn.write(0) != "id: t-0\ndata: RAW\n\n" {
		t.Errorf("expected transformed payload, got %q", conn.write(0))
	}
}

func TestSessionStreamTransformError(t *testing.T) {
	sess, conn := connectedSession(t)

	src := make(chan Chunk, 1)
	src <- Chunk{Data: "raw"}
	close(src)

	err := sess.Stream(context.Background(), src,
		WithTransform(func(v any) (any, error) {
			return nil, fmt.Errorf("mapping failed")
		}))
	if !errors.IsTransport(err) {
		t.Errorf("expected transport error, got %v", err)
	}
	if conn.writeCount() != 0 {
		t.Errorf("expected no writes after transform failure, got %d", conn.writeCount())
	}
}

func TestSessionIterate(t *testing.T) {
	sess, conn := connectedSession(t)

	err := sess.Iterate(context.Background(), Values(1, 2, 3), WithIDPrefix("n"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if conn.writeCount() != 3 {
		t.Fatalf("expected three writes, got %d", conn.writeCount())
	}
	expected := "id: n-0\ndata: 1\n\nid: n-1\ndata: 2\n\nid: n-2\ndata: 3\n\n"
	if conn.allWrites() != expected {
		t.Errorf("expected %q, got %q", expected, conn.allWrites())
	}
}

func TestSessionIterateNilSequence(t *testing.T) {
	sess, _ := connectedSession(t)

	if err := sess.Iterate(context.Background(), nil); !errors.IsConfiguration(err) {
		t.Errorf("expected configuration error for nil sequence, got %v", err)
	}
}

func TestSessionIterateSequenceError(t *testing.T) {
	sess, conn := connectedSession(t)

	boom := fmt.Errorf("source exploded")
	seq := func(yield func(any, error) bool) {
		if !yield("a", nil) {
			return
		}
		yield(nil, boom)
	}

	err := sess.Iterate(context.Background(), seq)
	if !errors.IsTransport(err) {
		t.Errorf("expected transport error, got %v", err)
	}
	if conn.writeCount() != 1 {
		t.Errorf("expected one delivered item before failure, got %d", conn.writeCount())
	}
}

func TestUpgrade(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/events", nil)

	sess, err := Upgrade[any](w, r, WithKeepAlive(-1))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer sess.Close()

	if !sess.Connected() {
		t.Error("expected connected session from upgrade")
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected text/event-stream content type, got '%s'", ct)
	}
	if !strings.Contains(w.Body.String(), "retry: 2000\n\n") {
		t.Errorf("expected retry directive in bootstrap, got %q", w.Body.String())
	}
}

func TestUpgradeNilRequest(t *testing.T) {
	w := httptest.NewRecorder()

	if _, err := Upgrade[any](w, nil); !errors.IsConfiguration(err) {
		t.Errorf("expected configuration error for nil request, got %v", err)
	}
}
