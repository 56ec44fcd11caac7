package sse

import (
	"strings"
	"testing"
	"time"

	"github.com/amit-t/stream-llm/errors"
)

func TestChannelRegister(t *testing.T) {
	ch := NewChannel[any, any]()
	sess, _ := connectedSession(t)

	if err := ch.Register(sess); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ch.SessionCount() != 1 {
		t.Errorf("expected 1 session, got %d", ch.SessionCount())
	}

	// Registering twice is a no-op.
	if err := ch.Register(sess); err != nil {
		t.Errorf("expected idempotent register, got %v", err)
	}
	if ch.SessionCount() != 1 {
		t.Errorf("expected 1 session after duplicate register, got %d", ch.SessionCount())
	}
}

func TestChannelRegisterNil(t *testing.T) {
	ch := NewChannel[any, any]()

	if err := ch.Register(nil); !errors.IsConfiguration(err) {
		t.Errorf("expected configuration error for nil session, got %v", err)
	}
}

func TestChannelRegisterPendingSession(t *testing.T) {
	ch := NewChannel[any, any]()
	sess, _ := NewSession[any](newMockConn("/events"))

	err := ch.Register(sess)
	if !errors.IsState(err) {
		t.Errorf("expected state error for pending session, got %v", err)
	}
	if ch.SessionCount() != 0 {
		t.Errorf("expected empty channel, got %d sessions", ch.SessionCount())
	}
}

func TestChannelDeregister(t *testing.T) {
	ch := NewChannel[any, any]()
	sess, _ := connectedSession(t)

	if err := ch.Register(sess); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !ch.Deregister(sess) {
		t.Error("expected deregister to report removal")
	}
	if ch.SessionCount() != 0 {
		t.Errorf("expected empty channel, got %d sessions", ch.SessionCount())
	}

	// Removing an unknown session is a no-op.
	if ch.Deregister(sess) {
		t.Error("expected second deregister to report no removal")
	}
	if ch.Deregister(nil) {
		t.Error("expected nil deregister to report no removal")
	}
}

func TestChannelAutoCleanupOnDisconnect(t *testing.T) {
	ch := NewChannel[any, any]()
	sess, _ := connectedSession(t)

	if err := ch.Register(sess); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	sess.Close()
	time.Sleep(10 * time.Millisecond)

	if ch.SessionCount() != 0 {
		t.Errorf("expected disconnected session removed automatically, got %d", ch.SessionCount())
	}
}

func TestChannelBroadcast(t *testing.T) {
	ch := NewChannel[any, any]()
	sessA, connA := connectedSession(t)
	sessB, connB := connectedSession(t)

	if err := ch.Register(sessA); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := ch.Register(sessB); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	id := ch.Broadcast("hello", WithBroadcastType[any]("news"), WithBroadcastID[any]("n1"))
	if id != "n1" {
		t.Errorf("expected resolved id 'n1', got '%s'", id)
	}

	expected := "id: n1\nevent: news\ndata: hello\n\n"
	if connA.allWrites() != expected {
		t.Errorf("expected %q on A, got %q", expected, connA.allWrites())
	}
	if connB.allWrites() != expected {
		t.Errorf("expected %q on B, got %q", expected, connB.allWrites())
	}
	if sessA.LastEventID() != "n1" || sessB.LastEventID() != "n1" {
		t.Error("expected every recipient to share the broadcast id")
	}
}

func TestChannelBroadcastGeneratesSharedID(t *testing.T) {
	ch := NewChannel[any, any]()
	sessA, _ := connectedSession(t)
	sessB, _ := connectedSession(t)
	_ = ch.Register(sessA)
	_ = ch.Register(sessB)

	id := ch.Broadcast("x")
	if id == "" {
		t.Fatal("expected a generated broadcast id")
	}
	if sessA.LastEventID() != id || sessB.LastEventID() != id {
		t.Errorf("expected both recipients to carry id '%s', got '%s' and '%s'",
			id, sessA.LastEventID(), sessB.LastEventID())
	}
}

func TestChannelBroadcastFilter(t *testing.T) {
	ch := NewChannel[any, any]()

	sessA, connA := connectedSession(t)
	sessA.State = "a"
	sessB, connB := connectedSession(t)
	sessB.State = "b"
	sessC, connC := connectedSession(t)
	sessC.State = "c"

	for _, s := range []*Session[any]{sessA, sessB, sessC} {
		if err := ch.Register(s); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	}

	ch.Broadcast("targeted", WithFilter[any](func(s *Session[any]) bool {
		return s.State == "b"
	}))

	if connA.writeCount() != 0 || connC.writeCount() != 0 {
		t.Error("expected filtered-out sessions to receive nothing")
	}
	if connB.writeCount() != 1 {
		t.Errorf("expected one delivery to B, got %d", connB.writeCount())
	}
	if sessA.LastEventID() != "" || sessC.LastEventID() != "" {
		t.Error("expected filtered-out sessions' last event id unchanged")
	}
}

func TestChannelBroadcastFailureIsolation(t *testing.T) {
	ch := NewChannel[any, any]()

	sessA, connA := connectedSession(t)
	sessB, connB := connectedSession(t)
	_ = ch.Register(sessA)
	_ = ch.Register(sessB)

	// A's transport dies between registration and broadcast.
	connA.mu.Lock()
	connA.chunkErr = errors.Transport("write", nil)
	connA.mu.Unlock()

	var delivered int
	ch.OnBroadcast(func(_ Event, n int) { delivered = n })

	ch.Broadcast("still going")

	if connB.writeCount() != 1 {
		t.Errorf("expected healthy recipient to receive the event, got %d writes", connB.writeCount())
	}
	if delivered != 1 {
		t.Errorf("expected delivered count 1, got %d", delivered)
	}
}

func TestChannelObservers(t *testing.T) {
	ch := NewChannel[any, any]()

	var registered, deregistered int
	var broadcasts []Event
	ch.OnRegister(func(*Session[any]) { registered++ })
	ch.OnDeregister(func(*Session[any]) { deregistered++ })
	ch.OnBroadcast(func(ev Event, _ int) { broadcasts = append(broadcasts, ev) })

	sess, _ := connectedSession(t)
	_ = ch.Register(sess)
	_ = ch.Register(sess) // duplicate, no notification
	ch.Broadcast("once", WithBroadcastType[any]("tick"))
	ch.Deregister(sess)
	ch.Deregister(sess) // already gone, no notification

	if registered != 1 {
		t.Errorf("expected 1 register notification, got %d", registered)
	}
	if deregistered != 1 {
		t.Errorf("expected 1 deregister notification, got %d", deregistered)
	}
	if len(broadcasts) != 1 {
		t.Fatalf("expected 1 broadcast notification, got %d", len(broadcasts))
	}
	if broadcasts[0].Type != "tick" {
		t.Errorf("expected broadcast type 'tick', got '%s'", broadcasts[0].Type)
	}
}

func TestChannelActiveSessions(t *testing.T) {
	ch := NewChannel[any, any]()
	sessA, _ := connectedSession(t)
	sessB, _ := connectedSession(t)
	_ = ch.Register(sessA)
	_ = ch.Register(sessB)

	active := ch.ActiveSessions()
	if len(active) != 2 {
		t.Fatalf("expected 2 active sessions, got %d", len(active))
	}
}

func TestChannelBroadcastToEmptyChannel(t *testing.T) {
	ch := NewChannel[any, any]()

	id := ch.Broadcast("nobody home")
	if id == "" {
		t.Error("expected an id even with no recipients")
	}
}

func TestChannelBroadcastMultiLinePayload(t *testing.T) {
	ch := NewChannel[any, any]()
	sess, conn := connectedSession(t)
	_ = ch.Register(sess)

	ch.Broadcast("line1\nline2", WithBroadcastID[any]("m1"))

	if !strings.Contains(conn.allWrites(), "data: line1 line2\n") {
		t.Errorf("expected sanitized payload, got %q", conn.allWrites())
	}
}
