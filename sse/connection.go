package sse

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/amit-t/stream-llm/errors"
)

// Connection is the capability contract every transport adapter
// implements. The rest of the package is transport-agnostic: a Session
// owns exactly one Connection and never inspects what is behind it.
type Connection interface {
	// URL returns the parsed request URL, read-only after construction.
	URL() *url.URL

	// RequestHeader returns the inbound request headers, read-only.
	RequestHeader() http.Header

	// SendHead commits the response status and headers. Must be called
	// exactly once before any chunk write; extra calls are no-ops.
	SendHead(status int, headers http.Header) error

	// SendChunk appends raw text to the open response, preserving order.
	SendChunk(text string) error

	// Cleanup releases listeners and handles. Idempotent.
	Cleanup()

	// Context is canceled when the client disconnects or Cleanup runs.
	Context() context.Context

	// Transport names the underlying transport for logs and metrics.
	Transport() string
}

// HTTPConnection adapts a net/http streaming response. It backs both
// the HTTP/1.x and the HTTP/2 constructors; the two differ only in the
// pairing checks and in which hop-by-hop headers are legal.
type HTTPConnection struct {
	w       http.ResponseWriter
	r       *http.Request
	flusher http.Flusher

	ctx    context.Context
	cancel context.CancelFunc

	transport   string
	headSent    bool
	cleanupOnce sync.Once
}

var (
	_ Connection = (*HTTPConnection)(nil)
)

// NewHTTPConnection wraps an HTTP/1.x streaming request/response pair.
// It fails with a ConfigurationError when the pairing is unusable:
// nil halves, or a response writer that cannot flush incrementally.
func NewHTTPConnection(w http.ResponseWriter, r *http.Request) (*HTTPConnection, error) {
	return newHTTPConnection(w, r, "http")
}

// NewHTTP2Connection wraps an HTTP/2 request/response pair. Pairing an
// HTTP/1.x request with this constructor is a configuration error.
func NewHTTP2Connection(w http.ResponseWriter, r *http.Request) (*HTTPConnection, error) {
	if r != nil && r.ProtoMajor != 2 {
		return nil, errors.Configuration("request is not HTTP/2").
			WithDetail("proto", r.Proto)
	}
	return newHTTPConnection(w, r, "http2")
}

func newHTTPConnection(w http.ResponseWriter, r *http.Request, transport string) (*HTTPConnection, error) {
	if w == nil || r == nil {
		return nil, errors.Configuration("connection requires both a request and a response writer")
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.Configuration("response writer does not support flushing").
			WithDetail("transport", transport)
	}

	// Long-lived responses must outlive the server's WriteTimeout.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	ctx, cancel := context.WithCancel(r.Context())
	return &HTTPConnection{
		w:         w,
		r:         r,
		flusher:   flusher,
		ctx:       ctx,
		cancel:    cancel,
		transport: transport,
	}, nil
}

// URL returns the parsed request URL.
func (c *HTTPConnection) URL() *url.URL { return c.r.URL }

// RequestHeader returns the inbound request headers.
func (c *HTTPConnection) RequestHeader() http.Header { return c.r.Header }

// SendHead commits the response status and headers, then flushes so
// the client sees the stream open immediately.
func (c *HTTPConnection) SendHead(status int, headers http.Header) error {
	if c.headSent {
		return nil
	}
	for k, vs := range headers {
		// Connection management is hop-by-hop and forbidden on HTTP/2.
		if c.transport == "http2" && http.CanonicalHeaderKey(k) == "Connection" {
			continue
		}
		for _, v := range vs {
			c.w.Header().Add(k, v)
		}
	}
	c.w.WriteHeader(status)
	c.flusher.Flush()
	c.headSent = true
	return nil
}

// SendChunk appends raw text to the response and flushes it.
func (c *HTTPConnection) SendChunk(text string) error {
	if !c.headSent {
		return errors.State("write chunk", "head not sent")
	}
	if _, err := c.w.Write([]byte(text)); err != nil {
		return errors.Transport("write", err)
	}
	c.flusher.Flush()
	return nil
}

// Cleanup cancels the connection context. Safe to call repeatedly.
func (c *HTTPConnection) Cleanup() {
	c.cleanupOnce.Do(c.cancel)
}

// Context is canceled on client disconnect or Cleanup.
func (c *HTTPConnection) Context() context.Context { return c.ctx }

// Transport names the underlying transport.
func (c *HTTPConnection) Transport() string { return c.transport }
