package sse

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/amit-t/stream-llm/errors"
)

// GinConnection adapts a gin request/stream-writer pair. gin's
// ResponseWriter flushes through the framework's own writer, so the
// head is committed the fetch-style way: status first, stream after.
type GinConnection struct {
	c *gin.Context

	ctx    context.Context
	cancel context.CancelFunc

	headSent    bool
	cleanupOnce sync.Once
}

var _ Connection = (*GinConnection)(nil)

// NewGinConnection wraps a gin context. A context without a request or
// writer attached is a mismatched pairing and fails immediately.
func NewGinConnection(c *gin.Context) (*GinConnection, error) {
	if c == nil || c.Request == nil || c.Writer == nil {
		return nil, errors.Configuration("gin connection requires a context with request and writer attached")
	}

	rc := http.NewResponseController(c.Writer)
	_ = rc.SetWriteDeadline(time.Time{})

	ctx, cancel := context.WithCancel(c.Request.Context())
	return &GinConnection{
		c:      c,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// URL returns the parsed request URL.
func (g *GinConnection) URL() *url.URL { return g.c.Request.URL }

// RequestHeader returns the inbound request headers.
func (g *GinConnection) RequestHeader() http.Header { return g.c.Request.Header }

// SendHead commits the response status and headers through gin's writer.
func (g *GinConnection) SendHead(status int, headers http.Header) error {
	if g.headSent {
		return nil
	}
	for k, vs := range headers {
		for _, v := range vs {
			g.c.Writer.Header().Add(k, v)
		}
	}
	g.c.Writer.WriteHeader(status)
	g.c.Writer.Flush()
	g.headSent = true
	return nil
}

// SendChunk appends raw text to the response and flushes it.
func (g *GinConnection) SendChunk(text string) error {
	if !g.headSent {
		return errors.State("write chunk", "head not sent")
	}
	if _, err := g.c.Writer.WriteString(text); err != nil {
		return errors.Transport("write", err)
	}
	g.c.Writer.Flush()
	return nil
}

// Cleanup cancels the connection context. Safe to call repeatedly.
func (g *GinConnection) Cleanup() {
	g.cleanupOnce.Do(g.cancel)
}

// Context is canceled on client disconnect or Cleanup.
func (g *GinConnection) Context() context.Context { return g.ctx }

// Transport names the underlying transport.
func (g *GinConnection) Transport() string { return "gin" }
