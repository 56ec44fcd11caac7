package sse

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/amit-t/stream-llm/errors"
	"github.com/amit-t/stream-llm/logger"
)

// ServeSSE upgrades a net/http request into a session, registers it on
// the channel when one is given, and blocks until the client
// disconnects. This is the main entry point called from HTTP handlers.
func ServeSSE[C, S any](ch *Channel[C, S], w http.ResponseWriter, r *http.Request, opts ...Option) error {
	sess, err := Upgrade[S](w, r, opts...)
	if err != nil {
		if errors.IsConfiguration(err) {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
		}
		return err
	}
	defer sess.Close()

	if ch != nil {
		if err := ch.Register(sess); err != nil {
			return err
		}
	}

	<-sess.Done()
	return nil
}

// GinHandler returns a gin handler that upgrades each request into a
// session over the fetch-style gin adapter, registers it on the
// channel when one is given, and blocks until disconnect.
func GinHandler[C, S any](ch *Channel[C, S], opts ...Option) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := NewGinConnection(c)
		if err != nil {
			logger.Error("sse upgrade failed", logger.ErrorFields("upgrade", err))
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		sess, err := NewSession[S](conn, opts...)
		if err != nil {
			logger.Error("sse session construction failed", logger.ErrorFields("upgrade", err))
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		if err := sess.Connect(c.Request.Context()); err != nil {
			logger.Error("sse bootstrap failed", logger.ErrorFields("connect", err))
			return
		}
		defer sess.Close()

		if ch != nil {
			if err := ch.Register(sess); err != nil {
				return
			}
		}

		<-sess.Done()
	}
}
