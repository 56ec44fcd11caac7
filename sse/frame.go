package sse

import (
	"fmt"
	"strings"
	"time"
)

// Wire framing per the text/event-stream format. Every frame is
// terminated by a blank line; the client treats the blank line as the
// event boundary.

// writeEventFrame appends one event frame. The payload must already be
// sanitized; any line breaks left in it become separate "data:" lines
// within the same frame.
func writeEventFrame(b *strings.Builder, id, eventType, data string) {
	if id != "" {
		fmt.Fprintf(b, "id: %s\n", id)
	}
	if eventType != "" && eventType != EventTypeMessage {
		fmt.Fprintf(b, "event: %s\n", eventType)
	}
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(b, "data: %s\n", line)
	}
	b.WriteString("\n")
}

// writeCommentFrame appends a comment frame. Conforming clients ignore
// it; it exists to keep intermediaries from timing out the connection.
func writeCommentFrame(b *strings.Builder, text string) {
	fmt.Fprintf(b, ": %s\n\n", text)
}

// writeRetryFrame appends a reconnection-time directive in milliseconds.
func writeRetryFrame(b *strings.Builder, d time.Duration) {
	fmt.Fprintf(b, "retry: %d\n\n", d.Milliseconds())
}
