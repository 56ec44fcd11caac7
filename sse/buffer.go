package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/amit-t/stream-llm/errors"
)

// Serializer turns an arbitrary payload into its wire string. String
// payloads bypass it entirely.
type Serializer func(data any) (string, error)

// Sanitizer makes a serialized payload protocol-safe before framing.
type Sanitizer func(text string) string

// DefaultSerializer encodes payloads as JSON.
func DefaultSerializer(data any) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// lineBreakReplacer collapses every line-break variant into a single
// space. Embedded line breaks would otherwise split one event into
// several "data:" lines or, worse, terminate the frame early.
var lineBreakReplacer = strings.NewReplacer(
	"\r\n", " ",
	"\r", " ",
	"\n", " ",
	" ", " ",
	" ", " ",
)

// DefaultSanitizer collapses all line-break variants into single spaces.
func DefaultSanitizer(text string) string {
	return lineBreakReplacer.Replace(text)
}

// Buffer accumulates encoded frames in memory so a batch of events can
// be flushed as a single write. It is not safe for concurrent writers;
// the owning Session serializes access.
type Buffer struct {
	b          strings.Builder
	serializer Serializer
	sanitizer  Sanitizer
}

// NewBuffer creates a standalone event buffer. Only the serializer and
// sanitizer options apply; everything else is session-level.
func NewBuffer(opts ...Option) *Buffer {
	o := newOptions(opts...)
	return &Buffer{
		serializer: o.Serializer,
		sanitizer:  o.Sanitizer,
	}
}

// Push serializes, sanitizes, and frames one event into the buffer.
// String payloads pass through the serializer untouched. A failed
// serializer hook surfaces as a SerializationError and leaves the
// buffer exactly as it was.
func (b *Buffer) Push(data any, opts ...EventOption) error {
	ec := resolveEventOptions(opts...)

	text, err := b.serialize(data)
	if err != nil {
		return errors.Serialization(err)
	}

	writeEventFrame(&b.b, ec.id, ec.eventType, b.sanitizer(text))
	return nil
}

// Comment appends a heartbeat/comment frame.
func (b *Buffer) Comment(text string) {
	writeCommentFrame(&b.b, text)
}

// Retry appends a reconnection-time directive frame.
func (b *Buffer) Retry(d time.Duration) {
	writeRetryFrame(&b.b, d)
}

// Read returns the accumulated frame text without clearing it.
func (b *Buffer) Read() string {
	return b.b.String()
}

// Clear resets the buffer to empty.
func (b *Buffer) Clear() {
	b.b.Reset()
}

// Len reports the number of accumulated bytes.
func (b *Buffer) Len() int {
	return b.b.Len()
}

// Iterate consumes a value sequence in order, pushing one event per
// value into the buffer. Ids are "<prefix>-<index>" when an id prefix
// is configured, generated otherwise. The first sequence error stops
// consumption; values pushed before it stay buffered.
func (b *Buffer) Iterate(ctx context.Context, seq iter.Seq2[any, error], opts ...StreamOption) error {
	sc := resolveStreamOptions(opts...)

	index := 0
	for v, err := range seq {
		if err != nil {
			return errors.Transport("iterate", err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Transport("iterate", ctxErr)
		}
		if err := b.Push(v, WithType(sc.eventType), WithID(sc.eventID(index))); err != nil {
			return err
		}
		index++
	}
	return nil
}

func (b *Buffer) serialize(data any) (string, error) {
	if s, ok := data.(string); ok {
		return s, nil
	}
	return b.serializer(data)
}

// Values adapts a finite value list into the sequence shape that
// Iterate and Session.Iterate consume.
func Values(vals ...any) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		for _, v := range vals {
			if !yield(v, nil) {
				return
			}
		}
	}
}

// newEventID generates a fresh event identifier.
func newEventID() string {
	return uuid.NewString()
}

// eventID resolves the identifier for the index-th item of a stream.
func (sc *streamConfig) eventID(index int) string {
	if sc.idPrefix != "" {
		return fmt.Sprintf("%s-%d", sc.idPrefix, index)
	}
	return newEventID()
}
