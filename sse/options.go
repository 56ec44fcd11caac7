package sse

import (
	"net/http"
	"time"

	"github.com/amit-t/stream-llm/logger"
	"github.com/amit-t/stream-llm/validation"
)

// Defaults for the session configuration surface.
const (
	DefaultRetry      = 2 * time.Second
	DefaultKeepAlive  = 10 * time.Second
	DefaultStatusCode = http.StatusOK
)

// Options is the resolved per-session configuration.
type Options struct {
	// TrustClientEventID seeds the session's last event id from the
	// client's resumption hint (header or query parameter).
	TrustClientEventID bool
	// Retry is the reconnection-time directive sent during bootstrap.
	// Zero or negative disables the directive.
	Retry time.Duration
	// KeepAlive is the heartbeat comment interval. Zero or negative
	// disables heartbeats.
	KeepAlive time.Duration
	// StatusCode is the response status committed at bootstrap.
	StatusCode int
	// Headers are merged over the protocol defaults; caller values win.
	Headers http.Header
	// Serializer converts non-string payloads to their wire string.
	Serializer Serializer
	// Sanitizer makes serialized payloads protocol-safe.
	Sanitizer Sanitizer
	// Metrics receives instrumentation callbacks. Defaults to a no-op.
	Metrics Recorder
	// Logger used for lifecycle logging. Defaults to the global logger
	// tagged with the sse component.
	Logger *logger.Logger
}

// Option configures a Session or a standalone Buffer.
type Option func(*Options)

func newOptions(opts ...Option) *Options {
	o := &Options{
		TrustClientEventID: true,
		Retry:              DefaultRetry,
		KeepAlive:          DefaultKeepAlive,
		StatusCode:         DefaultStatusCode,
		Serializer:         DefaultSerializer,
		Sanitizer:          DefaultSanitizer,
		Metrics:            nopRecorder{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.Logger == nil {
		o.Logger = logger.WithComponent("sse")
	}
	return o
}

// WithTrustClientEventID controls whether the client's resumption hint
// seeds the session's last event id.
func WithTrustClientEventID(trust bool) Option {
	return func(o *Options) { o.TrustClientEventID = trust }
}

// WithRetry sets the reconnection-time directive. Zero or negative
// disables it.
func WithRetry(d time.Duration) Option {
	return func(o *Options) { o.Retry = d }
}

// WithKeepAlive sets the heartbeat interval. Zero or negative disables
// heartbeats.
func WithKeepAlive(d time.Duration) Option {
	return func(o *Options) { o.KeepAlive = d }
}

// WithStatusCode sets the response status committed at bootstrap.
func WithStatusCode(code int) Option {
	return func(o *Options) { o.StatusCode = code }
}

// WithHeaders merges the given headers over the protocol defaults.
func WithHeaders(h http.Header) Option {
	return func(o *Options) {
		if o.Headers == nil {
			o.Headers = make(http.Header)
		}
		for k, vs := range h {
			o.Headers[http.CanonicalHeaderKey(k)] = vs
		}
	}
}

// WithHeader sets a single response header.
func WithHeader(key, value string) Option {
	return func(o *Options) {
		if o.Headers == nil {
			o.Headers = make(http.Header)
		}
		o.Headers.Set(key, value)
	}
}

// WithSerializer replaces the default JSON serializer.
func WithSerializer(fn Serializer) Option {
	return func(o *Options) {
		if fn != nil {
			o.Serializer = fn
		}
	}
}

// WithSanitizer replaces the default line-break-collapsing sanitizer.
func WithSanitizer(fn Sanitizer) Option {
	return func(o *Options) {
		if fn != nil {
			o.Sanitizer = fn
		}
	}
}

// WithMetrics attaches an instrumentation recorder.
func WithMetrics(rec Recorder) Option {
	return func(o *Options) {
		if rec != nil {
			o.Metrics = rec
		}
	}
}

// WithLogger replaces the default component logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// --- Event options ---

type eventConfig struct {
	eventType string
	id        string
}

// EventOption configures a single pushed event.
type EventOption func(*eventConfig)

func resolveEventOptions(opts ...EventOption) eventConfig {
	ec := eventConfig{eventType: EventTypeMessage}
	for _, opt := range opts {
		opt(&ec)
	}
	return ec
}

// WithType sets the event type name; "message" is the protocol default
// and is omitted from the frame.
func WithType(eventType string) EventOption {
	return func(ec *eventConfig) {
		if eventType != "" {
			ec.eventType = eventType
		}
	}
}

// WithID sets an explicit event identifier.
func WithID(id string) EventOption {
	return func(ec *eventConfig) { ec.id = id }
}

// --- Stream options ---

type streamConfig struct {
	eventType string
	idPrefix  string
	transform func(any) (any, error)
}

// StreamOption configures a Stream or Iterate consumption loop.
type StreamOption func(*streamConfig)

func resolveStreamOptions(opts ...StreamOption) *streamConfig {
	sc := &streamConfig{eventType: EventTypeMessage}
	for _, opt := range opts {
		opt(sc)
	}
	return sc
}

// WithEventType sets the event type used for every item of the stream.
func WithEventType(eventType string) StreamOption {
	return func(sc *streamConfig) {
		if eventType != "" {
			sc.eventType = eventType
		}
	}
}

// WithIDPrefix makes item ids deterministic: "<prefix>-<index>",
// 0-based, in source order. Useful as stable resumption keys.
func WithIDPrefix(prefix string) StreamOption {
	return func(sc *streamConfig) { sc.idPrefix = prefix }
}

// WithTransform applies fn to each chunk before it is pushed.
func WithTransform(fn func(any) (any, error)) StreamOption {
	return func(sc *streamConfig) { sc.transform = fn }
}

// --- Config (file/env-loadable configuration) ---

// Config is the viper-loadable shape of Options. Durations accept Go
// duration strings ("2s", "500ms"). A negative duration disables the
// corresponding behavior; zero means "use the default".
type Config struct {
	TrustClientEventID *bool             `yaml:"trust_client_event_id" mapstructure:"trust_client_event_id"`
	Retry              time.Duration     `yaml:"retry" mapstructure:"retry"`
	KeepAlive          time.Duration     `yaml:"keep_alive" mapstructure:"keep_alive"`
	StatusCode         int               `yaml:"status_code" mapstructure:"status_code" validate:"omitempty,gte=100,lte=599"`
	Headers            map[string]string `yaml:"headers" mapstructure:"headers"`
}

// ApplyDefaults fills unset fields with protocol defaults.
func (c *Config) ApplyDefaults() {
	if c.Retry == 0 {
		c.Retry = DefaultRetry
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = DefaultKeepAlive
	}
	if c.StatusCode == 0 {
		c.StatusCode = DefaultStatusCode
	}
}

// Validate checks the configuration via struct tags.
func (c *Config) Validate() error {
	return validation.Validate(c)
}

// Options converts the config into session options.
func (c *Config) Options() []Option {
	c.ApplyDefaults()

	opts := []Option{
		WithRetry(c.Retry),
		WithKeepAlive(c.KeepAlive),
		WithStatusCode(c.StatusCode),
	}
	if c.TrustClientEventID != nil {
		opts = append(opts, WithTrustClientEventID(*c.TrustClientEventID))
	}
	for k, v := range c.Headers {
		opts = append(opts, WithHeader(k, v))
	}
	return opts
}
