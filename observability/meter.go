package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/amit-t/stream-llm/logger"
	"github.com/amit-t/stream-llm/version"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// ServiceName is the name of the service.
	ServiceName string
	// ServiceVersion is the version of the service.
	ServiceVersion string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	// Insecure allows insecure connections (for development).
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// DefaultMeterConfig returns sensible defaults for development.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: version.Get().String(),
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter initializes the OpenTelemetry meter provider.
// Returns a MeterProvider that should be shut down on application exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// StreamMetrics holds OpenTelemetry instruments for push-channel
// observability. It satisfies the sse package's Recorder contract.
type StreamMetrics struct {
	sessionsActive  metric.Int64UpDownCounter
	sessionsTotal   metric.Int64Counter
	disconnectTotal metric.Int64Counter
	eventsPushed    metric.Int64Counter
	bytesWritten    metric.Int64Counter
	broadcastTotal  metric.Int64Counter
	recipients      metric.Float64Histogram
}

// NewStreamMetrics creates the push-channel instruments on the given meter.
func NewStreamMetrics(meter metric.Meter) (*StreamMetrics, error) {
	sessionsActive, err := meter.Int64UpDownCounter("stream.sessions.active",
		metric.WithDescription("Number of currently connected sessions"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stream.sessions.active gauge: %w", err)
	}

	sessionsTotal, err := meter.Int64Counter("stream.sessions.total",
		metric.WithDescription("Total sessions connected since start"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stream.sessions.total counter: %w", err)
	}

	disconnectTotal, err := meter.Int64Counter("stream.disconnects.total",
		metric.WithDescription("Total session disconnects"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stream.disconnects.total counter: %w", err)
	}

	eventsPushed, err := meter.Int64Counter("stream.events.pushed",
		metric.WithDescription("Total events pushed to clients"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stream.events.pushed counter: %w", err)
	}

	bytesWritten, err := meter.Int64Counter("stream.bytes.written",
		metric.WithDescription("Total frame bytes written to clients"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stream.bytes.written counter: %w", err)
	}

	broadcastTotal, err := meter.Int64Counter("stream.broadcasts.total",
		metric.WithDescription("Total broadcast calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stream.broadcasts.total counter: %w", err)
	}

	recipients, err := meter.Float64Histogram("stream.broadcast.recipients",
		metric.WithDescription("Recipients reached per broadcast"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stream.broadcast.recipients histogram: %w", err)
	}

	return &StreamMetrics{
		sessionsActive:  sessionsActive,
		sessionsTotal:   sessionsTotal,
		disconnectTotal: disconnectTotal,
		eventsPushed:    eventsPushed,
		bytesWritten:    bytesWritten,
		broadcastTotal:  broadcastTotal,
		recipients:      recipients,
	}, nil
}

// SessionConnected records a session entering the connected state.
func (m *StreamMetrics) SessionConnected(transport string) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("transport", transport))
	m.sessionsActive.Add(ctx, 1, attrs)
	m.sessionsTotal.Add(ctx, 1, attrs)
}

// SessionDisconnected records a session teardown.
func (m *StreamMetrics) SessionDisconnected(transport string) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("transport", transport))
	m.sessionsActive.Add(ctx, -1, attrs)
	m.disconnectTotal.Add(ctx, 1, attrs)
}

// EventPushed records one event write with its frame size.
func (m *StreamMetrics) EventPushed(eventType string, bytes int) {
	ctx := context.Background()
	m.eventsPushed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
	m.bytesWritten.Add(ctx, int64(bytes))
}

// BroadcastSent records one broadcast call and its reach.
func (m *StreamMetrics) BroadcastSent(recipientCount int) {
	ctx := context.Background()
	m.broadcastTotal.Add(ctx, 1)
	m.recipients.Record(ctx, float64(recipientCount))
}
