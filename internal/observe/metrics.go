// Package observe provides application-wide observability primitives for
// hudlink: OpenTelemetry metrics, structured logging helpers, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all hudlink metrics.
const meterName = "github.com/hearhud/hudlink"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Histograms ---

	// ConnectDuration tracks time from dial start to an open, hello-acked
	// channel. Use with attribute.String("channel", ...).
	ConnectDuration metric.Float64Histogram

	// FrameRMS samples the RMS of outgoing audio frames, giving a cheap
	// signal-presence distribution without shipping raw audio anywhere.
	FrameRMS metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// FramesSent counts audio frames handed to a websocket. Use with
	// attributes: attribute.String("channel", ...)
	FramesSent metric.Int64Counter

	// BytesSent counts audio payload bytes handed to a websocket.
	BytesSent metric.Int64Counter

	// FramesDropped counts frames discarded under backpressure or while
	// disconnected. Use with attribute.String("stage", ...).
	FramesDropped metric.Int64Counter

	// ReconnectsScheduled counts reconnect cycles. Use with
	// attribute.String("component", ...).
	ReconnectsScheduled metric.Int64Counter

	// ProtocolAnomalies counts malformed or unexpected wire traffic. Use
	// with attribute.String("kind", ...).
	ProtocolAnomalies metric.Int64Counter

	// --- Gauges ---

	// OpenChannels tracks currently open websocket channels. Use with
	// attribute.String("channel", ...).
	OpenChannels metric.Int64UpDownCounter

	// ActiveCaptures tracks live capture sessions.
	ActiveCaptures metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// local-network connect times.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// rmsBuckets covers the useful RMS range of normalised audio.
var rmsBuckets = []float64{
	0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ConnectDuration, err = m.Float64Histogram("hudlink.transport.connect.duration",
		metric.WithDescription("Time from dial start to an open channel."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FrameRMS, err = m.Float64Histogram("hudlink.audio.frame.rms",
		metric.WithDescription("RMS of outgoing audio frames."),
		metric.WithExplicitBucketBoundaries(rmsBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("hudlink.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesSent, err = m.Int64Counter("hudlink.audio.frames.sent",
		metric.WithDescription("Total audio frames handed to a websocket by channel."),
	); err != nil {
		return nil, err
	}
	if met.BytesSent, err = m.Int64Counter("hudlink.audio.bytes.sent",
		metric.WithDescription("Total audio payload bytes handed to a websocket by channel."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("hudlink.audio.frames.dropped",
		metric.WithDescription("Total frames discarded under backpressure or while disconnected, by stage."),
	); err != nil {
		return nil, err
	}
	if met.ReconnectsScheduled, err = m.Int64Counter("hudlink.transport.reconnects",
		metric.WithDescription("Total reconnect cycles scheduled, by component."),
	); err != nil {
		return nil, err
	}
	if met.ProtocolAnomalies, err = m.Int64Counter("hudlink.protocol.anomalies",
		metric.WithDescription("Total malformed or unexpected wire messages, by kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.OpenChannels, err = m.Int64UpDownCounter("hudlink.transport.open_channels",
		metric.WithDescription("Number of currently open websocket channels."),
	); err != nil {
		return nil, err
	}
	if met.ActiveCaptures, err = m.Int64UpDownCounter("hudlink.capture.active_sessions",
		metric.WithDescription("Number of live capture sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFrameSent records one outgoing frame and its payload size.
func (m *Metrics) RecordFrameSent(ctx context.Context, channel string, payloadBytes int) {
	attrs := metric.WithAttributes(attribute.String("channel", channel))
	m.FramesSent.Add(ctx, 1, attrs)
	m.BytesSent.Add(ctx, int64(payloadBytes), attrs)
}

// RecordFrameDrop records one discarded frame at the given pipeline stage.
func (m *Metrics) RecordFrameDrop(ctx context.Context, stage string) {
	m.FramesDropped.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordReconnect records one scheduled reconnect cycle.
func (m *Metrics) RecordReconnect(ctx context.Context, component string) {
	m.ReconnectsScheduled.Add(ctx, 1,
		metric.WithAttributes(attribute.String("component", component)),
	)
}

// RecordAnomaly records one protocol anomaly of the given kind.
func (m *Metrics) RecordAnomaly(ctx context.Context, kind string) {
	m.ProtocolAnomalies.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordConnect records the time taken to bring one channel up.
func (m *Metrics) RecordConnect(ctx context.Context, channel string, d time.Duration) {
	m.ConnectDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("channel", channel)),
	)
}

// ChannelOpen adjusts the open-channel gauge by delta for one channel.
func (m *Metrics) ChannelOpen(ctx context.Context, channel string, delta int64) {
	m.OpenChannels.Add(ctx, delta,
		metric.WithAttributes(attribute.String("channel", channel)),
	)
}
