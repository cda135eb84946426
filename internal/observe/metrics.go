// Package observe provides application-wide observability primitives for
// Frinny: OpenTelemetry metrics, tracing, trace-aware logging and HTTP
// middleware that ties them together.
//
// Metrics go through the OpenTelemetry Metrics API and are exposed for
// scraping by the Prometheus exporter bridge set up in [InitProvider]. A
// package-level [DefaultMetrics] instance is provided for convenience; tests
// should use [NewMetrics] with their own [metric.MeterProvider].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/Monterroso/Frinny-Backend"

// Metrics holds all metric instruments for the application.
type Metrics struct {
	// ── Request path ──

	// Requests counts invoker requests by event type and status.
	Requests metric.Int64Counter

	// RequestDuration tracks end-to-end invoker latency by event type.
	RequestDuration metric.Float64Histogram

	// LLMDuration tracks one model round trip.
	LLMDuration metric.Float64Histogram

	// ToolCalls counts tool invocations by tool and status.
	ToolCalls metric.Int64Counter

	// ToolDuration tracks tool execution latency by tool.
	ToolDuration metric.Float64Histogram

	// ── Checkpoint store ──

	// StoreDuration tracks store operations by backend and op.
	StoreDuration metric.Float64Histogram

	// StoreErrors counts failed store operations by backend and op.
	StoreErrors metric.Int64Counter

	// StoreDegradations counts fallbacks: a backend skipped at startup, a
	// load answered with an empty history, or a turn left unpersisted.
	StoreDegradations metric.Int64Counter

	// ── Transport ──

	// ActiveConnections tracks open WebSocket connections.
	ActiveConnections metric.Int64UpDownCounter

	// RateLimited counts events rejected by the per-user limiter.
	RateLimited metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request latency by method and path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds, sized for a chat turn
// that may include several model round trips.
var latencyBuckets = []float64{
	0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] using mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	histogram := func(name, desc string) metric.Float64Histogram {
		if err != nil {
			return nil
		}
		var h metric.Float64Histogram
		h, err = m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
		return h
	}
	counter := func(name, desc string) metric.Int64Counter {
		if err != nil {
			return nil
		}
		var c metric.Int64Counter
		c, err = m.Int64Counter(name, metric.WithDescription(desc))
		return c
	}

	met.Requests = counter("frinny.requests", "Agent requests by event type and status.")
	met.RequestDuration = histogram("frinny.request.duration", "End-to-end agent request latency.")
	met.LLMDuration = histogram("frinny.llm.duration", "Latency of a single LLM completion.")
	met.ToolCalls = counter("frinny.tool.calls", "Tool invocations by tool name and status.")
	met.ToolDuration = histogram("frinny.tool.duration", "Latency of tool execution.")
	met.StoreDuration = histogram("frinny.store.duration", "Checkpoint store operation latency.")
	met.StoreErrors = counter("frinny.store.errors", "Failed checkpoint store operations.")
	met.StoreDegradations = counter("frinny.store.degradations", "Checkpoint degradations by stage.")
	met.RateLimited = counter("frinny.ws.rate_limited", "Events rejected by the per-user rate limiter.")
	met.HTTPRequestDuration = histogram("frinny.http.request.duration", "HTTP request latency by method and path.")
	if err != nil {
		return nil, err
	}

	if met.ActiveConnections, err = m.Int64UpDownCounter("frinny.ws.connections",
		metric.WithDescription("Open WebSocket connections."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics], created on first call
// from [otel.GetMeterProvider]. Call [InitProvider] before the first use so
// the instruments bind to the Prometheus exporter.
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

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordRequest records one finished agent request.
func (m *Metrics) RecordRequest(ctx context.Context, event, status string, d time.Duration) {
	attrs := metric.WithAttributes(Attr("event", event), Attr("status", status))
	m.Requests.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("event", event)))
}

// RecordToolCall records one tool invocation.
func (m *Metrics) RecordToolCall(ctx context.Context, tool string, d time.Duration, err error) {
	m.ToolCalls.Add(ctx, 1, metric.WithAttributes(Attr("tool", tool), Attr("status", statusOf(err))))
	m.ToolDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("tool", tool)))
}

// RecordStoreOp records one checkpoint store operation.
func (m *Metrics) RecordStoreOp(ctx context.Context, backend, op string, d time.Duration, err error) {
	attrs := metric.WithAttributes(Attr("backend", backend), Attr("op", op))
	m.StoreDuration.Record(ctx, d.Seconds(), attrs)
	if err != nil {
		m.StoreErrors.Add(ctx, 1, attrs)
	}
}

// RecordDegradation records a checkpoint degradation. stage is one of
// "startup", "load" or "persist".
func (m *Metrics) RecordDegradation(ctx context.Context, stage, backend string) {
	m.StoreDegradations.Add(ctx, 1, metric.WithAttributes(Attr("stage", stage), Attr("backend", backend)))
}
