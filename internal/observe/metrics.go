// Package observe provides application-wide observability primitives for
// voxnote: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxnote metrics.
const meterName = "github.com/voxnote/voxnote"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// SubmissionDuration tracks end-to-end submission latency, from
	// validation to the committed record. Use with attribute:
	//   attribute.String("status", "done"|"failed")
	SubmissionDuration metric.Float64Histogram

	// TranscriptionDuration tracks speech-to-text call latency.
	TranscriptionDuration metric.Float64Histogram

	// FormattingDuration tracks text-generation call latency (formatting
	// and summary passes). Use with attribute:
	//   attribute.String("pass", "format"|"summary")
	FormattingDuration metric.Float64Histogram

	// --- Counters ---

	// Submissions counts submissions by terminal state. Use with attribute:
	//   attribute.String("status", ...)
	Submissions metric.Int64Counter

	// QuotaDecisions counts quota admission outcomes. Use with attributes:
	//   attribute.String("plan", ...), attribute.String("decision", "admitted"|"rejected")
	QuotaDecisions metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSubmissions tracks the number of submissions currently in
	// flight across all orchestrator instances.
	ActiveSubmissions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Whisper
// calls on long recordings run into the minutes, so the tail is long.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.SubmissionDuration, err = m.Float64Histogram("voxnote.submission.duration",
		metric.WithDescription("End-to-end submission latency by terminal status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("voxnote.transcription.duration",
		metric.WithDescription("Latency of speech-to-text transcription calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FormattingDuration, err = m.Float64Histogram("voxnote.formatting.duration",
		metric.WithDescription("Latency of text-generation calls by pass."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Submissions, err = m.Int64Counter("voxnote.submissions",
		metric.WithDescription("Total submissions by terminal status."),
	); err != nil {
		return nil, err
	}
	if met.QuotaDecisions, err = m.Int64Counter("voxnote.quota.decisions",
		metric.WithDescription("Quota admission outcomes by plan and decision."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("voxnote.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("voxnote.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSubmissions, err = m.Int64UpDownCounter("voxnote.active_submissions",
		metric.WithDescription("Number of submissions currently in flight."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxnote.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// RecordQuotaDecision is a convenience method that records a quota admission
// outcome with the standard attribute set.
func (m *Metrics) RecordQuotaDecision(ctx context.Context, plan, decision string) {
	m.QuotaDecisions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("plan", plan),
			attribute.String("decision", decision),
		),
	)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordTranscription records the latency of one speech-to-text call.
func (m *Metrics) RecordTranscription(ctx context.Context, seconds float64) {
	m.TranscriptionDuration.Record(ctx, seconds)
}

// RecordFormatting records the latency of one text-generation call. pass is
// "format" or "summary".
func (m *Metrics) RecordFormatting(ctx context.Context, pass string, seconds float64) {
	m.FormattingDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("pass", pass)))
}

// RecordSubmission is a convenience method that records a terminated
// submission with its end-to-end duration.
func (m *Metrics) RecordSubmission(ctx context.Context, status string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.Submissions.Add(ctx, 1, attrs)
	m.SubmissionDuration.Record(ctx, seconds, attrs)
}
