package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope for all voxnote spans.
const tracerName = "github.com/voxnote/voxnote"

// StartSpan starts a span on the globally registered tracer provider. The
// caller must End the returned span. The HTTP middleware opens the request
// span; the submission workflow opens a child span per submission, so
// provider latency is attributable to the request that paid for it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// SpanFailed records err on span and sets the span status to error. A nil
// err is a no-op, so callers can report their single error return without
// branching.
func SpanFailed(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// CorrelationID returns the trace ID of the active span as the request's
// correlation ID. Returns "" outside any trace; callers must treat the ID
// as optional.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// Logger returns a request-scoped [slog.Logger]. Inside a trace it carries
// trace_id and span_id so log lines join up with spans; outside a trace it
// is just the default logger.
func Logger(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return slog.Default()
	}
	return slog.Default().With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
