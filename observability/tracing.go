// Package observability provides Prometheus metrics and OpenTelemetry tracing
// for webhook verification.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "github.com/xraph/hookverify"

var noopTracer = noop.NewTracerProvider().Tracer(tracerName)

// Tracer provides OpenTelemetry spans for verification and key refresh.
// A nil *Tracer is valid and produces no-op spans.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from the global provider.
func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer(tracerName)}
}

// NewTracerWithProvider creates a tracer from an explicit provider.
func NewTracerWithProvider(tp trace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(tracerName)}
}

func (t *Tracer) get() trace.Tracer {
	if t == nil || t.tracer == nil {
		return noopTracer
	}
	return t.tracer
}

// StartVerifySpan starts a span for one verification attempt.
func (t *Tracer) StartVerifySpan(ctx context.Context, verificationID string) (context.Context, trace.Span) {
	return t.get().Start(ctx, "hookverify.verify",
		trace.WithAttributes(attribute.String("hookverify.verification_id", verificationID)),
	)
}

// EndVerifySpan ends a verification span with result attributes.
func (t *Tracer) EndVerifySpan(span trace.Span, keyID, reason string, valid bool) {
	span.SetAttributes(
		attribute.String("hookverify.key_id", keyID),
		attribute.String("hookverify.reason", reason),
		attribute.Bool("hookverify.valid", valid),
	)
	if !valid {
		span.SetStatus(codes.Error, reason)
	}
	span.End()
}

// StartRefreshSpan starts a span for a key-distribution fetch.
func (t *Tracer) StartRefreshSpan(ctx context.Context) (context.Context, trace.Span) {
	return t.get().Start(ctx, "hookverify.keys.refresh")
}

// EndRefreshSpan ends a refresh span.
func (t *Tracer) EndRefreshSpan(span trace.Span, keys int, err error) {
	span.SetAttributes(attribute.Int("hookverify.keys", keys))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
