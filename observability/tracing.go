package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/xraph/resthook"

// Tracer opens spans for triggers and delivery attempts.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer returns a Tracer backed by the global provider.
func NewTracer() *Tracer {
	return NewTracerFrom(otel.GetTracerProvider())
}

// NewTracerFrom returns a Tracer backed by tp.
func NewTracerFrom(tp trace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(tracerName)}
}

// StartTrigger starts the span for one Trigger call.
func (t *Tracer) StartTrigger(ctx context.Context, tenantID, eventType string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, "resthook.trigger",
		trace.WithAttributes(
			attribute.String("resthook.tenant_id", tenantID),
			attribute.String("resthook.event_type", eventType),
		),
	)
}

// EndTrigger records the fan-out size and ends the span.
func (t *Tracer) EndTrigger(span trace.Span, subscriptions, queued int, err error) {
	if t == nil {
		return
	}
	span.SetAttributes(
		attribute.Int("resthook.subscriptions", subscriptions),
		attribute.Int("resthook.queued", queued),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// StartAttempt starts the span for one delivery attempt.
func (t *Tracer) StartAttempt(ctx context.Context, jobID, deliveryKey string, attempt int) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, "resthook.delivery",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("resthook.job_id", jobID),
			attribute.String("resthook.delivery_key", deliveryKey),
			attribute.Int("resthook.attempt", attempt),
		),
	)
}

// EndAttempt records the result of an attempt and ends the span.
func (t *Tracer) EndAttempt(span trace.Span, statusCode, latencyMs int, errText string) {
	if t == nil {
		return
	}
	span.SetAttributes(
		attribute.Int("http.status_code", statusCode),
		attribute.Int("resthook.latency_ms", latencyMs),
	)
	if errText != "" {
		span.SetAttributes(attribute.String("resthook.error", errText))
		span.SetStatus(codes.Error, errText)
	}
	span.End()
}
