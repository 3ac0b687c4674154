package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys set on report cycle spans.
const (
	AttrStatus     = attribute.Key("pulsewire.status")
	AttrTarget     = attribute.Key("pulsewire.target")
	AttrRunID      = attribute.Key("pulsewire.run_id")
	AttrCollector  = attribute.Key("pulsewire.collector")
	AttrHTTPStatus = attribute.Key("http.response.status_code")
)

// StartCycleSpan starts a span covering one snapshot build and delivery.
func StartCycleSpan(ctx context.Context, tracer trace.Tracer, status, target, runID string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "report cycle",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(AttrStatus.String(status))
	if target != "" {
		span.SetAttributes(AttrTarget.String(target))
	}
	if runID != "" {
		span.SetAttributes(AttrRunID.String(runID))
	}
	return ctx, span
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
