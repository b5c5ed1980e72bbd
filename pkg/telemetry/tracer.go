package telemetry

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type TelemetryTracer struct {
	tracer     trace.Tracer
	span       trace.Span
	tracerCtx  context.Context // child spans branch off this
	links      []trace.Link
	spanName   string
	attributes *SpanAttributes

	started bool
}

func NewTelemetryTracer(ctx context.Context, tracer trace.Tracer, spanName string) *TelemetryTracer {
	return &TelemetryTracer{
		tracer:     tracer,
		tracerCtx:  ctx,
		spanName:   spanName,
		attributes: EmptySpanAttributes(),
	}
}

func (t *TelemetryTracer) Start() {
	attributes := t.attributes.Attributes()
	attributes = append(attributes, attribute.String("fuzzforge.action.name", t.spanName))
	t.tracerCtx, t.span = t.tracer.Start(t.tracerCtx,
		t.spanName,
		trace.WithAttributes(attributes...),
		trace.WithLinks(t.links...))
	t.started = true
}

func (t *TelemetryTracer) SetStatus(code codes.Code, message string) {
	t.span.SetStatus(code, message)
}

func (t *TelemetryTracer) WithAttributes(attributes *SpanAttributes) Tracer {
	t.attributes.Merge(attributes)
	if t.started {
		t.span.SetAttributes(t.attributes.Attributes()...)
	}
	return t
}

func (t *TelemetryTracer) AddEvent(name string, e EventAttributes) {
	t.span.AddEvent(name, trace.WithAttributes(e...))
}

func (t *TelemetryTracer) Spawn(spanName string) Tracer {
	newTracer := NewTelemetryTracer(t.tracerCtx, t.tracer, spanName)
	return newTracer.WithAttributes(t.attributes)
}

func (t *TelemetryTracer) AddLink(spanContext trace.SpanContext) {
	link := trace.Link{SpanContext: spanContext}
	t.links = append(t.links, link)
	if t.started {
		t.span.AddLink(link)
	}
}

// Export serializes the tracing context to a JSON carrier, suitable for
// embedding in an event payload.
func (t *TelemetryTracer) Export() string {
	carrier := make(map[string]string)
	otel.GetTextMapPropagator().Inject(t.tracerCtx, propagation.MapCarrier(carrier))
	payload, _ := json.Marshal(carrier)
	return string(payload)
}

// SpanContext exposes the live span's context so a sibling attempt can
// link back to it.
func (t *TelemetryTracer) SpanContext() trace.SpanContext {
	if !t.started {
		return trace.SpanContext{}
	}
	return t.span.SpanContext()
}

func (t *TelemetryTracer) End() {
	if !t.started {
		return
	}
	t.span.End()
}
