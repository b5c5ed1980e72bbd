package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
)

type Tracer interface {
	Start()
	WithAttributes(attributes *SpanAttributes) Tracer
	AddEvent(name string, attributes EventAttributes)
	SetStatus(code codes.Code, message string)
	Spawn(spanName string) Tracer
	AddLink(spanContext trace.SpanContext)
	SpanContext() trace.SpanContext
	Export() string
	End()
}

type TracerKey struct{} // stores the active tracer in a context

type TracerFactory struct {
	telemetry Telemetry
}

type TracerFactoryParams struct {
	fx.In
	Telemetry Telemetry `optional:"true"`
}

func NewTracerFactory(p TracerFactoryParams) *TracerFactory {
	return &TracerFactory{telemetry: p.Telemetry}
}

// NewTracer returns a tracer for one top-level action. Without
// configured telemetry every call is a no-op.
func (t *TracerFactory) NewTracer(ctx context.Context, spanName string) Tracer {
	if t.telemetry == nil || t.telemetry.GetTracer() == nil {
		return &DummyTracer{}
	}
	return NewTelemetryTracer(ctx, t.telemetry.GetTracer(), spanName)
}

// A dummy tracer that does nothing when telemetry is not enabled
type DummyTracer struct{}

func (t *DummyTracer) Start()                                           {}
func (t *DummyTracer) WithAttributes(attributes *SpanAttributes) Tracer { return t }
func (t *DummyTracer) AddEvent(name string, attributes EventAttributes) {}
func (t *DummyTracer) SetStatus(code codes.Code, message string)        {}
func (t *DummyTracer) Spawn(spanName string) Tracer                     { return t }
func (t *DummyTracer) AddLink(spanContext trace.SpanContext)            {}
func (t *DummyTracer) SpanContext() trace.SpanContext                   { return trace.SpanContext{} }
func (t *DummyTracer) Export() string                                   { return "" }
func (t *DummyTracer) End()                                             {}
