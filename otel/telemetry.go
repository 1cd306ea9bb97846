package otel

import (
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	traceNoop "go.opentelemetry.io/otel/trace/noop"
)

const scopeName = "github.com/coderxlab/featurestream"

// Telemetry holds the tracer and propagator used by the pipeline.
// When no provider is configured both are noops.
type Telemetry struct {
	Tracer     trace.Tracer
	Propagator propagation.TextMapPropagator
}

// NewTelemetry creates a Telemetry from the given provider and propagator,
// both optional.
func NewTelemetry(tp trace.TracerProvider, prop propagation.TextMapPropagator) *Telemetry {
	if tp == nil {
		tp = traceNoop.NewTracerProvider()
	}
	if prop == nil {
		prop = propagation.TraceContext{}
	}

	return &Telemetry{
		Tracer:     tp.Tracer(scopeName),
		Propagator: prop,
	}
}

// Noop returns a Telemetry with noop instruments
func Noop() *Telemetry {
	return NewTelemetry(nil, nil)
}
