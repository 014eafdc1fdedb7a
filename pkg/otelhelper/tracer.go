// Package otelhelper provides distributed tracing helpers for the import pipeline.
package otelhelper

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// Common attribute keys.
	ExecutionIDKey = "geoimporter.execution.id"
	TaskNameKey    = "geoimporter.task.name"
	TaskIDKey      = "geoimporter.task.id"
	RetriesKey     = "geoimporter.task.retries"
	HandlerKeyKey  = "geoimporter.handler.key"
	StepKey        = "geoimporter.step"
	LayerKey       = "geoimporter.layer"
	AlternateKey   = "geoimporter.alternate"
	ActionKey      = "geoimporter.action"
	WorkerIDKey    = "geoimporter.worker.id"
)

// NewTracer builds an OTLP/HTTP tracer. The exporter reads the standard OTEL_EXPORTER_OTLP_* variables.
//
// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func NewTracer(ctx context.Context, serviceName string) (trace.Tracer, error) {
	provider, err := newTracerProvider(ctx, serviceName)
	if err != nil {
		return nil, err
	}

	return provider.Tracer(serviceName), nil
}

// NoopTracer returns a tracer that records nothing.
//
// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func NoopTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer("geoimporter")
}

// nolint:ireturn,spancheck // Returning interface is intentional for OpenTelemetry tracing
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func newTracerProvider(ctx context.Context, serviceName string) (*sdktrace.TracerProvider, error) {
	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}))

	return tp, nil
}

// Step describes the importer step a task span runs. Empty fields are not recorded.
type Step struct {
	HandlerKey string
	Step       string
	Layer      string
	Alternate  string
	Action     string
}

func (s Step) Attributes() []attribute.KeyValue {
	values := []struct{ key, value string }{
		{HandlerKeyKey, s.HandlerKey},
		{StepKey, s.Step},
		{LayerKey, s.Layer},
		{AlternateKey, s.Alternate},
		{ActionKey, s.Action},
	}

	attrs := make([]attribute.KeyValue, 0, len(values))
	for _, v := range values {
		if v.value != "" {
			attrs = append(attrs, attribute.String(v.key, v.value))
		}
	}

	return attrs
}

// Annotate adds step to the span active in ctx.
func Annotate(ctx context.Context, step Step) {
	trace.SpanFromContext(ctx).SetAttributes(step.Attributes()...)
}
