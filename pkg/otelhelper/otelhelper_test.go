package otelhelper

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpanAndSetError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")

	_, span := StartSpan(context.Background(), tracer, "task.importer.import_resource",
		attribute.String(ExecutionIDKey, "exec-1"))
	SetError(span, errors.New("boom"), attribute.String(TaskNameKey, "importer.import_resource"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "task.importer.import_resource", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String(ExecutionIDKey, "exec-1"))
}

func TestSetError_NilIsNoop(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")

	_, span := StartSpan(context.Background(), tracer, "ok")
	SetError(span, nil)
	span.End()

	assert.Equal(t, codes.Unset, recorder.Ended()[0].Status().Code)
}

func TestNoopTracer(t *testing.T) {
	_, span := StartSpan(context.Background(), NoopTracer(), "noop")
	defer span.End()

	assert.False(t, span.SpanContext().IsValid())
}

func TestAnnotate(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")

	ctx, span := StartSpan(context.Background(), tracer, "task.importer.publish_resource")
	Annotate(ctx, Step{
		HandlerKey: "importer.handlers.gpkg.GPKGFileHandler",
		Layer:      "stations",
		Alternate:  "geonode:stations",
	})
	span.End()

	attrs := recorder.Ended()[0].Attributes()
	assert.Contains(t, attrs, attribute.String(HandlerKeyKey, "importer.handlers.gpkg.GPKGFileHandler"))
	assert.Contains(t, attrs, attribute.String(LayerKey, "stations"))
	assert.Contains(t, attrs, attribute.String(AlternateKey, "geonode:stations"))

	for _, attr := range attrs {
		assert.NotEqual(t, attribute.Key(StepKey), attr.Key, "empty values are not recorded")
	}
}

func TestAnnotate_WithoutSpan(t *testing.T) {
	assert.NotPanics(t, func() {
		Annotate(context.Background(), Step{HandlerKey: "key"})
	})
}
