package otelhelper

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordingTracer(t *testing.T) (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	t.Cleanup(func() { _ = provider.Shutdown(t.Context()) })

	return recorder, provider
}

func TestSetError(t *testing.T) {
	recorder, provider := recordingTracer(t)

	_, span := StartSpan(t.Context(), provider.Tracer("test"), "workflow.execute",
		attribute.String(WorkflowIDKey, "wf-1"))
	SetError(span, errors.New("directory unreachable"), attribute.String(ShopIDKey, "shop-1"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "directory unreachable", spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}

func TestSetError_NilIsIgnored(t *testing.T) {
	recorder, provider := recordingTracer(t)

	_, span := StartSpan(t.Context(), provider.Tracer("test"), "workflow.execute")
	SetError(span, nil)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Empty(t, spans[0].Events())
}

func TestRecordOutcome(t *testing.T) {
	recorder, provider := recordingTracer(t)

	_, span := StartSpan(t.Context(), provider.Tracer("test"), "workflow.execute")
	RecordOutcome(span, "PARTIALLY_FAILED", 3, 2)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Contains(t, spans[0].Attributes(), attribute.String(StatusKey, "PARTIALLY_FAILED"))
	assert.Contains(t, spans[0].Attributes(), attribute.Int(SuccessCountKey, 3))
	assert.Contains(t, spans[0].Attributes(), attribute.Int(FailureCountKey, 2))
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}
