package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	StatusKey       = "workflowd.execution.status"
	SuccessCountKey = "workflowd.execution.success"
	FailureCountKey = "workflowd.execution.failure"
)

// SetError marks span as failed. A nil err is ignored.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if err == nil {
		return
	}

	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
}

// RecordOutcome attaches the terminal counts of an execution to span. The span status is
// left alone: partial failures are a normal outcome, not a span error.
func RecordOutcome(span trace.Span, status string, success, failure int) {
	span.SetAttributes(
		attribute.String(StatusKey, status),
		attribute.Int(SuccessCountKey, success),
		attribute.Int(FailureCountKey, failure),
	)
}
