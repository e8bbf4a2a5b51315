package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "taskdeck/agent-api"

// GetTracer returns the tracer for the agent service.
func GetTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// RequestAttributes returns common attributes for inbound chat requests.
func RequestAttributes(route, conversationID, agentType string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("http.route", route)}
	if conversationID != "" {
		attrs = append(attrs, attribute.String("conversation.id", conversationID))
	}
	if agentType != "" {
		attrs = append(attrs, attribute.String("agent.type", agentType))
	}
	return attrs
}

// StartRequestSpan starts a server span for an inbound request.
func StartRequestSpan(ctx context.Context, method, route string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, method+" "+route,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("http.method", method), attribute.String("http.route", route)),
	)
}

// StartSummarySpan starts a span for one background summary task.
func StartSummarySpan(ctx context.Context, taskID uint, conversationID string, attempt int) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "summary.execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int64("task.id", int64(taskID)),
			attribute.String("conversation.id", conversationID),
			attribute.Int("task.attempt", attempt),
		),
	)
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error, severity string) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("error.severity", severity))
}

// TraceIDs returns the trace and span ids of the span in ctx, empty when there is none.
func TraceIDs(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}
