package tracker

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"goa.design/agentdesk/runtime/telemetry"
)

// Observability emits logs, metrics and spans for executions.
//
// Metrics recorded:
//   - agentdesk.execution.duration: timer of execution response time
//   - agentdesk.execution.success: counter of completed executions
//   - agentdesk.execution.error: counter of failed executions
type Observability struct {
	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer
}

// NewObservability returns an Observability over set. Nil members are
// replaced with no-op implementations.
func NewObservability(set telemetry.Set) *Observability {
	set = set.WithDefaults()
	return &Observability{logger: set.Logger, metrics: set.Metrics, tracer: set.Tracer}
}

// StartSpan opens the span covering one execution.
func (o *Observability) StartSpan(ctx context.Context, inv Invocation) (context.Context, telemetry.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("agentdesk.capability", inv.CapabilityID),
		attribute.String("agentdesk.operation", inv.OperationID),
	}
	if inv.SessionID != "" {
		attrs = append(attrs, attribute.String("agentdesk.session", inv.SessionID))
	}
	return o.tracer.Start(ctx, "execution."+inv.CapabilityID+"."+inv.OperationID, trace.WithAttributes(attrs...))
}

// Record logs the terminal execution, records its metrics and ends span.
func (o *Observability) Record(ctx context.Context, span telemetry.Span, e Execution, cause error) {
	tags := []string{
		"capability", e.CapabilityID,
		"operation", e.OperationID,
		"status", string(e.Status),
	}
	o.metrics.RecordTimer("agentdesk.execution.duration", time.Duration(e.ResponseTimeMs)*time.Millisecond, tags...)

	keyvals := []any{
		"execution", e.ID,
		"capability", e.CapabilityID,
		"operation", e.OperationID,
		"duration_ms", e.ResponseTimeMs,
	}
	if e.SessionID != "" {
		keyvals = append(keyvals, "session", e.SessionID)
	}
	if e.Status == StatusError {
		o.metrics.IncCounter("agentdesk.execution.error", 1, tags...)
		o.logger.Error(ctx, "execution failed", append(keyvals, "error", cause)...)
		if span != nil {
			span.RecordError(cause)
			span.SetStatus(codes.Error, e.Error)
		}
	} else {
		o.metrics.IncCounter("agentdesk.execution.success", 1, tags...)
		o.logger.Info(ctx, "execution completed", keyvals...)
		if span != nil {
			span.SetStatus(codes.Ok, "")
		}
	}
	if span != nil {
		span.End()
	}
}
