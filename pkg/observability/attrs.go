package observability

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute helpers for the substrate's operations, so spans across
// components agree on key names.

// WorldlineOperation annotates a span with a worldline state transition.
func WorldlineOperation(worldlineID, state, operation string, chainLength int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("substrate.worldline.id", worldlineID),
		attribute.String("substrate.worldline.state", state),
		attribute.String("substrate.operation", operation),
		attribute.Int("substrate.worldline.chain_length", chainLength),
	}
}

// CommitmentOperation annotates a span with a commitment lifecycle action.
func CommitmentOperation(worldlineID, commitmentID, stage, verdict string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("substrate.worldline.id", worldlineID),
		attribute.String("substrate.commitment.id", commitmentID),
		attribute.String("substrate.gate.stage", stage),
		attribute.String("substrate.gate.verdict", verdict),
	}
}

// PolicyOperation annotates a span with a policy evaluation.
func PolicyOperation(resource, action, decision string, durationMs float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("substrate.policy.resource", resource),
		attribute.String("substrate.policy.action", action),
		attribute.String("substrate.policy.decision", decision),
		attribute.Float64("substrate.policy.duration_ms", durationMs),
	}
}

// ComplianceOperation annotates a span with a compliance check.
func ComplianceOperation(jurisdiction, framework, article string, compliant bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("substrate.compliance.jurisdiction", jurisdiction),
		attribute.String("substrate.compliance.framework", framework),
		attribute.String("substrate.compliance.article", article),
		attribute.Bool("substrate.compliance.compliant", compliant),
	}
}

// CryptoOperation annotates a span with a cryptographic action.
func CryptoOperation(algorithm, operation, keyID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("substrate.crypto.algorithm", algorithm),
		attribute.String("substrate.crypto.operation", operation),
		attribute.String("substrate.crypto.key_id", keyID),
	}
}

// SpanFromContext returns the active span, or a no-op span.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent records an event on the active span, if any.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus marks the active span failed or ok.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return
	}
	span.SetStatus(codes.Ok, "")
}
