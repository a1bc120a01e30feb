package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Custody semantic attributes.
var (
	AttrOperation  = attribute.Key("custody.operation")
	AttrRecordID   = attribute.Key("custody.record.id")
	AttrRecordType = attribute.Key("custody.record.type")
	AttrPrincipal  = attribute.Key("custody.principal")
	AttrProvenance = attribute.Key("custody.storage.provenance")
	AttrOutcome    = attribute.Key("custody.audit.outcome")
)

// RecordOperation returns the attributes common to record-scoped operations.
func RecordOperation(recordID, principal string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrRecordID.String(recordID),
		AttrPrincipal.String(principal),
	}
}

// AddSpanEvent adds an event to the span in ctx.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}
