package logging

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithOperationAddsRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := ContextWithRequestID(context.Background(), "req-7")

	WithOperation(ctx, zap.New(core), "store.load", "doc-1").Info("loaded")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["operation"] != "store.load" || fields["document_id"] != "doc-1" || fields["request_id"] != "req-7" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestWithOperationWithoutRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	WithOperation(context.Background(), zap.New(core), "repository.list_values", "").Info("listed")

	fields := logs.All()[0].ContextMap()
	if _, ok := fields["request_id"]; ok {
		t.Fatalf("did not expect a request id: %v", fields)
	}
	if _, ok := fields["document_id"]; ok {
		t.Fatalf("did not expect a document id: %v", fields)
	}
}

func TestRequestIDFromEmptyContext(t *testing.T) {
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty request id, got %q", got)
	}
	if got := RequestIDFromContext(ContextWithRequestID(context.Background(), "")); got != "" {
		t.Fatalf("expected empty request id, got %q", got)
	}
}
