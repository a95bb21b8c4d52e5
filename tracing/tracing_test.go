package tracing

import (
	"context"
	"testing"
	"time"
)

func TestSetup_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), "", "test")
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("No-op shutdown returned %v", err)
	}

	_, span := Tracer("test").Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Error("Without an endpoint spans should not be recorded")
	}
	span.End()
}

func TestSetup_WithEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), "http://127.0.0.1:4318", "test")
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	_, span := Tracer("test").Start(context.Background(), "recorded")
	if !span.SpanContext().IsValid() {
		t.Error("A configured provider should produce valid span contexts")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = shutdown(ctx)
}
