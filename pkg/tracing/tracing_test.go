package tracing

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func attrMap(attrs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(attrs))
	for _, kv := range attrs {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Enabled {
		t.Error("expected tracing disabled by default")
	}
	if cfg.ServiceName != "livesession" {
		t.Errorf("expected service name 'livesession', got '%s'", cfg.ServiceName)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("expected sample rate 1.0, got %f", cfg.SampleRate)
	}
}

func TestInit_Disabled(t *testing.T) {
	tp, err := Init(Config{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown of disabled provider should be a no-op, got %v", err)
	}
}

func TestTraceConnectAttempt(t *testing.T) {
	sr := withRecorder(t)

	ctx, span := TraceConnectAttempt(context.Background(), "client_1", "ws://localhost/ws", 3)
	AddSpanAttributes(ctx, StateKey.String("live"))
	span.End()

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "session.connect" {
		t.Errorf("unexpected span name %q", spans[0].Name())
	}
	attrs := attrMap(spans[0].Attributes())
	if attrs[AttemptKey].AsInt64() != 3 {
		t.Errorf("expected attempt 3, got %v", attrs[AttemptKey])
	}
	if attrs[StateKey].AsString() != "live" {
		t.Errorf("expected state attribute, got %v", attrs[StateKey])
	}
}

func TestTraceCommand(t *testing.T) {
	sr := withRecorder(t)

	_, span := TraceCommand(context.Background(), "chat_message", "s1")
	span.End()

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "session.command.chat_message" {
		t.Errorf("unexpected span name %q", spans[0].Name())
	}
	if attrMap(spans[0].Attributes())[StreamIDKey].AsString() != "s1" {
		t.Error("expected stream id attribute")
	}
}

func TestRecordError(t *testing.T) {
	sr := withRecorder(t)

	ctx, span := startSpan(context.Background(), "test")
	RecordError(ctx, errors.New("dial refused"))
	span.End()

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", spans[0].Status().Code)
	}
	if len(spans[0].Events()) == 0 {
		t.Error("expected an exception event")
	}
}

func TestMeasureDuration(t *testing.T) {
	sr := withRecorder(t)

	ctx, span := startSpan(context.Background(), "test")
	MeasureDuration(ctx, time.Now().Add(-25*time.Millisecond))
	span.End()

	got := attrMap(sr.Ended()[0].Attributes())[DurationKey].AsInt64()
	if got < 25 {
		t.Errorf("expected duration >= 25ms, got %d", got)
	}
}

func TestTraceHTTPRequest(t *testing.T) {
	_, span := TraceHTTPRequest(context.Background(), "GET", "/api/v1/session")
	if span == nil {
		t.Error("expected non-nil span")
	}
	span.End()
}
