package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func capture() (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return &Logger{slog.New(slog.NewJSONHandler(&buf, nil))}, &buf
}

func TestWithContextAddsIDs(t *testing.T) {
	log, buf := capture()

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	ctx = context.WithValue(ctx, ContactIDKey, "c-1")
	ctx = trace.ContextWithSpanContext(ctx, sc)

	log.WithContext(ctx).Info("hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec["request_id"] != "req-1" || rec["contact_id"] != "c-1" {
		t.Fatalf("expected request and contact ids, got %v", rec)
	}
	if rec["trace_id"] != traceID.String() {
		t.Fatalf("expected trace id %s, got %v", traceID, rec["trace_id"])
	}
}

func TestWithContextWithoutValuesReturnsSameLogger(t *testing.T) {
	log, _ := capture()
	if got := log.WithContext(context.Background()); got != log {
		t.Fatal("expected the same logger when ctx carries nothing")
	}
}
