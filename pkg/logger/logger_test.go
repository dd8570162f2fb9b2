package logger

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap/zapcore"
)

func TestLoggerInit(t *testing.T) {
	for _, format := range []string{"json", "console", ""} {
		if err := Init(format); err != nil {
			t.Fatalf("Init(%q): %v", format, err)
		}
		if Get() == nil {
			t.Fatal("logger is nil after initialization")
		}
	}
	if err := Init("xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
	if err := Sync(); err != nil {
		t.Errorf("sync: %v", err)
	}
}

func TestLoggerNamed(t *testing.T) {
	if err := Init("json"); err != nil {
		t.Fatalf("init: %v", err)
	}
	named := Named("test")
	if named == nil {
		t.Fatal("named logger is nil")
	}
	named.Info(context.Background(), "test message")
}

func TestSetLevelString(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "warning", "error", ""} {
		if err := SetLevelString(lvl); err != nil {
			t.Errorf("SetLevelString(%q): %v", lvl, err)
		}
	}
	if err := SetLevelString("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
	_ = SetLevelString("info")
}

func TestObservedCapturesFields(t *testing.T) {
	log, logs := NewObserved()
	log.Named("pipeline").Warn(context.Background(), "record skipped",
		String("reason", "bad_timestamp"), Int("line", 4), Error(errors.New("boom")))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Level != zapcore.WarnLevel || e.Message != "record skipped" || e.LoggerName != "pipeline" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	ctx := e.ContextMap()
	if ctx["reason"] != "bad_timestamp" || ctx["line"] != int64(4) {
		t.Fatalf("unexpected fields: %v", ctx)
	}
}

func TestTraceCorrelation(t *testing.T) {
	tp := trace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	log, logs := NewObserved()
	log.Info(ctx, "with span")
	log.Info(context.Background(), "without span")

	withSpan := logs.FilterMessage("with span").All()[0].ContextMap()
	if withSpan["trace_id"] != span.SpanContext().TraceID().String() {
		t.Fatalf("missing trace_id: %v", withSpan)
	}
	if _, ok := logs.FilterMessage("without span").All()[0].ContextMap()["trace_id"]; ok {
		t.Fatal("unexpected trace_id without span")
	}
}
