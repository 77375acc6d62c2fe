package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "batch-worker", "debug", "json")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Debug().Str("conn_id", "c1").Msg("connected")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected a JSON line, got %q: %v", buf.String(), err)
	}
	if line["app"] != "batch-worker" || line["conn_id"] != "c1" || line["message"] != "connected" {
		t.Fatalf("unexpected fields: %v", line)
	}
}

func TestNewLoggerLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "batch-worker", "warn", "json")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level: %q", buf.String())
	}
	logger.Warn().Msg("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn missing: %q", buf.String())
	}
}

func TestNewLoggerConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "batch-worker", "", "console")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info().Msg("hello")
	if !strings.Contains(buf.String(), "hello") {
		t.Fatalf("console output missing message: %q", buf.String())
	}
}

func TestNewLoggerRejectsBadInput(t *testing.T) {
	var buf bytes.Buffer
	if _, err := NewLogger(&buf, "x", "loud", "json"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if _, err := NewLogger(&buf, "x", "info", "xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestInitTracerExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := initTracer(&buf, "batch-worker", "test", "")
	if err != nil {
		t.Fatalf("init tracer: %v", err)
	}
	_, span := otel.Tracer("test").Start(context.Background(), "batch.process")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), "batch.process") {
		t.Fatalf("span not exported: %q", buf.String())
	}
}
