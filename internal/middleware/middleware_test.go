// internal/middleware/middleware_test.go
package middleware

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/SyedDaiam9101/batch-worker/internal/envelope"
)

func echo() Processor {
	return ProcessorFunc(func(ctx context.Context, req envelope.Request) (envelope.Response, error) {
		return envelope.Response{IDs: req.IDs, Payloads: req.Payloads}, nil
	})
}

func TestWithBatchID_GeneratesID(t *testing.T) {
	var captured context.Context
	p := Chain(ProcessorFunc(func(ctx context.Context, req envelope.Request) (envelope.Response, error) {
		captured = ctx
		return envelope.Response{}, nil
	}), WithBatchID())

	if _, err := p.Process(context.Background(), envelope.Request{}); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	batchID := GetBatchID(captured)
	// Verify it looks like a UUID (36 chars with dashes)
	if len(batchID) != 36 {
		t.Errorf("Expected UUID format (36 chars), got %d chars: %s", len(batchID), batchID)
	}
}

func TestGetBatchID_EmptyContext(t *testing.T) {
	if id := GetBatchID(context.Background()); id != "" {
		t.Errorf("Expected empty batch ID from empty context, got %s", id)
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next Processor) Processor {
			return ProcessorFunc(func(ctx context.Context, req envelope.Request) (envelope.Response, error) {
				order = append(order, name)
				return next.Process(ctx, req)
			})
		}
	}

	if _, err := Chain(echo(), mark("outer"), mark("inner")).Process(context.Background(), envelope.Request{}); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !reflect.DeepEqual(order, []string{"outer", "inner"}) {
		t.Errorf("unexpected order: %v", order)
	}
}

func TestFullChainPassesThrough(t *testing.T) {
	p := Chain(echo(), WithBatchID(), WithLogging(zerolog.Nop()), WithMetrics(), WithTracing())
	req := envelope.Request{IDs: []string{"a"}, Payloads: [][]byte{[]byte("x")}}

	resp, err := p.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !reflect.DeepEqual(resp.IDs, req.IDs) {
		t.Errorf("unexpected response: %+v", resp)
	}

	boom := errors.New("boom")
	failing := Chain(ProcessorFunc(func(context.Context, envelope.Request) (envelope.Response, error) {
		return envelope.Response{}, boom
	}), WithBatchID(), WithLogging(zerolog.Nop()), WithMetrics(), WithTracing())
	if _, err := failing.Process(context.Background(), req); !errors.Is(err, boom) {
		t.Errorf("Expected boom, got %v", err)
	}
}

func TestWithTracingReportsErrorCount(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	// "a" and "aa" make the concatenated ids ambiguous on purpose
	p := Chain(ProcessorFunc(func(context.Context, envelope.Request) (envelope.Response, error) {
		return envelope.Response{IDs: []string{"a", "aa", "b"}, ErrorIDs: "aab", ErrorCount: 2}, nil
	}), WithBatchID(), WithTracing())
	if _, err := p.Process(context.Background(), envelope.Request{IDs: []string{"a", "aa", "b"}}); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 || spans[0].Name() != "batch.process" {
		t.Fatalf("Expected one batch.process span, got %d", len(spans))
	}
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if got := attrs["batch.errors"].AsInt64(); got != 2 {
		t.Errorf("Expected batch.errors=2, got %d", got)
	}
	if got := attrs["batch.size"].AsInt64(); got != 3 {
		t.Errorf("Expected batch.size=3, got %d", got)
	}
	if len(attrs["batch.id"].AsString()) != 36 {
		t.Errorf("Expected a batch id attribute, got %q", attrs["batch.id"].AsString())
	}
}
