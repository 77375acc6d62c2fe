// internal/middleware/tracing.go
package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/SyedDaiam9101/batch-worker/internal/envelope"
)

const tracerName = "github.com/SyedDaiam9101/batch-worker/internal/middleware"

// WithTracing wraps each batch in a "batch.process" span.
func WithTracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return func(next Processor) Processor {
		return ProcessorFunc(func(ctx context.Context, req envelope.Request) (envelope.Response, error) {
			ctx, span := tracer.Start(ctx, "batch.process", trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()

			span.SetAttributes(
				attribute.String("batch.id", GetBatchID(ctx)),
				attribute.Int("batch.size", req.Len()),
			)
			resp, err := next.Process(ctx, req)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return resp, err
			}
			span.SetAttributes(attribute.Int("batch.errors", resp.ErrorCount))
			return resp, nil
		})
	}
}
