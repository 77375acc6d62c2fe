// internal/middleware/batch_id.go
package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/SyedDaiam9101/batch-worker/internal/envelope"
)

// batchIDKey is the context key for storing the batch ID
type batchIDKey struct{}

// WithBatchID assigns a fresh UUID to every batch and injects it into the
// context, so logs and spans of one process cycle can be correlated.
func WithBatchID() Middleware {
	return func(next Processor) Processor {
		return ProcessorFunc(func(ctx context.Context, req envelope.Request) (envelope.Response, error) {
			ctx = context.WithValue(ctx, batchIDKey{}, uuid.New().String())
			return next.Process(ctx, req)
		})
	}
}

// GetBatchID retrieves the batch ID from the context
func GetBatchID(ctx context.Context) string {
	if id, ok := ctx.Value(batchIDKey{}).(string); ok {
		return id
	}
	return ""
}
