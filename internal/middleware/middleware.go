// Package middleware wraps batch processing with cross-cutting concerns:
// batch ids, logging, metrics and tracing.
package middleware

import (
	"context"

	"github.com/SyedDaiam9101/batch-worker/internal/envelope"
)

// Processor answers one batch. *handler.Handler and worker.Processor share this shape.
type Processor interface {
	Process(ctx context.Context, req envelope.Request) (envelope.Response, error)
}

// ProcessorFunc adapts a plain function to Processor.
type ProcessorFunc func(ctx context.Context, req envelope.Request) (envelope.Response, error)

func (f ProcessorFunc) Process(ctx context.Context, req envelope.Request) (envelope.Response, error) {
	return f(ctx, req)
}

// Middleware decorates a Processor.
type Middleware func(next Processor) Processor

// Chain applies mws around p. The first middleware is the outermost.
func Chain(p Processor, mws ...Middleware) Processor {
	for i := len(mws) - 1; i >= 0; i-- {
		p = mws[i](p)
	}
	return p
}
