// internal/inference/model.go
package inference

import (
	"context"
	"fmt"
)

// Model runs inference on a batch of validated items. The result must have the
// same length and order as items.
type Model interface {
	Infer(ctx context.Context, items []any) ([]any, error)
}

// ModelFunc adapts a plain function to Model.
type ModelFunc func(ctx context.Context, items []any) ([]any, error)

func (f ModelFunc) Infer(ctx context.Context, items []any) ([]any, error) {
	return f(ctx, items)
}

// Pipeline chains per-item preprocessing, batch inference and per-item
// postprocessing. A nil stage is the identity.
type Pipeline struct {
	Preprocess  func(item any) (any, error)
	Inference   func(batch []any) ([]any, error)
	Postprocess func(item any) (any, error)
}

// Infer runs the three stages in order.
func (p Pipeline) Infer(ctx context.Context, items []any) ([]any, error) {
	batch := make([]any, len(items))
	for i, item := range items {
		if p.Preprocess == nil {
			batch[i] = item
			continue
		}
		out, err := p.Preprocess(item)
		if err != nil {
			return nil, fmt.Errorf("preprocess item %d: %w", i, err)
		}
		batch[i] = out
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Inference != nil {
		out, err := p.Inference(batch)
		if err != nil {
			return nil, fmt.Errorf("inference: %w", err)
		}
		batch = out
	}

	if p.Postprocess == nil {
		return batch, nil
	}
	results := make([]any, len(batch))
	for i, item := range batch {
		out, err := p.Postprocess(item)
		if err != nil {
			return nil, fmt.Errorf("postprocess item %d: %w", i, err)
		}
		results[i] = out
	}
	return results, nil
}

// Ensure Pipeline implements Model at compile time
var _ Model = Pipeline{}
