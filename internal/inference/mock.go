// internal/inference/mock.go
package inference

import (
	"context"
	"fmt"
)

// Mock is a Model for tests. It maps every item through Fn (identity when nil)
// and records each batch it receives.
type Mock struct {
	// Fn computes one result per item
	Fn func(item any) any
	// Extra appends this many additional results, to exercise cardinality checks
	Extra int
	// ShouldError if true, Infer will return an error
	ShouldError bool
	// ErrorMessage is the error message to return when ShouldError is true
	ErrorMessage string
	// CallCount tracks the number of times Infer was called
	CallCount int
	// Batches holds every batch passed to Infer
	Batches [][]any
}

// NewMock creates a Mock that applies fn to each item
func NewMock(fn func(item any) any) *Mock {
	return &Mock{Fn: fn}
}

// Infer returns one result per item, plus Extra trailing nils.
func (m *Mock) Infer(ctx context.Context, items []any) ([]any, error) {
	m.CallCount++
	m.Batches = append(m.Batches, items)

	if m.ShouldError {
		if m.ErrorMessage != "" {
			return nil, fmt.Errorf("%s", m.ErrorMessage)
		}
		return nil, fmt.Errorf("mock inference error")
	}

	results := make([]any, 0, len(items)+m.Extra)
	for _, item := range items {
		if m.Fn == nil {
			results = append(results, item)
			continue
		}
		results = append(results, m.Fn(item))
	}
	for i := 0; i < m.Extra; i++ {
		results = append(results, nil)
	}
	return results, nil
}

// SetError configures the mock to return an error on the next Infer call
func (m *Mock) SetError(msg string) {
	m.ShouldError = true
	m.ErrorMessage = msg
}

// ClearError clears any configured error
func (m *Mock) ClearError() {
	m.ShouldError = false
	m.ErrorMessage = ""
}

// Ensure Mock implements Model at compile time
var _ Model = (*Mock)(nil)
