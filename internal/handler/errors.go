// internal/handler/errors.go
package handler

import (
	"errors"
	"fmt"

	"github.com/SyedDaiam9101/batch-worker/internal/schema"
)

// Batch-fatal errors. They point at a bug in the model code, not at bad input,
// and abort the whole batch.
var (
	ErrCardinality   = errors.New("handler: wrong number of inference results")
	ErrInvalidResult = errors.New("handler: inference result violates response schema")
	ErrInference     = errors.New("handler: inference failed")
)

// Rejection reasons, used as log fields and metric labels.
const (
	ReasonDecode = "decode"
	ReasonSchema = "schema"
)

// cardinalityError builds the length mismatch diagnostic
func cardinalityError(want, got int) error {
	return fmt.Errorf("%w: expected %d, got %d", ErrCardinality, want, got)
}

// invalidResultError builds the response schema diagnostic for one job
func invalidResultError(jobID string, err error) error {
	return fmt.Errorf("%w: job %q: %w", ErrInvalidResult, jobID, err)
}

// inferenceError wraps an error returned by the model
func inferenceError(err error) error {
	return fmt.Errorf("%w: %w", ErrInference, err)
}

// violationsOf returns the violation list carried by a schema error. Other
// errors become a single root violation.
func violationsOf(err error) []schema.Violation {
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		return verr.Violations
	}
	return []schema.Violation{{Loc: []string{schema.RootLoc}, Msg: err.Error(), Type: "value_error"}}
}
