// internal/middleware/metrics.go
package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/SyedDaiam9101/batch-worker/internal/envelope"
	"github.com/SyedDaiam9101/batch-worker/internal/metrics"
)

// WithMetrics records batch size, outcome and processing latency.
func WithMetrics() Middleware {
	return func(next Processor) Processor {
		return ProcessorFunc(func(ctx context.Context, req envelope.Request) (envelope.Response, error) {
			start := time.Now()
			metrics.RecordBatchSize(req.Len())

			resp, err := next.Process(ctx, req)

			outcome := "ok"
			if err != nil {
				outcome = "fatal"
			}
			metrics.RecordBatch(outcome, time.Since(start).Seconds())
			return resp, err
		})
	}
}

// WithLogging logs one line per batch: debug on success, error on a fatal failure.
func WithLogging(logger zerolog.Logger) Middleware {
	return func(next Processor) Processor {
		return ProcessorFunc(func(ctx context.Context, req envelope.Request) (envelope.Response, error) {
			start := time.Now()
			resp, err := next.Process(ctx, req)

			batchID := GetBatchID(ctx)
			if batchID == "" {
				batchID = "unknown"
			}
			if err != nil {
				logger.Error().Err(err).Str("batch_id", batchID).Int("jobs", req.Len()).Msg("batch failed")
				return resp, err
			}
			logger.Debug().
				Str("batch_id", batchID).
				Int("jobs", req.Len()).
				Str("error_ids", resp.ErrorIDs).
				Dur("duration", time.Since(start)).
				Msg("batch processed")
			return resp, nil
		})
	}
}
