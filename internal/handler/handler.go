// internal/handler/handler.go
package handler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/SyedDaiam9101/batch-worker/internal/cache"
	"github.com/SyedDaiam9101/batch-worker/internal/envelope"
	"github.com/SyedDaiam9101/batch-worker/internal/inference"
	"github.com/SyedDaiam9101/batch-worker/internal/metrics"
	"github.com/SyedDaiam9101/batch-worker/internal/schema"
	"github.com/SyedDaiam9101/batch-worker/internal/serializer"
)

const tracerName = "github.com/SyedDaiam9101/batch-worker/internal/handler"

// ResultCache stores packed results keyed by cache.Key. *cache.Cache implements it.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Config wires a Handler. Serializer, Request, Response and Model are required.
type Config struct {
	Serializer *serializer.Serializer
	Request    schema.Schema
	Response   schema.Schema
	Model      inference.Model
	Cache      ResultCache
	Logger     zerolog.Logger
}

// Handler validates each job of a batch, runs the model on the valid ones and
// returns a response aligned with the request.
type Handler struct {
	ser      *serializer.Serializer
	request  schema.Schema
	response schema.Schema
	model    inference.Model
	cache    ResultCache
	logger   zerolog.Logger
}

// Outcome is the validation result of one job: Item when valid, otherwise
// Error holds the packed error payload.
type Outcome struct {
	Item   any
	Error  []byte
	Reason string
}

func (o Outcome) Valid() bool { return o.Error == nil }

type rejected struct {
	index   int
	payload []byte
}

// New creates a new Handler from cfg.
func New(cfg Config) (*Handler, error) {
	switch {
	case cfg.Serializer == nil:
		return nil, errors.New("handler: serializer is required")
	case cfg.Request == nil || cfg.Response == nil:
		return nil, errors.New("handler: request and response schemas are required")
	case cfg.Model == nil:
		return nil, errors.New("handler: model is required")
	}
	return &Handler{
		ser:      cfg.Serializer,
		request:  cfg.Request,
		response: cfg.Response,
		model:    cfg.Model,
		cache:    cfg.Cache,
		logger:   cfg.Logger,
	}, nil
}

// Validate deserializes and schema-checks one raw job payload.
func (h *Handler) Validate(raw []byte) (Outcome, error) {
	value, err := h.ser.Unpack(raw)
	if err != nil {
		payload, perr := h.ser.Pack(err.Error())
		if perr != nil {
			return Outcome{}, perr
		}
		return Outcome{Error: payload, Reason: ReasonDecode}, nil
	}

	item, err := h.request.Validate(value)
	if err != nil {
		payload, perr := h.ser.Pack(violationsOf(err))
		if perr != nil {
			return Outcome{}, perr
		}
		return Outcome{Error: payload, Reason: ReasonSchema}, nil
	}
	return Outcome{Item: item}, nil
}

// Process answers one batch. Invalid jobs get an error payload and are listed
// in ErrorIDs; the model only sees valid jobs and is skipped when there are
// none. A returned error is fatal to the batch.
func (h *Handler) Process(ctx context.Context, req envelope.Request) (envelope.Response, error) {
	h.logger.Debug().Strs("job_ids", req.IDs).Msg("received batch")

	var (
		validated []any
		validIdx  []int
		errs      []rejected
	)
	for i, raw := range req.Payloads {
		out, err := h.Validate(raw)
		if err != nil {
			return envelope.Response{}, fmt.Errorf("handler: pack error payload for job %q: %w", req.IDs[i], err)
		}
		if !out.Valid() {
			metrics.RecordInvalidItem(out.Reason)
			h.logger.Info().Str("job_id", req.IDs[i]).Str("reason", out.Reason).Msg("job rejected")
			errs = append(errs, rejected{index: i, payload: out.Error})
			continue
		}
		validated = append(validated, out.Item)
		validIdx = append(validIdx, i)
	}

	packed, err := h.infer(ctx, req, validated, validIdx)
	if err != nil {
		return envelope.Response{}, err
	}

	results := make([][]byte, 0, req.Len())
	results = append(results, packed...)
	errorIDs := ""
	for _, e := range errs {
		errorIDs += req.IDs[e.index]
		results = slices.Insert(results, e.index, e.payload)
	}

	return envelope.Response{
		IDs:        req.IDs,
		Payloads:   results,
		ErrorIDs:   errorIDs,
		ErrorCount: len(errs),
		Text:       !h.ser.Binary(),
	}, nil
}

// infer returns packed results for the validated items, in validated order.
// Items found in the cache skip the model.
func (h *Handler) infer(ctx context.Context, req envelope.Request, validated []any, validIdx []int) ([][]byte, error) {
	packed := make([][]byte, len(validated))
	keys := make([]string, len(validated))
	pending := make([]int, 0, len(validated))
	for j := range validated {
		if h.cache != nil {
			keys[j] = cache.Key(h.ser.Mode().String(), req.Payloads[validIdx[j]])
			if hit, ok := h.lookup(ctx, keys[j]); ok {
				packed[j] = hit
				continue
			}
		}
		pending = append(pending, j)
	}
	if len(pending) == 0 {
		return packed, nil
	}

	items := make([]any, len(pending))
	for k, j := range pending {
		items[k] = validated[j]
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "model.infer")
	span.SetAttributes(attribute.Int("batch.items", len(items)))
	start := time.Now()
	results, err := h.model.Infer(ctx, items)
	metrics.RecordInferenceLatency(time.Since(start).Seconds())
	span.End()
	if err != nil {
		return nil, inferenceError(err)
	}
	if len(results) != len(items) {
		return nil, cardinalityError(len(items), len(results))
	}

	for k, j := range pending {
		jobID := req.IDs[validIdx[j]]
		if _, err := h.response.Validate(results[k]); err != nil {
			return nil, invalidResultError(jobID, err)
		}
		b, err := h.ser.Pack(results[k])
		if err != nil {
			return nil, fmt.Errorf("handler: pack result for job %q: %w", jobID, err)
		}
		packed[j] = b
		if h.cache != nil {
			if err := h.cache.Set(ctx, keys[j], b); err != nil {
				h.logger.Warn().Err(err).Str("job_id", jobID).Msg("cache store failed")
			}
		}
	}
	return packed, nil
}

func (h *Handler) lookup(ctx context.Context, key string) ([]byte, bool) {
	b, ok, err := h.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.RecordCacheLookup("error")
		h.logger.Warn().Err(err).Msg("cache lookup failed")
		return nil, false
	case !ok:
		metrics.RecordCacheLookup("miss")
		return nil, false
	default:
		metrics.RecordCacheLookup("hit")
		return b, true
	}
}
