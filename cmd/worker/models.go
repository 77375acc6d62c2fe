// cmd/worker/models.go
package main

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/SyedDaiam9101/batch-worker/internal/inference"
	"github.com/SyedDaiam9101/batch-worker/internal/schema"
)

// modelSpec bundles a model with the schemas of its jobs and results.
type modelSpec struct {
	name     string
	request  schema.Schema
	response schema.Schema
	model    inference.Model
	close    func() error
}

type textRequest struct {
	Text *string `json:"text" validate:"required"`
}

type spamResponse struct {
	Spam *bool `json:"spam" validate:"required"`
}

// spamSpec flags any text containing '@'.
func spamSpec() modelSpec {
	return modelSpec{
		name:     "spam",
		request:  schema.Struct[textRequest](),
		response: schema.Struct[spamResponse](),
		model: inference.Pipeline{
			Preprocess: func(item any) (any, error) {
				req, ok := item.(textRequest)
				if !ok {
					return nil, fmt.Errorf("unexpected item type %T", item)
				}
				return *req.Text, nil
			},
			Inference: func(batch []any) ([]any, error) {
				out := make([]any, len(batch))
				for i, text := range batch {
					out[i] = strings.Contains(text.(string), "@")
				}
				return out, nil
			},
			Postprocess: func(item any) (any, error) {
				return map[string]any{"spam": item}, nil
			},
		},
		close: func() error { return nil },
	}
}

// Sentence model tensor layout: sentences x words x embedding.
const (
	sentences = 3
	words     = 4
	embDim    = 5
)

type sentenceRequest struct {
	Text []string `json:"text" validate:"required,len=3"`
}

type sentenceResponse struct {
	Label []bool `json:"label" validate:"required,len=3"`
}

type sentenceModel struct {
	onnx *inference.ONNX

	mu  sync.Mutex
	rng *rand.Rand
}

func sentenceSpec(onnx *inference.ONNX, seed int64) modelSpec {
	m := &sentenceModel{onnx: onnx, rng: rand.New(rand.NewSource(seed))}
	return modelSpec{
		name:     "sentence",
		request:  schema.Struct[sentenceRequest](),
		response: schema.Struct[sentenceResponse](),
		model: inference.Pipeline{
			Preprocess:  m.embed,
			Inference:   m.run,
			Postprocess: label,
		},
		close: onnx.Close,
	}
}

// embed takes the first four words of each sentence and gives every non-empty
// word a random vector; padding and empty words stay zero.
func (m *sentenceModel) embed(item any) (any, error) {
	req, ok := item.(sentenceRequest)
	if !ok {
		return nil, fmt.Errorf("unexpected item type %T", item)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	emb := make([]float32, 0, sentences*words*embDim)
	for _, sent := range req.Text {
		tokens := strings.Split(sent, " ")
		for w := 0; w < words; w++ {
			present := w < len(tokens) && tokens[w] != ""
			for d := 0; d < embDim; d++ {
				if present {
					emb = append(emb, m.rng.Float32())
				} else {
					emb = append(emb, 0)
				}
			}
		}
	}
	return emb, nil
}

func (m *sentenceModel) run(batch []any) ([]any, error) {
	tensors := make([][]float32, len(batch))
	for i, item := range batch {
		tensors[i] = item.([]float32)
	}
	out, err := m.onnx.Run(tensors)
	if err != nil {
		return nil, err
	}
	results := make([]any, len(out))
	for i, row := range out {
		results[i] = row
	}
	return results, nil
}

// label marks a sentence true when the mean of its outputs exceeds 0.5.
func label(item any) (any, error) {
	row, ok := item.([]float32)
	if !ok || len(row) != sentences*words*embDim {
		return nil, fmt.Errorf("unexpected model output %T of size %d", item, len(row))
	}
	size := words * embDim
	labels := make([]bool, sentences)
	for s := range labels {
		var sum float64
		for _, v := range row[s*size : (s+1)*size] {
			sum += float64(v)
		}
		labels[s] = sum/float64(size) > 0.5
	}
	return map[string]any{"label": labels}, nil
}

// loadModel picks the built-in spam demo or loads the sentence model from an
// ONNX file.
func loadModel(name, libraryPath, input, output string, seed int64) (modelSpec, error) {
	if name == "spam" {
		return spamSpec(), nil
	}
	shape := []int64{sentences, words, embDim}
	onnx, err := inference.NewONNX(inference.ONNXConfig{
		ModelPath:   name,
		LibraryPath: libraryPath,
		InputName:   input,
		OutputName:  output,
		ItemShape:   shape,
		OutputShape: shape,
	})
	if err != nil {
		return modelSpec{}, err
	}
	return sentenceSpec(onnx, seed), nil
}
