// internal/inference/inference_test.go
package inference

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"
)

func TestPipelineRunsStagesInOrder(t *testing.T) {
	var seen []string
	p := Pipeline{
		Preprocess: func(item any) (any, error) {
			seen = append(seen, "pre")
			return item.(int) * 10, nil
		},
		Inference: func(batch []any) ([]any, error) {
			seen = append(seen, "infer")
			out := make([]any, len(batch))
			for i, v := range batch {
				out[i] = v.(int) + 1
			}
			return out, nil
		},
		Postprocess: func(item any) (any, error) {
			seen = append(seen, "post")
			return map[string]any{"value": item}, nil
		},
	}

	got, err := p.Infer(context.Background(), []any{1, 2})
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	want := []any{map[string]any{"value": 11}, map[string]any{"value": 21}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, expected %#v", got, want)
	}
	if !reflect.DeepEqual(seen, []string{"pre", "pre", "infer", "post", "post"}) {
		t.Errorf("unexpected stage order: %v", seen)
	}
}

func TestPipelineNilStagesAreIdentity(t *testing.T) {
	got, err := Pipeline{}.Infer(context.Background(), []any{"a", "b"})
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if !reflect.DeepEqual(got, []any{"a", "b"}) {
		t.Errorf("got %#v", got)
	}
}

func TestPipelineStageError(t *testing.T) {
	boom := errors.New("boom")
	p := Pipeline{Postprocess: func(any) (any, error) { return nil, boom }}
	_, err := p.Infer(context.Background(), []any{1})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected wrapped boom, got %v", err)
	}
}

func TestMockInference_Infer(t *testing.T) {
	mock := NewMock(func(item any) any { return item.(string) + "!" })

	got, err := mock.Infer(context.Background(), []any{"a", "b"})
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if !reflect.DeepEqual(got, []any{"a!", "b!"}) {
		t.Errorf("got %#v", got)
	}
	if mock.CallCount != 1 || len(mock.Batches[0]) != 2 {
		t.Errorf("Expected one call of size 2, got %d calls", mock.CallCount)
	}
}

func TestMockInference_Error(t *testing.T) {
	mock := NewMock(nil)
	mock.SetError("test error")

	_, err := mock.Infer(context.Background(), []any{1})
	if err == nil || err.Error() != "test error" {
		t.Fatalf("Expected 'test error', got %v", err)
	}

	mock.ClearError()
	if _, err := mock.Infer(context.Background(), []any{1}); err != nil {
		t.Fatalf("Expected no error after ClearError, got %v", err)
	}
}

func TestONNXRejectsBadShapes(t *testing.T) {
	_, err := NewONNX(ONNXConfig{InputName: "in", OutputName: "out", ItemShape: []int64{3, 0}, OutputShape: []int64{1}})
	if err == nil {
		t.Fatal("Expected error for zero-sized item shape")
	}
}

func TestONNX_WithModel(t *testing.T) {
	// Skip if ONNX model or library is not available
	modelPath := "testdata/sigmoid.onnx"
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		t.Skip("Skipping ONNX test: testdata/sigmoid.onnx not found")
	}

	model, err := NewONNX(ONNXConfig{
		ModelPath:   modelPath,
		LibraryPath: os.Getenv("ONNXRUNTIME_LIB"),
		InputName:   "input",
		OutputName:  "output",
		ItemShape:   []int64{3, 4, 5},
		OutputShape: []int64{3, 4, 5},
	})
	if err != nil {
		t.Skipf("Skipping ONNX test: %v", err)
	}
	defer model.Close()

	out, err := model.Run([][]float32{make([]float32, 60)})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(out) != 1 || len(out[0]) != 60 {
		t.Errorf("Expected 1x60 output, got %dx%d", len(out), len(out[0]))
	}
}
