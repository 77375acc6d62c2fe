// internal/inference/onnx.go
package inference

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXConfig describes a model with one float32 input and one float32 output,
// both batched on the leading dimension.
type ONNXConfig struct {
	ModelPath   string
	LibraryPath string
	InputName   string
	OutputName  string
	// ItemShape is the input shape of a single item, without the batch dimension
	ItemShape []int64
	// OutputShape is the output shape of a single item, without the batch dimension
	OutputShape []int64
}

// ONNX wraps an ONNX runtime session for thread-safe batch inference.
type ONNX struct {
	mu       sync.Mutex
	session  *ort.DynamicAdvancedSession
	cfg      ONNXConfig
	itemSize int64
	outSize  int64
}

// NewONNX loads the model at cfg.ModelPath.
func NewONNX(cfg ONNXConfig) (*ONNX, error) {
	if cfg.InputName == "" || cfg.OutputName == "" {
		return nil, fmt.Errorf("onnx: input and output names are required")
	}
	itemSize, outSize := product(cfg.ItemShape), product(cfg.OutputShape)
	if itemSize <= 0 || outSize <= 0 {
		return nil, fmt.Errorf("onnx: invalid shapes: item=%v output=%v", cfg.ItemShape, cfg.OutputShape)
	}
	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	// Dynamic session so the batch dimension can vary per call
	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNX{session: session, cfg: cfg, itemSize: itemSize, outSize: outSize}, nil
}

// Run feeds one flattened tensor per item and returns one flattened output per item.
func (o *ONNX) Run(batch [][]float32) ([][]float32, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session == nil {
		return nil, fmt.Errorf("inference session is nil")
	}
	n := int64(len(batch))
	if n == 0 {
		return nil, fmt.Errorf("empty batch")
	}

	tensorData := make([]float32, 0, n*o.itemSize)
	for i, item := range batch {
		if int64(len(item)) != o.itemSize {
			return nil, fmt.Errorf("item %d has wrong size: got %d, expected %d", i, len(item), o.itemSize)
		}
		tensorData = append(tensorData, item...)
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(append([]int64{n}, o.cfg.ItemShape...)...), tensorData)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(append([]int64{n}, o.cfg.OutputShape...)...))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	err = o.session.Run(
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
	)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	flat := outputTensor.GetData()
	out := make([][]float32, n)
	for i := range out {
		row := make([]float32, o.outSize)
		copy(row, flat[int64(i)*o.outSize:int64(i+1)*o.outSize])
		out[i] = row
	}
	return out, nil
}

// Close releases the ONNX session resources
func (o *ONNX) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session != nil {
		err := o.session.Destroy()
		o.session = nil
		if err != nil {
			return fmt.Errorf("failed to destroy session: %w", err)
		}
	}
	return ort.DestroyEnvironment()
}

func product(shape []int64) int64 {
	if len(shape) == 0 {
		return 0
	}
	p := int64(1)
	for _, d := range shape {
		p *= d
	}
	return p
}
