package embedder

import (
	"context"

	"github.com/altaidevorg/letsearch/float16"
)

// ONNX is the integration point for running a downloaded model file (an
// ONNX graph resolved by modelhub) through an inference runtime. Wiring an
// actual ONNX runtime is out of scope here; ONNX documents the shape a real
// backend would fill in and fails loudly so callers don't silently get
// zero vectors.
type ONNX struct {
	Path    string
	Variant string
	Dim     int
	Dtype   Dtype
}

// NewONNX constructs a declared-but-inert ONNX backend for the given
// resolved model path/variant. modelregistry.Load passes dim 0 and
// DtypeF32; it does not read the model's metadata.json.
func NewONNX(path, variant string, dim int, dtype Dtype) *ONNX {
	return &ONNX{Path: path, Variant: variant, Dim: dim, Dtype: dtype}
}

func (o *ONNX) PredictF16(ctx context.Context, batch []string) ([][]float16.Num, error) {
	return nil, ErrNotImplemented
}

func (o *ONNX) PredictF32(ctx context.Context, batch []string) ([][]float32, error) {
	return nil, ErrNotImplemented
}

func (o *ONNX) OutputDim() int { return o.Dim }

func (o *ONNX) OutputDtype() Dtype { return o.Dtype }
