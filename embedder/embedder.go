package embedder

import (
	"context"
	"errors"

	"github.com/altaidevorg/letsearch/float16"
)

// Dtype identifies the output element type of an Embedder's predictions.
type Dtype int

const (
	DtypeF32 Dtype = iota
	DtypeF16
	DtypeI8
)

func (d Dtype) String() string {
	switch d {
	case DtypeF32:
		return "f32"
	case DtypeF16:
		return "f16"
	case DtypeI8:
		return "i8"
	default:
		return "unknown"
	}
}

// ErrWrongDtype is returned by whichever of PredictF16/PredictF32 does not
// match OutputDtype.
var ErrWrongDtype = errors.New("embedder: called predict method does not match OutputDtype")

// ErrNotImplemented is returned by backends that are declared but cannot
// execute in this build (see onnx.go).
var ErrNotImplemented = errors.New("embedder: backend not implemented")

// Embedder converts text batches into vectors. Implementations report a
// single OutputDtype; only the matching Predict method is usable, the
// other returns ErrWrongDtype. The ONNX stub returns ErrNotImplemented from
// both.
type Embedder interface {
	PredictF16(ctx context.Context, batch []string) ([][]float16.Num, error)
	PredictF32(ctx context.Context, batch []string) ([][]float32, error)
	OutputDim() int
	OutputDtype() Dtype
}
