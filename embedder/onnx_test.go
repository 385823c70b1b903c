package embedder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestONNX_AlwaysNotImplemented(t *testing.T) {
	o := NewONNX("hf://org/model", "default", 384, DtypeF32)
	assert.Equal(t, 384, o.OutputDim())
	assert.Equal(t, DtypeF32, o.OutputDtype())

	_, err := o.PredictF32(context.Background(), []string{"hello"})
	assert.ErrorIs(t, err, ErrNotImplemented)

	_, err = o.PredictF16(context.Background(), []string{"hello"})
	assert.ErrorIs(t, err, ErrNotImplemented)
}
