package embedder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTFIDF_OutputDimFixedBeforeTraining(t *testing.T) {
	e := NewTFIDF(16)
	assert.Equal(t, 16, e.OutputDim())
	assert.Equal(t, DtypeF32, e.OutputDtype())
}

func TestTFIDF_AutoTrainsOnFirstBatch(t *testing.T) {
	e := NewTFIDF(8)
	vecs, err := e.PredictF32(context.Background(), []string{"the quick brown fox", "the lazy dog"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	for _, v := range vecs {
		assert.Len(t, v, 8)
	}
}

func TestTFIDF_PredictF16AlwaysWrongDtype(t *testing.T) {
	e := NewTFIDF(4)
	_, err := e.PredictF16(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, ErrWrongDtype)
}

func TestTFIDF_VectorsAreUnitNormalized(t *testing.T) {
	e := NewTFIDF(32)
	e.Train([]string{"alpha beta gamma", "beta gamma delta", "gamma delta epsilon"})

	vecs, err := e.PredictF32(context.Background(), []string{"alpha beta"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)

	var norm float32
	for _, v := range vecs[0] {
		norm += v * v
	}
	if norm != 0 {
		assert.InDelta(t, 1.0, norm, 1e-4)
	}
}

func TestTFIDF_UnknownTermsAreDropped(t *testing.T) {
	e := NewTFIDF(4)
	e.Train([]string{"alpha beta"})

	vecs, err := e.PredictF32(context.Background(), []string{"zzz yyy xxx"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	for _, v := range vecs[0] {
		assert.Equal(t, float32(0), v)
	}
}
