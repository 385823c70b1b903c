package modelregistry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altaidevorg/letsearch/embedder"
)

func TestRegistry_LoadTFIDF_AssignsSequentialHandles(t *testing.T) {
	r := New(nil)

	h1, err := r.Load(context.Background(), "local://tfidf", "default", "tfidf", "")
	require.NoError(t, err)
	h2, err := r.Load(context.Background(), "local://tfidf", "default", "tfidf", "")
	require.NoError(t, err)

	assert.Equal(t, uint32(1), h1)
	assert.Equal(t, uint32(2), h2)
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_Load_UnknownBackend(t *testing.T) {
	r := New(nil)
	_, err := r.Load(context.Background(), "local://x", "default", "bogus", "")
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestRegistry_Predict_DispatchesOnDtype(t *testing.T) {
	r := New(nil)
	handle, err := r.Load(context.Background(), "local://tfidf", "default", "tfidf", "")
	require.NoError(t, err)

	out, err := r.Predict(context.Background(), handle, []string{"hello world", "goodbye world"})
	require.NoError(t, err)
	assert.Equal(t, embedder.DtypeF32, out.Dtype)
	assert.Len(t, out.F32, 2)
	assert.Nil(t, out.F16)
}

func TestRegistry_Predict_UnknownHandle(t *testing.T) {
	r := New(nil)
	_, err := r.Predict(context.Background(), 999, []string{"x"})
	assert.ErrorIs(t, err, ErrUnknownHandle)
}

func TestRegistry_OutputDimAndDtype(t *testing.T) {
	r := New(nil)
	handle, err := r.Load(context.Background(), "local://tfidf", "default", "tfidf", "")
	require.NoError(t, err)

	dim, err := r.OutputDim(handle)
	require.NoError(t, err)
	assert.Equal(t, 4096, dim)

	dtype, err := r.OutputDtype(handle)
	require.NoError(t, err)
	assert.Equal(t, embedder.DtypeF32, dtype)

	_, err = r.OutputDim(999)
	assert.ErrorIs(t, err, ErrUnknownHandle)
}
