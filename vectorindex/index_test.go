package vectorindex

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altaidevorg/letsearch/distance"
)

func newOpened(t *testing.T, dim int, metric distance.Metric) *Index {
	t.Helper()
	dir := t.TempDir()
	idx := New()
	require.NoError(t, idx.Create(dir, false))
	require.NoError(t, idx.OpenWith(Options{Dim: dim, Metric: metric}, 0))
	return idx
}

func TestIndex_AddAndSearch_Cosine(t *testing.T) {
	idx := newOpened(t, 3, distance.MetricCosine)

	keys := []uint64{1, 2, 3}
	vecs := []float32{
		1, 0, 0,
		0, 1, 0,
		1, 1, 0,
	}
	require.NoError(t, idx.Add(context.Background(), keys, vecs, 3))
	assert.Equal(t, 3, idx.Len())

	results, err := idx.Search([]float32{1, 0, 0}, 3, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, uint64(1), results[0].Key)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
}

func TestIndex_Search_ZeroQueryNoNaN(t *testing.T) {
	idx := newOpened(t, 2, distance.MetricCosine)
	require.NoError(t, idx.Add(context.Background(), []uint64{1}, []float32{1, 1}, 2))

	results, err := idx.Search([]float32{0, 0}, 2, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, float32(0), results[0].Score)
	assert.False(t, results[0].Score != results[0].Score, "score must not be NaN")
}

func TestIndex_Search_KClamped(t *testing.T) {
	idx := newOpened(t, 2, distance.MetricDot)
	require.NoError(t, idx.Add(context.Background(), []uint64{1, 2}, []float32{1, 0, 0, 1}, 2))

	results, err := idx.Search([]float32{1, 0}, 2, 50)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	empty, err := idx.Search([]float32{1, 0}, 2, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestIndex_DimMismatch(t *testing.T) {
	idx := newOpened(t, 3, distance.MetricL2)

	err := idx.Add(context.Background(), []uint64{1}, []float32{1, 2}, 2)
	assert.ErrorIs(t, err, ErrDimMismatch)

	_, err = idx.Search([]float32{1, 2}, 2, 1)
	assert.ErrorIs(t, err, ErrDimMismatch)
}

func TestIndex_NotInitialized(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Create(t.TempDir(), false))

	err := idx.Add(context.Background(), []uint64{1}, []float32{1}, 1)
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = idx.Search([]float32{1}, 1, 1)
	assert.ErrorIs(t, err, ErrNotInitialized)

	err = idx.Save()
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestIndex_SaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	idx := New()
	require.NoError(t, idx.Create(dir, false))
	require.NoError(t, idx.OpenWith(Options{Dim: 4, Metric: distance.MetricCosine, ElementKind: F32}, 8))

	keys := []uint64{10, 20, 30}
	vecs := []float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
	}
	require.NoError(t, idx.Add(context.Background(), keys, vecs, 4))
	require.NoError(t, idx.Save())

	reloaded := New()
	require.NoError(t, reloaded.Load(dir))
	assert.Equal(t, 3, reloaded.Len())
	assert.Equal(t, Options{Dim: 4, Metric: distance.MetricCosine, ElementKind: F32}, reloaded.Options())

	results, err := reloaded.Search([]float32{1, 0, 0, 0}, 4, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(10), results[0].Key)

	keySet := reloaded.Keys()
	for _, k := range keys {
		assert.True(t, keySet.Contains(k))
	}
}

func TestIndex_Load_MissingFile(t *testing.T) {
	idx := New()
	err := idx.Load(filepath.Join(t.TempDir(), "nonexistent"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorruptIndex))
}

func TestIndex_Add_GrowsCapacity(t *testing.T) {
	idx := newOpened(t, 1, distance.MetricDot)
	for i := uint64(0); i < 50; i++ {
		require.NoError(t, idx.Add(context.Background(), []uint64{i}, []float32{float32(i)}, 1))
	}
	assert.Equal(t, 50, idx.Len())
}

func TestIndex_Add_VectorLengthMismatch(t *testing.T) {
	idx := newOpened(t, 2, distance.MetricDot)
	err := idx.Add(context.Background(), []uint64{1, 2}, []float32{1, 2, 3}, 2)
	assert.Error(t, err)
}
