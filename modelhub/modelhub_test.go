package modelhub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestHub(t *testing.T, mux *http.ServeMux) *Hub {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewHub(
		WithBaseURL(srv.URL),
		WithCacheDir(t.TempDir()),
		WithRateLimiter(rate.NewLimiter(rate.Inf, 1)),
	)
}

func TestHub_Resolve_DownloadsVariantAndRequiredFiles(t *testing.T) {
	meta := Metadata{
		LetsearchVersion: 1,
		Variants: []Variant{
			{Variant: "f32", Path: "model-f32.onnx", Dim: 384, Dtype: "f32"},
		},
		RequiredFiles: []string{"tokenizer.json"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/acme/widget/resolve/main/metadata.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(meta)
	})
	mux.HandleFunc("/acme/widget/resolve/main/model-f32.onnx", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("fake-onnx-bytes"))
	})
	mux.HandleFunc("/acme/widget/resolve/main/tokenizer.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{}"))
	})

	h := newTestHub(t, mux)
	dir, file, err := h.Resolve(context.Background(), "hf://acme/widget", "f32", "")
	require.NoError(t, err)
	assert.Equal(t, "model-f32.onnx", file)

	assert.FileExists(t, filepath.Join(dir, "model-f32.onnx"))
	assert.FileExists(t, filepath.Join(dir, "tokenizer.json"))
	assert.FileExists(t, filepath.Join(dir, "metadata.json"))
}

func TestHub_Resolve_CachesOnSecondCall(t *testing.T) {
	var metadataHits int
	meta := Metadata{LetsearchVersion: 1, Variants: []Variant{{Variant: "f32", Path: "m.onnx"}}}

	mux := http.NewServeMux()
	mux.HandleFunc("/acme/widget/resolve/main/metadata.json", func(w http.ResponseWriter, r *http.Request) {
		metadataHits++
		_ = json.NewEncoder(w).Encode(meta)
	})
	mux.HandleFunc("/acme/widget/resolve/main/m.onnx", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("bytes"))
	})

	h := newTestHub(t, mux)
	_, _, err := h.Resolve(context.Background(), "hf://acme/widget", "f32", "")
	require.NoError(t, err)
	_, _, err = h.Resolve(context.Background(), "hf://acme/widget", "f32", "")
	require.NoError(t, err)

	assert.Equal(t, 1, metadataHits, "metadata.json should only be fetched once, reused from cache thereafter")
}

func TestHub_Resolve_VariantNotFound(t *testing.T) {
	meta := Metadata{LetsearchVersion: 1, Variants: []Variant{{Variant: "f32", Path: "m.onnx"}}}

	mux := http.NewServeMux()
	mux.HandleFunc("/acme/widget/resolve/main/metadata.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(meta)
	})

	h := newTestHub(t, mux)
	_, _, err := h.Resolve(context.Background(), "hf://acme/widget", "i8", "")
	assert.ErrorIs(t, err, ErrVariantNotFound)
}

func TestHub_Resolve_IncompatibleVersion(t *testing.T) {
	meta := Metadata{LetsearchVersion: 2}

	mux := http.NewServeMux()
	mux.HandleFunc("/acme/widget/resolve/main/metadata.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(meta)
	})

	h := newTestHub(t, mux)
	_, _, err := h.Resolve(context.Background(), "hf://acme/widget", "f32", "")
	assert.ErrorIs(t, err, ErrIncompatibleModel)
}

func TestHub_Resolve_InvalidRef(t *testing.T) {
	h := NewHub(WithCacheDir(t.TempDir()))
	_, _, err := h.Resolve(context.Background(), "not-a-hf-ref", "f32", "")
	assert.ErrorIs(t, err, ErrInvalidRef)
}

func TestHub_List_SortedByDownloads(t *testing.T) {
	models := []ModelInfo{
		{ModelID: "acme/small", Downloads: 5},
		{ModelID: "acme/big", Downloads: 500},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/models", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "letsearch", r.URL.Query().Get("filter"))
		_ = json.NewEncoder(w).Encode(models)
	})

	h := newTestHub(t, mux)
	got, err := h.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "acme/big", got[0].ModelID)
}

func TestHub_DefaultCacheDir(t *testing.T) {
	h := NewHub()
	assert.NotEmpty(t, h.cacheDir)
}
