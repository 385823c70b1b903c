// Package modelregistry hands out opaque handles to loaded Embedder
// instances and dispatches Predict calls against them. It performs no
// caching or de-duplication of its own — repeated Load calls for the same
// (path, variant) always return a new handle wrapping a new embedder
// instance; a CollectionRegistry layered on top owns any reuse policy.
package modelregistry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/altaidevorg/letsearch/embedder"
	"github.com/altaidevorg/letsearch/float16"
	"github.com/altaidevorg/letsearch/modelhub"
)

// ErrUnknownHandle is returned when Predict/OutputDim/OutputDtype is
// called with a handle the registry never issued (or already forgot).
var ErrUnknownHandle = errors.New("modelregistry: unknown handle")

// ErrUnknownBackend is returned by Load when backend names a type this
// registry doesn't know how to construct.
var ErrUnknownBackend = errors.New("modelregistry: unknown backend")

// Embeddings is the tagged union Predict returns: exactly one of F16/F32
// is populated, per Dtype.
type Embeddings struct {
	Dtype embedder.Dtype
	F16   [][]float16.Num
	F32   [][]float32
}

// Registry maps integer handles to loaded Embedder instances.
type Registry struct {
	mu     sync.RWMutex
	models map[uint32]embedder.Embedder
	nextID uint32

	hub *modelhub.Hub
}

// New returns an empty Registry. hub resolves "hf://" paths; pass nil to
// use a Hub with default settings.
func New(hub *modelhub.Hub) *Registry {
	if hub == nil {
		hub = modelhub.NewHub()
	}
	return &Registry{
		models: make(map[uint32]embedder.Embedder),
		nextID: 1,
		hub:    hub,
	}
}

// Load resolves path/variant (downloading via modelhub if path has the
// "hf://" prefix) and constructs an Embedder for the given backend,
// returning a fresh handle. backend is "tfidf" or "onnx".
func (r *Registry) Load(ctx context.Context, path, variant, backend, token string) (uint32, error) {
	resolvedPath := path
	if len(path) >= len("hf://") && path[:5] == "hf://" {
		dir, file, err := r.hub.Resolve(ctx, path, variant, token)
		if err != nil {
			return 0, fmt.Errorf("modelregistry: load: %w", err)
		}
		resolvedPath = dir + "/" + file
	}

	var e embedder.Embedder
	switch backend {
	case "tfidf":
		e = embedder.NewTFIDF(0)
	case "onnx":
		e = embedder.NewONNX(resolvedPath, variant, 0, embedder.DtypeF32)
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownBackend, backend)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	handle := r.nextID
	r.nextID++
	r.models[handle] = e
	return handle, nil
}

// Predict runs batch through the embedder behind handle, returning
// whichever of F16/F32 matches its OutputDtype.
func (r *Registry) Predict(ctx context.Context, handle uint32, batch []string) (Embeddings, error) {
	r.mu.RLock()
	e, ok := r.models[handle]
	r.mu.RUnlock()
	if !ok {
		return Embeddings{}, ErrUnknownHandle
	}

	switch dtype := e.OutputDtype(); dtype {
	case embedder.DtypeF16:
		vecs, err := e.PredictF16(ctx, batch)
		if err != nil {
			return Embeddings{}, err
		}
		return Embeddings{Dtype: dtype, F16: vecs}, nil
	default:
		vecs, err := e.PredictF32(ctx, batch)
		if err != nil {
			return Embeddings{}, err
		}
		return Embeddings{Dtype: dtype, F32: vecs}, nil
	}
}

// OutputDim returns the embedder behind handle's output dimensionality.
func (r *Registry) OutputDim(handle uint32) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.models[handle]
	if !ok {
		return 0, ErrUnknownHandle
	}
	return e.OutputDim(), nil
}

// OutputDtype returns the embedder behind handle's declared output dtype.
func (r *Registry) OutputDtype(handle uint32) (embedder.Dtype, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.models[handle]
	if !ok {
		return 0, ErrUnknownHandle
	}
	return e.OutputDtype(), nil
}

// Len reports the number of currently loaded handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}
