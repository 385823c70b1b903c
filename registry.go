package letsearch

import (
	"context"
	"fmt"
	"sync"

	"github.com/altaidevorg/letsearch/modelregistry"
)

// MaxSearchK caps the number of results a single search may request.
const MaxSearchK = 100

// CollectionInfo is the summary the facade reports for one collection.
type CollectionInfo struct {
	Name         string   `json:"name"`
	ModelName    string   `json:"model_name"`
	ModelVariant string   `json:"model_variant"`
	IndexColumns []string `json:"index_columns"`
}

type modelKey struct {
	path    string
	variant string
}

// CollectionRegistry is the facade over all collections in a process: it
// owns the name→Collection map, routes named operations, and enforces the
// embedder-sharing policy. The inner ModelRegistry never de-duplicates;
// the (path, variant)→handle cache here is what makes two collections
// declaring the same model share one loaded embedder.
type CollectionRegistry struct {
	mu          sync.RWMutex
	collections map[string]*Collection

	handleMu sync.RWMutex
	handles  map[modelKey]uint32

	models  *modelregistry.Registry
	root    string
	backend string
	token   string
	logger  *Logger
	metrics MetricsCollector
}

// NewCollectionRegistry builds a facade over models, applying opts. Pass a
// nil models to get a registry backed by default hub settings.
func NewCollectionRegistry(models *modelregistry.Registry, optFns ...Option) *CollectionRegistry {
	if models == nil {
		models = modelregistry.New(nil)
	}
	o := applyOptions(optFns)
	return &CollectionRegistry{
		collections: make(map[string]*Collection),
		handles:     make(map[modelKey]uint32),
		models:      models,
		root:        o.root,
		backend:     o.backend,
		token:       o.token,
		logger:      o.logger,
		metrics:     o.metrics,
	}
}

// ModelRegistry exposes the inner registry, mainly so adapters and tests
// can inspect loaded models.
func (r *CollectionRegistry) ModelRegistry() *modelregistry.Registry { return r.models }

// Root returns the directory collections live under.
func (r *CollectionRegistry) Root() string { return r.root }

// Create constructs a new collection on disk, loads its models, and
// registers it. With overwrite, an existing directory (and any previously
// registered collection of the same name) is replaced.
func (r *CollectionRegistry) Create(ctx context.Context, cfg CollectionConfig, overwrite bool) (*Collection, error) {
	const op = "CollectionRegistry.Create"

	if cfg.Name == "" {
		return nil, newErr(op, KindBadRequest, fmt.Errorf("empty collection name"))
	}
	c, err := newCollection(r.root, cfg, overwrite, r.logger, r.metrics)
	if err != nil {
		return nil, err
	}
	if err := r.ensureModelsLoaded(ctx, c); err != nil {
		c.close()
		return nil, err
	}
	if c.cfg.RemoteURI != "" {
		if err := c.pushBackup(ctx); err != nil {
			c.close()
			return nil, err
		}
	}

	r.mu.Lock()
	if old, ok := r.collections[cfg.Name]; ok {
		old.close()
	}
	r.collections[cfg.Name] = c
	r.mu.Unlock()
	return c, nil
}

// Load reconstitutes a collection from disk, loads its models, and
// registers it.
func (r *CollectionRegistry) Load(ctx context.Context, name string) (*Collection, error) {
	c, err := loadCollection(r.root, name, r.logger, r.metrics)
	if err != nil {
		return nil, err
	}
	if err := r.ensureModelsLoaded(ctx, c); err != nil {
		c.close()
		return nil, err
	}

	r.mu.Lock()
	if old, ok := r.collections[name]; ok {
		old.close()
	}
	r.collections[name] = c
	r.mu.Unlock()
	return c, nil
}

// ensureModelsLoaded loads every embedder the collection requests, reusing
// an already-loaded handle when the (path, variant) pair is cached.
func (r *CollectionRegistry) ensureModelsLoaded(ctx context.Context, c *Collection) error {
	for _, ref := range c.RequestedEmbedders() {
		key := modelKey{path: ref.Path, variant: ref.Variant}

		r.handleMu.RLock()
		handle, ok := r.handles[key]
		r.handleMu.RUnlock()
		if ok {
			r.logger.LogModelLoad(ctx, ref.Path, ref.Variant, handle, true, nil)
			continue
		}

		handle, err := r.models.Load(ctx, ref.Path, ref.Variant, r.backend, r.token)
		r.logger.LogModelLoad(ctx, ref.Path, ref.Variant, handle, false, err)
		if err != nil {
			return newErr("CollectionRegistry.ensureModelsLoaded", KindModel, err)
		}
		r.handleMu.Lock()
		r.handles[key] = handle
		r.handleMu.Unlock()
	}
	return nil
}

// Handle returns the cached handle for a (path, variant) pair.
func (r *CollectionRegistry) Handle(path, variant string) (uint32, bool) {
	r.handleMu.RLock()
	defer r.handleMu.RUnlock()
	h, ok := r.handles[modelKey{path: path, variant: variant}]
	return h, ok
}

// HandleCount reports the number of cached (path, variant) pairs.
func (r *CollectionRegistry) HandleCount() int {
	r.handleMu.RLock()
	defer r.handleMu.RUnlock()
	return len(r.handles)
}

// Get returns the named collection.
func (r *CollectionRegistry) Get(name string) (*Collection, error) {
	return r.lookup(name)
}

// Collections lists every registered collection's summary, sorted by the
// map's iteration order left unspecified (callers sort if they care).
func (r *CollectionRegistry) Collections() []CollectionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CollectionInfo, 0, len(r.collections))
	for _, c := range r.collections {
		cfg := c.Config()
		out = append(out, CollectionInfo{
			Name:         cfg.Name,
			ModelName:    cfg.ModelName,
			ModelVariant: cfg.ModelVariant,
			IndexColumns: cfg.IndexColumns,
		})
	}
	return out
}

// ImportJSONL bulk-loads JSONL files into the named collection.
func (r *CollectionRegistry) ImportJSONL(ctx context.Context, name, pattern string) (int64, error) {
	c, err := r.lookup(name)
	if err != nil {
		return 0, err
	}
	return c.ImportJSONL(ctx, pattern)
}

// ImportParquet bulk-loads Parquet files into the named collection.
func (r *CollectionRegistry) ImportParquet(ctx context.Context, name, pattern string) (int64, error) {
	c, err := r.lookup(name)
	if err != nil {
		return 0, err
	}
	return c.ImportParquet(ctx, pattern)
}

// EmbedColumn builds (or extends) the named collection's index for column.
// progress may be nil.
func (r *CollectionRegistry) EmbedColumn(ctx context.Context, name, column string, batchSize int, progress func(done, total int)) error {
	c, err := r.lookup(name)
	if err != nil {
		return err
	}
	handle, err := r.handleFor(c)
	if err != nil {
		return err
	}
	return c.EmbedColumn(ctx, column, batchSize, r.models, handle, progress)
}

// Search runs a k-NN query against the named collection's column.
func (r *CollectionRegistry) Search(ctx context.Context, name, column, query string, k int) ([]SearchResult, error) {
	const op = "CollectionRegistry.Search"

	if k < 0 || k > MaxSearchK {
		return nil, newErr(op, KindBadRequest, fmt.Errorf("k=%d outside [0, %d]", k, MaxSearchK))
	}
	c, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	handle, err := r.handleFor(c)
	if err != nil {
		return nil, err
	}
	return c.Search(ctx, column, query, k, r.models, handle)
}

func (r *CollectionRegistry) lookup(name string) (*Collection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.collections[name]
	if !ok {
		return nil, newErr("CollectionRegistry.lookup", KindUnknownCollection, fmt.Errorf("collection %q", name))
	}
	return c, nil
}

func (r *CollectionRegistry) handleFor(c *Collection) (uint32, error) {
	cfg := c.Config()
	handle, ok := r.Handle(cfg.ModelName, cfg.ModelVariant)
	if !ok {
		return 0, newErr("CollectionRegistry.handleFor", KindUnknownModel,
			fmt.Errorf("model %s (%s) not loaded", cfg.ModelName, cfg.ModelVariant))
	}
	return handle, nil
}
