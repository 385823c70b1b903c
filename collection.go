package letsearch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/altaidevorg/letsearch/columnar"
	"github.com/altaidevorg/letsearch/distance"
	"github.com/altaidevorg/letsearch/embedder"
	"github.com/altaidevorg/letsearch/float16"
	"github.com/altaidevorg/letsearch/modelregistry"
	"github.com/altaidevorg/letsearch/vectorindex"
)

// SearchResult is one hit from Collection.Search: the original column
// content, the row key, and the similarity score (1 - distance for cosine).
type SearchResult struct {
	Content string  `json:"content"`
	Key     uint64  `json:"key"`
	Score   float32 `json:"score"`
}

// ModelRef identifies an embedder a collection depends on.
type ModelRef struct {
	Path    string
	Variant string
}

// Collection owns a columnar table, its row-key sequence, and one
// VectorIndex per indexed column. Searches take the read half of the
// collection lock and may run concurrently; imports and column embeds take
// the write half and exclude everything else on the same collection.
type Collection struct {
	mu  sync.RWMutex
	cfg CollectionConfig
	dir string

	store *columnar.Store

	idxMu   sync.RWMutex
	indexes map[string]*vectorindex.Index

	logger  *Logger
	metrics MetricsCollector
}

// newCollection creates the on-disk layout for a fresh collection under
// root: the directory, the empty database, the index directory, and
// config.json. Fails with AlreadyExists when the directory exists and
// overwrite is false.
func newCollection(root string, cfg CollectionConfig, overwrite bool, logger *Logger, metrics MetricsCollector) (*Collection, error) {
	const op = "Collection.New"
	cfg = cfg.withDefaults()

	dir := filepath.Join(root, cfg.Name)
	if _, err := os.Stat(dir); err == nil {
		if !overwrite {
			return nil, newErr(op, KindAlreadyExists, fmt.Errorf("collection directory %s exists", dir))
		}
		if err := os.RemoveAll(dir); err != nil {
			return nil, newErr(op, KindIO, err)
		}
	}
	if err := os.MkdirAll(filepath.Join(dir, cfg.IndexDir), 0o755); err != nil {
		return nil, newErr(op, KindIO, err)
	}

	store, err := columnar.Open(filepath.Join(dir, cfg.DBPath), cfg.Name)
	if err != nil {
		return nil, newErr(op, KindStorage, err)
	}
	if err := writeConfig(dir, cfg); err != nil {
		store.Close()
		return nil, err
	}

	return &Collection{
		cfg:     cfg,
		dir:     dir,
		store:   store,
		indexes: make(map[string]*vectorindex.Index),
		logger:  logger.WithCollection(cfg.Name),
		metrics: metrics,
	}, nil
}

// loadCollection reconstitutes a collection from root/name: reads
// config.json, opens the database, and loads each listed column's index
// whose index.bin exists on disk. A listed column with no index file is
// left unembedded, not an error.
func loadCollection(root, name string, logger *Logger, metrics MetricsCollector) (*Collection, error) {
	const op = "Collection.Load"

	dir := filepath.Join(root, name)
	cfg, err := readConfig(dir)
	if err != nil {
		return nil, err
	}

	store, err := columnar.Open(filepath.Join(dir, cfg.DBPath), cfg.Name)
	if err != nil {
		return nil, newErr(op, KindStorage, err)
	}

	c := &Collection{
		cfg:     cfg,
		dir:     dir,
		store:   store,
		indexes: make(map[string]*vectorindex.Index),
		logger:  logger.WithCollection(cfg.Name),
		metrics: metrics,
	}

	for _, column := range cfg.IndexColumns {
		colDir := c.indexDir(column)
		if _, err := os.Stat(filepath.Join(colDir, "index.bin")); err != nil {
			continue
		}
		idx := vectorindex.New()
		if err := idx.Load(colDir); err != nil {
			store.Close()
			return nil, newErr(op, KindCorruptIndex, err)
		}
		c.indexes[column] = idx
	}
	return c, nil
}

// Name returns the collection's name.
func (c *Collection) Name() string { return c.cfg.Name }

// Config returns a copy of the collection's config.
func (c *Collection) Config() CollectionConfig { return c.cfg }

// RequestedEmbedders lists the embedders this collection needs loaded in
// the model registry before it can embed or search.
func (c *Collection) RequestedEmbedders() []ModelRef {
	return []ModelRef{{Path: c.cfg.ModelName, Variant: c.cfg.ModelVariant}}
}

// IndexedColumns reports, for each configured index column, whether its
// index is currently built.
func (c *Collection) IndexedColumns() map[string]bool {
	c.idxMu.RLock()
	defer c.idxMu.RUnlock()
	out := make(map[string]bool, len(c.cfg.IndexColumns))
	for _, col := range c.cfg.IndexColumns {
		_, built := c.indexes[col]
		out[col] = built
	}
	return out
}

func (c *Collection) indexDir(column string) string {
	return filepath.Join(c.dir, c.cfg.IndexDir, column)
}

// ImportJSONL bulk-loads JSONL files matching pattern into the table in one
// transaction, assigning row keys to rows that lack them.
func (c *Collection) ImportJSONL(ctx context.Context, pattern string) (int64, error) {
	return c.doImport(ctx, pattern, "jsonl")
}

// ImportParquet is ImportJSONL for Parquet files.
func (c *Collection) ImportParquet(ctx context.Context, pattern string) (int64, error) {
	return c.doImport(ctx, pattern, "parquet")
}

func (c *Collection) doImport(ctx context.Context, pattern, format string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	var rows int64
	var err error
	switch format {
	case "parquet":
		rows, err = c.store.ImportParquet(ctx, pattern)
	default:
		rows, err = c.store.ImportJSONL(ctx, pattern)
	}
	c.logger.LogImport(ctx, c.cfg.Name, pattern, int(rows), time.Since(start), err)
	if err != nil {
		return 0, newErr("Collection.Import", KindStorage, err)
	}
	c.metrics.RecordImport(c.cfg.Name, format, int(rows))
	return rows, nil
}

// EmbedColumn embeds every row of column in batches of batchSize through
// the registry's embedder behind handle, feeding a VectorIndex that is
// created on first use, and persists the index when the last batch is in.
// The collection write lock is held throughout, so concurrent searches on
// this collection block until the build finishes. progress, when non-nil,
// is called after every batch with (rows done, total rows).
func (c *Collection) EmbedColumn(ctx context.Context, column string, batchSize int, reg *modelregistry.Registry, handle uint32, progress func(done, total int)) error {
	const op = "Collection.EmbedColumn"

	if batchSize <= 0 {
		return newErr(op, KindBadRequest, fmt.Errorf("batch size %d", batchSize))
	}
	if !c.isIndexColumn(column) {
		return newErr(op, KindUnknownColumn, fmt.Errorf("column %q is not an index column", column))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	total64, err := c.store.CountRows(ctx)
	if err != nil {
		return newErr(op, KindStorage, err)
	}
	total := int(total64)

	dim, err := reg.OutputDim(handle)
	if err != nil {
		return newErr(op, KindUnknownHandle, err)
	}

	idx, err := c.ensureIndex(ctx, column, total, dim, reg, handle)
	if err != nil {
		return err
	}

	done := 0
	for offset := 0; offset < total; offset += batchSize {
		// Cancellation is honored between batches only; an in-flight
		// batch always runs to completion.
		if err := ctx.Err(); err != nil {
			return newErr(op, KindIO, err)
		}

		texts, keys, err := c.store.ReadBatch(ctx, column, batchSize, offset)
		if err != nil {
			return newErr(op, KindStorage, err)
		}
		if len(keys) == 0 {
			break
		}

		embs, err := reg.Predict(ctx, handle, texts)
		if err != nil {
			c.metrics.RecordEmbedBatch(c.cfg.Name, column, err)
			c.logger.LogEmbed(ctx, c.cfg.Name, column, done, total, err)
			return newErr(op, KindModel, err)
		}
		flat, err := flattenEmbeddings(embs, len(keys), dim)
		if err != nil {
			return newErr(op, KindModel, err)
		}

		addStart := time.Now()
		if err := idx.Add(ctx, keys, flat, dim); err != nil {
			c.metrics.RecordEmbedBatch(c.cfg.Name, column, err)
			return translateIndexErr(op, err)
		}
		c.metrics.RecordIndexAdd(c.cfg.Name, column, time.Since(addStart))
		c.metrics.RecordEmbedBatch(c.cfg.Name, column, nil)

		done += len(keys)
		c.logger.LogEmbed(ctx, c.cfg.Name, column, done, total, nil)
		if progress != nil {
			progress(done, total)
		}
	}

	if err := idx.Save(); err != nil {
		return translateIndexErr(op, err)
	}
	if c.cfg.RemoteURI != "" {
		if err := c.pushBackup(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ensureIndex returns the column's index, creating and opening a fresh one
// sized for rowCount*1.1 vectors when the column has never been embedded.
func (c *Collection) ensureIndex(ctx context.Context, column string, rowCount, dim int, reg *modelregistry.Registry, handle uint32) (*vectorindex.Index, error) {
	const op = "Collection.EmbedColumn"

	c.idxMu.RLock()
	idx, ok := c.indexes[column]
	c.idxMu.RUnlock()
	if ok {
		return idx, nil
	}

	dtype, err := reg.OutputDtype(handle)
	if err != nil {
		return nil, newErr(op, KindUnknownHandle, err)
	}
	kind := vectorindex.F32
	if dtype == embedder.DtypeF16 {
		kind = vectorindex.F16
	}

	idx = vectorindex.New()
	if err := idx.Create(c.indexDir(column), false); err != nil {
		return nil, newErr(op, KindIO, err)
	}
	opts := vectorindex.Options{Dim: dim, Metric: distance.MetricCosine, ElementKind: kind}
	if err := idx.OpenWith(opts, rowCount+rowCount/10); err != nil {
		return nil, translateIndexErr(op, err)
	}

	c.idxMu.Lock()
	c.indexes[column] = idx
	c.idxMu.Unlock()
	return idx, nil
}

// Search embeds query through the registry, runs k-NN against the column's
// index, and joins the hits back to the original content preserving the
// ANN's rank order.
func (c *Collection) Search(ctx context.Context, column, query string, k int, reg *modelregistry.Registry, handle uint32) ([]SearchResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	start := time.Now()
	results, err := c.searchLocked(ctx, column, query, k, reg, handle)
	c.metrics.RecordSearch(c.cfg.Name, column, time.Since(start), err)
	c.logger.LogSearch(ctx, c.cfg.Name, column, k, len(results), time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Collection) searchLocked(ctx context.Context, column, query string, k int, reg *modelregistry.Registry, handle uint32) ([]SearchResult, error) {
	const op = "Collection.Search"

	c.idxMu.RLock()
	idx, ok := c.indexes[column]
	c.idxMu.RUnlock()
	if !ok {
		if c.isIndexColumn(column) {
			return nil, newErr(op, KindColumnNotIndexed, fmt.Errorf("column %q has not been embedded", column))
		}
		return nil, newErr(op, KindUnknownColumn, fmt.Errorf("column %q", column))
	}

	embs, err := reg.Predict(ctx, handle, []string{query})
	if err != nil {
		return nil, newErr(op, KindModel, err)
	}
	dim := idx.Options().Dim
	flat, err := flattenEmbeddings(embs, 1, dim)
	if err != nil {
		return nil, newErr(op, KindModel, err)
	}

	hits, err := idx.Search(flat, dim, k)
	if err != nil {
		return nil, translateIndexErr(op, err)
	}
	if len(hits) == 0 {
		return []SearchResult{}, nil
	}

	keys := make([]uint64, len(hits))
	for i, h := range hits {
		keys[i] = h.Key
	}
	contents, err := c.store.FetchByKey(ctx, column, keys)
	if err != nil {
		return nil, newErr(op, KindStorage, err)
	}

	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		content, ok := contents[h.Key]
		if !ok {
			continue
		}
		results = append(results, SearchResult{Content: content, Key: h.Key, Score: h.Score})
	}
	return results, nil
}

func (c *Collection) isIndexColumn(column string) bool {
	for _, col := range c.cfg.IndexColumns {
		if col == column {
			return true
		}
	}
	return false
}

// flattenEmbeddings validates a Predict result's shape against (rows, dim)
// and flattens it to the contiguous float32 layout VectorIndex.Add and
// Search expect, widening f16 predictions.
func flattenEmbeddings(embs modelregistry.Embeddings, rows, dim int) ([]float32, error) {
	flat := make([]float32, 0, rows*dim)
	switch embs.Dtype {
	case embedder.DtypeF16:
		if len(embs.F16) != rows {
			return nil, fmt.Errorf("embedder returned %d rows, want %d", len(embs.F16), rows)
		}
		buf := make([]float32, dim)
		for _, row := range embs.F16 {
			if len(row) != dim {
				return nil, fmt.Errorf("embedder returned dim %d, want %d", len(row), dim)
			}
			float16.Decode(buf, row)
			flat = append(flat, buf...)
		}
	default:
		if len(embs.F32) != rows {
			return nil, fmt.Errorf("embedder returned %d rows, want %d", len(embs.F32), rows)
		}
		for _, row := range embs.F32 {
			if len(row) != dim {
				return nil, fmt.Errorf("embedder returned dim %d, want %d", len(row), dim)
			}
			flat = append(flat, row...)
		}
	}
	return flat, nil
}

// translateIndexErr maps vectorindex sentinel errors onto the taxonomy.
func translateIndexErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, vectorindex.ErrDimMismatch):
		return newErr(op, KindDimMismatch, err)
	case errors.Is(err, vectorindex.ErrNotInitialized):
		return newErr(op, KindNotInitialized, err)
	case errors.Is(err, vectorindex.ErrCorruptIndex):
		return newErr(op, KindCorruptIndex, err)
	default:
		return newErr(op, KindIO, err)
	}
}

func (c *Collection) close() error {
	return c.store.Close()
}
