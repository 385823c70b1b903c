package vectorindex

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"golang.org/x/sync/errgroup"

	"github.com/altaidevorg/letsearch/distance"
	"github.com/altaidevorg/letsearch/persistence"
)

// Sentinel errors for the Index lifecycle.
var (
	ErrCorruptIndex   = errors.New("vectorindex: corrupt index")
	ErrDimMismatch    = errors.New("vectorindex: dimension mismatch")
	ErrNotInitialized = errors.New("vectorindex: not initialized")
)

// ElementKind records the declared element width of an index's vectors.
// Vectors are always held as float32, in memory and in index.bin;
// ElementKind is only stored in the file and restored by Load. F16
// predictions are expanded to float32 by the caller before Add.
type ElementKind int

const (
	F32 ElementKind = iota
	F16
)

func (k ElementKind) String() string {
	if k == F16 {
		return "f16"
	}
	return "f32"
}

// Options parameterizes an Index: dimensionality, similarity metric, and the
// declared element kind.
type Options struct {
	Dim         int
	Metric      distance.Metric
	ElementKind ElementKind
}

// Result is one hit from Search: a row key paired with its similarity score.
type Result struct {
	Key   uint64
	Score float32
}

type state int

const (
	stateNew state = iota
	stateInitialized
	stateModified
	statePersisted
)

// Index is one ANN structure for a single (collection, column) pair: a
// key-linked vector store with parallel batch insert, atomic persistence,
// and k-NN search. The zero value is a valid, unopened Index (state New).
type Index struct {
	mu    sync.RWMutex
	dir   string
	opts  Options
	state state

	keys    []uint64
	vectors [][]float32
	slots   map[uint64]int
	present *roaring64.Bitmap
}

// New returns an unopened Index. Call Create (for a fresh on-disk directory)
// or Load (to reconstitute from disk), then OpenWith before any Add.
func New() *Index {
	return &Index{}
}

// Create prepares dir for a fresh index. No ANN structure is allocated yet;
// call OpenWith next.
func (idx *Index) Create(dir string, overwrite bool) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if overwrite {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("vectorindex: create: %w", err)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("vectorindex: create: %w", err)
	}
	idx.dir = dir
	return nil
}

// OpenWith instantiates the index with the given options and reserves
// initialCapacity slots. Must precede any Add. Idempotent only when opts is
// identical to a prior call.
func (idx *Index) OpenWith(opts Options, initialCapacity int) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.state != stateNew && idx.opts != opts {
		return fmt.Errorf("vectorindex: OpenWith called with different options than before")
	}
	if initialCapacity < 0 {
		initialCapacity = 0
	}

	idx.opts = opts
	idx.keys = make([]uint64, 0, initialCapacity)
	idx.vectors = make([][]float32, 0, initialCapacity)
	idx.slots = make(map[uint64]int, initialCapacity)
	idx.present = roaring64.New()
	idx.state = stateInitialized
	return nil
}

// Options returns the index's configured options (zero value if unopened).
func (idx *Index) Options() Options {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.opts
}

// Len returns the number of vectors currently held.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.keys)
}

// Keys returns the set of keys present in the index, as a roaring64 bitmap
// snapshot. Callers compare it against the table's key set to tell whether
// a column is fully embedded.
func (idx *Index) Keys() *roaring64.Bitmap {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.present.Clone()
}

// Load reconstitutes an index from dir/index.bin. Fails with ErrCorruptIndex
// if the file is missing, truncated, or fails its checksum.
func (idx *Index) Load(dir string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	path := filepath.Join(dir, "index.bin")
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}

	loadErr := persistence.LoadFromFile(path, func(r io.Reader) error {
		br := persistence.NewBinaryIndexReader(r)
		header, err := br.ReadHeader()
		if err != nil {
			return err
		}

		cr := persistence.NewChecksumReader(r)
		ccr := persistence.NewBinaryIndexReader(cr)

		var metric, kind uint32
		if err := binary.Read(cr, binary.LittleEndian, &metric); err != nil {
			return err
		}
		if err := binary.Read(cr, binary.LittleEndian, &kind); err != nil {
			return err
		}

		keys, err := ccr.ReadUint64Slice(int(header.VectorCount))
		if err != nil {
			return err
		}
		dim := int(header.Dimension)
		flat, err := ccr.ReadFloat32Slice(int(header.VectorCount) * dim)
		if err != nil {
			return err
		}

		var trailer uint32
		if err := binary.Read(r, binary.LittleEndian, &trailer); err != nil {
			return err
		}
		if err := cr.Verify(trailer); err != nil {
			return err
		}

		vectors := make([][]float32, len(keys))
		for i := range keys {
			vectors[i] = flat[i*dim : (i+1)*dim]
		}

		idx.opts = Options{Dim: dim, Metric: distance.Metric(metric), ElementKind: ElementKind(kind)}
		idx.dir = dir
		idx.keys = keys
		idx.vectors = vectors
		idx.slots = make(map[uint64]int, len(keys))
		idx.present = roaring64.New()
		for i, k := range keys {
			idx.slots[k] = i
			idx.present.Add(k)
		}
		idx.state = stateInitialized
		return nil
	})
	if loadErr != nil {
		return fmt.Errorf("%w: %v", ErrCorruptIndex, loadErr)
	}
	return nil
}

// Save flushes the index to dir/index.bin atomically (write-temp-then-
// rename). Saving an empty, Initialized index is a no-op that still writes
// a valid, empty file.
func (idx *Index) Save() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.state == stateNew {
		return ErrNotInitialized
	}

	path := filepath.Join(idx.dir, "index.bin")
	err := persistence.SaveToFile(path, func(w io.Writer) error {
		bw := persistence.NewBinaryIndexWriter(w)
		header := &persistence.FileHeader{
			IndexType:   persistence.IndexTypeFlat,
			VectorCount: uint64(len(idx.keys)),
			Dimension:   uint32(idx.opts.Dim),
		}
		if err := bw.WriteHeader(header); err != nil {
			return err
		}

		cw := persistence.NewChecksumWriter(w)
		ccw := persistence.NewBinaryIndexWriter(cw)

		if err := binary.Write(cw, binary.LittleEndian, uint32(idx.opts.Metric)); err != nil {
			return err
		}
		if err := binary.Write(cw, binary.LittleEndian, uint32(idx.opts.ElementKind)); err != nil {
			return err
		}
		if err := ccw.WriteUint64Slice(idx.keys); err != nil {
			return err
		}

		flat := make([]float32, 0, len(idx.keys)*idx.opts.Dim)
		for _, v := range idx.vectors {
			flat = append(flat, v...)
		}
		if err := ccw.WriteFloat32Slice(flat); err != nil {
			return err
		}

		return binary.Write(w, binary.LittleEndian, cw.Sum())
	})
	if err != nil {
		return fmt.Errorf("vectorindex: save: %w", err)
	}

	idx.state = statePersisted
	return nil
}

// Add inserts a batch of (key, vector) pairs. vectors holds len(keys)*dim
// contiguous float32 elements. Capacity is grown by ceil(required*1.1)
// first if needed; the batch is then inserted in parallel, one worker per
// vector, writing to disjoint slots so no synchronization is needed inside
// the loop. A per-vector failure aborts the whole batch.
func (idx *Index) Add(ctx context.Context, keys []uint64, vectors []float32, dim int) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.state == stateNew {
		return ErrNotInitialized
	}
	if dim != idx.opts.Dim {
		return fmt.Errorf("%w: configured %d, got %d", ErrDimMismatch, idx.opts.Dim, dim)
	}
	if len(keys) == 0 {
		return nil
	}
	if len(vectors) != len(keys)*dim {
		return fmt.Errorf("vectorindex: vectors length %d does not match %d keys * dim %d", len(vectors), len(keys), dim)
	}

	required := len(idx.keys) + len(keys)
	if required > cap(idx.keys) {
		newCap := int(math.Ceil(float64(required) * 1.1))
		grownKeys := make([]uint64, len(idx.keys), newCap)
		copy(grownKeys, idx.keys)
		grownVectors := make([][]float32, len(idx.vectors), newCap)
		copy(grownVectors, idx.vectors)
		idx.keys = grownKeys
		idx.vectors = grownVectors
	}

	startSlot := len(idx.keys)
	idx.keys = idx.keys[:required]
	idx.vectors = idx.vectors[:required]

	g, gctx := errgroup.WithContext(ctx)
	for i := range keys {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			slot := startSlot + i
			vec := make([]float32, dim)
			copy(vec, vectors[i*dim:(i+1)*dim])
			idx.keys[slot] = keys[i]
			idx.vectors[slot] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Roll back to the pre-batch size; prior state is untouched.
		idx.keys = idx.keys[:startSlot]
		idx.vectors = idx.vectors[:startSlot]
		return fmt.Errorf("vectorindex: add: %w", err)
	}

	for i, k := range keys {
		idx.slots[k] = startSlot + i
		idx.present.Add(k)
	}
	idx.state = stateModified
	return nil
}

// Search returns up to k results ordered by descending score, ties broken
// by ascending key. A zero-vector query never produces NaN: cosine scoring
// clamps to 0 when either side has zero L2 norm.
func (idx *Index) Search(query []float32, dim int, k int) ([]Result, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.state == stateNew {
		return nil, ErrNotInitialized
	}
	if dim != idx.opts.Dim {
		return nil, fmt.Errorf("%w: configured %d, got %d", ErrDimMismatch, idx.opts.Dim, dim)
	}
	if k <= 0 || len(idx.keys) == 0 {
		return []Result{}, nil
	}

	qNorm, qOk := distance.NormalizeL2Copy(query)

	scored := make([]Result, len(idx.keys))
	for i, key := range idx.keys {
		scored[i] = Result{Key: key, Score: idx.score(query, qNorm, qOk, idx.vectors[i])}
	}
	sort.Slice(scored, func(a, b int) bool {
		if scored[a].Score != scored[b].Score {
			return scored[a].Score > scored[b].Score
		}
		return scored[a].Key < scored[b].Key
	})

	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

func (idx *Index) score(qRaw, qNorm []float32, qOk bool, v []float32) float32 {
	switch idx.opts.Metric {
	case distance.MetricDot:
		return distance.Dot(qRaw, v)
	case distance.MetricL2:
		return -distance.SquaredL2(qRaw, v)
	default: // MetricCosine
		if !qOk {
			return 0
		}
		vNorm, vOk := distance.NormalizeL2Copy(v)
		if !vOk {
			return 0
		}
		return distance.Dot(qNorm, vNorm)
	}
}
