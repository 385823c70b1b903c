package embedder

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/altaidevorg/letsearch/float16"
)

// TFIDF is a deterministic, dependency-free text embedder: cosine-ready
// TF-IDF vectors over a vocabulary learned from the first batch it sees (or
// from an explicit Train call). Output dimensionality is fixed at
// construction time (maxDims) so a Collection can size its VectorIndex
// before any text has been embedded; terms beyond the trained vocabulary
// are dropped rather than grown into.
//
// Adapted from the TF-IDF embedder shape used elsewhere in this ecosystem
// for the same auto-train-on-first-batch pattern.
type TFIDF struct {
	mu         sync.RWMutex
	vocabulary map[string]int
	idf        []float32
	maxDims    int
	trained    bool
}

// NewTFIDF creates a TF-IDF embedder with a fixed output dimensionality of
// maxDims (defaults to 4096 if maxDims <= 0).
func NewTFIDF(maxDims int) *TFIDF {
	if maxDims <= 0 {
		maxDims = 4096
	}
	return &TFIDF{
		vocabulary: make(map[string]int),
		maxDims:    maxDims,
	}
}

// Train builds the vocabulary and IDF table from a corpus, keeping the
// maxDims most frequent terms.
func (t *TFIDF) Train(documents []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trainLocked(documents)
}

func (t *TFIDF) trainLocked(documents []string) {
	df := make(map[string]int)
	for _, doc := range documents {
		seen := make(map[string]bool)
		for _, word := range tokenize(doc) {
			if !seen[word] {
				df[word]++
				seen[word] = true
			}
		}
	}

	type wordFreq struct {
		word string
		freq int
	}
	wf := make([]wordFreq, 0, len(df))
	for w, f := range df {
		wf = append(wf, wordFreq{w, f})
	}
	sort.Slice(wf, func(i, j int) bool {
		if wf[i].freq != wf[j].freq {
			return wf[i].freq > wf[j].freq
		}
		return wf[i].word < wf[j].word
	})
	if len(wf) > t.maxDims {
		wf = wf[:t.maxDims]
	}

	t.vocabulary = make(map[string]int, len(wf))
	t.idf = make([]float32, len(wf))
	n := float64(len(documents))
	for i, w := range wf {
		t.vocabulary[w.word] = i
		t.idf[i] = float32(math.Log(n / float64(w.freq)))
	}
	t.trained = true
}

// PredictF32 embeds a batch of strings into TF-IDF vectors, auto-training on
// the batch if the embedder has not been trained yet.
func (t *TFIDF) PredictF32(ctx context.Context, batch []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.RLock()
	trained := t.trained
	t.mu.RUnlock()
	if !trained {
		t.Train(batch)
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	vectors := make([][]float32, len(batch))
	for i, text := range batch {
		vec := make([]float32, t.maxDims)
		words := tokenize(text)

		tf := make(map[string]int, len(words))
		for _, w := range words {
			tf[w]++
		}
		for word, count := range tf {
			if idx, ok := t.vocabulary[word]; ok {
				vec[idx] = float32(count) / float32(len(words)) * t.idf[idx]
			}
		}

		var norm float32
		for _, v := range vec {
			norm += v * v
		}
		if norm > 0 {
			norm = float32(math.Sqrt(float64(norm)))
			for j := range vec {
				vec[j] /= norm
			}
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// PredictF16 always fails: TFIDF's OutputDtype is DtypeF32.
func (t *TFIDF) PredictF16(ctx context.Context, batch []string) ([][]float16.Num, error) {
	return nil, ErrWrongDtype
}

// OutputDim returns the fixed vector width, regardless of training state.
func (t *TFIDF) OutputDim() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.maxDims
}

// OutputDtype is always DtypeF32 for TFIDF.
func (t *TFIDF) OutputDtype() Dtype { return DtypeF32 }

func tokenize(text string) []string {
	var words []string
	var word strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			word.WriteRune(r)
		} else if word.Len() > 0 {
			words = append(words, word.String())
			word.Reset()
		}
	}
	if word.Len() > 0 {
		words = append(words, word.String())
	}
	return words
}
