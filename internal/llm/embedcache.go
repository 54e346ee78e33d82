package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cloudwego/eino/components/embedding"
)

// CachingEmbedder memoizes embeddings by exact text. Summaries get
// re-embedded on every retrieval pass, so a process-lifetime cache drops
// most upstream calls.
type CachingEmbedder struct {
	inner embedding.Embedder
	dim   int

	mu    sync.Mutex
	cache map[string][]float32
}

// NewCachingEmbedder wraps an embedder. dim is the expected vector size;
// zero disables the dimension check.
func NewCachingEmbedder(inner embedding.Embedder, dim int) *CachingEmbedder {
	return &CachingEmbedder{inner: inner, dim: dim, cache: make(map[string][]float32)}
}

// Embed returns the vector for one text, hitting the API only on a cache
// miss.
func (e *CachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	v, ok := e.cache[text]
	e.mu.Unlock()
	if ok {
		return v, nil
	}

	vecs, err := e.inner.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed text: got %d vectors for 1 input", len(vecs))
	}
	return e.store(text, vecs[0]), nil
}

// EmbedBatch returns vectors positionally matching texts, issuing at most
// one upstream call covering all cache misses.
func (e *CachingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	e.mu.Lock()
	for i, t := range texts {
		if v, ok := e.cache[t]; ok {
			out[i] = v
		} else {
			missing = append(missing, t)
			missingIdx = append(missingIdx, i)
		}
	}
	e.mu.Unlock()

	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := e.inner.EmbedStrings(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("embed batch: got %d vectors for %d inputs", len(vecs), len(missing))
	}
	for j, idx := range missingIdx {
		out[idx] = e.store(missing[j], vecs[j])
	}
	return out, nil
}

// store converts to float32 and caches under the exact text. A dimension
// mismatch is logged but the vector is kept, matching whatever the
// provider actually returns.
func (e *CachingEmbedder) store(text string, vec []float64) []float32 {
	if e.dim > 0 && len(vec) != e.dim {
		slog.Warn("embedding dimension mismatch", "want", e.dim, "got", len(vec))
	}
	v := make([]float32, len(vec))
	for i, f := range vec {
		v[i] = float32(f)
	}
	e.mu.Lock()
	e.cache[text] = v
	e.mu.Unlock()
	return v
}

// CacheSize reports how many distinct texts are cached.
func (e *CachingEmbedder) CacheSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cache)
}
