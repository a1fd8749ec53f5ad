package similarity

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IndexConfig holds tuning for the in-memory index
type IndexConfig struct {
	// EmbedTimeout bounds each embedding call. A timeout is reported as
	// ErrUnavailable so callers degrade instead of failing.
	// Default: 10 seconds
	EmbedTimeout time.Duration

	// EmbedRateLimit caps embedding calls per second against the provider.
	// Zero disables throttling.
	// Default: 10
	EmbedRateLimit float64

	// EmbedBurst is the limiter burst size. Default: 5
	EmbedBurst int
}

// DefaultIndexConfig returns the default index configuration
func DefaultIndexConfig() IndexConfig {
	return IndexConfig{
		EmbedTimeout:   10 * time.Second,
		EmbedRateLimit: 10,
		EmbedBurst:     5,
	}
}

// MemoryIndex is an in-process nearest-neighbor index: vectors live in a map
// and search is exact cosine similarity over all of them. It trades scale for
// zero operational surface, which fits corpora in the tens of thousands of
// documents. A vector-database-backed Index can replace it without touching
// callers.
type MemoryIndex struct {
	mu       sync.RWMutex
	embedder Embedder
	vectors  map[string][]float64
	limiter  *rate.Limiter
	timeout  time.Duration
}

// Compile-time check that MemoryIndex implements Index
var _ Index = (*MemoryIndex)(nil)

// NewMemoryIndex creates an in-memory index over the given embedder.
// A nil embedder is allowed: the index then reports ErrUnavailable from every
// method, which is the configured-off state.
func NewMemoryIndex(embedder Embedder, cfg IndexConfig) *MemoryIndex {
	var limiter *rate.Limiter
	if cfg.EmbedRateLimit > 0 {
		burst := cfg.EmbedBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.EmbedRateLimit), burst)
	}
	timeout := cfg.EmbedTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MemoryIndex{
		embedder: embedder,
		vectors:  make(map[string][]float64),
		limiter:  limiter,
		timeout:  timeout,
	}
}

// Add embeds content and stores (or replaces) the vector for id
func (m *MemoryIndex) Add(ctx context.Context, id, content string) error {
	if id == "" {
		return fmt.Errorf("id is required")
	}
	vec, err := m.embed(ctx, content)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[id] = vec
	return nil
}

// Remove drops the vector for id. Removing an unknown id is a no-op.
func (m *MemoryIndex) Remove(ctx context.Context, id string) error {
	if m.embedder == nil {
		return ErrUnavailable
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vectors, id)
	return nil
}

// Search embeds the query and returns up to limit hits sorted by descending
// cosine similarity, ties broken by smaller id
func (m *MemoryIndex) Search(ctx context.Context, query string, limit int) ([]ScoredID, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive (got %d)", limit)
	}
	queryVec, err := m.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	results := make([]ScoredID, 0, len(m.vectors))
	for id, vec := range m.vectors {
		results = append(results, ScoredID{ID: id, Score: Clamp(cosine(queryVec, vec))})
	}
	m.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Len returns the number of indexed vectors
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}

// embed runs one rate-limited, timeout-bounded embedding call. Provider
// failures and timeouts come back as ErrUnavailable so the caller degrades.
func (m *MemoryIndex) embed(ctx context.Context, text string) ([]float64, error) {
	if m.embedder == nil {
		return nil, ErrUnavailable
	}

	embedCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if m.limiter != nil {
		if err := m.limiter.Wait(embedCtx); err != nil {
			return nil, Unavailable(fmt.Errorf("embedding rate limit wait: %w", err))
		}
	}

	vec, err := m.embedder.Embed(embedCtx, text)
	if err != nil {
		return nil, Unavailable(fmt.Errorf("embedding call failed: %w", err))
	}
	if len(vec) == 0 {
		return nil, Unavailable(fmt.Errorf("embedding provider returned empty vector"))
	}
	return vec, nil
}

// cosine computes cosine similarity between two vectors. Mismatched lengths
// or zero vectors score 0.
func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// HashingEmbedder is a deterministic, provider-free embedder: token feature
// hashing into a fixed-length vector, L2-normalized. It is not a semantic
// model; it exists so the index path can run in tests and in deployments
// with no embedding provider configured.
type HashingEmbedder struct {
	// Dim is the vector length. Default: 256
	Dim int
}

// Compile-time check that HashingEmbedder implements Embedder
var _ Embedder = (*HashingEmbedder)(nil)

// Embed hashes each token of text into one of Dim buckets and normalizes
func (h *HashingEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dim := h.Dim
	if dim <= 0 {
		dim = 256
	}
	vec := make([]float64, dim)
	for token := range tokenize(text) {
		hasher := fnv.New32a()
		hasher.Write([]byte(token))
		vec[int(hasher.Sum32())%dim]++
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}
