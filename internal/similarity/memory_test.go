package similarity

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func newTestIndex() *MemoryIndex {
	cfg := DefaultIndexConfig()
	cfg.EmbedRateLimit = 0 // no throttling in tests
	return NewMemoryIndex(&HashingEmbedder{Dim: 128}, cfg)
}

func TestIndexAddAndSearch(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex()

	docs := map[string]string{
		"doc-1": "mitochondria produce ATP through oxidative phosphorylation",
		"doc-2": "ribosomes translate messenger RNA into protein",
		"doc-3": "the stock market closed higher on tuesday",
	}
	for id, content := range docs {
		if err := idx.Add(ctx, id, content); err != nil {
			t.Fatalf("Add(%s) failed: %v", id, err)
		}
	}

	hits, err := idx.Search(ctx, "mitochondria produce ATP through oxidative phosphorylation", 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	if hits[0].ID != "doc-1" {
		t.Errorf("expected doc-1 as top hit, got %s", hits[0].ID)
	}
	// Exact content must come back essentially perfect
	if hits[0].Score < 0.99 {
		t.Errorf("exact-content match scored %v, want >= 0.99", hits[0].Score)
	}
	for _, h := range hits {
		if h.Score < 0 || h.Score > 1 {
			t.Errorf("hit %s score %v out of [0,1]", h.ID, h.Score)
		}
	}
}

func TestIndexAddIsIdempotent(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex()

	if err := idx.Add(ctx, "doc-1", "original content about enzymes"); err != nil {
		t.Fatal(err)
	}
	if err := idx.Add(ctx, "doc-1", "replacement content about rivers"); err != nil {
		t.Fatal(err)
	}
	if idx.Len() != 1 {
		t.Fatalf("re-adding the same id should replace, not grow: len=%d", idx.Len())
	}

	hits, err := idx.Search(ctx, "replacement content about rivers", 1)
	if err != nil {
		t.Fatal(err)
	}
	if hits[0].Score < 0.99 {
		t.Errorf("replaced vector should match new content, score %v", hits[0].Score)
	}
}

func TestIndexRemove(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex()

	if err := idx.Add(ctx, "doc-1", "some content"); err != nil {
		t.Fatal(err)
	}
	if err := idx.Remove(ctx, "doc-1"); err != nil {
		t.Fatal(err)
	}
	if err := idx.Remove(ctx, "doc-1"); err != nil {
		t.Errorf("removing an unknown id should be a no-op, got %v", err)
	}
	if idx.Len() != 0 {
		t.Errorf("expected empty index, len=%d", idx.Len())
	}
}

func TestNilEmbedderIsUnavailable(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(nil, DefaultIndexConfig())

	if err := idx.Add(ctx, "doc-1", "content"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Add with nil embedder: got %v, want ErrUnavailable", err)
	}
	if _, err := idx.Search(ctx, "query", 5); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Search with nil embedder: got %v, want ErrUnavailable", err)
	}
	if err := idx.Remove(ctx, "doc-1"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Remove with nil embedder: got %v, want ErrUnavailable", err)
	}
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return nil, fmt.Errorf("backend connection refused")
}

func TestEmbedderFailureIsUnavailable(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultIndexConfig()
	cfg.EmbedRateLimit = 0
	idx := NewMemoryIndex(failingEmbedder{}, cfg)

	err := idx.Add(ctx, "doc-1", "content")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("provider failure should surface as ErrUnavailable, got %v", err)
	}
}

func TestSearchTieBreaksByID(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex()

	// Identical content means identical vectors and identical scores
	if err := idx.Add(ctx, "doc-b", "same words here"); err != nil {
		t.Fatal(err)
	}
	if err := idx.Add(ctx, "doc-a", "same words here"); err != nil {
		t.Fatal(err)
	}

	hits, err := idx.Search(ctx, "same words here", 2)
	if err != nil {
		t.Fatal(err)
	}
	if hits[0].ID != "doc-a" || hits[1].ID != "doc-b" {
		t.Errorf("equal scores should order by id: got %s, %s", hits[0].ID, hits[1].ID)
	}
}

func TestHashingEmbedderDeterminism(t *testing.T) {
	ctx := context.Background()
	e := &HashingEmbedder{Dim: 64}

	v1, err := e.Embed(ctx, "deterministic input text")
	if err != nil {
		t.Fatal(err)
	}
	v2, err := e.Embed(ctx, "deterministic input text")
	if err != nil {
		t.Fatal(err)
	}
	if len(v1) != 64 {
		t.Fatalf("expected 64 dims, got %d", len(v1))
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("embedding not deterministic at dim %d", i)
		}
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 0}, []float64{1, 0}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"mismatched length", []float64{1}, []float64{1, 0}, 0},
		{"zero vector", []float64{0, 0}, []float64{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cosine(tt.a, tt.b); got != tt.want {
				t.Errorf("cosine = %v, want %v", got, tt.want)
			}
		})
	}
}
