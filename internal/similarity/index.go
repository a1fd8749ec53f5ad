// Package similarity provides the two similarity signals the engine is built
// on: a pluggable nearest-neighbor index over content embeddings, and a
// deterministic dependency-free fallback scorer used when the index is
// unavailable or inconclusive.
//
// The index is a preference, not a requirement. Every method returns
// ErrUnavailable when the backing store is unreachable or not configured, and
// callers treat that as a signal to degrade, never as a hard failure of the
// pipeline.
package similarity

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by every Index method when the backing store is
// unreachable, not configured, or timed out. Callers fall back to the
// deterministic scorer.
var ErrUnavailable = errors.New("similarity index unavailable")

// ScoredID is one nearest-neighbor search hit
type ScoredID struct {
	ID    string
	Score float64 // cosine similarity clamped to [0,1]
}

// Index is the nearest-neighbor search contract over content embeddings.
//
// Add is idempotent: re-adding an id replaces its vector. The index owns the
// embedding for each id and must be refreshed whenever the document's content
// changes, and cleared when the document is deleted or archived, so that an
// embedding is never stale relative to the last committed version.
type Index interface {
	// Add embeds content and stores (or replaces) the vector for id
	Add(ctx context.Context, id, content string) error

	// Remove drops the vector for id. Removing an unknown id is a no-op.
	Remove(ctx context.Context, id string) error

	// Search returns up to limit hits sorted by descending score
	Search(ctx context.Context, query string, limit int) ([]ScoredID, error)
}

// Embedder produces a fixed-length vector for a piece of text. This is the
// only contract the engine has with the embedding provider; the model behind
// it is an external concern.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Unavailable wraps err so it satisfies errors.Is(err, ErrUnavailable) while
// keeping the original cause visible in logs
func Unavailable(err error) error {
	if err == nil {
		return ErrUnavailable
	}
	return errors.Join(ErrUnavailable, err)
}
