// Package storage defines the versioned document store: the single owner of
// Document records and the engine's only commit point. Writes are
// optimistic-concurrency: a Put succeeds only if the version read earlier
// still matches, which keeps per-document serialization safe even across
// process restarts.
package storage

import (
	"context"
	"errors"

	"github.com/scribeworks/scribe/internal/types"
)

var (
	// ErrNotFound is returned when no document exists with the given id
	ErrNotFound = errors.New("document not found")

	// ErrVersionMismatch is returned when a Put's expectedVersion does not
	// match the current stored version. The caller should retry the whole
	// decide-and-merge with fresh state, bounded.
	ErrVersionMismatch = errors.New("document version mismatch: concurrent modification detected")
)

// DocumentFilter narrows a List call. Zero values mean "no constraint".
type DocumentFilter struct {
	// Topics matches documents carrying at least one of these topics
	Topics []string

	// Status restricts to a single lifecycle state when non-nil
	Status *types.Status

	// MinConfidence drops documents below this confidence
	MinConfidence float64

	// Limit caps the number of results; zero means unlimited
	Limit int
}

// Store is the versioned document store contract.
//
// Put is the append-only versioned write: doc.Version must equal
// expectedVersion+1, and the write fails with ErrVersionMismatch unless the
// currently stored version equals expectedVersion. expectedVersion 0 creates
// the document. Every committed version stays retrievable through History.
type Store interface {
	Get(ctx context.Context, id string) (*types.Document, error)
	Put(ctx context.Context, doc *types.Document, expectedVersion int) error
	History(ctx context.Context, id string) ([]*types.Document, error)
	List(ctx context.Context, filter DocumentFilter) ([]*types.Document, error)
	Close() error
}
