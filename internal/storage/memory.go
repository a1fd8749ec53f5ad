package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/scribeworks/scribe/internal/types"
)

// MemoryStore is an in-process Store for tests and ephemeral runs. It keeps
// full version history and enforces the same optimistic-concurrency contract
// as the persistent backends.
type MemoryStore struct {
	mu       sync.RWMutex
	current  map[string]*types.Document
	versions map[string][]*types.Document // oldest first, includes current
}

// Compile-time check that MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		current:  make(map[string]*types.Document),
		versions: make(map[string][]*types.Document),
	}
}

// Get returns a copy of the current version of the document
func (s *MemoryStore) Get(ctx context.Context, id string) (*types.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.current[id]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return doc.Clone(), nil
}

// Put commits a new version of the document under the optimistic-concurrency
// contract
func (s *MemoryStore) Put(ctx context.Context, doc *types.Document, expectedVersion int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := doc.Validate(); err != nil {
		return types.Validation(fmt.Errorf("invalid document: %w", err))
	}
	if doc.Version != expectedVersion+1 {
		return types.Validation(fmt.Errorf(
			"document version %d must be expectedVersion+1 (%d)", doc.Version, expectedVersion+1))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	currentVersion := 0
	if existing, ok := s.current[doc.ID]; ok {
		currentVersion = existing.Version
	}
	if currentVersion != expectedVersion {
		return fmt.Errorf("put %s: expected version %d, have %d: %w",
			doc.ID, expectedVersion, currentVersion, ErrVersionMismatch)
	}

	stored := doc.Clone()
	s.current[doc.ID] = stored
	s.versions[doc.ID] = append(s.versions[doc.ID], stored)
	return nil
}

// History returns every committed version of the document, oldest first
func (s *MemoryStore) History(ctx context.Context, id string) ([]*types.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions, ok := s.versions[id]
	if !ok {
		return nil, fmt.Errorf("history %s: %w", id, ErrNotFound)
	}
	out := make([]*types.Document, len(versions))
	for i, v := range versions {
		out[i] = v.Clone()
	}
	return out, nil
}

// List returns current document versions matching the filter, ordered by id
// for determinism
func (s *MemoryStore) List(ctx context.Context, filter DocumentFilter) ([]*types.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Document
	for _, doc := range s.current {
		if matchesFilter(doc, filter) {
			out = append(out, doc.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error { return nil }

// matchesFilter applies a DocumentFilter to one document
func matchesFilter(doc *types.Document, filter DocumentFilter) bool {
	if filter.Status != nil && doc.Status != *filter.Status {
		return false
	}
	if doc.Confidence < filter.MinConfidence {
		return false
	}
	if len(filter.Topics) > 0 {
		found := false
		for _, topic := range filter.Topics {
			if doc.HasTopic(topic) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
