// Package engine orchestrates the decide-and-merge pipeline: one similarity
// search, one gate decision, and at most one merge and versioned write per
// incoming candidate. It enforces the invariant the rest of the system
// depends on: at most one in-flight decide-and-merge per target document.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/scribeworks/scribe/internal/gate"
	"github.com/scribeworks/scribe/internal/merge"
	"github.com/scribeworks/scribe/internal/similarity"
	"github.com/scribeworks/scribe/internal/storage"
	"github.com/scribeworks/scribe/internal/types"
)

// Config holds engine tuning
type Config struct {
	// MaxConcurrentIngests bounds the worker pool for batch ingest.
	// Default: 4
	MaxConcurrentIngests int

	// MaxConflictRetries is how many times a decide-and-merge is re-run
	// from scratch after an optimistic-concurrency failure. Default: 3
	MaxConflictRetries int

	// NewDocumentStatus is the lifecycle state for freshly created
	// documents. Default: active
	NewDocumentStatus types.Status
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrentIngests: 4,
		MaxConflictRetries:   3,
		NewDocumentStatus:    types.StatusActive,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.MaxConcurrentIngests <= 0 {
		return fmt.Errorf("max_concurrent_ingests must be positive (got %d)", c.MaxConcurrentIngests)
	}
	if c.MaxConcurrentIngests > 64 {
		return fmt.Errorf("max_concurrent_ingests too large (got %d, max 64)", c.MaxConcurrentIngests)
	}
	if c.MaxConflictRetries < 0 {
		return fmt.Errorf("max_conflict_retries cannot be negative (got %d)", c.MaxConflictRetries)
	}
	if c.MaxConflictRetries > 10 {
		return fmt.Errorf("max_conflict_retries too large (got %d, max 10)", c.MaxConflictRetries)
	}
	if !c.NewDocumentStatus.IsValid() {
		return fmt.Errorf("invalid new_document_status: %s", c.NewDocumentStatus)
	}
	return nil
}

// Stats is a snapshot of the engine's degradation and outcome counters.
// Every degraded path is counted because silent degradation defeats later
// debugging of apparent under-merging.
type Stats struct {
	Creates              uint64 `json:"creates"`
	Updates              uint64 `json:"updates"`
	Merges               uint64 `json:"merges"`
	DegradedDecisions    uint64 `json:"degraded_decisions"`
	TruncatedScans       uint64 `json:"truncated_scans"`
	ParseFallbacks       uint64 `json:"parse_fallbacks"`
	VersionConflicts     uint64 `json:"version_conflicts"`
	IndexRefreshFailures uint64 `json:"index_refresh_failures"`
}

// IngestResult is the outcome of one committed ingest
type IngestResult struct {
	// Decision is the gate's classification that was acted on
	Decision *types.DeduplicationResult

	// Document is the committed document: freshly created, or the merged
	// new version
	Document *types.Document

	// Report is the merge report; nil when the decision was create
	Report *types.MergeReport
}

// Engine runs the full ingest pipeline for incoming candidates
type Engine struct {
	store  storage.Store
	index  similarity.Index
	gate   *gate.Gate
	merger *merge.Merger
	config Config

	locks docLocks
	sem   *semaphore.Weighted

	creates              atomic.Uint64
	updates              atomic.Uint64
	merges               atomic.Uint64
	degradedDecisions    atomic.Uint64
	truncatedScans       atomic.Uint64
	parseFallbacks       atomic.Uint64
	versionConflicts     atomic.Uint64
	indexRefreshFailures atomic.Uint64
}

// New creates an engine. The index may be nil (permanent degraded mode);
// store, gate, and merger must be non-nil.
func New(store storage.Store, index similarity.Index, g *gate.Gate, m *merge.Merger, config Config) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if g == nil {
		return nil, fmt.Errorf("gate cannot be nil")
	}
	if m == nil {
		return nil, fmt.Errorf("merger cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Engine{
		store:  store,
		index:  index,
		gate:   g,
		merger: m,
		config: config,
		sem:    semaphore.NewWeighted(int64(config.MaxConcurrentIngests)),
	}, nil
}

// Ingest runs decide-and-merge for one candidate and commits the outcome.
// strategy optionally overrides the merge strategy; replace is only
// reachable through it. Safe for concurrent use; writes to the same target
// document are serialized.
func (e *Engine) Ingest(ctx context.Context, candidate *types.Candidate, strategy types.MergeStrategy) (*IngestResult, error) {
	if candidate == nil {
		return nil, types.Validation(fmt.Errorf("candidate cannot be nil"))
	}
	if err := candidate.Validate(); err != nil {
		return nil, types.Validation(fmt.Errorf("invalid candidate: %w", err))
	}
	if strategy != "" && !strategy.IsValid() {
		return nil, types.Validation(fmt.Errorf("invalid strategy: %s", strategy))
	}

	var lastErr error
	for attempt := 0; attempt <= e.config.MaxConflictRetries; attempt++ {
		result, err := e.attempt(ctx, candidate, strategy)
		if err == nil {
			e.countDecision(result.Decision)
			return result, nil
		}
		if !errors.Is(err, storage.ErrVersionMismatch) {
			return nil, err
		}
		// Someone else committed first; re-run the whole decide-and-merge
		// with fresh state
		e.versionConflicts.Add(1)
		lastErr = err
		log.Printf("[ENGINE] version conflict on attempt %d, retrying with fresh state: %v", attempt+1, err)
	}
	return nil, fmt.Errorf("decide-and-merge gave up after %d attempts: %w",
		e.config.MaxConflictRetries+1, lastErr)
}

// attempt runs one full decide-and-merge pass
func (e *Engine) attempt(ctx context.Context, candidate *types.Candidate, strategy types.MergeStrategy) (*IngestResult, error) {
	// First decision is unlocked: it only tells us which document, if any,
	// we are about to contend for
	decision, err := e.gate.Decide(ctx, candidate)
	if err != nil {
		return nil, err
	}

	if decision.Action == types.ActionCreate {
		return e.commitCreate(ctx, candidate, decision)
	}

	targetID := decision.TargetDocument.ID
	unlock := e.locks.lock(targetID)
	defer unlock()

	// Re-validate under the lock: the corpus may have changed while we
	// waited, and the decision must be made against current state
	decision, err = e.gate.Decide(ctx, candidate)
	if err != nil {
		return nil, err
	}
	if decision.Action == types.ActionCreate {
		return e.commitCreate(ctx, candidate, decision)
	}
	if decision.TargetDocument.ID != targetID {
		// Target moved underneath us; retry from scratch so the lock we
		// hold matches the document we write
		return nil, fmt.Errorf("decision target changed from %s to %s under lock: %w",
			targetID, decision.TargetDocument.ID, storage.ErrVersionMismatch)
	}

	// Merge against the freshest committed version, not the one captured
	// in the decision
	target, err := e.store.Get(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load merge target %s: %w", targetID, err)
	}

	report, err := e.merger.Merge(ctx, merge.Request{
		Target:    target,
		Candidate: candidate,
		Action:    decision.Action,
		Strategy:  strategy,
	})
	if err != nil {
		return nil, fmt.Errorf("merge into %s failed: %w", targetID, err)
	}
	if report.ParseFallback {
		e.parseFallbacks.Add(1)
	}

	if err := e.store.Put(ctx, report.MergedDocument, target.Version); err != nil {
		return nil, err
	}
	e.countAction(decision.Action)
	e.refreshIndex(ctx, report.MergedDocument)

	return &IngestResult{
		Decision: decision,
		Document: report.MergedDocument,
		Report:   report,
	}, nil
}

// commitCreate files the candidate as a brand-new document
func (e *Engine) commitCreate(ctx context.Context, candidate *types.Candidate, decision *types.DeduplicationResult) (*IngestResult, error) {
	now := time.Now().UTC()
	doc := &types.Document{
		ID:              uuid.NewString(),
		Content:         candidate.Content,
		Topics:          append([]string(nil), candidate.Topics...),
		Confidence:      candidate.Confidence,
		Status:          e.config.NewDocumentStatus,
		SourceQuestions: append([]string(nil), candidate.SourceQuestions...),
		CreatedAt:       now,
		UpdatedAt:       now,
		Version:         1,
	}
	if err := e.store.Put(ctx, doc, 0); err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	e.countAction(types.ActionCreate)
	e.refreshIndex(ctx, doc)

	return &IngestResult{
		Decision: decision,
		Document: doc,
	}, nil
}

// refreshIndex replaces the committed document's embedding so the index is
// never stale relative to the last committed version. Index unavailability
// is counted, not fatal: the finder degrades transparently.
func (e *Engine) refreshIndex(ctx context.Context, doc *types.Document) {
	if e.index == nil {
		return
	}
	if err := e.index.Add(ctx, doc.ID, doc.Content); err != nil {
		e.indexRefreshFailures.Add(1)
		if errors.Is(err, similarity.ErrUnavailable) {
			log.Printf("[ENGINE] index unavailable while refreshing %s; finder will degrade", doc.ID)
			return
		}
		log.Printf("[ENGINE] failed to refresh index for %s: %v", doc.ID, err)
	}
}

// BatchItem pairs one candidate's result with its error
type BatchItem struct {
	Result *IngestResult
	Err    error
}

// IngestBatch ingests candidates concurrently through a bounded worker pool,
// one goroutine per candidate, at most MaxConcurrentIngests in flight.
// Results align with the input by index; one candidate failing does not stop
// the others.
func (e *Engine) IngestBatch(ctx context.Context, candidates []*types.Candidate) []BatchItem {
	items := make([]BatchItem, len(candidates))

	var wg sync.WaitGroup
	for i, candidate := range candidates {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			items[i] = BatchItem{Err: err}
			continue
		}
		wg.Add(1)
		go func(i int, candidate *types.Candidate) {
			defer wg.Done()
			defer e.sem.Release(1)
			result, err := e.Ingest(ctx, candidate, "")
			items[i] = BatchItem{Result: result, Err: err}
		}(i, candidate)
	}
	wg.Wait()
	return items
}

// Stats returns a snapshot of the engine's counters
func (e *Engine) Stats() Stats {
	return Stats{
		Creates:              e.creates.Load(),
		Updates:              e.updates.Load(),
		Merges:               e.merges.Load(),
		DegradedDecisions:    e.degradedDecisions.Load(),
		TruncatedScans:       e.truncatedScans.Load(),
		ParseFallbacks:       e.parseFallbacks.Load(),
		VersionConflicts:     e.versionConflicts.Load(),
		IndexRefreshFailures: e.indexRefreshFailures.Load(),
	}
}

// countDecision tracks degraded-path flags from the decision that was acted
// on. Called once per committed ingest, not per retry attempt.
func (e *Engine) countDecision(decision *types.DeduplicationResult) {
	if decision.Degraded {
		e.degradedDecisions.Add(1)
	}
	if decision.Truncated {
		e.truncatedScans.Add(1)
	}
}

// countAction tracks committed outcomes
func (e *Engine) countAction(action types.Action) {
	switch action {
	case types.ActionCreate:
		e.creates.Add(1)
	case types.ActionUpdate:
		e.updates.Add(1)
	case types.ActionMerge:
		e.merges.Add(1)
	}
}
