// Package finder implements document discovery: similarity search with a
// vector index when one is available, a deterministic bounded fallback scan
// when it is not, plus structured metadata search and relevance re-ranking.
package finder

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/scribeworks/scribe/internal/similarity"
	"github.com/scribeworks/scribe/internal/storage"
	"github.com/scribeworks/scribe/internal/types"
)

// Config holds tuning for the finder
type Config struct {
	// VectorWeight, TopicWeight, QuestionWeight blend the index path score.
	// Vector similarity dominates but topic/question signals anchor the
	// score against embedding noise. Default: 0.6 / 0.3 / 0.1
	VectorWeight   float64
	TopicWeight    float64
	QuestionWeight float64

	// MaxScanSize caps the degraded-mode full scan so one slow request
	// cannot starve the worker pool. The caller is told via the Truncated
	// flag when the cap was hit. Default: 1000
	MaxScanSize int

	// IndexTimeout bounds each index search; a timeout degrades to the
	// fallback scan. Default: 5 seconds
	IndexTimeout time.Duration

	// RecencyHalfLife is the age at which a document's recency factor has
	// decayed to 0.5. Default: 30 days
	RecencyHalfLife time.Duration

	// ConfidenceWeight is the fixed confidence share in RankByRelevance.
	// Default: 0.1
	ConfidenceWeight float64
}

// DefaultConfig returns the default finder configuration
func DefaultConfig() Config {
	return Config{
		VectorWeight:     0.6,
		TopicWeight:      0.3,
		QuestionWeight:   0.1,
		MaxScanSize:      1000,
		IndexTimeout:     5 * time.Second,
		RecencyHalfLife:  30 * 24 * time.Hour,
		ConfidenceWeight: 0.1,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	for _, w := range []struct {
		name  string
		value float64
	}{
		{"vector_weight", c.VectorWeight},
		{"topic_weight", c.TopicWeight},
		{"question_weight", c.QuestionWeight},
		{"confidence_weight", c.ConfidenceWeight},
	} {
		if w.value < 0.0 || w.value > 1.0 {
			return fmt.Errorf("%s must be between 0.0 and 1.0 (got %.2f)", w.name, w.value)
		}
	}
	sum := c.VectorWeight + c.TopicWeight + c.QuestionWeight
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("vector/topic/question weights must sum to 1.0 (got %.4f)", sum)
	}
	if c.MaxScanSize <= 0 {
		return fmt.Errorf("max_scan_size must be positive (got %d)", c.MaxScanSize)
	}
	if c.IndexTimeout <= 0 {
		return fmt.Errorf("index_timeout must be positive (got %v)", c.IndexTimeout)
	}
	if c.RecencyHalfLife <= 0 {
		return fmt.Errorf("recency_half_life must be positive (got %v)", c.RecencyHalfLife)
	}
	return nil
}

// FindResult is the outcome of one similarity query. Degradations are
// surfaced as flags rather than hidden, because silent degradation defeats
// later debugging of why the engine seemed to under-merge.
type FindResult struct {
	// Matches holds candidates at or above the threshold, best first under
	// the total match order
	Matches []types.SimilarityMatch

	// Degraded is true when the vector index was unavailable and the
	// fallback scorer produced the scores
	Degraded bool

	// Truncated is true when the fallback scan hit MaxScanSize before
	// covering the corpus
	Truncated bool

	// Scanned is the number of documents actually compared
	Scanned int
}

// Finder discovers documents similar or related to a candidate
type Finder struct {
	store  storage.Store
	index  similarity.Index
	scorer *similarity.Scorer
	config Config
}

// New creates a finder. The index may be nil, which pins the finder in
// degraded mode; the store must be non-nil.
func New(store storage.Store, index similarity.Index, config Config) (*Finder, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Finder{
		store:  store,
		index:  index,
		scorer: similarity.NewScorer(),
		config: config,
	}, nil
}

// FindSimilar returns documents scoring at or above threshold against the
// candidate, best first. It queries the index first; on unavailability it
// transparently falls back to a bounded scan with the fallback scorer.
func (f *Finder) FindSimilar(ctx context.Context, candidate *types.Candidate, threshold float64, limit int, exclude []string) (*FindResult, error) {
	if candidate == nil {
		return nil, types.Validation(fmt.Errorf("candidate cannot be nil"))
	}
	if err := candidate.Validate(); err != nil {
		return nil, types.Validation(fmt.Errorf("invalid candidate: %w", err))
	}
	if limit <= 0 {
		return nil, types.Validation(fmt.Errorf("limit must be positive (got %d)", limit))
	}

	excluded := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		excluded[id] = struct{}{}
	}

	queryProfile := similarity.NewProfile(candidate.Content, candidate.Topics, candidate.SourceQuestions)

	result, err := f.findViaIndex(ctx, candidate, queryProfile, threshold, limit, excluded)
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, similarity.ErrUnavailable) {
		return nil, err
	}

	// Index down or not configured: degrade to the deterministic scan
	log.Printf("[FINDER] similarity index unavailable, falling back to bounded scan: %v", err)
	return f.findViaScan(ctx, queryProfile, threshold, limit, excluded)
}

// findViaIndex runs the vector search and blends each hit's cosine score
// with topic and question overlap
func (f *Finder) findViaIndex(ctx context.Context, candidate *types.Candidate, queryProfile *similarity.Profile, threshold float64, limit int, excluded map[string]struct{}) (*FindResult, error) {
	if f.index == nil {
		return nil, similarity.ErrUnavailable
	}

	searchCtx, cancel := context.WithTimeout(ctx, f.config.IndexTimeout)
	defer cancel()

	// Over-fetch so exclusions and threshold filtering still leave enough
	hits, err := f.index.Search(searchCtx, candidate.Content, limit+len(excluded))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, similarity.Unavailable(err)
		}
		return nil, err
	}

	result := &FindResult{}
	for _, hit := range hits {
		if _, skip := excluded[hit.ID]; skip {
			continue
		}
		doc, err := f.store.Get(ctx, hit.ID)
		if errors.Is(err, storage.ErrNotFound) {
			// Index entry outlived its document; skip rather than fail
			log.Printf("[FINDER] index hit %s has no stored document, skipping", hit.ID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load index hit %s: %w", hit.ID, err)
		}
		if doc.Status == types.StatusArchived {
			continue
		}
		result.Scanned++

		docProfile := similarity.NewProfile(doc.Content, doc.Topics, doc.SourceQuestions)
		score := similarity.Clamp(
			f.config.VectorWeight*hit.Score +
				f.config.TopicWeight*f.scorer.TopicScore(queryProfile, docProfile) +
				f.config.QuestionWeight*f.scorer.QuestionScore(queryProfile, docProfile))
		if score < threshold {
			continue
		}
		result.Matches = append(result.Matches, types.SimilarityMatch{
			Document: doc,
			Score:    score,
			Basis:    []types.MatchBasis{types.BasisVector, types.BasisTopic, types.BasisQuestion},
		})
	}

	sortMatches(result.Matches)
	if len(result.Matches) > limit {
		result.Matches = result.Matches[:limit]
	}
	return result, nil
}

// findViaScan is the degraded mode: score every non-excluded document with
// the fallback scorer, bounded by MaxScanSize
func (f *Finder) findViaScan(ctx context.Context, queryProfile *similarity.Profile, threshold float64, limit int, excluded map[string]struct{}) (*FindResult, error) {
	// Fetch one past the cap so truncation is detectable
	docs, err := f.store.List(ctx, storage.DocumentFilter{Limit: f.config.MaxScanSize + 1})
	if err != nil {
		return nil, fmt.Errorf("fallback scan failed: %w", err)
	}

	result := &FindResult{Degraded: true}
	if len(docs) > f.config.MaxScanSize {
		docs = docs[:f.config.MaxScanSize]
		result.Truncated = true
	}

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, skip := excluded[doc.ID]; skip {
			continue
		}
		if doc.Status == types.StatusArchived {
			continue
		}
		result.Scanned++

		docProfile := similarity.NewProfile(doc.Content, doc.Topics, doc.SourceQuestions)
		score := f.scorer.Score(queryProfile, docProfile)
		if score < threshold {
			continue
		}
		result.Matches = append(result.Matches, types.SimilarityMatch{
			Document: doc,
			Score:    score,
			Basis:    []types.MatchBasis{types.BasisTopic, types.BasisContent, types.BasisQuestion},
		})
	}

	sortMatches(result.Matches)
	if len(result.Matches) > limit {
		result.Matches = result.Matches[:limit]
	}
	return result, nil
}

// FindByTopics is the exact-match structured filter, independent of content
// similarity. Used as a fast pre-filter and as a discovery path when content
// similarity is inconclusive.
func (f *Finder) FindByTopics(ctx context.Context, topics []string, status *types.Status, minConfidence float64, limit int) ([]*types.Document, error) {
	if len(topics) == 0 {
		return nil, types.Validation(fmt.Errorf("at least one topic is required"))
	}
	if limit <= 0 {
		return nil, types.Validation(fmt.Errorf("limit must be positive (got %d)", limit))
	}
	return f.store.List(ctx, storage.DocumentFilter{
		Topics:        topics,
		Status:        status,
		MinConfidence: minConfidence,
		Limit:         limit,
	})
}

// RankByRelevance re-scores matches with recency and stored confidence mixed
// in. It is a pure reorder: no candidate is introduced or removed, so it is
// safe to apply unconditionally after FindSimilar.
//
//	final = (1-recencyWeight-confWeight)*similarity + recencyWeight*recency + confWeight*confidence
//
// where recency decays exponentially with document age at the configured
// half-life.
func (f *Finder) RankByRelevance(matches []types.SimilarityMatch, recencyWeight float64) []types.SimilarityMatch {
	if recencyWeight < 0 {
		recencyWeight = 0
	}
	confWeight := f.config.ConfidenceWeight
	if recencyWeight+confWeight > 1 {
		recencyWeight = 1 - confWeight
	}
	simWeight := 1 - recencyWeight - confWeight

	now := time.Now()
	ranked := make([]types.SimilarityMatch, len(matches))
	copy(ranked, matches)
	for i := range ranked {
		age := now.Sub(ranked[i].Document.UpdatedAt)
		recency := math.Exp2(-age.Hours() / f.config.RecencyHalfLife.Hours())
		ranked[i].Score = similarity.Clamp(
			simWeight*ranked[i].Score + recencyWeight*recency + confWeight*ranked[i].Document.Confidence)
	}
	sortMatches(ranked)
	return ranked
}

// GetRelated finds documents related to the one with the given id by seeding
// a similarity search from its own content. Results are deduplicated by id
// and never include the seed document.
func (f *Finder) GetRelated(ctx context.Context, id string, limit int) ([]*types.Document, error) {
	if limit <= 0 {
		return nil, types.Validation(fmt.Errorf("limit must be positive (got %d)", limit))
	}
	doc, err := f.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	seed := &types.Candidate{
		Content:         doc.Content,
		Topics:          doc.Topics,
		SourceQuestions: doc.SourceQuestions,
		Confidence:      doc.Confidence,
	}
	// A low floor: related is a looser bar than duplicate
	result, err := f.FindSimilar(ctx, seed, 0.1, limit, []string{id})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(result.Matches))
	var related []*types.Document
	for _, m := range result.Matches {
		if _, dup := seen[m.Document.ID]; dup {
			continue
		}
		seen[m.Document.ID] = struct{}{}
		related = append(related, m.Document)
	}
	return related, nil
}

// sortMatches orders matches by the total match order from types
func sortMatches(matches []types.SimilarityMatch) {
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Less(&matches[j])
	})
}
