// Package gate implements the deduplication decision: for each incoming
// candidate, classify the write as create, update, or merge. The gate is a
// pure function of the candidate and the finder's ranked matches; it never
// mutates stored documents. Mutation is the merger's exclusive job.
package gate

import (
	"context"
	"fmt"
	"log"

	"github.com/scribeworks/scribe/internal/finder"
	"github.com/scribeworks/scribe/internal/types"
)

// Config holds the gate's decision thresholds. Thresholds are configuration,
// not constants: a deployment may run strict (fewer merges) or aggressive
// (more merges) without recompiling.
type Config struct {
	// SimilarityThreshold is the score at or above which the candidate is
	// the same topic as the best match (update). Default: 0.85
	SimilarityThreshold float64

	// MergeThreshold is the score at or above which the candidate is a
	// related topic worth merging. Scores below it create a new document.
	// Default: 0.70
	MergeThreshold float64

	// MaxMatches caps how many candidates the finder is asked for.
	// Default: 10
	MaxMatches int
}

// DefaultConfig returns the default gate configuration
//
// The defaults are conservative: false negatives (an extra document) are
// cheap, false positives (a corrupted merge of unrelated topics) are not.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.85,
		MergeThreshold:      0.70,
		MaxMatches:          10,
	}
}

// StrictConfig raises both thresholds: fewer updates and merges, more
// standalone documents
func StrictConfig() Config {
	cfg := DefaultConfig()
	cfg.SimilarityThreshold = 0.92
	cfg.MergeThreshold = 0.80
	return cfg
}

// AggressiveConfig lowers both thresholds: more consolidation, higher risk
// of merging distinct topics
func AggressiveConfig() Config {
	cfg := DefaultConfig()
	cfg.SimilarityThreshold = 0.75
	cfg.MergeThreshold = 0.60
	return cfg
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.SimilarityThreshold < 0.0 || c.SimilarityThreshold > 1.0 {
		return fmt.Errorf("similarity_threshold must be between 0.0 and 1.0 (got %.2f)", c.SimilarityThreshold)
	}
	if c.MergeThreshold < 0.0 || c.MergeThreshold > 1.0 {
		return fmt.Errorf("merge_threshold must be between 0.0 and 1.0 (got %.2f)", c.MergeThreshold)
	}
	if c.MergeThreshold > c.SimilarityThreshold {
		return fmt.Errorf("merge_threshold (%.2f) cannot exceed similarity_threshold (%.2f)",
			c.MergeThreshold, c.SimilarityThreshold)
	}
	if c.MaxMatches <= 0 {
		return fmt.Errorf("max_matches must be positive (got %d)", c.MaxMatches)
	}
	if c.MaxMatches > 100 {
		return fmt.Errorf("max_matches too large (got %d, max 100)", c.MaxMatches)
	}
	return nil
}

// Searcher is the discovery dependency the gate needs: ranked similarity
// matches for a candidate. *finder.Finder satisfies it.
type Searcher interface {
	FindSimilar(ctx context.Context, candidate *types.Candidate, threshold float64, limit int, exclude []string) (*finder.FindResult, error)
}

// Compile-time check that the real finder satisfies Searcher
var _ Searcher = (*finder.Finder)(nil)

// Gate classifies incoming candidates as create, update, or merge
type Gate struct {
	finder Searcher
	config Config
}

// New creates a gate over the given searcher
func New(f Searcher, config Config) (*Gate, error) {
	if f == nil {
		return nil, fmt.Errorf("finder cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Gate{finder: f, config: config}, nil
}

// Decide runs similarity discovery for the candidate and classifies the
// write. It returns a fully-populated decision or an error, never a partial
// decision, and it never touches the store.
func (g *Gate) Decide(ctx context.Context, candidate *types.Candidate) (*types.DeduplicationResult, error) {
	if candidate == nil {
		return nil, types.Validation(fmt.Errorf("candidate cannot be nil"))
	}
	if err := candidate.Validate(); err != nil {
		return nil, types.Validation(fmt.Errorf("invalid candidate: %w", err))
	}

	// Threshold 0: the gate applies its own thresholds so that sub-threshold
	// runner-up scores stay visible in the decision record
	found, err := g.finder.FindSimilar(ctx, candidate, 0.0, g.config.MaxMatches, nil)
	if err != nil {
		return nil, fmt.Errorf("similarity discovery failed: %w", err)
	}
	if found.Truncated {
		log.Printf("[GATE] fallback scan truncated at %d documents; decision made on incomplete corpus", found.Scanned)
	}

	result := g.classify(found.Matches)
	result.Degraded = found.Degraded
	result.Truncated = found.Truncated

	if err := result.Validate(); err != nil {
		// A malformed decision is a bug in the gate itself, not in the input
		return nil, fmt.Errorf("gate produced invalid decision: %w", err)
	}
	return result, nil
}

// classify applies the threshold rule to the ranked matches. The finder's
// sort order guarantees matches[0] is the authoritative best match.
// Both boundaries are inclusive.
func (g *Gate) classify(matches []types.SimilarityMatch) *types.DeduplicationResult {
	if len(matches) == 0 {
		return &types.DeduplicationResult{
			Action:         types.ActionCreate,
			Matches:        matches,
			Confidence:     1.0,
			Reason:         "no similar documents found",
			Recommendation: "create a new document",
		}
	}

	best := matches[0]
	switch {
	case best.Score >= g.config.SimilarityThreshold:
		return &types.DeduplicationResult{
			Action:         types.ActionUpdate,
			TargetDocument: best.Document,
			Matches:        matches,
			Confidence:     best.Score,
			Reason: fmt.Sprintf("best match %s scored %.3f, at or above similarity threshold %.2f",
				best.Document.ID, best.Score, g.config.SimilarityThreshold),
			Recommendation: fmt.Sprintf("integrate new content into %s", best.Document.ID),
		}
	case best.Score >= g.config.MergeThreshold:
		return &types.DeduplicationResult{
			Action:         types.ActionMerge,
			TargetDocument: best.Document,
			Matches:        matches,
			Confidence:     best.Score,
			Reason: fmt.Sprintf("best match %s scored %.3f, between merge threshold %.2f and similarity threshold %.2f",
				best.Document.ID, best.Score, g.config.MergeThreshold, g.config.SimilarityThreshold),
			Recommendation: fmt.Sprintf("merge related content into %s", best.Document.ID),
		}
	default:
		// CREATE confidence is nominally high; the runner-up score is
		// surfaced for observability, not authority
		return &types.DeduplicationResult{
			Action:     types.ActionCreate,
			Matches:    matches,
			Confidence: 1.0 - best.Score,
			Reason: fmt.Sprintf("best match %s scored %.3f, below merge threshold %.2f",
				best.Document.ID, best.Score, g.config.MergeThreshold),
			Recommendation: "create a new document",
		}
	}
}
