package types

import "fmt"

// MergeStrategy is the algorithm used to combine new content into an existing
// document
type MergeStrategy string

const (
	// StrategyAppend adds the new content as a trailing section. It cannot
	// lose information and is the fallback whenever structure is unclear.
	StrategyAppend MergeStrategy = "append"

	// StrategyIntegrate interleaves new content into matching existing
	// sections by section-title match. Conflicting sentences are kept in
	// both forms and annotated, never deleted.
	StrategyIntegrate MergeStrategy = "integrate"

	// StrategyReplace discards the current content in favor of the new.
	// It is only valid when explicitly requested by the caller; the engine
	// never chooses it on its own. The previous version stays retrievable
	// through the store's history.
	StrategyReplace MergeStrategy = "replace"
)

// IsValid checks if the strategy value is valid
func (s MergeStrategy) IsValid() bool {
	switch s {
	case StrategyAppend, StrategyIntegrate, StrategyReplace:
		return true
	}
	return false
}

// ConflictKind tags the variant of a merge conflict
type ConflictKind string

const (
	// ConflictMetadata: topic sets differ without one containing the other.
	// Auto-resolved by union; topics never shrink automatically.
	ConflictMetadata ConflictKind = "metadata"

	// ConflictContent: overlapping prose in the same logical section says
	// different things. Never auto-resolved; both forms survive the merge.
	ConflictContent ConflictKind = "content"

	// ConflictStructural: the new content's section layout does not align
	// with the existing sections.
	ConflictStructural ConflictKind = "structural"

	// ConflictConfidence: the new evidence moves overall confidence by more
	// than the configured delta. Resolved by max(old, new) by default.
	ConflictConfidence ConflictKind = "confidence"
)

// IsValid checks if the conflict kind is valid
func (k ConflictKind) IsValid() bool {
	switch k {
	case ConflictMetadata, ConflictContent, ConflictStructural, ConflictConfidence:
		return true
	}
	return false
}

// MergeConflict records one disagreement found while reconciling new content
// into an existing document. Conflicts are reported, not silently dropped;
// each carries both conflicting fragments so it can be rendered for a human
// or a downstream consumer.
type MergeConflict struct {
	Kind ConflictKind `json:"kind"`

	// Section names the logical section the conflict occurred in, when the
	// kind is content or structural
	Section string `json:"section,omitempty"`

	// Existing and Incoming are the two conflicting fragments. For metadata
	// conflicts they render the topic sets; for confidence conflicts the two
	// scores.
	Existing string `json:"existing"`
	Incoming string `json:"incoming"`

	// Resolution describes how the conflict was handled (union, kept-both,
	// appended, max-confidence)
	Resolution string `json:"resolution"`
}

// String renders the conflict for logs and CLI output
func (c MergeConflict) String() string {
	if c.Section != "" {
		return fmt.Sprintf("%s conflict in %q: %s", c.Kind, c.Section, c.Resolution)
	}
	return fmt.Sprintf("%s conflict: %s", c.Kind, c.Resolution)
}

// MergeReport is the merger's output: the merged document, the strategy that
// produced it, and every conflict detected along the way.
type MergeReport struct {
	StrategyUsed   MergeStrategy   `json:"strategy_used"`
	Conflicts      []MergeConflict `json:"conflicts"`
	MergedDocument *Document       `json:"merged_document"`

	// ParseFallback is true when structural parsing failed and the merge
	// degraded to append. Losing structural cleverness is acceptable,
	// losing content is not.
	ParseFallback bool `json:"parse_fallback,omitempty"`
}

// Validate checks the report's internal invariants
func (r *MergeReport) Validate() error {
	if !r.StrategyUsed.IsValid() {
		return fmt.Errorf("invalid strategy: %s", r.StrategyUsed)
	}
	if r.MergedDocument == nil {
		return fmt.Errorf("merged_document is required")
	}
	for i, c := range r.Conflicts {
		if !c.Kind.IsValid() {
			return fmt.Errorf("conflict %d has invalid kind: %s", i, c.Kind)
		}
	}
	return nil
}
