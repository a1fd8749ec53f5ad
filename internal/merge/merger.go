// Package merge implements the document merger: reconciling new content into
// an existing document without losing information. Conflicts are detected and
// reported, never silently resolved away; the only strategy that can discard
// content is replace, and only the caller may choose it.
package merge

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/scribeworks/scribe/internal/types"
)

// Config holds tuning for the merger
type Config struct {
	// ConfidenceConflictDelta is how far apart old and new confidence must
	// be before the difference is flagged as a conflict. Default: 0.2
	ConfidenceConflictDelta float64

	// ContentOverlapThreshold is the sentence token-Jaccard at or above
	// which two differing sentences in the same section are a content
	// conflict. Default: 0.5
	ContentOverlapThreshold float64
}

// DefaultConfig returns the default merger configuration
func DefaultConfig() Config {
	return Config{
		ConfidenceConflictDelta: 0.2,
		ContentOverlapThreshold: 0.5,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.ConfidenceConflictDelta < 0.0 || c.ConfidenceConflictDelta > 1.0 {
		return fmt.Errorf("confidence_conflict_delta must be between 0.0 and 1.0 (got %.2f)", c.ConfidenceConflictDelta)
	}
	if c.ContentOverlapThreshold <= 0.0 || c.ContentOverlapThreshold > 1.0 {
		return fmt.Errorf("content_overlap_threshold must be in (0.0, 1.0] (got %.2f)", c.ContentOverlapThreshold)
	}
	return nil
}

// Request describes one merge operation
type Request struct {
	// Target is the stored document receiving the new content
	Target *types.Document

	// Candidate carries the new content and metadata
	Candidate *types.Candidate

	// Action is the gate's decision, update or merge. Update implies the
	// stronger default strategy (integrate); merge defaults to append.
	Action types.Action

	// Strategy overrides the default when set. Replace is only reachable
	// through this field.
	Strategy types.MergeStrategy
}

// Merger reconciles new content into existing documents
type Merger struct {
	config Config
}

// New creates a merger
func New(config Config) (*Merger, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Merger{config: config}, nil
}

// Merge produces the merged document and a report of every conflict found.
// The returned document has Version = target.Version + 1; nothing is written
// to any store. The merge is pure computation on copies, which is what makes
// the store write a safe single commit point.
func (m *Merger) Merge(ctx context.Context, req Request) (*types.MergeReport, error) {
	if err := m.validateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &types.MergeReport{}

	// Parse both sides. Failure on either degrades the strategy to append;
	// the parse fallback is observable, not an error.
	oldSections, oldErr := parseSections(req.Target.Content)
	newSections, newErr := parseSections(req.Candidate.Content)
	parseFailed := oldErr != nil || newErr != nil
	if parseFailed {
		log.Printf("[MERGE] structural parse failed for %s, degrading to append (old: %v, new: %v)",
			req.Target.ID, oldErr, newErr)
		report.ParseFallback = true
	}

	// Metadata and confidence conflicts are independent of content structure
	report.Conflicts = append(report.Conflicts, m.detectMetadataConflict(req.Target, req.Candidate)...)
	report.Conflicts = append(report.Conflicts, m.detectConfidenceConflict(req.Target, req.Candidate)...)

	var structural []types.MergeConflict
	if !parseFailed {
		structural = detectStructuralConflicts(oldSections, newSections)
		report.Conflicts = append(report.Conflicts, structural...)
		report.Conflicts = append(report.Conflicts, m.detectContentConflicts(oldSections, newSections)...)
	}

	strategy := m.chooseStrategy(req, parseFailed, len(structural) > 0)
	report.StrategyUsed = strategy

	merged := req.Target.Clone()
	merged.Version = req.Target.Version + 1
	merged.UpdatedAt = time.Now().UTC()

	switch strategy {
	case types.StrategyReplace:
		merged.Content = req.Candidate.Content
		if len(req.Candidate.Topics) > 0 {
			merged.Topics = append([]string(nil), req.Candidate.Topics...)
		}
		merged.Confidence = req.Candidate.Confidence
		merged.SourceQuestions = unionStrings(merged.SourceQuestions, req.Candidate.SourceQuestions)
	case types.StrategyIntegrate:
		merged.Content = integrateContent(oldSections, newSections, m.config.ContentOverlapThreshold)
		merged.Topics = unionStrings(req.Target.Topics, req.Candidate.Topics)
		merged.Confidence = maxConfidence(req.Target.Confidence, req.Candidate.Confidence)
		merged.SourceQuestions = unionStrings(merged.SourceQuestions, req.Candidate.SourceQuestions)
	default: // append
		merged.Content = appendContent(req.Target.Content, req.Candidate.Content, merged.UpdatedAt)
		merged.Topics = unionStrings(req.Target.Topics, req.Candidate.Topics)
		merged.Confidence = maxConfidence(req.Target.Confidence, req.Candidate.Confidence)
		merged.SourceQuestions = unionStrings(merged.SourceQuestions, req.Candidate.SourceQuestions)
	}

	report.MergedDocument = merged
	if err := report.Validate(); err != nil {
		return nil, fmt.Errorf("merger produced invalid report: %w", err)
	}
	return report, nil
}

// validateRequest checks the merge request contract
func (m *Merger) validateRequest(req Request) error {
	if req.Target == nil {
		return types.Validation(fmt.Errorf("target document cannot be nil"))
	}
	if err := req.Target.Validate(); err != nil {
		return types.Validation(fmt.Errorf("invalid target document: %w", err))
	}
	if req.Candidate == nil {
		return types.Validation(fmt.Errorf("candidate cannot be nil"))
	}
	if err := req.Candidate.Validate(); err != nil {
		return types.Validation(fmt.Errorf("invalid candidate: %w", err))
	}
	if req.Action != types.ActionUpdate && req.Action != types.ActionMerge {
		return types.Validation(fmt.Errorf("merge action must be update or merge (got %s)", req.Action))
	}
	if req.Strategy != "" && !req.Strategy.IsValid() {
		return types.Validation(fmt.Errorf("invalid strategy: %s", req.Strategy))
	}
	return nil
}

// chooseStrategy resolves the effective strategy. Replace is honored only as
// an explicit caller choice. Integrate degrades to append when structure
// failed to parse or does not align.
func (m *Merger) chooseStrategy(req Request, parseFailed, hasStructural bool) types.MergeStrategy {
	strategy := req.Strategy
	if strategy == "" {
		if req.Action == types.ActionUpdate {
			strategy = types.StrategyIntegrate
		} else {
			strategy = types.StrategyAppend
		}
	}
	if strategy == types.StrategyReplace {
		return strategy
	}
	if parseFailed || (strategy == types.StrategyIntegrate && hasStructural) {
		return types.StrategyAppend
	}
	return strategy
}

// detectMetadataConflict flags topic sets that differ without one containing
// the other. Resolution is always union: topics never shrink automatically.
func (m *Merger) detectMetadataConflict(target *types.Document, candidate *types.Candidate) []types.MergeConflict {
	oldSet := lowerSet(target.Topics)
	newSet := lowerSet(candidate.Topics)
	if len(newSet) == 0 || isSubset(newSet, oldSet) || isSubset(oldSet, newSet) {
		return nil
	}
	return []types.MergeConflict{{
		Kind:       types.ConflictMetadata,
		Existing:   strings.Join(target.Topics, ", "),
		Incoming:   strings.Join(candidate.Topics, ", "),
		Resolution: "topic sets diverge; resolved by union",
	}}
}

// detectConfidenceConflict flags a confidence swing beyond the configured
// delta. Resolution is max(old, new): accrued evidence should not lower
// stated confidence without an explicit override.
func (m *Merger) detectConfidenceConflict(target *types.Document, candidate *types.Candidate) []types.MergeConflict {
	delta := candidate.Confidence - target.Confidence
	if delta < 0 {
		delta = -delta
	}
	if delta <= m.config.ConfidenceConflictDelta {
		return nil
	}
	return []types.MergeConflict{{
		Kind:       types.ConflictConfidence,
		Existing:   fmt.Sprintf("%.2f", target.Confidence),
		Incoming:   fmt.Sprintf("%.2f", candidate.Confidence),
		Resolution: "confidence shifted materially; resolved by max(old, new)",
	}}
}

// detectStructuralConflicts flags new titled sections that have no matching
// section in the existing layout
func detectStructuralConflicts(oldSections, newSections []section) []types.MergeConflict {
	oldTitles := make(map[string]struct{}, len(oldSections))
	for _, s := range oldSections {
		if s.Title != "" {
			oldTitles[s.Title] = struct{}{}
		}
	}

	var conflicts []types.MergeConflict
	for _, s := range newSections {
		if s.Title == "" {
			continue
		}
		if _, ok := oldTitles[s.Title]; !ok {
			conflicts = append(conflicts, types.MergeConflict{
				Kind:       types.ConflictStructural,
				Section:    s.Title,
				Existing:   strings.Join(titlesOf(oldSections), ", "),
				Incoming:   s.Title,
				Resolution: "section layout does not align; new content appended as its own section",
			})
		}
	}
	return conflicts
}

// detectContentConflicts flags sentence pairs in same-titled sections that
// overlap heavily yet say different things. They are reported and kept in
// both forms; never auto-resolved.
func (m *Merger) detectContentConflicts(oldSections, newSections []section) []types.MergeConflict {
	var conflicts []types.MergeConflict
	for _, ns := range newSections {
		os, ok := findSection(oldSections, ns.Title)
		if !ok {
			continue
		}
		oldSentences := splitSentences(os.Body)
		for _, newSentence := range splitSentences(ns.Body) {
			for _, oldSentence := range oldSentences {
				if normalizeSentence(newSentence) == normalizeSentence(oldSentence) {
					continue
				}
				if sentenceOverlap(newSentence, oldSentence) >= m.config.ContentOverlapThreshold {
					conflicts = append(conflicts, types.MergeConflict{
						Kind:       types.ConflictContent,
						Section:    ns.Title,
						Existing:   oldSentence,
						Incoming:   newSentence,
						Resolution: "overlapping statements differ; both kept and annotated",
					})
				}
			}
		}
	}
	return conflicts
}

// appendContent adds new content as a trailing dated section. Zero risk of
// data loss.
func appendContent(oldContent, newContent string, at time.Time) string {
	heading := fmt.Sprintf("## Addendum (%s)", at.Format("2006-01-02"))
	old := strings.TrimRight(oldContent, "\n")
	if old == "" {
		return heading + "\n\n" + newContent
	}
	return old + "\n\n" + heading + "\n\n" + newContent
}

// integrateContent interleaves new sentences into matching existing sections.
// Every sentence from both sides survives: existing bodies are kept
// wholesale, new sentences are appended unless an identical normalized form
// is already present, and conflicting sentences are annotated rather than
// dropped.
func integrateContent(oldSections, newSections []section, overlapThreshold float64) string {
	consumed := make(map[int]bool, len(newSections))

	var out []string
	for _, os := range oldSections {
		body := os.Body
		for i, ns := range newSections {
			if ns.Title != os.Title {
				continue
			}
			consumed[i] = true
			body = integrateBody(body, ns.Body, overlapThreshold)
		}
		out = append(out, renderSection(os.Heading, body))
	}

	// Untitled new content with no preamble counterpart, or sections that
	// found no match, still have to land somewhere
	for i, ns := range newSections {
		if consumed[i] {
			continue
		}
		out = append(out, renderSection(ns.Heading, ns.Body))
	}
	return strings.Join(out, "\n\n")
}

// integrateBody appends the new body's sentences to the old body, skipping
// exact restatements and annotating conflicting ones
func integrateBody(oldBody, newBody string, overlapThreshold float64) string {
	oldSentences := splitSentences(oldBody)
	existing := make(map[string]struct{}, len(oldSentences))
	for _, s := range oldSentences {
		existing[normalizeSentence(s)] = struct{}{}
	}

	var additions []string
	for _, sentence := range splitSentences(newBody) {
		if _, dup := existing[normalizeSentence(sentence)]; dup {
			continue
		}
		annotated := sentence
		for _, old := range oldSentences {
			if normalizeSentence(old) != normalizeSentence(sentence) &&
				sentenceOverlap(old, sentence) >= overlapThreshold {
				annotated = fmt.Sprintf("%s [conflicts with: %q]", sentence, old)
				break
			}
		}
		additions = append(additions, annotated)
		existing[normalizeSentence(sentence)] = struct{}{}
	}

	if len(additions) == 0 {
		return oldBody
	}
	if strings.TrimSpace(oldBody) == "" {
		return strings.Join(additions, " ")
	}
	return strings.TrimRight(oldBody, "\n") + "\n" + strings.Join(additions, " ")
}

// renderSection rebuilds a section's markdown, re-emitting the original
// heading line untouched
func renderSection(heading, body string) string {
	if heading == "" {
		return body
	}
	return heading + "\n\n" + body
}

// findSection locates a section by normalized title
func findSection(sections []section, title string) (section, bool) {
	for _, s := range sections {
		if s.Title == title {
			return s, true
		}
	}
	return section{}, false
}

// titlesOf lists the titled sections
func titlesOf(sections []section) []string {
	var titles []string
	for _, s := range sections {
		if s.Title != "" {
			titles = append(titles, s.Title)
		}
	}
	return titles
}

// lowerSet normalizes a string slice to a lowercase set
func lowerSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

// isSubset reports whether every element of a is in b
func isSubset(a, b map[string]struct{}) bool {
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// unionStrings merges two string slices preserving first-seen order and
// case-insensitive uniqueness
func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, v := range append(append([]string(nil), a...), b...) {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

// maxConfidence returns the larger confidence, clamped to [0,1]
func maxConfidence(a, b float64) float64 {
	c := a
	if b > c {
		c = b
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
