package types

import (
	"fmt"
	"strings"
	"time"
)

// Document represents a stored research write-up. Documents are owned by the
// versioned store; the engine reads and writes them only through that store's
// API. The Version field increases by exactly one on every committed write.
type Document struct {
	ID              string    `json:"id"`
	Content         string    `json:"content"`
	Topics          []string  `json:"topics"`
	Confidence      float64   `json:"confidence"`
	Status          Status    `json:"status"`
	SourceQuestions []string  `json:"source_questions,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Version         int       `json:"version"`
}

// Validate checks if the document has valid field values
func (d *Document) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("id is required")
	}
	if d.Confidence < 0.0 || d.Confidence > 1.0 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0 (got %.2f)", d.Confidence)
	}
	if !d.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", d.Status)
	}
	if d.Version < 1 {
		return fmt.Errorf("version must be positive (got %d)", d.Version)
	}
	return nil
}

// HasTopic reports whether the document carries the given topic tag.
// Comparison is case-insensitive.
func (d *Document) HasTopic(topic string) bool {
	for _, t := range d.Topics {
		if strings.EqualFold(t, topic) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the document. Merge and engine code operate on
// copies; the store's Put is the single commit point.
func (d *Document) Clone() *Document {
	clone := *d
	clone.Topics = append([]string(nil), d.Topics...)
	clone.SourceQuestions = append([]string(nil), d.SourceQuestions...)
	return &clone
}

// Status represents the lifecycle state of a document
type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// IsValid checks if the status value is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusArchived:
		return true
	}
	return false
}

// Candidate is the incoming, not-yet-persisted content plus metadata being
// evaluated for deduplication. It is the sole input to the finder and gate.
type Candidate struct {
	Content         string   `json:"content"`
	Topics          []string `json:"topics,omitempty"`
	SourceQuestions []string `json:"source_questions,omitempty"`
	Confidence      float64  `json:"confidence"`
}

// Validate checks if the candidate carries enough signal to be compared.
// An empty candidate (no content, no topics, no questions) is a caller bug:
// the gate depends on never being asked to compare nothing.
func (c *Candidate) Validate() error {
	if strings.TrimSpace(c.Content) == "" && len(c.Topics) == 0 && len(c.SourceQuestions) == 0 {
		return fmt.Errorf("candidate is empty: content, topics, and source questions are all missing")
	}
	if c.Confidence < 0.0 || c.Confidence > 1.0 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0 (got %.2f)", c.Confidence)
	}
	return nil
}

// MatchBasis names which signal(s) produced a similarity score
type MatchBasis string

const (
	BasisVector   MatchBasis = "vector"   // embedding cosine similarity
	BasisTopic    MatchBasis = "topic"    // topic-set overlap
	BasisContent  MatchBasis = "content"  // token-frequency overlap
	BasisQuestion MatchBasis = "question" // source-question overlap
)

// SimilarityMatch pairs a stored document with the score it earned against a
// candidate. Matches are ephemeral and never persisted.
type SimilarityMatch struct {
	Document *Document    `json:"document"`
	Score    float64      `json:"score"`
	Basis    []MatchBasis `json:"basis"`
}

// Less reports whether m sorts before other under the total match order:
// higher score first, ties broken by higher confidence, then more recent
// UpdatedAt, then lexicographically smaller id. The order is total, which
// makes ranked output deterministic.
func (m *SimilarityMatch) Less(other *SimilarityMatch) bool {
	if m.Score != other.Score {
		return m.Score > other.Score
	}
	if m.Document.Confidence != other.Document.Confidence {
		return m.Document.Confidence > other.Document.Confidence
	}
	if !m.Document.UpdatedAt.Equal(other.Document.UpdatedAt) {
		return m.Document.UpdatedAt.After(other.Document.UpdatedAt)
	}
	return m.Document.ID < other.Document.ID
}

// Action is the gate's classification of an incoming candidate
type Action string

const (
	ActionCreate Action = "create" // genuinely new topic, file a new document
	ActionUpdate Action = "update" // same topic, integrate into the target
	ActionMerge  Action = "merge"  // related topic, merge into the target
)

// IsValid checks if the action value is valid
func (a Action) IsValid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionMerge:
		return true
	}
	return false
}

// DeduplicationResult is the gate's decision record for one candidate
type DeduplicationResult struct {
	// Action is the classification: create, update, or merge
	Action Action `json:"action"`

	// TargetDocument is the document to update or merge into.
	// Required when Action != create, forbidden when Action == create.
	TargetDocument *Document `json:"target_document,omitempty"`

	// Matches holds every candidate considered, best first, not just the winner
	Matches []SimilarityMatch `json:"matches"`

	// Confidence is the gate's confidence in this decision (0.0-1.0)
	Confidence float64 `json:"confidence"`

	// Reason explains the decision in human-readable form
	Reason string `json:"reason"`

	// Recommendation suggests what the caller should do next
	Recommendation string `json:"recommendation,omitempty"`

	// Degraded is true when the decision was made without the vector index
	Degraded bool `json:"degraded,omitempty"`

	// Truncated is true when the fallback scan hit its document cap before
	// seeing the whole corpus
	Truncated bool `json:"truncated,omitempty"`
}

// Validate checks the decision record's internal invariants. A target on a
// create, or a missing target on an update/merge, is a programming error and
// must never be coerced into a different action.
func (r *DeduplicationResult) Validate() error {
	if !r.Action.IsValid() {
		return fmt.Errorf("invalid action: %s", r.Action)
	}
	if r.Confidence < 0.0 || r.Confidence > 1.0 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0 (got %.2f)", r.Confidence)
	}
	if r.Action == ActionCreate && r.TargetDocument != nil {
		return fmt.Errorf("target_document must not be set when action is create")
	}
	if r.Action != ActionCreate && r.TargetDocument == nil {
		return fmt.Errorf("target_document must be set when action is %s", r.Action)
	}
	return nil
}
