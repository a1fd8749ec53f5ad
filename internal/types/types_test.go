package types

import (
	"testing"
	"time"
)

func TestCandidateValidation(t *testing.T) {
	tests := []struct {
		name        string
		candidate   Candidate
		expectError bool
	}{
		{
			name:      "content only",
			candidate: Candidate{Content: "X causes Y", Confidence: 0.5},
		},
		{
			name:      "topics only",
			candidate: Candidate{Topics: []string{"biology"}, Confidence: 0.5},
		},
		{
			name:      "questions only",
			candidate: Candidate{SourceQuestions: []string{"does X cause Y?"}, Confidence: 0.5},
		},
		{
			name:        "completely empty",
			candidate:   Candidate{Confidence: 0.5},
			expectError: true,
		},
		{
			name:        "whitespace content is still empty",
			candidate:   Candidate{Content: "   \n\t  ", Confidence: 0.5},
			expectError: true,
		},
		{
			name:        "confidence above bounds",
			candidate:   Candidate{Content: "X", Confidence: 1.5},
			expectError: true,
		},
		{
			name:        "confidence below bounds",
			candidate:   Candidate{Content: "X", Confidence: -0.1},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.candidate.Validate()
			if tt.expectError && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestDeduplicationResultValidation(t *testing.T) {
	doc := &Document{ID: "doc-1", Status: StatusActive, Version: 1}

	tests := []struct {
		name        string
		result      DeduplicationResult
		expectError bool
	}{
		{
			name:   "valid create",
			result: DeduplicationResult{Action: ActionCreate, Confidence: 1.0},
		},
		{
			name:   "valid update",
			result: DeduplicationResult{Action: ActionUpdate, TargetDocument: doc, Confidence: 0.9},
		},
		{
			name:   "valid merge",
			result: DeduplicationResult{Action: ActionMerge, TargetDocument: doc, Confidence: 0.75},
		},
		{
			name:        "create with target is a contract violation",
			result:      DeduplicationResult{Action: ActionCreate, TargetDocument: doc, Confidence: 1.0},
			expectError: true,
		},
		{
			name:        "update without target is a contract violation",
			result:      DeduplicationResult{Action: ActionUpdate, Confidence: 0.9},
			expectError: true,
		},
		{
			name:        "merge without target is a contract violation",
			result:      DeduplicationResult{Action: ActionMerge, Confidence: 0.75},
			expectError: true,
		},
		{
			name:        "invalid action",
			result:      DeduplicationResult{Action: "upsert", Confidence: 0.5},
			expectError: true,
		},
		{
			name:        "confidence out of bounds",
			result:      DeduplicationResult{Action: ActionCreate, Confidence: 1.2},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.result.Validate()
			if tt.expectError && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestSimilarityMatchTotalOrder(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	doc := func(id string, conf float64, updated time.Time) *Document {
		return &Document{ID: id, Confidence: conf, Status: StatusActive, Version: 1, UpdatedAt: updated}
	}

	tests := []struct {
		name string
		a, b SimilarityMatch
		want bool // a sorts before b
	}{
		{
			name: "higher score first",
			a:    SimilarityMatch{Document: doc("b", 0.1, base), Score: 0.9},
			b:    SimilarityMatch{Document: doc("a", 0.9, base), Score: 0.8},
			want: true,
		},
		{
			name: "score tie broken by confidence",
			a:    SimilarityMatch{Document: doc("b", 0.9, base), Score: 0.8},
			b:    SimilarityMatch{Document: doc("a", 0.5, base), Score: 0.8},
			want: true,
		},
		{
			name: "confidence tie broken by recency",
			a:    SimilarityMatch{Document: doc("b", 0.5, base.Add(time.Hour)), Score: 0.8},
			b:    SimilarityMatch{Document: doc("a", 0.5, base), Score: 0.8},
			want: true,
		},
		{
			name: "full tie broken by smaller id",
			a:    SimilarityMatch{Document: doc("a", 0.5, base), Score: 0.8},
			b:    SimilarityMatch{Document: doc("b", 0.5, base), Score: 0.8},
			want: true,
		},
		{
			name: "identical documents do not sort before themselves",
			a:    SimilarityMatch{Document: doc("a", 0.5, base), Score: 0.8},
			b:    SimilarityMatch{Document: doc("a", 0.5, base), Score: 0.8},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Less(&tt.b); got != tt.want {
				t.Errorf("Less() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDocumentClone(t *testing.T) {
	doc := &Document{
		ID:         "doc-1",
		Content:    "body",
		Topics:     []string{"biology"},
		Confidence: 0.7,
		Status:     StatusActive,
		Version:    3,
	}
	clone := doc.Clone()
	clone.Topics[0] = "chemistry"
	clone.Version = 4

	if doc.Topics[0] != "biology" {
		t.Error("mutating clone topics leaked into the original")
	}
	if doc.Version != 3 {
		t.Error("mutating clone version leaked into the original")
	}
}

func TestDocumentHasTopic(t *testing.T) {
	doc := &Document{Topics: []string{"Marine Biology", "ecology"}}
	if !doc.HasTopic("marine biology") {
		t.Error("topic match should be case-insensitive")
	}
	if doc.HasTopic("physics") {
		t.Error("unexpected topic match")
	}
}
