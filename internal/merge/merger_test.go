package merge

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/scribeworks/scribe/internal/types"
)

func target(content string, topics []string, confidence float64) *types.Document {
	now := time.Now().UTC()
	return &types.Document{
		ID:         "doc-1",
		Content:    content,
		Topics:     topics,
		Confidence: confidence,
		Status:     types.StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    3,
	}
}

func newMerger(t *testing.T) *Merger {
	t.Helper()
	m, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestMergeVersionIncrement(t *testing.T) {
	m := newMerger(t)
	report, err := m.Merge(context.Background(), Request{
		Target:    target("## Findings\n\nX causes Y.", []string{"biology"}, 0.8),
		Candidate: &types.Candidate{Content: "Z modulates Y.", Confidence: 0.8},
		Action:    types.ActionMerge,
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.MergedDocument.Version != 4 {
		t.Errorf("merged version = %d, want target version + 1 = 4", report.MergedDocument.Version)
	}
	if report.MergedDocument.ID != "doc-1" {
		t.Errorf("merge must preserve the target id, got %s", report.MergedDocument.ID)
	}
}

func TestMergeStrategyDefaults(t *testing.T) {
	m := newMerger(t)
	tests := []struct {
		action types.Action
		want   types.MergeStrategy
	}{
		{types.ActionUpdate, types.StrategyIntegrate},
		{types.ActionMerge, types.StrategyAppend},
	}
	for _, tt := range tests {
		report, err := m.Merge(context.Background(), Request{
			Target:    target("## Findings\n\nX causes Y.", nil, 0.8),
			Candidate: &types.Candidate{Content: "## Findings\n\nW inhibits X.", Confidence: 0.8},
			Action:    tt.action,
		})
		if err != nil {
			t.Fatal(err)
		}
		if report.StrategyUsed != tt.want {
			t.Errorf("action %s: strategy = %s, want %s", tt.action, report.StrategyUsed, tt.want)
		}
	}
}

func TestMergeReplaceIsExplicitOnly(t *testing.T) {
	m := newMerger(t)

	// No default path reaches replace
	for _, action := range []types.Action{types.ActionUpdate, types.ActionMerge} {
		report, err := m.Merge(context.Background(), Request{
			Target:    target("old body", nil, 0.8),
			Candidate: &types.Candidate{Content: "new body", Confidence: 0.8},
			Action:    action,
		})
		if err != nil {
			t.Fatal(err)
		}
		if report.StrategyUsed == types.StrategyReplace {
			t.Errorf("action %s reached replace without an explicit request", action)
		}
	}

	// Explicit replace discards the old content
	report, err := m.Merge(context.Background(), Request{
		Target:    target("old body", []string{"old-topic"}, 0.8),
		Candidate: &types.Candidate{Content: "new body", Topics: []string{"new-topic"}, Confidence: 0.6},
		Action:    types.ActionUpdate,
		Strategy:  types.StrategyReplace,
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.StrategyUsed != types.StrategyReplace {
		t.Fatalf("explicit replace not honored, got %s", report.StrategyUsed)
	}
	if report.MergedDocument.Content != "new body" {
		t.Errorf("replace should take the candidate content verbatim, got %q", report.MergedDocument.Content)
	}
	if report.MergedDocument.Confidence != 0.6 {
		t.Errorf("replace should take the candidate confidence, got %v", report.MergedDocument.Confidence)
	}
}

func TestMergeParseFallbackOnUnclosedFence(t *testing.T) {
	m := newMerger(t)
	report, err := m.Merge(context.Background(), Request{
		Target:    target("## Code\n\n```go\nfunc main() {}\n", nil, 0.8),
		Candidate: &types.Candidate{Content: "plain new finding.", Confidence: 0.8},
		Action:    types.ActionUpdate,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !report.ParseFallback {
		t.Error("unclosed fence should set the parse fallback flag")
	}
	if report.StrategyUsed != types.StrategyAppend {
		t.Errorf("parse failure should degrade to append, got %s", report.StrategyUsed)
	}
	if !strings.Contains(report.MergedDocument.Content, "plain new finding.") {
		t.Error("candidate content missing from the degraded append")
	}
	if !strings.Contains(report.MergedDocument.Content, "func main() {}") {
		t.Error("target content lost in the degraded append")
	}
}

func TestMergeIntegrateDegradesOnStructuralConflict(t *testing.T) {
	m := newMerger(t)
	report, err := m.Merge(context.Background(), Request{
		Target:    target("## Findings\n\nX causes Y.", nil, 0.8),
		Candidate: &types.Candidate{Content: "## Methodology\n\nWe sampled 40 reefs.", Confidence: 0.8},
		Action:    types.ActionUpdate,
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.StrategyUsed != types.StrategyAppend {
		t.Errorf("unaligned sections should degrade integrate to append, got %s", report.StrategyUsed)
	}
	if !hasConflict(report.Conflicts, types.ConflictStructural) {
		t.Error("expected a structural conflict in the report")
	}
}

func TestMergeMetadataConflict(t *testing.T) {
	m := newMerger(t)
	report, err := m.Merge(context.Background(), Request{
		Target:    target("body.", []string{"biology", "ocean"}, 0.8),
		Candidate: &types.Candidate{Content: "more.", Topics: []string{"biology", "economics"}, Confidence: 0.8},
		Action:    types.ActionMerge,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !hasConflict(report.Conflicts, types.ConflictMetadata) {
		t.Error("diverging topic sets should raise a metadata conflict")
	}
	topics := report.MergedDocument.Topics
	for _, want := range []string{"biology", "ocean", "economics"} {
		if !contains(topics, want) {
			t.Errorf("union resolution lost topic %q: %v", want, topics)
		}
	}

	// A superset is an enrichment, not a conflict
	report, err = m.Merge(context.Background(), Request{
		Target:    target("body.", []string{"biology"}, 0.8),
		Candidate: &types.Candidate{Content: "more.", Topics: []string{"biology", "ocean"}, Confidence: 0.8},
		Action:    types.ActionMerge,
	})
	if err != nil {
		t.Fatal(err)
	}
	if hasConflict(report.Conflicts, types.ConflictMetadata) {
		t.Error("superset topics should not be flagged as a conflict")
	}
}

func TestMergeConfidenceConflict(t *testing.T) {
	m := newMerger(t)
	report, err := m.Merge(context.Background(), Request{
		Target:    target("body.", nil, 0.9),
		Candidate: &types.Candidate{Content: "more.", Confidence: 0.3},
		Action:    types.ActionMerge,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !hasConflict(report.Conflicts, types.ConflictConfidence) {
		t.Error("confidence swing of 0.6 should raise a confidence conflict")
	}
	if report.MergedDocument.Confidence != 0.9 {
		t.Errorf("confidence resolves to max(old, new), got %v", report.MergedDocument.Confidence)
	}

	report, err = m.Merge(context.Background(), Request{
		Target:    target("body.", nil, 0.8),
		Candidate: &types.Candidate{Content: "more.", Confidence: 0.7},
		Action:    types.ActionMerge,
	})
	if err != nil {
		t.Fatal(err)
	}
	if hasConflict(report.Conflicts, types.ConflictConfidence) {
		t.Error("swing of 0.1 is within the delta and should not be flagged")
	}
}

func TestMergeContentConflictAnnotated(t *testing.T) {
	m := newMerger(t)
	report, err := m.Merge(context.Background(), Request{
		Target:    target("## Findings\n\nThe reef recovered within two years.", nil, 0.8),
		Candidate: &types.Candidate{Content: "## Findings\n\nThe reef recovered within five years.", Confidence: 0.8},
		Action:    types.ActionUpdate,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !hasConflict(report.Conflicts, types.ConflictContent) {
		t.Error("overlapping contradictory sentences should raise a content conflict")
	}
	content := report.MergedDocument.Content
	if !strings.Contains(content, "two years") || !strings.Contains(content, "five years") {
		t.Error("both versions of the conflicting statement must survive")
	}
	if !strings.Contains(content, "[conflicts with:") {
		t.Error("conflicting addition should carry an annotation")
	}
}

// Every sentence and every heading line of both inputs must appear in the
// merged output for the non-destructive strategies.
func TestMergeNoLossProperty(t *testing.T) {
	m := newMerger(t)
	rng := rand.New(rand.NewSource(99))
	vocab := []string{"reef", "coral", "heat", "stress", "recovery", "bleaching",
		"sample", "study", "model", "estimate"}
	headings := []string{"# Key Findings", "## Methodology", "### Open Questions"}

	randomSentence := func() string {
		n := 3 + rng.Intn(5)
		words := make([]string, n)
		for i := range words {
			words[i] = vocab[rng.Intn(len(vocab))]
		}
		return strings.Join(words, " ") + "."
	}
	randomContent := func() string {
		var b strings.Builder
		for _, hi := range rng.Perm(len(headings))[:1+rng.Intn(2)] {
			b.WriteString(headings[hi])
			b.WriteString("\n\n")
			for i := 0; i < 1+rng.Intn(4); i++ {
				b.WriteString(randomSentence())
				b.WriteString(" ")
			}
			b.WriteString("\n\n")
		}
		return b.String()
	}

	for i := 0; i < 50; i++ {
		oldContent := randomContent()
		newContent := randomContent()
		for _, action := range []types.Action{types.ActionUpdate, types.ActionMerge} {
			report, err := m.Merge(context.Background(), Request{
				Target:    target(oldContent, []string{"biology"}, 0.8),
				Candidate: &types.Candidate{Content: newContent, Confidence: 0.8},
				Action:    action,
			})
			if err != nil {
				t.Fatalf("iteration %d (%s): %v", i, action, err)
			}

			merged := report.MergedDocument.Content
			for _, src := range []string{oldContent, newContent} {
				for _, s := range sourceSentences(t, src) {
					if !strings.Contains(merged, s) {
						t.Fatalf("iteration %d (%s): sentence %q lost in merge", i, action, s)
					}
				}
			}
			// Heading lines survive verbatim, case and level included
			for _, h := range headings {
				if (strings.Contains(oldContent, h) || strings.Contains(newContent, h)) &&
					!strings.Contains(merged, h) {
					t.Fatalf("iteration %d (%s): heading %q lost in merge", i, action, h)
				}
			}
		}
	}
}

func TestMergeIntegratePreservesHeadings(t *testing.T) {
	m := newMerger(t)
	report, err := m.Merge(context.Background(), Request{
		Target: target(
			"# Key Findings\n\nThe reef recovered.\n\n### Open Questions\n\nWhat drives variance?",
			nil, 0.8),
		Candidate: &types.Candidate{Content: "# Key Findings\n\nRecovery took five years.", Confidence: 0.8},
		Action:    types.ActionUpdate,
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.StrategyUsed != types.StrategyIntegrate {
		t.Fatalf("aligned sections should integrate, got %s", report.StrategyUsed)
	}
	content := report.MergedDocument.Content
	if !strings.Contains(content, "# Key Findings") {
		t.Errorf("original heading case/level lost:\n%s", content)
	}
	if !strings.Contains(content, "### Open Questions") {
		t.Errorf("untouched section's heading rewritten:\n%s", content)
	}
	if strings.Contains(content, "## key findings") {
		t.Errorf("normalized title leaked into output:\n%s", content)
	}
}

func TestMergeRequestValidation(t *testing.T) {
	m := newMerger(t)
	valid := target("body.", nil, 0.8)

	tests := []struct {
		name string
		req  Request
	}{
		{"nil target", Request{Candidate: &types.Candidate{Content: "x", Confidence: 0.5}, Action: types.ActionMerge}},
		{"nil candidate", Request{Target: valid, Action: types.ActionMerge}},
		{"create is not a merge action", Request{Target: valid, Candidate: &types.Candidate{Content: "x", Confidence: 0.5}, Action: types.ActionCreate}},
		{"unknown strategy", Request{Target: valid, Candidate: &types.Candidate{Content: "x", Confidence: 0.5}, Action: types.ActionMerge, Strategy: "overwrite"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Merge(context.Background(), tt.req); !errors.Is(err, types.ErrValidation) {
				t.Errorf("got %v, want validation error", err)
			}
		})
	}
}

func TestMergeDoesNotMutateTarget(t *testing.T) {
	m := newMerger(t)
	doc := target("original body.", []string{"biology"}, 0.8)
	_, err := m.Merge(context.Background(), Request{
		Target:    doc,
		Candidate: &types.Candidate{Content: "new material.", Topics: []string{"ocean"}, Confidence: 0.9},
		Action:    types.ActionMerge,
	})
	if err != nil {
		t.Fatal(err)
	}
	if doc.Content != "original body." || doc.Version != 3 {
		t.Error("merge mutated the target document")
	}
	if len(doc.Topics) != 1 {
		t.Errorf("merge mutated the target topics: %v", doc.Topics)
	}
}

func hasConflict(conflicts []types.MergeConflict, kind types.ConflictKind) bool {
	for _, c := range conflicts {
		if c.Kind == kind {
			return true
		}
	}
	return false
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

func sourceSentences(t *testing.T, content string) []string {
	t.Helper()
	sections, err := parseSections(content)
	if err != nil {
		t.Fatalf("test input failed to parse: %v", err)
	}
	var out []string
	for _, s := range sections {
		out = append(out, splitSentences(s.Body)...)
	}
	return out
}
