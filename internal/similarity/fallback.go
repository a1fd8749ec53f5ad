package similarity

import (
	"strings"
	"unicode"
)

// Fallback weight defaults. The blend deliberately under-matches: an extra
// document is cheap, a corrupted merge is not.
const (
	DefaultTopicWeight    = 0.4
	DefaultContentWeight  = 0.4
	DefaultQuestionWeight = 0.2
)

// Profile is a candidate or document reduced to the normalized sets the
// fallback scorer works on. Building a profile is the only non-trivial cost;
// scoring two profiles is pure set arithmetic.
type Profile struct {
	Topics    map[string]struct{}
	Tokens    map[string]struct{}
	Questions map[string]struct{}
}

// NewProfile tokenizes content and normalizes topics and source questions
// into lowercase sets
func NewProfile(content string, topics, questions []string) *Profile {
	return &Profile{
		Topics:    normalizeSet(topics),
		Tokens:    tokenize(content),
		Questions: normalizeSet(questions),
	}
}

// IsEmpty reports whether the profile carries no signal at all
func (p *Profile) IsEmpty() bool {
	return len(p.Topics) == 0 && len(p.Tokens) == 0 && len(p.Questions) == 0
}

// Scorer is the deterministic fallback similarity function: a weighted blend
// of topic-set Jaccard, content-token Jaccard, and source-question overlap.
// It is a pure function with no I/O and no external state, so it works when
// everything else is down.
type Scorer struct {
	TopicWeight    float64
	ContentWeight  float64
	QuestionWeight float64
}

// NewScorer returns a scorer with the default 0.4/0.4/0.2 blend
func NewScorer() *Scorer {
	return &Scorer{
		TopicWeight:    DefaultTopicWeight,
		ContentWeight:  DefaultContentWeight,
		QuestionWeight: DefaultQuestionWeight,
	}
}

// Score returns the blended similarity of two profiles in [0,1].
// Score(a,b) == Score(b,a) for all pairs.
func (s *Scorer) Score(a, b *Profile) float64 {
	topicScore := jaccard(a.Topics, b.Topics)
	contentScore := jaccard(a.Tokens, b.Tokens)
	questionScore := questionOverlap(a.Questions, b.Questions)

	score := s.TopicWeight*topicScore + s.ContentWeight*contentScore + s.QuestionWeight*questionScore
	return Clamp(score)
}

// TopicScore exposes the topic-set Jaccard component on its own; the finder
// blends it with vector similarity when the index is available.
func (s *Scorer) TopicScore(a, b *Profile) float64 {
	return jaccard(a.Topics, b.Topics)
}

// QuestionScore exposes the source-question overlap component on its own
func (s *Scorer) QuestionScore(a, b *Profile) float64 {
	return questionOverlap(a.Questions, b.Questions)
}

// Clamp bounds a score to [0,1]. Every score the engine hands out passes
// through here; floating-point blends can drift a hair past the bounds.
func Clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// jaccard computes |a ∩ b| / |a ∪ b|, with 0 when both sets are empty
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// questionOverlap computes |a ∩ b| / max(|a ∪ b|, 1). The max keeps the
// denominator sane when neither side recorded its source questions.
func questionOverlap(a, b map[string]struct{}) float64 {
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union < 1 {
		union = 1
	}
	return float64(intersection) / float64(union)
}

// tokenize lowercases text and splits it on any non-letter, non-digit rune,
// returning the set of distinct tokens
func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		tokens[word] = struct{}{}
	}
	return tokens
}

// normalizeSet lowercases and trims a string slice into a set, dropping
// empties
func normalizeSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
	return set
}
