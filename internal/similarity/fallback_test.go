package similarity

import (
	"fmt"
	"math"
	"math/rand"
	"testing"
)

func TestScoreCommutativity(t *testing.T) {
	// Property check over randomized profiles: Score(a,b) == Score(b,a)
	rng := rand.New(rand.NewSource(42))
	vocab := []string{"protein", "enzyme", "cell", "membrane", "reaction",
		"catalyst", "neuron", "signal", "pathway", "receptor"}

	randomWords := func(n int) []string {
		words := make([]string, 0, n)
		for i := 0; i < n; i++ {
			words = append(words, vocab[rng.Intn(len(vocab))])
		}
		return words
	}

	scorer := NewScorer()
	for i := 0; i < 200; i++ {
		a := NewProfile(
			fmt.Sprintf("%v", randomWords(rng.Intn(20))),
			randomWords(rng.Intn(4)),
			randomWords(rng.Intn(3)))
		b := NewProfile(
			fmt.Sprintf("%v", randomWords(rng.Intn(20))),
			randomWords(rng.Intn(4)),
			randomWords(rng.Intn(3)))

		ab, ba := scorer.Score(a, b), scorer.Score(b, a)
		if ab != ba {
			t.Fatalf("iteration %d: Score(a,b)=%v != Score(b,a)=%v", i, ab, ba)
		}
	}
}

func TestScoreBoundedness(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	scorer := NewScorer()
	for i := 0; i < 200; i++ {
		a := NewProfile(randomText(rng), nil, nil)
		b := NewProfile(randomText(rng), []string{"x"}, []string{"q"})
		score := scorer.Score(a, b)
		if score < 0 || score > 1 {
			t.Fatalf("iteration %d: score %v out of [0,1]", i, score)
		}
	}
}

func randomText(rng *rand.Rand) string {
	words := []string{"alpha", "beta", "gamma", "delta", "epsilon"}
	out := ""
	for i := 0; i < rng.Intn(30); i++ {
		out += words[rng.Intn(len(words))] + " "
	}
	return out
}

func TestScoreIdenticalProfiles(t *testing.T) {
	scorer := NewScorer()
	p := NewProfile("X causes Y in cells", []string{"biology"}, []string{"does X cause Y?"})
	q := NewProfile("X causes Y in cells", []string{"biology"}, []string{"does X cause Y?"})

	if got := scorer.Score(p, q); got != 1.0 {
		t.Errorf("identical profiles with all three signals should score 1.0, got %v", got)
	}
}

func TestScoreDisjointProfiles(t *testing.T) {
	scorer := NewScorer()
	p := NewProfile("X causes Y", []string{"biology"}, nil)
	q := NewProfile("quarks bind via gluons", []string{"physics"}, nil)

	if got := scorer.Score(p, q); got != 0.0 {
		t.Errorf("fully disjoint profiles should score 0.0, got %v", got)
	}
}

// Worked example: 75% topic overlap, 60% content overlap, no questions.
// 0.4*0.75 + 0.4*0.60 + 0.2*0 = 0.54. Regression-pins the weighting formula.
func TestScoreWorkedExample(t *testing.T) {
	scorer := NewScorer()

	// Topics: |{a,b,c} ∩ {a,b,c,d}| / |union| = 3/4 = 0.75
	topicsA := []string{"a", "b", "c"}
	topicsB := []string{"a", "b", "c", "d"}

	// Tokens: |{t1,t2,t3} ∩ {t1,t2,t3,t4,t5}| / 5 = 0.6
	contentA := "t1 t2 t3"
	contentB := "t1 t2 t3 t4 t5"

	a := NewProfile(contentA, topicsA, nil)
	b := NewProfile(contentB, topicsB, nil)

	got := scorer.Score(a, b)
	want := 0.4*0.75 + 0.4*0.60
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("worked example: got %v, want %v", got, want)
	}
}

func TestJaccardEmptySets(t *testing.T) {
	if got := jaccard(nil, nil); got != 0 {
		t.Errorf("jaccard of two empty sets should be 0, got %v", got)
	}
}

func TestQuestionOverlapEmptySets(t *testing.T) {
	// max(|union|, 1) keeps the denominator sane with no questions recorded
	if got := questionOverlap(nil, nil); got != 0 {
		t.Errorf("question overlap of two empty sets should be 0, got %v", got)
	}
}

func TestTokenizeNormalizes(t *testing.T) {
	tokens := tokenize("The CELL-membrane, and the cell membrane!")
	for _, want := range []string{"the", "cell", "membrane", "and"} {
		if _, ok := tokens[want]; !ok {
			t.Errorf("expected token %q in %v", want, tokens)
		}
	}
	if len(tokens) != 4 {
		t.Errorf("expected 4 distinct tokens, got %d: %v", len(tokens), tokens)
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-0.5, 0}, {0, 0}, {0.5, 0.5}, {1, 1}, {1.5, 1},
	}
	for _, tt := range tests {
		if got := Clamp(tt.in); got != tt.want {
			t.Errorf("Clamp(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestProfileIsEmpty(t *testing.T) {
	if !NewProfile("", nil, nil).IsEmpty() {
		t.Error("profile with no signal should be empty")
	}
	if NewProfile("word", nil, nil).IsEmpty() {
		t.Error("profile with content should not be empty")
	}
}
