package merge

import (
	"errors"
	"strings"
	"unicode"
)

// errStructuralParse is returned when a document's section structure cannot
// be parsed. The merger degrades the strategy to append instead of failing:
// losing structural cleverness is acceptable, losing content is not.
var errStructuralParse = errors.New("failed to parse document structure")

// section is one logical unit of a document: a markdown heading plus its
// body. Title is the normalized form used for matching; Heading is the raw
// heading line, kept so merges re-emit it verbatim. The preamble (text before
// any heading) is a section with both empty.
type section struct {
	Title   string
	Heading string
	Body    string
}

// parseSections splits markdown-ish content into titled sections. Headings
// are lines starting with one or more '#'. Fenced code blocks are opaque: a
// heading inside a fence is body text, and an unclosed fence is a structural
// parse failure because everything after it is ambiguous.
func parseSections(content string) ([]section, error) {
	lines := strings.Split(content, "\n")

	var sections []section
	current := section{}
	var body []string
	inFence := false

	flush := func() {
		current.Body = strings.TrimSpace(strings.Join(body, "\n"))
		if current.Title != "" || current.Body != "" {
			sections = append(sections, current)
		}
		body = nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			body = append(body, line)
			continue
		}
		if !inFence && strings.HasPrefix(trimmed, "#") {
			flush()
			current = section{Title: normalizeTitle(trimmed), Heading: trimmed}
			continue
		}
		body = append(body, line)
	}
	if inFence {
		return nil, errStructuralParse
	}
	flush()
	return sections, nil
}

// normalizeTitle strips heading markers and lowercases for matching
func normalizeTitle(heading string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimLeft(heading, "# ")))
}

// splitSentences breaks body text into sentences. Splits on terminal
// punctuation followed by whitespace, and on blank lines; bullets keep their
// line. Deliberately crude: the merger only needs stable units to compare
// and preserve, not linguistic accuracy.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		s := strings.TrimSpace(current.String())
		if s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' {
			flush()
			continue
		}
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			flush()
		}
	}
	flush()
	return sentences
}

// normalizeSentence lowercases and collapses whitespace and trailing
// punctuation so near-identical restatements compare equal
func normalizeSentence(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimRight(s, ".!? ")
	return strings.Join(strings.Fields(s), " ")
}

// sentenceTokens returns the distinct word set of a sentence
func sentenceTokens(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		tokens[w] = struct{}{}
	}
	return tokens
}

// sentenceOverlap computes the token Jaccard of two sentences
func sentenceOverlap(a, b string) float64 {
	ta, tb := sentenceTokens(a), sentenceTokens(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 0
	}
	intersection := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
