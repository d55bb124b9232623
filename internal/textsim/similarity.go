package textsim

import (
	"math"
	"regexp"
	"strings"
)

const ngramSize = 5

// minSentenceLen filters out fragments (headings, stray citations)
// before novelty comparison.
const minSentenceLen = 20

var (
	tokenPattern    = regexp.MustCompile(`[a-z0-9]+`)
	sentencePattern = regexp.MustCompile(`[.!?\n]+`)
	nonAlnumSpace   = regexp.MustCompile(`[^a-z0-9 ]+`)
	multiSpace      = regexp.MustCompile(`\s+`)
)

// CosineSimilarity returns dot(a,b)/(|a||b|). Mismatched lengths, empty
// vectors, and zero norms all return 0 rather than an error.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Tokenize lowercases text, splits on non-alphanumeric boundaries and
// drops single-character tokens.
func Tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	tokens := raw[:0]
	for _, t := range raw {
		if len(t) > 1 {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// LexicalOverlap is the Jaccard overlap of the two texts' word 5-gram
// sets. Texts with fewer than five qualifying tokens contribute their
// whole token sequence as a single gram.
func LexicalOverlap(a, b string) float64 {
	setA := ngramSet(Tokenize(a))
	setB := ngramSet(Tokenize(b))
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for gram := range setA {
		if _, ok := setB[gram]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection

	return float64(intersection) / float64(union)
}

func ngramSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{})
	if len(tokens) == 0 {
		return set
	}
	if len(tokens) < ngramSize {
		set[strings.Join(tokens, " ")] = struct{}{}
		return set
	}
	for i := 0; i+ngramSize <= len(tokens); i++ {
		set[strings.Join(tokens[i:i+ngramSize], " ")] = struct{}{}
	}
	return set
}

// NoveltyRatio is the fraction of thesis sentences whose normalized
// form does not appear verbatim among the publication's normalized
// sentences. Returns 0 when the thesis text has no qualifying
// sentences.
func NoveltyRatio(thesisText, publicationText string) float64 {
	thesisSentences := normalizedSentences(thesisText)
	if len(thesisSentences) == 0 {
		return 0
	}

	published := make(map[string]struct{})
	for _, s := range normalizedSentences(publicationText) {
		published[s] = struct{}{}
	}

	novel := 0
	for _, s := range thesisSentences {
		if _, ok := published[s]; !ok {
			novel++
		}
	}

	return float64(novel) / float64(len(thesisSentences))
}

func normalizedSentences(text string) []string {
	var sentences []string
	for _, raw := range sentencePattern.Split(text, -1) {
		s := strings.ToLower(raw)
		s = nonAlnumSpace.ReplaceAllString(s, " ")
		s = strings.TrimSpace(multiSpace.ReplaceAllString(s, " "))
		if len(s) < minSentenceLen {
			continue
		}
		sentences = append(sentences, s)
	}
	return sentences
}
