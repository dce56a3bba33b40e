package textindex

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Tokenize lowercases, NFC-normalizes, splits on Unicode word boundaries,
// and drops stopwords, per spec.md §4.2. No stemming is performed.
func Tokenize(text string, stopwords map[string]bool) []string {
	if text == "" {
		return nil
	}
	normalized := norm.NFC.String(strings.ToLower(text))

	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		tok := cur.String()
		cur.Reset()
		if stopwords != nil && stopwords[tok] {
			return
		}
		tokens = append(tokens, tok)
	}
	for _, r := range normalized {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// DefaultStopwords returns the common-English stopword set used unless a
// configuration overrides it, grounded on the teacher's
// internal/relevance/keyword_scorer.go getCommonStopWords table.
func DefaultStopwords() map[string]bool {
	words := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for", "from",
		"has", "he", "in", "is", "it", "its", "of", "on", "that", "the",
		"to", "was", "were", "will", "with", "this", "but", "they",
		"have", "had", "what", "said", "each", "which", "she", "do", "how",
		"their", "if", "up", "out", "many", "then", "them", "these", "so",
		"some", "her", "would", "make", "like", "into", "him", "time", "two",
	}
	out := make(map[string]bool, len(words))
	for _, w := range words {
		out[w] = true
	}
	return out
}
