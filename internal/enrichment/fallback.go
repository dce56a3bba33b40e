package enrichment

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"

	"neoalexandria/internal/textindex"
)

// LeadingSentenceSummarizer is the Summarize stage's degradable fallback
// (spec.md §4.6: "Summarize -> leading sentences"): it takes the first
// few sentences verbatim instead of calling a model.
type LeadingSentenceSummarizer struct {
	MaxSentences int
}

func NewLeadingSentenceSummarizer() *LeadingSentenceSummarizer {
	return &LeadingSentenceSummarizer{MaxSentences: 3}
}

var sentenceSplit = regexp.MustCompile(`(?:[.!?])\s+`)

func (s *LeadingSentenceSummarizer) Summarize(_ context.Context, _, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	sentences := sentenceSplit.Split(text, -1)
	n := s.MaxSentences
	if n <= 0 || n > len(sentences) {
		n = len(sentences)
	}
	return strings.TrimSpace(strings.Join(sentences[:n], ". ")), nil
}

// NounPhraseTagger is the Tag stage's degradable fallback (spec.md §4.6:
// "Tag -> noun-phrase heuristic"): it reuses the textindex tokenizer to
// pick the most frequent tokens of at least four characters as candidate
// subjects, rather than calling a model.
type NounPhraseTagger struct {
	MaxTags int
}

func NewNounPhraseTagger() *NounPhraseTagger {
	return &NounPhraseTagger{MaxTags: 5}
}

func (t *NounPhraseTagger) Tag(_ context.Context, title, text string) ([]string, error) {
	tokens := textindex.Tokenize(title+" "+text, textindex.DefaultStopwords())
	counts := make(map[string]int, len(tokens))
	order := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if len(tok) < 4 {
			continue
		}
		if counts[tok] == 0 {
			order = append(order, tok)
		}
		counts[tok]++
	}

	max := t.MaxTags
	if max <= 0 {
		max = 5
	}

	top := make([]string, 0, max)
	for pass := 0; len(top) < max && pass < len(order); {
		bestIdx := -1
		bestCount := 0
		for i, tok := range order {
			if tok == "" {
				continue
			}
			if counts[tok] > bestCount {
				bestCount = counts[tok]
				bestIdx = i
			}
		}
		if bestIdx == -1 {
			break
		}
		top = append(top, order[bestIdx])
		order[bestIdx] = ""
		pass++
	}
	return top, nil
}

// HashingSparseEmbedder builds a deterministic sparse term-weight vector
// by hashing tokens into a fixed bucket space, used as the Sparse embed
// stage's implementation where no learned-sparse model is configured and
// as the sparse query embedder at search time. Grounded on the same tokenizer
// internal/textindex.Index uses for its inverted postings.
type HashingSparseEmbedder struct {
	Buckets int
}

func NewHashingSparseEmbedder() *HashingSparseEmbedder {
	return &HashingSparseEmbedder{Buckets: 1 << 16}
}

func (h *HashingSparseEmbedder) EmbedSparse(_ context.Context, text string) (map[int]float64, error) {
	tokens := textindex.Tokenize(text, textindex.DefaultStopwords())
	if len(tokens) == 0 {
		return map[int]float64{}, nil
	}
	buckets := h.Buckets
	if buckets <= 0 {
		buckets = 1 << 16
	}
	counts := make(map[int]int, len(tokens))
	for _, tok := range tokens {
		id := hashToken(tok, buckets)
		counts[id]++
	}
	out := make(map[int]float64, len(counts))
	total := float64(len(tokens))
	for id, c := range counts {
		out[id] = float64(c) / total
	}
	return out, nil
}

func hashToken(tok string, buckets int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tok))
	return int(h.Sum32() % uint32(buckets))
}

// RegexCitationExtractor finds bare URLs in normalized text as candidate
// citations, used both as the primary extractor and the Extract citations
// stage's degradable fallback (spec.md §4.6: "Extract citations ->
// empty"). Grounded on the teacher's internal/citations.Tracker, which
// scrapes markdown-link URLs; generalized to scrape plain-text URLs since
// the Parse stage's output is not markdown.
type RegexCitationExtractor struct {
	ContextRadius int
}

func NewRegexCitationExtractor() *RegexCitationExtractor {
	return &RegexCitationExtractor{ContextRadius: 50}
}

var urlPattern = regexp.MustCompile(`https?://[^\s)\]"']+`)

func (e *RegexCitationExtractor) ExtractCitations(_ context.Context, text string) ([]ExtractedCitation, error) {
	matches := urlPattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return nil, nil
	}
	radius := e.ContextRadius
	if radius <= 0 {
		radius = 50
	}

	out := make([]ExtractedCitation, 0, len(matches))
	for i, m := range matches {
		start, end := m[0], m[1]
		ctxStart := start - radius
		if ctxStart < 0 {
			ctxStart = 0
		}
		ctxEnd := end + radius
		if ctxEnd > len(text) {
			ctxEnd = len(text)
		}
		out = append(out, ExtractedCitation{
			TargetURL: text[start:end],
			Context:   strings.TrimSpace(text[ctxStart:ctxEnd]),
			Position:  i,
		})
	}
	return out, nil
}
