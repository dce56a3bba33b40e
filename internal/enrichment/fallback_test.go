package enrichment

import (
	"context"
	"testing"
)

func TestLeadingSentenceSummarizerTakesFirstNSentences(t *testing.T) {
	s := NewLeadingSentenceSummarizer()
	s.MaxSentences = 2
	text := "First sentence. Second sentence. Third sentence. Fourth sentence."
	out, err := s.Summarize(context.Background(), "title", text)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	want := "First sentence. Second sentence"
	if out != want {
		t.Errorf("expected %q, got %q", want, out)
	}
}

func TestLeadingSentenceSummarizerEmptyText(t *testing.T) {
	s := NewLeadingSentenceSummarizer()
	out, err := s.Summarize(context.Background(), "title", "")
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if out != "" {
		t.Errorf("expected empty summary for empty text, got %q", out)
	}
}

func TestNounPhraseTaggerPicksMostFrequentTokens(t *testing.T) {
	tagger := NewNounPhraseTagger()
	tagger.MaxTags = 2
	text := "database database database cache cache network"
	tags, err := tagger.Tag(context.Background(), "", text)
	if err != nil {
		t.Fatalf("Tag failed: %v", err)
	}
	if len(tags) != 2 {
		t.Fatalf("expected 2 tags, got %d: %v", len(tags), tags)
	}
	if tags[0] != "database" {
		t.Errorf("expected most frequent token 'database' first, got %q", tags[0])
	}
}

func TestHashingSparseEmbedderIsDeterministic(t *testing.T) {
	h := NewHashingSparseEmbedder()
	text := "the quick brown fox jumps over the lazy dog"
	v1, err := h.EmbedSparse(context.Background(), text)
	if err != nil {
		t.Fatalf("EmbedSparse failed: %v", err)
	}
	v2, err := h.EmbedSparse(context.Background(), text)
	if err != nil {
		t.Fatalf("EmbedSparse failed: %v", err)
	}
	if len(v1) != len(v2) {
		t.Fatalf("expected deterministic vector length, got %d vs %d", len(v1), len(v2))
	}
	for id, weight := range v1 {
		if v2[id] != weight {
			t.Errorf("expected deterministic weight at bucket %d, got %v vs %v", id, weight, v2[id])
		}
	}
}

func TestHashingSparseEmbedderEmptyText(t *testing.T) {
	h := NewHashingSparseEmbedder()
	v, err := h.EmbedSparse(context.Background(), "")
	if err != nil {
		t.Fatalf("EmbedSparse failed: %v", err)
	}
	if len(v) != 0 {
		t.Errorf("expected empty vector for empty text, got %v", v)
	}
}

func TestRegexCitationExtractorFindsURLs(t *testing.T) {
	e := NewRegexCitationExtractor()
	text := "See https://example.com/a for details, also check https://example.com/b."
	citations, err := e.ExtractCitations(context.Background(), text)
	if err != nil {
		t.Fatalf("ExtractCitations failed: %v", err)
	}
	if len(citations) != 2 {
		t.Fatalf("expected 2 citations, got %d: %v", len(citations), citations)
	}
	if citations[0].TargetURL != "https://example.com/a" {
		t.Errorf("unexpected first URL: %s", citations[0].TargetURL)
	}
	if citations[1].Position != 1 {
		t.Errorf("expected second citation at position 1, got %d", citations[1].Position)
	}
}

func TestRegexCitationExtractorNoURLsReturnsNil(t *testing.T) {
	e := NewRegexCitationExtractor()
	citations, err := e.ExtractCitations(context.Background(), "no links here")
	if err != nil {
		t.Fatalf("ExtractCitations failed: %v", err)
	}
	if len(citations) != 0 {
		t.Errorf("expected no citations, got %v", citations)
	}
}
