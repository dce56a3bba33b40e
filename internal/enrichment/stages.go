package enrichment

import "context"

// Summarizer produces a short abstract from normalized text. Grounded on
// the teacher's internal/summarize.Summarizer interface.
type Summarizer interface {
	Summarize(ctx context.Context, title, text string) (string, error)
}

// Tagger produces candidate subject strings from normalized text.
// Grounded on the teacher's internal/tags.Classifier.ClassifyArticle,
// generalized from theme-scoped tagging to free subjects.
type Tagger interface {
	Tag(ctx context.Context, title, text string) ([]string, error)
}

// Classifier assigns a single hierarchical classification code with a
// confidence score. Grounded on the teacher's internal/tags classifier
// pattern, narrowed to single-label output.
type Classifier interface {
	Classify(ctx context.Context, title, text string) (code string, confidence float64, err error)
}

// DenseEmbedder produces a fixed-dimension dense vector from the
// concatenation of title, description, and text. Grounded on the
// teacher's internal/llm.Client.GenerateEmbedding.
type DenseEmbedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// SparseEmbedder produces a token_id -> weight map from the same input as
// DenseEmbedder. Has no teacher analog; grounded on internal/textindex's
// tokenizer/stopword list, reused here to build term weights.
type SparseEmbedder interface {
	EmbedSparse(ctx context.Context, text string) (map[int]float64, error)
}

// ExtractedCitation is one citation found in a resource's text, prior to
// resolution against the store.
type ExtractedCitation struct {
	TargetURL string
	Context   string
	Position  int
}

// CitationExtractor finds outbound references in normalized text.
// Grounded on the teacher's internal/citations.Tracker, generalized from
// markdown-link scraping to arbitrary article text.
type CitationExtractor interface {
	ExtractCitations(ctx context.Context, text string) ([]ExtractedCitation, error)
}

// ScholarlyResult mirrors core.ScholarlyMetadata; kept as a separate type
// so the enrichment package does not force every caller to import core
// just to implement this interface.
type ScholarlyResult struct {
	Authors   []string
	DOI       string
	Equations int
	Tables    int
}

// ScholarlyExtractor detects academic-paper structure in text. No direct
// teacher analog; grounded on the same structured-output LLM call pattern
// as Classifier and Tagger (internal/tags.CreateTagClassificationSchema).
type ScholarlyExtractor interface {
	ExtractScholarly(ctx context.Context, text string) (*ScholarlyResult, bool, error)
}

// QualityResult mirrors core.QualityDimensions plus the derived overall
// score, kept separate for the same import-boundary reason as
// ScholarlyResult.
type QualityResult struct {
	Accuracy     float64
	Completeness float64
	Consistency  float64
	Timeliness   float64
	Relevance    float64
	Overall      float64
}

// QualityScorer computes the five quality dimensions plus overall score
// from a resource's fully-enriched fields. Grounded on the teacher's
// internal/quality.DigestEvaluator.EvaluateDigest.
type QualityScorer interface {
	Score(ctx context.Context, input QualityInput) (*QualityResult, error)
}

// QualityInput is the subset of a resource's fields the quality stage
// reads, passed as a value type so QualityScorer implementations do not
// need to import core either.
type QualityInput struct {
	Title              string
	Description        string
	Text               string
	Subject            []string
	ClassificationCode string
	Embedding          []float64
	CitationCount      int
}
