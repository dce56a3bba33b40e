package enrichment

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"neoalexandria/internal/apperr"
	"neoalexandria/internal/core"
	"neoalexandria/internal/ingestion"
	"neoalexandria/internal/metrics"
	"neoalexandria/internal/sparseindex"
	"neoalexandria/internal/store"
	"neoalexandria/internal/textindex"
	"neoalexandria/internal/vectorindex"
)

// Pipeline implements ingestion.Enricher, running the analyzer DAG of
// spec.md §4.6: Parse and Archive serially and mandatorily, then
// Summarize/Tag/Classify/Dense embed/Sparse embed/Extract
// citations/Scholarly extract concurrently via an errgroup, then Quality
// score, then the index writes. Grounded on the teacher's
// internal/pipeline.Pipeline: one big dependency-injected struct of small
// capability interfaces driven through numbered stages, non-fatal stages
// logging a warning and continuing instead of aborting the run.
type Pipeline struct {
	Store store.Store

	TextIndex   *textindex.Index
	VectorIndex vectorindex.Index
	SparseIndex *sparseindex.Index

	Archiver *FileArchiver

	Summarizer         Summarizer
	SummarizerFallback Summarizer
	Tagger             Tagger
	TaggerFallback     Tagger
	Classifier         Classifier
	DenseEmbedder      DenseEmbedder
	SparseEmbedder     SparseEmbedder
	CitationExtractor  CitationExtractor
	ScholarlyExtractor ScholarlyExtractor
	QualityScorer      QualityScorer

	ParseTimeout      time.Duration
	ModelTimeout      time.Duration
	IndexWriteTimeout time.Duration

	Log *slog.Logger
}

var _ ingestion.Enricher = (*Pipeline)(nil)

func (p *Pipeline) logger() *slog.Logger {
	if p.Log != nil {
		return p.Log
	}
	return slog.Default()
}

// Enrich mutates resource in place. Parse and Archive failures are
// returned to the caller (they are non-degradable, per spec.md §4.5 "only
// the fetch and parse stages are non-degradable"); every enrichment stage
// after them, Quality score included, absorbs its own error, logs a
// warning, and leaves its field nulled. A failed index write (see
// writeIndexes) is also returned.
func (p *Pipeline) Enrich(ctx context.Context, resource *core.Resource, raw *ingestion.FetchResult) error {
	parseCtx, cancel := context.WithTimeout(ctx, p.ParseTimeout)
	parsed, err := ParseHTML(raw.RawBytes)
	cancel()
	if err != nil {
		return err
	}
	if parseCtx.Err() != nil {
		return parseCtx.Err()
	}
	if resource.Title == "" {
		resource.Title = parsed.Title
	}
	text := parsed.Text

	archivePath, err := p.Archiver.Archive(raw.RawBytes)
	if err != nil {
		return err
	}
	resource.ArchivePath = archivePath

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error { p.runSummarize(gCtx, resource, text); return nil })
	g.Go(func() error { p.runTag(gCtx, resource, text); return nil })
	g.Go(func() error { p.runClassify(gCtx, resource, text); return nil })
	g.Go(func() error { p.runDenseEmbed(gCtx, resource, text); return nil })
	g.Go(func() error { p.runSparseEmbed(gCtx, resource, text); return nil })
	g.Go(func() error { p.runCitations(gCtx, resource, text); return nil })
	g.Go(func() error { p.runScholarly(gCtx, resource, text); return nil })

	_ = g.Wait()

	p.runQuality(ctx, resource, text)

	return p.writeIndexes(ctx, resource, text)
}

func (p *Pipeline) modelCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.ModelTimeout)
}

func (p *Pipeline) runSummarize(ctx context.Context, resource *core.Resource, text string) {
	ctx, cancel := p.modelCtx(ctx)
	defer cancel()
	desc, err := p.Summarizer.Summarize(ctx, resource.Title, text)
	if err != nil {
		p.logger().Warn("summarize stage failed, falling back to leading sentences", "resource_id", resource.ID, "error", err)
		desc, err = p.SummarizerFallback.Summarize(ctx, resource.Title, text)
		if err != nil {
			p.logger().Warn("summarize fallback failed", "resource_id", resource.ID, "error", err)
			metrics.RecordStageDegraded("summarize")
			return
		}
	}
	resource.Description = desc
}

func (p *Pipeline) runTag(ctx context.Context, resource *core.Resource, text string) {
	ctx, cancel := p.modelCtx(ctx)
	defer cancel()
	subjects, err := p.Tagger.Tag(ctx, resource.Title, text)
	if err != nil {
		p.logger().Warn("tag stage failed, falling back to noun-phrase heuristic", "resource_id", resource.ID, "error", err)
		subjects, err = p.TaggerFallback.Tag(ctx, resource.Title, text)
		if err != nil {
			p.logger().Warn("tag fallback failed", "resource_id", resource.ID, "error", err)
			metrics.RecordStageDegraded("tag")
			return
		}
	}
	resource.Subject = subjects
}

func (p *Pipeline) runClassify(ctx context.Context, resource *core.Resource, text string) {
	ctx, cancel := p.modelCtx(ctx)
	defer cancel()
	code, _, err := p.Classifier.Classify(ctx, resource.Title, text)
	if err != nil {
		p.logger().Warn("classify stage failed, leaving classification unset", "resource_id", resource.ID, "error", err)
		metrics.RecordStageDegraded("classify")
		return
	}
	resource.ClassificationCode = code
}

func (p *Pipeline) runDenseEmbed(ctx context.Context, resource *core.Resource, text string) {
	ctx, cancel := p.modelCtx(ctx)
	defer cancel()
	bundle := resource.Title + "\n\n" + resource.Description + "\n\n" + text
	vec, err := p.DenseEmbedder.Embed(ctx, bundle)
	if err != nil {
		p.logger().Warn("dense embed stage failed", "resource_id", resource.ID, "error", err)
		resource.EmbeddingFailed = true
		metrics.RecordStageDegraded("dense_embed")
		return
	}
	resource.Embedding = vec
}

func (p *Pipeline) runSparseEmbed(ctx context.Context, resource *core.Resource, text string) {
	ctx, cancel := p.modelCtx(ctx)
	defer cancel()
	bundle := resource.Title + "\n\n" + resource.Description + "\n\n" + text
	sparse, err := p.SparseEmbedder.EmbedSparse(ctx, bundle)
	if err != nil {
		p.logger().Warn("sparse embed stage failed", "resource_id", resource.ID, "error", err)
		metrics.RecordStageDegraded("sparse_embed")
		return
	}
	now := time.Now().UTC()
	resource.SparseEmbedding = sparse
	resource.SparseEmbeddingUpdated = &now
}

func (p *Pipeline) runCitations(ctx context.Context, resource *core.Resource, text string) {
	ctx, cancel := p.modelCtx(ctx)
	defer cancel()
	found, err := p.CitationExtractor.ExtractCitations(ctx, text)
	if err != nil {
		p.logger().Warn("citation extraction failed", "resource_id", resource.ID, "error", err)
		metrics.RecordStageDegraded("citations")
		return
	}
	for _, c := range found {
		citation := &core.Citation{
			ID:               uuid.NewString(),
			SourceResourceID: resource.ID,
			TargetURL:        c.TargetURL,
			CitationType:     core.CitationGeneral,
			Context:          c.Context,
			Position:         c.Position,
		}
		if target, err := p.Store.GetResourceBySource(ctx, c.TargetURL); err == nil && target != nil {
			id := target.ID
			citation.TargetResourceID = &id
			citation.CitationType = core.CitationReference
		}
		if err := p.Store.UpsertCitation(ctx, citation); err != nil {
			p.logger().Warn("failed to persist citation", "resource_id", resource.ID, "target_url", c.TargetURL, "error", err)
		}
	}
}

func (p *Pipeline) runScholarly(ctx context.Context, resource *core.Resource, text string) {
	ctx, cancel := p.modelCtx(ctx)
	defer cancel()
	result, isAcademic, err := p.ScholarlyExtractor.ExtractScholarly(ctx, text)
	if err != nil {
		p.logger().Warn("scholarly extraction failed", "resource_id", resource.ID, "error", err)
		metrics.RecordStageDegraded("scholarly")
		return
	}
	if !isAcademic {
		return
	}
	resource.Scholarly = &core.ScholarlyMetadata{
		Authors:   result.Authors,
		DOI:       result.DOI,
		Equations: result.Equations,
		Tables:    result.Tables,
	}
}

func (p *Pipeline) runQuality(ctx context.Context, resource *core.Resource, text string) {
	ctx, cancel := p.modelCtx(ctx)
	defer cancel()
	result, err := p.QualityScorer.Score(ctx, QualityInput{
		Title:              resource.Title,
		Description:        resource.Description,
		Text:               text,
		Subject:            resource.Subject,
		ClassificationCode: resource.ClassificationCode,
		Embedding:          resource.Embedding,
		CitationCount:      citationCount(ctx, p.Store, resource.ID),
	})
	if err != nil {
		p.logger().Warn("quality scoring failed", "resource_id", resource.ID, "error", err)
		resource.NeedsReview = true
		metrics.RecordStageDegraded("quality")
		return
	}
	now := time.Now().UTC()
	resource.Quality = core.QualityDimensions{
		Accuracy:     result.Accuracy,
		Completeness: result.Completeness,
		Consistency:  result.Consistency,
		Timeliness:   result.Timeliness,
		Relevance:    result.Relevance,
	}
	resource.QualityOverall = &result.Overall
	resource.QualityLastComputed = &now
}

func citationCount(ctx context.Context, st store.Store, resourceID string) int {
	cites, err := st.ListCitations(ctx, resourceID)
	if err != nil {
		return 0
	}
	return len(cites)
}

// writeIndexes issues the Text, Vector, and Sparse index writes. Only the
// vector index can fail (it may be backed by a database); on failure the
// whole set is rolled back via idempotent remove-then-add, per spec.md
// §4.6's index-write contract, and the error propagates to the engine
// since index consistency is not a degradable concern.
func (p *Pipeline) writeIndexes(ctx context.Context, resource *core.Resource, text string) error {
	ctx, cancel := context.WithTimeout(ctx, p.IndexWriteTimeout)
	defer cancel()

	bundle := resource.Title + "\n\n" + resource.Description + "\n\n" + text
	p.TextIndex.Index(resource.ID, bundle)
	if resource.SparseEmbedding != nil {
		p.SparseIndex.Add(resource.ID, resource.SparseEmbedding)
	}

	if resource.Embedding != nil {
		if err := p.VectorIndex.Add(ctx, resource.ID, resource.Embedding); err != nil {
			p.TextIndex.Remove(resource.ID)
			if resource.SparseEmbedding != nil {
				p.SparseIndex.Remove(resource.ID)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return apperr.Transient("vector index write failed", err)
		}
	}

	return nil
}
