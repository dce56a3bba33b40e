package retrieval

import (
	"context"

	"neoalexandria/internal/sparseindex"
	"neoalexandria/internal/textindex"
	"neoalexandria/internal/vectorindex"
)

// Retriever is the common capability spec.md §9 calls for: "model
// retrievers as a common capability { search(query, limit, filters) ->
// ranked list }; the engine is retriever-agnostic." Results are ordered
// best-first; rank is derived from position, not carried explicitly.
type Retriever interface {
	Name() string
	Search(ctx context.Context, queryText string, limit int, allowed map[string]bool) ([]string, error)
}

// QueryEmbedder produces a dense query vector from query text. Kept local
// to this package (rather than depending on internal/enrichment's
// DenseEmbedder) so the retrieval engine has no compile-time dependency
// on the ingestion/enrichment subsystem; internal/enrichment.GenAIClient
// satisfies this interface structurally.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// SparseQueryEmbedder produces a sparse query vector from query text,
// mirroring QueryEmbedder's decoupling rationale.
type SparseQueryEmbedder interface {
	EmbedSparse(ctx context.Context, text string) (map[int]float64, error)
}

// LexicalRetriever wraps the in-memory inverted index.
type LexicalRetriever struct {
	Index *textindex.Index
}

func (r *LexicalRetriever) Name() string { return "lexical" }

func (r *LexicalRetriever) Search(_ context.Context, queryText string, limit int, allowed map[string]bool) ([]string, error) {
	results := r.Index.Search(queryText, limit, allowed)
	ids := make([]string, len(results))
	for i, res := range results {
		ids[i] = res.ResourceID
	}
	return ids, nil
}

// DenseRetriever wraps a vectorindex.Index behind a query embedder.
type DenseRetriever struct {
	Index         vectorindex.Index
	Embedder      QueryEmbedder
	MinSimilarity float64
}

func (r *DenseRetriever) Name() string { return "dense" }

func (r *DenseRetriever) Search(ctx context.Context, queryText string, limit int, allowed map[string]bool) ([]string, error) {
	vec, err := r.Embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, err
	}
	matches, err := r.Index.Search(ctx, vec, limit, r.MinSimilarity, allowed)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ResourceID
	}
	return ids, nil
}

// SparseRetriever wraps the in-memory sparse index behind a query
// embedder.
type SparseRetriever struct {
	Index    *sparseindex.Index
	Embedder SparseQueryEmbedder
}

func (r *SparseRetriever) Name() string { return "sparse" }

func (r *SparseRetriever) Search(ctx context.Context, queryText string, limit int, allowed map[string]bool) ([]string, error) {
	vec, err := r.Embedder.EmbedSparse(ctx, queryText)
	if err != nil {
		return nil, err
	}
	matches := r.Index.Search(vec, limit, allowed)
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ResourceID
	}
	return ids, nil
}

// Reranker rescoring the fused top-R prefix. Reranker failure is always
// degradable (spec.md §4.7 step 5) — the engine falls back to fused
// order on error.
type Reranker interface {
	Rerank(ctx context.Context, queryText string, candidateIDs []string) ([]string, error)
}
