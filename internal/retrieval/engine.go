package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"neoalexandria/internal/apperr"
	"neoalexandria/internal/metrics"
	"neoalexandria/internal/store"
)

// SearchRequest is spec.md §4.7's `SearchRequest`.
type SearchRequest struct {
	Text         string
	HybridWeight *float64 // nil means adaptive weighting applies
	Filters      store.ListFilter
	Limit        int
	Offset       int
	SortBy       string // "relevance" (default), "created_at", "updated_at", "quality_overall"
	SortDir      string // "asc" or "desc"
}

// Result is one fused, ranked hit.
type Result struct {
	ResourceID    string
	FusedScore    float64
	RerankerScore *float64
	Ranks         map[string]int // retriever name -> 1-based rank
	Resource      *storeResource
}

// storeResource is a thin alias kept local so this file does not need to
// import core directly in the Result type signature above; populated
// from store.Store.GetResource.
type storeResource = struct {
	QualityOverall     *float64
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Subject            []string
	ClassificationCode string
}

// Facet is one value/count pair within a faceted dimension.
type Facet struct {
	Value string
	Count int
}

// Response is the full result of a Search call.
type Response struct {
	Results []Result
	Facets  map[string][]Facet
	Total   int
}

// Config controls RRF fusion, reranking, and timeouts, sourced from
// internal/config.Retrieval.
type Config struct {
	RRFK                int
	RerankTop           int
	DefaultHybridWeight float64
	VectorMinSimHybrid  float64
	QueryTimeout        time.Duration
}

// Engine runs spec.md §4.7's query plan.
type Engine struct {
	Store    store.Store
	Lexical  Retriever
	Dense    Retriever
	Sparse   Retriever
	Reranker Reranker // optional; nil disables reranking
	Cfg      Config
	Log      *slog.Logger
}

func (e *Engine) logger() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

// Search runs the full plan: filter to a candidate universe, scatter-
// gather the three retrievers, fuse via RRF, optionally rerank, sort,
// paginate, and compute facets.
func (e *Engine) Search(ctx context.Context, req SearchRequest) (*Response, error) {
	metrics.RecordSearchRequest()
	started := time.Now()
	defer func() { metrics.ObserveSearchDuration(time.Since(started)) }()

	timeout := e.Cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	allowed, hasFilter, err := e.candidateUniverse(ctx, req.Filters)
	if err != nil {
		metrics.RecordSearchUnavailable()
		return nil, apperr.RetrievalUnavailable("failed to build candidate universe", err)
	}
	if hasFilter && len(allowed) == 0 {
		return &Response{Results: nil, Facets: map[string][]Facet{}, Total: 0}, nil
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}

	// Empty query + empty filters is the spec's explicit empty-result
	// boundary case. Empty query with a filter set, however, still returns
	// the filtered candidate set: the retrievers contribute no ranking
	// (there is no query text to rank against), so the result is sorted
	// directly by sort_by instead of going through RRF fusion.
	if req.Text == "" && !hasFilter {
		return &Response{Results: nil, Facets: map[string][]Facet{}, Total: 0}, nil
	}

	var (
		ids           []string
		fused         map[string]float64
		ranksByMethod map[string]map[string]int
	)

	if req.Text == "" {
		ids = make([]string, 0, len(allowed))
		for id := range allowed {
			ids = append(ids, id)
		}
		fused = map[string]float64{}
		ranksByMethod = map[string]map[string]int{}
	} else {
		k := limit * 10
		if k < 200 {
			k = 200
		}

		weights := adaptiveWeighting(req.Text, req.HybridWeight, e.Cfg.DefaultHybridWeight)

		ranksByMethod, err = e.runRetrievers(ctx, req.Text, k, allowed)
		if err != nil {
			metrics.RecordSearchUnavailable()
			return nil, err
		}

		weightByMethod := map[string]float64{
			"lexical": weights.Lexical,
			"dense":   weights.Semantic,
			"sparse":  weights.Sparse,
		}
		weightByMethod = renormalize(weightByMethod, ranksByMethod)

		fusionStarted := time.Now()
		fused = fuseRRF(ranksByMethod, weightByMethod, e.Cfg.RRFK)
		metrics.ObserveFusionDuration(time.Since(fusionStarted))

		ids = make([]string, 0, len(fused))
		for id := range fused {
			ids = append(ids, id)
		}
	}

	resources, err := e.loadResources(ctx, ids)
	if err != nil {
		return nil, apperr.RetrievalUnavailable("failed to load candidate resources", err)
	}

	results := make([]Result, 0, len(ids))
	for _, id := range ids {
		r := resources[id]
		results = append(results, Result{
			ResourceID: id,
			FusedScore: fused[id],
			Ranks:      ranksPerMethod(ranksByMethod, id),
			Resource:   r,
		})
	}

	if req.Text == "" {
		sortBy := req.SortBy
		if sortBy == "" || sortBy == "relevance" {
			sortBy = "updated_at"
		}
		dir := req.SortDir
		if dir == "" {
			dir = "desc"
		}
		sortByColumn(results, sortBy, dir)
	} else {
		sortByFusedThenTieBreak(results)

		rerankTop := e.Cfg.RerankTop
		if rerankTop <= 0 {
			rerankTop = 50
		}
		if 3*limit < rerankTop {
			rerankTop = 3 * limit
		}
		if e.Reranker != nil && len(results) > 0 {
			results = e.applyReranker(ctx, req.Text, results, rerankTop)
		}

		if req.SortBy != "" && req.SortBy != "relevance" {
			sortByColumn(results, req.SortBy, req.SortDir)
		}
	}

	facets := computeFacets(results)

	total := len(results)
	start := req.Offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	page := results[start:end]

	return &Response{Results: page, Facets: facets, Total: total}, nil
}

// candidateUniverse applies req.Filters, returning (allowed-id-set,
// filter-was-applied, error). When no filter field is set, hasFilter is
// false and retrievers run unrestricted (allowed == nil).
func (e *Engine) candidateUniverse(ctx context.Context, filter store.ListFilter) (map[string]bool, bool, error) {
	zero := store.ListFilter{}
	if filter == zero {
		return nil, false, nil
	}
	resources, err := e.Store.ListResources(ctx, store.ListOptions{Filter: filter, Limit: 0})
	if err != nil {
		return nil, true, err
	}
	allowed := make(map[string]bool, len(resources))
	for _, r := range resources {
		allowed[r.ID] = true
	}
	return allowed, true, nil
}

// runRetrievers scatter-gathers the three retrievers. A single retriever
// failure is logged and excluded (its weight is renormalized away by the
// caller); if every retriever fails, RetrievalUnavailable is returned.
func (e *Engine) runRetrievers(ctx context.Context, queryText string, limit int, allowed map[string]bool) (map[string]map[string]int, error) {
	if queryText == "" {
		return map[string]map[string]int{}, nil
	}

	type outcome struct {
		name string
		ids  []string
		err  error
	}
	retrievers := []Retriever{e.Lexical, e.Dense, e.Sparse}
	outcomes := make([]outcome, len(retrievers))

	g, gCtx := errgroup.WithContext(ctx)
	for i, r := range retrievers {
		i, r := i, r
		if r == nil {
			continue
		}
		g.Go(func() error {
			ids, err := r.Search(gCtx, queryText, limit, allowed)
			outcomes[i] = outcome{name: r.Name(), ids: ids, err: err}
			return nil
		})
	}
	_ = g.Wait()

	ranks := make(map[string]map[string]int)
	failures := 0
	attempted := 0
	for _, o := range outcomes {
		if o.name == "" {
			continue
		}
		attempted++
		if o.err != nil {
			failures++
			e.logger().Warn("retriever failed, proceeding with remaining retrievers", "retriever", o.name, "error", o.err)
			metrics.RecordRetrieverFailure(o.name)
			continue
		}
		ranks[o.name] = ranksFromOrderedIDs(o.ids, limit)
	}
	if attempted > 0 && failures == attempted {
		return nil, apperr.RetrievalUnavailable("all retrievers failed", nil)
	}
	return ranks, nil
}

// renormalize drops weight entries for retrievers that produced no ranks
// (failed or not configured) and rescales the rest to sum to their
// original total, so a missing retriever does not silently shrink every
// fused score.
func renormalize(weights map[string]float64, ranks map[string]map[string]int) map[string]float64 {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	available := 0.0
	for m, w := range weights {
		if _, ok := ranks[m]; ok {
			available += w
		}
	}
	if available == 0 || available == total {
		return weights
	}
	scale := total / available
	out := make(map[string]float64, len(weights))
	for m, w := range weights {
		if _, ok := ranks[m]; ok {
			out[m] = w * scale
		}
	}
	return out
}

func ranksPerMethod(ranksByMethod map[string]map[string]int, id string) map[string]int {
	out := make(map[string]int)
	for method, ranks := range ranksByMethod {
		if rank, ok := ranks[id]; ok {
			out[method] = rank
		}
	}
	return out
}

func (e *Engine) loadResources(ctx context.Context, ids []string) (map[string]*storeResource, error) {
	out := make(map[string]*storeResource, len(ids))
	for _, id := range ids {
		r, err := e.Store.GetResource(ctx, id)
		if err != nil {
			continue
		}
		out[id] = &storeResource{
			QualityOverall:     r.QualityOverall,
			CreatedAt:          r.CreatedAt,
			UpdatedAt:          r.UpdatedAt,
			Subject:            r.Subject,
			ClassificationCode: r.ClassificationCode,
		}
	}
	return out, nil
}

// sortByFusedThenTieBreak orders by descending fused score, breaking ties
// per spec.md §4.7: higher quality_overall, then newer updated_at, then
// lexicographic id.
func sortByFusedThenTieBreak(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.FusedScore != b.FusedScore {
			return a.FusedScore > b.FusedScore
		}
		aq, bq := qualityOf(a.Resource), qualityOf(b.Resource)
		if aq != bq {
			return aq > bq
		}
		at, bt := updatedAtOf(a.Resource), updatedAtOf(b.Resource)
		if !at.Equal(bt) {
			return at.After(bt)
		}
		return a.ResourceID < b.ResourceID
	})
}

func qualityOf(r *storeResource) float64 {
	if r == nil || r.QualityOverall == nil {
		return -1
	}
	return *r.QualityOverall
}

func updatedAtOf(r *storeResource) time.Time {
	if r == nil {
		return time.Time{}
	}
	return r.UpdatedAt
}

func sortByColumn(results []Result, sortBy, dir string) {
	desc := dir != "asc"
	less := func(i, j int) bool {
		a, b := results[i], results[j]
		switch sortBy {
		case "quality_overall":
			return qualityOf(a.Resource) < qualityOf(b.Resource)
		case "created_at":
			var at, bt time.Time
			if a.Resource != nil {
				at = a.Resource.CreatedAt
			}
			if b.Resource != nil {
				bt = b.Resource.CreatedAt
			}
			return at.Before(bt)
		case "updated_at":
			return updatedAtOf(a.Resource).Before(updatedAtOf(b.Resource))
		default:
			return a.ResourceID < b.ResourceID
		}
	}
	if desc {
		sort.SliceStable(results, func(i, j int) bool { return less(j, i) })
	} else {
		sort.SliceStable(results, less)
	}
}

func (e *Engine) applyReranker(ctx context.Context, queryText string, results []Result, rerankTop int) []Result {
	if rerankTop > len(results) {
		rerankTop = len(results)
	}
	prefix := results[:rerankTop]
	ids := make([]string, len(prefix))
	byID := make(map[string]Result, len(prefix))
	for i, r := range prefix {
		ids[i] = r.ResourceID
		byID[r.ResourceID] = r
	}

	reranked, err := e.Reranker.Rerank(ctx, queryText, ids)
	if err != nil {
		e.logger().Warn("reranker failed, keeping fused order", "error", err)
		metrics.RecordRerankerFallback()
		return results
	}

	out := make([]Result, 0, len(results))
	for i, id := range reranked {
		r := byID[id]
		score := float64(len(reranked) - i)
		r.RerankerScore = &score
		out = append(out, r)
	}
	out = append(out, results[rerankTop:]...)
	return out
}

func computeFacets(results []Result) map[string][]Facet {
	subjectCounts := make(map[string]int)
	classCounts := make(map[string]int)
	for _, r := range results {
		if r.Resource == nil {
			continue
		}
		for _, s := range r.Resource.Subject {
			subjectCounts[s]++
		}
		if r.Resource.ClassificationCode != "" {
			classCounts[r.Resource.ClassificationCode]++
		}
	}
	return map[string][]Facet{
		"subject":             toFacets(subjectCounts),
		"classification_code": toFacets(classCounts),
	}
}

func toFacets(counts map[string]int) []Facet {
	out := make([]Facet, 0, len(counts))
	for v, c := range counts {
		out = append(out, Facet{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out
}
