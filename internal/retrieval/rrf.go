// Package retrieval implements the hybrid query engine of spec.md §4.7:
// parallel scatter-gather over lexical/dense/sparse retrievers, fused via
// Reciprocal Rank Fusion, query-adaptive weighting, optional reranking,
// facets, pagination, and tie-breaking. Grounded on the teacher's
// internal/relevance package (Scorer/Criteria/ScoringWeights shape,
// generalized from single-method keyword scoring to multi-retriever rank
// fusion) and internal/search's adapter-over-several-backends pattern.
package retrieval

// defaultRRFK is spec.md §4.7's fixed RRF smoothing constant, used when
// fuseRRF is called with k <= 0.
const defaultRRFK = 60

// fuseRRF implements `RRF(d) = Σ_m w_m · 1 / (k_rrf + rank_m(d))`. ranks
// maps retriever name -> (resource id -> 1-based rank); a resource absent
// from a retriever's ranks contributes 0 to that retriever's term (spec.md
// §4.7's "missing ranks ... treated as ∞"). Permutation-invariant in the
// order retrievers are iterated, since the sum is commutative.
func fuseRRF(ranks map[string]map[string]int, weights map[string]float64, k int) map[string]float64 {
	if k <= 0 {
		k = defaultRRFK
	}
	scores := make(map[string]float64)
	for method, methodRanks := range ranks {
		w := weights[method]
		if w == 0 {
			continue
		}
		for id, rank := range methodRanks {
			scores[id] += w * (1.0 / float64(k+rank))
		}
	}
	return scores
}

// ranksFromOrderedIDs converts a retriever's ordered result list into a
// 1-based rank map, truncated to at most limit entries.
func ranksFromOrderedIDs(ids []string, limit int) map[string]int {
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make(map[string]int, len(ids))
	for i, id := range ids {
		out[id] = i + 1
	}
	return out
}
