// Package graph implements spec.md §4.8's two graph contracts: a hybrid
// relationship score used for neighbor discovery, and offline PageRank
// over the resolved citation graph. Grounded on the teacher's
// internal/relevance (Scorer/Criteria/ScoringWeights shape, generalized
// from content scoring to a resource-pair similarity score) and
// internal/llm.CosineSimilarity for the vector term.
package graph

import (
	"context"
	"sort"

	"neoalexandria/internal/config"
	"neoalexandria/internal/core"
	"neoalexandria/internal/store"
	"neoalexandria/internal/vectorindex"
)

// Weights controls the hybrid relationship score of spec.md §4.8.
// Defaults mirror spec.md §6's configuration table: w_v=0.6, w_t=0.3,
// w_c=0.1, tau_v=0.85.
type Weights struct {
	Vector              float64
	Tags                float64
	Classification      float64
	VectorSimilarityTau float64
}

// WeightsFromConfig maps internal/config.Graph onto Weights, applying
// spec.md's defaults for any zero-valued field (a Config loaded without
// an explicit graph section yields the documented defaults).
func WeightsFromConfig(c config.Graph) Weights {
	w := Weights{
		Vector:              c.WeightVector,
		Tags:                c.WeightTags,
		Classification:      c.WeightClassification,
		VectorSimilarityTau: c.VectorSimilarityTau,
	}
	if w.Vector == 0 && w.Tags == 0 && w.Classification == 0 {
		w.Vector, w.Tags, w.Classification = 0.6, 0.3, 0.1
	}
	if w.VectorSimilarityTau == 0 {
		w.VectorSimilarityTau = 0.85
	}
	return w
}

// Neighbor is one scored relationship, with its contributing signals
// broken out for the API's `signals` field (spec.md §6's
// `/graph/resource/{id}/neighbors` response shape).
type Neighbor struct {
	ResourceID string
	Score      float64
	Signals    Signals
}

// Signals is the per-term breakdown of a Neighbor's Score.
type Signals struct {
	VectorSimilarity    float64
	VectorTermApplied   bool // true iff VectorSimilarity >= tau_v
	TagJaccard          float64
	SameClassification  bool
}

// Finder discovers graph neighbors for a resource via the hybrid
// relationship score.
type Finder struct {
	Store   store.Store
	Vectors vectorindex.Index
	Weights Weights
}

// NewFinder constructs a Finder with weights sourced from cfg.
func NewFinder(st store.Store, vectors vectorindex.Index, cfg config.Graph) *Finder {
	return &Finder{Store: st, Vectors: vectors, Weights: WeightsFromConfig(cfg)}
}

// Neighbors returns the top-limit scored neighbors of resource r among
// candidates, per spec.md §4.8's hybrid relationship score:
//
//	score = w_v · cos(e_a, e_b) · 1[cos >= tau_v]
//	      + w_t · |S_a ∩ S_b| / |S_a ∪ S_b|
//	      + w_c · 1[class_a = class_b]
func (f *Finder) Neighbors(ctx context.Context, r *core.Resource, candidates []core.Resource, limit int) []Neighbor {
	out := make([]Neighbor, 0, len(candidates))
	for _, cand := range candidates {
		if cand.ID == r.ID {
			continue
		}
		n := f.score(r, &cand)
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ResourceID < out[j].ResourceID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (f *Finder) score(a, b *core.Resource) Neighbor {
	cos := vectorindex.CosineSimilarity(a.Embedding, b.Embedding)
	vectorApplied := cos >= f.Weights.VectorSimilarityTau
	vectorTerm := 0.0
	if vectorApplied {
		vectorTerm = f.Weights.Vector * cos
	}

	jaccard := tagJaccard(a.Subject, b.Subject)
	tagTerm := f.Weights.Tags * jaccard

	sameClass := a.ClassificationCode != "" && a.ClassificationCode == b.ClassificationCode
	classTerm := 0.0
	if sameClass {
		classTerm = f.Weights.Classification
	}

	return Neighbor{
		ResourceID: b.ID,
		Score:      vectorTerm + tagTerm + classTerm,
		Signals: Signals{
			VectorSimilarity:   cos,
			VectorTermApplied:  vectorApplied,
			TagJaccard:         jaccard,
			SameClassification: sameClass,
		},
	}
}

// tagJaccard computes |S_a ∩ S_b| / |S_a ∪ S_b|, returning 0 when both
// sets are empty (no signal, not a perfect match).
func tagJaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, s := range a {
		setA[s] = true
	}
	setB := make(map[string]bool, len(b))
	for _, s := range b {
		setB[s] = true
	}
	intersection := 0
	union := make(map[string]bool, len(setA)+len(setB))
	for s := range setA {
		union[s] = true
		if setB[s] {
			intersection++
		}
	}
	for s := range setB {
		union[s] = true
	}
	if len(union) == 0 {
		return 0
	}
	return float64(intersection) / float64(len(union))
}
