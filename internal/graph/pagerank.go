package graph

import (
	"context"

	"neoalexandria/internal/config"
	"neoalexandria/internal/core"
	"neoalexandria/internal/store"
)

// PageRankConfig controls the offline citation-importance batch job of
// spec.md §4.8: damping 0.85, max 100 iterations, convergence 1e-6.
type PageRankConfig struct {
	Damping     float64
	MaxIter     int
	Convergence float64
}

// PageRankConfigFromGraph maps internal/config.Graph onto PageRankConfig,
// applying spec.md's defaults for any zero-valued field.
func PageRankConfigFromGraph(c config.Graph) PageRankConfig {
	cfg := PageRankConfig{
		Damping:     c.PageRankDamping,
		MaxIter:     c.PageRankMaxIter,
		Convergence: c.PageRankConvergence,
	}
	if cfg.Damping == 0 {
		cfg.Damping = 0.85
	}
	if cfg.MaxIter == 0 {
		cfg.MaxIter = 100
	}
	if cfg.Convergence == 0 {
		cfg.Convergence = 1e-6
	}
	return cfg
}

// Ranker computes citation importance via PageRank and persists it back
// onto each resolved citation edge's ImportanceScore, per spec.md §4.8
// ("Citation importance... written to importance_score. Computation is
// offline/batched; the retrieval path reads the stored value.").
type Ranker struct {
	Store store.Store
	Cfg   PageRankConfig
}

// NewRanker constructs a Ranker with PageRank parameters sourced from cfg.
func NewRanker(st store.Store, cfg config.Graph) *Ranker {
	return &Ranker{Store: st, Cfg: PageRankConfigFromGraph(cfg)}
}

// Run computes PageRank over every resolved citation edge (nullable
// TargetResourceID edges are excluded — they reference an external URL,
// not a node in this graph) and writes the normalized score back onto
// each citation pointing at that node. It tolerates cycles and dangling
// nodes via uniform teleportation, per spec.md §9.
func (r *Ranker) Run(ctx context.Context) error {
	citations, err := r.Store.ListAllCitations(ctx)
	if err != nil {
		return err
	}

	scores := ComputePageRank(citations, r.Cfg)
	if len(scores) == 0 {
		return nil
	}

	for i := range citations {
		c := citations[i]
		if c.TargetResourceID == nil {
			continue
		}
		score, ok := scores[*c.TargetResourceID]
		if !ok {
			continue
		}
		c.ImportanceScore = &score
		if err := r.Store.UpsertCitation(ctx, &c); err != nil {
			return err
		}
	}
	return nil
}

// ComputePageRank runs the power-iteration PageRank algorithm over the
// directed graph implied by citations (source -> resolved target),
// returning a score per node normalized to [0,1]. Nodes with no outgoing
// resolved edges ("dangling") distribute their mass uniformly across all
// nodes each iteration, which is also how cycles are tolerated: there is
// no recursive traversal, only fixed-point iteration.
func ComputePageRank(citations []core.Citation, cfg PageRankConfig) map[string]float64 {
	nodes := make(map[string]bool)
	outEdges := make(map[string][]string)
	for _, c := range citations {
		nodes[c.SourceResourceID] = true
		if c.TargetResourceID == nil {
			continue
		}
		target := *c.TargetResourceID
		nodes[target] = true
		outEdges[c.SourceResourceID] = append(outEdges[c.SourceResourceID], target)
	}
	n := len(nodes)
	if n == 0 {
		return nil
	}

	ids := make([]string, 0, n)
	for id := range nodes {
		ids = append(ids, id)
	}

	rank := make(map[string]float64, n)
	for _, id := range ids {
		rank[id] = 1.0 / float64(n)
	}

	d := cfg.Damping
	teleport := (1 - d) / float64(n)

	for iter := 0; iter < cfg.MaxIter; iter++ {
		next := make(map[string]float64, n)
		danglingMass := 0.0
		for _, id := range ids {
			next[id] = teleport
			if len(outEdges[id]) == 0 {
				danglingMass += rank[id]
			}
		}
		danglingShare := d * danglingMass / float64(n)
		for _, id := range ids {
			next[id] += danglingShare
		}
		for _, id := range ids {
			outs := outEdges[id]
			if len(outs) == 0 {
				continue
			}
			share := d * rank[id] / float64(len(outs))
			for _, target := range outs {
				next[target] += share
			}
		}

		delta := 0.0
		for _, id := range ids {
			diff := next[id] - rank[id]
			if diff < 0 {
				diff = -diff
			}
			delta += diff
		}
		rank = next
		if delta < cfg.Convergence {
			break
		}
	}

	return normalize(rank)
}

// normalize rescales scores into [0,1] by dividing by the maximum value,
// so the top-ranked node always reads 1.0 regardless of graph size.
func normalize(rank map[string]float64) map[string]float64 {
	max := 0.0
	for _, v := range rank {
		if v > max {
			max = v
		}
	}
	if max == 0 {
		return rank
	}
	out := make(map[string]float64, len(rank))
	for id, v := range rank {
		out[id] = v / max
	}
	return out
}
