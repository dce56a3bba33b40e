// Package recommend implements the recommendation composer listed in
// spec.md §2's Auxiliary set: a profile vector (a collection's aggregate
// embedding) combined with the graph's hybrid relationship score to rank
// candidate resources. Grounded on the teacher's internal/relevance
// (ScoringWeights profile concept, internal/relevance/profiles.go)
// generalized from a fixed content-type profile to a per-collection one.
package recommend

import (
	"context"
	"sort"

	"neoalexandria/internal/core"
	"neoalexandria/internal/graph"
	"neoalexandria/internal/store"
)

// Composer ranks candidate resources against a collection's profile.
type Composer struct {
	Store  store.Store
	Finder *graph.Finder
}

func NewComposer(st store.Store, finder *graph.Finder) *Composer {
	return &Composer{Store: st, Finder: finder}
}

// RecomputeCollectionEmbedding implements spec.md invariant 5: a
// Collection's embedding equals the arithmetic mean of its members'
// non-null embeddings, or null if empty or all-null. Idempotent:
// recomputing twice with unchanged membership yields the same vector.
func (c *Composer) RecomputeCollectionEmbedding(ctx context.Context, collectionID string) error {
	coll, err := c.Store.GetCollection(ctx, collectionID)
	if err != nil {
		return err
	}
	members, err := c.Store.ListCollectionResources(ctx, collectionID)
	if err != nil {
		return err
	}
	coll.Embedding = meanEmbedding(members)
	return c.Store.PutCollection(ctx, coll)
}

// meanEmbedding computes the arithmetic mean of the non-null embeddings
// among resources, ignoring nulls, per spec.md §9 "Aggregate embeddings".
func meanEmbedding(resources []core.Resource) []float64 {
	var sum []float64
	count := 0
	for _, r := range resources {
		if r.Embedding == nil {
			continue
		}
		if sum == nil {
			sum = make([]float64, len(r.Embedding))
		}
		if len(r.Embedding) != len(sum) {
			continue
		}
		for i, v := range r.Embedding {
			sum[i] += v
		}
		count++
	}
	if count == 0 {
		return nil
	}
	for i := range sum {
		sum[i] /= float64(count)
	}
	return sum
}

// profileResource synthesizes the Collection's profile as a core.Resource
// so it can be passed through graph.Finder's hybrid relationship score
// alongside the candidate resources, without duplicating the scoring
// formula here.
func profileResource(coll *core.Collection, members []core.Resource) *core.Resource {
	subjectCounts := make(map[string]int)
	classCounts := make(map[string]int)
	for _, m := range members {
		for _, s := range m.Subject {
			subjectCounts[s]++
		}
		if m.ClassificationCode != "" {
			classCounts[m.ClassificationCode]++
		}
	}
	return &core.Resource{
		ID:                 "profile:" + coll.ID,
		Embedding:          coll.Embedding,
		Subject:            topKeys(subjectCounts, len(subjectCounts)),
		ClassificationCode: mostCommon(classCounts),
	}
}

func topKeys(counts map[string]int, limit int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys
}

func mostCommon(counts map[string]int) string {
	best, bestCount := "", 0
	for k, c := range counts {
		if c > bestCount || (c == bestCount && (best == "" || k < best)) {
			best, bestCount = k, c
		}
	}
	return best
}

// Recommend ranks candidates (typically all completed resources not
// already in the collection) against the collection's profile vector
// using the same hybrid relationship score as graph neighbor discovery,
// and returns the top-limit.
func (c *Composer) Recommend(ctx context.Context, collectionID string, candidates []core.Resource, limit int) ([]graph.Neighbor, error) {
	coll, err := c.Store.GetCollection(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	members, err := c.Store.ListCollectionResources(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	profile := profileResource(coll, members)

	memberIDs := make(map[string]bool, len(members))
	for _, m := range members {
		memberIDs[m.ID] = true
	}
	filtered := make([]core.Resource, 0, len(candidates))
	for _, cand := range candidates {
		if !memberIDs[cand.ID] {
			filtered = append(filtered, cand)
		}
	}

	return c.Finder.Neighbors(ctx, profile, filtered, limit), nil
}
