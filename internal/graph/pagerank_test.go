package graph

import (
	"context"
	"testing"

	"neoalexandria/internal/config"
	"neoalexandria/internal/core"
	"neoalexandria/internal/store"
)

func strPtr(s string) *string { return &s }

func zeroGraphConfig() config.Graph { return config.Graph{} }

func TestComputePageRankRanksMoreCitedNodeHigher(t *testing.T) {
	// a -> target, b -> target, target -> c: target is cited by two nodes
	// and must outrank its uncited citers a and b. (c is not compared: it
	// receives target's whole outgoing share and ends up above target.)
	citations := []core.Citation{
		{ID: "c1", SourceResourceID: "a", TargetResourceID: strPtr("target")},
		{ID: "c2", SourceResourceID: "b", TargetResourceID: strPtr("target")},
		{ID: "c3", SourceResourceID: "target", TargetResourceID: strPtr("c")},
	}
	scores := ComputePageRank(citations, PageRankConfigFromGraph(zeroGraphConfig()))
	if scores["target"] <= scores["a"] || scores["target"] <= scores["b"] {
		t.Errorf("expected the twice-cited node to outrank its uncited citers, got %v", scores)
	}
	for id, s := range scores {
		if s < 0 || s > 1 {
			t.Errorf("expected normalized score in [0,1] for %q, got %v", id, s)
		}
	}
}

func TestComputePageRankToleratesCycles(t *testing.T) {
	// a -> b -> a is a 2-cycle; the algorithm must converge rather than
	// recurse infinitely.
	citations := []core.Citation{
		{ID: "c1", SourceResourceID: "a", TargetResourceID: strPtr("b")},
		{ID: "c2", SourceResourceID: "b", TargetResourceID: strPtr("a")},
	}
	scores := ComputePageRank(citations, PageRankConfigFromGraph(zeroGraphConfig()))
	if len(scores) != 2 {
		t.Fatalf("expected scores for both cyclic nodes, got %v", scores)
	}
}

func TestComputePageRankHandlesDanglingNodes(t *testing.T) {
	// "sink" has no outgoing edges; its rank mass must still distribute
	// via uniform teleport rather than vanishing or erroring.
	citations := []core.Citation{
		{ID: "c1", SourceResourceID: "a", TargetResourceID: strPtr("sink")},
	}
	scores := ComputePageRank(citations, PageRankConfigFromGraph(zeroGraphConfig()))
	if _, ok := scores["sink"]; !ok {
		t.Fatal("expected a score for the dangling node")
	}
}

func TestComputePageRankEmptyGraphReturnsNil(t *testing.T) {
	scores := ComputePageRank(nil, PageRankConfigFromGraph(zeroGraphConfig()))
	if scores != nil {
		t.Errorf("expected nil scores for an empty citation graph, got %v", scores)
	}
}

// fakeCitationStore is a minimal store.Store covering only what
// Ranker.Run touches, to avoid standing up a full sqlite fixture just to
// exercise the PageRank write-back path.
type fakeCitationStore struct {
	store.Store
	citations []core.Citation
	upserted  []core.Citation
}

func (f *fakeCitationStore) ListAllCitations(context.Context) ([]core.Citation, error) {
	return f.citations, nil
}

func (f *fakeCitationStore) UpsertCitation(_ context.Context, c *core.Citation) error {
	f.upserted = append(f.upserted, *c)
	return nil
}

func TestRankerRunWritesImportanceScoreOntoResolvedEdges(t *testing.T) {
	fake := &fakeCitationStore{citations: []core.Citation{
		{ID: "c1", SourceResourceID: "a", TargetResourceID: strPtr("b")},
		{ID: "c2", SourceResourceID: "b", TargetResourceID: nil, TargetURL: "https://external.example/unresolved"},
	}}
	r := &Ranker{Store: fake, Cfg: PageRankConfigFromGraph(zeroGraphConfig())}

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(fake.upserted) != 1 {
		t.Fatalf("expected exactly one citation upserted (the resolved edge), got %d", len(fake.upserted))
	}
	if fake.upserted[0].ImportanceScore == nil {
		t.Error("expected ImportanceScore to be set on the resolved edge")
	}
}
