package recommend

import (
	"context"
	"testing"

	"neoalexandria/internal/core"
	"neoalexandria/internal/graph"
	"neoalexandria/internal/store"
)

func newTestComposer(t *testing.T) (*Composer, store.Store) {
	t.Helper()
	st, err := store.NewSQLiteStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	finder := &graph.Finder{Weights: graph.Weights{Vector: 0.6, Tags: 0.3, Classification: 0.1, VectorSimilarityTau: 0.0}}
	return NewComposer(st, finder), st
}

func seedResource(t *testing.T, st store.Store, id string, embedding []float64, subjects ...string) {
	t.Helper()
	r := &core.Resource{
		ID:              id,
		Source:          "https://example.com/" + id,
		IngestionStatus: core.StatusCompleted,
		Embedding:       embedding,
		Subject:         subjects,
	}
	if err := st.PutResource(context.Background(), r); err != nil {
		t.Fatalf("seeding resource %s failed: %v", id, err)
	}
}

func TestRecomputeCollectionEmbeddingIsMeanOfMembers(t *testing.T) {
	composer, st := newTestComposer(t)
	ctx := context.Background()

	seedResource(t, st, "m1", []float64{1, 0, 0})
	seedResource(t, st, "m2", []float64{0, 1, 0})

	if err := st.PutCollection(ctx, &core.Collection{ID: "c1", Name: "test"}); err != nil {
		t.Fatalf("PutCollection failed: %v", err)
	}
	if err := st.AddResourcesToCollection(ctx, "c1", []string{"m1", "m2"}); err != nil {
		t.Fatalf("AddResourcesToCollection failed: %v", err)
	}

	if err := composer.RecomputeCollectionEmbedding(ctx, "c1"); err != nil {
		t.Fatalf("RecomputeCollectionEmbedding failed: %v", err)
	}

	coll, err := st.GetCollection(ctx, "c1")
	if err != nil {
		t.Fatalf("GetCollection failed: %v", err)
	}
	want := []float64{0.5, 0.5, 0}
	if len(coll.Embedding) != len(want) {
		t.Fatalf("expected a 3-dim mean embedding, got %v", coll.Embedding)
	}
	for i := range want {
		if diff := coll.Embedding[i] - want[i]; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("expected mean embedding %v, got %v", want, coll.Embedding)
		}
	}
}

func TestRecomputeCollectionEmbeddingIsNilWhenNoMembersHaveEmbeddings(t *testing.T) {
	composer, st := newTestComposer(t)
	ctx := context.Background()

	seedResource(t, st, "m1", nil)

	if err := st.PutCollection(ctx, &core.Collection{ID: "c1", Name: "test"}); err != nil {
		t.Fatalf("PutCollection failed: %v", err)
	}
	if err := st.AddResourcesToCollection(ctx, "c1", []string{"m1"}); err != nil {
		t.Fatalf("AddResourcesToCollection failed: %v", err)
	}
	if err := composer.RecomputeCollectionEmbedding(ctx, "c1"); err != nil {
		t.Fatalf("RecomputeCollectionEmbedding failed: %v", err)
	}
	coll, err := st.GetCollection(ctx, "c1")
	if err != nil {
		t.Fatalf("GetCollection failed: %v", err)
	}
	if coll.Embedding != nil {
		t.Errorf("expected a nil embedding when no member has one, got %v", coll.Embedding)
	}
}

func TestRecomputeCollectionEmbeddingIsIdempotent(t *testing.T) {
	composer, st := newTestComposer(t)
	ctx := context.Background()

	seedResource(t, st, "m1", []float64{1, 2, 3})

	if err := st.PutCollection(ctx, &core.Collection{ID: "c1", Name: "test"}); err != nil {
		t.Fatalf("PutCollection failed: %v", err)
	}
	if err := st.AddResourcesToCollection(ctx, "c1", []string{"m1"}); err != nil {
		t.Fatalf("AddResourcesToCollection failed: %v", err)
	}

	if err := composer.RecomputeCollectionEmbedding(ctx, "c1"); err != nil {
		t.Fatalf("first RecomputeCollectionEmbedding failed: %v", err)
	}
	first, _ := st.GetCollection(ctx, "c1")

	if err := composer.RecomputeCollectionEmbedding(ctx, "c1"); err != nil {
		t.Fatalf("second RecomputeCollectionEmbedding failed: %v", err)
	}
	second, _ := st.GetCollection(ctx, "c1")

	for i := range first.Embedding {
		if first.Embedding[i] != second.Embedding[i] {
			t.Errorf("expected idempotent recomputation, got %v then %v", first.Embedding, second.Embedding)
		}
	}
}

func TestRecommendExcludesExistingMembers(t *testing.T) {
	composer, st := newTestComposer(t)
	ctx := context.Background()

	seedResource(t, st, "m1", []float64{1, 0, 0}, "go")
	seedResource(t, st, "cand-a", []float64{1, 0, 0}, "go")
	seedResource(t, st, "cand-b", []float64{0, 1, 0}, "cooking")

	if err := st.PutCollection(ctx, &core.Collection{ID: "c1", Name: "test"}); err != nil {
		t.Fatalf("PutCollection failed: %v", err)
	}
	if err := st.AddResourcesToCollection(ctx, "c1", []string{"m1"}); err != nil {
		t.Fatalf("AddResourcesToCollection failed: %v", err)
	}
	if err := composer.RecomputeCollectionEmbedding(ctx, "c1"); err != nil {
		t.Fatalf("RecomputeCollectionEmbedding failed: %v", err)
	}

	candidates := []core.Resource{
		{ID: "m1", Embedding: []float64{1, 0, 0}, Subject: []string{"go"}},
		{ID: "cand-a", Embedding: []float64{1, 0, 0}, Subject: []string{"go"}},
		{ID: "cand-b", Embedding: []float64{0, 1, 0}, Subject: []string{"cooking"}},
	}

	neighbors, err := composer.Recommend(ctx, "c1", candidates, 10)
	if err != nil {
		t.Fatalf("Recommend failed: %v", err)
	}
	for _, n := range neighbors {
		if n.ResourceID == "m1" {
			t.Error("expected existing collection members to be excluded from recommendations")
		}
	}
	if len(neighbors) != 2 {
		t.Fatalf("expected 2 candidate recommendations, got %d", len(neighbors))
	}
	if neighbors[0].ResourceID != "cand-a" {
		t.Errorf("expected cand-a (closer profile match) ranked first, got %s", neighbors[0].ResourceID)
	}
}
