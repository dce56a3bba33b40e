package vectorindex

import (
	"context"
	"math"
	"testing"
)

func TestCosineSimilarityIdenticalVectors(t *testing.T) {
	v := []float64{1, 2, 3}
	sim := CosineSimilarity(v, v)
	if math.Abs(sim-1.0) > 1e-9 {
		t.Errorf("expected similarity 1.0 for identical vectors, got %f", sim)
	}
}

func TestCosineSimilarityOrthogonalVectors(t *testing.T) {
	sim := CosineSimilarity([]float64{1, 0}, []float64{0, 1})
	if math.Abs(sim) > 1e-9 {
		t.Errorf("expected similarity 0 for orthogonal vectors, got %f", sim)
	}
}

func TestCosineSimilarityMismatchedLengths(t *testing.T) {
	if sim := CosineSimilarity([]float64{1, 2}, []float64{1}); sim != 0 {
		t.Errorf("expected 0 for mismatched lengths, got %f", sim)
	}
}

func TestMemoryIndexSearchOrdersByDescendingSimilarity(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	_ = idx.Add(ctx, "close", []float64{1, 0, 0})
	_ = idx.Add(ctx, "far", []float64{0, 1, 0})
	_ = idx.Add(ctx, "exact", []float64{2, 0, 0})

	results, err := idx.Search(ctx, []float64{1, 0, 0}, 10, 0.0, nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].ResourceID != "exact" && results[0].ResourceID != "close" {
		t.Errorf("expected exact or close to rank first, got %s", results[0].ResourceID)
	}
	if results[len(results)-1].ResourceID != "far" {
		t.Errorf("expected far to rank last, got %s", results[len(results)-1].ResourceID)
	}
}

func TestMemoryIndexSearchEnforcesSimilarityFloor(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	_ = idx.Add(ctx, "a", []float64{1, 0})
	_ = idx.Add(ctx, "b", []float64{0, 1})

	results, err := idx.Search(ctx, []float64{1, 0}, 10, 0.85, nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].ResourceID != "a" {
		t.Errorf("expected only 'a' to pass the 0.85 similarity floor, got %+v", results)
	}
}

func TestMemoryIndexRemove(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	_ = idx.Add(ctx, "a", []float64{1, 0})
	_ = idx.Remove(ctx, "a")

	results, err := idx.Search(ctx, []float64{1, 0}, 10, 0.0, nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results after remove, got %+v", results)
	}
}

func TestMemoryIndexSearchAppliesAllowedFilter(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	_ = idx.Add(ctx, "a", []float64{1, 0})
	_ = idx.Add(ctx, "b", []float64{1, 0})

	results, err := idx.Search(ctx, []float64{1, 0}, 10, 0.0, map[string]bool{"b": true})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].ResourceID != "b" {
		t.Errorf("expected only 'b', got %+v", results)
	}
}

func TestFormatVectorRendersPgvectorLiteral(t *testing.T) {
	got := formatVector([]float64{0.1, 0.2, 0.3})
	want := "[0.1,0.2,0.3]"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestFormatVectorEmpty(t *testing.T) {
	if got := formatVector(nil); got != "[]" {
		t.Errorf("expected [], got %q", got)
	}
}
