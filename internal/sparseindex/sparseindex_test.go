package sparseindex

import "testing"

func TestSearchRanksByInnerProduct(t *testing.T) {
	idx := New()
	idx.Add("high", map[int]float64{1: 1.0, 2: 1.0})
	idx.Add("low", map[int]float64{1: 0.1})
	idx.Add("none", map[int]float64{99: 1.0})

	matches := idx.Search(map[int]float64{1: 1.0, 2: 1.0}, 10, nil)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches (none shares no tokens), got %+v", matches)
	}
	if matches[0].ResourceID != "high" {
		t.Errorf("expected high to rank first, got %s", matches[0].ResourceID)
	}
	if matches[0].Score != 1.0 {
		t.Errorf("expected top match normalized to 1.0, got %f", matches[0].Score)
	}
}

func TestSearchRespectsLimit(t *testing.T) {
	idx := New()
	for i, id := range []string{"a", "b", "c"} {
		idx.Add(id, map[int]float64{1: float64(i + 1)})
	}
	matches := idx.Search(map[int]float64{1: 1.0}, 2, nil)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
}

func TestSearchAppliesAllowedFilter(t *testing.T) {
	idx := New()
	idx.Add("a", map[int]float64{1: 1.0})
	idx.Add("b", map[int]float64{1: 1.0})

	matches := idx.Search(map[int]float64{1: 1.0}, 10, map[string]bool{"b": true})
	if len(matches) != 1 || matches[0].ResourceID != "b" {
		t.Errorf("expected only b, got %+v", matches)
	}
}

func TestRemoveDeletesFromIndex(t *testing.T) {
	idx := New()
	idx.Add("a", map[int]float64{1: 1.0})
	idx.Remove("a")

	if matches := idx.Search(map[int]float64{1: 1.0}, 10, nil); len(matches) != 0 {
		t.Errorf("expected no matches after remove, got %+v", matches)
	}
}

func TestSearchEmptyQueryReturnsNil(t *testing.T) {
	idx := New()
	idx.Add("a", map[int]float64{1: 1.0})
	if matches := idx.Search(nil, 10, nil); matches != nil {
		t.Errorf("expected nil for empty query, got %+v", matches)
	}
}

func TestReaddingResourceReplacesVector(t *testing.T) {
	idx := New()
	idx.Add("a", map[int]float64{1: 1.0})
	idx.Add("a", map[int]float64{2: 1.0})

	if matches := idx.Search(map[int]float64{1: 1.0}, 10, nil); len(matches) != 0 {
		t.Errorf("expected token 1 to no longer match after re-add, got %+v", matches)
	}
	if matches := idx.Search(map[int]float64{2: 1.0}, 10, nil); len(matches) != 1 {
		t.Errorf("expected token 2 to match after re-add, got %+v", matches)
	}
}

func TestSearchSkipsZeroWeightEntries(t *testing.T) {
	idx := New()
	idx.Add("a", map[int]float64{1: 0.0, 2: 1.0})

	if matches := idx.Search(map[int]float64{1: 1.0}, 10, nil); len(matches) != 0 {
		t.Errorf("expected zero-weight token to be dropped on add, got %+v", matches)
	}
}
