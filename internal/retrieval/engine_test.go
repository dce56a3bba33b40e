package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"neoalexandria/internal/apperr"
	"neoalexandria/internal/core"
	"neoalexandria/internal/store"
)

type fakeRetriever struct {
	name string
	ids  []string
	err  error
}

func (f *fakeRetriever) Name() string { return f.name }
func (f *fakeRetriever) Search(context.Context, string, int, map[string]bool) ([]string, error) {
	return f.ids, f.err
}

func newTestStoreWithResources(t *testing.T, resources []*core.Resource) store.Store {
	t.Helper()
	st, err := store.NewSQLiteStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	for _, r := range resources {
		if err := st.PutResource(context.Background(), r); err != nil {
			t.Fatalf("PutResource failed: %v", err)
		}
	}
	return st
}

func TestEngineSearchTieBreaksByQualityThenRecencyThenID(t *testing.T) {
	now := time.Now().UTC()
	older := now.Add(-time.Hour)
	qHigh := 0.9
	qLow := 0.1

	resA := &core.Resource{ID: "r-a", Source: "https://x/a", IngestionStatus: core.StatusCompleted, QualityOverall: &qLow, UpdatedAt: older, CreatedAt: older}
	resB := &core.Resource{ID: "r-b", Source: "https://x/b", IngestionStatus: core.StatusCompleted, QualityOverall: &qHigh, UpdatedAt: older, CreatedAt: older}
	resC := &core.Resource{ID: "r-c", Source: "https://x/c", IngestionStatus: core.StatusCompleted, QualityOverall: &qHigh, UpdatedAt: now, CreatedAt: now}

	st := newTestStoreWithResources(t, []*core.Resource{resA, resB, resC})

	lex := &fakeRetriever{name: "lexical", ids: []string{"r-a", "r-b", "r-c"}}
	engine := &Engine{
		Store:   st,
		Lexical: lex,
		Dense:   &fakeRetriever{name: "dense", ids: []string{"r-a", "r-b", "r-c"}},
		Sparse:  &fakeRetriever{name: "sparse", ids: []string{"r-a", "r-b", "r-c"}},
		Cfg:     Config{RRFK: 60, DefaultHybridWeight: 1.0 / 3},
	}

	resp, err := engine.Search(context.Background(), SearchRequest{Text: "topic", Limit: 10})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(resp.Results))
	}
	// All three tie on fused score (identical ranks across all three
	// retrievers); tie-break must put higher quality first, and among
	// equal quality, the more recently updated resource first.
	if resp.Results[0].ResourceID != "r-c" {
		t.Errorf("expected r-c first (high quality, most recent), got %s", resp.Results[0].ResourceID)
	}
	if resp.Results[1].ResourceID != "r-b" {
		t.Errorf("expected r-b second (high quality, older), got %s", resp.Results[1].ResourceID)
	}
	if resp.Results[2].ResourceID != "r-a" {
		t.Errorf("expected r-a last (low quality), got %s", resp.Results[2].ResourceID)
	}
}

func TestEngineSearchAllRetrieversFailReturnsRetrievalUnavailable(t *testing.T) {
	st := newTestStoreWithResources(t, nil)
	engine := &Engine{
		Store:   st,
		Lexical: &fakeRetriever{name: "lexical", err: errors.New("boom")},
		Dense:   &fakeRetriever{name: "dense", err: errors.New("boom")},
		Sparse:  &fakeRetriever{name: "sparse", err: errors.New("boom")},
		Cfg:     Config{RRFK: 60, DefaultHybridWeight: 0.5},
	}

	_, err := engine.Search(context.Background(), SearchRequest{Text: "topic", Limit: 10})
	if err == nil {
		t.Fatal("expected an error when every retriever fails")
	}
	kind, ok := apperr.ClassifyKind(err)
	if !ok || kind != apperr.KindRetrievalUnavailable {
		t.Errorf("expected KindRetrievalUnavailable, got %v (classified=%v)", err, ok)
	}
}

func TestEngineSearchOneRetrieverFailsStillReturnsResults(t *testing.T) {
	res := &core.Resource{ID: "r-a", Source: "https://x/a", IngestionStatus: core.StatusCompleted, UpdatedAt: time.Now().UTC()}
	st := newTestStoreWithResources(t, []*core.Resource{res})

	engine := &Engine{
		Store:   st,
		Lexical: &fakeRetriever{name: "lexical", ids: []string{"r-a"}},
		Dense:   &fakeRetriever{name: "dense", err: errors.New("model unavailable")},
		Sparse:  &fakeRetriever{name: "sparse", ids: []string{"r-a"}},
		Cfg:     Config{RRFK: 60, DefaultHybridWeight: 1.0 / 3},
	}

	resp, err := engine.Search(context.Background(), SearchRequest{Text: "topic", Limit: 10})
	if err != nil {
		t.Fatalf("expected the engine to proceed with the remaining retrievers, got: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].ResourceID != "r-a" {
		t.Errorf("expected 1 result for r-a, got %v", resp.Results)
	}
}

func TestEngineSearchFilterWithNoCandidatesReturnsEmptyWithoutInvokingRetrievers(t *testing.T) {
	st := newTestStoreWithResources(t, nil)
	invoked := false
	lex := &fakeRetrieverFunc{fn: func() { invoked = true }}
	engine := &Engine{
		Store:   st,
		Lexical: lex,
		Dense:   lex,
		Sparse:  lex,
		Cfg:     Config{RRFK: 60, DefaultHybridWeight: 0.5},
	}

	resp, err := engine.Search(context.Background(), SearchRequest{
		Text:    "topic",
		Filters: store.ListFilter{ClassificationCode: "999.9"},
		Limit:   10,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("expected no results for an unsatisfiable filter, got %v", resp.Results)
	}
	if invoked {
		t.Error("expected retrievers not to be invoked when the filter yields zero candidates")
	}
}

type fakeRetrieverFunc struct {
	fn func()
}

func (f *fakeRetrieverFunc) Name() string { return "fake" }
func (f *fakeRetrieverFunc) Search(context.Context, string, int, map[string]bool) ([]string, error) {
	f.fn()
	return nil, nil
}

// TestEngineSearchEmptyQueryAndEmptyFiltersReturnsEmpty exercises spec.md
// §8's boundary case: empty query text plus no filter must short-circuit
// to an empty, zero-facet result without invoking any retriever.
func TestEngineSearchEmptyQueryAndEmptyFiltersReturnsEmpty(t *testing.T) {
	st := newTestStoreWithResources(t, nil)
	invoked := false
	lex := &fakeRetrieverFunc{fn: func() { invoked = true }}
	engine := &Engine{
		Store:   st,
		Lexical: lex,
		Dense:   lex,
		Sparse:  lex,
		Cfg:     Config{RRFK: 60, DefaultHybridWeight: 0.5},
	}

	resp, err := engine.Search(context.Background(), SearchRequest{Limit: 10})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(resp.Results) != 0 || resp.Total != 0 {
		t.Errorf("expected empty result for empty query + empty filters, got %v", resp.Results)
	}
	if invoked {
		t.Error("expected retrievers not to be invoked for an empty query")
	}
}

// TestEngineSearchEmptyQueryWithFilterReturnsFilteredSetSortedByUpdatedAt
// exercises spec.md §4.7's edge case: an empty query with a filter set
// still returns the filtered candidate set, sorted by sort_by (default
// updated_at desc) rather than an empty result.
func TestEngineSearchEmptyQueryWithFilterReturnsFilteredSetSortedByUpdatedAt(t *testing.T) {
	now := time.Now().UTC()
	older := now.Add(-time.Hour)

	resOld := &core.Resource{ID: "r-old", Source: "https://x/old", IngestionStatus: core.StatusCompleted, ClassificationCode: "004", UpdatedAt: older}
	resNew := &core.Resource{ID: "r-new", Source: "https://x/new", IngestionStatus: core.StatusCompleted, ClassificationCode: "004", UpdatedAt: now}
	resOther := &core.Resource{ID: "r-other", Source: "https://x/other", IngestionStatus: core.StatusCompleted, ClassificationCode: "500", UpdatedAt: now}

	st := newTestStoreWithResources(t, []*core.Resource{resOld, resNew, resOther})
	invoked := false
	lex := &fakeRetrieverFunc{fn: func() { invoked = true }}
	engine := &Engine{
		Store:   st,
		Lexical: lex,
		Dense:   lex,
		Sparse:  lex,
		Cfg:     Config{RRFK: 60, DefaultHybridWeight: 0.5},
	}

	resp, err := engine.Search(context.Background(), SearchRequest{
		Filters: store.ListFilter{ClassificationCode: "004"},
		Limit:   10,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if invoked {
		t.Error("expected retrievers not to be invoked for an empty query")
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 filtered results, got %d: %v", len(resp.Results), resp.Results)
	}
	if resp.Results[0].ResourceID != "r-new" || resp.Results[1].ResourceID != "r-old" {
		t.Errorf("expected [r-new, r-old] sorted by updated_at desc, got %v", resp.Results)
	}
}
