package annotation

import (
	"context"
	"testing"

	"neoalexandria/internal/apperr"
	"neoalexandria/internal/core"
	"neoalexandria/internal/store"
)

// newTestService seeds a single resource "r1" (annotations carry a
// foreign key to resources) and returns a Service over that store; tests
// pass "r1" as CreateInput.ResourceID.
func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := store.NewSQLiteStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.PutResource(context.Background(), &core.Resource{
		ID: "r1", Source: "https://example.com/r1", IngestionStatus: core.StatusCompleted,
	}); err != nil {
		t.Fatalf("seeding resource failed: %v", err)
	}
	return NewService(st, nil)
}

func TestCreateRejectsStartEqualsEnd(t *testing.T) {
	s := newTestService(t)
	_, err := s.Create(context.Background(), CreateInput{
		ResourceID: "r1", OwnerID: "u1",
		StartOffset: 5, EndOffset: 5, TextLength: 100,
	})
	assertValidationError(t, err, "start_offset must be < end_offset")
}

func TestCreateRejectsEndPastTextLength(t *testing.T) {
	s := newTestService(t)
	_, err := s.Create(context.Background(), CreateInput{
		ResourceID: "r1", OwnerID: "u1",
		StartOffset: 0, EndOffset: 101, TextLength: 100,
	})
	assertValidationError(t, err, "end_offset must be <= len(text)")
}

func TestCreateRejectsNegativeStart(t *testing.T) {
	s := newTestService(t)
	_, err := s.Create(context.Background(), CreateInput{
		ResourceID: "r1", OwnerID: "u1",
		StartOffset: -1, EndOffset: 10, TextLength: 100,
	})
	assertValidationError(t, err, "start_offset must be >= 0")
}

func TestCreateRejectsTooManyTags(t *testing.T) {
	s := newTestService(t)
	tags := make([]string, 21)
	for i := range tags {
		tags[i] = "t"
	}
	_, err := s.Create(context.Background(), CreateInput{
		ResourceID: "r1", OwnerID: "u1",
		StartOffset: 0, EndOffset: 10, TextLength: 100, Tags: tags,
	})
	assertValidationError(t, err, "at most 20 tags")
}

func TestCreateRejectsOverlongTag(t *testing.T) {
	s := newTestService(t)
	longTag := make([]byte, 51)
	for i := range longTag {
		longTag[i] = 'a'
	}
	_, err := s.Create(context.Background(), CreateInput{
		ResourceID: "r1", OwnerID: "u1",
		StartOffset: 0, EndOffset: 10, TextLength: 100, Tags: []string{string(longTag)},
	})
	assertValidationError(t, err, "tags must be <= 50")
}

func TestCreateRejectsInvalidColor(t *testing.T) {
	s := newTestService(t)
	_, err := s.Create(context.Background(), CreateInput{
		ResourceID: "r1", OwnerID: "u1",
		StartOffset: 0, EndOffset: 10, TextLength: 100, Color: "red",
	})
	assertValidationError(t, err, "7-character hex")
}

func TestCreateSucceedsWithValidInput(t *testing.T) {
	s := newTestService(t)
	a, err := s.Create(context.Background(), CreateInput{
		ResourceID: "r1", OwnerID: "u1",
		StartOffset: 0, EndOffset: 10, TextLength: 100,
		HighlightedText: "hello", Tags: []string{"a", "b", "a"}, Color: "#a1b2c3",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if a.ID == "" {
		t.Error("expected a generated ID")
	}
	if len(a.Tags) != 2 {
		t.Errorf("expected duplicate tags deduped to 2, got %v", a.Tags)
	}
}

func TestUpdateReappliesInvariants(t *testing.T) {
	s := newTestService(t)
	a, err := s.Create(context.Background(), CreateInput{
		ResourceID: "r1", OwnerID: "u1",
		StartOffset: 0, EndOffset: 10, TextLength: 100,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	_, err = s.Update(context.Background(), UpdateInput{
		ID: a.ID, StartOffset: 10, EndOffset: 5, TextLength: 100,
	})
	assertValidationError(t, err, "start_offset must be < end_offset")
}

func TestDeleteRemovesAnnotation(t *testing.T) {
	s := newTestService(t)
	a, err := s.Create(context.Background(), CreateInput{
		ResourceID: "r1", OwnerID: "u1",
		StartOffset: 0, EndOffset: 10, TextLength: 100,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Delete(context.Background(), a.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(context.Background(), a.ID); err == nil {
		t.Error("expected Get to fail after Delete")
	}
}

func assertValidationError(t *testing.T, err error, wantSubstring string) {
	t.Helper()
	if err == nil {
		t.Fatal("expected a validation error, got nil")
	}
	kind, ok := apperr.ClassifyKind(err)
	if !ok || kind != apperr.KindValidation {
		t.Fatalf("expected KindValidation, got %v (classified=%v)", err, ok)
	}
	if wantSubstring != "" && !contains(err.Error(), wantSubstring) {
		t.Errorf("expected error to mention %q, got %q", wantSubstring, err.Error())
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
