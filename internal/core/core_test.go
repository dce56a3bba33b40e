package core

import (
	"testing"
	"time"
)

func TestResourceCreation(t *testing.T) {
	now := time.Now()
	overall := 0.8
	r := Resource{
		ID:              "res-1",
		Source:          "https://example.com/article",
		Title:           "Example",
		Subject:         []string{"go", "testing"},
		IngestionStatus: StatusPending,
		QualityOverall:  &overall,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if r.ID != "res-1" {
		t.Errorf("expected ID res-1, got %s", r.ID)
	}
	if r.IngestionStatus != StatusPending {
		t.Errorf("expected status pending, got %s", r.IngestionStatus)
	}
	if r.QualityOverall == nil || *r.QualityOverall != 0.8 {
		t.Errorf("expected quality overall 0.8, got %v", r.QualityOverall)
	}
	if len(r.Subject) != 2 {
		t.Errorf("expected 2 subjects, got %d", len(r.Subject))
	}
}

func TestCitationNullableTarget(t *testing.T) {
	c := Citation{
		ID:               "cit-1",
		SourceResourceID: "res-1",
		TargetURL:        "https://other.example.com",
		CitationType:     CitationReference,
	}
	if c.TargetResourceID != nil {
		t.Errorf("expected nil target resource id for unresolved citation")
	}

	target := "res-2"
	c.TargetResourceID = &target
	if c.TargetResourceID == nil || *c.TargetResourceID != "res-2" {
		t.Errorf("expected resolved target resource id res-2")
	}
}

func TestIngestionJobLifecycleFields(t *testing.T) {
	j := IngestionJob{
		ID:           "job-1",
		ResourceID:   "res-1",
		State:        StatusPending,
		AttemptCount: 0,
		CreatedAt:    time.Now(),
	}
	if j.StartedAt != nil || j.CompletedAt != nil {
		t.Errorf("new job should have nil StartedAt/CompletedAt")
	}
}
