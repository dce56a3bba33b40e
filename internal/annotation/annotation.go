// Package annotation implements the CRUD service over spec.md §3's
// Annotation entity, enforcing its span and tag/color invariants at
// create and update time, grounded on the teacher's internal/persistence
// repository-interface-over-Store pattern.
package annotation

import (
	"context"
	"regexp"

	"github.com/google/uuid"

	"neoalexandria/internal/apperr"
	"neoalexandria/internal/core"
	"neoalexandria/internal/store"
)

const (
	maxTags     = 20
	maxTagLen   = 50
	colorRegex0 = `^#[0-9a-fA-F]{6}$`
)

var colorPattern = regexp.MustCompile(colorRegex0)

// Embedder produces an embedding vector for an annotation's note text.
// Annotations with an empty note are never embedded.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Service is the annotation CRUD boundary consumed by the (external) API
// layer.
type Service struct {
	Store    store.Store
	Embedder Embedder // optional; nil disables note embedding
}

func NewService(st store.Store, embedder Embedder) *Service {
	return &Service{Store: st, Embedder: embedder}
}

// CreateInput is the caller-supplied subset of Annotation fields; server-
// controlled fields (ID, timestamps) are assigned here.
type CreateInput struct {
	ResourceID      string
	OwnerID         string
	StartOffset     int
	EndOffset       int
	HighlightedText string
	Note            string
	Tags            []string
	Color           string
	IsShared        bool
	TextLength      int // len(resource's extracted text), for the end-offset bound
}

// Create validates input against spec.md §3/§8's invariants and boundary
// behaviors, then persists the annotation. The parent resource must
// already be completed (spec.md's lifecycle rule: "Citations and
// annotations created after the parent resource reaches completed"),
// which the caller is expected to have checked; Create itself validates
// only the annotation's own fields.
func (s *Service) Create(ctx context.Context, in CreateInput) (*core.Annotation, error) {
	if err := validateSpan(in.StartOffset, in.EndOffset, in.TextLength); err != nil {
		return nil, err
	}
	if err := validateTags(in.Tags); err != nil {
		return nil, err
	}
	if err := validateColor(in.Color); err != nil {
		return nil, err
	}
	if in.ResourceID == "" {
		return nil, apperr.Validation("resource_id is required", nil)
	}
	if in.OwnerID == "" {
		return nil, apperr.Validation("owner_id is required", nil)
	}

	a := &core.Annotation{
		ID:              uuid.NewString(),
		ResourceID:      in.ResourceID,
		OwnerID:         in.OwnerID,
		StartOffset:     in.StartOffset,
		EndOffset:       in.EndOffset,
		HighlightedText: in.HighlightedText,
		Note:            in.Note,
		Tags:            dedupeTags(in.Tags),
		Color:           in.Color,
		IsShared:        in.IsShared,
	}

	if a.Note != "" && s.Embedder != nil {
		vec, err := s.Embedder.Embed(ctx, a.Note)
		if err != nil {
			// Embedding the note is a convenience, not part of the
			// invariant surface; degrade silently rather than fail the
			// whole annotation create.
			vec = nil
		}
		a.Embedding = vec
	}

	if err := s.Store.PutAnnotation(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// UpdateInput carries the mutable fields of an existing annotation. Span
// fields are included because the span itself can be edited, re-running
// the same invariant checks as Create.
type UpdateInput struct {
	ID              string
	StartOffset     int
	EndOffset       int
	HighlightedText string
	Note            string
	Tags            []string
	Color           string
	IsShared        bool
	TextLength      int
}

func (s *Service) Update(ctx context.Context, in UpdateInput) (*core.Annotation, error) {
	existing, err := s.Store.GetAnnotation(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	if err := validateSpan(in.StartOffset, in.EndOffset, in.TextLength); err != nil {
		return nil, err
	}
	if err := validateTags(in.Tags); err != nil {
		return nil, err
	}
	if err := validateColor(in.Color); err != nil {
		return nil, err
	}

	existing.StartOffset = in.StartOffset
	existing.EndOffset = in.EndOffset
	existing.HighlightedText = in.HighlightedText
	existing.Tags = dedupeTags(in.Tags)
	existing.Color = in.Color
	existing.IsShared = in.IsShared

	if existing.Note != in.Note {
		existing.Note = in.Note
		if in.Note != "" && s.Embedder != nil {
			if vec, embedErr := s.Embedder.Embed(ctx, in.Note); embedErr == nil {
				existing.Embedding = vec
			} else {
				existing.Embedding = nil
			}
		} else {
			existing.Embedding = nil
		}
	}

	if err := s.Store.PutAnnotation(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *Service) Get(ctx context.Context, id string) (*core.Annotation, error) {
	return s.Store.GetAnnotation(ctx, id)
}

func (s *Service) List(ctx context.Context, resourceID, ownerID string) ([]core.Annotation, error) {
	return s.Store.ListAnnotations(ctx, resourceID, ownerID)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.Store.DeleteAnnotation(ctx, id)
}

// validateSpan enforces spec.md's `0 <= start < end <= len(text)`.
func validateSpan(start, end, textLength int) error {
	if start < 0 {
		return apperr.Validation("start_offset must be >= 0", nil)
	}
	if start >= end {
		return apperr.Validation("start_offset must be < end_offset", nil)
	}
	if end > textLength {
		return apperr.Validation("end_offset must be <= len(text)", nil)
	}
	return nil
}

func validateTags(tags []string) error {
	if len(tags) > maxTags {
		return apperr.Validation("at most 20 tags are allowed", nil)
	}
	for _, t := range tags {
		if len(t) > maxTagLen {
			return apperr.Validation("tags must be <= 50 characters", nil)
		}
	}
	return nil
}

func validateColor(color string) error {
	if color == "" {
		return nil
	}
	if !colorPattern.MatchString(color) {
		return apperr.Validation("color must be a 7-character hex code, e.g. #a1b2c3", nil)
	}
	return nil
}

func dedupeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
