// Package store defines the persistence abstraction for Resources,
// Citations, and Collections, with sqlite and postgres implementations
// behind one Store interface, following the teacher's
// interface-plus-driver-specific-repo pattern (internal/persistence).
package store

import (
	"context"
	"time"

	"neoalexandria/internal/core"
)

// ListFilter narrows ListResources results. Zero-valued fields are
// ignored. Subject is matched with a LIKE substring test for the quoted
// value against the JSON-encoded subject array (see buildListQuery), so
// both the sqlite and postgres backends behave the same way without
// relying on a backend-native array/JSON column type.
type ListFilter struct {
	Subject            string
	ClassificationCode string
	IngestionStatus    core.IngestionStatus
	NeedsReview        *bool
}

// ListOptions controls pagination and ordering of ListResources, mirroring
// the teacher's persistence.ListOptions shape.
type ListOptions struct {
	Filter ListFilter
	SortBy string // "created_at", "updated_at", "quality_overall"
	Order  string // "asc" or "desc"
	Limit  int
	Offset int
}

// Store is the persistence boundary for the ingestion and retrieval
// engines. Every write path that touches more than one table (e.g.
// deleting a resource and its citations, or adding resources to a
// collection) is transactional.
type Store interface {
	PutResource(ctx context.Context, r *core.Resource) error
	GetResource(ctx context.Context, id string) (*core.Resource, error)
	GetResourceBySource(ctx context.Context, source string) (*core.Resource, error)
	GetResourceByFingerprint(ctx context.Context, fingerprint string) (*core.Resource, error)
	DeleteResource(ctx context.Context, id string) error
	ListResources(ctx context.Context, opts ListOptions) ([]core.Resource, error)

	UpsertCitation(ctx context.Context, c *core.Citation) error
	ListCitations(ctx context.Context, sourceResourceID string) ([]core.Citation, error)
	ListCitationsTo(ctx context.Context, targetResourceID string) ([]core.Citation, error)
	ListAllCitations(ctx context.Context) ([]core.Citation, error)

	PutCollection(ctx context.Context, c *core.Collection) error
	GetCollection(ctx context.Context, id string) (*core.Collection, error)
	AddResourcesToCollection(ctx context.Context, collectionID string, resourceIDs []string) error
	ListCollectionResources(ctx context.Context, collectionID string) ([]core.Resource, error)

	PutAnnotation(ctx context.Context, a *core.Annotation) error
	GetAnnotation(ctx context.Context, id string) (*core.Annotation, error)
	ListAnnotations(ctx context.Context, resourceID, ownerID string) ([]core.Annotation, error)
	DeleteAnnotation(ctx context.Context, id string) error

	PutIngestionJob(ctx context.Context, j *core.IngestionJob) error
	GetIngestionJob(ctx context.Context, id string) (*core.IngestionJob, error)

	Close() error
}

// ErrOptimisticConflict is returned by PutResource when the caller's
// UpdatedAt does not match the row's current UpdatedAt, per spec.md's
// optimistic-concurrency-control invariant.
type ErrOptimisticConflict struct {
	ResourceID string
}

func (e *ErrOptimisticConflict) Error() string {
	return "optimistic concurrency conflict updating resource " + e.ResourceID
}

// ErrNotFound is returned by Get*/Delete* operations when no row matches.
type ErrNotFound struct {
	Kind string
	ID   string
}

func (e *ErrNotFound) Error() string {
	return e.Kind + " not found: " + e.ID
}

func buildListQuery(opts ListOptions, placeholder func(n int) string) (string, []any) {
	query := `SELECT id, source, title, description, creator, publisher, language, type,
		subject, classification_code, quality_overall, quality_accuracy, quality_completeness,
		quality_consistency, quality_timeliness, quality_relevance, quality_last_computed,
		quality_computation_version, needs_review, ingestion_status, embedding, embedding_failed,
		sparse_embedding, sparse_embedding_model, sparse_embedding_updated, archive_path,
		content_fingerprint, scholarly_metadata, created_at, updated_at
	FROM resources`

	var clauses []string
	var args []any
	n := 1

	if opts.Filter.Subject != "" {
		clauses = append(clauses, "subject LIKE "+placeholder(n))
		args = append(args, "%\""+opts.Filter.Subject+"\"%")
		n++
	}
	if opts.Filter.ClassificationCode != "" {
		clauses = append(clauses, "classification_code = "+placeholder(n))
		args = append(args, opts.Filter.ClassificationCode)
		n++
	}
	if opts.Filter.IngestionStatus != "" {
		clauses = append(clauses, "ingestion_status = "+placeholder(n))
		args = append(args, string(opts.Filter.IngestionStatus))
		n++
	}
	if opts.Filter.NeedsReview != nil {
		clauses = append(clauses, "needs_review = "+placeholder(n))
		args = append(args, *opts.Filter.NeedsReview)
		n++
	}

	for i, c := range clauses {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}

	sortBy := opts.SortBy
	switch sortBy {
	case "created_at", "updated_at", "quality_overall":
	default:
		sortBy = "created_at"
	}
	order := "DESC"
	if opts.Order == "asc" {
		order = "ASC"
	}
	query += " ORDER BY " + sortBy + " " + order

	if opts.Limit > 0 {
		query += " LIMIT " + placeholder(n)
		args = append(args, opts.Limit)
		n++
	}
	if opts.Offset > 0 {
		query += " OFFSET " + placeholder(n)
		args = append(args, opts.Offset)
		n++
	}

	return query, args
}

// nowUTC is the single clock reference used when Put* assigns CreatedAt /
// UpdatedAt, kept as one function so tests can reason about ordering.
func nowUTC() time.Time { return time.Now().UTC() }
