// Package core defines the entities shared across the ingestion and
// retrieval engines: Resource, Citation, Collection, Annotation, and the
// ephemeral IngestionJob work item.
package core

import "time"

// IngestionStatus is the terminal/non-terminal state of a Resource's
// ingestion lifecycle.
type IngestionStatus string

const (
	StatusPending    IngestionStatus = "pending"
	StatusProcessing IngestionStatus = "processing"
	StatusCompleted  IngestionStatus = "completed"
	StatusFailed     IngestionStatus = "failed"
)

// CitationType classifies the kind of reference a Citation represents.
type CitationType string

const (
	CitationReference CitationType = "reference"
	CitationDataset    CitationType = "dataset"
	CitationCode       CitationType = "code"
	CitationGeneral    CitationType = "general"
)

// Visibility controls who can see a Collection.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityShared  Visibility = "shared"
	VisibilityPublic  Visibility = "public"
)

// QualityDimensions holds the five [0,1] quality scores that make up
// Resource.QualityOverall.
type QualityDimensions struct {
	Accuracy     float64
	Completeness float64
	Consistency  float64
	Timeliness   float64
	Relevance    float64
}

// Resource is the primary content entity ingested from a URL.
type Resource struct {
	ID          string
	Source      string // canonical URL, unique after normalization
	Title       string
	Description string
	Creator     string
	Publisher   string
	Language    string
	Type        string

	Subject            []string // canonicalized subject strings (set semantics)
	ClassificationCode string   // single hierarchical path, e.g. "004.6"

	QualityOverall            *float64 // nil iff never computed
	Quality                   QualityDimensions
	QualityLastComputed       *time.Time
	QualityComputationVersion string
	NeedsReview               bool

	IngestionStatus IngestionStatus

	Embedding              []float64       // dense vector, dimension D, or nil
	EmbeddingFailed        bool            // explicitly marked failed-to-embed
	SparseEmbedding        map[int]float64 // token_id -> weight, or nil
	SparseEmbeddingModel   string
	SparseEmbeddingUpdated *time.Time

	ArchivePath string // filesystem path to archived raw content, or ""

	ContentFingerprint string // hash(canonical_url + sha256(raw_bytes))

	Scholarly *ScholarlyMetadata // nil unless the scholarly-extract stage succeeded

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ScholarlyMetadata holds the academic-paper-specific fields the
// scholarly-extract enrichment stage populates when the source text
// looks like an academic work.
type ScholarlyMetadata struct {
	Authors   []string
	DOI       string
	Equations int
	Tables    int
}

// Citation is a directed edge between resources, or an unresolved
// reference to an external URL.
type Citation struct {
	ID               string
	SourceResourceID string
	TargetResourceID *string // nullable until resolved
	TargetURL        string
	CitationType     CitationType
	Context          string   // ~±50 char snippet around the reference
	Position         int      // ordinal position in source
	ImportanceScore  *float64 // PageRank output, nil until computed
}

// Collection is a named, possibly-hierarchical group of resources with an
// aggregate embedding recomputed on membership change.
type Collection struct {
	ID          string
	Name        string
	Description string
	OwnerID     string
	Visibility  Visibility
	ParentID    *string // nullable; acyclic
	Embedding   []float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CollectionResource is the composite-keyed membership row joining a
// Collection to a Resource.
type CollectionResource struct {
	CollectionID string
	ResourceID   string
	AddedAt      time.Time
}

// Annotation is user-private markup anchored to a span of a Resource's
// extracted text.
type Annotation struct {
	ID              string
	ResourceID      string
	OwnerID         string
	StartOffset     int
	EndOffset       int
	HighlightedText string
	Note            string
	Tags            []string // set, <= 20 items, <= 50 chars each
	Color           string   // 7-char hex, e.g. "#a1b2c3"
	IsShared        bool
	Embedding       []float64 // embedding of Note, or nil

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IngestionJob is the ephemeral work item driving a Resource through the
// ingestion state machine.
type IngestionJob struct {
	ID           string
	ResourceID   string
	State        IngestionStatus
	AttemptCount int
	LastError    string

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}
