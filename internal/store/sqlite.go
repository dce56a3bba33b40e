package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"neoalexandria/internal/core"
)

// SQLiteStore is the single-node, file-backed Store implementation, the
// default driver following the teacher's store.go.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) a sqlite database under
// dataDir and runs schema initialization.
func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "neoalexandria.db")
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS resources (
			id TEXT PRIMARY KEY,
			source TEXT UNIQUE NOT NULL,
			title TEXT,
			description TEXT,
			creator TEXT,
			publisher TEXT,
			language TEXT,
			type TEXT,
			subject TEXT,
			classification_code TEXT,
			quality_overall REAL,
			quality_accuracy REAL,
			quality_completeness REAL,
			quality_consistency REAL,
			quality_timeliness REAL,
			quality_relevance REAL,
			quality_last_computed DATETIME,
			quality_computation_version TEXT,
			needs_review BOOLEAN DEFAULT FALSE,
			ingestion_status TEXT NOT NULL,
			embedding BLOB,
			embedding_failed BOOLEAN DEFAULT FALSE,
			sparse_embedding TEXT,
			sparse_embedding_model TEXT,
			sparse_embedding_updated DATETIME,
			archive_path TEXT,
			content_fingerprint TEXT,
			scholarly_metadata TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_resources_fingerprint ON resources(content_fingerprint)`,
		`CREATE INDEX IF NOT EXISTS idx_resources_status ON resources(ingestion_status)`,
		`CREATE TABLE IF NOT EXISTS citations (
			id TEXT PRIMARY KEY,
			source_resource_id TEXT NOT NULL,
			target_resource_id TEXT,
			target_url TEXT,
			citation_type TEXT NOT NULL,
			context TEXT,
			position INTEGER,
			importance_score REAL,
			FOREIGN KEY (source_resource_id) REFERENCES resources(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_citations_source ON citations(source_resource_id)`,
		`CREATE INDEX IF NOT EXISTS idx_citations_target ON citations(target_resource_id)`,
		`CREATE TABLE IF NOT EXISTS collections (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			owner_id TEXT,
			visibility TEXT NOT NULL,
			parent_id TEXT,
			embedding BLOB,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS collection_resources (
			collection_id TEXT NOT NULL,
			resource_id TEXT NOT NULL,
			added_at DATETIME NOT NULL,
			PRIMARY KEY (collection_id, resource_id),
			FOREIGN KEY (collection_id) REFERENCES collections(id) ON DELETE CASCADE,
			FOREIGN KEY (resource_id) REFERENCES resources(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS annotations (
			id TEXT PRIMARY KEY,
			resource_id TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			start_offset INTEGER NOT NULL,
			end_offset INTEGER NOT NULL,
			highlighted_text TEXT,
			note TEXT,
			tags TEXT,
			color TEXT,
			is_shared BOOLEAN DEFAULT FALSE,
			embedding BLOB,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (resource_id) REFERENCES resources(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS ingestion_jobs (
			id TEXT PRIMARY KEY,
			resource_id TEXT NOT NULL,
			state TEXT NOT NULL,
			attempt_count INTEGER DEFAULT 0,
			last_error TEXT,
			created_at DATETIME NOT NULL,
			started_at DATETIME,
			completed_at DATETIME
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to run schema statement: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func sqlitePlaceholder(n int) string { return "?" }

func (s *SQLiteStore) PutResource(ctx context.Context, r *core.Resource) error {
	subjectJSON, err := marshalStringSlice(r.Subject)
	if err != nil {
		return fmt.Errorf("failed to marshal subject: %w", err)
	}
	embeddingBlob, err := serializeEmbedding(r.Embedding)
	if err != nil {
		return fmt.Errorf("failed to serialize embedding: %w", err)
	}
	sparseJSON, err := marshalSparseEmbedding(r.SparseEmbedding)
	if err != nil {
		return fmt.Errorf("failed to marshal sparse embedding: %w", err)
	}
	scholarlyJSON, err := marshalScholarly(r.Scholarly)
	if err != nil {
		return fmt.Errorf("failed to marshal scholarly metadata: %w", err)
	}

	now := nowUTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}

	existing, err := s.GetResource(ctx, r.ID)
	if err != nil {
		if _, ok := err.(*ErrNotFound); !ok {
			return err
		}
		existing = nil
	}

	if existing != nil && !r.UpdatedAt.Equal(existing.UpdatedAt) {
		return &ErrOptimisticConflict{ResourceID: r.ID}
	}
	r.UpdatedAt = now

	query := `INSERT INTO resources
		(id, source, title, description, creator, publisher, language, type, subject,
		 classification_code, quality_overall, quality_accuracy, quality_completeness,
		 quality_consistency, quality_timeliness, quality_relevance, quality_last_computed,
		 quality_computation_version, needs_review, ingestion_status, embedding, embedding_failed,
		 sparse_embedding, sparse_embedding_model, sparse_embedding_updated, archive_path,
		 content_fingerprint, scholarly_metadata, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			source=excluded.source, title=excluded.title, description=excluded.description,
			creator=excluded.creator, publisher=excluded.publisher, language=excluded.language,
			type=excluded.type, subject=excluded.subject, classification_code=excluded.classification_code,
			quality_overall=excluded.quality_overall, quality_accuracy=excluded.quality_accuracy,
			quality_completeness=excluded.quality_completeness, quality_consistency=excluded.quality_consistency,
			quality_timeliness=excluded.quality_timeliness, quality_relevance=excluded.quality_relevance,
			quality_last_computed=excluded.quality_last_computed,
			quality_computation_version=excluded.quality_computation_version,
			needs_review=excluded.needs_review, ingestion_status=excluded.ingestion_status,
			embedding=excluded.embedding, embedding_failed=excluded.embedding_failed,
			sparse_embedding=excluded.sparse_embedding, sparse_embedding_model=excluded.sparse_embedding_model,
			sparse_embedding_updated=excluded.sparse_embedding_updated, archive_path=excluded.archive_path,
			content_fingerprint=excluded.content_fingerprint, scholarly_metadata=excluded.scholarly_metadata,
			updated_at=excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query,
		r.ID, r.Source, r.Title, r.Description, r.Creator, r.Publisher, r.Language, r.Type, subjectJSON,
		r.ClassificationCode, r.QualityOverall, r.Quality.Accuracy, r.Quality.Completeness,
		r.Quality.Consistency, r.Quality.Timeliness, r.Quality.Relevance, r.QualityLastComputed,
		r.QualityComputationVersion, r.NeedsReview, string(r.IngestionStatus), embeddingBlob, r.EmbeddingFailed,
		sparseJSON, r.SparseEmbeddingModel, r.SparseEmbeddingUpdated, r.ArchivePath,
		r.ContentFingerprint, scholarlyJSON, r.CreatedAt, r.UpdatedAt,
	)
	return err
}

func scanResource(row interface {
	Scan(dest ...any) error
}) (*core.Resource, error) {
	var r core.Resource
	var subjectRaw string
	var embeddingBlob []byte
	var sparseRaw sql.NullString
	var scholarlyRaw sql.NullString
	var status string

	err := row.Scan(
		&r.ID, &r.Source, &r.Title, &r.Description, &r.Creator, &r.Publisher, &r.Language, &r.Type,
		&subjectRaw, &r.ClassificationCode, &r.QualityOverall, &r.Quality.Accuracy, &r.Quality.Completeness,
		&r.Quality.Consistency, &r.Quality.Timeliness, &r.Quality.Relevance, &r.QualityLastComputed,
		&r.QualityComputationVersion, &r.NeedsReview, &status, &embeddingBlob, &r.EmbeddingFailed,
		&sparseRaw, &r.SparseEmbeddingModel, &r.SparseEmbeddingUpdated, &r.ArchivePath,
		&r.ContentFingerprint, &scholarlyRaw, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.IngestionStatus = core.IngestionStatus(status)

	if subjectRaw != "" {
		subject, err := unmarshalStringSlice(subjectRaw)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal subject: %w", err)
		}
		r.Subject = subject
	}
	if embeddingBlob != nil {
		embedding, err := deserializeEmbedding(embeddingBlob)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize embedding: %w", err)
		}
		r.Embedding = embedding
	}
	if sparseRaw.Valid && sparseRaw.String != "" {
		sparse, err := unmarshalSparseEmbedding(sparseRaw.String)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal sparse embedding: %w", err)
		}
		r.SparseEmbedding = sparse
	}
	if scholarlyRaw.Valid && scholarlyRaw.String != "" {
		scholarly, err := unmarshalScholarly(scholarlyRaw.String)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal scholarly metadata: %w", err)
		}
		r.Scholarly = scholarly
	}
	return &r, nil
}

func (s *SQLiteStore) GetResource(ctx context.Context, id string) (*core.Resource, error) {
	row := s.db.QueryRowContext(ctx, strictGetQuery, id)
	r, err := scanResource(row)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{Kind: "resource", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan resource: %w", err)
	}
	return r, nil
}

const strictGetQuery = `SELECT id, source, title, description, creator, publisher, language, type,
	subject, classification_code, quality_overall, quality_accuracy, quality_completeness,
	quality_consistency, quality_timeliness, quality_relevance, quality_last_computed,
	quality_computation_version, needs_review, ingestion_status, embedding, embedding_failed,
	sparse_embedding, sparse_embedding_model, sparse_embedding_updated, archive_path,
	content_fingerprint, scholarly_metadata, created_at, updated_at
FROM resources WHERE id = ? LIMIT 1`

const strictGetBySourceQuery = `SELECT id, source, title, description, creator, publisher, language, type,
	subject, classification_code, quality_overall, quality_accuracy, quality_completeness,
	quality_consistency, quality_timeliness, quality_relevance, quality_last_computed,
	quality_computation_version, needs_review, ingestion_status, embedding, embedding_failed,
	sparse_embedding, sparse_embedding_model, sparse_embedding_updated, archive_path,
	content_fingerprint, scholarly_metadata, created_at, updated_at
FROM resources WHERE source = ? LIMIT 1`

func (s *SQLiteStore) GetResourceBySource(ctx context.Context, source string) (*core.Resource, error) {
	row := s.db.QueryRowContext(ctx, strictGetBySourceQuery, source)
	r, err := scanResource(row)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{Kind: "resource", ID: source}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan resource: %w", err)
	}
	return r, nil
}

const strictGetByFingerprintQuery = `SELECT id, source, title, description, creator, publisher, language, type,
	subject, classification_code, quality_overall, quality_accuracy, quality_completeness,
	quality_consistency, quality_timeliness, quality_relevance, quality_last_computed,
	quality_computation_version, needs_review, ingestion_status, embedding, embedding_failed,
	sparse_embedding, sparse_embedding_model, sparse_embedding_updated, archive_path,
	content_fingerprint, scholarly_metadata, created_at, updated_at
FROM resources WHERE content_fingerprint = ? AND ingestion_status = 'completed' LIMIT 1`

func (s *SQLiteStore) GetResourceByFingerprint(ctx context.Context, fingerprint string) (*core.Resource, error) {
	row := s.db.QueryRowContext(ctx, strictGetByFingerprintQuery, fingerprint)
	r, err := scanResource(row)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{Kind: "resource", ID: fingerprint}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan resource: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) DeleteResource(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM resources WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &ErrNotFound{Kind: "resource", ID: id}
	}
	return nil
}

func (s *SQLiteStore) ListResources(ctx context.Context, opts ListOptions) ([]core.Resource, error) {
	query, args := buildListQuery(opts, sqlitePlaceholder)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertCitation(ctx context.Context, c *core.Citation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO citations (id, source_resource_id, target_resource_id, target_url, citation_type, context, position, importance_score)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			target_resource_id=excluded.target_resource_id, target_url=excluded.target_url,
			citation_type=excluded.citation_type, context=excluded.context, position=excluded.position,
			importance_score=excluded.importance_score`,
		c.ID, c.SourceResourceID, c.TargetResourceID, c.TargetURL, string(c.CitationType), c.Context, c.Position, c.ImportanceScore,
	)
	return err
}

func scanCitations(rows *sql.Rows) ([]core.Citation, error) {
	var out []core.Citation
	for rows.Next() {
		var c core.Citation
		var citationType string
		if err := rows.Scan(&c.ID, &c.SourceResourceID, &c.TargetResourceID, &c.TargetURL, &citationType, &c.Context, &c.Position, &c.ImportanceScore); err != nil {
			return nil, err
		}
		c.CitationType = core.CitationType(citationType)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListCitations(ctx context.Context, sourceResourceID string) ([]core.Citation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, source_resource_id, target_resource_id, target_url, citation_type, context, position, importance_score FROM citations WHERE source_resource_id = ?`, sourceResourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCitations(rows)
}

func (s *SQLiteStore) ListCitationsTo(ctx context.Context, targetResourceID string) ([]core.Citation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, source_resource_id, target_resource_id, target_url, citation_type, context, position, importance_score FROM citations WHERE target_resource_id = ?`, targetResourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCitations(rows)
}

// ListAllCitations returns every citation edge, used by the offline
// PageRank batch job to build the full resolved citation graph.
func (s *SQLiteStore) ListAllCitations(ctx context.Context) ([]core.Citation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, source_resource_id, target_resource_id, target_url, citation_type, context, position, importance_score FROM citations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCitations(rows)
}

func (s *SQLiteStore) PutCollection(ctx context.Context, c *core.Collection) error {
	embeddingBlob, err := serializeEmbedding(c.Embedding)
	if err != nil {
		return err
	}
	now := nowUTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO collections (id, name, description, owner_id, visibility, parent_id, embedding, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, description=excluded.description, owner_id=excluded.owner_id,
			visibility=excluded.visibility, parent_id=excluded.parent_id, embedding=excluded.embedding,
			updated_at=excluded.updated_at`,
		c.ID, c.Name, c.Description, c.OwnerID, string(c.Visibility), c.ParentID, embeddingBlob, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (s *SQLiteStore) GetCollection(ctx context.Context, id string) (*core.Collection, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, description, owner_id, visibility, parent_id, embedding, created_at, updated_at FROM collections WHERE id = ?`, id)
	var c core.Collection
	var visibility string
	var embeddingBlob []byte
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.OwnerID, &visibility, &c.ParentID, &embeddingBlob, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{Kind: "collection", ID: id}
	}
	if err != nil {
		return nil, err
	}
	c.Visibility = core.Visibility(visibility)
	if embeddingBlob != nil {
		c.Embedding, err = deserializeEmbedding(embeddingBlob)
		if err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// AddResourcesToCollection inserts membership rows transactionally: all
// resource ids are attached or none are, per spec.md's collection-mutation
// invariant.
func (s *SQLiteStore) AddResourcesToCollection(ctx context.Context, collectionID string, resourceIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := nowUTC()
	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO collection_resources (collection_id, resource_id, added_at) VALUES (?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rid := range resourceIDs {
		if _, err := stmt.ExecContext(ctx, collectionID, rid, now); err != nil {
			return fmt.Errorf("failed to add resource %s to collection: %w", rid, err)
		}
	}
	return tx.Commit()
}

const listCollectionResourcesQuery = `SELECT r.id, r.source, r.title, r.description, r.creator, r.publisher, r.language, r.type,
	r.subject, r.classification_code, r.quality_overall, r.quality_accuracy, r.quality_completeness,
	r.quality_consistency, r.quality_timeliness, r.quality_relevance, r.quality_last_computed,
	r.quality_computation_version, r.needs_review, r.ingestion_status, r.embedding, r.embedding_failed,
	r.sparse_embedding, r.sparse_embedding_model, r.sparse_embedding_updated, r.archive_path,
	r.content_fingerprint, r.scholarly_metadata, r.created_at, r.updated_at
FROM resources r
JOIN collection_resources cr ON cr.resource_id = r.id
WHERE cr.collection_id = ?
ORDER BY cr.added_at ASC`

func (s *SQLiteStore) ListCollectionResources(ctx context.Context, collectionID string) ([]core.Resource, error) {
	rows, err := s.db.QueryContext(ctx, listCollectionResourcesQuery, collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) PutAnnotation(ctx context.Context, a *core.Annotation) error {
	tagsJSON, err := marshalStringSlice(a.Tags)
	if err != nil {
		return err
	}
	embeddingBlob, err := serializeEmbedding(a.Embedding)
	if err != nil {
		return err
	}
	now := nowUTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO annotations (id, resource_id, owner_id, start_offset, end_offset, highlighted_text, note, tags, color, is_shared, embedding, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			start_offset=excluded.start_offset, end_offset=excluded.end_offset,
			highlighted_text=excluded.highlighted_text, note=excluded.note, tags=excluded.tags,
			color=excluded.color, is_shared=excluded.is_shared, embedding=excluded.embedding,
			updated_at=excluded.updated_at`,
		a.ID, a.ResourceID, a.OwnerID, a.StartOffset, a.EndOffset, a.HighlightedText, a.Note, tagsJSON, a.Color, a.IsShared, embeddingBlob, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

func (s *SQLiteStore) GetAnnotation(ctx context.Context, id string) (*core.Annotation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, resource_id, owner_id, start_offset, end_offset, highlighted_text, note, tags, color, is_shared, embedding, created_at, updated_at FROM annotations WHERE id = ?`, id)
	return scanAnnotation(row, id)
}

func scanAnnotation(row *sql.Row, id string) (*core.Annotation, error) {
	var a core.Annotation
	var tagsRaw string
	var embeddingBlob []byte
	err := row.Scan(&a.ID, &a.ResourceID, &a.OwnerID, &a.StartOffset, &a.EndOffset, &a.HighlightedText, &a.Note, &tagsRaw, &a.Color, &a.IsShared, &embeddingBlob, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{Kind: "annotation", ID: id}
	}
	if err != nil {
		return nil, err
	}
	if tagsRaw != "" {
		a.Tags, err = unmarshalStringSlice(tagsRaw)
		if err != nil {
			return nil, err
		}
	}
	if embeddingBlob != nil {
		a.Embedding, err = deserializeEmbedding(embeddingBlob)
		if err != nil {
			return nil, err
		}
	}
	return &a, nil
}

func (s *SQLiteStore) ListAnnotations(ctx context.Context, resourceID, ownerID string) ([]core.Annotation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, resource_id, owner_id, start_offset, end_offset, highlighted_text, note, tags, color, is_shared, embedding, created_at, updated_at FROM annotations WHERE resource_id = ? AND (owner_id = ? OR is_shared = 1)`, resourceID, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Annotation
	for rows.Next() {
		var a core.Annotation
		var tagsRaw string
		var embeddingBlob []byte
		if err := rows.Scan(&a.ID, &a.ResourceID, &a.OwnerID, &a.StartOffset, &a.EndOffset, &a.HighlightedText, &a.Note, &tagsRaw, &a.Color, &a.IsShared, &embeddingBlob, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		if tagsRaw != "" {
			if a.Tags, err = unmarshalStringSlice(tagsRaw); err != nil {
				return nil, err
			}
		}
		if embeddingBlob != nil {
			if a.Embedding, err = deserializeEmbedding(embeddingBlob); err != nil {
				return nil, err
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteAnnotation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM annotations WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &ErrNotFound{Kind: "annotation", ID: id}
	}
	return nil
}

func (s *SQLiteStore) PutIngestionJob(ctx context.Context, j *core.IngestionJob) error {
	if j.CreatedAt.IsZero() {
		j.CreatedAt = nowUTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingestion_jobs (id, resource_id, state, attempt_count, last_error, created_at, started_at, completed_at)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			state=excluded.state, attempt_count=excluded.attempt_count, last_error=excluded.last_error,
			started_at=excluded.started_at, completed_at=excluded.completed_at`,
		j.ID, j.ResourceID, string(j.State), j.AttemptCount, j.LastError, j.CreatedAt, j.StartedAt, j.CompletedAt,
	)
	return err
}

func (s *SQLiteStore) GetIngestionJob(ctx context.Context, id string) (*core.IngestionJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, resource_id, state, attempt_count, last_error, created_at, started_at, completed_at FROM ingestion_jobs WHERE id = ?`, id)
	var j core.IngestionJob
	var state string
	err := row.Scan(&j.ID, &j.ResourceID, &state, &j.AttemptCount, &j.LastError, &j.CreatedAt, &j.StartedAt, &j.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{Kind: "ingestion_job", ID: id}
	}
	if err != nil {
		return nil, err
	}
	j.State = core.IngestionStatus(state)
	return &j, nil
}
