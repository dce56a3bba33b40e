package vectorindex

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// PgVectorIndex implements Index against a Postgres `resources` table
// carrying a pgvector `embedding_vector` column, grounded on the
// teacher's internal/vectorstore/pgvector.go PgVectorAdapter (same
// `<=>` cosine-distance operator, same UPSERT-by-update shape).
type PgVectorIndex struct {
	db *sql.DB
}

// NewPgVectorIndex wraps an existing *sql.DB (shared with the Postgres
// Store) as a vectorindex.Index.
func NewPgVectorIndex(db *sql.DB) *PgVectorIndex {
	return &PgVectorIndex{db: db}
}

func (p *PgVectorIndex) Add(ctx context.Context, resourceID string, vector []float64) error {
	query := `UPDATE resources SET embedding_vector = $1::vector WHERE id = $2`
	res, err := p.db.ExecContext(ctx, query, formatVector(vector), resourceID)
	if err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("resource %s not found", resourceID)
	}
	return nil
}

func (p *PgVectorIndex) Remove(ctx context.Context, resourceID string) error {
	_, err := p.db.ExecContext(ctx, `UPDATE resources SET embedding_vector = NULL WHERE id = $1`, resourceID)
	return err
}

func (p *PgVectorIndex) Search(ctx context.Context, queryVector []float64, limit int, minSimilarity float64, allowed map[string]bool) ([]Match, error) {
	if limit <= 0 {
		limit = 10
	}
	vectorStr := formatVector(queryVector)

	excludeClause := ""
	args := []interface{}{vectorStr, minSimilarity, limit}
	if allowed != nil {
		ids := make([]string, 0, len(allowed))
		for id := range allowed {
			ids = append(ids, id)
		}
		excludeClause = "AND id = ANY($4)"
		args = append(args, pq.Array(ids))
	}

	query := fmt.Sprintf(`
		SELECT id, 1 - (embedding_vector <=> $1::vector) AS similarity
		FROM resources
		WHERE embedding_vector IS NOT NULL
		  AND 1 - (embedding_vector <=> $1::vector) >= $2
		  %s
		ORDER BY embedding_vector <=> $1::vector
		LIMIT $3`, excludeClause)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ResourceID, &m.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// formatVector renders a []float64 as a pgvector literal, e.g. "[0.1,0.2]".
func formatVector(v []float64) string {
	if len(v) == 0 {
		return "[]"
	}
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

var _ Index = (*PgVectorIndex)(nil)
