package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/verdantlabs/recall/internal/provider"
	"github.com/verdantlabs/recall/internal/storage"
	"github.com/verdantlabs/recall/pkg/types"
)

// VectorIndex implements storage.VectorIndex on PostgreSQL with the
// pgvector extension. Similarity ordering is pushed into the database
// via the cosine distance operator.
type VectorIndex struct {
	db       *sql.DB
	embedder provider.Embedder
}

// NewVectorIndex opens a PostgreSQL connection and ensures the schema.
func NewVectorIndex(dsn string, embedder provider.Embedder) (*VectorIndex, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &VectorIndex{db: db, embedder: embedder}, nil
}

// NewVectorIndexWithDB wraps an existing connection without touching the
// schema. Used when the caller manages migrations itself.
func NewVectorIndexWithDB(db *sql.DB, embedder provider.Embedder) *VectorIndex {
	return &VectorIndex{db: db, embedder: embedder}
}

// Upsert memorizes one unit of text. Existing content-derived IDs are
// returned without re-embedding.
func (v *VectorIndex) Upsert(ctx context.Context, req storage.UpsertRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	memoryID := types.VectorMemoryID(req.UserID, req.Type, req.Text)

	var exists int
	err := v.db.QueryRowContext(ctx,
		"SELECT 1 FROM memory_vectors WHERE memory_id = $1", memoryID,
	).Scan(&exists)
	if err == nil {
		return memoryID, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("failed to check vector existence: %w", err)
	}

	embedding, err := v.embedder.Embed(ctx, req.Text)
	if err != nil {
		return "", fmt.Errorf("failed to embed text: %w", err)
	}

	var tagsJSON []byte
	if len(req.Tags) > 0 {
		tagsJSON, err = json.Marshal(req.Tags)
		if err != nil {
			return "", fmt.Errorf("failed to marshal vector tags: %w", err)
		}
	}

	_, err = v.db.ExecContext(ctx, `
		INSERT INTO memory_vectors (memory_id, user_id, session_id, type, text, embedding, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (memory_id) DO NOTHING`,
		memoryID, req.UserID, nullIfEmpty(req.SessionID), req.Type, req.Text,
		pgvector.NewVector(embedding), tagsJSON,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert vector: %w", err)
	}

	return memoryID, nil
}

// Search embeds the query and returns the top-k most similar entries.
// Cosine distance (<=>) orders the scan; similarity is 1 - distance,
// clamped to [0, 1] for negative-cosine outliers.
func (v *VectorIndex) Search(ctx context.Context, userID, query string, opts storage.VectorSearchOptions) ([]storage.Match, error) {
	if opts.TopK < 1 {
		return nil, fmt.Errorf("%w: top-k must be at least 1", storage.ErrValidation)
	}
	opts.Normalize()

	queryVec, err := v.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	sqlQuery := `
		SELECT memory_id, user_id, session_id, type, text, tags, created_at,
		       1 - (embedding <=> $1) AS similarity
		FROM memory_vectors
		WHERE user_id = $2`
	args := []interface{}{pgvector.NewVector(queryVec), userID}

	if opts.Type != "" {
		args = append(args, opts.Type)
		sqlQuery += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if opts.SessionID != "" {
		args = append(args, opts.SessionID)
		sqlQuery += fmt.Sprintf(" AND session_id = $%d", len(args))
	}

	args = append(args, opts.TopK)
	sqlQuery += fmt.Sprintf(" ORDER BY embedding <=> $1, created_at DESC, memory_id ASC LIMIT $%d", len(args))

	rows, err := v.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer rows.Close()

	var matches []storage.Match
	for rows.Next() {
		var entry types.VectorEntry
		var sessionID sql.NullString
		var tagsJSON []byte
		var similarity float64
		if err := rows.Scan(&entry.MemoryID, &entry.UserID, &sessionID, &entry.Type,
			&entry.Text, &tagsJSON, &entry.CreatedAt, &similarity); err != nil {
			return nil, fmt.Errorf("failed to scan vector: %w", err)
		}
		entry.SessionID = sessionID.String
		if len(tagsJSON) > 0 {
			if err := json.Unmarshal(tagsJSON, &entry.Tags); err != nil {
				return nil, fmt.Errorf("failed to decode vector tags: %w", err)
			}
		}

		if similarity < 0 {
			similarity = 0
		}
		if similarity > 1 {
			similarity = 1
		}
		matches = append(matches, storage.Match{Entry: entry, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vectors: %w", err)
	}

	return matches, nil
}

// Close releases the database handle.
func (v *VectorIndex) Close() error {
	return v.db.Close()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Compile-time interface check.
var _ storage.VectorIndex = (*VectorIndex)(nil)
