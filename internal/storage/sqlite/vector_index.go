package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/verdantlabs/recall/internal/provider"
	"github.com/verdantlabs/recall/internal/storage"
	"github.com/verdantlabs/recall/pkg/types"
)

// defaultCandidateLimit caps how many recent vectors are loaded per
// search. Similarity is computed in-process, so the scan has to be
// bounded; the newest entries are the ones worth scanning.
const defaultCandidateLimit = 2000

// VectorIndex implements storage.VectorIndex on SQLite. Embeddings are
// stored as float32 little-endian BLOBs and compared in-process.
type VectorIndex struct {
	db             *sql.DB
	embedder       provider.Embedder
	now            storage.Clock
	candidateLimit int
}

// NewVectorIndex creates a vector index sharing the given database handle.
func NewVectorIndex(db *sql.DB, embedder provider.Embedder) *VectorIndex {
	return &VectorIndex{
		db:             db,
		embedder:       embedder,
		now:            time.Now,
		candidateLimit: defaultCandidateLimit,
	}
}

// SetClock replaces the index's time source for tests.
func (v *VectorIndex) SetClock(clock storage.Clock) {
	v.now = clock
}

// Upsert memorizes one unit of text. The memory ID is derived from the
// content, so an entry that already exists is returned as-is without
// paying the embedding cost again.
func (v *VectorIndex) Upsert(ctx context.Context, req storage.UpsertRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	memoryID := types.VectorMemoryID(req.UserID, req.Type, req.Text)

	// Existence check before embedding: re-memorizing known text must
	// not call the embedder at all.
	var exists int
	err := v.db.QueryRowContext(ctx,
		"SELECT 1 FROM memory_vectors WHERE memory_id = ?", memoryID,
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

	tagsJSON, err := marshalTagMap(req.Tags)
	if err != nil {
		return "", fmt.Errorf("failed to marshal vector tags: %w", err)
	}

	_, err = v.db.ExecContext(ctx, `
		INSERT INTO memory_vectors (memory_id, user_id, session_id, type, text, embedding, dimension, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(memory_id) DO NOTHING`,
		memoryID, req.UserID, req.SessionID, req.Type, req.Text,
		encodeEmbedding(embedding), len(embedding), nullableString(tagsJSON), v.now(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert vector: %w", err)
	}

	return memoryID, nil
}

// Search embeds the query and returns the top-k most similar entries,
// ordered by similarity descending with ties broken by recency then ID.
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
		SELECT memory_id, user_id, session_id, type, text, embedding, tags, created_at
		FROM memory_vectors WHERE user_id = ?`
	args := []interface{}{userID}

	if opts.Type != "" {
		sqlQuery += " AND type = ?"
		args = append(args, opts.Type)
	}
	if opts.SessionID != "" {
		sqlQuery += " AND session_id = ?"
		args = append(args, opts.SessionID)
	}

	sqlQuery += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, v.candidateLimit)

	rows, err := v.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer rows.Close()

	var matches []storage.Match
	for rows.Next() {
		var entry types.VectorEntry
		var sessionID, tagsJSON sql.NullString
		var blob []byte
		if err := rows.Scan(&entry.MemoryID, &entry.UserID, &sessionID, &entry.Type,
			&entry.Text, &blob, &tagsJSON, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vector: %w", err)
		}
		entry.SessionID = sessionID.String
		if tagsJSON.Valid && tagsJSON.String != "" {
			if err := json.Unmarshal([]byte(tagsJSON.String), &entry.Tags); err != nil {
				return nil, fmt.Errorf("failed to decode vector tags: %w", err)
			}
		}

		candidate := decodeEmbedding(blob)
		sim := cosineSimilarity(queryVec, candidate)
		matches = append(matches, storage.Match{Entry: entry, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vectors: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		if !matches[i].Entry.CreatedAt.Equal(matches[j].Entry.CreatedAt) {
			return matches[i].Entry.CreatedAt.After(matches[j].Entry.CreatedAt)
		}
		return matches[i].Entry.MemoryID < matches[j].Entry.MemoryID
	})

	if len(matches) > opts.TopK {
		matches = matches[:opts.TopK]
	}
	return matches, nil
}

// encodeEmbedding serialises a float32 vector to little-endian bytes.
func encodeEmbedding(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeEmbedding deserialises a little-endian float32 vector.
func decodeEmbedding(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

// cosineSimilarity computes cosine similarity clamped to [0, 1].
// Mismatched dimensions score zero rather than erroring: they can only
// appear after an embedding model change, and those entries should
// simply never rank.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

func marshalTagMap(tags map[string]string) ([]byte, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	return json.Marshal(tags)
}

// Compile-time interface check.
var _ storage.VectorIndex = (*VectorIndex)(nil)
