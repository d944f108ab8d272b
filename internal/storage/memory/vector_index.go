// Package memory provides an in-process vector index backed by
// chromem-go. It is the dev-mode and test backend: no external services,
// everything lives in memory, per-user collections give namespace
// isolation.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/verdantlabs/recall/internal/provider"
	"github.com/verdantlabs/recall/internal/storage"
	"github.com/verdantlabs/recall/pkg/types"
)

// VectorIndex implements storage.VectorIndex on chromem-go.
type VectorIndex struct {
	db          *chromem.DB
	embedder    provider.Embedder
	now         storage.Clock
	mu          sync.RWMutex
	collections map[string]*chromem.Collection
	entries     map[string]types.VectorEntry // memory ID -> stored entry
}

// NewVectorIndex creates an empty in-memory index.
func NewVectorIndex(embedder provider.Embedder) *VectorIndex {
	return &VectorIndex{
		db:          chromem.NewDB(),
		embedder:    embedder,
		now:         time.Now,
		collections: make(map[string]*chromem.Collection),
		entries:     make(map[string]types.VectorEntry),
	}
}

// SetClock replaces the index's time source for tests.
func (v *VectorIndex) SetClock(clock storage.Clock) {
	v.now = clock
}

// getOrCreateCollection returns the per-user collection.
func (v *VectorIndex) getOrCreateCollection(userID string) (*chromem.Collection, error) {
	v.mu.RLock()
	col, exists := v.collections[userID]
	v.mu.RUnlock()
	if exists {
		return col, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	// Double-check after acquiring write lock
	if col, exists := v.collections[userID]; exists {
		return col, nil
	}

	col, err := v.db.CreateCollection(
		fmt.Sprintf("user_%s", userID),
		nil, // No custom embedding func (we provide embeddings)
		nil, // No custom distance func (use default cosine)
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	v.collections[userID] = col
	return col, nil
}

// Upsert memorizes one unit of text. Known content-derived IDs return
// immediately without an embed call.
func (v *VectorIndex) Upsert(ctx context.Context, req storage.UpsertRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	memoryID := types.VectorMemoryID(req.UserID, req.Type, req.Text)

	v.mu.RLock()
	_, exists := v.entries[memoryID]
	v.mu.RUnlock()
	if exists {
		return memoryID, nil
	}

	embedding, err := v.embedder.Embed(ctx, req.Text)
	if err != nil {
		return "", fmt.Errorf("failed to embed text: %w", err)
	}

	col, err := v.getOrCreateCollection(req.UserID)
	if err != nil {
		return "", err
	}

	metadata := map[string]string{"type": req.Type}
	if req.SessionID != "" {
		metadata["session_id"] = req.SessionID
	}

	doc := chromem.Document{
		ID:        memoryID,
		Content:   req.Text,
		Embedding: embedding,
		Metadata:  metadata,
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return "", fmt.Errorf("failed to add document: %w", err)
	}

	entry := types.VectorEntry{
		MemoryID:  memoryID,
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Type:      req.Type,
		Text:      req.Text,
		Tags:      req.Tags,
		CreatedAt: v.now(),
	}

	v.mu.Lock()
	v.entries[memoryID] = entry
	v.mu.Unlock()

	return memoryID, nil
}

// Search embeds the query and returns the top-k most similar entries.
func (v *VectorIndex) Search(ctx context.Context, userID, query string, opts storage.VectorSearchOptions) ([]storage.Match, error) {
	if opts.TopK < 1 {
		return nil, fmt.Errorf("%w: top-k must be at least 1", storage.ErrValidation)
	}
	opts.Normalize()

	queryVec, err := v.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	col, err := v.getOrCreateCollection(userID)
	if err != nil {
		return nil, err
	}

	var where map[string]string
	if opts.Type != "" || opts.SessionID != "" {
		where = make(map[string]string)
		if opts.Type != "" {
			where["type"] = opts.Type
		}
		if opts.SessionID != "" {
			where["session_id"] = opts.SessionID
		}
	}

	// chromem requires nResults <= matching document count; retry with
	// smaller limits until the query fits.
	var results []chromem.Result
	for limit := opts.TopK; limit >= 1; limit-- {
		results, err = col.QueryEmbedding(ctx, queryVec, limit, where, nil)
		if err == nil {
			break
		}
		if isInsufficientDocsError(err) {
			if limit == 1 {
				return nil, nil // collection empty
			}
			continue
		}
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	matches := make([]storage.Match, 0, len(results))
	v.mu.RLock()
	for _, result := range results {
		entry, ok := v.entries[result.ID]
		if !ok {
			continue
		}
		sim := float64(result.Similarity)
		if sim < 0 {
			sim = 0
		}
		if sim > 1 {
			sim = 1
		}
		matches = append(matches, storage.Match{Entry: entry, Similarity: sim})
	}
	v.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		if !matches[i].Entry.CreatedAt.Equal(matches[j].Entry.CreatedAt) {
			return matches[i].Entry.CreatedAt.After(matches[j].Entry.CreatedAt)
		}
		return matches[i].Entry.MemoryID < matches[j].Entry.MemoryID
	})

	return matches, nil
}

// isInsufficientDocsError checks if the error is chromem telling us the
// requested result count exceeds the collection size.
func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}

// Compile-time interface check.
var _ storage.VectorIndex = (*VectorIndex)(nil)
