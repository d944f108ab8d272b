package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/verdantlabs/recall/internal/provider"
	"github.com/verdantlabs/recall/internal/storage"
	"github.com/verdantlabs/recall/pkg/types"
)

// fakeEmbedder returns fixed vectors per text and counts calls.
// Unknown texts get a default vector so tests only pin what they assert.
type fakeEmbedder struct {
	vectors map[string][]float32
	calls   int
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrEmbedding, f.err)
	}
	if vec, ok := f.vectors[text]; ok {
		return vec, nil
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) GetModel() string { return "fake" }

func newTestIndex(t *testing.T, embedder provider.Embedder) *VectorIndex {
	t.Helper()
	store := newTestStore(t)
	return NewVectorIndex(store.DB(), embedder)
}

func TestUpsertIdempotent(t *testing.T) {
	embedder := &fakeEmbedder{}
	index := newTestIndex(t, embedder)
	ctx := context.Background()

	req := storage.UpsertRequest{
		UserID: "alice",
		Type:   types.VectorTypeTurn,
		Text:   "I prefer aisle seats on long flights",
	}

	id1, err := index.Upsert(ctx, req)
	if err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}
	if embedder.calls != 1 {
		t.Fatalf("first upsert made %d embed calls, want 1", embedder.calls)
	}

	id2, err := index.Upsert(ctx, req)
	if err != nil {
		t.Fatalf("second Upsert() failed: %v", err)
	}
	if id2 != id1 {
		t.Errorf("duplicate upsert returned different ID: %s vs %s", id2, id1)
	}
	// The embedder must not be called again for known content.
	if embedder.calls != 1 {
		t.Errorf("duplicate upsert made %d embed calls, want 1", embedder.calls)
	}
}

func TestUpsertValidation(t *testing.T) {
	index := newTestIndex(t, &fakeEmbedder{})
	ctx := context.Background()

	tests := []struct {
		name string
		req  storage.UpsertRequest
	}{
		{"missing user", storage.UpsertRequest{Type: types.VectorTypeTurn, Text: "x"}},
		{"missing text", storage.UpsertRequest{UserID: "alice", Type: types.VectorTypeTurn}},
		{"bad type", storage.UpsertRequest{UserID: "alice", Type: "image", Text: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := index.Upsert(ctx, tt.req); !errors.Is(err, storage.ErrValidation) {
				t.Errorf("Upsert() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestUpsertEmbeddingFailureWritesNothing(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("provider down")}
	index := newTestIndex(t, embedder)
	ctx := context.Background()

	_, err := index.Upsert(ctx, storage.UpsertRequest{
		UserID: "alice", Type: types.VectorTypeDoc, Text: "doomed entry",
	})
	if !errors.Is(err, provider.ErrEmbedding) {
		t.Fatalf("Upsert() error = %v, want wrapped ErrEmbedding", err)
	}

	// A retry after recovery should embed and store normally.
	embedder.err = nil
	if _, err := index.Upsert(ctx, storage.UpsertRequest{
		UserID: "alice", Type: types.VectorTypeDoc, Text: "doomed entry",
	}); err != nil {
		t.Fatalf("retry Upsert() failed: %v", err)
	}
}

func TestSearchOrderingAndTopK(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"exact match":  {1, 0, 0},
		"close match":  {0.9, 0.1, 0},
		"distant text": {0, 1, 0},
		"the query":    {1, 0, 0},
	}}
	index := newTestIndex(t, embedder)
	ctx := context.Background()

	for _, text := range []string{"exact match", "close match", "distant text"} {
		if _, err := index.Upsert(ctx, storage.UpsertRequest{
			UserID: "alice", Type: types.VectorTypeTurn, Text: text,
		}); err != nil {
			t.Fatalf("Upsert(%q) failed: %v", text, err)
		}
	}

	matches, err := index.Search(ctx, "alice", "the query", storage.VectorSearchOptions{TopK: 2})
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("Search() returned %d matches, want 2", len(matches))
	}
	if matches[0].Entry.Text != "exact match" {
		t.Errorf("best match: got %q", matches[0].Entry.Text)
	}
	if matches[1].Entry.Text != "close match" {
		t.Errorf("second match: got %q", matches[1].Entry.Text)
	}
	if matches[0].Similarity < matches[1].Similarity {
		t.Error("matches not ordered by similarity")
	}
}

func TestSearchScopedToUser(t *testing.T) {
	index := newTestIndex(t, &fakeEmbedder{})
	ctx := context.Background()

	if _, err := index.Upsert(ctx, storage.UpsertRequest{
		UserID: "alice", Type: types.VectorTypeTurn, Text: "alice's note",
	}); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}
	if _, err := index.Upsert(ctx, storage.UpsertRequest{
		UserID: "bob", Type: types.VectorTypeTurn, Text: "bob's note",
	}); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	matches, err := index.Search(ctx, "alice", "note", storage.VectorSearchOptions{TopK: 10})
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(matches) != 1 || matches[0].Entry.UserID != "alice" {
		t.Errorf("search leaked across users: %d matches", len(matches))
	}
}

func TestSearchTopKValidation(t *testing.T) {
	index := newTestIndex(t, &fakeEmbedder{})
	ctx := context.Background()

	if _, err := index.Search(ctx, "alice", "q", storage.VectorSearchOptions{TopK: 0}); !errors.Is(err, storage.ErrValidation) {
		t.Errorf("Search(TopK=0) error = %v, want ErrValidation", err)
	}
	if _, err := index.Search(ctx, "alice", "q", storage.VectorSearchOptions{TopK: -5}); !errors.Is(err, storage.ErrValidation) {
		t.Errorf("Search(TopK=-5) error = %v, want ErrValidation", err)
	}

	// Oversized TopK is clamped, not rejected.
	if _, err := index.Search(ctx, "alice", "q", storage.VectorSearchOptions{TopK: 500}); err != nil {
		t.Errorf("Search(TopK=500) failed: %v", err)
	}
}

func TestSearchTypeFilter(t *testing.T) {
	index := newTestIndex(t, &fakeEmbedder{})
	ctx := context.Background()

	if _, err := index.Upsert(ctx, storage.UpsertRequest{
		UserID: "alice", Type: types.VectorTypeTurn, Text: "a turn",
	}); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}
	if _, err := index.Upsert(ctx, storage.UpsertRequest{
		UserID: "alice", Type: types.VectorTypeDoc, Text: "a doc",
	}); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	matches, err := index.Search(ctx, "alice", "q", storage.VectorSearchOptions{Type: types.VectorTypeDoc, TopK: 10})
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(matches) != 1 || matches[0].Entry.Type != types.VectorTypeDoc {
		t.Errorf("type filter: got %d matches", len(matches))
	}
}
