package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/verdantlabs/recall/internal/storage"
	"github.com/verdantlabs/recall/pkg/types"
)

type fakeEmbedder struct {
	vectors map[string][]float32
	calls   int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if vec, ok := f.vectors[text]; ok {
		return vec, nil
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) GetModel() string { return "fake" }

func TestUpsertIdempotentInMemory(t *testing.T) {
	embedder := &fakeEmbedder{}
	index := NewVectorIndex(embedder)
	ctx := context.Background()

	req := storage.UpsertRequest{
		UserID: "alice", Type: types.VectorTypeTurn, Text: "prefers tea over coffee",
	}

	id1, err := index.Upsert(ctx, req)
	if err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}
	id2, err := index.Upsert(ctx, req)
	if err != nil {
		t.Fatalf("second Upsert() failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("IDs differ: %s vs %s", id1, id2)
	}
	if embedder.calls != 1 {
		t.Errorf("embed calls: got %d, want 1", embedder.calls)
	}
}

func TestSearchReturnsRankedMatches(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"close":   {1, 0, 0},
		"distant": {0, 1, 0},
		"query":   {1, 0, 0},
	}}
	index := NewVectorIndex(embedder)
	ctx := context.Background()

	for _, text := range []string{"close", "distant"} {
		if _, err := index.Upsert(ctx, storage.UpsertRequest{
			UserID: "alice", Type: types.VectorTypeTurn, Text: text,
		}); err != nil {
			t.Fatalf("Upsert(%q) failed: %v", text, err)
		}
	}

	matches, err := index.Search(ctx, "alice", "query", storage.VectorSearchOptions{TopK: 5})
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("Search() returned %d matches, want 2", len(matches))
	}
	if matches[0].Entry.Text != "close" {
		t.Errorf("best match: got %q", matches[0].Entry.Text)
	}

	if _, err := index.Search(ctx, "alice", "query", storage.VectorSearchOptions{TopK: 0}); !errors.Is(err, storage.ErrValidation) {
		t.Errorf("Search(TopK=0) error = %v, want ErrValidation", err)
	}
}

func TestSearchEmptyCollection(t *testing.T) {
	index := NewVectorIndex(&fakeEmbedder{})
	matches, err := index.Search(context.Background(), "nobody", "query", storage.VectorSearchOptions{TopK: 3})
	if err != nil {
		t.Fatalf("Search() on empty collection failed: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("got %d matches from empty collection", len(matches))
	}
}
