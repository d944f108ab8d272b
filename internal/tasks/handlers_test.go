package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/verdantlabs/recall/internal/engine"
	"github.com/verdantlabs/recall/internal/storage"
	"github.com/verdantlabs/recall/pkg/types"
)

type fakeMemoryStore struct {
	records []*types.Record
	written []*types.Record
}

func (f *fakeMemoryStore) Write(_ context.Context, record *types.Record) (string, error) {
	record.ID = "mem:foundation:stored"
	f.written = append(f.written, record)
	return record.ID, nil
}

func (f *fakeMemoryStore) Get(_ context.Context, _ string) (*types.Record, error) {
	return nil, storage.ErrNotFound
}

func (f *fakeMemoryStore) Query(_ context.Context, filter storage.Filter) ([]*types.Record, error) {
	filter.Normalize()
	var out []*types.Record
	for _, r := range f.records {
		if filter.MinImportance > 0 && r.Importance < filter.MinImportance {
			continue
		}
		if len(filter.TagsAny) > 0 {
			hit := false
			for _, want := range filter.TagsAny {
				for _, tag := range r.Tags {
					if tag == want {
						hit = true
					}
				}
			}
			if !hit {
				continue
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeMemoryStore) Deactivate(_ context.Context, _ string) error { return nil }

func (f *fakeMemoryStore) AppendTurn(_ context.Context, _ *types.ConversationTurn) (int64, error) {
	return 0, errors.New("not implemented")
}

func (f *fakeMemoryStore) RecentTurns(_ context.Context, _ storage.TurnFilter) ([]*types.ConversationTurn, error) {
	return nil, nil
}

func (f *fakeMemoryStore) Close() error { return nil }

var _ storage.MemoryStore = (*fakeMemoryStore)(nil)

type fakeVectorIndex struct {
	matches   []storage.Match
	upserts   []storage.UpsertRequest
	upsertErr error
}

func (f *fakeVectorIndex) Upsert(_ context.Context, req storage.UpsertRequest) (string, error) {
	if f.upsertErr != nil {
		return "", f.upsertErr
	}
	f.upserts = append(f.upserts, req)
	return types.VectorMemoryID(req.UserID, req.Type, req.Text), nil
}

func (f *fakeVectorIndex) Search(_ context.Context, _, _ string, opts storage.VectorSearchOptions) ([]storage.Match, error) {
	opts.Normalize()
	matches := f.matches
	if len(matches) > opts.TopK {
		matches = matches[:opts.TopK]
	}
	return matches, nil
}

var _ storage.VectorIndex = (*fakeVectorIndex)(nil)

type fakeChat struct {
	reply string
	err   error
}

func (f *fakeChat) Complete(_ context.Context, _ string) (string, error) {
	return f.reply, f.err
}

func (f *fakeChat) GetModel() string { return "fake-model" }

func noProgress(string, int) {}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestResearchHandlerProducesFoundationRecord(t *testing.T) {
	now := time.Now()
	store := &fakeMemoryStore{records: []*types.Record{
		{ID: "mem:fact:stack", Kind: types.KindFact, Content: "the billing service runs on postgres",
			Importance: 9, Active: true, Tags: []string{"billing"}, CreatedAt: now, UpdatedAt: now},
	}}
	index := &fakeVectorIndex{matches: []storage.Match{
		{Entry: types.VectorEntry{MemoryID: "v1", Text: "billing migration discussed last sprint", CreatedAt: now}, Similarity: 0.8},
	}}
	chat := &fakeChat{reply: "Billing runs on postgres; a migration is planned."}

	builder := engine.NewContextBuilder(engine.NewRanker(store, index, engine.DefaultWeights()), store, nil, engine.BuilderConfig{})
	handler := NewResearchHandler(builder, store, index, chat)

	raw, err := handler(context.Background(), mustJSON(t, ResearchParams{
		UserID: "u1",
		Topic:  "billing migration",
	}), noProgress)
	require.NoError(t, err)

	var result ResearchResult
	require.NoError(t, json.Unmarshal(raw, &result))
	require.Equal(t, "mem:foundation:stored", result.RecordID)
	require.NotEmpty(t, result.VectorID)
	require.Contains(t, result.Report, "postgres")
	require.Equal(t, 1, result.Queries)

	require.Len(t, store.written, 1)
	written := store.written[0]
	require.Equal(t, types.KindFoundation, written.Kind)
	require.NotNil(t, written.Foundation)
	require.Equal(t, "billing migration", written.Foundation.Subject)

	require.Len(t, index.upserts, 1)
	require.Equal(t, types.VectorTypeSummary, index.upserts[0].Type)
}

func TestResearchHandlerValidation(t *testing.T) {
	handler := NewResearchHandler(nil, nil, nil, nil)

	_, err := handler(context.Background(), json.RawMessage(`{not json`), noProgress)
	require.ErrorIs(t, err, storage.ErrValidation)

	_, err = handler(context.Background(), mustJSON(t, ResearchParams{UserID: "u1"}), noProgress)
	require.ErrorIs(t, err, storage.ErrValidation)
}

func TestResearchHandlerSynthesisFailure(t *testing.T) {
	now := time.Now()
	store := &fakeMemoryStore{records: []*types.Record{
		{ID: "mem:fact:a", Kind: types.KindFact, Content: "relevant fact about deadlines",
			Importance: 9, Active: true, CreatedAt: now, UpdatedAt: now},
	}}
	index := &fakeVectorIndex{}
	chat := &fakeChat{err: errors.New("model unavailable")}

	builder := engine.NewContextBuilder(engine.NewRanker(store, index, engine.DefaultWeights()), store, nil, engine.BuilderConfig{})
	handler := NewResearchHandler(builder, store, index, chat)

	_, err := handler(context.Background(), mustJSON(t, ResearchParams{
		UserID: "u1", Topic: "deadlines",
	}), noProgress)
	require.Error(t, err)
	require.Contains(t, err.Error(), "synthesis failed")
	require.Empty(t, store.written)
}

func TestEmbedCorpusHandler(t *testing.T) {
	index := &fakeVectorIndex{}
	handler := NewEmbedCorpusHandler(index)

	var stages []string
	raw, err := handler(context.Background(), mustJSON(t, EmbedCorpusParams{
		UserID: "u1",
		Type:   types.VectorTypeDoc,
		Texts:  []string{"first chunk", "second chunk", "third chunk"},
	}), func(stage string, _ int) { stages = append(stages, stage) })
	require.NoError(t, err)

	var result EmbedCorpusResult
	require.NoError(t, json.Unmarshal(raw, &result))
	require.Equal(t, 3, result.Total)
	require.Equal(t, 3, result.Succeeded)
	require.Zero(t, result.Failed)
	require.Len(t, result.MemoryIDs, 3)
	require.Len(t, index.upserts, 3)
	require.NotEmpty(t, stages)
}

func TestEmbedCorpusHandlerAllFail(t *testing.T) {
	index := &fakeVectorIndex{upsertErr: errors.New("embedder down")}
	handler := NewEmbedCorpusHandler(index)

	_, err := handler(context.Background(), mustJSON(t, EmbedCorpusParams{
		UserID: "u1", Type: types.VectorTypeDoc, Texts: []string{"only chunk"},
	}), noProgress)
	require.Error(t, err)
	require.Contains(t, err.Error(), "embedder down")
}

func TestEmbedCorpusHandlerValidation(t *testing.T) {
	handler := NewEmbedCorpusHandler(&fakeVectorIndex{})
	_, err := handler(context.Background(), mustJSON(t, EmbedCorpusParams{UserID: "u1"}), noProgress)
	require.ErrorIs(t, err, storage.ErrValidation)
}
