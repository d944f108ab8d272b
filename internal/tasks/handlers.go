package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/verdantlabs/recall/internal/engine"
	"github.com/verdantlabs/recall/internal/provider"
	"github.com/verdantlabs/recall/internal/storage"
	"github.com/verdantlabs/recall/pkg/types"
)

// Task kinds with built-in handlers.
const (
	KindResearch    = "research"
	KindEmbedCorpus = "embed_corpus"
)

// ResearchParams describes a deep-research task: gather memory context
// for each sub-query, synthesize a report, and store it as a foundation
// record.
type ResearchParams struct {
	UserID     string   `json:"user_id"`
	SessionID  string   `json:"session_id,omitempty"`
	Topic      string   `json:"topic"`
	SubQueries []string `json:"sub_queries,omitempty"`

	// ContextBudget bounds each sub-query's context payload in
	// characters (default 2000).
	ContextBudget int `json:"context_budget,omitempty"`
}

// ResearchResult is the research task's stored result payload.
type ResearchResult struct {
	RecordID string `json:"record_id"`
	VectorID string `json:"vector_id,omitempty"`
	Report   string `json:"report"`
	Queries  int    `json:"queries"`
}

// NewResearchHandler builds the research handler over the given
// dependencies. The chat model synthesizes; the vector index makes the
// finished report searchable.
func NewResearchHandler(builder *engine.ContextBuilder, store storage.MemoryStore, index storage.VectorIndex, chat provider.ChatModel) Handler {
	return func(ctx context.Context, rawParams json.RawMessage, progress ProgressFunc) ([]byte, error) {
		var params ResearchParams
		if err := json.Unmarshal(rawParams, &params); err != nil {
			return nil, fmt.Errorf("%w: invalid research params: %v", storage.ErrValidation, err)
		}
		if params.UserID == "" || params.Topic == "" {
			return nil, fmt.Errorf("%w: user_id and topic are required", storage.ErrValidation)
		}
		if len(params.SubQueries) == 0 {
			params.SubQueries = []string{params.Topic}
		}
		if params.ContextBudget < 1 {
			params.ContextBudget = 2000
		}

		progress("planning", 0)

		// Gather context per sub-query. A sub-query whose context build
		// fails is noted and skipped rather than failing the whole task.
		var sections []string
		var notes []string
		for i, query := range params.SubQueries {
			payload, err := builder.BuildContext(ctx, engine.BuildRequest{
				UserID:    params.UserID,
				SessionID: params.SessionID,
				Query:     query,
				Budget:    params.ContextBudget,
			})
			if err != nil {
				notes = append(notes, fmt.Sprintf("sub-query %q: %v", query, err))
				continue
			}
			var lines []string
			for _, item := range payload.Items {
				lines = append(lines, "- "+item.Content)
			}
			if len(lines) > 0 {
				sections = append(sections, fmt.Sprintf("## %s\n%s", query, strings.Join(lines, "\n")))
			}
			percent := 20 + (i+1)*50/len(params.SubQueries)
			progress(fmt.Sprintf("gathering context (%d/%d)", i+1, len(params.SubQueries)), percent)
		}
		if len(sections) == 0 {
			return nil, fmt.Errorf("no context could be gathered for topic %q: %s", params.Topic, strings.Join(notes, "; "))
		}

		progress("synthesizing", 70)
		prompt := fmt.Sprintf(
			"Write a concise research summary on %q using only the notes below. State what is known and flag gaps.\n\n%s",
			params.Topic, strings.Join(sections, "\n\n"))
		report, err := chat.Complete(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("synthesis failed: %w", err)
		}

		progress("finalizing", 95)
		recordID, err := store.Write(ctx, &types.Record{
			Kind:       types.KindFoundation,
			Content:    report,
			Tags:       []string{"research"},
			Source:     "task:" + KindResearch,
			Importance: 7,
			Foundation: &types.FoundationFields{
				Domain:  "research",
				Subject: params.Topic,
				Title:   "Research: " + params.Topic,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to store research report: %w", err)
		}

		// Best effort: a missing vector entry only costs recall quality.
		vectorID, err := index.Upsert(ctx, storage.UpsertRequest{
			UserID:    params.UserID,
			SessionID: params.SessionID,
			Type:      types.VectorTypeSummary,
			Text:      report,
			Tags:      map[string]string{"topic": params.Topic},
		})
		if err != nil {
			notes = append(notes, fmt.Sprintf("report not indexed: %v", err))
			vectorID = ""
		}

		result := ResearchResult{
			RecordID: recordID,
			VectorID: vectorID,
			Report:   report,
			Queries:  len(params.SubQueries),
		}
		if len(notes) > 0 {
			result.Report = report + "\n\n(notes: " + strings.Join(notes, "; ") + ")"
		}
		return json.Marshal(result)
	}
}

// EmbedCorpusParams describes a batch memorization task.
type EmbedCorpusParams struct {
	UserID    string            `json:"user_id"`
	SessionID string            `json:"session_id,omitempty"`
	Type      string            `json:"type"`
	Texts     []string          `json:"texts"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// EmbedCorpusResult reports the outcome per item.
type EmbedCorpusResult struct {
	Total     int      `json:"total"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	MemoryIDs []string `json:"memory_ids"`
	Errors    []string `json:"errors,omitempty"`
}

// NewEmbedCorpusHandler builds the batch-upsert handler. Individual
// failures are collected; the task only fails when nothing succeeded.
func NewEmbedCorpusHandler(index storage.VectorIndex) Handler {
	return func(ctx context.Context, rawParams json.RawMessage, progress ProgressFunc) ([]byte, error) {
		var params EmbedCorpusParams
		if err := json.Unmarshal(rawParams, &params); err != nil {
			return nil, fmt.Errorf("%w: invalid embed_corpus params: %v", storage.ErrValidation, err)
		}
		if len(params.Texts) == 0 {
			return nil, fmt.Errorf("%w: texts must not be empty", storage.ErrValidation)
		}

		result := EmbedCorpusResult{Total: len(params.Texts)}
		for i, text := range params.Texts {
			memoryID, err := index.Upsert(ctx, storage.UpsertRequest{
				UserID:    params.UserID,
				SessionID: params.SessionID,
				Type:      params.Type,
				Text:      text,
				Tags:      params.Tags,
			})
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("item %d: %v", i, err))
			} else {
				result.Succeeded++
				result.MemoryIDs = append(result.MemoryIDs, memoryID)
			}
			progress(fmt.Sprintf("embedding (%d/%d)", i+1, len(params.Texts)), (i+1)*100/len(params.Texts))
		}

		if result.Succeeded == 0 {
			return nil, fmt.Errorf("all %d items failed: %s", result.Total, strings.Join(result.Errors, "; "))
		}
		return json.Marshal(result)
	}
}
