// Package storage provides composable storage interfaces for the Recall
// memory subsystem.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed. The default backend is
// embedded SQLite; the vector index additionally has Postgres/pgvector and
// in-memory implementations.
package storage

import (
	"context"

	"github.com/verdantlabs/recall/pkg/types"
)

// MemoryStore provides lifecycle operations for memory records and the
// append-only conversation log.
type MemoryStore interface {
	// Write creates or updates a memory record. A record without an ID
	// gets one assigned; writing an existing ID replaces the record
	// (last writer wins). Returns the record ID.
	// Returns ErrValidation for empty content, out-of-range importance,
	// an unknown kind, or a notebook entry whose parent is missing or
	// whose parent chain would form a cycle.
	Write(ctx context.Context, record *types.Record) (string, error)

	// Get retrieves a record by ID.
	// Returns ErrNotFound if the record doesn't exist.
	Get(ctx context.Context, id string) (*types.Record, error)

	// Query retrieves records matching the filter, ordered by importance
	// descending, then updated_at descending, then ID ascending.
	Query(ctx context.Context, filter Filter) ([]*types.Record, error)

	// Deactivate soft-deletes a record. Deactivating an already inactive
	// record is a no-op, not an error.
	// Returns ErrNotFound if the record doesn't exist.
	Deactivate(ctx context.Context, id string) error

	// AppendTurn appends one turn to the conversation log and returns
	// its assigned sequence ID. Turns are immutable once written.
	AppendTurn(ctx context.Context, turn *types.ConversationTurn) (int64, error)

	// RecentTurns returns the newest turns matching the filter, ordered
	// newest first.
	RecentTurns(ctx context.Context, filter TurnFilter) ([]*types.ConversationTurn, error)

	// Close releases any resources held by the store.
	Close() error
}

// VectorIndex provides idempotent memorization and semantic search.
type VectorIndex interface {
	// Upsert memorizes one unit of text. The memory ID is derived from
	// the content, so memorizing the same text twice is a no-op that
	// returns the existing ID without re-embedding. An embedding
	// failure leaves the index unchanged.
	Upsert(ctx context.Context, req UpsertRequest) (string, error)

	// Search embeds the query text and returns the top-k most similar
	// entries for the user, ordered by similarity descending with ties
	// broken by recency. Returns ErrValidation when opts.TopK < 1.
	Search(ctx context.Context, userID, query string, opts VectorSearchOptions) ([]Match, error)
}

// TaskStore persists async task records and enforces the task state
// machine: PENDING -> STARTED -> {SUCCESS, FAILURE}, terminal states
// absorbing.
type TaskStore interface {
	// CreateTask persists a new PENDING task record.
	CreateTask(ctx context.Context, task *types.TaskRecord) error

	// GetTask retrieves a task by ID.
	// Returns ErrNotFound if the task doesn't exist.
	GetTask(ctx context.Context, id string) (*types.TaskRecord, error)

	// MarkStarted transitions a PENDING task to STARTED.
	// Returns ErrTerminalState if the task already finished.
	MarkStarted(ctx context.Context, id string) error

	// UpdateProgress records stage and percent for a running task.
	// Returns ErrTerminalState if the task already finished.
	UpdateProgress(ctx context.Context, id string, stage string, percent int) error

	// Complete transitions a task to SUCCESS with its result payload.
	// Returns ErrTerminalState if the task already finished.
	Complete(ctx context.Context, id string, result []byte) error

	// Fail transitions a task to FAILURE with an error message.
	// Returns ErrTerminalState if the task already finished.
	Fail(ctx context.Context, id string, errMsg string) error
}
