package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/verdantlabs/recall/internal/storage"
	"github.com/verdantlabs/recall/pkg/types"
)

// TaskStore implements storage.TaskStore on SQLite. State machine
// enforcement happens in the UPDATE WHERE clauses: a write that would
// touch a terminal task matches zero rows and is rejected.
type TaskStore struct {
	db  *sql.DB
	now storage.Clock
}

// NewTaskStore creates a task store sharing the given database handle.
func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db, now: time.Now}
}

// SetClock replaces the store's time source for tests.
func (s *TaskStore) SetClock(clock storage.Clock) {
	s.now = clock
}

// CreateTask persists a new PENDING task record.
func (s *TaskStore) CreateTask(ctx context.Context, task *types.TaskRecord) error {
	if task == nil || task.ID == "" || task.Kind == "" {
		return fmt.Errorf("%w: task id and kind are required", storage.ErrValidation)
	}

	now := s.now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	if task.State == "" {
		task.State = types.TaskPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, kind, state, stage, percent, params, result, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Kind, string(task.State), task.Stage, task.Percent,
		nullableString(task.Params), nullableString(task.Result), task.Error,
		task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (s *TaskStore) GetTask(ctx context.Context, id string) (*types.TaskRecord, error) {
	var task types.TaskRecord
	var state string
	var stage, params, result, errMsg sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT id, kind, state, stage, percent, params, result, error, created_at, updated_at
		FROM tasks WHERE id = ?`, id,
	).Scan(&task.ID, &task.Kind, &state, &stage, &task.Percent,
		&params, &result, &errMsg, &task.CreatedAt, &task.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	task.State = types.TaskState(state)
	task.Stage = stage.String
	if params.Valid && params.String != "" {
		task.Params = []byte(params.String)
	}
	if result.Valid && result.String != "" {
		task.Result = []byte(result.String)
	}
	task.Error = errMsg.String
	return &task, nil
}

// MarkStarted transitions a PENDING task to STARTED.
func (s *TaskStore) MarkStarted(ctx context.Context, id string) error {
	return s.transition(ctx, id,
		"UPDATE tasks SET state = ?, updated_at = ? WHERE id = ? AND state NOT IN (?, ?)",
		string(types.TaskStarted), s.now(), id,
		string(types.TaskSuccess), string(types.TaskFailure))
}

// UpdateProgress records stage and percent for a running task.
func (s *TaskStore) UpdateProgress(ctx context.Context, id string, stage string, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return s.transition(ctx, id,
		"UPDATE tasks SET stage = ?, percent = ?, updated_at = ? WHERE id = ? AND state NOT IN (?, ?)",
		stage, percent, s.now(), id,
		string(types.TaskSuccess), string(types.TaskFailure))
}

// Complete transitions a task to SUCCESS with its result payload.
func (s *TaskStore) Complete(ctx context.Context, id string, result []byte) error {
	return s.transition(ctx, id,
		"UPDATE tasks SET state = ?, result = ?, percent = 100, updated_at = ? WHERE id = ? AND state NOT IN (?, ?)",
		string(types.TaskSuccess), nullableString(result), s.now(), id,
		string(types.TaskSuccess), string(types.TaskFailure))
}

// Fail transitions a task to FAILURE with an error message.
func (s *TaskStore) Fail(ctx context.Context, id string, errMsg string) error {
	return s.transition(ctx, id,
		"UPDATE tasks SET state = ?, error = ?, updated_at = ? WHERE id = ? AND state NOT IN (?, ?)",
		string(types.TaskFailure), errMsg, s.now(), id,
		string(types.TaskSuccess), string(types.TaskFailure))
}

// transition executes a guarded state update. Zero matched rows means
// either the task doesn't exist (ErrNotFound) or it already finished
// (ErrTerminalState).
func (s *TaskStore) transition(ctx context.Context, id, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check task update: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var state string
	err = s.db.QueryRowContext(ctx, "SELECT state FROM tasks WHERE id = ?", id).Scan(&state)
	if err == sql.ErrNoRows {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check task state: %w", err)
	}
	return fmt.Errorf("%w: task %s is %s", storage.ErrTerminalState, id, state)
}

// Compile-time interface check.
var _ storage.TaskStore = (*TaskStore)(nil)
