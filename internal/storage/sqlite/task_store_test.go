package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/verdantlabs/recall/internal/storage"
	"github.com/verdantlabs/recall/pkg/types"
)

func newTestTaskStore(t *testing.T) *TaskStore {
	t.Helper()
	store := newTestStore(t)
	return NewTaskStore(store.DB())
}

func TestTaskLifecycle(t *testing.T) {
	store := newTestTaskStore(t)
	ctx := context.Background()

	task := &types.TaskRecord{ID: "task-1", Kind: "research", Params: []byte(`{"query":"rust async"}`)}
	if err := store.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}

	got, err := store.GetTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("GetTask() failed: %v", err)
	}
	if got.State != types.TaskPending {
		t.Errorf("new task state: got %s, want PENDING", got.State)
	}

	if err := store.MarkStarted(ctx, "task-1"); err != nil {
		t.Fatalf("MarkStarted() failed: %v", err)
	}
	if err := store.UpdateProgress(ctx, "task-1", "synthesizing", 70); err != nil {
		t.Fatalf("UpdateProgress() failed: %v", err)
	}

	got, err = store.GetTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("GetTask() failed: %v", err)
	}
	if got.State != types.TaskStarted || got.Stage != "synthesizing" || got.Percent != 70 {
		t.Errorf("progress: state=%s stage=%q percent=%d", got.State, got.Stage, got.Percent)
	}

	if err := store.Complete(ctx, "task-1", []byte(`{"summary":"done"}`)); err != nil {
		t.Fatalf("Complete() failed: %v", err)
	}
	got, err = store.GetTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("GetTask() failed: %v", err)
	}
	if got.State != types.TaskSuccess {
		t.Errorf("state after Complete(): got %s", got.State)
	}
	if got.Percent != 100 {
		t.Errorf("percent after Complete(): got %d, want 100", got.Percent)
	}
	if string(got.Result) != `{"summary":"done"}` {
		t.Errorf("result: got %s", got.Result)
	}
}

func TestTaskTerminalStatesAbsorbing(t *testing.T) {
	store := newTestTaskStore(t)
	ctx := context.Background()

	if err := store.CreateTask(ctx, &types.TaskRecord{ID: "task-done", Kind: "embed_corpus"}); err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}
	if err := store.Complete(ctx, "task-done", []byte(`{}`)); err != nil {
		t.Fatalf("Complete() failed: %v", err)
	}

	// Every further transition must be rejected.
	if err := store.MarkStarted(ctx, "task-done"); !errors.Is(err, storage.ErrTerminalState) {
		t.Errorf("MarkStarted() after SUCCESS error = %v, want ErrTerminalState", err)
	}
	if err := store.UpdateProgress(ctx, "task-done", "late", 50); !errors.Is(err, storage.ErrTerminalState) {
		t.Errorf("UpdateProgress() after SUCCESS error = %v, want ErrTerminalState", err)
	}
	if err := store.Fail(ctx, "task-done", "too late"); !errors.Is(err, storage.ErrTerminalState) {
		t.Errorf("Fail() after SUCCESS error = %v, want ErrTerminalState", err)
	}

	got, err := store.GetTask(ctx, "task-done")
	if err != nil {
		t.Fatalf("GetTask() failed: %v", err)
	}
	if got.State != types.TaskSuccess {
		t.Errorf("terminal state mutated: got %s", got.State)
	}
}

func TestTaskFailure(t *testing.T) {
	store := newTestTaskStore(t)
	ctx := context.Background()

	if err := store.CreateTask(ctx, &types.TaskRecord{ID: "task-bad", Kind: "research"}); err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}
	if err := store.MarkStarted(ctx, "task-bad"); err != nil {
		t.Fatalf("MarkStarted() failed: %v", err)
	}
	if err := store.Fail(ctx, "task-bad", "provider unavailable"); err != nil {
		t.Fatalf("Fail() failed: %v", err)
	}

	got, err := store.GetTask(ctx, "task-bad")
	if err != nil {
		t.Fatalf("GetTask() failed: %v", err)
	}
	if got.State != types.TaskFailure || got.Error != "provider unavailable" {
		t.Errorf("failure: state=%s error=%q", got.State, got.Error)
	}

	if err := store.Complete(ctx, "task-bad", nil); !errors.Is(err, storage.ErrTerminalState) {
		t.Errorf("Complete() after FAILURE error = %v, want ErrTerminalState", err)
	}
}

func TestTaskNotFound(t *testing.T) {
	store := newTestTaskStore(t)
	ctx := context.Background()

	if _, err := store.GetTask(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetTask(missing) error = %v, want ErrNotFound", err)
	}
	if err := store.MarkStarted(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("MarkStarted(missing) error = %v, want ErrNotFound", err)
	}
}
