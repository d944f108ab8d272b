// Package tasks contains the async task orchestrator: submission,
// pollable status/result, and a worker pool that drives registered
// handlers through the PENDING -> STARTED -> {SUCCESS, FAILURE} state
// machine.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/verdantlabs/recall/internal/storage"
	"github.com/verdantlabs/recall/pkg/types"
)

var (
	// ErrNotReady is returned by Result while the task has not reached a
	// terminal state yet.
	ErrNotReady = errors.New("task result not ready")

	// ErrQueueFull is returned by Submit when the work queue cannot
	// accept another task.
	ErrQueueFull = errors.New("task queue full")

	// ErrShutdown is returned by Submit after Shutdown has been called.
	ErrShutdown = errors.New("orchestrator is shut down")

	// ErrUnknownKind is returned by Submit for a kind with no handler.
	ErrUnknownKind = errors.New("unknown task kind")
)

// ProgressFunc reports handler progress: a short stage label and a
// 0-100 percentage.
type ProgressFunc func(stage string, percent int)

// Handler executes one task kind. The returned bytes become the task's
// result payload on success.
type Handler func(ctx context.Context, params json.RawMessage, progress ProgressFunc) ([]byte, error)

// Config tunes the orchestrator's worker pool.
type Config struct {
	// NumWorkers is the number of worker goroutines (default: 4).
	NumWorkers int

	// QueueSize is the work queue buffer size (default: 100).
	QueueSize int

	// ShutdownTimeout is the maximum time to wait for workers to drain
	// on shutdown (default: 30s).
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		NumWorkers:      4,
		QueueSize:       100,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.NumWorkers < 1 {
		return fmt.Errorf("NumWorkers must be >= 1, got %d", c.NumWorkers)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("QueueSize must be >= 1, got %d", c.QueueSize)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("ShutdownTimeout must be >= 0, got %v", c.ShutdownTimeout)
	}
	return nil
}

// job is one unit of queued work.
type job struct {
	taskID string
	kind   string
	params json.RawMessage
}

// Orchestrator accepts task submissions, persists their lifecycle, and
// runs them on a bounded worker pool.
type Orchestrator struct {
	store    storage.TaskStore
	config   Config
	handlers map[string]Handler

	queue     chan *job
	workerCtx context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewOrchestrator creates an orchestrator over the given task store.
func NewOrchestrator(store storage.TaskStore, config Config) (*Orchestrator, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid orchestrator config: %w", err)
	}
	return &Orchestrator{
		store:    store,
		config:   config,
		handlers: make(map[string]Handler),
		queue:    make(chan *job, config.QueueSize),
	}, nil
}

// Register binds a handler to a task kind. Must be called before Start.
func (o *Orchestrator) Register(kind string, handler Handler) {
	o.handlers[kind] = handler
}

// Start launches the worker pool.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started || o.stopped {
		return
	}
	o.started = true

	o.workerCtx, o.cancel = context.WithCancel(context.Background())
	for i := 0; i < o.config.NumWorkers; i++ {
		o.wg.Add(1)
		go o.worker(o.workerCtx, i)
	}
	log.Printf("Started %d task workers", o.config.NumWorkers)
}

// Submit persists a PENDING task record and enqueues it for execution.
// The returned task ID is immediately pollable via Status. A full queue
// fails the submission: the task record is marked FAILURE and an error
// is returned. Returns ErrShutdown after Shutdown.
func (o *Orchestrator) Submit(ctx context.Context, kind string, params json.RawMessage) (string, error) {
	if _, ok := o.handlers[kind]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	o.mu.Lock()
	stopped := o.stopped
	o.mu.Unlock()
	if stopped {
		return "", ErrShutdown
	}

	task := &types.TaskRecord{
		ID:     uuid.New().String(),
		Kind:   kind,
		State:  types.TaskPending,
		Params: params,
	}
	if err := o.store.CreateTask(ctx, task); err != nil {
		return "", fmt.Errorf("failed to persist task: %w", err)
	}

	return task.ID, o.enqueue(ctx, task)
}

// enqueue hands the persisted task to the worker pool. The send happens
// under the mutex: Shutdown flips stopped under the same mutex before
// closing the queue, so no send can race the close.
func (o *Orchestrator) enqueue(ctx context.Context, task *types.TaskRecord) error {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		if err := o.store.Fail(ctx, task.ID, "orchestrator is shut down"); err != nil {
			log.Printf("ERROR: failed to mark rejected task %s: %v", task.ID, err)
		}
		return ErrShutdown
	}

	// Non-blocking enqueue so a saturated pool surfaces backpressure
	// instead of stalling the caller.
	select {
	case o.queue <- &job{taskID: task.ID, kind: task.Kind, params: task.Params}:
		o.mu.Unlock()
		return nil
	default:
		o.mu.Unlock()
		log.Printf("WARNING: task queue full (size=%d), rejecting task %s", o.config.QueueSize, task.ID)
		if err := o.store.Fail(ctx, task.ID, "task queue full"); err != nil {
			log.Printf("ERROR: failed to mark rejected task %s: %v", task.ID, err)
		}
		return ErrQueueFull
	}
}

// Status returns the current task record.
// Returns storage.ErrNotFound for unknown IDs.
func (o *Orchestrator) Status(ctx context.Context, id string) (*types.TaskRecord, error) {
	return o.store.GetTask(ctx, id)
}

// Result returns the task's result payload once it has finished.
// Returns ErrNotReady while the task is PENDING or STARTED, and the
// stored failure as an error for FAILURE tasks.
func (o *Orchestrator) Result(ctx context.Context, id string) (json.RawMessage, error) {
	task, err := o.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	switch task.State {
	case types.TaskSuccess:
		return task.Result, nil
	case types.TaskFailure:
		return nil, fmt.Errorf("task failed: %s", task.Error)
	default:
		return nil, fmt.Errorf("%w: task is %s", ErrNotReady, task.State)
	}
}

// Shutdown stops accepting work and drains the pool, waiting up to the
// configured timeout for in-flight tasks to finish.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return nil
	}
	o.stopped = true
	started := o.started
	o.started = false
	o.mu.Unlock()

	if !started {
		return nil
	}

	close(o.queue)

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("All task workers finished gracefully")
	case <-time.After(o.config.ShutdownTimeout):
		log.Printf("WARNING: shutdown timeout reached, %d queued tasks may be dropped", len(o.queue))
	case <-ctx.Done():
		log.Printf("WARNING: shutdown context cancelled, %d queued tasks may be dropped", len(o.queue))
		o.cancel()
		return ctx.Err()
	}

	o.cancel()
	return nil
}

// worker processes queued jobs until the queue is closed.
func (o *Orchestrator) worker(ctx context.Context, workerID int) {
	defer o.wg.Done()

	log.Printf("Task worker %d started", workerID)
	for j := range o.queue {
		o.process(ctx, workerID, j)
	}
	log.Printf("Task worker %d stopped", workerID)
}

// process drives one job through the state machine.
func (o *Orchestrator) process(ctx context.Context, workerID int, j *job) {
	// Store writes use a background context so a cancelled worker
	// context can't strand a task in STARTED.
	dbCtx := context.Background()

	if err := o.store.MarkStarted(dbCtx, j.taskID); err != nil {
		log.Printf("ERROR: worker %d failed to start task %s: %v", workerID, j.taskID, err)
		return
	}

	handler := o.handlers[j.kind]
	progress := func(stage string, percent int) {
		if err := o.store.UpdateProgress(dbCtx, j.taskID, stage, percent); err != nil {
			log.Printf("WARNING: worker %d failed to record progress for task %s: %v", workerID, j.taskID, err)
		}
	}

	result, err := handler(ctx, j.params, progress)
	if err != nil {
		log.Printf("Worker %d: task %s (%s) failed: %v", workerID, j.taskID, j.kind, err)
		if ferr := o.store.Fail(dbCtx, j.taskID, err.Error()); ferr != nil {
			log.Printf("ERROR: worker %d failed to mark task %s failed: %v", workerID, j.taskID, ferr)
		}
		return
	}

	if cerr := o.store.Complete(dbCtx, j.taskID, result); cerr != nil {
		log.Printf("ERROR: worker %d failed to complete task %s: %v", workerID, j.taskID, cerr)
		return
	}
	log.Printf("Worker %d: task %s (%s) completed", workerID, j.taskID, j.kind)
}
