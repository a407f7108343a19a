package task

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/renameio/v2"
	"github.com/oklog/ulid/v2"
)

// Registry is the single owner of every Task. All mutation happens inside
// run, a dedicated goroutine that serializes updates and persists a durable
// snapshot after every change; callers never take a lock themselves and
// never see a Task pointer the owner goroutine might still be mutating:
// every value crossing the channel boundary is either owned exclusively by
// the caller (a freshly cloned Task) or by the registry goroutine.
type Registry struct {
	snapshotPath string
	logger       *slog.Logger

	requests chan request
	done     chan struct{}
}

type request struct {
	fn func(tasks map[string]*Task)
}

// NewRegistry constructs a Registry backed by snapshotPath (e.g.
// "temp/.task_history.json") and starts its owner goroutine. Call
// RecoverOnBoot once at startup before serving traffic.
func NewRegistry(snapshotPath string, logger *slog.Logger) *Registry {
	r := &Registry{
		snapshotPath: snapshotPath,
		logger:       logger,
		requests:     make(chan request),
		done:         make(chan struct{}),
	}
	go r.run()
	return r
}

// Close stops the owner goroutine. Pending requests already queued are
// still processed before shutdown. Calling Close again after it has
// returned is a no-op.
func (r *Registry) Close() {
	select {
	case <-r.done:
		return
	default:
	}
	close(r.requests)
	<-r.done
}

func (r *Registry) run() {
	defer close(r.done)
	tasks := r.loadSnapshot()
	for req := range r.requests {
		req.fn(tasks)
	}
}

// call synchronously runs fn on the owner goroutine and waits for it to
// finish, returning whatever fn captured into its closure.
func (r *Registry) call(fn func(tasks map[string]*Task)) {
	reply := make(chan struct{})
	r.requests <- request{fn: func(tasks map[string]*Task) {
		fn(tasks)
		close(reply)
	}}
	<-reply
}

// Create allocates a new pending task for source and persists it before
// returning.
func (r *Registry) Create(source Source, requestID string) (*Task, error) {
	now := time.Now().UTC()
	t := &Task{
		ID:        newTaskID(),
		Status:    StatusPending,
		Progress:  0,
		Stage:     StageLabel(StatePending),
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
		RequestID: requestID,
	}

	var persistErr error
	r.call(func(tasks map[string]*Task) {
		tasks[t.ID] = t
		persistErr = r.persistLocked(tasks)
	})
	if persistErr != nil {
		return nil, fmt.Errorf("persist new task: %w", persistErr)
	}
	return t.Clone(), nil
}

// Update applies mutator to the task identified by id, bumps updated_at,
// persists durably, and returns the post-mutation snapshot. mutator must
// not retain the *Task it receives beyond the call.
func (r *Registry) Update(id string, mutator func(t *Task)) (*Task, error) {
	var result *Task
	var callErr error
	r.call(func(tasks map[string]*Task) {
		t, ok := tasks[id]
		if !ok {
			callErr = ErrTaskNotFound
			return
		}
		mutator(t)
		t.UpdatedAt = time.Now().UTC()
		if t.Progress < 0 {
			t.Progress = 0
		}
		if t.Progress > 100 {
			t.Progress = 100
		}
		if err := r.persistLocked(tasks); err != nil {
			callErr = fmt.Errorf("persist update: %w", err)
			return
		}
		result = t.Clone()
	})
	if callErr != nil {
		return nil, callErr
	}
	return result, nil
}

// Get returns an immutable snapshot of the task identified by id.
func (r *Registry) Get(id string) (*Task, bool) {
	var result *Task
	var found bool
	r.call(func(tasks map[string]*Task) {
		if t, ok := tasks[id]; ok {
			result = t.Clone()
			found = true
		}
	})
	return result, found
}

// List returns every task's Summary, newest first.
func (r *Registry) List() []Summary {
	var out []Summary
	r.call(func(tasks map[string]*Task) {
		out = make([]Summary, 0, len(tasks))
		for _, t := range tasks {
			out = append(out, t.ToSummary())
		}
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// ActiveIDs returns the IDs of every task not yet in a terminal state,
// used by stop-all to set every active task's cancel flag.
func (r *Registry) ActiveIDs() []string {
	var ids []string
	r.call(func(tasks map[string]*Task) {
		for id, t := range tasks {
			if t.Status == StatusPending || t.Status == StatusProcessing {
				ids = append(ids, id)
			}
		}
	})
	return ids
}

// Delete removes the task record identified by id and returns the final
// snapshot so the caller can clean up its files.
func (r *Registry) Delete(id string) (*Task, bool, error) {
	var result *Task
	var found bool
	var persistErr error
	r.call(func(tasks map[string]*Task) {
		t, ok := tasks[id]
		if !ok {
			return
		}
		found = true
		result = t.Clone()
		delete(tasks, id)
		persistErr = r.persistLocked(tasks)
	})
	if persistErr != nil {
		return nil, found, fmt.Errorf("persist delete: %w", persistErr)
	}
	return result, found, nil
}

// RecoverOnBoot rewrites every persisted `pending`/`processing` task to
// `failed` with error kind stale_on_restart, so no worker ever resumes a
// half-finished run. It must
// run once, before any worker is dispatched.
func (r *Registry) RecoverOnBoot() (int, error) {
	recovered := 0
	var persistErr error
	r.call(func(tasks map[string]*Task) {
		for _, t := range tasks {
			if t.Status == StatusPending || t.Status == StatusProcessing {
				t.Status = StatusFailed
				t.Error = &TaskError{Kind: ErrStaleOnRestart, Message: "process restarted while task was in flight"}
				t.UpdatedAt = time.Now().UTC()
				recovered++
			}
		}
		if recovered > 0 {
			persistErr = r.persistLocked(tasks)
		}
	})
	if persistErr != nil {
		return recovered, fmt.Errorf("persist recovery: %w", persistErr)
	}
	return recovered, nil
}

// persistLocked writes the full task map to r.snapshotPath atomically
// (write-temp-then-rename via renameio), matching the registry's
// single-writer durability requirement. Must only be called from run.
func (r *Registry) persistLocked(tasks map[string]*Task) error {
	list := make([]*Task, 0, len(tasks))
	for _, t := range tasks {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.snapshotPath), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	pending, err := renameio.NewPendingFile(r.snapshotPath, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("open pending snapshot: %w", err)
	}
	defer pending.Cleanup()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// loadSnapshot reads the existing snapshot file, if any, into memory. It
// runs once, before run starts serving requests, so no locking is needed.
func (r *Registry) loadSnapshot() map[string]*Task {
	tasks := make(map[string]*Task)
	data, err := os.ReadFile(r.snapshotPath)
	if err != nil {
		if r.logger != nil && !os.IsNotExist(err) {
			r.logger.Warn("failed to read task registry snapshot", slog.String("error", err.Error()))
		}
		return tasks
	}

	var list []*Task
	if err := json.Unmarshal(data, &list); err != nil {
		if r.logger != nil {
			r.logger.Error("corrupt task registry snapshot, starting empty", slog.String("error", err.Error()))
		}
		return tasks
	}
	for _, t := range list {
		tasks[t.ID] = t
	}
	return tasks
}

func newTaskID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// ErrTaskNotFound is returned by Update when id has no matching task.
var ErrTaskNotFound = errors.New("task not found")
