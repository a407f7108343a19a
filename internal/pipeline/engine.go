package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zhuguadundan/videowhisper/internal/audio"
	"github.com/zhuguadundan/videowhisper/internal/llm"
	"github.com/zhuguadundan/videowhisper/internal/media"
	"github.com/zhuguadundan/videowhisper/internal/stt"
	"github.com/zhuguadundan/videowhisper/internal/task"
)

var tracer = otel.Tracer("videowhisper-pipeline")

// Dirs names the two filesystem roots the engine reads and writes under.
type Dirs struct {
	TempDir   string
	OutputDir string
}

// Config bounds the engine's behavior: segmentation thresholds, retry
// tuning, the
// concurrency ceiling, and the processing wall-clock budget, mirroring
// config.ProcessingConfig/SecurityConfig/SystemConfig.
type Config struct {
	Dirs
	LongAudioThresholdSeconds float64
	SegmentDurationSeconds    float64
	ProcessingTimeout         time.Duration
	MaxConcurrentTasks        int
	MaxPendingTasks           int
	KeepTempFiles             bool
	STT                       stt.Config
}

// Engine is the single dispatcher driving every task through
// fetch -> segment -> transcribe -> polish -> summarize -> analyze -> write.
// A fixed worker pool reading off a FIFO queue implements the concurrency
// ceiling and FIFO admission.
type Engine struct {
	registry  *task.Registry
	fetcher   *media.Fetcher
	splitter  *audio.Splitter
	sttClient stt.VendorClient
	llmProv   llm.Provider
	cfg       Config
	logger    *slog.Logger

	queue chan string

	mu           sync.Mutex
	cancels      map[string]context.CancelFunc
	llmOverrides map[string]llm.Provider
	cookies      map[string]string
}

// New builds an Engine and starts its worker pool. Call Close to stop
// accepting new dispatches (in-flight tasks are not interrupted by Close;
// use StopAll to cancel them).
func New(registry *task.Registry, fetcher *media.Fetcher, splitter *audio.Splitter, sttClient stt.VendorClient, llmProv llm.Provider, cfg Config, logger *slog.Logger) *Engine {
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = 1
	}
	queueSize := cfg.MaxPendingTasks
	if queueSize <= 0 {
		queueSize = 50
	}
	e := &Engine{
		registry:     registry,
		fetcher:      fetcher,
		splitter:     splitter,
		sttClient:    sttClient,
		llmProv:      llmProv,
		cfg:          cfg,
		logger:       logger,
		queue:        make(chan string, queueSize),
		cancels:      make(map[string]context.CancelFunc),
		llmOverrides: make(map[string]llm.Provider),
		cookies:      make(map[string]string),
	}
	for i := 0; i < cfg.MaxConcurrentTasks; i++ {
		go e.worker()
	}
	return e
}

// Close stops the worker pool once the queued dispatches drain. In-flight
// tasks are not interrupted; use StopAll for that. No Enqueue may be called
// after Close.
func (e *Engine) Close() {
	close(e.queue)
}

// ErrQueueFull is returned by Enqueue when the dispatch queue is already at
// security.max_pending_tasks capacity; callers should surface this as
// conflict_busy.
var ErrQueueFull = errors.New("pipeline: dispatch queue full")

// Enqueue schedules id for FIFO dispatch. The task must already exist in
// the registry with status pending.
func (e *Engine) Enqueue(id string) error {
	select {
	case e.queue <- id:
		return nil
	default:
		return ErrQueueFull
	}
}

// EnqueueWithProvider schedules id like Enqueue, but drives the LLM calls
// (polish, summarize, analyze) for this one task with prov instead of the
// engine's default provider. This is how /api/process's per-request
// llm_provider selection takes effect without every task sharing one
// vendor.
func (e *Engine) EnqueueWithProvider(id string, prov llm.Provider) error {
	if prov != nil {
		e.mu.Lock()
		e.llmOverrides[id] = prov
		e.mu.Unlock()
	}
	return e.Enqueue(id)
}

// SetCookies stages cookies for id's fetch stage. Cookies are held only in
// memory and forgotten once the fetch consumes them, so they never enter
// the persisted task record or the logs.
func (e *Engine) SetCookies(id, cookies string) {
	if cookies == "" {
		return
	}
	e.mu.Lock()
	e.cookies[id] = cookies
	e.mu.Unlock()
}

// takeCookies returns and forgets id's staged cookies, if any.
func (e *Engine) takeCookies(id string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.cookies[id]
	delete(e.cookies, id)
	return c
}

// SetLLMOverride records prov as id's per-task provider override without
// dispatching it, used by the bilingual translate pass (which runs against
// an already-completed task, outside the normal Enqueue flow).
func (e *Engine) SetLLMOverride(id string, prov llm.Provider) {
	if prov == nil {
		return
	}
	e.mu.Lock()
	e.llmOverrides[id] = prov
	e.mu.Unlock()
}

// llmFor returns the per-task provider override for id if one was set via
// EnqueueWithProvider, otherwise the engine's default provider.
func (e *Engine) llmFor(id string) llm.Provider {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.llmOverrides[id]; ok {
		return p
	}
	return e.llmProv
}

// ClearOverride forgets id's per-task provider override, if any. Callers
// invoke this once a task's record is deleted so the override map does not
// grow unbounded over a long-running server's lifetime.
func (e *Engine) ClearOverride(id string) {
	e.mu.Lock()
	delete(e.llmOverrides, id)
	delete(e.cookies, id)
	e.mu.Unlock()
}

// StopAll sets the cancel flag on every currently-running task and marks
// every still-pending task cancelled so the FIFO queue drains without
// running them. Backs the admin stop-all endpoint.
func (e *Engine) StopAll() int {
	e.mu.Lock()
	running := make(map[string]bool, len(e.cancels))
	n := 0
	for id, cancel := range e.cancels {
		running[id] = true
		cancel()
		n++
	}
	e.mu.Unlock()

	for _, id := range e.registry.ActiveIDs() {
		if running[id] {
			continue
		}
		_, err := e.registry.Update(id, func(rec *task.Task) {
			if rec.Status == task.StatusPending {
				rec.Status = task.StatusCancelled
				rec.Error = &task.TaskError{Kind: task.ErrCancelled, Message: "cancelled before dispatch"}
			}
		})
		if err == nil {
			n++
		}
	}
	return n
}

// Stop cancels a single running task's context, if it is currently running.
func (e *Engine) Stop(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	cancel, ok := e.cancels[id]
	if ok {
		cancel()
	}
	return ok
}

func (e *Engine) worker() {
	for id := range e.queue {
		e.run(id)
	}
}

func (e *Engine) run(id string) {
	ctx, cancel := context.WithCancel(context.Background())
	if e.cfg.ProcessingTimeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, e.cfg.ProcessingTimeout)
		defer timeoutCancel()
	}

	ctx, span := tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.String("task_id", id)),
	)
	defer span.End()

	e.mu.Lock()
	e.cancels[id] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.cancels, id)
		e.mu.Unlock()
		cancel()
	}()

	t, ok := e.registry.Get(id)
	if !ok {
		e.logger.Error("pipeline: task vanished before dispatch", "task_id", id)
		return
	}
	if t.Status != task.StatusPending {
		// Cancelled (stop-all) or deleted while queued.
		return
	}

	taskDir := filepath.Join(e.cfg.TempDir, t.ID)
	if err := os.MkdirAll(taskDir, 0o755); err != nil {
		e.fail(id, task.ErrInternal, fmt.Sprintf("create task dir: %v", err))
		return
	}

	result, err := e.process(ctx, t, taskDir)
	if err != nil {
		span.RecordError(err)
		if ctx.Err() != nil {
			kind := task.ErrCancelled
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				kind = task.ErrTimeout
			}
			span.SetStatus(codes.Error, string(kind))
			e.fail(id, kind, err.Error())
			return
		}
		kind, message := classifyStageError(err)
		span.SetStatus(codes.Error, string(kind))
		e.fail(id, kind, message)
		return
	}

	if err := e.writeArtifacts(ctx, t.ID, t.CreatedAt, result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write artifacts failed")
		e.fail(id, task.ErrInternal, fmt.Sprintf("write artifacts: %v", err))
		return
	}

	if !e.cfg.KeepTempFiles {
		_ = os.RemoveAll(taskDir)
	}

	_, _ = e.registry.Update(id, func(rec *task.Task) {
		rec.Status = task.StatusCompleted
		rec.Stage = task.StageLabel(task.StateCompleted)
		rec.StageDetail = ""
		rec.Progress = stageEndProgress(task.StateCompleted)
		rec.Media = &result.Media
		rec.Artifacts = result.Artifacts
		rec.AITimings = result.Timings
	})
	span.SetStatus(codes.Ok, "complete")
}

func (e *Engine) fail(id string, kind task.ErrorKind, message string) {
	status := task.StatusFailed
	if kind == task.ErrCancelled {
		status = task.StatusCancelled
	}
	_, err := e.registry.Update(id, func(rec *task.Task) {
		rec.Status = status
		rec.Error = &task.TaskError{Kind: kind, Message: message}
	})
	if err != nil {
		e.logger.Error("pipeline: failed to persist failure", "task_id", id, "error", err)
	}
}

// setStage moves the task to state, setting progress to the stage's start
// value and recording a human-readable detail string. The transition is
// also recorded as an event on the task's pipeline span.
func (e *Engine) setStage(ctx context.Context, id string, state task.State, detail string) {
	trace.SpanFromContext(ctx).AddEvent("stage_transition",
		trace.WithAttributes(
			attribute.String("stage", task.StageLabel(state)),
			attribute.Int("progress", stageStartProgress(state)),
		),
	)
	_, _ = e.registry.Update(id, func(rec *task.Task) {
		rec.Status = task.StatusProcessing
		rec.Stage = task.StageLabel(state)
		rec.StageDetail = detail
		if p := stageStartProgress(state); p > rec.Progress {
			rec.Progress = p
		}
	})
}

func (e *Engine) checkCancel(ctx context.Context) error {
	return ctx.Err()
}
