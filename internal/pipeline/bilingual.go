package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/zhuguadundan/videowhisper/internal/observability"
	"github.com/zhuguadundan/videowhisper/internal/safety"
	"github.com/zhuguadundan/videowhisper/internal/task"
)

// ErrNotCompleted is returned by Translate when the target task is not in
// status completed: bilingual translation is never available for a task
// without a usable completed transcript.
var ErrNotCompleted = fmt.Errorf("bilingual translation requires a completed task")

// Translate runs the optional bilingual follow-up pass: it does not touch
// Status, only TranslationStatus, and produces bilingual.md
// alongside the task's other artifacts. It is safe to call concurrently
// with the task's own lifecycle since it never re-enters the state machine.
func (e *Engine) Translate(ctx context.Context, id, targetLanguage string) error {
	t, ok := e.registry.Get(id)
	if !ok {
		return task.ErrTaskNotFound
	}
	if t.Status != task.StatusCompleted {
		return ErrNotCompleted
	}
	if t.Artifacts == nil || t.Artifacts.Transcript == "" {
		return ErrNotCompleted
	}

	source, err := os.ReadFile(t.Artifacts.Transcript)
	if err != nil {
		return fmt.Errorf("read transcript for translation: %w", err)
	}

	_, _ = e.registry.Update(id, func(rec *task.Task) {
		rec.TranslationStatus = task.TranslationProcessing
	})

	go e.runTranslate(observability.DetachTraceContext(ctx), id, string(source), targetLanguage)
	return nil
}

func (e *Engine) runTranslate(ctx context.Context, id, transcript, targetLanguage string) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ProcessingTimeout)
	defer cancel()

	start := time.Now()
	bilingual, err := e.llmFor(id).Translate(ctx, transcript, targetLanguage)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		e.logger.Warn("pipeline: bilingual translation failed", "task_id", id, "error", err)
		_, _ = e.registry.Update(id, func(rec *task.Task) {
			rec.TranslationStatus = task.TranslationFailed
		})
		return
	}

	t, ok := e.registry.Get(id)
	if !ok {
		return
	}
	taskOutputDir, err := safety.SafeJoin(e.cfg.OutputDir, id)
	if err != nil {
		e.logger.Error("pipeline: bilingual output path escaped root", "task_id", id, "error", err)
		_, _ = e.registry.Update(id, func(rec *task.Task) {
			rec.TranslationStatus = task.TranslationFailed
		})
		return
	}
	base := ""
	if t.Media != nil {
		base = safety.SanitizeFilename(t.Media.Title)
	}
	if base == "" {
		base = id
	}
	bilingualPath, err := safety.SafeJoin(taskOutputDir, base+"_bilingual.md")
	if err != nil {
		e.logger.Error("pipeline: bilingual filename escaped root", "task_id", id, "error", err)
		_, _ = e.registry.Update(id, func(rec *task.Task) {
			rec.TranslationStatus = task.TranslationFailed
		})
		return
	}
	if err := os.WriteFile(bilingualPath, []byte(bilingual), 0o644); err != nil {
		e.logger.Error("pipeline: write bilingual.md failed", "task_id", id, "error", err)
		_, _ = e.registry.Update(id, func(rec *task.Task) {
			rec.TranslationStatus = task.TranslationFailed
		})
		return
	}

	_, _ = e.registry.Update(id, func(rec *task.Task) {
		rec.TranslationStatus = task.TranslationCompleted
		if rec.Artifacts == nil {
			rec.Artifacts = &task.Artifacts{}
		}
		rec.Artifacts.Bilingual = bilingualPath
		if rec.AITimings == nil {
			rec.AITimings = map[string]float64{}
		}
		rec.AITimings["translate"] = elapsed
	})
}
