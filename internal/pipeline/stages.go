package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/zhuguadundan/videowhisper/internal/audio"
	"github.com/zhuguadundan/videowhisper/internal/llm"
	"github.com/zhuguadundan/videowhisper/internal/media"
	"github.com/zhuguadundan/videowhisper/internal/stt"
	"github.com/zhuguadundan/videowhisper/internal/task"
)

// stageError tags an error with the ErrorKind the task should fail with,
// so run() doesn't need to re-sniff every stage's concrete error type.
type stageError struct {
	kind task.ErrorKind
	err  error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func classifyStageError(err error) (task.ErrorKind, string) {
	var se *stageError
	if errors.As(err, &se) {
		return se.kind, se.err.Error()
	}
	return task.ErrInternal, err.Error()
}

// processResult holds every piece process() produces; writeArtifacts then
// renders it to disk.
type processResult struct {
	Media        task.Media
	Segments     []stt.TranscriptionSegment
	RawFullText  string
	Polished     string
	PolishFailed bool
	Summary      *llm.SummaryResult
	SummaryErr   string
	Analysis     *llm.AnalysisResult
	AnalysisErr  string
	Timings      map[string]float64
	Artifacts    *task.Artifacts
}

// process drives one task through fetch -> extract -> transcribe ->
// polish -> summarize -> analyze, checking cancellation at every stage
// boundary and between STT segments.
func (e *Engine) process(ctx context.Context, t *task.Task, taskDir string) (*processResult, error) {
	result := &processResult{Timings: map[string]float64{}}

	audioPath, err := e.fetchStage(ctx, t, taskDir, result)
	if err != nil {
		return nil, err
	}
	if err := e.checkCancel(ctx); err != nil {
		return nil, err
	}

	segments, err := e.extractStage(ctx, t.ID, audioPath, taskDir, result)
	if err != nil {
		return nil, err
	}
	if err := e.checkCancel(ctx); err != nil {
		return nil, err
	}

	if err := e.transcribeStage(ctx, t.ID, segments, result); err != nil {
		return nil, err
	}
	if err := e.checkCancel(ctx); err != nil {
		return nil, err
	}

	e.polishStage(ctx, t.ID, result)
	if err := e.checkCancel(ctx); err != nil {
		return nil, err
	}

	e.summarizeStage(ctx, t.ID, result)
	if err := e.checkCancel(ctx); err != nil {
		return nil, err
	}

	e.analyzeStage(ctx, t.ID, result)

	return result, nil
}

func (e *Engine) fetchStage(ctx context.Context, t *task.Task, taskDir string, result *processResult) (string, error) {
	e.setStage(ctx, t.ID, task.StateFetching, "")

	if t.Source.Kind == task.SourceUpload {
		dur, err := audio.ProbeDuration(ctx, t.Source.Path)
		if err != nil {
			return "", &stageError{kind: task.ErrInternal, err: fmt.Errorf("probe uploaded file: %w", err)}
		}
		result.Media = task.Media{
			Title:           filepath.Base(t.Source.Path),
			DurationSeconds: dur,
		}
		return t.Source.Path, nil
	}

	start := time.Now()
	res, err := e.fetcher.Fetch(ctx, t.Source.Value, taskDir, e.takeCookies(t.ID))
	result.Timings["fetch"] = time.Since(start).Seconds()
	if err != nil {
		var mediaErr *media.Error
		if errors.As(err, &mediaErr) {
			return "", &stageError{kind: mapMediaErrorKind(mediaErr.Kind), err: err}
		}
		return "", &stageError{kind: task.ErrNetwork, err: err}
	}

	result.Media = task.Media{
		Title:           res.Info.Title,
		Uploader:        res.Info.Uploader,
		DurationSeconds: res.Info.DurationSeconds,
		SourceURL:       res.Info.SourceURL,
	}
	return res.AudioPath, nil
}

func mapMediaErrorKind(kind media.Kind) task.ErrorKind {
	switch kind {
	case media.KindURLRejected:
		return task.ErrURLRejected
	case media.KindNotFound, media.KindGeoBlocked:
		return task.ErrNotFound
	case media.KindAuthRequired:
		return task.ErrUnauthorized
	case media.KindDiskFull:
		return task.ErrDiskFull
	case media.KindToolMissing:
		return task.ErrToolMissing
	default:
		return task.ErrNetwork
	}
}

func (e *Engine) extractStage(ctx context.Context, id, audioPath, taskDir string, result *processResult) ([]audio.Segment, error) {
	e.setStage(ctx, id, task.StateExtracting, "")

	duration := result.Media.DurationSeconds
	if duration <= 0 {
		d, err := audio.ProbeDuration(ctx, audioPath)
		if err != nil {
			return nil, &stageError{kind: task.ErrInternal, err: fmt.Errorf("probe duration: %w", err)}
		}
		duration = d
		result.Media.DurationSeconds = duration
	}

	segments, err := e.splitter.Split(ctx, audioPath, taskDir, duration, e.cfg.LongAudioThresholdSeconds, e.cfg.SegmentDurationSeconds)
	if err != nil {
		var splitErr *audio.ErrSplitFailed
		if errors.As(err, &splitErr) {
			return nil, &stageError{kind: task.ErrToolMissing, err: err}
		}
		return nil, &stageError{kind: task.ErrInternal, err: err}
	}

	_, _ = e.registry.Update(id, func(rec *task.Task) {
		rec.SegmentsTotal = len(segments)
	})
	return segments, nil
}

func (e *Engine) transcribeStage(ctx context.Context, id string, segments []audio.Segment, result *processResult) error {
	e.setStage(ctx, id, task.StateTranscribing, "")
	start := time.Now()

	onSegmentDone := func(index int) {
		_, _ = e.registry.Update(id, func(rec *task.Task) {
			rec.SegmentsDone = index + 1
			rec.Progress = transcribingProgress(rec.SegmentsDone, rec.SegmentsTotal)
		})
	}

	sttResult, err := stt.TranscribeAll(ctx, segments, e.sttClient, e.cfg.STT, onSegmentDone)
	result.Timings["transcribe"] = time.Since(start).Seconds()
	if err != nil {
		var consecErr *stt.ErrConsecutiveFailures
		if errors.As(err, &consecErr) {
			return &stageError{kind: task.ErrSTTConsecutiveFailures, err: err}
		}
		return &stageError{kind: task.ErrVendorError, err: err}
	}

	result.Segments = sttResult.Segments
	result.RawFullText = sttResult.FullText
	return nil
}

// polishStage, summarizeStage, and analyzeStage are each non-fatal: a
// failure here is recorded but does not fail the task.
func (e *Engine) polishStage(ctx context.Context, id string, result *processResult) {
	e.setStage(ctx, id, task.StatePolishing, "")
	start := time.Now()
	out, err := e.llmFor(id).Polish(ctx, result.RawFullText)
	result.Timings["polish"] = time.Since(start).Seconds()
	if err != nil {
		e.logger.Warn("pipeline: polish failed, falling back to raw transcript", "task_id", id, "error", err)
		result.Polished = result.RawFullText
		result.PolishFailed = true
		return
	}
	result.Polished = out
}

func (e *Engine) summarizeStage(ctx context.Context, id string, result *processResult) {
	e.setStage(ctx, id, task.StateSummarizing, "")
	start := time.Now()
	out, err := e.llmFor(id).Summarize(ctx, result.Polished)
	result.Timings["summarize"] = time.Since(start).Seconds()
	if err != nil {
		e.logger.Warn("pipeline: summarize failed", "task_id", id, "error", err)
		result.SummaryErr = err.Error()
		return
	}
	result.Summary = &out
}

func (e *Engine) analyzeStage(ctx context.Context, id string, result *processResult) {
	e.setStage(ctx, id, task.StateAnalyzing, "")
	start := time.Now()
	out, err := e.llmFor(id).Analyze(ctx, result.Polished)
	result.Timings["analyze"] = time.Since(start).Seconds()
	if err != nil {
		e.logger.Warn("pipeline: analyze failed", "task_id", id, "error", err)
		result.AnalysisErr = err.Error()
		return
	}
	result.Analysis = &out
}
