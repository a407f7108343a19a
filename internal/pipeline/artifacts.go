package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/zhuguadundan/videowhisper/internal/safety"
	"github.com/zhuguadundan/videowhisper/internal/stt"
	"github.com/zhuguadundan/videowhisper/internal/task"
)

// dataRecord is the shape persisted to data.json: the full record a client
// can retrieve via /api/result.
type dataRecord struct {
	TaskID string `json:"task_id"`
	Media  struct {
		Title    string  `json:"title"`
		Uploader string  `json:"uploader"`
		Duration float64 `json:"duration"`
	} `json:"media"`
	Transcript struct {
		FullText string          `json:"full_text"`
		Segments []segmentRecord `json:"segments"`
	} `json:"transcript"`
	Summary     *summaryRecord     `json:"summary,omitempty"`
	Analysis    *analysisRecord    `json:"analysis,omitempty"`
	Timings     map[string]float64 `json:"timings"`
	CreatedAt   time.Time          `json:"created_at"`
	CompletedAt time.Time          `json:"completed_at"`
}

type segmentRecord struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type summaryRecord struct {
	BriefSummary    string   `json:"brief_summary,omitempty"`
	Keywords        []string `json:"keywords,omitempty"`
	DetailedSummary string   `json:"detailed_summary,omitempty"`
	Error           string   `json:"error,omitempty"`
}

type analysisRecord struct {
	ContentType         string   `json:"content_type,omitempty"`
	Sentiment           string   `json:"sentiment,omitempty"`
	LanguageStyle       string   `json:"language_style,omitempty"`
	EstimatedDifficulty string   `json:"estimated_difficulty,omitempty"`
	TargetAudience      string   `json:"target_audience,omitempty"`
	MainTopics          []string `json:"main_topics,omitempty"`
	Error               string   `json:"error,omitempty"`
}

// writeArtifacts renders result to output/<id>/: the transcript, the
// timestamped transcript, the summary, and data.json. Filenames are derived
// from the sanitized media title with a stable suffix per kind.
func (e *Engine) writeArtifacts(ctx context.Context, id string, createdAt time.Time, result *processResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.setStage(ctx, id, task.StateWriting, "")

	taskOutputDir, err := safety.SafeJoin(e.cfg.OutputDir, id)
	if err != nil {
		return fmt.Errorf("resolve output dir: %w", err)
	}
	if err := os.MkdirAll(taskOutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	base := safety.SanitizeFilename(result.Media.Title)
	if base == "" {
		base = id
	}

	artifacts := &task.Artifacts{}

	transcriptPath, err := safety.SafeJoin(taskOutputDir, base+"_transcript.md")
	if err != nil {
		return err
	}
	if err := os.WriteFile(transcriptPath, []byte(renderTranscript(result)), 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	artifacts.Transcript = transcriptPath

	timestampsPath, err := safety.SafeJoin(taskOutputDir, base+"_transcript_timestamps.md")
	if err != nil {
		return err
	}
	if err := os.WriteFile(timestampsPath, []byte(renderTimestamps(result.Segments)), 0o644); err != nil {
		return fmt.Errorf("write timestamps: %w", err)
	}
	artifacts.TranscriptTimestamps = timestampsPath

	summaryPath, err := safety.SafeJoin(taskOutputDir, base+"_summary.md")
	if err != nil {
		return err
	}
	if err := os.WriteFile(summaryPath, []byte(renderSummary(result)), 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	artifacts.Summary = summaryPath

	dataPath, err := safety.SafeJoin(taskOutputDir, base+"_data.json")
	if err != nil {
		return err
	}
	record := buildDataRecord(id, createdAt, result)
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal data.json: %w", err)
	}
	if err := os.WriteFile(dataPath, data, 0o644); err != nil {
		return fmt.Errorf("write data.json: %w", err)
	}
	artifacts.Data = dataPath

	result.Artifacts = artifacts
	return nil
}

func renderTranscript(result *processResult) string {
	text := result.Polished
	if strings.TrimSpace(text) == "" {
		text = result.RawFullText
	}
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(titleOr(result.Media.Title, "Transcript"))
	b.WriteString("\n\n")
	b.WriteString(text)
	b.WriteString("\n")
	return b.String()
}

func renderTimestamps(segments []stt.TranscriptionSegment) string {
	var b strings.Builder
	for _, seg := range segments {
		b.WriteString(fmt.Sprintf("[%s - %s] %s\n\n", formatHHMMSS(seg.StartSeconds), formatHHMMSS(seg.EndSeconds), seg.Text))
	}
	return b.String()
}

func formatHHMMSS(seconds float64) string {
	total := int(seconds + 0.5)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func renderSummary(result *processResult) string {
	var b strings.Builder
	b.WriteString("# Summary\n\n")
	if result.Summary == nil {
		reason := result.SummaryErr
		if reason == "" {
			reason = "summary generation did not run"
		}
		b.WriteString("_Summary unavailable: ")
		b.WriteString(reason)
		b.WriteString("_\n")
		return b.String()
	}
	b.WriteString(result.Summary.BriefSummary)
	b.WriteString("\n\n")
	if len(result.Summary.Keywords) > 0 {
		b.WriteString("**Keywords:** ")
		b.WriteString(strings.Join(result.Summary.Keywords, ", "))
		b.WriteString("\n\n")
	}
	b.WriteString(result.Summary.DetailedSummaryMarkdown)
	b.WriteString("\n")
	return b.String()
}

func buildDataRecord(id string, createdAt time.Time, result *processResult) dataRecord {
	rec := dataRecord{
		TaskID:      id,
		Timings:     result.Timings,
		CreatedAt:   createdAt.UTC(),
		CompletedAt: time.Now().UTC(),
	}
	rec.Media.Title = result.Media.Title
	rec.Media.Uploader = result.Media.Uploader
	rec.Media.Duration = result.Media.DurationSeconds

	rec.Transcript.FullText = result.Polished
	if strings.TrimSpace(rec.Transcript.FullText) == "" {
		rec.Transcript.FullText = result.RawFullText
	}
	rec.Transcript.Segments = make([]segmentRecord, 0, len(result.Segments))
	for _, s := range result.Segments {
		rec.Transcript.Segments = append(rec.Transcript.Segments, segmentRecord{
			Start: s.StartSeconds,
			End:   s.EndSeconds,
			Text:  s.Text,
		})
	}

	if result.Summary != nil {
		rec.Summary = &summaryRecord{
			BriefSummary:    result.Summary.BriefSummary,
			Keywords:        result.Summary.Keywords,
			DetailedSummary: result.Summary.DetailedSummaryMarkdown,
		}
	} else if result.SummaryErr != "" {
		rec.Summary = &summaryRecord{Error: result.SummaryErr}
	}

	if result.Analysis != nil {
		rec.Analysis = &analysisRecord{
			ContentType:         result.Analysis.ContentType,
			Sentiment:           result.Analysis.Sentiment,
			LanguageStyle:       result.Analysis.LanguageStyle,
			EstimatedDifficulty: result.Analysis.EstimatedDifficulty,
			TargetAudience:      result.Analysis.TargetAudience,
			MainTopics:          result.Analysis.MainTopics,
		}
	} else if result.AnalysisErr != "" {
		rec.Analysis = &analysisRecord{Error: result.AnalysisErr}
	}

	return rec
}

func titleOr(title, fallback string) string {
	if strings.TrimSpace(title) == "" {
		return fallback
	}
	return title
}
