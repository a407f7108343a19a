// Package task owns the Task record and its durable registry: the single
// entity every other component reads or mutates, per a strict
// single-writer discipline (see Registry).
package task

import "time"

// Status is the closed set of task lifecycle states.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// TranslationStatus tracks the optional bilingual follow-up pass
// independently of Status.
type TranslationStatus string

const (
	TranslationProcessing TranslationStatus = "processing"
	TranslationCompleted  TranslationStatus = "completed"
	TranslationFailed     TranslationStatus = "failed"
)

// ErrorKind is the closed set of error kinds surfaced to clients and
// recorded on a failed task.
type ErrorKind string

const (
	ErrBadRequest             ErrorKind = "bad_request"
	ErrURLRejected            ErrorKind = "url_rejected"
	ErrPathEscape             ErrorKind = "path_escape"
	ErrUnauthorized           ErrorKind = "unauthorized"
	ErrNotFound               ErrorKind = "not_found"
	ErrConflictBusy           ErrorKind = "conflict_busy"
	ErrToolMissing            ErrorKind = "tool_missing"
	ErrNetwork                ErrorKind = "network"
	ErrVendorError            ErrorKind = "vendor_error"
	ErrVendorRateLimited      ErrorKind = "vendor_rate_limited"
	ErrSTTConsecutiveFailures ErrorKind = "stt_consecutive_failures"
	ErrTimeout                ErrorKind = "timeout"
	ErrCancelled              ErrorKind = "cancelled"
	ErrStaleOnRestart         ErrorKind = "stale_on_restart"
	ErrDiskFull               ErrorKind = "disk_full"
	ErrInternal               ErrorKind = "internal"
)

// SourceKind distinguishes a URL submission from an uploaded file.
type SourceKind string

const (
	SourceURL    SourceKind = "url"
	SourceUpload SourceKind = "upload"
)

// Source is the tagged variant describing how media entered the pipeline.
type Source struct {
	Kind  SourceKind `json:"kind"`
	Value string     `json:"value,omitempty"` // URL, when Kind == SourceURL
	Path  string     `json:"path,omitempty"`  // uploaded file path, when Kind == SourceUpload
}

// Media is populated after the fetch stage completes.
type Media struct {
	Title           string  `json:"title"`
	Uploader        string  `json:"uploader"`
	DurationSeconds float64 `json:"duration_seconds"`
	SourceURL       string  `json:"source_url"`
}

// Artifacts records the on-disk output paths produced by the writing stage.
type Artifacts struct {
	Transcript           string `json:"transcript,omitempty"`
	TranscriptTimestamps string `json:"transcript_timestamps,omitempty"`
	Summary              string `json:"summary,omitempty"`
	Data                 string `json:"data_json,omitempty"`
	Bilingual            string `json:"bilingual,omitempty"`
}

// TaskError is recorded when Status == StatusFailed.
type TaskError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Task is the central, durable record of one submission through the
// pipeline. It is exclusively owned by the Registry; every mutation goes
// through Registry.Update.
type Task struct {
	ID                string             `json:"id"`
	Status            Status             `json:"status"`
	Progress          int                `json:"progress"`
	Stage             string             `json:"stage"`
	StageDetail       string             `json:"stage_detail,omitempty"`
	Source            Source             `json:"source"`
	Media             *Media             `json:"media,omitempty"`
	Artifacts         *Artifacts         `json:"artifacts,omitempty"`
	AITimings         map[string]float64 `json:"ai_timings,omitempty"`
	SegmentsTotal     int                `json:"segments_total"`
	SegmentsDone      int                `json:"segments_done"`
	Error             *TaskError         `json:"error,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
	TranslationStatus TranslationStatus  `json:"translation_status,omitempty"`
	RequestID         string             `json:"request_id,omitempty"`
}

// Clone returns a deep copy, so snapshots handed to HTTP readers can never
// be mutated by the registry owner after the fact.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	clone := *t
	if t.Media != nil {
		m := *t.Media
		clone.Media = &m
	}
	if t.Artifacts != nil {
		a := *t.Artifacts
		clone.Artifacts = &a
	}
	if t.Error != nil {
		e := *t.Error
		clone.Error = &e
	}
	if t.AITimings != nil {
		clone.AITimings = make(map[string]float64, len(t.AITimings))
		for k, v := range t.AITimings {
			clone.AITimings[k] = v
		}
	}
	return &clone
}

// Summary is the trimmed view returned by list().
type Summary struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	Progress  int       `json:"progress"`
	Stage     string    `json:"stage"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ToSummary projects a Task into its list-view Summary.
func (t *Task) ToSummary() Summary {
	s := Summary{
		ID:        t.ID,
		Status:    t.Status,
		Progress:  t.Progress,
		Stage:     t.Stage,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
	if t.Media != nil {
		s.Title = t.Media.Title
	}
	return s
}
