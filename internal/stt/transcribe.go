package stt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zhuguadundan/videowhisper/internal/audio"
	"github.com/zhuguadundan/videowhisper/internal/retry"
)

// Config mirrors the processing.* configuration knobs that govern
// transcription.
type Config struct {
	ShortAudioMaxRetries   int
	MaxConsecutiveFailures int
	RetrySleepShort        time.Duration
	RetrySleepLong         time.Duration
	Language               string
	Prompt                 string
}

// Result is the full aligned segment list plus the joined transcript.
type Result struct {
	Segments []TranscriptionSegment
	FullText string
}

// ErrConsecutiveFailures is returned by TranscribeAll when more than
// cfg.MaxConsecutiveFailures segments in a row failed (long-audio path).
type ErrConsecutiveFailures struct{ Err error }

func (e *ErrConsecutiveFailures) Error() string {
	return fmt.Sprintf("stt_consecutive_failures: %v", e.Err)
}
func (e *ErrConsecutiveFailures) Unwrap() error { return e.Err }

// TranscribeAll transcribes every segment, retrying each per cfg. When
// there is more than one segment (the long-audio path), the whole run
// aborts once more than cfg.MaxConsecutiveFailures segments in a row fail.
// onSegmentDone is invoked after every attempted segment so the caller
// (the pipeline engine) can advance segments_done and check its
// cancellation flag between segments.
func TranscribeAll(
	ctx context.Context,
	segments []audio.Segment,
	client VendorClient,
	cfg Config,
	onSegmentDone func(index int),
) (*Result, error) {
	if len(segments) == 0 {
		return &Result{}, nil
	}

	results := make([][]TranscriptionSegment, len(segments))
	isShortAudio := len(segments) == 1

	maxAttempts := cfg.ShortAudioMaxRetries
	if !isShortAudio {
		// Long-audio per-segment retries stay small; the consecutive-
		// failure fold below is what bounds the overall run.
		maxAttempts = 2
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	transcribeOne := func(seg audio.Segment) ([]TranscriptionSegment, error) {
		var vendorResult VendorResult
		err := retry.Do(ctx, retry.Policy{
			MaxAttempts:     maxAttempts,
			InitialInterval: cfg.RetrySleepLong,
			MaxInterval:     cfg.RetrySleepLong * 4,
			Multiplier:      2,
			Classify: func(err error) bool {
				var sttErr *Error
				if errors.As(err, &sttErr) {
					return sttErr.Retryable
				}
				return true
			},
		}, func(ctx context.Context) error {
			r, err := client.Transcribe(ctx, seg.Path, cfg.Language, cfg.Prompt)
			if err != nil {
				return err
			}
			vendorResult = r
			return nil
		})
		if err != nil {
			return nil, err
		}
		return alignSegment(seg.Index, seg.StartSeconds, seg.EndSeconds, vendorResult), nil
	}

	if isShortAudio {
		segs, err := transcribeOne(segments[0])
		if onSegmentDone != nil {
			onSegmentDone(0)
		}
		if err != nil {
			return nil, err
		}
		results[0] = segs
	} else {
		err := retry.RunConsecutive(ctx, segments, cfg.MaxConsecutiveFailures, func(ctx context.Context, seg audio.Segment, i int) error {
			segs, err := transcribeOne(seg)
			if err != nil {
				return err
			}
			results[i] = segs
			return nil
		}, func(i int, err error) {
			if onSegmentDone != nil {
				onSegmentDone(i)
			}
		})
		if err != nil {
			if errors.Is(err, retry.ErrTooManyConsecutiveFailures) {
				return nil, &ErrConsecutiveFailures{Err: err}
			}
			return nil, err
		}
	}

	return assemble(results), nil
}

func assemble(perClip [][]TranscriptionSegment) *Result {
	var flat []TranscriptionSegment
	for _, segs := range perClip {
		flat = append(flat, segs...)
	}
	for i := range flat {
		flat[i].Index = i
	}

	fullText := ""
	for i, s := range flat {
		if i > 0 {
			fullText += "\n"
		}
		fullText += s.Text
	}
	return &Result{Segments: flat, FullText: fullText}
}
