// Package audio probes and segments the audio file produced by the fetcher:
// duration
// probing via ffprobe, and fixed-length splitting via ffmpeg's segment
// muxer for anything longer than the configured threshold.
package audio

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	ffprobe "gopkg.in/vansante/go-ffprobe.v2"
)

// ErrProbeFailed wraps every ffprobe failure after retries are exhausted.
type ErrProbeFailed struct{ Err error }

func (e *ErrProbeFailed) Error() string { return fmt.Sprintf("probe_failed: %v", e.Err) }
func (e *ErrProbeFailed) Unwrap() error { return e.Err }

// ProbeDuration returns the audio file's duration in seconds, retrying
// transient ffprobe failures with a short bounded backoff.
func ProbeDuration(ctx context.Context, path string) (float64, error) {
	var duration float64

	operation := func() error {
		probeCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		defer cancel()

		data, err := ffprobe.ProbeURL(probeCtx, path)
		if err != nil {
			return err
		}

		if data.Format != nil && data.Format.DurationSeconds > 0 {
			duration = data.Format.DurationSeconds
			return nil
		}
		if stream := data.FirstAudioStream(); stream != nil {
			if d, err := strconv.ParseFloat(stream.Duration, 64); err == nil && d > 0 {
				duration = d
				return nil
			}
		}
		return fmt.Errorf("no usable duration in probe data for %s", path)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, 3), ctx)); err != nil {
		return 0, &ErrProbeFailed{Err: err}
	}
	return duration, nil
}
