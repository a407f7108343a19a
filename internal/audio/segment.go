package audio

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Segment describes one contiguous slice of the source audio.
type Segment struct {
	Index        int
	Path         string
	StartSeconds float64
	EndSeconds   float64
}

// ErrSplitFailed wraps every ffmpeg segmentation failure.
type ErrSplitFailed struct{ Err error }

func (e *ErrSplitFailed) Error() string { return fmt.Sprintf("split_failed: %v", e.Err) }
func (e *ErrSplitFailed) Unwrap() error { return e.Err }

// Splitter wraps the ffmpeg binary used to segment long audio files.
type Splitter struct {
	// FFmpegPath defaults to "ffmpeg", resolved via PATH.
	FFmpegPath string
}

// Plan decides whether audio needs splitting at all: durations at or below
// threshold are processed as a single segment spanning the whole file.
func Plan(totalDuration float64, threshold, segmentDuration float64) bool {
	return totalDuration > threshold && segmentDuration > 0
}

// Split cuts srcPath into contiguous, non-overlapping segments of
// segmentDuration seconds (last one possibly shorter), named
// deterministically segment_<i:04>.<ext> inside destDir.
// When totalDuration does not exceed threshold, Split returns a single
// Segment spanning the whole file without invoking ffmpeg.
func (s *Splitter) Split(ctx context.Context, srcPath, destDir string, totalDuration, threshold, segmentDuration float64) ([]Segment, error) {
	if !Plan(totalDuration, threshold, segmentDuration) {
		return []Segment{{Index: 0, Path: srcPath, StartSeconds: 0, EndSeconds: totalDuration}}, nil
	}

	ext := strings.TrimPrefix(filepath.Ext(srcPath), ".")
	if ext == "" {
		ext = "mp3"
	}
	pattern := filepath.Join(destDir, "segment_%04d."+ext)

	binary, err := exec.LookPath(s.binary())
	if err != nil {
		return nil, &ErrSplitFailed{Err: fmt.Errorf("ffmpeg not found: %w", err)}
	}

	args := []string{
		"-y", "-i", srcPath,
		"-f", "segment",
		"-segment_time", fmt.Sprintf("%d", int(segmentDuration)),
		"-reset_timestamps", "1",
		"-c", "copy",
		pattern,
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, &ErrSplitFailed{Err: fmt.Errorf("%v: %s", err, firstNonEmptyLine(stderr.String()))}
	}

	expected := int(math.Ceil(totalDuration / segmentDuration))
	segments := make([]Segment, 0, expected)
	for i := 0; i < expected; i++ {
		path := fmt.Sprintf(filepath.Join(destDir, "segment_%04d."+ext), i)
		if _, err := os.Stat(path); err != nil {
			if i == expected-1 {
				// ffmpeg may emit one fewer file than ceil() predicts when
				// the final segment lands exactly on a boundary.
				break
			}
			return nil, &ErrSplitFailed{Err: fmt.Errorf("expected segment file missing: %s", path)}
		}
		start := float64(i) * segmentDuration
		end := start + segmentDuration
		if end > totalDuration {
			end = totalDuration
		}
		segments = append(segments, Segment{Index: i, Path: path, StartSeconds: start, EndSeconds: end})
	}
	if len(segments) == 0 {
		return nil, &ErrSplitFailed{Err: fmt.Errorf("no segment files were produced")}
	}
	return segments, nil
}

func (s *Splitter) binary() string {
	if s.FFmpegPath != "" {
		return s.FFmpegPath
	}
	return "ffmpeg"
}

func firstNonEmptyLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			return t
		}
	}
	return s
}
