// Package media wraps an external downloader (a yt-dlp-shaped CLI tool) to
// turn a video URL into a local, consolidated audio file plus metadata.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/zhuguadundan/videowhisper/internal/safety"
)

// Kind classifies a fetch failure into the closed error set this package
// surfaces.
type Kind string

const (
	KindURLRejected  Kind = "url_rejected"
	KindNotFound     Kind = "not_found"
	KindGeoBlocked   Kind = "geo_blocked"
	KindAuthRequired Kind = "auth_required"
	KindNetwork      Kind = "network"
	KindDiskFull     Kind = "disk_full"
	KindToolMissing  Kind = "tool_missing"
)

// Error carries a Kind alongside the human-readable message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

// Info is the metadata emitted alongside the audio file.
type Info struct {
	Title           string
	Uploader        string
	DurationSeconds float64
	SourceURL       string
}

// Result is the output of a successful Fetch.
type Result struct {
	AudioPath string
	Info      Info
}

// Fetcher wraps the downloader binary invocation.
type Fetcher struct {
	// BinaryPath is the downloader executable, resolved via exec.LookPath
	// if relative (e.g. "yt-dlp").
	BinaryPath string
	URLPolicy  safety.URLPolicy
}

// rawMetadata mirrors the subset of yt-dlp's --print-json output this
// package consumes.
type rawMetadata struct {
	Title      string  `json:"title"`
	Uploader   string  `json:"uploader"`
	Duration   float64 `json:"duration"`
	Filepath   string  `json:"_filename"`
	WebpageURL string  `json:"webpage_url"`
}

// Fetch downloads url's audio track into taskDir and returns the resulting
// file plus metadata. cookies, when non-empty, is written to a 0600 file
// inside taskDir for the duration of the call and removed on every exit
// path (success, failure, or ctx cancellation).
func (f *Fetcher) Fetch(ctx context.Context, url, taskDir, cookies string) (*Result, error) {
	if err := safety.IsSafeBaseURL(ctx, url, f.URLPolicy); err != nil {
		return nil, &Error{Kind: KindURLRejected, Message: err.Error()}
	}

	binary, err := exec.LookPath(f.binaryPath())
	if err != nil {
		return nil, &Error{Kind: KindToolMissing, Message: fmt.Sprintf("downloader %q not found: %v", f.binaryPath(), err)}
	}

	args := []string{
		"--no-playlist",
		"-f", "bestaudio/best",
		"--extract-audio",
		"--audio-format", "mp3",
		"--print-json",
		"--no-warnings",
		"-o", filepath.Join(taskDir, "audio.%(ext)s"),
	}

	if cookies != "" {
		cookiePath := filepath.Join(taskDir, "cookies.txt")
		if err := os.WriteFile(cookiePath, []byte(cookies), 0o600); err != nil {
			return nil, &Error{Kind: KindDiskFull, Message: fmt.Sprintf("write cookie file: %v", err)}
		}
		defer os.Remove(cookiePath)
		args = append(args, "--cookies", cookiePath)
	}
	args = append(args, url)

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = taskDir
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	stderrText := stderr.String()
	if runErr != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, &Error{Kind: KindNetwork, Message: "fetch cancelled"}
		}
		return nil, classifyDownloaderFailure(stderrText, runErr)
	}

	meta, err := parseMetadata(stdout.String())
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: fmt.Sprintf("parse downloader output: %v", err)}
	}

	audioPath, err := locateAudioFile(taskDir, meta.Filepath)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: err.Error()}
	}

	sourceURL := meta.WebpageURL
	if sourceURL == "" {
		sourceURL = url
	}

	return &Result{
		AudioPath: audioPath,
		Info: Info{
			Title:           meta.Title,
			Uploader:        meta.Uploader,
			DurationSeconds: meta.Duration,
			SourceURL:       sourceURL,
		},
	}, nil
}

// locateAudioFile resolves the consolidated audio file inside taskDir. The
// metadata's _filename reflects the pre-extraction container, so after
// --extract-audio the real file is that name with an .mp3 extension; the
// template-derived audio.mp3 is the fallback when metadata gives nothing.
// Whatever is found must still be contained in taskDir.
func locateAudioFile(taskDir, metaPath string) (string, error) {
	var candidates []string
	if metaPath != "" {
		base := filepath.Base(metaPath)
		ext := filepath.Ext(base)
		candidates = append(candidates,
			filepath.Join(taskDir, strings.TrimSuffix(base, ext)+".mp3"),
			filepath.Join(taskDir, base),
		)
	}
	candidates = append(candidates, filepath.Join(taskDir, "audio.mp3"))

	for _, candidate := range candidates {
		if ok, err := safety.IsWithin(taskDir, candidate); err != nil || !ok {
			return "", fmt.Errorf("downloader wrote outside the task directory")
		}
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("audio file missing after download")
}

func (f *Fetcher) binaryPath() string {
	if f.BinaryPath != "" {
		return f.BinaryPath
	}
	return "yt-dlp"
}

func parseMetadata(stdout string) (*rawMetadata, error) {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	// yt-dlp prints one JSON object per line; the audio metadata is the
	// last line emitted.
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || line[0] != '{' {
			continue
		}
		var meta rawMetadata
		if err := json.Unmarshal([]byte(line), &meta); err != nil {
			continue
		}
		return &meta, nil
	}
	return nil, fmt.Errorf("no JSON metadata line found in downloader output")
}

func classifyDownloaderFailure(stderrText string, runErr error) error {
	lower := strings.ToLower(stderrText)
	switch {
	case strings.Contains(lower, "video unavailable") || strings.Contains(lower, "404"):
		return &Error{Kind: KindNotFound, Message: firstLine(stderrText, runErr)}
	case strings.Contains(lower, "not available in your country") || strings.Contains(lower, "geo"):
		return &Error{Kind: KindGeoBlocked, Message: firstLine(stderrText, runErr)}
	case strings.Contains(lower, "sign in") || strings.Contains(lower, "login required") || strings.Contains(lower, "private video"):
		return &Error{Kind: KindAuthRequired, Message: firstLine(stderrText, runErr)}
	case strings.Contains(lower, "no space left"):
		return &Error{Kind: KindDiskFull, Message: firstLine(stderrText, runErr)}
	default:
		return &Error{Kind: KindNetwork, Message: firstLine(stderrText, runErr)}
	}
}

func firstLine(stderrText string, fallback error) string {
	for _, line := range strings.Split(stderrText, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			return t
		}
	}
	return fallback.Error()
}
