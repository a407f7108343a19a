// Package stt drives per-segment speech-to-text transcription against an
// OpenAI-compatible vendor, with retry/backoff and a run-level
// consecutive-failure abort for the long-audio path.
package stt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// VendorSegment is a vendor-reported sub-range, relative to the uploaded
// audio clip's own start (0-based), before absolute alignment.
type VendorSegment struct {
	StartSeconds float64
	EndSeconds   float64
	Text         string
}

// VendorResult is the raw transcription of one uploaded audio clip.
type VendorResult struct {
	Text     string
	Segments []VendorSegment
}

// VendorClient is the narrow interface TranscribeAll depends on, so tests
// can inject a fake without standing up an HTTP server.
type VendorClient interface {
	Transcribe(ctx context.Context, audioPath, language, prompt string) (VendorResult, error)
}

// Error carries a vendor failure classification: retryable network/5xx
// errors vs. terminal ones.
type Error struct {
	Retryable bool
	Err       error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// OpenAICompatClient transcribes against any OpenAI-compatible
// /audio/transcriptions endpoint (used for both the "openai" and
// "siliconflow" vendor configurations, since SiliconFlow exposes the same
// wire shape).
type OpenAICompatClient struct {
	client *openai.Client
	model  string
}

// NewOpenAICompatClient builds a client pointed at baseURL with apiKey,
// transcribing with model.
func NewOpenAICompatClient(apiKey, baseURL, model string) *OpenAICompatClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAICompatClient{client: openai.NewClientWithConfig(cfg), model: model}
}

func (c *OpenAICompatClient) Transcribe(ctx context.Context, audioPath, language, prompt string) (VendorResult, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return VendorResult{}, &Error{Retryable: false, Err: fmt.Errorf("open audio file: %w", err)}
	}
	defer f.Close()

	req := openai.AudioRequest{
		Model:    c.model,
		FilePath: audioPath,
		Reader:   f,
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: language,
		Prompt:   prompt,
	}

	resp, err := c.client.CreateTranscription(ctx, req)
	if err != nil {
		return VendorResult{}, classifyVendorError(err)
	}

	result := VendorResult{Text: resp.Text}
	for _, seg := range resp.Segments {
		result.Segments = append(result.Segments, VendorSegment{
			StartSeconds: seg.Start,
			EndSeconds:   seg.End,
			Text:         seg.Text,
		})
	}
	return result, nil
}

func classifyVendorError(err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		retryable := apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
		return &Error{Retryable: retryable, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &Error{Retryable: true, Err: err}
	}
	return &Error{Retryable: true, Err: err}
}

// IsRateLimited reports whether err is a vendor 429, distinguishing
// vendor_rate_limited from a generic vendor_error for the caller's error
// kind mapping.
func IsRateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429
	}
	return false
}

// stripVendorMarkers removes emoji-style control tokens some STT vendors
// emit around filler/noise events (e.g. "[BGM]", "🎵").
func stripVendorMarkers(s string) string {
	var b strings.Builder
	skipBracket := false
	for _, r := range s {
		switch {
		case r == '[':
			skipBracket = true
		case r == ']':
			skipBracket = false
		case skipBracket:
			// drop
		case r >= 0x1F000:
			// drop emoji-range control/event markers
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalizeWhitespace collapses runs of spaces/tabs while preserving
// newlines as sentence-boundary markers.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	// drop now-empty lines produced by marker stripping
	out := lines[:0]
	for _, l := range lines {
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
