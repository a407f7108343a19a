// Package llm sends the joined transcript to a text-generation vendor to
// produce a polished transcript, a summary, and a content analysis.
// Three vendor variants share one capability set: SiliconFlow
// and OpenAI are wire-compatible and share one client; Gemini speaks its own
// REST shape.
package llm

import (
	"context"
	"fmt"

	"github.com/zhuguadundan/videowhisper/internal/safety"
)

// SummaryResult is the summary sub-operation's output.
type SummaryResult struct {
	BriefSummary            string   `json:"brief_summary"`
	Keywords                []string `json:"keywords"`
	DetailedSummaryMarkdown string   `json:"detailed_summary_markdown"`
}

// AnalysisResult is the content-analysis sub-operation's output.
type AnalysisResult struct {
	ContentType         string   `json:"content_type"`
	Sentiment           string   `json:"sentiment"`
	LanguageStyle       string   `json:"language_style"`
	EstimatedDifficulty string   `json:"estimated_difficulty"`
	TargetAudience      string   `json:"target_audience"`
	MainTopics          []string `json:"main_topics"`
}

// Provider is the capability set every vendor variant implements: polish,
// summarize, analyze, each an independent network call so the caller can
// time and fail them separately.
type Provider interface {
	Polish(ctx context.Context, transcript string) (string, error)
	Summarize(ctx context.Context, transcript string) (SummaryResult, error)
	Analyze(ctx context.Context, transcript string) (AnalysisResult, error)
	// Translate renders transcript in targetLanguage, for the optional
	// bilingual follow-up pass. It is an independent network call from
	// Polish/Summarize/Analyze.
	Translate(ctx context.Context, transcript, targetLanguage string) (string, error)
}

// Vendor names the tagged provider variant, matching the top-level
// "llm_vendor" config knob.
type Vendor string

const (
	VendorOpenAI      Vendor = "openai"
	VendorSiliconFlow Vendor = "siliconflow"
	VendorGemini      Vendor = "gemini"
)

// Config configures whichever Provider variant is selected.
type Config struct {
	Vendor  Vendor
	APIKey  string
	BaseURL string
	Model   string
}

// NewProvider validates cfg's effective endpoint against the SSRF allowlist
// policy and returns the matching Provider variant.
func NewProvider(ctx context.Context, cfg Config, urlPolicy safety.URLPolicy) (Provider, error) {
	switch cfg.Vendor {
	case VendorOpenAI, VendorSiliconFlow:
		if cfg.BaseURL != "" {
			if err := safety.IsSafeBaseURL(ctx, cfg.BaseURL, urlPolicy); err != nil {
				return nil, fmt.Errorf("llm base url rejected: %w", err)
			}
		}
		return NewOpenAICompatProvider(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case VendorGemini:
		return NewGeminiProvider(cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown llm vendor %q", cfg.Vendor)
	}
}
