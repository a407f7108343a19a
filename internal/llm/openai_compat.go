package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAICompatProvider drives polish/summarize/analyze against any
// OpenAI-compatible /chat/completions endpoint. Used for both the "openai"
// and "siliconflow" vendor configurations since SiliconFlow exposes the
// same wire shape (mirrors stt.OpenAICompatClient's sharing of the same
// idea on the transcription side).
type OpenAICompatProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAICompatProvider builds a client pointed at baseURL (empty keeps
// go-openai's default OpenAI endpoint) with apiKey, using model.
func NewOpenAICompatProvider(apiKey, baseURL, model string) *OpenAICompatProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAICompatProvider{client: openai.NewClientWithConfig(cfg), model: model}
}

const polishSystemPrompt = `You rewrite raw speech-to-text transcripts into clean, well-punctuated, paragraphed prose. Preserve every fact and claim; do not summarize, omit, or add content. Output only the rewritten text, no commentary.`

func (p *OpenAICompatProvider) Polish(ctx context.Context, transcript string) (string, error) {
	chunks := chunkText(transcript, defaultChunkTarget, defaultChunkOverlap)
	polished := make([]string, len(chunks))
	for i, chunk := range chunks {
		out, err := p.complete(ctx, polishSystemPrompt, chunk)
		if err != nil {
			return "", fmt.Errorf("polish chunk %d/%d: %w", i+1, len(chunks), err)
		}
		polished[i] = out
	}
	if len(polished) == 1 {
		return polished[0], nil
	}
	return stitchChunks(polished, defaultChunkOverlap*2), nil
}

const summarySystemPrompt = `You summarize transcripts. Respond with strict JSON only, matching exactly this shape: {"brief_summary": string, "keywords": [string], "detailed_summary_markdown": string}. No other text.`

func (p *OpenAICompatProvider) Summarize(ctx context.Context, transcript string) (SummaryResult, error) {
	out, err := p.complete(ctx, summarySystemPrompt, transcript)
	if err != nil {
		return SummaryResult{}, fmt.Errorf("summarize: %w", err)
	}
	var result SummaryResult
	if err := json.Unmarshal([]byte(extractJSONObject(out)), &result); err != nil {
		return SummaryResult{}, fmt.Errorf("parse summary json: %w", err)
	}
	return result, nil
}

const analysisSystemPrompt = `You analyze transcripts. Respond with strict JSON only, matching exactly this shape: {"content_type": string, "sentiment": string, "language_style": string, "estimated_difficulty": string, "target_audience": string, "main_topics": [string]}. No other text.`

// translateSystemPrompt builds the bilingual-pass instruction: render each
// paragraph in targetLanguage immediately below its source-language
// original, preserving paragraph order.
func translateSystemPrompt(targetLanguage string) string {
	return fmt.Sprintf(`You produce a bilingual rendering of a transcript. For each paragraph, output the original paragraph followed immediately by its translation into %s. Preserve paragraph order and every fact. Output only the bilingual text, no commentary.`, targetLanguage)
}

func (p *OpenAICompatProvider) Analyze(ctx context.Context, transcript string) (AnalysisResult, error) {
	out, err := p.complete(ctx, analysisSystemPrompt, transcript)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("analyze: %w", err)
	}
	var result AnalysisResult
	if err := json.Unmarshal([]byte(extractJSONObject(out)), &result); err != nil {
		return AnalysisResult{}, fmt.Errorf("parse analysis json: %w", err)
	}
	return result, nil
}

func (p *OpenAICompatProvider) Translate(ctx context.Context, transcript, targetLanguage string) (string, error) {
	chunks := chunkText(transcript, defaultChunkTarget, defaultChunkOverlap)
	translated := make([]string, len(chunks))
	prompt := translateSystemPrompt(targetLanguage)
	for i, chunk := range chunks {
		out, err := p.complete(ctx, prompt, chunk)
		if err != nil {
			return "", fmt.Errorf("translate chunk %d/%d: %w", i+1, len(chunks), err)
		}
		translated[i] = out
	}
	if len(translated) == 1 {
		return translated[0], nil
	}
	return stitchChunks(translated, defaultChunkOverlap*2), nil
}

func (p *OpenAICompatProvider) complete(ctx context.Context, systemPrompt, userContent string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userContent},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from vendor")
	}
	return resp.Choices[0].Message.Content, nil
}

// extractJSONObject trims any leading/trailing prose or code-fence markers
// a vendor might add around the requested JSON object, returning just the
// outermost {...} span.
func extractJSONObject(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}
