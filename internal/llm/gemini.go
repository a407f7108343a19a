package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const geminiGenerateEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent"

// GeminiProvider drives polish/summarize/analyze against Gemini's
// generateContent REST endpoint, speaking the minimal request/response
// subset this package needs.
type GeminiProvider struct {
	model      string
	apiKey     string
	httpClient *http.Client
}

// NewGeminiProvider builds a client using model (e.g. "gemini-2.5-flash")
// and apiKey.
func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiProvider{
		model:      model,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

type geminiTextRequest struct {
	SystemInstruction *geminiTextContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiTextContent `json:"contents"`
	GenerationConfig  *geminiTextGenCfg   `json:"generationConfig,omitempty"`
}

type geminiTextContent struct {
	Parts []geminiTextPart `json:"parts"`
}

type geminiTextPart struct {
	Text string `json:"text"`
}

type geminiTextGenCfg struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiTextResponse struct {
	Candidates []geminiTextCandidate `json:"candidates"`
}

type geminiTextCandidate struct {
	Content geminiTextRespContent `json:"content"`
}

type geminiTextRespContent struct {
	Parts []geminiTextRespPart `json:"parts"`
}

type geminiTextRespPart struct {
	Text string `json:"text"`
}

func (g *GeminiProvider) Polish(ctx context.Context, transcript string) (string, error) {
	chunks := chunkText(transcript, defaultChunkTarget, defaultChunkOverlap)
	polished := make([]string, len(chunks))
	for i, chunk := range chunks {
		out, err := g.generate(ctx, polishSystemPrompt, chunk)
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

func (g *GeminiProvider) Summarize(ctx context.Context, transcript string) (SummaryResult, error) {
	out, err := g.generate(ctx, summarySystemPrompt, transcript)
	if err != nil {
		return SummaryResult{}, fmt.Errorf("summarize: %w", err)
	}
	var result SummaryResult
	if err := json.Unmarshal([]byte(extractJSONObject(out)), &result); err != nil {
		return SummaryResult{}, fmt.Errorf("parse summary json: %w", err)
	}
	return result, nil
}

func (g *GeminiProvider) Analyze(ctx context.Context, transcript string) (AnalysisResult, error) {
	out, err := g.generate(ctx, analysisSystemPrompt, transcript)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("analyze: %w", err)
	}
	var result AnalysisResult
	if err := json.Unmarshal([]byte(extractJSONObject(out)), &result); err != nil {
		return AnalysisResult{}, fmt.Errorf("parse analysis json: %w", err)
	}
	return result, nil
}

func (g *GeminiProvider) Translate(ctx context.Context, transcript, targetLanguage string) (string, error) {
	chunks := chunkText(transcript, defaultChunkTarget, defaultChunkOverlap)
	translated := make([]string, len(chunks))
	prompt := translateSystemPrompt(targetLanguage)
	for i, chunk := range chunks {
		out, err := g.generate(ctx, prompt, chunk)
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

func (g *GeminiProvider) generate(ctx context.Context, systemPrompt, userContent string) (string, error) {
	reqBody := geminiTextRequest{
		SystemInstruction: &geminiTextContent{Parts: []geminiTextPart{{Text: systemPrompt}}},
		Contents:          []geminiTextContent{{Parts: []geminiTextPart{{Text: userContent}}}},
		GenerationConfig:  &geminiTextGenCfg{Temperature: 0.3, MaxOutputTokens: 8192},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf(geminiGenerateEndpoint, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// The key rides in a header, not a query parameter, so a url.Error can
	// never carry it into a log line.
	req.Header.Set("x-goog-api-key", g.apiKey)

	res, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini api error (status %d): %s", res.StatusCode, string(respBody))
	}

	var resp geminiTextResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("response contained no text")
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}
