package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/raphaelgruber/lecturelens/internal/metrics"
)

const geminiBackend = "gemini"

// Gemini calls the Gemini generateContent REST endpoint.
type Gemini struct {
	baseURL string
	apiKey  string
	model   string
	op      string
	client  *http.Client
	metrics *metrics.Collector
}

// NewGemini creates a Gemini client. Timeouts come from the caller's context.
func NewGemini(s Settings) *Gemini {
	client := s.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	model := s.Model
	if model == "" {
		model = "gemini-pro"
	}
	base := s.GeminiBaseURL
	if base == "" {
		base = "https://generativelanguage.googleapis.com"
	}
	op := s.Operation
	if op == "" {
		op = metrics.OpLLMAnalysis
	}
	return &Gemini{
		baseURL: strings.TrimRight(base, "/"),
		apiKey:  s.GeminiAPIKey,
		model:   model,
		op:      op,
		client:  client,
		metrics: s.Metrics,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int64 `json:"promptTokenCount"`
		CandidatesTokenCount int64 `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Name returns gemini/model.
func (g *Gemini) Name() string {
	return geminiBackend + "/" + g.model
}

// Generate returns the text of the first candidate.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, url.PathEscape(g.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return "", backendError(geminiBackend, "connection failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", backendError(geminiBackend, "reading response failed", err)
	}
	duration := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		slog.Warn("gemini request rejected", "status", resp.StatusCode, "duration_ms", duration.Milliseconds())
		return "", backendError(geminiBackend, fmt.Sprintf("HTTP %d", resp.StatusCode),
			fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(respBody), 300)))
	}

	var env geminiResponse
	if err := json.Unmarshal(respBody, &env); err != nil {
		return "", backendError(geminiBackend, "invalid response envelope", err)
	}
	if len(env.Candidates) == 0 || len(env.Candidates[0].Content.Parts) == 0 {
		return "", backendError(geminiBackend, "invalid response envelope", errors.New("no candidates"))
	}

	g.metrics.RecordLLMUsage(g.op, duration, env.UsageMetadata.PromptTokenCount, env.UsageMetadata.CandidatesTokenCount)
	return env.Candidates[0].Content.Parts[0].Text, nil
}

// GenerateJSON strips code fences from the candidate text and decodes it.
func (g *Gemini) GenerateJSON(ctx context.Context, prompt string) (map[string]any, error) {
	text, err := g.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	obj, err := DecodeObject(text)
	if err != nil {
		return nil, backendError(geminiBackend, "unparseable response", err)
	}
	return obj, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
