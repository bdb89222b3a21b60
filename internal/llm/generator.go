// Package llm provides the text generation backends used for study material
// and deep analysis: langchaingo-backed models and the Gemini REST API.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/raphaelgruber/lecturelens/internal/config"
	"github.com/raphaelgruber/lecturelens/internal/metrics"
)

// TextGenerator is a language model backend.
type TextGenerator interface {
	// Generate returns free-form text.
	Generate(ctx context.Context, prompt string) (string, error)
	// GenerateJSON asks for structured output and decodes it into an object.
	// The object's shape is not checked.
	GenerateJSON(ctx context.Context, prompt string) (map[string]any, error)
	// Name identifies the backend in logs and errors.
	Name() string
}

// Settings selects and configures one backend.
type Settings struct {
	Provider string
	Model    string

	OllamaHost      string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	GeminiAPIKey    string
	GeminiBaseURL   string
	AWSRegion       string

	// Operation is the metrics key for calls through this backend.
	Operation  string
	Metrics    *metrics.Collector
	HTTPClient *http.Client
}

// TextSettings configures the backend for summaries, chapters, Q&A, chat
// and flashcards.
func TextSettings(cfg config.Config, m *metrics.Collector) Settings {
	s := baseSettings(cfg, m)
	s.Provider = cfg.LLMProvider
	s.Model = cfg.LLMModel
	s.Operation = metrics.OpLLMGenerate
	return s
}

// AnalysisSettings configures the separate deep analysis backend.
func AnalysisSettings(cfg config.Config, m *metrics.Collector) Settings {
	s := baseSettings(cfg, m)
	s.Provider = cfg.AnalysisProvider
	s.Model = cfg.AnalysisModel
	s.Operation = metrics.OpLLMAnalysis
	return s
}

func baseSettings(cfg config.Config, m *metrics.Collector) Settings {
	return Settings{
		OllamaHost:      cfg.OllamaHost,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		OpenAIBaseURL:   cfg.OpenAIBaseURL,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		GeminiAPIKey:    cfg.GeminiAPIKey,
		GeminiBaseURL:   cfg.GeminiBaseURL,
		AWSRegion:       cfg.AWSRegion,
		Metrics:         m,
	}
}

// New builds the backend named by s.Provider.
func New(ctx context.Context, s Settings) (TextGenerator, error) {
	if s.Operation == "" {
		s.Operation = metrics.OpLLMGenerate
	}
	switch s.Provider {
	case config.ProviderGemini:
		if s.GeminiAPIKey == "" {
			slog.Warn("gemini API key not set, requests will be rejected", "model", s.Model)
		}
		return NewGemini(s), nil
	case config.ProviderOllama, config.ProviderOpenAI, config.ProviderAnthropic, config.ProviderBedrock:
		return NewModel(ctx, s)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", s.Provider)
	}
}
