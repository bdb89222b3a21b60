package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/raphaelgruber/lecturelens/internal/config"
	"github.com/raphaelgruber/lecturelens/internal/metrics"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Model wraps a langchaingo LLM.
type Model struct {
	llm       llms.Model
	provider  string
	modelName string
	op        string
	metrics   *metrics.Collector
}

// NewModel creates a langchaingo-backed model for ollama, openai,
// anthropic or bedrock.
func NewModel(ctx context.Context, s Settings) (*Model, error) {
	var model llms.Model
	var err error

	switch s.Provider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(s.Model),
			ollama.WithServerURL(s.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if s.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		opts := []openai.Option{
			openai.WithToken(s.OpenAIAPIKey),
			openai.WithModel(s.Model),
		}
		if s.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(s.OpenAIBaseURL))
		}
		model, err = openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if s.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(s.AnthropicAPIKey),
			anthropic.WithModel(s.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case config.ProviderBedrock:
		awsCfg, cfgErr := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(s.AWSRegion))
		if cfgErr != nil {
			return nil, fmt.Errorf("load aws config: %w", cfgErr)
		}
		model, err = bedrock.New(
			bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
			bedrock.WithModel(s.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", s.Provider)
	}

	return newModel(model, s), nil
}

func newModel(model llms.Model, s Settings) *Model {
	op := s.Operation
	if op == "" {
		op = metrics.OpLLMGenerate
	}
	return &Model{
		llm:       model,
		provider:  s.Provider,
		modelName: s.Model,
		op:        op,
		metrics:   s.Metrics,
	}
}

// Name returns provider/model.
func (m *Model) Name() string {
	return m.provider + "/" + m.modelName
}

// Generate returns the model's free-form answer to prompt.
func (m *Model) Generate(ctx context.Context, prompt string) (string, error) {
	return m.complete(ctx, prompt)
}

// GenerateJSON requests JSON output and decodes the first object in it.
func (m *Model) GenerateJSON(ctx context.Context, prompt string) (map[string]any, error) {
	text, err := m.complete(ctx, prompt, llms.WithJSONMode())
	if err != nil {
		return nil, err
	}
	obj, err := DecodeObject(text)
	if err != nil {
		return nil, backendError(m.provider, "unparseable response", err)
	}
	return obj, nil
}

func (m *Model) complete(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	start := time.Now()
	resp, err := m.llm.GenerateContent(ctx, messages, opts...)
	duration := time.Since(start)

	if err != nil {
		slog.Warn("generation failed", "model", m.Name(), "prompt_len", len(prompt), "duration_ms", duration.Milliseconds(), "error", err)
		return "", backendError(m.provider, "request failed", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return "", backendError(m.provider, "empty response", ErrEmptyResponse)
	}

	choice := resp.Choices[0]
	in, out := tokenUsage(choice.GenerationInfo)
	m.metrics.RecordLLMUsage(m.op, duration, in, out)
	slog.Debug("generation finished", "model", m.Name(), "prompt_len", len(prompt), "duration_ms", duration.Milliseconds(), "output_tokens", out)

	return choice.Content, nil
}

// tokenUsage reads token counts from GenerationInfo. Providers use
// different keys; missing counts are zero.
func tokenUsage(info map[string]any) (in, out int64) {
	in = firstInt(info, "PromptTokens", "InputTokens", "input_tokens")
	out = firstInt(info, "CompletionTokens", "OutputTokens", "output_tokens")
	return in, out
}

func firstInt(info map[string]any, keys ...string) int64 {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return int64(v)
		case int32:
			return int64(v)
		case int64:
			return v
		case float64:
			return int64(v)
		}
	}
	return 0
}
