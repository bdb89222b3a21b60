package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/raphaelgruber/lecturelens/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func TestIsFatalAPIError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil error", nil, false},
		{"generic error", errors.New("connection reset"), false},
		{"credit balance", errors.New("insufficient credit balance"), true},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"quota exceeded", errors.New("quota exceeded for model"), true},
		{"billing issue", errors.New("billing account inactive"), true},
		{"invalid api key", errors.New("invalid api key"), true},
		{"authentication failed", errors.New("authentication failed"), true},
		{"unauthorized", errors.New("unauthorized request"), true},
		{"401 status", errors.New("HTTP 401: not allowed"), true},
		{"403 status", errors.New("HTTP 403: forbidden"), true},
		{"wrapped error", fmt.Errorf("generate: %w", errors.New("credit balance too low")), true},
		{"404 not fatal", errors.New("HTTP 404: not found"), false},
		{"timeout not fatal", errors.New("context deadline exceeded"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isFatalAPIError(tt.err)
			if got != tt.fatal {
				t.Errorf("isFatalAPIError(%v) = %v, want %v", tt.err, got, tt.fatal)
			}
		})
	}
}

func TestWrapFatalError(t *testing.T) {
	t.Run("wraps fatal error", func(t *testing.T) {
		err := errors.New("invalid api key provided")
		wrapped := wrapFatalError(err)
		if !errors.Is(wrapped, ErrFatalAPI) {
			t.Errorf("expected wrapped error to match ErrFatalAPI")
		}
	})

	t.Run("passes through non-fatal error", func(t *testing.T) {
		err := errors.New("network timeout")
		result := wrapFatalError(err)
		if errors.Is(result, ErrFatalAPI) {
			t.Errorf("non-fatal error should not be wrapped with ErrFatalAPI")
		}
		if result != err {
			t.Errorf("expected original error returned, got %v", result)
		}
	})

	t.Run("nil error", func(t *testing.T) {
		result := wrapFatalError(nil)
		if result != nil {
			t.Errorf("expected nil, got %v", result)
		}
	})
}

func TestBackendError(t *testing.T) {
	cause := errors.New("HTTP 401: key sk-secret rejected")
	err := backendError("gemini", "HTTP 401", cause)

	assert.ErrorIs(t, err, ErrBackend)
	assert.ErrorIs(t, err, ErrFatalAPI)
	assert.Equal(t, "gemini backend: HTTP 401", err.Error())
	assert.NotContains(t, err.Error(), "sk-secret")

	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "gemini", be.Backend)
}

// fakeLLM is a langchaingo model returning canned content.
type fakeLLM struct {
	content  string
	info     map[string]any
	err      error
	jsonMode bool
	prompt   string
}

func (f *fakeLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	f.jsonMode = opts.JSONMode
	if len(messages) > 0 && len(messages[0].Parts) > 0 {
		if tc, ok := messages[0].Parts[0].(llms.TextContent); ok {
			f.prompt = tc.Text
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.content, GenerationInfo: f.info}}}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestModelGenerate(t *testing.T) {
	fake := &fakeLLM{content: "An answer.", info: map[string]any{"PromptTokens": 12, "CompletionTokens": 3}}
	m := metrics.NewCollector()
	model := newModel(fake, Settings{Provider: "ollama", Model: "llama3", Metrics: m})

	got, err := model.Generate(context.Background(), "question?")
	require.NoError(t, err)
	assert.Equal(t, "An answer.", got)
	assert.Equal(t, "question?", fake.prompt)
	assert.False(t, fake.jsonMode)
	assert.Equal(t, "ollama/llama3", model.Name())

	op := m.Snapshot().Operations[metrics.OpLLMGenerate]
	require.NotNil(t, op)
	require.NotNil(t, op.TotalInputTokens)
	assert.Equal(t, int64(12), *op.TotalInputTokens)
	assert.Equal(t, int64(3), *op.TotalOutputTokens)
}

func TestModelGenerateJSON(t *testing.T) {
	fake := &fakeLLM{content: "Sure! ```json\n{\"summary\": \"ok\"}\n```"}
	model := newModel(fake, Settings{Provider: "ollama", Model: "llama3"})

	obj, err := model.GenerateJSON(context.Background(), "summarize")
	require.NoError(t, err)
	assert.True(t, fake.jsonMode)
	assert.Equal(t, map[string]any{"summary": "ok"}, obj)
}

func TestModelErrors(t *testing.T) {
	tests := []struct {
		name  string
		fake  *fakeLLM
		fatal bool
	}{
		{"transport", &fakeLLM{err: errors.New("connection refused")}, false},
		{"auth", &fakeLLM{err: errors.New("HTTP 401: unauthorized")}, true},
		{"empty", &fakeLLM{content: ""}, false},
		{"not json", &fakeLLM{content: "I cannot help with that."}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := newModel(tt.fake, Settings{Provider: "openai", Model: "gpt"})
			_, err := model.GenerateJSON(context.Background(), "p")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrBackend)
			assert.Equal(t, tt.fatal, errors.Is(err, ErrFatalAPI))
		})
	}
}

func TestNewUnsupportedProvider(t *testing.T) {
	_, err := New(context.Background(), Settings{Provider: "mystery"})
	assert.Error(t, err)

	gen, err := New(context.Background(), Settings{Provider: "gemini", Model: "gemini-pro"})
	require.NoError(t, err)
	assert.Equal(t, "gemini/gemini-pro", gen.Name())
}
