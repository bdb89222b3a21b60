package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/lecturelens/internal/llm"
	"github.com/raphaelgruber/lecturelens/internal/models"
	"github.com/raphaelgruber/lecturelens/internal/prompts"
	"github.com/raphaelgruber/lecturelens/internal/validate"
)

const noAnswer = "No answer was generated."

// TaskReader is the read side of the task store.
type TaskReader interface {
	Get(id string) (models.Task, bool)
}

// InteractionOptions tunes an Interaction.
type InteractionOptions struct {
	// PromptChars bounds the transcript prefix sent for chat and flashcards.
	PromptChars      int
	ChatTimeout      time.Duration
	FlashcardTimeout time.Duration
	AnalysisTimeout  time.Duration
}

// Interaction answers questions, builds flashcards and runs deep analysis
// against finished transcripts. It never modifies tasks.
type Interaction struct {
	tasks     TaskReader
	generator llm.TextGenerator
	analyzer  llm.TextGenerator
	prompts   *prompts.Set
	logger    *slog.Logger
	opts      InteractionOptions
}

// NewInteraction creates an Interaction. analyzer is the separate backend
// used for deep analysis.
func NewInteraction(tasks TaskReader, generator, analyzer llm.TextGenerator, set *prompts.Set, logger *slog.Logger, opts InteractionOptions) (*Interaction, error) {
	if tasks == nil || generator == nil || analyzer == nil {
		return nil, ErrNilDependency
	}
	if set == nil {
		set = prompts.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Interaction{
		tasks:     tasks,
		generator: generator,
		analyzer:  analyzer,
		prompts:   set,
		logger:    logger,
		opts:      opts,
	}, nil
}

// Ask answers question from the task's transcript and the caller's history.
func (s *Interaction) Ask(ctx context.Context, taskID, question string, history []models.ChatMessage) (string, error) {
	fullText, err := s.transcript(taskID)
	if err != nil {
		return "", err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("%w: question is required", ErrInvalidInput)
	}

	prompt, err := s.prompts.Render(prompts.Chat, prompts.Data{
		Transcript: leading(fullText, s.opts.PromptChars),
		History:    formatHistory(history),
		Question:   question,
	})
	if err != nil {
		return "", err
	}

	ctx, cancel := withTimeout(ctx, s.opts.ChatTimeout)
	defer cancel()

	answer, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		s.logger.Warn("chat generation failed", "task_id", taskID, "error", err)
		return "", asBackendError(s.generator.Name(), err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return noAnswer, nil
	}
	return answer, nil
}

// Flashcards generates study cards for a task. Every backend or shape
// problem is reported as ErrGenerationFailed.
func (s *Interaction) Flashcards(ctx context.Context, taskID string) ([]models.Flashcard, error) {
	fullText, err := s.transcript(taskID)
	if err != nil {
		return nil, err
	}

	prompt, err := s.prompts.Render(prompts.Flashcards, prompts.Data{
		Transcript: leading(fullText, s.opts.PromptChars),
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, s.opts.FlashcardTimeout)
	defer cancel()

	raw, err := s.generator.GenerateJSON(ctx, prompt)
	if err != nil {
		s.logger.Warn("flashcard generation failed", "task_id", taskID, "error", err)
		return nil, ErrGenerationFailed
	}
	cards, err := validate.Flashcards(raw)
	if err != nil {
		s.logger.Warn("flashcard output rejected", "task_id", taskID, "error", err)
		return nil, ErrGenerationFailed
	}
	return cards, nil
}

// DeeperAnalysis explains text with the analysis backend. Unlike
// Flashcards, backend failures surface as ErrBackend.
func (s *Interaction) DeeperAnalysis(ctx context.Context, text string) (models.DeepAnalysis, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.DeepAnalysis{}, fmt.Errorf("%w: text is required", ErrInvalidInput)
	}

	prompt, err := s.prompts.Render(prompts.Analysis, prompts.Data{Text: text})
	if err != nil {
		return models.DeepAnalysis{}, err
	}

	ctx, cancel := withTimeout(ctx, s.opts.AnalysisTimeout)
	defer cancel()

	raw, err := s.analyzer.GenerateJSON(ctx, prompt)
	if err != nil {
		s.logger.Warn("deep analysis failed", "backend", s.analyzer.Name(), "error", err)
		return models.DeepAnalysis{}, asBackendError(s.analyzer.Name(), err)
	}
	analysis, err := validate.DeepAnalysis(raw)
	if err != nil {
		s.logger.Warn("deep analysis output rejected", "backend", s.analyzer.Name(), "error", err)
		return models.DeepAnalysis{}, &llm.BackendError{Backend: s.analyzer.Name(), Reason: "unexpected response shape", Err: err}
	}
	return analysis, nil
}

// transcript returns the task's full text or ErrNotFound.
func (s *Interaction) transcript(taskID string) (string, error) {
	task, ok := s.tasks.Get(taskID)
	if !ok || !task.HasTranscript() {
		return "", ErrNotFound
	}
	return task.Result.FullText, nil
}

func formatHistory(history []models.ChatMessage) string {
	var b strings.Builder
	for _, m := range history {
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}
		if m.FromAssistant() {
			b.WriteString("You previously answered: ")
		} else {
			b.WriteString("The user previously asked: ")
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return "No previous conversation."
	}
	return b.String()
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// IsClientError reports whether err is the caller's fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidInput)
}
