package service

import (
	"errors"

	"github.com/raphaelgruber/lecturelens/internal/llm"
)

var (
	// ErrNotFound is returned for unknown tasks and tasks without a transcript.
	ErrNotFound = errors.New("task not found or has no transcript")
	// ErrInvalidInput is returned for empty urls, questions or analysis text.
	ErrInvalidInput = errors.New("invalid input")
	// ErrGenerationFailed is the only failure Flashcards reports.
	ErrGenerationFailed = errors.New("flashcard generation failed")
	// ErrBackend matches errors from a generation backend.
	ErrBackend = llm.ErrBackend

	ErrNilDependency = errors.New("required dependency is nil")
)

// asBackendError makes sure err matches ErrBackend without exposing its text.
func asBackendError(backend string, err error) error {
	if err == nil || errors.Is(err, llm.ErrBackend) {
		return err
	}
	return &llm.BackendError{Backend: backend, Reason: "request failed", Err: err}
}
