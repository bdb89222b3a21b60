package llm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFatalAPI marks provider errors that retrying cannot fix
	// (bad credentials, exhausted quota or billing).
	ErrFatalAPI = errors.New("fatal LLM API error")

	// ErrBackend matches every BackendError.
	ErrBackend = errors.New("text generation backend error")

	// ErrEmptyResponse is returned when a backend answers with no text.
	ErrEmptyResponse = errors.New("empty response from model")
)

var fatalMarkers = []string{
	"credit balance",
	"rate limit",
	"quota exceeded",
	"billing",
	"invalid api key",
	"authentication",
	"unauthorized",
	"http 401",
	"http 403",
}

func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range fatalMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// wrapFatalError tags fatal provider errors with ErrFatalAPI and returns
// everything else unchanged.
func wrapFatalError(err error) error {
	if !isFatalAPIError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFatalAPI, err)
}

// BackendError reports a failed call to a generation backend. Error() names
// only the backend and a short reason; the cause stays available to logs
// through Unwrap.
type BackendError struct {
	Backend string
	Reason  string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend: %s", e.Backend, e.Reason)
}

func (e *BackendError) Unwrap() error { return e.Err }

func (e *BackendError) Is(target error) bool { return target == ErrBackend }

func backendError(backend, reason string, err error) error {
	return &BackendError{Backend: backend, Reason: reason, Err: wrapFatalError(err)}
}
