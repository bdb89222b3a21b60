// Package validate checks structured language-model output against the
// shapes the pipeline expects before any of it is stored or returned.
package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/raphaelgruber/lecturelens/internal/models"
)

// ErrMismatch matches every *MismatchError.
var ErrMismatch = errors.New("output does not match schema")

// MismatchError describes where a decoded value diverged from its schema.
type MismatchError struct {
	Schema string
	Path   string
	Reason string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Schema, e.Path, e.Reason)
}

func (e *MismatchError) Is(target error) bool {
	return target == ErrMismatch
}

func mismatch(schema, path, format string, args ...any) error {
	return &MismatchError{Schema: schema, Path: path, Reason: fmt.Sprintf(format, args...)}
}

// Summary validates {"summary": non-empty string}.
func Summary(raw map[string]any) (string, error) {
	return requiredString("summary", raw, "summary")
}

// Chapters validates {"chapters": [{"timestamp", "topic"}]}.
func Chapters(raw map[string]any) ([]models.Chapter, error) {
	items, err := objectList("chapters", raw, "chapters")
	if err != nil {
		return nil, err
	}
	out := make([]models.Chapter, 0, len(items))
	for i, item := range items {
		path := fmt.Sprintf("chapters[%d]", i)
		ts, err := requiredString("chapters", item, "timestamp", path)
		if err != nil {
			return nil, err
		}
		topic, err := requiredString("chapters", item, "topic", path)
		if err != nil {
			return nil, err
		}
		out = append(out, models.Chapter{Timestamp: ts, Topic: topic})
	}
	return out, nil
}

// QA validates {"qa": [{"question", "answer"}]}.
func QA(raw map[string]any) ([]models.QAItem, error) {
	items, err := objectList("qa", raw, "qa")
	if err != nil {
		return nil, err
	}
	out := make([]models.QAItem, 0, len(items))
	for i, item := range items {
		path := fmt.Sprintf("qa[%d]", i)
		q, err := requiredString("qa", item, "question", path)
		if err != nil {
			return nil, err
		}
		a, err := requiredString("qa", item, "answer", path)
		if err != nil {
			return nil, err
		}
		out = append(out, models.QAItem{Question: q, Answer: a})
	}
	return out, nil
}

// Flashcards validates {"flashcards": [{"front", "back"}]}.
func Flashcards(raw map[string]any) ([]models.Flashcard, error) {
	items, err := objectList("flashcards", raw, "flashcards")
	if err != nil {
		return nil, err
	}
	out := make([]models.Flashcard, 0, len(items))
	for i, item := range items {
		path := fmt.Sprintf("flashcards[%d]", i)
		front, err := requiredString("flashcards", item, "front", path)
		if err != nil {
			return nil, err
		}
		back, err := requiredString("flashcards", item, "back", path)
		if err != nil {
			return nil, err
		}
		out = append(out, models.Flashcard{Front: front, Back: back})
	}
	return out, nil
}

// DeepAnalysis validates the analysis backend envelope payload.
// Lists may be empty; eli5 must be present and non-empty.
func DeepAnalysis(raw map[string]any) (models.DeepAnalysis, error) {
	const schema = "deep_analysis"
	concepts, err := stringList(schema, raw, "key_concepts")
	if err != nil {
		return models.DeepAnalysis{}, err
	}
	eli5, err := requiredString(schema, raw, "eli5")
	if err != nil {
		return models.DeepAnalysis{}, err
	}
	questions, err := stringList(schema, raw, "follow_up_questions")
	if err != nil {
		return models.DeepAnalysis{}, err
	}
	return models.DeepAnalysis{
		KeyConcepts:       concepts,
		ELI5:              eli5,
		FollowUpQuestions: questions,
	}, nil
}

// requiredString reads obj[key] as a non-blank string. An optional parent
// path prefixes the reported location.
func requiredString(schema string, obj map[string]any, key string, parent ...string) (string, error) {
	path := key
	if len(parent) > 0 {
		path = parent[0] + "." + key
	}
	if obj == nil {
		return "", mismatch(schema, path, "missing object")
	}
	v, ok := obj[key]
	if !ok {
		return "", mismatch(schema, path, "missing key")
	}
	s, ok := v.(string)
	if !ok {
		return "", mismatch(schema, path, "expected string, got %s", typeName(v))
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", mismatch(schema, path, "empty string")
	}
	return s, nil
}

func objectList(schema string, obj map[string]any, key string) ([]map[string]any, error) {
	if obj == nil {
		return nil, mismatch(schema, key, "missing object")
	}
	v, ok := obj[key]
	if !ok {
		return nil, mismatch(schema, key, "missing key")
	}
	list, ok := v.([]any)
	if !ok {
		return nil, mismatch(schema, key, "expected array, got %s", typeName(v))
	}
	out := make([]map[string]any, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, mismatch(schema, fmt.Sprintf("%s[%d]", key, i), "expected object, got %s", typeName(item))
		}
		out = append(out, m)
	}
	return out, nil
}

func stringList(schema string, obj map[string]any, key string) ([]string, error) {
	v, ok := obj[key]
	if !ok {
		return nil, mismatch(schema, key, "missing key")
	}
	list, ok := v.([]any)
	if !ok {
		return nil, mismatch(schema, key, "expected array, got %s", typeName(v))
	}
	out := make([]string, 0, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, mismatch(schema, fmt.Sprintf("%s[%d]", key, i), "expected string, got %s", typeName(item))
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64, int, int64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
