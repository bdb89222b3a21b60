package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var errNoJSONObject = errors.New("no JSON object in model output")

// DecodeObject turns model output into a generic JSON object. Markdown code
// fences and any prose around the first balanced object are ignored.
func DecodeObject(text string) (map[string]any, error) {
	cleaned := StripCodeFences(text)
	raw := extractJSONObject(cleaned)
	if raw == "" {
		return nil, errNoJSONObject
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}
	return obj, nil
}

// StripCodeFences removes ``` and ```json markers.
func StripCodeFences(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```JSON", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

// extractJSONObject returns the first balanced {...} span, honouring
// braces inside string literals.
func extractJSONObject(input string) string {
	start := strings.IndexByte(input, '{')
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(input); i++ {
		ch := input[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return input[start : i+1]
			}
		}
	}
	return ""
}
