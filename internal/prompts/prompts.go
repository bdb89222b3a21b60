// Package prompts renders the prompt templates sent to language models.
package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Name identifies a template.
type Name string

const (
	Summary    Name = "summary"
	Chapters   Name = "chapters"
	QA         Name = "qa"
	Flashcards Name = "flashcards"
	Chat       Name = "chat"
	Analysis   Name = "analysis"
)

var allNames = []Name{Summary, Chapters, QA, Flashcards, Chat, Analysis}

//go:embed prompts.yaml
var defaultYAML []byte

// Data is the input to every template. Templates use the fields they need.
type Data struct {
	Transcript string
	History    string
	Question   string
	Text       string
}

// Set is a parsed group of templates. It is safe for concurrent use and
// may be swapped in place with Reload.
type Set struct {
	mu        sync.RWMutex
	templates map[Name]*template.Template
}

// Default returns the built-in templates.
func Default() *Set {
	set, err := parse(defaultYAML, nil)
	if err != nil {
		panic(fmt.Sprintf("embedded prompts: %v", err))
	}
	return set
}

// Load returns the built-in templates overlaid with those in path.
// Keys missing from the file keep their defaults. An empty path yields the
// defaults.
func Load(path string) (*Set, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file: %w", err)
	}
	return parse(defaultYAML, data)
}

// Reload re-reads path and replaces the templates. On error the current
// templates stay in place.
func (s *Set) Reload(path string) error {
	next, err := Load(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.templates = next.templates
	s.mu.Unlock()
	return nil
}

func parse(base, overlay []byte) (*Set, error) {
	raw := map[string]string{}
	if err := yaml.Unmarshal(base, &raw); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	if overlay != nil {
		extra := map[string]string{}
		if err := yaml.Unmarshal(overlay, &extra); err != nil {
			return nil, fmt.Errorf("parse prompts: %w", err)
		}
		for k, v := range extra {
			if !slices.Contains(allNames, Name(k)) {
				return nil, fmt.Errorf("unknown prompt %q", k)
			}
			if strings.TrimSpace(v) != "" {
				raw[k] = v
			}
		}
	}

	set := &Set{templates: make(map[Name]*template.Template, len(allNames))}
	for _, name := range allNames {
		text, ok := raw[string(name)]
		if !ok {
			return nil, fmt.Errorf("prompt %q missing", name)
		}
		tmpl, err := template.New(string(name)).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse prompt %q: %w", name, err)
		}
		set.templates[name] = tmpl
	}
	return set, nil
}

// Render executes the named template.
func (s *Set) Render(name Name, data Data) (string, error) {
	s.mu.RLock()
	tmpl, ok := s.templates[name]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown prompt %q", name)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render prompt %q: %w", name, err)
	}
	return b.String(), nil
}
