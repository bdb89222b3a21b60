package prompts

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRendersEveryPrompt(t *testing.T) {
	set := Default()
	data := Data{Transcript: "TRANSCRIPT", History: "HISTORY", Question: "QUESTION", Text: "TEXT"}

	for _, name := range allNames {
		t.Run(string(name), func(t *testing.T) {
			out, err := set.Render(name, data)
			require.NoError(t, err)
			assert.NotEmpty(t, out)
		})
	}

	chat, err := set.Render(Chat, data)
	require.NoError(t, err)
	assert.Contains(t, chat, "TRANSCRIPT")
	assert.Contains(t, chat, "HISTORY")
	assert.Contains(t, chat, "CURRENT QUESTION: QUESTION")

	analysis, err := set.Render(Analysis, data)
	require.NoError(t, err)
	assert.Contains(t, analysis, "TEXT")
	assert.Contains(t, analysis, `"eli5"`)
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("summary: \"Short: {{.Transcript}}\"\n"), 0o644))

	set, err := Load(path)
	require.NoError(t, err)

	out, err := set.Render(Summary, Data{Transcript: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "Short: abc", out)

	qa, err := set.Render(QA, Data{Transcript: "abc"})
	require.NoError(t, err)
	assert.Contains(t, qa, `"qa"`, "unlisted prompts keep their defaults")
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		return p
	}

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "nope.yaml")},
		{"bad yaml", write("bad.yaml", "summary: [unclosed")},
		{"unknown key", write("unknown.yaml", "poem: write a poem")},
		{"bad template", write("tmpl.yaml", "chat: \"{{.Question\"")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path)
			assert.Error(t, err)
		})
	}
}

func TestLoadEmptyPath(t *testing.T) {
	set, err := Load("")
	require.NoError(t, err)
	_, err = set.Render(Flashcards, Data{Transcript: "x"})
	assert.NoError(t, err)
}

func TestReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("summary: \"v1 {{.Transcript}}\"\n"), 0o644))
	set, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("summary: \"v2 {{.Transcript}}\"\n"), 0o644))
	require.NoError(t, set.Reload(path))
	out, err := set.Render(Summary, Data{Transcript: "x"})
	require.NoError(t, err)
	assert.Equal(t, "v2 x", out)

	require.NoError(t, os.WriteFile(path, []byte("summary: [unclosed"), 0o644))
	assert.Error(t, set.Reload(path))
	out, err = set.Render(Summary, Data{Transcript: "x"})
	require.NoError(t, err)
	assert.Equal(t, "v2 x", out, "failed reload keeps the previous templates")
}

func TestWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("summary: \"old {{.Transcript}}\"\n"), 0o644))
	set, err := Load(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, Watch(ctx, set, path, nil))

	require.NoError(t, os.WriteFile(path, []byte("summary: \"new {{.Transcript}}\"\n"), 0o644))
	assert.Eventually(t, func() bool {
		out, err := set.Render(Summary, Data{Transcript: "x"})
		return err == nil && out == "new x"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatchEmptyPath(t *testing.T) {
	assert.NoError(t, Watch(context.Background(), Default(), "", nil))
}
