package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/raphaelgruber/lecturelens/internal/client"
	"github.com/raphaelgruber/lecturelens/internal/metrics"
	"github.com/raphaelgruber/lecturelens/internal/models"
	"github.com/raphaelgruber/lecturelens/internal/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintTask(t *testing.T) {
	created := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	finished := created.Add(90 * time.Second)
	task := &models.Task{
		ID: "t1", URL: "https://youtu.be/x", Status: models.StatusCompleted, Stage: models.StageDone,
		CreatedAt: created, CompletedAt: &finished,
		Result: &models.AnalysisResult{
			Summary:    "A lecture.",
			Transcript: []models.Segment{{Timestamp: "00:00", Text: "hello"}},
			Chapters:   []models.Chapter{{Timestamp: "00:00", Topic: "Intro"}},
			QA:         []models.QAItem{{Question: "Why?", Answer: "Because."}},
			Visuals:    []models.Visual{{Timestamp: "00:30", Description: "Visual content at 00:30"}},
			FullText:   "hello",
			Warnings:   []string{"qa: timed out"},
		},
	}

	var buf bytes.Buffer
	printTask(&buf, task)
	out := buf.String()

	assert.Contains(t, out, "Task: t1")
	assert.Contains(t, out, "Duration: 1m30s")
	assert.Contains(t, out, "A lecture.")
	assert.Contains(t, out, "Intro")
	assert.Contains(t, out, "Q: Why?")
	assert.Contains(t, out, "Visual content at 00:30")
	assert.Contains(t, out, "qa: timed out")
	assert.Contains(t, out, "1 segments, 5 characters")
}

func TestPrintTaskFailed(t *testing.T) {
	var buf bytes.Buffer
	printTask(&buf, &models.Task{ID: "t1", Status: models.StatusFailed, Stage: models.StageDownload, Error: "video unavailable"})
	assert.Contains(t, buf.String(), "Error: video unavailable")
	assert.NotContains(t, buf.String(), "Summary")
}

func TestPrintTasks(t *testing.T) {
	var buf bytes.Buffer
	printTasks(&buf, nil)
	assert.Equal(t, "No tasks found\n", buf.String())

	buf.Reset()
	printTasks(&buf, []models.Task{{ID: "t1", Status: models.StatusQueued, URL: "u"}})
	assert.Contains(t, buf.String(), "t1")
	assert.Contains(t, buf.String(), "queued")
}

func TestTaskError(t *testing.T) {
	tests := []struct {
		name string
		task models.Task
		want string
	}{
		{"stage and reason", models.Task{Stage: models.StageTranscription, Error: "no speech"}, "transcription: no speech"},
		{"rejected before any stage", models.Task{Error: "task pool is full"}, "task pool is full"},
		{"no reason", models.Task{Stage: models.StageDownload}, "task failed at download"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.EqualError(t, taskError(&tt.task), tt.want)
		})
	}
}

func TestReadHistory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chat.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"sender":"user","text":"hi"},{"sender":"ai","text":"hello"}]`), 0o600))

	history, err := readHistory(path)
	require.NoError(t, err)
	assert.Equal(t, []models.ChatMessage{
		{Sender: models.SenderUser, Text: "hi"},
		{Sender: models.SenderAI, Text: "hello"},
	}, history)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{`), 0o600))
	_, err = readHistory(bad)
	assert.Error(t, err)

	_, err = readHistory(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestPollTask(t *testing.T) {
	states := []models.Task{
		{ID: "t1", Status: models.StatusQueued},
		{ID: "t1", Status: models.StatusProcessing, Stage: models.StageDownloading},
		{ID: "t1", Status: models.StatusProcessing, Stage: models.StageDownloading},
		{ID: "t1", Status: models.StatusCompleted, Stage: models.StageDone,
			Result: &models.AnalysisResult{FullText: "hello", Transcript: []models.Segment{{Timestamp: "00:00", Text: "hello"}}}},
	}
	var mu sync.Mutex
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		i := min(calls, len(states)-1)
		calls++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(states[i])
	}))
	defer ts.Close()

	var buf bytes.Buffer
	err := pollTask(context.Background(), &buf, client.New(ts.URL), "t1", time.Millisecond)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "[queued]")
	assert.Contains(t, out, "downloading")
	assert.Contains(t, out, "100%")
	assert.Contains(t, out, "Segments:  1")
	assert.Equal(t, 3, bytes.Count(buf.Bytes(), []byte("%\n")), "one line per stage change")
}

func TestPollTaskFailed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(models.Task{ID: "t1", Status: models.StatusFailed, Stage: models.StageDownload, Error: "gone"})
	}))
	defer ts.Close()

	var buf bytes.Buffer
	err := pollTask(context.Background(), &buf, client.New(ts.URL), "t1", time.Millisecond)
	assert.EqualError(t, err, "download: gone")
}

func TestPrintStats(t *testing.T) {
	in, out := int64(10), int64(20)
	stats := &client.Stats{
		Metrics: metrics.Snapshot{
			UptimeSeconds: 3,
			Tasks:         metrics.TaskCounts{Submitted: 2, Completed: 1, Failed: 1},
			Operations: map[string]*metrics.OperationSnapshot{
				"stage_downloading": {Count: 2, TotalTimeMs: 40},
				"llm_generate":      {Count: 1, TotalTimeMs: 5, TotalInputTokens: &in, TotalOutputTokens: &out},
			},
		},
		Pool: &workerpool.Stats{Queued: 1, Capacity: 8, Workers: 2},
	}

	var buf bytes.Buffer
	printStats(&buf, stats)
	s := buf.String()
	assert.Contains(t, s, "2 submitted, 1 completed, 1 failed")
	assert.Contains(t, s, "Pool: 1/8 queued, 2 workers")
	assert.Contains(t, s, "stage downloading:")
	assert.Contains(t, s, "Tokens In:  10 total")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("llm generate")), bytes.Index(buf.Bytes(), []byte("stage downloading")))
}
