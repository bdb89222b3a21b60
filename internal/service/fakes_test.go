package service

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/raphaelgruber/lecturelens/internal/media"
	"github.com/raphaelgruber/lecturelens/internal/models"
	"github.com/raphaelgruber/lecturelens/internal/store"
	"github.com/raphaelgruber/lecturelens/internal/workerpool"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	fetch func(ctx context.Context, taskID, url string) (media.Refs, error)

	mu     sync.Mutex
	purged []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, taskID, url string) (media.Refs, error) {
	return f.fetch(ctx, taskID, url)
}

func (f *fakeFetcher) Purge(taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purged = append(f.purged, taskID)
	return nil
}

func (f *fakeFetcher) purgedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.purged...)
}

type fakeTranscriber struct {
	transcribe func(ctx context.Context, audioPath string) (media.Transcript, error)
	calls      atomic.Int32
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath string) (media.Transcript, error) {
	f.calls.Add(1)
	return f.transcribe(ctx, audioPath)
}

type fakeSampler struct {
	sample func(ctx context.Context, videoPath string) []models.Visual
}

func (f *fakeSampler) Sample(ctx context.Context, videoPath string) []models.Visual {
	return f.sample(ctx, videoPath)
}

type fakeGenerator struct {
	name         string
	generate     func(ctx context.Context, prompt string) (string, error)
	generateJSON func(ctx context.Context, prompt string) (map[string]any, error)

	calls   atomic.Int32
	mu      sync.Mutex
	prompts []string
}

func (f *fakeGenerator) record(prompt string) {
	f.calls.Add(1)
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.record(prompt)
	return f.generate(ctx, prompt)
}

func (f *fakeGenerator) GenerateJSON(ctx context.Context, prompt string) (map[string]any, error) {
	f.record(prompt)
	return f.generateJSON(ctx, prompt)
}

func (f *fakeGenerator) Name() string {
	if f.name == "" {
		return "fake"
	}
	return f.name
}

func (f *fakeGenerator) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

// fakePool captures jobs instead of running them.
type fakePool struct {
	enqueue func(j workerpool.Job) error

	mu   sync.Mutex
	jobs []workerpool.Job
}

func (f *fakePool) Enqueue(j workerpool.Job) error {
	if f.enqueue != nil {
		if err := f.enqueue(j); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.jobs = append(f.jobs, j)
	f.mu.Unlock()
	return nil
}

// textReplies routes structured prompts to per-field replies.
func textReplies(summary, chapters, qa map[string]any) func(context.Context, string) (map[string]any, error) {
	return func(_ context.Context, prompt string) (map[string]any, error) {
		switch {
		case strings.Contains(prompt, `single key "summary"`):
			return summary, nil
		case strings.Contains(prompt, `single key "chapters"`):
			return chapters, nil
		case strings.Contains(prompt, `single key "qa"`):
			return qa, nil
		}
		return map[string]any{}, nil
	}
}

func okFetcher() *fakeFetcher {
	return &fakeFetcher{fetch: func(context.Context, string, string) (media.Refs, error) {
		return media.Refs{Audio: "temp/t/audio.mp3", Video: "temp/t/video.mp4"}, nil
	}}
}

func helloTranscriber() *fakeTranscriber {
	return &fakeTranscriber{transcribe: func(context.Context, string) (media.Transcript, error) {
		return media.Transcript{
			Segments: []models.Segment{{Timestamp: "00:00", Text: "hello"}},
			FullText: "hello",
		}, nil
	}}
}

func emptySampler() *fakeSampler {
	return &fakeSampler{sample: func(context.Context, string) []models.Visual { return []models.Visual{} }}
}

type harness struct {
	store       *store.Memory
	pool        *fakePool
	fetcher     *fakeFetcher
	transcriber *fakeTranscriber
	sampler     *fakeSampler
	generator   *fakeGenerator
}

func newHarness() *harness {
	return &harness{
		store:       store.NewMemory(),
		pool:        &fakePool{},
		fetcher:     okFetcher(),
		transcriber: helloTranscriber(),
		sampler:     emptySampler(),
		generator: &fakeGenerator{generateJSON: textReplies(
			map[string]any{"summary": "ok"},
			map[string]any{"chapters": []any{}},
			map[string]any{"qa": []any{}},
		)},
	}
}

func (h *harness) pipeline(t *testing.T, opts PipelineOptions) *Pipeline {
	t.Helper()
	p, err := NewPipeline(PipelineDeps{
		Store:       h.store,
		Pool:        h.pool,
		Fetcher:     h.fetcher,
		Transcriber: h.transcriber,
		Sampler:     h.sampler,
		Generator:   h.generator,
	}, opts)
	require.NoError(t, err)
	return p
}

// runTask creates a task and runs its pipeline synchronously.
func (h *harness) runTask(t *testing.T, p *Pipeline) models.Task {
	t.Helper()
	task, err := h.store.Create("https://youtu.be/x")
	require.NoError(t, err)
	_ = p.Run(context.Background(), task.ID, task.URL)
	got, ok := h.store.Get(task.ID)
	require.True(t, ok)
	return got
}
