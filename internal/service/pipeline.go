// Package service drives analysis tasks through the pipeline and serves
// the follow-on operations that read a finished transcript.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/lecturelens/internal/llm"
	"github.com/raphaelgruber/lecturelens/internal/media"
	"github.com/raphaelgruber/lecturelens/internal/metrics"
	"github.com/raphaelgruber/lecturelens/internal/models"
	"github.com/raphaelgruber/lecturelens/internal/prompts"
	"github.com/raphaelgruber/lecturelens/internal/stage"
	"github.com/raphaelgruber/lecturelens/internal/workerpool"
)

// TaskStore holds task state. The pipeline is the only writer for a task.
type TaskStore interface {
	Create(url string) (models.Task, error)
	Get(id string) (models.Task, bool)
	List() []models.Task
	SetStage(id string, stage models.Stage) error
	SetFailed(id string, stage models.Stage, reason string) error
	SetCompleted(id string, result *models.AnalysisResult) error
}

// MediaFetcher downloads the audio and video for a task.
type MediaFetcher interface {
	Fetch(ctx context.Context, taskID, url string) (media.Refs, error)
}

// Transcriber turns an audio file into timestamped text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (media.Transcript, error)
}

// FrameSampler lists sampled frame positions. It reports no errors.
type FrameSampler interface {
	Sample(ctx context.Context, videoPath string) []models.Visual
}

// Pool schedules pipeline runs.
type Pool interface {
	Enqueue(j workerpool.Job) error
}

// PipelineDeps are the collaborators of a Pipeline. Metrics and Logger
// may be nil.
type PipelineDeps struct {
	Store       TaskStore
	Pool        Pool
	Fetcher     MediaFetcher
	Transcriber Transcriber
	Sampler     FrameSampler
	Generator   llm.TextGenerator
	Prompts     *prompts.Set
	Metrics     *metrics.Collector
	Logger      *slog.Logger
}

// PipelineOptions tunes a Pipeline.
type PipelineOptions struct {
	FetchTimeout      time.Duration
	TranscribeTimeout time.Duration
	GenerateTimeout   time.Duration
	VisualsTimeout    time.Duration

	// Leading characters of the transcript sent with each prompt; 0 sends all.
	SummaryChars  int
	ChaptersChars int
	QAChars       int

	// TextConcurrency caps parallel generation calls within one task.
	TextConcurrency int
	// KeepMedia disables purging downloaded files after a run.
	KeepMedia bool
}

// Pipeline runs the download, transcribe, text and visual stages for a task.
type Pipeline struct {
	store       TaskStore
	pool        Pool
	fetcher     MediaFetcher
	transcriber Transcriber
	sampler     FrameSampler
	generator   llm.TextGenerator
	prompts     *prompts.Set
	metrics     *metrics.Collector
	runner      *stage.Runner
	logger      *slog.Logger
	opts        PipelineOptions
}

// NewPipeline checks deps and creates a Pipeline.
func NewPipeline(deps PipelineDeps, opts PipelineOptions) (*Pipeline, error) {
	if deps.Store == nil || deps.Pool == nil || deps.Fetcher == nil ||
		deps.Transcriber == nil || deps.Sampler == nil || deps.Generator == nil {
		return nil, ErrNilDependency
	}
	if deps.Prompts == nil {
		deps.Prompts = prompts.Default()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.TextConcurrency < 1 {
		opts.TextConcurrency = 1
	}
	return &Pipeline{
		store:       deps.Store,
		pool:        deps.Pool,
		fetcher:     deps.Fetcher,
		transcriber: deps.Transcriber,
		sampler:     deps.Sampler,
		generator:   deps.Generator,
		prompts:     deps.Prompts,
		metrics:     deps.Metrics,
		runner:      stage.NewRunner(deps.Logger, deps.Metrics),
		logger:      deps.Logger,
		opts:        opts,
	}, nil
}

// Submit registers a task for url and schedules its run. It returns before
// any stage starts. If the pool rejects the run, the task is marked failed
// and the pool error is returned with the task id.
func (p *Pipeline) Submit(ctx context.Context, url string) (string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return "", fmt.Errorf("%w: url is required", ErrInvalidInput)
	}

	task, err := p.store.Create(url)
	if err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	p.metrics.TaskSubmitted()

	err = p.pool.Enqueue(workerpool.Job{
		ID: task.ID,
		Work: func(ctx context.Context) error {
			return p.Run(ctx, task.ID, task.URL)
		},
		OnFinish: func(err error) {
			p.ensureFinished(task.ID, err)
		},
	})
	if err != nil {
		p.logger.Warn("task rejected by pool", "task_id", task.ID, "error", err)
		p.fail(task.ID, &stage.Failure{Stage: models.StageNone, Message: err.Error()})
		return task.ID, err
	}

	p.logger.Info("task submitted", "task_id", task.ID, "url", url)
	return task.ID, nil
}

// Status returns a snapshot of the task.
func (p *Pipeline) Status(id string) (models.Task, bool) {
	return p.store.Get(id)
}

// Tasks returns all known tasks, most recent first.
func (p *Pipeline) Tasks() []models.Task {
	return p.store.List()
}

// Run drives one task to completion or its first fatal failure. Download
// and transcription failures end the task; text and visual failures only
// empty the affected fields. The returned error mirrors a failed task.
func (p *Pipeline) Run(ctx context.Context, taskID, url string) error {
	start := time.Now()
	log := p.logger.With("task_id", taskID)

	// 1. download
	if err := p.advance(ctx, taskID, models.StageDownloading); err != nil {
		return err
	}
	fetched := stage.Run(ctx, p.runner, stage.Call{
		Stage:   models.StageDownload,
		Name:    string(models.StageDownloading),
		TaskID:  taskID,
		Timeout: p.opts.FetchTimeout,
	}, func(ctx context.Context) (media.Refs, error) {
		return p.fetcher.Fetch(ctx, taskID, url)
	})
	if !fetched.OK() {
		return p.fail(taskID, fetched.Failure)
	}
	refs := fetched.Value
	defer p.purge(taskID)
	if refs.Empty() {
		return p.fail(taskID, &stage.Failure{Stage: models.StageDownload, Message: "download produced no audio or video"})
	}

	// 2. transcribe
	if err := p.advance(ctx, taskID, models.StageTranscribing); err != nil {
		return err
	}
	transcribed := stage.Run(ctx, p.runner, stage.Call{
		Stage:   models.StageTranscription,
		Name:    string(models.StageTranscribing),
		TaskID:  taskID,
		Timeout: p.opts.TranscribeTimeout,
	}, func(ctx context.Context) (media.Transcript, error) {
		return p.transcriber.Transcribe(ctx, refs.Audio)
	})
	if !transcribed.OK() {
		return p.fail(taskID, transcribed.Failure)
	}
	segments := transcribed.Value.Segments
	fullText := fullTextOf(transcribed.Value)
	if fullText == "" {
		return p.fail(taskID, &stage.Failure{Stage: models.StageTranscription, Message: "transcription produced no text"})
	}

	// 3. text analysis
	if err := p.advance(ctx, taskID, models.StageAnalyzingText); err != nil {
		return err
	}
	text := p.analyzeText(ctx, taskID, fullText)

	// 4. visuals
	if err := p.advance(ctx, taskID, models.StageAnalyzingVisuals); err != nil {
		return err
	}
	sampled := stage.Run(ctx, p.runner, stage.Call{
		Stage:   models.StageAnalyzingVisuals,
		TaskID:  taskID,
		Timeout: p.opts.VisualsTimeout,
	}, func(ctx context.Context) ([]models.Visual, error) {
		return p.sampler.Sample(ctx, refs.Video), nil
	})

	result := &models.AnalysisResult{
		Transcript: segments,
		FullText:   fullText,
	}
	text.apply(result)
	if sampled.OK() {
		result.Visuals = sampled.Value
	} else {
		result.Warnings = append(result.Warnings, "visuals: "+sampled.Failure.Message)
	}

	if err := p.store.SetCompleted(taskID, result); err != nil {
		log.Error("failed to store result", "error", err)
		return err
	}
	p.metrics.TaskFinished(false)
	log.Info("task completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"segments", len(segments),
		"chapters", len(result.Chapters),
		"warnings", len(result.Warnings),
	)
	return nil
}

// advance moves the task to next unless the run has been cancelled.
func (p *Pipeline) advance(ctx context.Context, taskID string, next models.Stage) error {
	if err := ctx.Err(); err != nil {
		current := models.StageNone
		if t, ok := p.store.Get(taskID); ok {
			current = t.Stage
		}
		return p.fail(taskID, &stage.Failure{Stage: failureTag(current), Message: "pipeline stopped: " + err.Error()})
	}
	if err := p.store.SetStage(taskID, next); err != nil {
		return fmt.Errorf("set stage %s: %w", next, err)
	}
	p.logger.Debug("stage started", "task_id", taskID, "stage", next)
	return nil
}

// fail records f as the terminal state of the task and returns it.
func (p *Pipeline) fail(taskID string, f *stage.Failure) error {
	if err := p.store.SetFailed(taskID, f.Stage, f.Message); err != nil {
		p.logger.Error("failed to record task failure", "task_id", taskID, "error", err)
		return f
	}
	p.metrics.TaskFinished(true)
	p.logger.Warn("task failed", "task_id", taskID, "stage", f.Stage, "reason", f.Message)
	return f
}

// ensureFinished fails a task whose run ended without a terminal state,
// which only happens when the run panicked or could not write its stage.
func (p *Pipeline) ensureFinished(taskID string, runErr error) {
	t, ok := p.store.Get(taskID)
	if !ok || t.Status.Terminal() {
		return
	}
	msg := "pipeline ended unexpectedly"
	if runErr != nil {
		msg = "internal error: " + runErr.Error()
	}
	p.fail(taskID, &stage.Failure{Stage: failureTag(t.Stage), Message: msg})
}

func (p *Pipeline) purge(taskID string) {
	if p.opts.KeepMedia {
		return
	}
	purger, ok := p.fetcher.(media.Purger)
	if !ok {
		return
	}
	if err := purger.Purge(taskID); err != nil {
		p.logger.Warn("failed to purge media", "task_id", taskID, "error", err)
	}
}

// failureTag maps a progress stage to the tag recorded when it fails.
func failureTag(s models.Stage) models.Stage {
	switch s {
	case models.StageDownloading:
		return models.StageDownload
	case models.StageTranscribing:
		return models.StageTranscription
	default:
		return s
	}
}

func fullTextOf(t media.Transcript) string {
	if full := strings.TrimSpace(t.FullText); full != "" {
		return full
	}
	texts := make([]string, 0, len(t.Segments))
	for _, s := range t.Segments {
		if s.Text != "" {
			texts = append(texts, s.Text)
		}
	}
	return strings.TrimSpace(strings.Join(texts, " "))
}

// leading returns the first n characters of text; n <= 0 returns text.
func leading(text string, n int) string {
	if n <= 0 {
		return text
	}
	count := 0
	for i := range text {
		if count == n {
			return text[:i]
		}
		count++
	}
	return text
}
