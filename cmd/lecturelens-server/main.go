// Package main provides the HTTP server for lecturelens.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/lecturelens/internal/config"
	"github.com/raphaelgruber/lecturelens/internal/llm"
	"github.com/raphaelgruber/lecturelens/internal/media"
	"github.com/raphaelgruber/lecturelens/internal/metrics"
	"github.com/raphaelgruber/lecturelens/internal/prompts"
	"github.com/raphaelgruber/lecturelens/internal/server"
	"github.com/raphaelgruber/lecturelens/internal/service"
	"github.com/raphaelgruber/lecturelens/internal/store"
	"github.com/raphaelgruber/lecturelens/internal/workerpool"
)

const version = "0.1.0"

func main() {
	purge := flag.Bool("purge-media", false, "delete downloaded media after each task (overrides LECTURELENS_KEEP_MEDIA)")
	flag.Parse()

	cfg := config.Load()
	if *purge {
		cfg.KeepMedia = false
	}

	// Setup logger (dual output: stderr text + file JSON)
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		cleanup()
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	logger.Info("lecturelens-server starting",
		"version", version,
		"port", cfg.ServerPort,
		"llm", cfg.LLMProvider+"/"+cfg.LLMModel,
		"analysis", cfg.AnalysisProvider+"/"+cfg.AnalysisModel,
		"transcriber", cfg.TranscribeProvider,
		"workers", cfg.Workers,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector := metrics.NewCollector()

	initCtx, initCancel := context.WithTimeout(ctx, 30*time.Second)
	generator, err := llm.New(initCtx, llm.TextSettings(cfg, collector))
	if err != nil {
		initCancel()
		return fmt.Errorf("init text backend: %w", err)
	}
	analyzer, err := llm.New(initCtx, llm.AnalysisSettings(cfg, collector))
	initCancel()
	if err != nil {
		return fmt.Errorf("init analysis backend: %w", err)
	}

	promptSet, err := prompts.Load(cfg.PromptsFile)
	if err != nil {
		return err
	}

	transcriber, err := newTranscriber(cfg, collector)
	if err != nil {
		return err
	}

	tasks := store.NewMemory()
	pool := workerpool.New(cfg.QueueSize, cfg.Workers, cfg.PipelineTimeout, logger)

	pipeline, err := service.NewPipeline(service.PipelineDeps{
		Store:       tasks,
		Pool:        pool,
		Fetcher:     media.NewYTDLP(cfg.YTDLPBin, cfg.FFmpegBin, cfg.WorkDir),
		Transcriber: transcriber,
		Sampler:     media.NewFFmpegSampler(cfg.FFmpegBin, cfg.FrameInterval),
		Generator:   generator,
		Prompts:     promptSet,
		Metrics:     collector,
		Logger:      logger,
	}, service.PipelineOptions{
		FetchTimeout:      cfg.FetchTimeout,
		TranscribeTimeout: cfg.TranscribeTimeout,
		GenerateTimeout:   cfg.GenerateTimeout,
		VisualsTimeout:    cfg.VisualsTimeout,
		SummaryChars:      cfg.SummaryPromptChars,
		ChaptersChars:     cfg.ChaptersPromptChars,
		QAChars:           cfg.ChatPromptChars,
		TextConcurrency:   cfg.TextConcurrency,
		KeepMedia:         cfg.KeepMedia,
	})
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}

	interaction, err := service.NewInteraction(tasks, generator, analyzer, promptSet, logger, service.InteractionOptions{
		PromptChars:      cfg.ChatPromptChars,
		ChatTimeout:      cfg.ChatTimeout,
		FlashcardTimeout: cfg.FlashcardTimeout,
		AnalysisTimeout:  cfg.AnalysisTimeout,
	})
	if err != nil {
		return fmt.Errorf("create interaction service: %w", err)
	}

	srv, err := server.New(server.Deps{
		Tasks:       pipeline,
		Interaction: interaction,
		Metrics:     collector,
		Pool:        pool,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	pool.Start(ctx)
	if cfg.PromptsWatch {
		if err := prompts.Watch(ctx, promptSet, cfg.PromptsFile, logger); err != nil {
			logger.Warn("prompts file will not be reloaded", "error", err)
		}
	}
	go service.RunExpiry(ctx, tasks, cfg.TaskTTL, cfg.TaskSweepPeriod)

	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.GenerateTimeout + 30*time.Second, // Long for LLM responses
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP endpoint available", "url", fmt.Sprintf("http://localhost:%s/", cfg.ServerPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serveErr:
		return err
	}

	logger.Info("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// Running pipelines see a cancelled context and fail their task.
	cancel()
	if err := pool.Stop(shutdownCtx); err != nil {
		logger.Warn("worker pool did not drain", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func newTranscriber(cfg config.Config, m *metrics.Collector) (service.Transcriber, error) {
	switch cfg.TranscribeProvider {
	case config.TranscriberWhisperCLI:
		return media.NewWhisperCLI(cfg.WhisperBin, cfg.WhisperModel, m), nil
	case config.TranscriberWhisperAPI:
		return &media.WhisperAPI{
			URL:     cfg.TranscribeURL,
			APIKey:  cfg.TranscribeAPIKey,
			Model:   cfg.TranscribeModel,
			Client:  &http.Client{Timeout: cfg.TranscribeTimeout},
			Metrics: m,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported transcriber: %s", cfg.TranscribeProvider)
	}
}
