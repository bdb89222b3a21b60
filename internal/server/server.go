// Package server exposes the analysis service over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/lecturelens/internal/metrics"
	"github.com/raphaelgruber/lecturelens/internal/models"
	"github.com/raphaelgruber/lecturelens/internal/workerpool"
)

// Tasks submits analysis tasks and reads their state.
type Tasks interface {
	Submit(ctx context.Context, url string) (string, error)
	Status(id string) (models.Task, bool)
	Tasks() []models.Task
}

// Interaction runs the follow-on operations on finished transcripts.
type Interaction interface {
	Ask(ctx context.Context, taskID, question string, history []models.ChatMessage) (string, error)
	Flashcards(ctx context.Context, taskID string) ([]models.Flashcard, error)
	DeeperAnalysis(ctx context.Context, text string) (models.DeepAnalysis, error)
}

// PoolStats reports worker pool load.
type PoolStats interface {
	Stats() workerpool.Stats
}

// Deps are the collaborators of a Server. Metrics, Pool and Logger may be nil.
type Deps struct {
	Tasks       Tasks
	Interaction Interaction
	Metrics     *metrics.Collector
	Pool        PoolStats
	Logger      *slog.Logger

	// WatchInterval is how often a watch stream checks for changes.
	WatchInterval time.Duration
}

// Server routes HTTP requests to the service layer.
type Server struct {
	tasks         Tasks
	interaction   Interaction
	metrics       *metrics.Collector
	pool          PoolStats
	logger        *slog.Logger
	upgrader      websocket.Upgrader
	watchInterval time.Duration
}

// New creates a Server.
func New(deps Deps) (*Server, error) {
	if deps.Tasks == nil || deps.Interaction == nil {
		return nil, errors.New("server: tasks and interaction are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.WatchInterval <= 0 {
		deps.WatchInterval = 500 * time.Millisecond
	}
	return &Server{
		tasks:       deps.Tasks,
		interaction: deps.Interaction,
		metrics:     deps.Metrics,
		pool:        deps.Pool,
		logger:      deps.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for local dev
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		watchInterval: deps.WatchInterval,
	}, nil
}

// Handler returns the routed and logged HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /analyze", s.handleAnalyze)
	mux.HandleFunc("GET /status/{id}", s.handleStatus)
	mux.HandleFunc("GET /status/{id}/watch", s.handleWatch)
	mux.HandleFunc("GET /tasks", s.handleTasks)
	mux.HandleFunc("POST /tasks/{id}/ask", s.handleAsk)
	mux.HandleFunc("POST /tasks/{id}/flashcards", s.handleFlashcards)
	mux.HandleFunc("POST /deeper-analysis", s.handleDeeperAnalysis)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /health", s.handleHealth)

	return LoggingMiddleware(s.logger)(mux)
}
