package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/raphaelgruber/lecturelens/internal/llm"
	"github.com/raphaelgruber/lecturelens/internal/metrics"
	"github.com/raphaelgruber/lecturelens/internal/models"
	"github.com/raphaelgruber/lecturelens/internal/service"
	"github.com/raphaelgruber/lecturelens/internal/workerpool"
)

const maxBodyBytes = 1 << 20

// AnalyzeResponse acknowledges a submitted task.
type AnalyzeResponse struct {
	Status string `json:"status"`
	TaskID string `json:"task_id"`
}

// AskRequest is the body of POST /tasks/{id}/ask.
type AskRequest struct {
	Question string               `json:"question"`
	History  []models.ChatMessage `json:"history"`
}

// AskResponse carries the generated answer.
type AskResponse struct {
	Answer string `json:"answer"`
}

// FlashcardsResponse carries generated study cards.
type FlashcardsResponse struct {
	Flashcards []models.Flashcard `json:"flashcards"`
}

// DeeperAnalysisRequest is the body of POST /deeper-analysis.
type DeeperAnalysisRequest struct {
	Text string `json:"text"`
}

// TasksResponse lists known tasks, most recent first.
type TasksResponse struct {
	Tasks []models.Task `json:"tasks"`
}

// StatsResponse reports service counters and pool load.
type StatsResponse struct {
	Metrics metrics.Snapshot  `json:"metrics"`
	Pool    *workerpool.Stats `json:"pool,omitempty"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error  string `json:"error"`
	TaskID string `json:"task_id,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("youtube_url")
	if url == "" && r.ContentLength != 0 {
		var body struct {
			URL string `json:"url"`
		}
		if err := decodeBody(w, r, &body); err != nil {
			s.writeError(w, err)
			return
		}
		url = body.URL
	}

	id, err := s.tasks.Submit(r.Context(), url)
	if err != nil {
		s.writeErrorFor(w, err, id)
		return
	}
	writeJSON(w, http.StatusAccepted, AnalyzeResponse{Status: "accepted", TaskID: id})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	task, ok := s.tasks.Status(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, notFound(id))
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, TasksResponse{Tasks: s.tasks.Tasks()})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	answer, err := s.interaction.Ask(r.Context(), r.PathValue("id"), req.Question, req.History)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AskResponse{Answer: answer})
}

func (s *Server) handleFlashcards(w http.ResponseWriter, r *http.Request) {
	cards, err := s.interaction.Flashcards(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FlashcardsResponse{Flashcards: cards})
}

func (s *Server) handleDeeperAnalysis(w http.ResponseWriter, r *http.Request) {
	var req DeeperAnalysisRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	analysis, err := s.interaction.DeeperAnalysis(r.Context(), req.Text)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Metrics: s.metrics.Snapshot()}
	if s.pool != nil {
		stats := s.pool.Stats()
		resp.Pool = &stats
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func notFound(id string) map[string]string {
	return map[string]string{"status": string(models.StatusNotFound), "task_id": id}
}

// decodeBody reads a JSON body into v. Malformed bodies are invalid input.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: malformed request body", service.ErrInvalidInput)
	}
	return nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeErrorFor(w, err, "")
}

// writeErrorFor maps service errors to status codes. Backend causes are
// logged but never sent to the caller.
func (s *Server) writeErrorFor(w http.ResponseWriter, err error, taskID string) {
	status, msg := classify(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: msg, TaskID: taskID})
}

func classify(err error) (int, string) {
	var be *llm.BackendError
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, service.ErrNotFound.Error()
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, workerpool.ErrPoolFull), errors.Is(err, workerpool.ErrPoolClosed):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, service.ErrGenerationFailed):
		return http.StatusBadGateway, service.ErrGenerationFailed.Error()
	case errors.As(err, &be):
		return http.StatusBadGateway, be.Error()
	case errors.Is(err, service.ErrBackend):
		return http.StatusBadGateway, "generation backend failed"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
