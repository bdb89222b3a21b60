// Package client provides an HTTP client for the lecturelens server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/lecturelens/internal/metrics"
	"github.com/raphaelgruber/lecturelens/internal/models"
	"github.com/raphaelgruber/lecturelens/internal/workerpool"
)

// ErrNotFound is returned for unknown tasks and tasks without a transcript.
var ErrNotFound = errors.New("task not found")

// APIError is a non-2xx reply from the server.
type APIError struct {
	StatusCode int
	Message    string
	TaskID     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.StatusCode, e.Message)
}

// Is lets 404 replies match ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Client talks to a lecturelens server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new client.
// If baseURL is empty, uses LECTURELENS_SERVER_URL env var or defaults to localhost:8000.
// Timeout can be configured via LECTURELENS_CLIENT_TIMEOUT env var (default 5m for generation calls).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("LECTURELENS_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}

	timeout := 5 * time.Minute
	if t := os.Getenv("LECTURELENS_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// do sends a request and decodes a JSON reply into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var e struct {
			Error  string `json:"error"`
			Status string `json:"status"`
			TaskID string `json:"task_id"`
		}
		_ = json.Unmarshal(raw, &e)
		msg := e.Error
		if msg == "" {
			msg = e.Status
		}
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg, TaskID: e.TaskID}
	}

	if result != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// Stats mirrors the server's /stats reply.
type Stats struct {
	Metrics metrics.Snapshot  `json:"metrics"`
	Pool    *workerpool.Stats `json:"pool,omitempty"`
}

// Analyze submits url and returns the new task id.
func (c *Client) Analyze(ctx context.Context, videoURL string) (string, error) {
	var resp struct {
		TaskID string `json:"task_id"`
	}
	path := "/analyze?youtube_url=" + url.QueryEscape(videoURL)
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return "", err
	}
	return resp.TaskID, nil
}

// Status returns the task snapshot, or ErrNotFound.
func (c *Client) Status(ctx context.Context, id string) (*models.Task, error) {
	var task models.Task
	if err := c.do(ctx, http.MethodGet, "/status/"+url.PathEscape(id), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Tasks lists known tasks, most recent first.
func (c *Client) Tasks(ctx context.Context) ([]models.Task, error) {
	var resp struct {
		Tasks []models.Task `json:"tasks"`
	}
	if err := c.do(ctx, http.MethodGet, "/tasks", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// Ask asks a question about a finished task.
func (c *Client) Ask(ctx context.Context, id, question string, history []models.ChatMessage) (string, error) {
	body := map[string]any{"question": question, "history": history}
	var resp struct {
		Answer string `json:"answer"`
	}
	if err := c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id)+"/ask", body, &resp); err != nil {
		return "", err
	}
	return resp.Answer, nil
}

// Flashcards generates study cards for a finished task.
func (c *Client) Flashcards(ctx context.Context, id string) ([]models.Flashcard, error) {
	var resp struct {
		Flashcards []models.Flashcard `json:"flashcards"`
	}
	if err := c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id)+"/flashcards", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Flashcards, nil
}

// DeeperAnalysis runs the analysis backend on text.
func (c *Client) DeeperAnalysis(ctx context.Context, text string) (*models.DeepAnalysis, error) {
	var resp models.DeepAnalysis
	if err := c.do(ctx, http.MethodPost, "/deeper-analysis", map[string]string{"text": text}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stats returns server counters.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// WatchTask streams task snapshots over a websocket until the task is
// terminal. The onUpdate callback is invoked for each snapshot. Return an
// error from onUpdate to stop watching.
func (c *Client) WatchTask(ctx context.Context, id string, onUpdate func(models.Task) error) error {
	// Convert HTTP endpoint to WebSocket endpoint
	wsEndpoint := c.baseURL + "/status/" + url.PathEscape(id) + "/watch"
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, wsEndpoint, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return ErrNotFound
		}
		return fmt.Errorf("websocket connect: %w", err)
	}

	// Track connection state for proper cleanup
	var mu sync.Mutex
	closed := false
	closeConn := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			conn.Close()
		}
	}
	defer closeConn()

	// Handle context cancellation in a separate goroutine
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	for {
		var raw json.RawMessage
		if err := conn.ReadJSON(&raw); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}

		var task models.Task
		if err := json.Unmarshal(raw, &task); err != nil {
			return fmt.Errorf("unmarshal task: %w", err)
		}
		if task.Status == models.StatusNotFound {
			return ErrNotFound
		}
		if err := onUpdate(task); err != nil {
			return err
		}
		if task.Status.Terminal() {
			return nil
		}
	}
}
