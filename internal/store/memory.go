// Package store keeps analysis tasks in process memory.
package store

import (
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/lecturelens/internal/models"
)

var (
	ErrNotFound         = errors.New("task not found")
	ErrEmptyURL         = errors.New("task url is empty")
	ErrTerminal         = errors.New("task already finished")
	ErrStageRegression  = errors.New("stage transition goes backwards")
	ErrInvalidStage     = errors.New("not a progress stage")
	ErrIncompleteResult = errors.New("result has no full text")
)

// entry guards one task. Writers for different tasks never contend.
type entry struct {
	mu   sync.RWMutex
	task models.Task
}

// Memory is a concurrent-safe task registry.
// The map lock is held only to find entries, never across a task write.
type Memory struct {
	mu    sync.RWMutex
	tasks map[string]*entry
	now   func() time.Time
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		tasks: make(map[string]*entry),
		now:   time.Now,
	}
}

// Create registers a new queued task for url.
func (m *Memory) Create(url string) (models.Task, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return models.Task{}, ErrEmptyURL
	}

	now := m.now()
	e := &entry{task: models.Task{
		ID:        uuid.New().String(),
		URL:       url,
		Status:    models.StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}}

	m.mu.Lock()
	m.tasks[e.task.ID] = e
	m.mu.Unlock()

	slog.Debug("task created", "task_id", e.task.ID, "url", url)
	return e.task, nil
}

// Get returns a snapshot of the task. Results are never mutated after
// completion, so the snapshot may share the result pointer.
func (m *Memory) Get(id string) (models.Task, bool) {
	e := m.lookup(id)
	if e == nil {
		return models.Task{}, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.task, true
}

// List returns snapshots of all tasks, most recent first.
func (m *Memory) List() []models.Task {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.tasks))
	for _, e := range m.tasks {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	tasks := make([]models.Task, 0, len(entries))
	for _, e := range entries {
		e.mu.RLock()
		tasks = append(tasks, e.task)
		e.mu.RUnlock()
	}

	slices.SortFunc(tasks, func(a, b models.Task) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return tasks
}

// SetStage moves a task forward to stage and marks it processing.
// Repeating the current stage is a no-op.
func (m *Memory) SetStage(id string, stage models.Stage) error {
	switch stage {
	case models.StageDownloading, models.StageTranscribing,
		models.StageAnalyzingText, models.StageAnalyzingVisuals:
	default:
		return ErrInvalidStage
	}

	return m.update(id, func(t *models.Task) error {
		if stage.Rank() < t.Stage.Rank() {
			return ErrStageRegression
		}
		t.Status = models.StatusProcessing
		t.Stage = stage
		return nil
	})
}

// SetFailed ends the task, recording the failing stage and the reason.
func (m *Memory) SetFailed(id string, stage models.Stage, reason string) error {
	return m.update(id, func(t *models.Task) error {
		if stage.Rank() < t.Stage.Rank() {
			return ErrStageRegression
		}
		now := m.now()
		t.Status = models.StatusFailed
		t.Stage = stage
		t.Error = reason
		t.CompletedAt = &now
		return nil
	})
}

// SetCompleted ends the task with result. The result must carry full text.
func (m *Memory) SetCompleted(id string, result *models.AnalysisResult) error {
	if result == nil || strings.TrimSpace(result.FullText) == "" {
		return ErrIncompleteResult
	}
	return m.update(id, func(t *models.Task) error {
		now := m.now()
		t.Status = models.StatusCompleted
		t.Stage = models.StageDone
		t.Result = result
		t.CompletedAt = &now
		return nil
	})
}

// Expire removes finished tasks that completed more than ttl ago and
// returns how many were dropped. Running tasks are never removed.
func (m *Memory) Expire(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := m.now().Add(-ttl)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, e := range m.tasks {
		e.mu.RLock()
		expired := e.task.Status.Terminal() && e.task.CompletedAt != nil && e.task.CompletedAt.Before(cutoff)
		e.mu.RUnlock()
		if expired {
			delete(m.tasks, id)
			removed++
		}
	}
	if removed > 0 {
		slog.Info("expired finished tasks", "count", removed, "ttl", ttl)
	}
	return removed
}

// Len returns the number of tracked tasks.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tasks)
}

func (m *Memory) lookup(id string) *entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tasks[id]
}

// update applies fn under the task's write lock. fn sees a copy and its
// changes are committed only when it returns nil.
func (m *Memory) update(id string, fn func(*models.Task) error) error {
	e := m.lookup(id)
	if e == nil {
		return ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.task.Status.Terminal() {
		return ErrTerminal
	}
	next := e.task
	if err := fn(&next); err != nil {
		return err
	}
	next.UpdatedAt = m.now()
	e.task = next
	return nil
}
