package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/raphaelgruber/lecturelens/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGet(t *testing.T) {
	m := NewMemory()

	created, err := m.Create(" https://youtu.be/abc ")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "https://youtu.be/abc", created.URL)
	assert.Equal(t, models.StatusQueued, created.Status)
	assert.Equal(t, models.StageNone, created.Stage)

	got, ok := m.Get(created.ID)
	require.True(t, ok)
	assert.Equal(t, created, got)

	again, ok := m.Get(created.ID)
	require.True(t, ok)
	assert.Equal(t, got, again, "reads without writes are identical")
}

func TestCreateRejectsEmptyURL(t *testing.T) {
	_, err := NewMemory().Create("  ")
	assert.ErrorIs(t, err, ErrEmptyURL)
}

func TestGetUnknown(t *testing.T) {
	_, ok := NewMemory().Get("missing")
	assert.False(t, ok)
}

func TestStageTransitions(t *testing.T) {
	m := NewMemory()
	task, err := m.Create("u")
	require.NoError(t, err)

	require.NoError(t, m.SetStage(task.ID, models.StageDownloading))
	got, _ := m.Get(task.ID)
	assert.Equal(t, models.StatusProcessing, got.Status)
	assert.Equal(t, models.StageDownloading, got.Stage)

	require.NoError(t, m.SetStage(task.ID, models.StageTranscribing))
	require.NoError(t, m.SetStage(task.ID, models.StageTranscribing), "repeating a stage is allowed")

	err = m.SetStage(task.ID, models.StageDownloading)
	assert.ErrorIs(t, err, ErrStageRegression)

	got, _ = m.Get(task.ID)
	assert.Equal(t, models.StageTranscribing, got.Stage, "rejected write leaves task unchanged")

	assert.ErrorIs(t, m.SetStage(task.ID, models.StageDone), ErrInvalidStage)
	assert.ErrorIs(t, m.SetStage(task.ID, models.StageDownload), ErrInvalidStage)
	assert.ErrorIs(t, m.SetStage("missing", models.StageDownloading), ErrNotFound)
}

func TestSetFailed(t *testing.T) {
	m := NewMemory()
	task, _ := m.Create("u")
	require.NoError(t, m.SetStage(task.ID, models.StageDownloading))

	require.NoError(t, m.SetFailed(task.ID, models.StageDownload, "no media"))

	got, _ := m.Get(task.ID)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, models.StageDownload, got.Stage)
	assert.Equal(t, "no media", got.Error)
	assert.Nil(t, got.Result)
	assert.NotNil(t, got.CompletedAt)

	assert.ErrorIs(t, m.SetStage(task.ID, models.StageTranscribing), ErrTerminal)
	assert.ErrorIs(t, m.SetCompleted(task.ID, &models.AnalysisResult{FullText: "x"}), ErrTerminal)
}

func TestSetFailedWhileQueued(t *testing.T) {
	m := NewMemory()
	task, _ := m.Create("u")

	require.NoError(t, m.SetFailed(task.ID, models.StageNone, "task pool is full"))
	got, _ := m.Get(task.ID)
	assert.Equal(t, models.StatusFailed, got.Status)
}

func TestSetCompleted(t *testing.T) {
	m := NewMemory()
	task, _ := m.Create("u")

	assert.ErrorIs(t, m.SetCompleted(task.ID, nil), ErrIncompleteResult)
	assert.ErrorIs(t, m.SetCompleted(task.ID, &models.AnalysisResult{Summary: "s"}), ErrIncompleteResult)

	result := &models.AnalysisResult{FullText: "hello"}
	require.NoError(t, m.SetCompleted(task.ID, result))

	got, _ := m.Get(task.ID)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, models.StageDone, got.Stage)
	require.NotNil(t, got.Result)
	assert.Equal(t, "hello", got.Result.FullText)
	assert.True(t, got.HasTranscript())
}

func TestListMostRecentFirst(t *testing.T) {
	m := NewMemory()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	m.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	first, _ := m.Create("a")
	second, _ := m.Create("b")

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestExpire(t *testing.T) {
	m := NewMemory()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	done, _ := m.Create("done")
	require.NoError(t, m.SetCompleted(done.ID, &models.AnalysisResult{FullText: "x"}))
	running, _ := m.Create("running")
	require.NoError(t, m.SetStage(running.ID, models.StageDownloading))

	assert.Equal(t, 0, m.Expire(0), "zero ttl disables expiry")

	now = now.Add(2 * time.Hour)
	assert.Equal(t, 1, m.Expire(time.Hour))

	_, ok := m.Get(done.ID)
	assert.False(t, ok)
	_, ok = m.Get(running.ID)
	assert.True(t, ok)
	assert.Equal(t, 1, m.Len())
}

func TestConcurrentReadersSeeWholeTransitions(t *testing.T) {
	m := NewMemory()
	const n = 20

	ids := make([]string, n)
	for i := range ids {
		task, err := m.Create(fmt.Sprintf("u%d", i))
		require.NoError(t, err)
		ids[i] = task.ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(2)
		go func(id string) {
			defer wg.Done()
			_ = m.SetStage(id, models.StageDownloading)
			_ = m.SetStage(id, models.StageTranscribing)
			_ = m.SetCompleted(id, &models.AnalysisResult{FullText: "text"})
		}(id)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				task, ok := m.Get(id)
				if !ok {
					t.Errorf("task %s vanished", id)
					return
				}
				if task.Status == models.StatusCompleted && task.Result == nil {
					t.Errorf("task %s completed without result", id)
					return
				}
			}
		}(id)
	}
	wg.Wait()

	for _, id := range ids {
		task, _ := m.Get(id)
		assert.Equal(t, models.StatusCompleted, task.Status)
	}
}
