package stage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/raphaelgruber/lecturelens/internal/metrics"
	"github.com/raphaelgruber/lecturelens/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSuccess(t *testing.T) {
	m := metrics.NewCollector()
	r := NewRunner(nil, m)

	out := Run(context.Background(), r, Call{Stage: models.StageDownloading, TaskID: "t1"},
		func(ctx context.Context) (string, error) { return "audio.mp3", nil })

	require.True(t, out.OK())
	assert.Equal(t, "audio.mp3", out.Value)

	op := m.Snapshot().Operations[metrics.StagePrefix+"downloading"]
	require.NotNil(t, op)
	assert.Equal(t, int64(1), op.Count)
}

func TestRunError(t *testing.T) {
	out := Run(context.Background(), nil, Call{Stage: models.StageTranscription},
		func(ctx context.Context) ([]models.Segment, error) {
			return []models.Segment{{Text: "partial"}}, errors.New("whisper exited 1")
		})

	require.False(t, out.OK())
	assert.Nil(t, out.Value, "no value alongside a failure")
	assert.Equal(t, models.StageTranscription, out.Failure.Stage)
	assert.Equal(t, "whisper exited 1", out.Failure.Message)
	assert.EqualError(t, out.Failure, "transcription: whisper exited 1")
}

func TestRunRecoversPanic(t *testing.T) {
	out := Run(context.Background(), nil, Call{Stage: models.StageAnalyzingVisuals},
		func(ctx context.Context) (int, error) { panic("bad frame") })

	require.False(t, out.OK())
	assert.Contains(t, out.Failure.Message, "bad frame")
}

func TestRunAbandonsHungCollaborator(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	out := Run(context.Background(), nil, Call{Stage: models.StageDownload, Timeout: 30 * time.Millisecond},
		func(ctx context.Context) (string, error) {
			<-release // ignores ctx
			return "late", nil
		})

	assert.Less(t, time.Since(start), time.Second)
	require.False(t, out.OK())
	assert.Equal(t, "timed out after 30ms", out.Failure.Message)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := Run(ctx, nil, Call{Stage: models.StageDownload}, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	require.False(t, out.OK())
	assert.Equal(t, "cancelled", out.Failure.Message)
}

func TestCallName(t *testing.T) {
	m := metrics.NewCollector()
	r := NewRunner(nil, m)
	Run(context.Background(), r, Call{Stage: models.StageAnalyzingText, Name: "summary"},
		func(ctx context.Context) (string, error) { return "", nil })

	assert.Contains(t, m.Snapshot().Operations, metrics.StagePrefix+"summary")
}
