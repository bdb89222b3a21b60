package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/raphaelgruber/lecturelens/internal/models"
)

// FFmpegSampler extracts one frame per Interval and reports where each
// sampled frame sits in the video.
type FFmpegSampler struct {
	Bin      string
	Interval time.Duration

	run runFunc
}

// NewFFmpegSampler creates a sampler. The interval defaults to 30s.
func NewFFmpegSampler(bin string, interval time.Duration) *FFmpegSampler {
	if bin == "" {
		bin = "ffmpeg"
	}
	if interval < time.Second {
		interval = 30 * time.Second
	}
	return &FFmpegSampler{Bin: bin, Interval: interval, run: runCommand}
}

// Sample never fails: any error is logged and yields an empty list.
func (f *FFmpegSampler) Sample(ctx context.Context, videoPath string) []models.Visual {
	visuals, err := f.sample(ctx, videoPath)
	if err != nil {
		slog.Warn("frame sampling failed", "video", videoPath, "error", err)
		return []models.Visual{}
	}
	return visuals
}

func (f *FFmpegSampler) sample(ctx context.Context, videoPath string) ([]models.Visual, error) {
	if videoPath == "" {
		return nil, fmt.Errorf("no video file")
	}
	framesDir := filepath.Join(filepath.Dir(videoPath), "frames")
	if err := os.MkdirAll(framesDir, 0o755); err != nil {
		return nil, fmt.Errorf("create frames directory: %w", err)
	}

	seconds := int(f.Interval / time.Second)
	out, err := f.run(ctx, f.Bin,
		"-y",
		"-i", videoPath,
		"-vf", fmt.Sprintf("fps=1/%d", seconds),
		"-q:v", "2",
		filepath.Join(framesDir, "frame_%05d.jpg"),
	)
	if err != nil {
		return nil, fmt.Errorf("run ffmpeg: %w: %s", err, tail(out, 400))
	}

	frames, err := filepath.Glob(filepath.Join(framesDir, "frame_*.jpg"))
	if err != nil {
		return nil, fmt.Errorf("locate frames: %w", err)
	}
	sort.Strings(frames)

	visuals := make([]models.Visual, 0, len(frames))
	for i := range frames {
		ts := models.FormatTimestamp(i * seconds)
		visuals = append(visuals, models.Visual{
			Timestamp:   ts,
			Description: "Visual content at " + ts,
		})
	}
	return visuals, nil
}
