package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	audioFile = "audio.mp3"
	videoFile = "video.mp4"
)

// YTDLP downloads audio and video with yt-dlp into WorkDir/<task id>.
type YTDLP struct {
	Bin       string
	FFmpegBin string
	WorkDir   string

	run runFunc
}

// NewYTDLP creates a fetcher writing below workDir.
func NewYTDLP(bin, ffmpegBin, workDir string) *YTDLP {
	if bin == "" {
		bin = "yt-dlp"
	}
	return &YTDLP{Bin: bin, FFmpegBin: ffmpegBin, WorkDir: workDir, run: runCommand}
}

// Fetch downloads the best audio as mp3 and an mp4 video for url.
// Both files must exist afterwards.
func (y *YTDLP) Fetch(ctx context.Context, taskID, url string) (Refs, error) {
	dir := y.taskDir(taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Refs{}, fmt.Errorf("create media directory: %w", err)
	}

	audioArgs := y.common(
		"-f", "bestaudio/best",
		"-x", "--audio-format", "mp3", "--audio-quality", "192K",
		"-o", filepath.Join(dir, "audio.%(ext)s"),
		url,
	)
	if out, err := y.run(ctx, y.Bin, audioArgs...); err != nil {
		return Refs{}, fmt.Errorf("download audio: %w: %s", err, tail(out, 400))
	}

	videoArgs := y.common(
		"-f", "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best",
		"--merge-output-format", "mp4",
		"-o", filepath.Join(dir, "video.%(ext)s"),
		url,
	)
	if out, err := y.run(ctx, y.Bin, videoArgs...); err != nil {
		return Refs{}, fmt.Errorf("download video: %w: %s", err, tail(out, 400))
	}

	refs := Refs{
		Audio: existing(filepath.Join(dir, audioFile)),
		Video: existing(filepath.Join(dir, videoFile)),
	}
	slog.Debug("media downloaded", "task_id", taskID, "audio", refs.Audio, "video", refs.Video)
	return refs, nil
}

// Purge removes every file downloaded for taskID.
func (y *YTDLP) Purge(taskID string) error {
	if taskID == "" {
		return nil
	}
	if err := os.RemoveAll(y.taskDir(taskID)); err != nil {
		return fmt.Errorf("purge media: %w", err)
	}
	return nil
}

func (y *YTDLP) taskDir(taskID string) string {
	return filepath.Join(y.WorkDir, filepath.Base(taskID))
}

func (y *YTDLP) common(args ...string) []string {
	base := []string{"--no-playlist", "--no-progress", "--force-overwrites"}
	if y.FFmpegBin != "" && y.FFmpegBin != "ffmpeg" {
		base = append(base, "--ffmpeg-location", y.FFmpegBin)
	}
	return append(base, args...)
}

// existing returns path if it names a non-empty file, otherwise "".
func existing(path string) string {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return ""
	}
	return path
}
