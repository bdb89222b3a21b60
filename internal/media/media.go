// Package media wraps the external tools that download lecture media,
// transcribe speech and sample video frames.
package media

import (
	"context"
	"os/exec"
	"strings"

	"github.com/raphaelgruber/lecturelens/internal/models"
)

// Refs locates the downloaded files for one task.
type Refs struct {
	Audio string
	Video string
}

// Empty reports whether either file is missing.
func (r Refs) Empty() bool {
	return r.Audio == "" || r.Video == ""
}

// Transcript is the transcription of one audio file.
type Transcript struct {
	Segments []models.Segment
	FullText string
}

// Purger deletes a task's temporary media.
type Purger interface {
	Purge(taskID string) error
}

// runFunc executes a binary and returns its combined output.
type runFunc func(ctx context.Context, name string, args ...string) (string, error)

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var output strings.Builder
	cmd.Stdout = &output
	cmd.Stderr = &output
	err := cmd.Run()
	return output.String(), err
}

// tail keeps the last n bytes of tool output for error messages.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
