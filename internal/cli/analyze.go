package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/raphaelgruber/lecturelens/internal/client"
	"github.com/raphaelgruber/lecturelens/internal/models"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var analyzeNoWait bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze <url>",
	Short: "Submit a video for analysis",
	Long: `Submit a video URL for analysis and follow its progress.

On a terminal a progress bar is shown; otherwise stage changes are printed
as plain lines. Use --no-wait to print the task id and return immediately.

Examples:
  lecturelens analyze https://www.youtube.com/watch?v=abc123
  lecturelens analyze https://youtu.be/abc123 --no-wait`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeNoWait, "no-wait", false, "return after submitting")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	id, err := apiClient.Analyze(ctx, args[0])
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}

	out := cmd.OutOrStdout()
	if analyzeNoWait {
		fmt.Fprintln(out, id)
		return nil
	}
	fmt.Fprintf(out, "Task %s submitted\n", id)

	if term.IsTerminal(int(os.Stdout.Fd())) {
		return RunTaskProgress(apiClient, id)
	}
	return pollTask(ctx, out, apiClient, id, pollInterval)
}

// pollTask prints each stage change until the task is terminal.
func pollTask(ctx context.Context, out io.Writer, c *client.Client, id string, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	var last models.Stage
	first := true
	for {
		task, err := c.Status(ctx, id)
		if err != nil {
			return fmt.Errorf("get status: %w", err)
		}
		if first || task.Stage != last {
			printProgress(out, task)
			last, first = task.Stage, false
		}
		switch task.Status {
		case models.StatusCompleted:
			fmt.Fprint(out, resultCounts(task.Result))
			return nil
		case models.StatusFailed:
			return taskError(task)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func printProgress(out io.Writer, t *models.Task) {
	stage := string(t.Stage)
	if stage == "" {
		stage = "-"
	}
	fmt.Fprintf(out, "[%s] %-18s %3.0f%%\n", t.Status, stage, t.Stage.Progress()*100)
}
