package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/raphaelgruber/lecturelens/internal/models"
	"github.com/spf13/cobra"
)

var statusFollow bool

var statusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Show a task and its result",
	Long: `Show the state of a task. Completed tasks print the full analysis.

Examples:
  lecturelens status abc123
  lecturelens status abc123 --follow   # stream updates until finished`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List known tasks",
	Args:  cobra.NoArgs,
	RunE:  runTasks,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusFollow, "follow", "f", false, "stream updates until the task finishes")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	out := cmd.OutOrStdout()
	id := args[0]

	if statusFollow {
		var final models.Task
		err := apiClient.WatchTask(ctx, id, func(t models.Task) error {
			printProgress(out, &t)
			final = t
			return nil
		})
		if err != nil {
			return fmt.Errorf("watch task: %w", err)
		}
		fmt.Fprintln(out)
		printTask(out, &final)
		return nil
	}

	task, err := apiClient.Status(ctx, id)
	if err != nil {
		return fmt.Errorf("get status: %w", err)
	}
	printTask(out, task)
	return nil
}

func runTasks(cmd *cobra.Command, args []string) error {
	tasks, err := apiClient.Tasks(context.Background())
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	printTasks(cmd.OutOrStdout(), tasks)
	return nil
}

func printTasks(out io.Writer, tasks []models.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(out, "No tasks found")
		return
	}

	fmt.Fprintf(out, "%-36s %-11s %-18s %-9s %s\n", "ID", "STATUS", "STAGE", "CREATED", "URL")
	fmt.Fprintln(out, "----------------------------------------------------------------------------------------------------")
	for _, t := range tasks {
		fmt.Fprintf(out, "%-36s %-11s %-18s %-9s %s\n", t.ID, t.Status, t.Stage, t.CreatedAt.Format("15:04:05"), t.URL)
	}
}

func printTask(out io.Writer, t *models.Task) {
	fmt.Fprintf(out, "Task: %s\n", t.ID)
	if t.URL != "" {
		fmt.Fprintf(out, "  URL: %s\n", t.URL)
	}
	fmt.Fprintf(out, "  Status: %s\n", t.Status)
	if t.Stage != models.StageNone {
		fmt.Fprintf(out, "  Stage: %s\n", t.Stage)
	}
	if !t.CreatedAt.IsZero() {
		fmt.Fprintf(out, "  Created: %s\n", t.CreatedAt.Format(time.RFC3339))
	}
	if t.CompletedAt != nil {
		fmt.Fprintf(out, "  Finished: %s\n", t.CompletedAt.Format(time.RFC3339))
		fmt.Fprintf(out, "  Duration: %s\n", t.CompletedAt.Sub(t.CreatedAt).Round(time.Second))
	}
	if t.Status == models.StatusFailed {
		fmt.Fprintf(out, "  Error: %s\n", t.Error)
	}
	if t.Result != nil {
		printResult(out, t.Result)
	}
}

func printResult(out io.Writer, r *models.AnalysisResult) {
	fmt.Fprintln(out, "\nSummary:")
	if r.Summary == "" {
		fmt.Fprintln(out, "  (none)")
	} else {
		fmt.Fprintf(out, "  %s\n", r.Summary)
	}

	if len(r.Chapters) > 0 {
		fmt.Fprintln(out, "\nChapters:")
		for _, c := range r.Chapters {
			fmt.Fprintf(out, "  %-8s %s\n", c.Timestamp, c.Topic)
		}
	}

	if len(r.QA) > 0 {
		fmt.Fprintln(out, "\nQ&A:")
		for _, qa := range r.QA {
			fmt.Fprintf(out, "  Q: %s\n  A: %s\n", qa.Question, qa.Answer)
		}
	}

	if len(r.Visuals) > 0 {
		fmt.Fprintln(out, "\nVisuals:")
		for _, v := range r.Visuals {
			fmt.Fprintf(out, "  %-8s %s\n", v.Timestamp, v.Description)
		}
	}

	if len(r.Warnings) > 0 {
		fmt.Fprintf(out, "\nWarnings (%d):\n", len(r.Warnings))
		for _, w := range r.Warnings {
			fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	fmt.Fprintf(out, "\nTranscript: %d segments, %d characters\n", len(r.Transcript), len([]rune(r.FullText)))
}
