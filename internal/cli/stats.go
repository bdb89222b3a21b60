package cli

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/raphaelgruber/lecturelens/internal/client"
	"github.com/raphaelgruber/lecturelens/internal/metrics"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server statistics",
	Long: `Show task counters, worker pool load and per-operation timings
collected since the server started.`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	stats, err := apiClient.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("get server stats: %w", err)
	}
	printStats(cmd.OutOrStdout(), stats)
	return nil
}

// printStats displays server runtime statistics.
func printStats(out io.Writer, stats *client.Stats) {
	fmt.Fprintf(out, "Server Statistics (in-memory, since restart)\n")
	fmt.Fprintf(out, "═══════════════════════════════════════════════\n")
	fmt.Fprintf(out, "Uptime: %.1f seconds\n", stats.Metrics.UptimeSeconds)

	t := stats.Metrics.Tasks
	fmt.Fprintf(out, "\nTasks: %d submitted, %d completed, %d failed\n", t.Submitted, t.Completed, t.Failed)

	if p := stats.Pool; p != nil {
		fmt.Fprintf(out, "Pool: %d/%d queued, %d workers, %d active, %d processed\n",
			p.Queued, p.Capacity, p.Workers, p.Active, p.Processed)
	}

	names := make([]string, 0, len(stats.Metrics.Operations))
	for name := range stats.Metrics.Operations {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		fmt.Fprintf(out, "\n%s:\n", strings.ReplaceAll(name, "_", " "))
		op := stats.Metrics.Operations[name]
		printOpStats(out, op)
		printTokenStats(out, op)
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(out io.Writer, op *metrics.OperationSnapshot) {
	fmt.Fprintf(out, "  Calls: %d, Total: %dms\n", op.Count, op.TotalTimeMs)
	fmt.Fprintf(out, "  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}

// printTokenStats displays token statistics if available.
func printTokenStats(out io.Writer, op *metrics.OperationSnapshot) {
	if op.TotalInputTokens == nil || op.TotalOutputTokens == nil {
		return
	}
	fmt.Fprintf(out, "  Tokens In:  %d total", *op.TotalInputTokens)
	if op.AvgInputTokens != nil {
		fmt.Fprintf(out, ", avg %.0f", *op.AvgInputTokens)
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "  Tokens Out: %d total", *op.TotalOutputTokens)
	if op.AvgOutputTokens != nil {
		fmt.Fprintf(out, ", avg %.0f", *op.AvgOutputTokens)
	}
	fmt.Fprintln(out)
}
