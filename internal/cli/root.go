// Package cli provides the command-line interface for lecturelens.
package cli

import (
	"github.com/raphaelgruber/lecturelens/internal/client"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	serverURL string

	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "lecturelens",
	Short: "Analyze lecture videos from the command line",
	Long: `Lecturelens turns a lecture video into a transcript, summary, chapters,
Q&A and visual markers, then lets you chat with it, generate flashcards
and dig deeper into any passage.

All commands talk to a running lecturelens-server.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		apiClient = client.New(serverURL)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default $LECTURELENS_SERVER_URL or http://localhost:8000)")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(flashcardsCmd)
	rootCmd.AddCommand(deeperCmd)
	rootCmd.AddCommand(statsCmd)
}
