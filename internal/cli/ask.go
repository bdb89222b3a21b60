package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/raphaelgruber/lecturelens/internal/models"
	"github.com/spf13/cobra"
)

var (
	askHistoryFile string
	deeperTaskID   string
)

var askCmd = &cobra.Command{
	Use:   "ask <task-id> <question>",
	Short: "Ask a question about an analyzed video",
	Long: `Ask a question that is answered from the video's transcript.

The server keeps no chat state. Pass earlier turns with --history, a JSON
file holding [{"sender": "user"|"ai", "text": "..."}].

Examples:
  lecturelens ask abc123 "What is entropy?"
  lecturelens ask abc123 "Can you give an example?" --history chat.json`,
	Args: cobra.ExactArgs(2),
	RunE: runAsk,
}

var flashcardsCmd = &cobra.Command{
	Use:   "flashcards <task-id>",
	Short: "Generate study flashcards for an analyzed video",
	Args:  cobra.ExactArgs(1),
	RunE:  runFlashcards,
}

var deeperCmd = &cobra.Command{
	Use:   "deeper [text]",
	Short: "Explain a passage in depth",
	Long: `Run a deep analysis of a passage: key concepts, a simple explanation
and follow-up questions.

Examples:
  lecturelens deeper "The second law of thermodynamics"
  lecturelens deeper --task abc123   # analyze the whole transcript`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDeeper,
}

func init() {
	askCmd.Flags().StringVar(&askHistoryFile, "history", "", "JSON file with earlier chat turns")
	deeperCmd.Flags().StringVar(&deeperTaskID, "task", "", "analyze the transcript of this task")
}

func runAsk(cmd *cobra.Command, args []string) error {
	var history []models.ChatMessage
	if askHistoryFile != "" {
		var err error
		history, err = readHistory(askHistoryFile)
		if err != nil {
			return err
		}
	}

	answer, err := apiClient.Ask(context.Background(), args[0], args[1], history)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), answer)
	return nil
}

func readHistory(path string) ([]models.ChatMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	var history []models.ChatMessage
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("parse history %s: %w", path, err)
	}
	return history, nil
}

func runFlashcards(cmd *cobra.Command, args []string) error {
	cards, err := apiClient.Flashcards(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("flashcards: %w", err)
	}
	printFlashcards(cmd.OutOrStdout(), cards)
	return nil
}

func printFlashcards(out io.Writer, cards []models.Flashcard) {
	for i, c := range cards {
		fmt.Fprintf(out, "%d. %s\n   → %s\n", i+1, c.Front, c.Back)
	}
}

func runDeeper(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var text string
	switch {
	case deeperTaskID != "":
		task, err := apiClient.Status(ctx, deeperTaskID)
		if err != nil {
			return fmt.Errorf("get task: %w", err)
		}
		if !task.HasTranscript() {
			return fmt.Errorf("task %s has no transcript yet", deeperTaskID)
		}
		text = task.Result.FullText
	case len(args) == 1:
		text = args[0]
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("provide text or --task")
	}

	analysis, err := apiClient.DeeperAnalysis(ctx, text)
	if err != nil {
		return fmt.Errorf("deeper analysis: %w", err)
	}
	printAnalysis(cmd.OutOrStdout(), analysis)
	return nil
}

func printAnalysis(out io.Writer, a *models.DeepAnalysis) {
	fmt.Fprintln(out, "Key concepts:")
	for _, c := range a.KeyConcepts {
		fmt.Fprintf(out, "  • %s\n", c)
	}
	fmt.Fprintf(out, "\nIn simple terms:\n  %s\n", a.ELI5)
	if len(a.FollowUpQuestions) > 0 {
		fmt.Fprintln(out, "\nFollow-up questions:")
		for _, q := range a.FollowUpQuestions {
			fmt.Fprintf(out, "  ? %s\n", q)
		}
	}
}
