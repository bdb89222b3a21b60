package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/lecturelens/internal/client"
	"github.com/raphaelgruber/lecturelens/internal/models"
)

const pollInterval = time.Second

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Hint       lipgloss.Color
	ProgressBg lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// tickMsg triggers polling the task status
type tickMsg time.Time

// taskUpdateMsg carries the updated task
type taskUpdateMsg struct {
	task *models.Task
	err  error
}

// progressModel is the bubbletea model for task progress.
type progressModel struct {
	client   *client.Client
	taskID   string
	task     *models.Task
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newProgressModel(c *client.Client, taskID string) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		client:   c,
		taskID:   taskID,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command (fetch immediately, then poll).
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		m.fetchTask(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.fetchTask()

	case taskUpdateMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to fetch task status: %w", msg.err)
			m.done = true
			return m, tea.Quit
		}

		m.task = msg.task

		switch m.task.Status {
		case models.StatusCompleted:
			m.done = true
			return m, tea.Quit
		case models.StatusFailed:
			m.done = true
			m.err = taskError(m.task)
			return m, tea.Quit
		}

		return m, tickCmd()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done {
		return m.finalView()
	}

	if m.task == nil {
		return "Loading task status...\n"
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.task.Status))
	progressBar := m.progress.ViewAs(m.task.Stage.Progress())
	stage := string(m.task.Stage)
	if stage == "" {
		stage = "waiting for a worker"
	}

	hint := m.theme.hintStyle().Render("Press Ctrl+C to continue in background")

	return fmt.Sprintf("%s %s %s\n%s\n", status, progressBar, stage, hint)
}

func (m progressModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nTask %s continues in background.\nUse 'lecturelens status %s' to check status.\n",
			m.taskID, m.taskID)
		return m.theme.hintStyle().Render(msg)
	}

	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Task failed: %s\n", m.err))
	}

	if m.task != nil && m.task.Result != nil {
		var b strings.Builder
		b.WriteString(m.theme.completedStyle().Render("✓ Completed") + "\n\n")
		b.WriteString(resultCounts(m.task.Result))
		if len(m.task.Result.Warnings) > 0 {
			b.WriteString(m.theme.errorStyle().Render(fmt.Sprintf("\nWarnings (%d):\n", len(m.task.Result.Warnings))))
			for _, w := range m.task.Result.Warnings {
				fmt.Fprintf(&b, "  • %s\n", w)
			}
		}
		fmt.Fprintf(&b, "\nUse 'lecturelens status %s' to see the full result.\n", m.taskID)
		return b.String()
	}

	return m.theme.completedStyle().Render("✓ Completed\n")
}

// fetchTask fetches the current task status from the server.
// Runs in a separate goroutine (command) to avoid blocking Update().
func (m progressModel) fetchTask() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		task, err := m.client.Status(ctx, m.taskID)
		return taskUpdateMsg{task: task, err: err}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// RunTaskProgress runs the interactive progress UI for a task.
// Returns nil on success or Ctrl+C (background), error on task failure.
func RunTaskProgress(c *client.Client, taskID string) error {
	p := tea.NewProgram(newProgressModel(c, taskID))

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(progressModel); ok {
		if m.quitting {
			return nil
		}
		if m.err != nil {
			return m.err
		}
	}

	return nil
}

func taskError(t *models.Task) error {
	switch {
	case t.Error == "":
		return fmt.Errorf("task failed at %s", t.Stage)
	case t.Stage == models.StageNone:
		return errors.New(t.Error)
	}
	return fmt.Errorf("%s: %s", t.Stage, t.Error)
}

func resultCounts(r *models.AnalysisResult) string {
	return fmt.Sprintf("  Segments:  %d\n  Chapters:  %d\n  Q&A:       %d\n  Visuals:   %d\n",
		len(r.Transcript), len(r.Chapters), len(r.QA), len(r.Visuals))
}
