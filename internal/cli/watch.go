package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show a live table of every known task",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&flagServer, "server", "s", "http://localhost:8080", "videowhisper server base URL")
}

type taskSummary struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Stage    string `json:"stage"`
	Title    string `json:"title"`
}

// runWatch shows a Bubble Tea live task table on a TTY, or prints
// timestamped snapshots on a non-TTY.
func runWatch(cmd *cobra.Command, args []string) error {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return watchPlain()
	}
	p := tea.NewProgram(newWatchModel())
	_, err := p.Run()
	return err
}

func watchPlain() error {
	for {
		tasks, err := fetchTasks()
		if err != nil {
			return err
		}
		fmt.Printf("[%s] %d task(s)\n", time.Now().Format(time.TimeOnly), len(tasks))
		for _, t := range tasks {
			fmt.Printf("  %s  %-10s %3d%%  %s  %s\n", t.ID, t.Status, t.Progress, t.Stage, t.Title)
		}
		time.Sleep(3 * time.Second)
	}
}

func fetchTasks() ([]taskSummary, error) {
	data, err := apiGet("/api/tasks")
	if err != nil {
		return nil, err
	}
	var tasks []taskSummary
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}
	return tasks, nil
}

type tickMsg time.Time

type tasksMsg struct {
	tasks []taskSummary
	err   error
}

type watchModel struct {
	tasks []taskSummary
	err   error
}

func newWatchModel() watchModel {
	return watchModel{}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(pollTasksCmd(), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(3*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func pollTasksCmd() tea.Cmd {
	return func() tea.Msg {
		tasks, err := fetchTasks()
		return tasksMsg{tasks: tasks, err: err}
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case tickMsg:
		return m, pollTasksCmd()
	case tasksMsg:
		m.tasks = msg.tasks
		m.err = msg.err
		return m, tickCmd()
	}
	return m, nil
}

var (
	watchHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	watchFailedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555"))
	watchDoneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
)

func (m watchModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("error: %v\n\npress q to quit\n", m.err)
	}
	view := watchHeaderStyle.Render(fmt.Sprintf("%-26s %-11s %4s %-14s %s", "ID", "STATUS", "PCT", "STAGE", "TITLE")) + "\n"
	for _, t := range m.tasks {
		line := fmt.Sprintf("%-26s %-11s %3d%% %-14s %s", t.ID, t.Status, t.Progress, t.Stage, t.Title)
		switch t.Status {
		case "failed", "cancelled":
			line = watchFailedStyle.Render(line)
		case "completed":
			line = watchDoneStyle.Render(line)
		}
		view += line + "\n"
	}
	view += "\npress q to quit\n"
	return view
}
