package tui

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/ocuroot/gitdrop/upload"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

const maxBarWidth = 40

func NewUploadModel(title string) *UploadModel {
	return &UploadModel{
		Title: title,
		Spinner: func() spinner.Model {
			s := spinner.New()
			s.Spinner = spinner.Dot
			s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
			return s
		}(),
		Bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(maxBarWidth)),
		logBuf: new(bytes.Buffer),
	}
}

type ProgressEvent struct {
	Progress upload.Progress
}

type DoneEvent struct {
	Result *upload.Result
	Err    error
}

type UploadModel struct {
	Title    string
	Progress upload.Progress

	Spinner spinner.Model
	Bar     progress.Model

	Done   bool
	Result *upload.Result
	Err    error

	logBuf  *bytes.Buffer
	logMode bool
}

func (m *UploadModel) Init() tea.Cmd {
	return m.Spinner.Tick
}

func (m *UploadModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "l":
			m.logMode = !m.logMode
			return m, nil
		case "ctrl+c":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.Bar.Width = max(10, min(msg.Width-4, maxBarWidth))
	case ProgressEvent:
		m.Progress = msg.Progress
	case DoneEvent:
		m.Result = msg.Result
		m.Err = msg.Err
		finalView := strings.TrimRight(m.view(true), "\n")

		m.Done = true
		return m, tea.Sequence(tea.Printf("%v", finalView), tea.Quit)
	case spinner.TickMsg:
		s, cmd := m.Spinner.Update(msg)
		m.Spinner = s
		return m, cmd
	}
	return m, nil
}

func (m *UploadModel) View() string {
	return m.view(false)
}

func (m *UploadModel) view(final bool) string {
	if m.Done {
		return ""
	}
	if m.logMode && !final {
		return m.logBuf.String()
	}

	if final {
		return Summary(m.Title, m.Result, m.Err)
	}

	p := m.Progress
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s\n", m.Spinner.View(), titleStyle.Render(m.Title))

	status := string(p.Phase)
	if status == "" {
		status = "starting"
	}
	if p.Total > 0 {
		status += fmt.Sprintf("  %d/%d files", p.Completed, p.Total)
	}
	if p.TotalBatches > 0 {
		status += fmt.Sprintf("  batch %d/%d", p.CurrentBatch, p.TotalBatches)
	}
	if p.Failed > 0 {
		status += failureStyle.Render(fmt.Sprintf("  %d failed", p.Failed))
	}
	fmt.Fprintf(&b, "  %s\n", detailStyle.Render(status))
	fmt.Fprintf(&b, "  %s\n", m.Bar.ViewAs(p.Percentage/100))
	return b.String()
}

// Summary renders the outcome of an upload.
func Summary(title string, result *upload.Result, err error) string {
	if err != nil {
		return failureStyle.Render("✗ "+title) + "\n  " + err.Error() + "\n"
	}
	if result == nil {
		return failureStyle.Render("✗ "+title) + "\n  cancelled\n"
	}

	var b strings.Builder
	b.WriteString(successStyle.Render("✓ " + title))
	b.WriteString("\n")
	commits := "1 commit"
	if len(result.Commits) != 1 {
		commits = fmt.Sprintf("%d commits", len(result.Commits))
	}
	fmt.Fprintf(&b, "  %s on %s, head %s\n", commits, result.Branch, shortSHA(string(result.CommitSHA)))
	if result.CommitURL != "" {
		fmt.Fprintf(&b, "  %s\n", detailStyle.Render(result.CommitURL))
	}
	return b.String()
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
