package cli

import (
	"fmt"
	"io"
	"sync"

	"sorcerer/internal/core/app"
	"sorcerer/internal/core/config"
	"sorcerer/internal/core/ports"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	stageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	failureStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F87171")).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B")).
			Italic(true)
)

func render(style lipgloss.Style, color bool, text string) string {
	if !color {
		return text
	}
	return style.Render(text)
}

func newListener(out io.Writer, ui config.UI, useSpinner bool) ports.ProgressListener {
	if useSpinner {
		return newSpinnerListener(out, ui.Color)
	}
	return &lineListener{out: out, color: ui.Color}
}

// lineListener prints one line per progress message.
type lineListener struct {
	mu    sync.Mutex
	out   io.Writer
	color bool
}

func (l *lineListener) Progress(stage, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "%s %s\n", render(stageStyle, l.color, "["+stage+"]"), message)
}

func (l *lineListener) Done(bool) {}

type progressMsg struct {
	stage   string
	message string
}

type doneMsg struct{}

// progressModel shows the latest message next to a spinner and prints
// each superseded message above it.
type progressModel struct {
	spinner spinner.Model
	color   bool
	stage   string
	message string
	done    bool
}

func newProgressModel(color bool) progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	if color {
		s.Style = stageStyle
	}
	return progressModel{spinner: s, color: color, message: "starting"}
}

func (m progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progressMsg:
		var cmd tea.Cmd
		if m.stage != "" {
			cmd = tea.Println(m.line())
		}
		m.stage, m.message = msg.stage, msg.message
		return m, cmd
	case doneMsg:
		m.done = true
		if m.stage == "" {
			return m, tea.Quit
		}
		return m, tea.Sequence(tea.Println(m.line()), tea.Quit)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m progressModel) View() string {
	if m.done {
		return ""
	}
	return m.spinner.View() + " " + render(statusStyle, m.color, m.message) + "\n"
}

func (m progressModel) line() string {
	return render(stageStyle, m.color, "["+m.stage+"]") + " " + m.message
}

// spinnerListener forwards progress into a bubbletea program. Done blocks
// until the program has restored the terminal.
type spinnerListener struct {
	program *tea.Program
	exited  chan struct{}
	once    sync.Once
}

func newSpinnerListener(out io.Writer, color bool) *spinnerListener {
	l := &spinnerListener{
		program: tea.NewProgram(newProgressModel(color), tea.WithOutput(out), tea.WithInput(nil)),
		exited:  make(chan struct{}),
	}
	go func() {
		defer close(l.exited)
		_, _ = l.program.Run()
	}()
	return l
}

func (l *spinnerListener) Progress(stage, message string) {
	l.program.Send(progressMsg{stage: stage, message: message})
}

func (l *spinnerListener) Done(bool) {
	l.once.Do(func() {
		l.program.Send(doneMsg{})
		<-l.exited
	})
}

func printOutcome(out io.Writer, color bool, o app.Outcome) {
	if o.Success {
		fmt.Fprintf(out, "%s %s (%d fix attempts)\n", render(successStyle, color, "PASS"), o.TestFile, o.FixAttempts)
		return
	}
	fmt.Fprintf(out, "%s stopped at %s after %d fix attempts\n", render(failureStyle, color, "FAIL"), o.Stage, o.FixAttempts)
	if o.Err != nil {
		fmt.Fprintf(out, "  %v\n", o.Err)
	}
	if o.LastRun != nil {
		fmt.Fprintf(out, "  last run: %d passed, %d failed, %d build errors\n",
			len(o.LastRun.PassedTests), len(o.LastRun.FailedTests), len(o.LastRun.BuildErrors))
	}
}
