package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/sokinpui/pfx.go/model"
	"github.com/sokinpui/pfx.go/pfx"
)

// --- Styles ---
var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")) // Mauve
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))            // Green
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("197"))           // Red
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	pathStyle    = lipgloss.NewStyle()
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

// --- Messages ---
type summaryMsg struct {
	model.Summary
}

type errorMsg struct{ err error }

func (e errorMsg) Error() string { return e.err.Error() }

type progressMsg struct{ current, total int }

// --- Model ---
type Model struct {
	app     *pfx.App
	ctx     context.Context
	cancel  context.CancelFunc
	program *programRef
	spinner spinner.Model
	state   state
	current int
	total   int
	summary summaryMsg
	err     error
}

// programRef lets the progress callback reach the program after New has
// returned a Model by value.
type programRef struct{ p *tea.Program }

type state int

const (
	stateProcessing state = iota
	stateCancelling
	stateSummary
	stateError
)

func New(app *pfx.App) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	ctx, cancel := context.WithCancel(context.Background())
	m := Model{
		app:     app,
		ctx:     ctx,
		cancel:  cancel,
		program: &programRef{},
		spinner: s,
		state:   stateProcessing,
	}
	app.SetProgressCallback(func(current, total int) {
		if m.program.p != nil {
			m.program.p.Send(progressMsg{current, total})
		}
	})
	return m
}

// SetProgram connects progress updates to p.
func (m Model) SetProgram(p *tea.Program) {
	m.program.p = p
}

// Summary is the outcome once the program has exited.
func (m Model) Summary() model.Summary { return m.summary.Summary }

// Err is the error the run ended with, if any.
func (m Model) Err() error { return m.err }

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.runApp)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.state == stateProcessing {
				// The run turns the cancellation into an interruption.
				m.state = stateCancelling
				m.cancel()
				return m, nil
			}
			if m.state == stateCancelling {
				return m, nil
			}
			return m, tea.Quit
		}

	case progressMsg:
		m.current, m.total = msg.current, msg.total
		return m, nil

	case summaryMsg:
		m.state = stateSummary
		m.summary = msg
		m.cancel()
		return m, tea.Quit

	case errorMsg:
		m.state = stateError
		m.err = msg.err
		m.cancel()
		return m, tea.Quit

	default:
		var cmd tea.Cmd
		if m.state == stateProcessing || m.state == stateCancelling {
			m.spinner, cmd = m.spinner.Update(msg)
		}
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	switch m.state {
	case stateProcessing:
		if m.total > 0 {
			return fmt.Sprintf("%s Applying changes %d/%d...", m.spinner.View(), m.current, m.total)
		}
		return fmt.Sprintf("%s Processing...", m.spinner.View())
	case stateCancelling:
		return fmt.Sprintf("%s Interrupting...", m.spinner.View())
	case stateError:
		return errorStyle.Render("Error: ", m.err.Error()) + "\n"
	case stateSummary:
		return m.renderSummary()
	default:
		return ""
	}
}

func (m *Model) renderSummary() string {
	var b strings.Builder
	s := m.summary.Summary
	res := s.Result

	if s.Message != "" {
		b.WriteString(headerStyle.Render(s.Message))
		b.WriteString("\n\n")
	}

	hasContent := false
	switch res.Outcome {
	case model.OutcomeApplied:
		hasContent = true
		b.WriteString(successStyle.Render("Applied."))
		b.WriteString("\n")
	case model.OutcomeDryRunReport:
		hasContent = true
		b.WriteString(renderMarkdown(res.Report))
		b.WriteString("\n")
	case model.OutcomeRejected:
		hasContent = true
		b.WriteString(errorStyle.Render(fmt.Sprintf("Rejected (%s): %s", res.Code, res.Reason)))
		b.WriteString("\n")
	case model.OutcomeInterrupted:
		hasContent = true
		b.WriteString(warnStyle.Render("Interrupted: " + res.Reason))
		b.WriteString("\n")
	}
	if s.HandedOff && s.Dispatch != nil {
		hasContent = true
		b.WriteString(faintStyle.Render(fmt.Sprintf("Prompt for %s handed off. Run pfx -c with the response.", s.Dispatch.Command.String())))
		b.WriteString("\n")
	}

	writeList := func(style lipgloss.Style, title string, items []string) {
		if len(items) == 0 {
			return
		}
		hasContent = true
		b.WriteString(style.Render(title))
		b.WriteString("\n")
		for _, f := range items {
			b.WriteString(fmt.Sprintf("  %s\n", pathStyle.Render(f)))
		}
	}
	writeList(successStyle, "Created:", s.Created)
	writeList(successStyle, "Modified:", s.Modified)
	writeList(errorStyle, "Failed:", s.Failed)

	deltas := make([]string, 0, len(res.Delta))
	for _, d := range res.Delta {
		deltas = append(deltas, fmt.Sprintf("%s (%s)", d.Path, d.Kind))
	}
	writeList(warnStyle, "Edited since the last dispatch:", deltas)

	if len(res.Options) > 0 {
		hasContent = true
		b.WriteString(headerStyle.Render("Options:"))
		b.WriteString("\n")
		for _, o := range res.Options {
			b.WriteString(fmt.Sprintf("  %s) %s\n", o.Label, o.Description))
		}
		b.WriteString(faintStyle.Render("Pick one with [doit] <letter>."))
		b.WriteString("\n")
	}
	if res.ChangeLogID > 0 {
		b.WriteString(faintStyle.Render(fmt.Sprintf("Change log entry #%d recorded.", res.ChangeLogID)))
		b.WriteString("\n")
	}
	if res.Remaining > 0 {
		b.WriteString(faintStyle.Render(fmt.Sprintf("%d pass(es) remaining in task %s. Run [again] to continue.", res.Remaining, res.TaskSlug)))
		b.WriteString("\n")
	}

	if !hasContent && s.Message == "" {
		b.WriteString(faintStyle.Render("Nothing to do."))
		b.WriteString("\n")
	}

	return b.String()
}

func renderMarkdown(text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))
	if err != nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

func (m Model) runApp() tea.Msg {
	summary, err := m.app.Execute(m.ctx)
	if err != nil {
		// Check for detailed error to print stack
		var e *pfx.DetailedError
		if errors.As(err, &e) {
			// The TUI will exit, so we can print to stderr here for the stack trace.
			fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", e.Stack)
		}
		return errorMsg{err}
	}
	return summaryMsg{
		Summary: summary,
	}
}
