package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/sokinpui/pfx.go/model"
)

var (
	HeaderColor  = color.New(color.FgBlue, color.Bold)
	InfoColor    = color.New(color.FgCyan)
	SuccessColor = color.New(color.FgGreen)
	WarningColor = color.New(color.FgYellow)
	ErrorColor   = color.New(color.FgRed)
	PathColor    = color.New(color.FgYellow)
	PromptColor  = color.New(color.FgMagenta)
)

// Stdout receives reports and prompts; Stderr receives status messages.
var (
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
)

func Header(format string, a ...interface{}) {
	HeaderColor.Fprintf(Stderr, format+"\n", a...)
}

func Info(format string, a ...interface{}) {
	InfoColor.Fprintf(Stderr, format+"\n", a...)
}

func Success(format string, a ...interface{}) {
	SuccessColor.Fprintf(Stderr, format+"\n", a...)
}

func Warning(format string, a ...interface{}) {
	WarningColor.Fprintf(Stderr, format+"\n", a...)
}

func Error(format string, a ...interface{}) {
	ErrorColor.Fprintf(Stderr, format+"\n", a...)
}

func Path(format string, a ...interface{}) {
	PathColor.Fprintf(Stderr, "  "+format+"\n", a...)
}

func Prompt(format string, a ...interface{}) string {
	return PromptColor.Sprintf(format, a...)
}

// --- Summaries ---

// PrintSummary prints the outcome of one pfx invocation. Reports go to
// Stdout so they can be piped; everything else goes to Stderr.
func PrintSummary(s model.Summary) {
	if s.Message != "" {
		Header("%s", s.Message)
	}

	res := s.Result
	switch res.Outcome {
	case model.OutcomeApplied:
		Success("Applied.")
	case model.OutcomeDryRunReport:
		if res.Report != "" {
			fmt.Fprintln(Stdout, strings.TrimRight(res.Report, "\n"))
		}
	case model.OutcomeRejected:
		Error("Rejected (%s): %s", res.Code, res.Reason)
	case model.OutcomeInterrupted:
		Warning("Interrupted: %s", res.Reason)
	}
	if s.HandedOff {
		Info("Prompt handed off. Feed the answer back with %s.", Prompt("pfx --complete"))
	}

	printList(SuccessColor, "Created %d file(s):", s.Created)
	printList(SuccessColor, "Modified %d file(s):", s.Modified)
	printList(ErrorColor, "Failed to process %d file(s):", s.Failed)

	if len(res.Delta) > 0 {
		Warning("Manual edits since the dispatch:")
		for _, d := range res.Delta {
			Path("%s (%s)", d.Path, d.Kind)
		}
	}
	if len(res.Options) > 0 {
		Info("Options:")
		for _, o := range res.Options {
			fmt.Fprintf(Stderr, "  %s) %s\n", o.Label, o.Description)
		}
		if len(res.Options) > 1 {
			Info("Choose one with %s.", Prompt("[doit] <letter>"))
		}
	}
	if res.ChangeLogID > 0 {
		Info("Change log entry #%d recorded.", res.ChangeLogID)
	}
	if res.Remaining > 0 && res.Outcome == model.OutcomeApplied {
		Info("%d pass(es) remaining in task %s. Run %s to continue.", res.Remaining, res.TaskSlug, Prompt("[again]"))
	}
}

func printList(c *color.Color, title string, items []string) {
	if len(items) == 0 {
		return
	}
	c.Fprintf(Stderr, title+"\n", len(items))
	for _, f := range items {
		fmt.Fprintf(Stderr, "  - %s\n", f)
	}
}

// --- Progress Bar ---

type ProgressBar struct {
	total   int
	prefix  string
	current int
}

func NewProgressBar(total int, prefix string) *ProgressBar {
	return &ProgressBar{total: total, prefix: prefix}
}

func (p *ProgressBar) Start() {
	p.draw()
}

// Set moves the bar to current.
func (p *ProgressBar) Set(current int) {
	p.current = current
	p.draw()
}

func (p *ProgressBar) Increment() {
	p.Set(p.current + 1)
}

func (p *ProgressBar) Finish() {
	if p.total > 0 {
		fmt.Fprintln(Stderr)
	}
}

func (p *ProgressBar) draw() {
	if p.total == 0 {
		return
	}
	const barLength = 40
	percent := float64(p.current) / float64(p.total)
	filledLength := int(percent * barLength)
	bar := strings.Repeat("█", filledLength) + strings.Repeat("-", barLength-filledLength)

	percentStr := fmt.Sprintf("%.1f%%", percent*100)
	countStr := fmt.Sprintf("[%d/%d]", p.current, p.total)

	fmt.Fprintf(Stderr, "\r%s |%s| %s %s", p.prefix, bar, countStr, percentStr)
}
