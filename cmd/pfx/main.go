package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sokinpui/pfx.go/cli"
	"github.com/sokinpui/pfx.go/internal/tui"
	"github.com/sokinpui/pfx.go/internal/ui"
	"github.com/sokinpui/pfx.go/pfx"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := cli.ParseFlags()
	if err != nil {
		// pflag already prints the error message.
		return 1
	}

	app, err := pfx.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		return 1
	}
	defer app.Close()

	// Modes that print to stdout and should not run the TUI.
	if cfg.NoAnimation || cfg.Print || cfg.OutputDiffFix {
		return runPlain(app)
	}

	m := tui.New(app)
	p := tea.NewProgram(m)
	m.SetProgram(p)
	final, err := p.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		return 1
	}
	result := final.(tui.Model)
	if result.Err() != nil {
		return 1
	}
	return pfx.ExitCode(result.Summary())
}

func runPlain(app *pfx.App) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var bar *ui.ProgressBar
	app.SetProgressCallback(func(current, total int) {
		if bar == nil {
			bar = ui.NewProgressBar(total, "Applying")
			bar.Start()
		}
		bar.Set(current)
		if current == total {
			bar.Finish()
			bar = nil
		}
	})

	summary, err := app.Execute(ctx)
	if err != nil {
		ui.Error("Error: %v", err)
		var e *pfx.DetailedError
		if errors.As(err, &e) {
			fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", e.Stack)
		}
		return 1
	}
	ui.PrintSummary(summary)
	return pfx.ExitCode(summary)
}
