package pfx

import (
	"context"
	"fmt"

	"github.com/sokinpui/pfx.go/cli"
	"github.com/sokinpui/pfx.go/internal/backend"
	"github.com/sokinpui/pfx.go/internal/interp"
	"github.com/sokinpui/pfx.go/model"
)

// Config for using pfx as a library.
type Config struct {
	// Root is the project directory. Defaults to the git top-level.
	Root string
	// Backend answers a rendered prompt. Required.
	Backend func(ctx context.Context, prompt string) (string, error)
	// Writer is "disk" or "nvim".
	Writer string
	// LineBudget overrides the configured per-pass line budget.
	LineBudget int
}

// Parse validates a request line without touching the session.
func Parse(line string) (model.Command, model.PrefixInfo, error) {
	return interp.Parse(line)
}

// Run interprets line against the project session, sends the prompt to
// config.Backend and applies its answer.
func Run(ctx context.Context, line string, config Config) (model.Summary, error) {
	if config.Backend == nil {
		return model.Summary{}, fmt.Errorf("pfx: Config.Backend is required")
	}
	cliCfg := &cli.Config{
		Writer:     config.Writer,
		LineBudget: config.LineBudget,
		Args:       []string{line},
	}

	var (
		app *App
		err error
	)
	if config.Root != "" {
		app, err = NewAt(config.Root, cliCfg)
	} else {
		app, err = New(cliCfg)
	}
	if err != nil {
		return model.Summary{}, fmt.Errorf("failed to initialize pfx app: %w", err)
	}
	defer app.Close()

	app.SetBackend(backend.Func(func(ctx context.Context, d *model.Dispatch) (string, error) {
		return config.Backend(ctx, d.Prompt)
	}))
	return app.Run(ctx, line)
}
