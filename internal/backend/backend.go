package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"go.uber.org/zap"

	"github.com/sokinpui/pfx.go/model"
)

// ErrHandedOff means the prompt was passed on and the response will arrive
// later through a separate completion.
var ErrHandedOff = errors.New("dispatch handed off; complete it with `pfx --complete`")

// Backend executes a dispatch and returns the raw response.
type Backend interface {
	Execute(ctx context.Context, d *model.Dispatch) (string, error)
}

// Func adapts a function to Backend.
type Func func(ctx context.Context, d *model.Dispatch) (string, error)

func (f Func) Execute(ctx context.Context, d *model.Dispatch) (string, error) {
	return f(ctx, d)
}

// Exec pipes the prompt to an external command and reads the response from
// its stdout.
type Exec struct {
	name   string
	args   []string
	dir    string
	logger *zap.Logger
}

// NewExec creates an Exec backend from a command line such as
// "claude --print". The command runs in dir.
func NewExec(command, dir string, logger *zap.Logger) (*Exec, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("backend command is empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exec{name: fields[0], args: fields[1:], dir: dir, logger: logger}, nil
}

func (e *Exec) Execute(ctx context.Context, d *model.Dispatch) (string, error) {
	cmd := exec.CommandContext(ctx, e.name, e.args...)
	cmd.Dir = e.dir
	cmd.Stdin = strings.NewReader(d.Prompt)
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	e.logger.Debug("running backend", zap.String("command", e.name), zap.String("dispatch", d.ID))
	err := cmd.Run()
	e.logger.Debug("backend finished",
		zap.String("dispatch", d.ID),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("bytes", stdout.Len()),
		zap.Error(err))

	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if err != nil {
		if _, lookErr := exec.LookPath(e.name); lookErr != nil {
			return "", fmt.Errorf("%s CLI not found; install it or set --backend", e.name)
		}
		return "", fmt.Errorf("%s: %s: %w", e.name, strings.TrimSpace(stderr.String()), err)
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return "", fmt.Errorf("%s returned an empty response", e.name)
	}
	return out, nil
}

// Clipboard copies the prompt to the system clipboard for a human to paste
// into an assistant. It never returns a response.
type Clipboard struct {
	write func(string) error
}

// NewClipboard creates a clipboard hand-off backend.
func NewClipboard() *Clipboard {
	return &Clipboard{write: clipboard.WriteAll}
}

func (c *Clipboard) Execute(_ context.Context, d *model.Dispatch) (string, error) {
	if err := c.write(d.Prompt); err != nil {
		return "", fmt.Errorf("failed to copy prompt to clipboard: %w", err)
	}
	return "", ErrHandedOff
}

// New picks a backend by name: "clipboard" hands off, anything else is run
// as a command line.
func New(command, dir string, logger *zap.Logger) (Backend, error) {
	if command == "" || command == "clipboard" {
		return NewClipboard(), nil
	}
	return NewExec(command, dir, logger)
}
