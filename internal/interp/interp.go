// Package interp runs request lines through tokenizer, registry, scope
// resolver and modifier pipeline, and drives the session through each
// dispatch.
package interp

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sokinpui/pfx.go/internal/backend"
	"github.com/sokinpui/pfx.go/internal/editor"
	"github.com/sokinpui/pfx.go/internal/modifier"
	"github.com/sokinpui/pfx.go/internal/registry"
	"github.com/sokinpui/pfx.go/internal/scope"
	"github.com/sokinpui/pfx.go/internal/session"
	"github.com/sokinpui/pfx.go/internal/tokenizer"
	"github.com/sokinpui/pfx.go/model"
)

// Tree is the source tree as the interpreter sees it.
type Tree interface {
	scope.Tree
	session.Tree
	Exists(rel string) bool
	ReadLines(rel string) ([]string, error)
	Rel(p string) (string, error)
}

// ChangeLog receives one entry per completed :log change.
type ChangeLog interface {
	Append(ctx context.Context, e *model.ChangeLogEntry) error
}

// Tasks persists the task file of a multi-pass dispatch.
type Tasks interface {
	Save(t *model.Task) error
	Load(slug string) (*model.Task, error)
}

// Config holds the collaborators of an Interpreter. ChangeLog and Tasks
// may be nil, in which case :log entries and task files are skipped.
type Config struct {
	Tree       Tree
	Machine    *session.Machine
	Writer     editor.Writer
	ChangeLog  ChangeLog
	Tasks      Tasks
	LineBudget int
	Logger     *zap.Logger
}

type Interpreter struct {
	tree      Tree
	resolver  *scope.Resolver
	machine   *session.Machine
	writer    editor.Writer
	changeLog ChangeLog
	tasks     Tasks
	budget    int
	logger    *zap.Logger
	progress  ProgressUpdate
	newID     func() string
	now       func() time.Time
}

// ProgressUpdate reports apply progress.
type ProgressUpdate func(current, total int)

// New creates an Interpreter from cfg.
func New(cfg Config) (*Interpreter, error) {
	if cfg.Tree == nil || cfg.Machine == nil || cfg.Writer == nil {
		return nil, errors.New("interpreter needs a tree, a session machine and a writer")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interpreter{
		tree:      cfg.Tree,
		resolver:  scope.NewResolver(cfg.Tree),
		machine:   cfg.Machine,
		writer:    cfg.Writer,
		changeLog: cfg.ChangeLog,
		tasks:     cfg.Tasks,
		budget:    cfg.LineBudget,
		logger:    logger,
		newID:     uuid.NewString,
		now:       time.Now,
	}, nil
}

// SetProgressCallback sets a function called as apply steps run.
func (in *Interpreter) SetProgressCallback(cb ProgressUpdate) {
	in.progress = cb
}

// Session returns the current session state.
func (in *Interpreter) Session() session.State {
	return in.machine.State()
}

// Parse tokenizes and validates line without touching the session or the
// source tree.
func Parse(line string) (model.Command, model.PrefixInfo, error) {
	tok, err := tokenizer.Tokenize(line)
	if err != nil {
		return model.Command{}, model.PrefixInfo{}, err
	}
	readFamily(&tok)
	info, err := registry.Lookup(tok.Prefix)
	if err != nil {
		return model.Command{}, model.PrefixInfo{}, err
	}
	mods, err := modifier.Parse(tok.Modifiers)
	if err != nil {
		return model.Command{}, model.PrefixInfo{}, err
	}
	cmd := model.Command{Prefix: info.Prefix, Modifiers: mods, Body: tok.Body}
	if tok.HasScope {
		if info.Meta {
			return model.Command{}, model.PrefixInfo{}, model.Reject(model.CodeMalformedCommand, "[%s] does not take a scope", info.Prefix)
		}
		if cmd.Scope, err = scope.Parse(tok.Scope); err != nil {
			return model.Command{}, model.PrefixInfo{}, err
		}
	}
	if _, err := modifier.Annotate(info, mods); err != nil {
		return model.Command{}, model.PrefixInfo{}, err
	}
	return cmd, info, nil
}

// readFamily rewrites [read:fix:log] as [fix:log:read].
func readFamily(tok *tokenizer.Token) {
	if tok.Prefix != string(model.PrefixRead) || len(tok.Modifiers) == 0 {
		return
	}
	inner := tok.Modifiers[0]
	if _, isMod := model.ParseModifier(inner); isMod {
		return
	}
	if _, err := registry.Lookup(inner); err != nil {
		return
	}
	tok.Prefix = inner
	tok.Modifiers = append(slices.Clone(tok.Modifiers[1:]), model.ModRead.String())
}

// Parse is the method form of Parse.
func (in *Interpreter) Parse(line string) (model.Command, model.PrefixInfo, error) {
	return Parse(line)
}

// Prepare validates line and moves the session to Dispatched. Requests that
// are answered locally return a Result and no Dispatch.
func (in *Interpreter) Prepare(ctx context.Context, line string) (*model.Dispatch, *model.Result, error) {
	cmd, info, err := Parse(line)
	if err != nil {
		return nil, nil, err
	}
	if cmd.Prefix == model.PrefixListCmd {
		return nil, &model.Result{Outcome: model.OutcomeDryRunReport, Report: ListCommands()}, nil
	}
	if st := in.machine.State(); st.Phase == session.PhaseDispatched {
		return nil, nil, model.Reject(model.CodeSessionBusy, "dispatch %s is still outstanding; complete or interrupt it first", st.Dispatch.ID)
	}

	in.logger.Debug("preparing dispatch", zap.String("command", cmd.String()))
	switch cmd.Prefix {
	case model.PrefixAgain:
		return in.again(ctx, cmd)
	case model.PrefixDoit:
		d, err := in.doit(ctx, cmd)
		return d, nil, err
	case model.PrefixCheck:
		d, err := in.check(ctx, cmd)
		return d, nil, err
	default:
		d, err := in.dispatch(ctx, cmd, info, dispatchOpts{})
		return d, nil, err
	}
}

// Interrupt cancels the outstanding dispatch.
func (in *Interpreter) Interrupt(reason string) (model.Result, error) {
	st := in.machine.State()
	if st.Phase != session.PhaseDispatched {
		return model.Result{}, model.Reject(model.CodeInvalidState, "no dispatch is outstanding")
	}
	if reason == "" {
		reason = "interrupted by user"
	}
	d := *st.Dispatch
	res := model.Result{
		Outcome:    model.OutcomeInterrupted,
		Reason:     reason,
		DispatchID: d.ID,
		TaskSlug:   d.Plan.TaskSlug,
		Remaining:  d.Plan.Remaining(model.StepDispatch),
	}
	if err := in.interrupt(&d, res); err != nil {
		return model.Result{}, err
	}
	return res, nil
}

// Run prepares line, hands the dispatch to b and completes it with the
// response. Rejections come back as a Rejected result. A backend that hands
// the prompt off returns backend.ErrHandedOff with the session left in
// Dispatched.
func (in *Interpreter) Run(ctx context.Context, line string, b backend.Backend) (model.Result, *model.Dispatch, error) {
	d, local, err := in.Prepare(ctx, line)
	if err != nil {
		if res, ok := model.Rejected(err); ok {
			return res, nil, nil
		}
		return model.Result{}, nil, err
	}
	if local != nil {
		return *local, d, nil
	}

	response, err := b.Execute(ctx, d)
	if errors.Is(err, backend.ErrHandedOff) {
		return model.Result{DispatchID: d.ID}, d, err
	}
	if err != nil {
		in.logger.Warn("backend failed", zap.String("dispatch", d.ID), zap.Error(err))
		reason := err.Error()
		if ctx.Err() != nil {
			reason = "interrupted: " + ctx.Err().Error()
		}
		res, ierr := in.Interrupt(reason)
		if ierr != nil {
			return model.Result{}, d, ierr
		}
		return res, d, nil
	}

	res, err := in.Complete(ctx, response)
	return res, d, err
}

// Reset clears the session.
func (in *Interpreter) Reset() error {
	return in.machine.Reset()
}

// ListCommands renders the prefix registry for [list-cmd].
func ListCommands() string {
	var b strings.Builder
	b.WriteString("# Commands\n\n")
	b.WriteString("| Prefix | Writes | :read | Description |\n|---|---|---|---|\n")
	for _, info := range registry.All() {
		read := "no"
		if info.DryRunComposable || (info.IsReadOnly() && !info.Meta) {
			read = "yes"
		}
		fmt.Fprintf(&b, "| `[%s]` | %s | %s | %s |\n", info.Prefix, info.Writes, read, info.Summary)
	}
	b.WriteString("\nModifiers: `:keep` (conflict blocks), `:log` (change-log entry), `:read` (analysis only).\n")
	b.WriteString("Scope: `<dir:A,B file:X.swift:10-20 class:C func:f>`.\n")
	return b.String()
}
