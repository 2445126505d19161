package pfx

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"

	"github.com/sokinpui/pfx.go/cli"
	"github.com/sokinpui/pfx.go/internal/backend"
	"github.com/sokinpui/pfx.go/internal/changelog"
	"github.com/sokinpui/pfx.go/internal/config"
	"github.com/sokinpui/pfx.go/internal/editor"
	"github.com/sokinpui/pfx.go/internal/fs"
	"github.com/sokinpui/pfx.go/internal/interp"
	"github.com/sokinpui/pfx.go/internal/logging"
	"github.com/sokinpui/pfx.go/internal/parser"
	"github.com/sokinpui/pfx.go/internal/patcher"
	"github.com/sokinpui/pfx.go/internal/session"
	"github.com/sokinpui/pfx.go/internal/source"
	"github.com/sokinpui/pfx.go/internal/symbols"
	"github.com/sokinpui/pfx.go/internal/task"
	"github.com/sokinpui/pfx.go/internal/ui"
	"github.com/sokinpui/pfx.go/model"
)

const (
	changeLogFile = "changelog.db"
	taskDir       = "tasks"
)

// ProgressUpdate is a callback function to report progress.
type ProgressUpdate func(current, total int)

// App orchestrates the entire application logic.
type App struct {
	cfg              *cli.Config
	root             string
	settings         config.Config
	logger           *zap.Logger
	store            *session.Store
	machine          *session.Machine
	tree             *fs.Tree
	locator          *symbols.Locator
	changeLog        *changelog.Store
	tasks            *task.Store
	backend          backend.Backend
	writer           editor.Writer
	interp           *interp.Interpreter
	sourceProvider   *source.SourceProvider
	progressCallback ProgressUpdate
}

// DetailedError enhances a standard error with a stack trace.
type DetailedError struct {
	Err   error
	Stack []byte
}

func (e *DetailedError) Error() string {
	return e.Err.Error()
}

func (e *DetailedError) Unwrap() error { return e.Err }

// New creates an App rooted at the git top-level or the working directory.
func New(cfg *cli.Config) (*App, error) {
	root, err := session.FindRoot()
	if err != nil {
		return nil, err
	}
	return NewAt(root, cfg)
}

// NewAt creates an App for the project at root.
func NewAt(root string, cfg *cli.Config) (*App, error) {
	if cfg == nil {
		cfg = &cli.Config{}
	}
	store, err := session.NewStore(root)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}

	configPath := cfg.ConfigPath
	if configPath == "" {
		configPath = config.Path(store.Dir)
	}
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Backend != "" {
		settings.Backend = cfg.Backend
	}
	if cfg.Writer != "" {
		settings.Writer = cfg.Writer
	}
	if cfg.LineBudget > 0 {
		settings.LineBudget = cfg.LineBudget
	}

	logger, err := logging.New(store.Dir, settings.LogLevel, cfg.Verbose)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:            cfg,
		root:           root,
		settings:       settings,
		logger:         logger,
		store:          store,
		sourceProvider: source.New(),
	}
	if err := a.init(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init() error {
	var err error
	if a.machine, err = session.NewMachine(a.store, a.logger); err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	a.locator = symbols.New()
	if a.tree, err = fs.NewTree(a.root, a.settings.Extensions, a.settings.Ignore, a.locator); err != nil {
		return err
	}
	if a.changeLog, err = changelog.Open(filepath.Join(a.store.Dir, changeLogFile)); err != nil {
		return err
	}
	if a.tasks, err = task.NewStore(filepath.Join(a.store.Dir, taskDir)); err != nil {
		return err
	}
	if a.backend, err = backend.New(a.settings.Backend, a.root, a.logger); err != nil {
		return err
	}
	return nil
}

// SetProgressCallback sets a function to be called for progress updates.
func (a *App) SetProgressCallback(cb ProgressUpdate) {
	a.progressCallback = cb
}

// SetBackend replaces the configured backend.
func (a *App) SetBackend(b backend.Backend) {
	a.backend = b
}

// interpreter opens the writer and builds the interpreter on first use, so
// read-only modes never start Neovim.
func (a *App) interpreter() (*interp.Interpreter, error) {
	if a.interp != nil {
		return a.interp, nil
	}
	switch a.settings.Writer {
	case "nvim":
		w, err := editor.NewNvim(a.root, a.store.TrashPath())
		if err != nil {
			return nil, err
		}
		a.writer = w
	default:
		a.writer = editor.NewDisk(a.root, a.store.TrashPath())
	}

	in, err := interp.New(interp.Config{
		Tree:       a.tree,
		Machine:    a.machine,
		Writer:     a.writer,
		ChangeLog:  a.changeLog,
		Tasks:      a.tasks,
		LineBudget: a.settings.LineBudget,
		Logger:     a.logger,
	})
	if err != nil {
		return nil, err
	}
	if a.progressCallback != nil {
		in.SetProgressCallback(interp.ProgressUpdate(a.progressCallback))
	}
	a.interp = in
	return in, nil
}

// Close releases the writer, the change-log database and the logger.
func (a *App) Close() error {
	var errs []error
	if a.writer != nil {
		errs = append(errs, a.writer.Close())
	}
	if a.changeLog != nil {
		errs = append(errs, a.changeLog.Close())
	}
	if a.locator != nil {
		a.locator.Close()
	}
	if a.logger != nil {
		a.logger.Sync()
	}
	return errors.Join(errs...)
}

// Execute executes the main application logic based on parsed flags.
func (a *App) Execute(ctx context.Context) (summary model.Summary, err error) {
	// Centralized panic recovery.
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("panic", zap.Any("value", r))
			err = &DetailedError{
				Err:   fmt.Errorf("internal panic: %v", r),
				Stack: debug.Stack(),
			}
		}
	}()

	switch {
	case a.cfg.Reset:
		return a.reset()
	case a.cfg.Status:
		return a.status(), nil
	case a.cfg.ChangeLog:
		return a.renderChangeLog(ctx)
	case a.cfg.Tasks:
		return a.renderTasks()
	case a.cfg.OutputDiffFix:
		return a.fixAndPrintDiffs()
	case a.cfg.Interrupt:
		return a.Interrupt()
	case a.cfg.Complete:
		content, err := a.sourceProvider.GetContent()
		if err != nil {
			return model.Summary{}, err
		}
		if strings.TrimSpace(content) == "" {
			return model.Summary{Message: "Source is empty. Nothing to process."}, nil
		}
		return a.Complete(ctx, content)
	default:
		line, err := a.sourceProvider.Request(a.cfg.Args)
		if err != nil {
			return model.Summary{}, err
		}
		if line == "" {
			return model.Summary{}, errors.New("no request line given; pass one as an argument, pipe it, or copy it to the clipboard")
		}
		if a.cfg.Print {
			return a.PrintPrompt(ctx, line)
		}
		return a.Run(ctx, line)
	}
}

// Run dispatches line to the backend and applies the answer.
func (a *App) Run(ctx context.Context, line string) (model.Summary, error) {
	in, err := a.interpreter()
	if err != nil {
		return model.Summary{}, err
	}
	res, d, err := in.Run(ctx, line, a.backend)
	if errors.Is(err, backend.ErrHandedOff) {
		return model.Summary{
			Result:    res,
			Dispatch:  d,
			HandedOff: true,
			Message:   fmt.Sprintf("Dispatched %s", d.Command.String()),
		}, nil
	}
	if err != nil {
		return model.Summary{}, err
	}
	return a.summarize(res), nil
}

// PrintPrompt prepares line and writes its prompt to stdout. The dispatch
// stays outstanding until Complete or Interrupt.
func (a *App) PrintPrompt(ctx context.Context, line string) (model.Summary, error) {
	in, err := a.interpreter()
	if err != nil {
		return model.Summary{}, err
	}
	d, local, err := in.Prepare(ctx, line)
	if res, ok := model.Rejected(err); ok {
		return model.Summary{Result: res}, nil
	}
	if err != nil {
		return model.Summary{}, err
	}
	if local != nil {
		return a.summarize(*local), nil
	}
	fmt.Fprint(ui.Stdout, d.Prompt)
	return model.Summary{Dispatch: d, HandedOff: true, Result: model.Result{DispatchID: d.ID}}, nil
}

// Complete applies response to the outstanding dispatch.
func (a *App) Complete(ctx context.Context, response string) (model.Summary, error) {
	in, err := a.interpreter()
	if err != nil {
		return model.Summary{}, err
	}
	res, err := in.Complete(ctx, response)
	if r, ok := model.Rejected(err); ok {
		return model.Summary{Result: r}, nil
	}
	if err != nil {
		return model.Summary{}, err
	}
	return a.summarize(res), nil
}

// Interrupt cancels the outstanding dispatch.
func (a *App) Interrupt() (model.Summary, error) {
	in, err := a.interpreter()
	if err != nil {
		return model.Summary{}, err
	}
	res, err := in.Interrupt("interrupted by user")
	if r, ok := model.Rejected(err); ok {
		return model.Summary{Result: r}, nil
	}
	if err != nil {
		return model.Summary{}, err
	}
	return a.summarize(res), nil
}

func (a *App) reset() (model.Summary, error) {
	if err := a.machine.Reset(); err != nil {
		return model.Summary{}, err
	}
	return model.Summary{Message: "Session cleared."}, nil
}

// summarize sorts the files of res by what happened to them.
func (a *App) summarize(res model.Result) model.Summary {
	st := a.machine.State()
	summary := model.Summary{Result: res, Dispatch: st.Dispatch, Failed: res.Failed}

	actions := make(map[string]model.FileChange)
	if st.Dispatch != nil && st.Dispatch.ID == res.DispatchID {
		for _, s := range st.Dispatch.Plan.Steps {
			if s.Kind != model.StepApply || s.Change == nil {
				continue
			}
			key := s.Change.Path
			if s.Change.Action == model.ActionRename {
				key = s.Change.NewPath
			}
			actions[key] = *s.Change
		}
	}
	for _, f := range res.Files {
		c := actions[f.Path]
		switch c.Action {
		case model.ActionCreate:
			summary.Created = append(summary.Created, f.Path)
		case model.ActionDelete:
			summary.Modified = append(summary.Modified, f.Path+" (deleted)")
		case model.ActionRename:
			summary.Modified = append(summary.Modified, c.Path+" -> "+f.Path)
		default:
			p := f.Path
			if !f.Range.IsWhole() {
				p += ":" + f.Range.String()
			}
			summary.Modified = append(summary.Modified, p)
		}
	}
	return summary
}

func (a *App) status() model.Summary {
	st := a.machine.State()
	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s", st.Phase)
	if st.Dispatch != nil {
		fmt.Fprintf(&b, "\nLast command: %s\nDispatch: %s (%s)", st.Dispatch.Command.String(), st.Dispatch.ID, st.Dispatch.CreatedAt.Local().Format("2006-01-02 15:04"))
		if n := st.Dispatch.Plan.Remaining(model.StepDispatch); n > 0 {
			fmt.Fprintf(&b, "\nRemaining passes: %d", n)
		}
	}
	if st.LastResult != nil && st.LastResult.Outcome != "" {
		fmt.Fprintf(&b, "\nLast outcome: %s", st.LastResult.Outcome)
		if st.LastResult.Reason != "" {
			fmt.Fprintf(&b, " (%s)", st.LastResult.Reason)
		}
	}
	summary := model.Summary{Message: b.String(), Dispatch: st.Dispatch}
	summary.Result.Options = st.PendingOptions
	return summary
}

func (a *App) renderChangeLog(ctx context.Context) (model.Summary, error) {
	entries, err := a.changeLog.List(ctx, changelog.Filter{})
	if err != nil {
		return model.Summary{}, err
	}
	if len(entries) == 0 {
		return model.Summary{Message: "The change log is empty."}, nil
	}
	return model.Summary{Result: model.Result{Outcome: model.OutcomeDryRunReport, Report: changelog.Render(entries)}}, nil
}

func (a *App) renderTasks() (model.Summary, error) {
	tasks, err := a.tasks.List()
	if err != nil {
		return model.Summary{}, err
	}
	if len(tasks) == 0 {
		return model.Summary{Message: "No tasks."}, nil
	}
	var b strings.Builder
	b.WriteString("# Tasks\n\n| Task | Status | Progress | Command |\n|---|---|---|---|\n")
	for _, t := range tasks {
		fmt.Fprintf(&b, "| %s | %s | %d%% | `%s` |\n", t.Slug, t.Status, t.Progress, t.Command)
	}
	return model.Summary{Result: model.Result{Outcome: model.OutcomeDryRunReport, Report: b.String()}}, nil
}

// fixAndPrintDiffs corrects diffs from the source and prints them to stdout.
func (a *App) fixAndPrintDiffs() (model.Summary, error) {
	content, err := a.sourceProvider.GetContent()
	if err != nil {
		return model.Summary{}, err
	}
	if content == "" {
		return model.Summary{}, nil
	}
	return model.Summary{}, a.printCorrectedDiffs(content)
}

func (a *App) printCorrectedDiffs(content string) error {
	resp, err := parser.Parse(content)
	if err != nil {
		return err
	}
	for _, diff := range resp.Diffs {
		var lines []string
		if a.tree.Exists(diff.Path) {
			if lines, err = a.tree.ReadLines(diff.Path); err != nil {
				continue
			}
		}
		corrected, err := patcher.CorrectDiff(lines, diff.Raw, diff.Path)
		if err != nil {
			// Silently skip failures for this mode.
			a.logger.Debug("could not correct diff", zap.String("path", diff.Path), zap.Error(err))
			continue
		}
		if corrected != "" {
			fmt.Fprint(ui.Stdout, corrected)
		}
	}
	return nil
}

// ExitCode maps a summary to the process exit status.
func ExitCode(s model.Summary) int {
	switch s.Result.Outcome {
	case model.OutcomeRejected:
		return 2
	case model.OutcomeInterrupted:
		return 3
	default:
		return 0
	}
}
