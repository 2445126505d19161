package interp

import (
	"context"
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
	"go.uber.org/zap"

	"github.com/sokinpui/pfx.go/internal/changelog"
	"github.com/sokinpui/pfx.go/internal/editor"
	"github.com/sokinpui/pfx.go/internal/fs"
	"github.com/sokinpui/pfx.go/internal/parser"
	"github.com/sokinpui/pfx.go/internal/session"
	"github.com/sokinpui/pfx.go/model"
)

// Complete consumes the backend response for the outstanding dispatch.
func (in *Interpreter) Complete(ctx context.Context, response string) (model.Result, error) {
	st := in.machine.State()
	if st.Phase != session.PhaseDispatched {
		return model.Result{}, model.Reject(model.CodeInvalidState, "no dispatch is outstanding")
	}
	d := *st.Dispatch
	d.Response = response

	resp, err := parser.Parse(response)
	if err != nil {
		return in.fail(&d, model.Result{}, fmt.Sprintf("could not parse response: %v", err))
	}
	res := model.Result{
		DispatchID: d.ID,
		Report:     resp.Report,
		Options:    resp.Options,
		TaskSlug:   d.Plan.TaskSlug,
	}

	if d.Annotations.Mode == model.ModeDryRun || (d.Info.Writes == model.WritesRepo && !resp.HasEdits()) {
		res.Outcome = model.OutcomeDryRunReport
		markStep(&d)
		res.Remaining = d.Plan.Remaining(model.StepDispatch)
		if err := in.machine.Complete(&d, res); err != nil {
			return model.Result{}, err
		}
		return res, nil
	}

	if !resp.HasEdits() {
		return in.fail(&d, res, "response contained no file changes")
	}

	plan := parser.CreatePlan(resp, in.tree)
	for _, f := range plan.Failed {
		res.Failed = append(res.Failed, f.String())
	}
	var steps []model.Step
	for _, c := range plan.Changes {
		c := c
		if err := in.confine(&c); err != nil {
			res.Failed = append(res.Failed, fmt.Sprintf("%s (%v)", c.Path, err))
			continue
		}
		if d.Info.Writes == model.WritesCode {
			if err := in.inScope(d.Resolution, c); err != nil {
				res.Failed = append(res.Failed, fmt.Sprintf("%s (%v)", c.Path, err))
				continue
			}
		}
		steps = append(steps, model.Step{
			Title:  fmt.Sprintf("%s %s", c.Action, c.Path),
			Kind:   model.StepApply,
			Status: model.StepPending,
			Change: &c,
		})
	}
	insertSteps(&d.Plan, d.Step, steps)

	return in.applyPending(ctx, &d, res, resp, nil)
}

// applyPending runs every apply step that is not done yet, then records the
// outcome. It is shared by Complete and [again] continue. Steps touching a
// path in held fail instead of overwriting it.
func (in *Interpreter) applyPending(ctx context.Context, d *model.Dispatch, res model.Result, resp *parser.Response, held map[string]bool) (model.Result, error) {
	var pending []int
	for i, s := range d.Plan.Steps {
		if s.Kind == model.StepApply && s.Status != model.StepDone {
			pending = append(pending, i)
		}
	}

	var progressCb func(int)
	if in.progress != nil {
		total := len(pending)
		in.progress(0, total)
		progressCb = func(current int) { in.progress(current, total) }
	}

	files := make(map[string]model.FileRecord)
	_, failed := editor.ProcessSequentially(pending, func(i int) (string, bool) {
		step := &d.Plan.Steps[i]
		if err := ctx.Err(); err != nil {
			step.Error = err.Error()
			return step.Change.Path + " (" + err.Error() + ")", false
		}
		if held[step.Change.Path] || held[step.Change.NewPath] {
			step.Status = model.StepFailed
			step.Error = "modified since dispatch; use [again] retry"
			return fmt.Sprintf("%s (%s)", step.Change.Path, step.Error), false
		}
		records, err := in.applyStep(d, step)
		if err != nil {
			step.Status = model.StepFailed
			step.Error = err.Error()
			in.logger.Warn("apply step failed", zap.String("path", step.Change.Path), zap.Error(err))
			return fmt.Sprintf("%s (%v)", step.Change.Path, err), false
		}
		step.Status = model.StepDone
		step.Error = ""
		for _, r := range records {
			files[r.Path] = r
		}
		return step.Change.Path, true
	}, progressCb)

	res.Failed = append(res.Failed, failed...)
	for _, s := range d.Plan.Steps {
		if s.Kind != model.StepApply || s.Status != model.StepDone {
			continue
		}
		p := s.Change.Path
		if s.Change.Action == model.ActionRename {
			p = s.Change.NewPath
		}
		if r, ok := files[p]; ok {
			res.Files = append(res.Files, r)
		}
	}

	if len(res.Failed) > 0 {
		return in.fail(d, res, fmt.Sprintf("%d change(s) could not be applied", len(res.Failed)))
	}

	markStep(d)
	if err := in.saveTask(d, model.TaskPending); err != nil {
		return model.Result{}, err
	}
	if d.Annotations.ChangeLog && len(res.Files) > 0 {
		id, err := in.appendChangeLog(ctx, d, res, resp)
		if err != nil {
			return in.fail(d, res, err.Error())
		}
		res.ChangeLogID = id
	}

	res.Outcome = model.OutcomeApplied
	res.Remaining = d.Plan.Remaining(model.StepDispatch)
	if err := in.machine.Complete(d, res); err != nil {
		return model.Result{}, err
	}
	in.logger.Info("applied",
		zap.String("dispatch", d.ID),
		zap.Int("files", len(res.Files)),
		zap.Int("remaining", res.Remaining),
	)
	return res, nil
}

// applyStep writes one change, rebases the snapshot onto the written
// content and returns the touched file ranges.
func (in *Interpreter) applyStep(d *model.Dispatch, step *model.Step) ([]model.FileRecord, error) {
	c := *step.Change
	var before []string
	if in.tree.Exists(c.Path) {
		lines, err := in.tree.ReadLines(c.Path)
		if err != nil {
			return nil, err
		}
		before = lines
	}

	if d.Annotations.ConflictBlocks {
		switch c.Action {
		case model.ActionCreate, model.ActionModify:
			c.Content, _ = editor.Conflict(before, c.Content)
			c.Action = model.ActionModify
		case model.ActionDelete:
			c.Content, _ = editor.Conflict(before, nil)
			c.Action = model.ActionModify
		}
	}

	if err := editor.Apply(in.writer, c); err != nil {
		return nil, err
	}

	switch c.Action {
	case model.ActionDelete:
		step.HashAfter = ""
		if err := session.Rebase(&d.Snapshot, c.Path, nil); err != nil {
			return nil, err
		}
		return []model.FileRecord{{Path: c.Path}}, nil
	case model.ActionRename:
		step.HashAfter = fs.HashLines(before)
		if err := session.Rebase(&d.Snapshot, c.Path, nil); err != nil {
			return nil, err
		}
		if err := session.Rebase(&d.Snapshot, c.NewPath, before); err != nil {
			return nil, err
		}
		return []model.FileRecord{{Path: c.NewPath}}, nil
	default:
		step.HashAfter = fs.HashLines(c.Content)
		if err := session.Rebase(&d.Snapshot, c.Path, c.Content); err != nil {
			return nil, err
		}
		return []model.FileRecord{{Path: c.Path, Range: editor.ChangedRange(before, c.Content)}}, nil
	}
}

// confine rewrites the paths of c relative to the tree root. Paths that
// leave the root or point into .git or the state directory are rejected.
func (in *Interpreter) confine(c *model.FileChange) error {
	for _, p := range []*string{&c.Path, &c.NewPath} {
		if *p == "" {
			continue
		}
		rel, err := in.tree.Rel(*p)
		if err != nil {
			return fmt.Errorf("outside the project root")
		}
		if rel == "." {
			return fmt.Errorf("not a file path")
		}
		for _, dir := range []string{".git", session.StateDirName} {
			if model.UnderDir(rel, dir) {
				return fmt.Errorf("inside %s", dir)
			}
		}
		*p = rel
	}
	return nil
}

// inScope rejects a change that touches a path or line outside res.
func (in *Interpreter) inScope(res model.Resolution, c model.FileChange) error {
	if res.Whole {
		return nil
	}
	if !res.CoversPath(c.Path) {
		return fmt.Errorf("outside the requested scope")
	}
	if c.Action != model.ActionModify {
		return nil
	}
	t, ok := res.Target(c.Path)
	if !ok || (len(t.Regions) == 1 && t.Regions[0].Start <= 1 && t.Regions[0].End >= t.Lines) {
		return nil
	}
	before, err := in.tree.ReadLines(c.Path)
	if err != nil {
		return err
	}
	for _, e := range touched(before, c.Content) {
		ok := res.Contains(c.Path, e.lines.Start) && res.Contains(c.Path, e.lines.End)
		if e.insert {
			ok = res.Contains(c.Path, e.lines.Start) || res.Contains(c.Path, e.lines.End)
		}
		if !ok {
			return fmt.Errorf("changes lines %s outside the requested scope", e.lines)
		}
	}
	return nil
}

type edit struct {
	lines  model.LineRange
	insert bool
}

// touched returns the lines of before that differ in after. A pure
// insertion spans the two lines it falls between.
func touched(before, after []string) []edit {
	var out []edit
	m := difflib.NewMatcher(before, after)
	for _, op := range m.GetOpCodes() {
		if op.Tag == 'e' {
			continue
		}
		if op.I1 == op.I2 {
			out = append(out, edit{
				lines:  model.LineRange{Start: max(op.I1, 1), End: min(op.I1+1, max(len(before), 1))},
				insert: true,
			})
			continue
		}
		out = append(out, edit{lines: model.LineRange{Start: op.I1 + 1, End: op.I2}})
	}
	return out
}

func (in *Interpreter) appendChangeLog(ctx context.Context, d *model.Dispatch, res model.Result, resp *parser.Response) (int64, error) {
	if in.changeLog == nil {
		return 0, nil
	}
	e := &model.ChangeLogEntry{
		Title:         describe(d.Command),
		Slug:          d.Plan.TaskSlug,
		Date:          in.now(),
		FilesModified: res.Files,
		DispatchID:    d.ID,
	}
	if resp != nil {
		if resp.Title != "" {
			e.Title = resp.Title
		}
		e.Reasoning = resp.Reasoning
		e.Changes = resp.Changes
		e.Notes = resp.Notes
	}
	if e.Slug == "" {
		e.Slug = changelog.Slugify(e.Title)
	}
	if err := in.changeLog.Append(ctx, e); err != nil {
		return 0, fmt.Errorf("appending change log: %w", err)
	}
	return e.ID, nil
}

// fail records res as Interrupted with reason.
func (in *Interpreter) fail(d *model.Dispatch, res model.Result, reason string) (model.Result, error) {
	res.Outcome = model.OutcomeInterrupted
	res.Reason = reason
	res.DispatchID = d.ID
	res.TaskSlug = d.Plan.TaskSlug
	res.Remaining = d.Plan.Remaining(model.StepDispatch)
	if err := in.interrupt(d, res); err != nil {
		return model.Result{}, err
	}
	return res, nil
}

func (in *Interpreter) interrupt(d *model.Dispatch, res model.Result) error {
	if err := in.machine.Interrupt(d, res); err != nil {
		return err
	}
	in.logger.Info("interrupted", zap.String("dispatch", d.ID), zap.String("reason", res.Reason))
	return in.saveTask(d, model.TaskPaused)
}

// markStep marks the dispatch step d executes as done.
func markStep(d *model.Dispatch) {
	if d.Step >= 0 && d.Step < len(d.Plan.Steps) {
		d.Plan.Steps[d.Step].Status = model.StepDone
	}
}

// insertSteps places steps right after index at.
func insertSteps(p *model.Plan, at int, steps []model.Step) {
	if len(steps) == 0 {
		return
	}
	at = min(max(at+1, 0), len(p.Steps))
	rest := append([]model.Step{}, p.Steps[at:]...)
	p.Steps = append(append(p.Steps[:at], steps...), rest...)
}
