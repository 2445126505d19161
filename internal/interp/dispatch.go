package interp

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/sokinpui/pfx.go/internal/changelog"
	"github.com/sokinpui/pfx.go/internal/modifier"
	"github.com/sokinpui/pfx.go/internal/prompt"
	"github.com/sokinpui/pfx.go/internal/session"
	"github.com/sokinpui/pfx.go/model"
)

type dispatchOpts struct {
	parent     *model.Dispatch
	option     *model.Option
	analysis   string
	delta      []model.Delta
	resolution *model.Resolution
}

// dispatch resolves, annotates, plans and snapshots cmd, then persists it
// as the outstanding dispatch.
func (in *Interpreter) dispatch(ctx context.Context, cmd model.Command, info model.PrefixInfo, opts dispatchOpts) (*model.Dispatch, error) {
	ann, err := modifier.Annotate(info, cmd.Modifiers)
	if err != nil {
		return nil, err
	}

	var res model.Resolution
	if opts.resolution != nil {
		res = *opts.resolution
	} else if res, err = in.resolver.Resolve(cmd.Scope); err != nil {
		return nil, err
	}

	d := &model.Dispatch{
		ID:          in.newID(),
		Command:     cmd,
		Info:        info,
		Annotations: ann,
		Resolution:  res,
		Delta:       opts.delta,
		Option:      opts.option,
		Analysis:    opts.analysis,
		CreatedAt:   in.now().UTC(),
	}
	if opts.parent != nil {
		d.Parent = opts.parent.ID
	}
	if d.Plan, err = in.buildPlan(cmd, info, ann, res); err != nil {
		return nil, err
	}
	d.Step, _ = d.Plan.Next(model.StepDispatch)

	if err := in.capture(ctx, d); err != nil {
		return nil, err
	}
	if err := in.saveTask(d, model.TaskPending); err != nil {
		return nil, err
	}
	return d, in.begin(d)
}

// begin renders the prompt and persists d as Dispatched.
func (in *Interpreter) begin(d *model.Dispatch) error {
	d.Prompt = prompt.Render(d, in.tree)
	if err := in.machine.Begin(d); err != nil {
		return err
	}
	keep := []string{d.ID}
	if d.Parent != "" {
		keep = append(keep, d.Parent)
	}
	if err := in.machine.Store().Prune(keep...); err != nil {
		in.logger.Warn("could not prune snapshots", zap.Error(err))
	}
	in.logger.Info("dispatched",
		zap.String("dispatch", d.ID),
		zap.String("command", d.Command.String()),
		zap.String("mode", string(d.Annotations.Mode)),
		zap.Int("step", d.Step),
	)
	return nil
}

// capture snapshots every file the dispatch may touch, plus extra.
func (in *Interpreter) capture(ctx context.Context, d *model.Dispatch, extra ...string) error {
	paths := d.Resolution.Paths()
	if d.Resolution.Whole {
		all, err := in.tree.Files()
		if err != nil {
			return fmt.Errorf("listing source tree: %w", err)
		}
		paths = all
	}
	paths = append(paths, extra...)
	slices.Sort(paths)
	paths = slices.Compact(paths)
	snap, err := session.Capture(ctx, in.tree, in.machine.Store().SnapshotPath(d.ID), paths)
	if err != nil {
		return fmt.Errorf("capturing snapshot: %w", err)
	}
	d.Snapshot = snap
	return nil
}

// buildPlan splits a code-modifying dispatch larger than the line budget
// into a skeleton pass followed by fill passes of at most budget lines.
// A whole-repository dispatch is measured over every file in the tree.
func (in *Interpreter) buildPlan(cmd model.Command, info model.PrefixInfo, ann model.Annotations, res model.Resolution) (model.Plan, error) {
	title := describe(cmd)
	single := model.Plan{Steps: []model.Step{{Title: title, Kind: model.StepDispatch, Status: model.StepPending}}}
	if !ann.WriteAccess || !info.ModifiesCode() || in.budget <= 0 {
		return single, nil
	}

	targets := res.Targets
	if res.Whole {
		all, err := in.wholeTargets()
		if err != nil {
			return model.Plan{}, err
		}
		targets = all
	}
	estimate := 0
	for _, t := range targets {
		estimate += t.Size()
	}
	if estimate <= in.budget {
		return single, nil
	}

	plan := model.Plan{TaskSlug: changelog.Slugify(title)}
	plan.Steps = append(plan.Steps, model.Step{
		Title:  "Skeleton: " + title,
		Kind:   model.StepDispatch,
		Status: model.StepPending,
		Focus:  targets,
	})
	for _, focus := range chunk(targets, in.budget) {
		plan.Steps = append(plan.Steps, model.Step{
			Title:  "Fill " + describeFocus(focus),
			Kind:   model.StepDispatch,
			Status: model.StepPending,
			Focus:  focus,
		})
	}
	return plan, nil
}

// wholeTargets covers every non-empty file of the tree.
func (in *Interpreter) wholeTargets() ([]model.Target, error) {
	files, err := in.tree.Files()
	if err != nil {
		return nil, fmt.Errorf("listing source tree: %w", err)
	}
	var targets []model.Target
	for _, p := range files {
		n, err := in.tree.LineCount(p)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			continue
		}
		targets = append(targets, model.Target{Path: p, Lines: n, Regions: []model.LineRange{{Start: 1, End: n}}})
	}
	return targets, nil
}

// chunk groups target regions into passes of at most budget lines each.
func chunk(targets []model.Target, budget int) [][]model.Target {
	var passes [][]model.Target
	var cur []model.Target
	size := 0

	flush := func() {
		if len(cur) > 0 {
			passes = append(passes, cur)
		}
		cur, size = nil, 0
	}
	add := func(t model.Target, r model.LineRange) {
		if n := len(cur); n > 0 && cur[n-1].Path == t.Path {
			cur[n-1].Regions = append(cur[n-1].Regions, r)
		} else {
			cur = append(cur, model.Target{Path: t.Path, Lines: t.Lines, Regions: []model.LineRange{r}})
		}
		size += r.Len()
	}

	for _, t := range targets {
		for _, r := range t.Regions {
			for start := r.Start; start <= r.End; {
				room := budget - size
				end := min(r.End, start+room-1)
				add(t, model.LineRange{Start: start, End: end})
				start = end + 1
				if size >= budget {
					flush()
				}
			}
		}
	}
	flush()
	return passes
}

func describeFocus(focus []model.Target) string {
	parts := make([]string, len(focus))
	for i, t := range focus {
		ranges := make([]string, len(t.Regions))
		for j, r := range t.Regions {
			ranges[j] = r.String()
		}
		parts[i] = fmt.Sprintf("%s:%s", t.Path, strings.Join(ranges, ","))
	}
	return strings.Join(parts, " ")
}

func describe(cmd model.Command) string {
	if cmd.Body != "" {
		return cmd.Body
	}
	return cmd.String()
}

// saveTask writes the task file of a multi-pass plan, checking off every
// completed pass.
func (in *Interpreter) saveTask(d *model.Dispatch, status model.TaskStatus) error {
	if in.tasks == nil || d.Plan.TaskSlug == "" {
		return nil
	}
	t := &model.Task{
		Slug:    d.Plan.TaskSlug,
		Title:   describe(d.Command),
		Status:  status,
		Command: d.Command.String(),
	}
	if prev, err := in.tasks.Load(d.Plan.TaskSlug); err == nil {
		t.Created = prev.Created
	}
	for _, s := range d.Plan.Steps {
		if s.Kind == model.StepDispatch {
			t.Subtasks = append(t.Subtasks, model.Subtask{Title: s.Title, Done: s.Status == model.StepDone})
		}
	}
	if err := in.tasks.Save(t); err != nil {
		return fmt.Errorf("saving task %s: %w", t.Slug, err)
	}
	return nil
}
