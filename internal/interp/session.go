package interp

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/sokinpui/pfx.go/internal/editor"
	"github.com/sokinpui/pfx.go/internal/parser"
	"github.com/sokinpui/pfx.go/internal/registry"
	"github.com/sokinpui/pfx.go/internal/session"
	"github.com/sokinpui/pfx.go/model"
)

type choice string

const (
	choiceNone     choice = ""
	choiceContinue choice = "continue"
	choiceRetry    choice = "retry"
)

func parseChoice(body string) (choice, error) {
	fields := strings.Fields(strings.ToLower(body))
	if len(fields) == 0 {
		return choiceNone, nil
	}
	switch fields[0] {
	case "continue", "c", "resume":
		return choiceContinue, nil
	case "retry", "r", "restart":
		return choiceRetry, nil
	}
	return choiceNone, model.Reject(model.CodeMalformedCommand, "[again] takes continue or retry, got %q", fields[0])
}

// again resumes or restarts the last dispatch. On an interrupted dispatch
// without a choice it only reports what changed since the dispatch.
func (in *Interpreter) again(ctx context.Context, cmd model.Command) (*model.Dispatch, *model.Result, error) {
	ch, err := parseChoice(cmd.Body)
	if err != nil {
		return nil, nil, err
	}
	st := in.machine.State()
	if st.Dispatch == nil || st.Phase == session.PhaseIdle {
		return nil, nil, model.Reject(model.CodeInvalidState, "there is no previous command to repeat")
	}
	last := st.Dispatch
	delta, err := session.Delta(in.tree, last.Snapshot)
	if err != nil {
		return nil, nil, fmt.Errorf("detecting manual edits: %w", err)
	}

	if ch == choiceNone {
		if st.Phase == session.PhaseInterrupted {
			res := &model.Result{
				Outcome:    model.OutcomeDryRunReport,
				DispatchID: last.ID,
				Delta:      delta,
				Report:     resumeReport(last, st.LastResult, delta),
				TaskSlug:   last.Plan.TaskSlug,
				Remaining:  last.Plan.Remaining(model.StepDispatch),
			}
			return nil, res, nil
		}
		ch = choiceRetry
		if last.Plan.Remaining(model.StepDispatch) > 0 {
			ch = choiceContinue
		}
	}

	if ch == choiceRetry {
		opts := dispatchOpts{
			parent:   last,
			option:   last.Option,
			analysis: last.Analysis,
			delta:    delta,
		}
		if last.Command.Scope.IsEmpty() && !last.Resolution.Whole {
			opts.resolution = &last.Resolution
		}
		d, err := in.dispatch(ctx, last.Command, last.Info, opts)
		return d, nil, err
	}
	return in.resume(ctx, last, delta)
}

// resume carries the plan of last into a new dispatch. Pending apply steps
// are applied locally from the stored response; otherwise the next pass is
// dispatched. Done steps are never run again.
func (in *Interpreter) resume(ctx context.Context, last *model.Dispatch, delta []model.Delta) (*model.Dispatch, *model.Result, error) {
	d := *last
	d.ID = in.newID()
	d.Parent = last.ID
	d.Delta = delta
	d.CreatedAt = in.now().UTC()
	d.Plan.Steps = slices.Clone(last.Plan.Steps)

	apply := -1
	for i, s := range d.Plan.Steps {
		if s.Kind == model.StepApply && s.Status != model.StepDone {
			apply = i
			break
		}
	}

	var extra []string
	for p := range last.Snapshot.Files {
		extra = append(extra, p)
	}
	if err := in.capture(ctx, &d, extra...); err != nil {
		return nil, nil, err
	}

	if apply >= 0 {
		for i := apply; i >= 0; i-- {
			if d.Plan.Steps[i].Kind == model.StepDispatch {
				d.Step = i
				break
			}
		}
		if err := in.begin(&d); err != nil {
			return nil, nil, err
		}
		resp, err := parser.Parse(d.Response)
		if err != nil {
			resp = nil
		}
		res := model.Result{DispatchID: d.ID, Delta: delta, TaskSlug: d.Plan.TaskSlug}
		if resp != nil {
			res.Report = resp.Report
		}
		held := make(map[string]bool, len(delta))
		for _, dl := range delta {
			held[dl.Path] = true
		}
		out, err := in.applyPending(ctx, &d, res, resp, held)
		if err != nil {
			return nil, nil, err
		}
		return nil, &out, nil
	}

	next, ok := d.Plan.Next(model.StepDispatch)
	if !ok {
		return nil, nil, model.Reject(model.CodeInvalidState, "nothing is left to continue; use [again] retry to start over")
	}
	d.Step = next
	d.Response = ""
	if err := in.saveTask(&d, model.TaskPending); err != nil {
		return nil, nil, err
	}
	return &d, nil, in.begin(&d)
}

func resumeReport(d *model.Dispatch, last *model.Result, delta []model.Delta) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Interrupted: %s\n\n", d.Command.String())
	if last != nil && last.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n\n", last.Reason)
	}
	if len(delta) == 0 {
		b.WriteString("No manual edits since the dispatch.\n\n")
	} else {
		b.WriteString("## Manual edits\n\n")
		for _, c := range delta {
			fmt.Fprintf(&b, "- `%s` %s\n", c.Path, c.Kind)
		}
		b.WriteString("\n")
	}
	var left []string
	for _, s := range d.Plan.Steps {
		if s.Status != model.StepDone {
			left = append(left, fmt.Sprintf("- %s (%s)", s.Title, s.Status))
		}
	}
	if len(left) > 0 {
		b.WriteString("## Remaining steps\n\n")
		b.WriteString(strings.Join(left, "\n"))
		b.WriteString("\n\n")
	}
	b.WriteString("Reply `[again] continue` to resume or `[again] retry` to start over.\n")
	return b.String()
}

// doit executes the analysis of a completed dry run.
func (in *Interpreter) doit(ctx context.Context, cmd model.Command) (*model.Dispatch, error) {
	st := in.machine.State()
	last := st.Dispatch
	if st.Phase != session.PhaseCompleted || last == nil || st.LastResult == nil ||
		st.LastResult.Outcome != model.OutcomeDryRunReport || last.Annotations.Mode != model.ModeDryRun || last.Info.Meta {
		return nil, model.Reject(model.CodeInvalidState, "[doit] needs a completed analysis such as [read] or [fix:read]")
	}

	option, err := choose(st.PendingOptions, cmd.Body)
	if err != nil {
		return nil, err
	}

	exec := last.Command
	exec.Modifiers = exec.Modifiers.Without(model.ModRead)
	info := last.Info
	if info.IsReadOnly() {
		// [doit] takes no scope; the analysis' resolution carries it.
		exec.Prefix = model.PrefixDoit
		exec.Scope = model.Scope{}
		if info, err = registry.Lookup(string(model.PrefixDoit)); err != nil {
			return nil, err
		}
	}
	if option == nil && len(st.PendingOptions) == 0 && cmd.Body != "" {
		exec.Body = strings.TrimSpace(exec.Body + " " + cmd.Body)
	}

	delta, err := session.Delta(in.tree, last.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("detecting manual edits: %w", err)
	}
	return in.dispatch(ctx, exec, info, dispatchOpts{
		parent:     last,
		option:     option,
		analysis:   st.LastResult.Report,
		delta:      delta,
		resolution: &last.Resolution,
	})
}

// choose picks the option named by selector, either its letter or a unique
// part of its description.
func choose(options []model.Option, selector string) (*model.Option, error) {
	sel := strings.TrimSpace(selector)
	sel = strings.TrimSpace(strings.TrimPrefix(strings.ToLower(sel), "option"))
	sel = strings.TrimRight(sel, ").:")

	if len(options) == 0 {
		return nil, nil
	}
	labels := make([]string, len(options))
	for i, o := range options {
		labels[i] = o.Label
	}
	if sel == "" {
		if len(options) == 1 {
			return &options[0], nil
		}
		return nil, model.Reject(model.CodeAmbiguousChoice, "the analysis proposed %d options (%s); choose one, e.g. [doit] %s",
			len(options), strings.Join(labels, ", "), options[0].Label)
	}

	if len(sel) == 1 {
		for i, o := range options {
			if strings.EqualFold(o.Label, sel) {
				return &options[i], nil
			}
		}
		return nil, model.Reject(model.CodeAmbiguousChoice, "no option %q; choose one of %s", strings.ToUpper(sel), strings.Join(labels, ", "))
	}

	var matches []int
	for i, o := range options {
		if strings.Contains(strings.ToLower(o.Description), sel) {
			matches = append(matches, i)
		}
	}
	if len(matches) != 1 {
		return nil, model.Reject(model.CodeAmbiguousChoice, "%q matches %d options; choose one of %s", selector, len(matches), strings.Join(labels, ", "))
	}
	return &options[matches[0]], nil
}

// check dispatches a review of the conflict blocks left by the last :keep
// change once they are resolved.
func (in *Interpreter) check(ctx context.Context, cmd model.Command) (*model.Dispatch, error) {
	st := in.machine.State()
	last := st.Dispatch
	if last == nil || !last.Command.Has(model.ModKeep) || st.Phase != session.PhaseCompleted ||
		st.LastResult == nil || st.LastResult.Outcome != model.OutcomeApplied {
		return nil, model.Reject(model.CodeInvalidState, "[check] is only valid after a completed :keep change")
	}

	sc := model.Scope{Files: make(map[string]model.LineRange)}
	var unresolved []string
	for _, f := range st.LastResult.Files {
		if !in.tree.Exists(f.Path) {
			continue
		}
		lines, err := in.tree.ReadLines(f.Path)
		if err != nil {
			return nil, err
		}
		for _, r := range editor.Unresolved(lines) {
			unresolved = append(unresolved, fmt.Sprintf("%s:%s", f.Path, r))
		}
		sc.Files[f.Path] = model.LineRange{}
	}
	if len(unresolved) > 0 {
		return nil, model.Reject(model.CodeInvalidState, "resolve the conflict blocks first: %s", strings.Join(unresolved, ", "))
	}
	if len(sc.Files) == 0 {
		return nil, model.Reject(model.CodeInvalidState, "the last :keep change left no files to review")
	}

	delta, err := session.Delta(in.tree, last.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("detecting resolutions: %w", err)
	}
	info, err := registry.Lookup(string(model.PrefixCheck))
	if err != nil {
		return nil, err
	}
	review := model.Command{Prefix: model.PrefixCheck, Scope: sc, Body: cmd.Body}
	if review.Body == "" {
		review.Body = "Review how the conflict blocks were resolved."
	}
	return in.dispatch(ctx, review, info, dispatchOpts{parent: last, delta: delta})
}
