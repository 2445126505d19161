package prompt

import (
	"os"
	"strings"
	"testing"

	"github.com/sokinpui/pfx.go/model"
)

type memSource map[string][]string

func (m memSource) ReadLines(rel string) ([]string, error) {
	lines, ok := m[rel]
	if !ok {
		return nil, os.ErrNotExist
	}
	return lines, nil
}

func TestRenderApply(t *testing.T) {
	d := &model.Dispatch{
		Command: model.Command{
			Prefix:    model.PrefixFix,
			Modifiers: model.NewModifierSet(model.ModKeep, model.ModLog),
			Scope:     model.Scope{Files: map[string]model.LineRange{"ConnectionManager.swift": {Start: 2, End: 3}}},
			Body:      "Memory leak",
		},
		Info: model.PrefixInfo{Prefix: model.PrefixFix, Writes: model.WritesCode, Summary: "Fix a bug in the scoped code"},
		Annotations: model.Annotations{
			Mode: model.ModeApply, WriteAccess: true, ConflictBlocks: true, ChangeLog: true,
			Instructions: []string{"Include a Reasoning section."},
		},
		Resolution: model.Resolution{Targets: []model.Target{{
			Path: "Sources/ConnectionManager.swift", Lines: 4,
			Regions: []model.LineRange{{Start: 2, End: 3}},
		}}},
		Step: -1,
	}
	src := memSource{"Sources/ConnectionManager.swift": {"class A {", "  var x = 1", "  var y = 2", "}"}}

	got := Render(d, src)
	for _, want := range []string{
		"# [fix:keep:log]<file:ConnectionManager.swift:2-3> Memory leak",
		"**Request (fix):** Memory leak",
		"- Apply changes.",
		"- Edits are kept as conflict blocks for review.",
		"- `Sources/ConnectionManager.swift` (lines 2-3)",
		"Do not touch code outside this scope.",
		"- Include a Reasoning section.",
		"`DELETE path`",
		"    2    var x = 1\n    3    var y = 2\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "class A {") {
		t.Error("excerpt should be limited to the resolved region")
	}
}

func TestRenderDryRunWithDeltaAndOption(t *testing.T) {
	d := &model.Dispatch{
		Command:     model.Command{Prefix: model.PrefixDoit, Body: "A"},
		Info:        model.PrefixInfo{Prefix: model.PrefixDoit, Writes: model.WritesCode},
		Annotations: model.Annotations{Mode: model.ModeDryRun},
		Resolution:  model.Resolution{Whole: true},
		Option:      &model.Option{Label: "A", Description: "Capture self weakly"},
		Delta:       []model.Delta{{Path: "A.swift", Kind: model.DeltaModified, Diff: "--- a/A.swift\n+++ b/A.swift\n"}},
		Step:        -1,
	}
	got := Render(d, nil)
	for _, want := range []string{
		"- Whole repository.",
		"- Analysis only. Do not modify files.",
		"Implement option A: Capture self weakly",
		"## Manual edits since the last dispatch",
		"```diff\n--- a/A.swift\n+++ b/A.swift\n```",
		"Label alternative approaches",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}
}

func TestRenderPass(t *testing.T) {
	focus := []model.Target{{Path: "A.swift", Lines: 400, Regions: []model.LineRange{{Start: 201, End: 400}}}}
	d := &model.Dispatch{
		Command:     model.Command{Prefix: model.PrefixImp, Body: "Split"},
		Annotations: model.Annotations{Mode: model.ModeApply, WriteAccess: true},
		Resolution:  model.Resolution{Targets: focus},
		Plan: model.Plan{Steps: []model.Step{
			{Title: "Skeleton pass", Kind: model.StepDispatch, Status: model.StepDone},
			{Title: "Fill pass 1", Kind: model.StepDispatch, Focus: focus},
		}},
		Step: 1,
	}
	got := Render(d, nil)
	if !strings.Contains(got, "## Pass 2 of 2\n\nFill pass 1") {
		t.Errorf("missing pass header:\n%s", got)
	}
	if !strings.Contains(got, "Fill in the stubs") {
		t.Errorf("fill pass should ask for stub bodies:\n%s", got)
	}
}
