// Package prompt renders a dispatch record as the markdown prompt handed to
// the backend.
package prompt

import (
	"fmt"
	"strings"

	"github.com/sokinpui/pfx.go/model"
)

// Source reads file content for the excerpts included in a prompt.
type Source interface {
	ReadLines(rel string) ([]string, error)
}

// maxExcerptLines caps the file content embedded in one prompt.
const maxExcerptLines = 600

// Render builds the prompt for d. File excerpts are read from src when it
// is not nil.
func Render(d *model.Dispatch, src Source) string {
	var b strings.Builder
	cmd := d.Command

	fmt.Fprintf(&b, "# %s\n\n", cmd.String())
	fmt.Fprintf(&b, "**Request (%s):** %s\n\n", cmd.Prefix, requestText(d))
	if d.Info.Summary != "" {
		fmt.Fprintf(&b, "_%s._\n\n", d.Info.Summary)
	}

	writeMode(&b, d)
	writeScope(&b, d)
	writeStep(&b, d)
	writeOption(&b, d)
	if d.Analysis != "" {
		fmt.Fprintf(&b, "## Analysis to implement\n\n%s\n\n", strings.TrimSpace(d.Analysis))
	}
	writeDelta(&b, d.Delta)

	if len(d.Annotations.Instructions) > 0 {
		b.WriteString("## Instructions\n\n")
		for _, in := range d.Annotations.Instructions {
			fmt.Fprintf(&b, "- %s\n", in)
		}
		b.WriteString("\n")
	}

	writeFormat(&b, d)

	if src != nil {
		writeExcerpts(&b, d, src)
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func requestText(d *model.Dispatch) string {
	if d.Command.Body != "" {
		return d.Command.Body
	}
	return "(no description)"
}

func writeMode(b *strings.Builder, d *model.Dispatch) {
	b.WriteString("## Mode\n\n")
	a := d.Annotations
	switch {
	case a.Mode == model.ModeDryRun:
		b.WriteString("- Analysis only. Do not modify files.\n")
	case d.Info.Writes == model.WritesRepo:
		b.WriteString("- Repository operation. Source code must not change.\n")
	default:
		b.WriteString("- Apply changes. Write access to the scoped code is granted.\n")
	}
	if a.ConflictBlocks {
		b.WriteString("- Edits are kept as conflict blocks for review.\n")
	}
	if a.ChangeLog {
		b.WriteString("- A change-log entry is recorded for this change.\n")
	}
	b.WriteString("\n")
}

func writeScope(b *strings.Builder, d *model.Dispatch) {
	b.WriteString("## Scope\n\n")
	res := d.Resolution
	if res.Whole {
		b.WriteString("- Whole repository.\n\n")
		return
	}
	for _, dir := range res.Dirs {
		fmt.Fprintf(b, "- Directory `%s/`\n", dir)
	}
	for _, t := range res.Targets {
		fmt.Fprintf(b, "- `%s` %s\n", t.Path, describeRegions(t))
		for _, s := range t.Symbols {
			fmt.Fprintf(b, "  - %s `%s` (lines %s)\n", s.Kind, s.Name, s.Range)
		}
	}
	b.WriteString("\nDo not touch code outside this scope.\n\n")
}

func describeRegions(t model.Target) string {
	if len(t.Regions) == 1 && t.Regions[0].Start == 1 && t.Regions[0].End == t.Lines {
		return fmt.Sprintf("(whole file, %d lines)", t.Lines)
	}
	parts := make([]string, len(t.Regions))
	for i, r := range t.Regions {
		parts[i] = r.String()
	}
	return "(lines " + strings.Join(parts, ", ") + ")"
}

func writeStep(b *strings.Builder, d *model.Dispatch) {
	if d.Step < 0 || d.Step >= len(d.Plan.Steps) {
		return
	}
	total, index := 0, 0
	for i, s := range d.Plan.Steps {
		if s.Kind != model.StepDispatch {
			continue
		}
		total++
		if i == d.Step {
			index = total
		}
	}
	if total < 2 {
		return
	}
	step := d.Plan.Steps[d.Step]
	fmt.Fprintf(b, "## Pass %d of %d\n\n%s\n\n", index, total, step.Title)
	if index == 1 {
		b.WriteString("Write the structure only: types, signatures and stubs. Bodies are filled in by later passes.\n\n")
	} else {
		b.WriteString("Fill in the stubs for the focus below only. Keep everything else unchanged.\n\n")
	}
	for _, t := range step.Focus {
		fmt.Fprintf(b, "- `%s` %s\n", t.Path, describeRegions(t))
	}
	if len(step.Focus) > 0 {
		b.WriteString("\n")
	}
}

func writeOption(b *strings.Builder, d *model.Dispatch) {
	if d.Option == nil {
		return
	}
	fmt.Fprintf(b, "## Chosen approach\n\nImplement option %s: %s\n\n", d.Option.Label, d.Option.Description)
}

func writeDelta(b *strings.Builder, deltas []model.Delta) {
	if len(deltas) == 0 {
		return
	}
	b.WriteString("## Manual edits since the last dispatch\n\nRespect these edits; do not revert them.\n\n")
	for _, delta := range deltas {
		fmt.Fprintf(b, "- `%s` %s\n", delta.Path, delta.Kind)
	}
	b.WriteString("\n")
	for _, delta := range deltas {
		if delta.Diff == "" {
			continue
		}
		fmt.Fprintf(b, "```diff\n%s```\n\n", ensureNewline(delta.Diff))
	}
}

func writeFormat(b *strings.Builder, d *model.Dispatch) {
	b.WriteString("## Response format\n\n")
	if d.Annotations.Mode == model.ModeDryRun {
		b.WriteString("- Answer in markdown. Do not include file blocks.\n")
		b.WriteString("- Label alternative approaches `A)`, `B)`, ... on their own lines.\n\n")
		return
	}
	b.WriteString("- For each changed file, put its path in backticks on its own line, followed by a fenced block with the complete new content.\n")
	b.WriteString("- Alternatively use a ```diff block with `--- a/path` and `+++ b/path` headers.\n")
	b.WriteString("- Delete a file with a line `DELETE path`; rename with `RENAME old -> new`.\n")
	b.WriteString("- Start with a `# Title` line summarizing the change.\n\n")
}

func writeExcerpts(b *strings.Builder, d *model.Dispatch, src Source) {
	targets := d.Resolution.Targets
	if d.Step >= 0 && d.Step < len(d.Plan.Steps) && len(d.Plan.Steps[d.Step].Focus) > 0 {
		targets = d.Plan.Steps[d.Step].Focus
	}
	if len(targets) == 0 {
		return
	}

	budget := maxExcerptLines
	var excerpts []string
	for _, t := range targets {
		if budget <= 0 {
			break
		}
		lines, err := src.ReadLines(t.Path)
		if err != nil {
			continue
		}
		var body strings.Builder
		for _, r := range t.Regions {
			for n := r.Start; n <= r.End && n <= len(lines) && budget > 0; n++ {
				fmt.Fprintf(&body, "%5d  %s\n", n, lines[n-1])
				budget--
			}
		}
		excerpts = append(excerpts, fmt.Sprintf("`%s`\n```\n%s```\n", t.Path, body.String()))
	}
	if len(excerpts) == 0 {
		return
	}
	b.WriteString("## Current code\n\n")
	b.WriteString(strings.Join(excerpts, "\n"))
	b.WriteString("\n")
}

func ensureNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
