package parser

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/sokinpui/pfx.go/internal/patcher"
	"github.com/sokinpui/pfx.go/model"
)

// DiffBlock is a raw diff block and the file it targets.
type DiffBlock struct {
	Path string
	Raw  string
}

// Rename moves a file.
type Rename struct {
	From string
	To   string
}

// Response is everything extracted from a backend response.
type Response struct {
	Title     string
	Files     []model.FileChange
	Diffs     []DiffBlock
	Deletes   []string
	Renames   []Rename
	Options   []model.Option
	Reasoning string
	Changes   []string
	Notes     string
	Report    string
	Warnings  []string
}

// HasEdits reports whether the response asks for any file change.
func (r *Response) HasEdits() bool {
	return len(r.Files)+len(r.Diffs)+len(r.Deletes)+len(r.Renames) > 0
}

var (
	pathInHintRegex = regexp.MustCompile("`([^`\n]+)`")

	// optionRegex matches "A) ...", "Option B: ...", "C. ..." once emphasis
	// markers have been removed.
	optionRegex = regexp.MustCompile(`^(?:[-*+]\s+)?(?i:option\s+)?([A-Z])\s*[).:]\s+(\S.*)$`)

	deleteRegex = regexp.MustCompile("^(?:[-*+]\\s+)?DELETE:?\\s+`?([^`\\s]+)`?\\s*$")
	renameRegex = regexp.MustCompile("^(?:[-*+]\\s+)?RENAME:?\\s+`?([^`\\s]+)`?\\s*(?:->|→)\\s*`?([^`\\s]+)`?\\s*$")

	emphasis = strings.NewReplacer("**", "", "__", "")
)

// Parse extracts file changes, directives, options and change-log sections
// from a markdown response.
func Parse(content string) (*Response, error) {
	doc := parseDocument([]byte(content))
	resp := &Response{
		Title:  doc.firstHeading(),
		Report: strings.TrimSpace(content),
	}

	blocks, err := doc.codeBlocks()
	if err != nil {
		return nil, fmt.Errorf("walking response markdown: %w", err)
	}
	for _, block := range blocks {
		if block.Lang == "diff" || block.Lang == "patch" {
			raw := strings.TrimSpace(block.Content)
			p := patcher.ExtractPathFromDiff(raw)
			if p == "" {
				p = extractPathFromHint(block.Hint)
			}
			if p == "" {
				resp.Warnings = append(resp.Warnings, "found a diff block without a file path; skipped")
				continue
			}
			resp.Diffs = append(resp.Diffs, DiffBlock{Path: cleanPath(p), Raw: raw})
			continue
		}

		p := extractPathFromHint(block.Hint)
		if p == "" {
			continue
		}
		resp.Files = append(resp.Files, model.FileChange{
			Path:    cleanPath(p),
			Content: blockLines(block.Content),
			Source:  "codeblock",
		})
	}

	lines, err := doc.proseLines()
	if err != nil {
		return nil, fmt.Errorf("walking response markdown: %w", err)
	}
	seen := make(map[string]bool)
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if m := deleteRegex.FindStringSubmatch(line); m != nil {
			resp.Deletes = append(resp.Deletes, cleanPath(m[1]))
			continue
		}
		if m := renameRegex.FindStringSubmatch(line); m != nil {
			resp.Renames = append(resp.Renames, Rename{From: cleanPath(m[1]), To: cleanPath(m[2])})
			continue
		}
		if m := optionRegex.FindStringSubmatch(emphasis.Replace(line)); m != nil && !seen[m[1]] {
			seen[m[1]] = true
			resp.Options = append(resp.Options, model.Option{Label: m[1], Description: strings.TrimSpace(m[2])})
		}
	}

	for _, sec := range doc.sections() {
		switch title := strings.ToLower(sec.Title); {
		case strings.HasPrefix(title, "reasoning"):
			resp.Reasoning = sec.Text
		case strings.HasPrefix(title, "changes"):
			resp.Changes = sec.Items
			if len(resp.Changes) == 0 && sec.Text != "" {
				resp.Changes = []string{sec.Text}
			}
		case strings.HasPrefix(title, "notes"):
			resp.Notes = sec.Text
		}
	}
	return resp, nil
}

// Tree is the part of the source tree the planner reads.
type Tree interface {
	Exists(rel string) bool
	ReadLines(rel string) ([]string, error)
}

// Failure is a change that could not be planned.
type Failure struct {
	Path   string
	Reason string
}

func (f Failure) String() string { return fmt.Sprintf("%s (%s)", f.Path, f.Reason) }

// ExecutionPlan contains the concrete file changes derived from a response.
type ExecutionPlan struct {
	Changes []model.FileChange
	Failed  []Failure
}

// CreatePlan turns a parsed response into file changes against tree. Diffs
// are applied to the current file content; a full-file block for the same
// path replaces the diff result.
func CreatePlan(resp *Response, tree Tree) *ExecutionPlan {
	plan := &ExecutionPlan{}
	changes := make(map[string]model.FileChange)

	for _, diff := range resp.Diffs {
		var source []string
		action := model.ActionCreate
		if tree.Exists(diff.Path) {
			lines, err := tree.ReadLines(diff.Path)
			if err != nil {
				plan.Failed = append(plan.Failed, Failure{diff.Path, err.Error()})
				continue
			}
			source, action = lines, model.ActionModify
		}
		patched, err := patcher.Apply(source, diff.Raw)
		if err != nil {
			plan.Failed = append(plan.Failed, Failure{diff.Path, "diff does not apply: " + err.Error()})
			continue
		}
		changes[diff.Path] = model.FileChange{Path: diff.Path, Action: action, Content: patched, Source: "diff"}
	}

	for _, block := range resp.Files {
		block.Action = model.ActionCreate
		if tree.Exists(block.Path) {
			block.Action = model.ActionModify
		}
		changes[block.Path] = block
	}

	for _, p := range resp.Deletes {
		if !tree.Exists(p) {
			plan.Failed = append(plan.Failed, Failure{p, "cannot delete a file that does not exist"})
			continue
		}
		changes[p] = model.FileChange{Path: p, Action: model.ActionDelete, Source: "directive"}
	}

	for _, r := range resp.Renames {
		switch {
		case !tree.Exists(r.From):
			plan.Failed = append(plan.Failed, Failure{r.From, "cannot rename a file that does not exist"})
			continue
		case tree.Exists(r.To):
			plan.Failed = append(plan.Failed, Failure{r.From, "rename target " + r.To + " already exists"})
			continue
		}
		changes[r.From] = model.FileChange{Path: r.From, Action: model.ActionRename, NewPath: r.To, Source: "directive"}
	}

	for _, c := range changes {
		plan.Changes = append(plan.Changes, c)
	}
	sort.Slice(plan.Changes, func(i, j int) bool { return plan.Changes[i].Path < plan.Changes[j].Path })
	return plan
}

func extractPathFromHint(hint string) string {
	hint = strings.TrimSpace(hint)

	// A path hint must be enclosed in backticks, e.g., `path/to/file.swift`
	if match := pathInHintRegex.FindStringSubmatch(hint); len(match) > 1 {
		p := strings.TrimSpace(match[1])
		// Disallow spaces to avoid capturing commands like `swift build` as a path.
		if !strings.Contains(p, " ") {
			return p
		}
	}
	return ""
}

func blockLines(content string) []string {
	content = strings.TrimRight(content, "\n")
	if content == "" {
		return []string{}
	}
	return strings.Split(content, "\n")
}

func cleanPath(p string) string {
	p = path.Clean(strings.TrimSpace(p))
	return strings.TrimPrefix(p, "./")
}
