package parser

import (
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sokinpui/pfx.go/model"
)

const fixResponse = "# Fix retain cycle in ConnectionManager\n\n" +
	"## Reasoning\n\nThe close handler captures `self` strongly.\n\n" +
	"## Changes\n\n- Capture `self` weakly in `start()`\n- Remove the unused helper\n\n" +
	"`Sources/ConnectionManager.swift`\n" +
	"```swift\nfinal class ConnectionManager {\n    func start() {}\n}\n```\n\n" +
	"```diff\n--- a/Sources/Net.swift\n+++ b/Sources/Net.swift\n@@ -1,1 +1,1 @@\n-let timeout = 10\n+let timeout = 30\n```\n\n" +
	"DELETE `Sources/Helper.swift`\n\n" +
	"RENAME `Sources/Old.swift` -> `Sources/New.swift`\n\n" +
	"## Notes\n\nNo API changes.\n"

func TestParse(t *testing.T) {
	resp, err := Parse(fixResponse)
	if err != nil {
		t.Fatal(err)
	}

	if resp.Title != "Fix retain cycle in ConnectionManager" {
		t.Errorf("Title = %q", resp.Title)
	}
	if resp.Reasoning != "The close handler captures `self` strongly." {
		t.Errorf("Reasoning = %q", resp.Reasoning)
	}
	wantChanges := []string{"Capture `self` weakly in `start()`", "Remove the unused helper"}
	if diff := cmp.Diff(wantChanges, resp.Changes); diff != "" {
		t.Errorf("Changes mismatch (-want +got):\n%s", diff)
	}
	if resp.Notes != "No API changes." {
		t.Errorf("Notes = %q", resp.Notes)
	}

	wantFiles := []model.FileChange{{
		Path:    "Sources/ConnectionManager.swift",
		Content: []string{"final class ConnectionManager {", "    func start() {}", "}"},
		Source:  "codeblock",
	}}
	if diff := cmp.Diff(wantFiles, resp.Files); diff != "" {
		t.Errorf("Files mismatch (-want +got):\n%s", diff)
	}
	if len(resp.Diffs) != 1 || resp.Diffs[0].Path != "Sources/Net.swift" {
		t.Errorf("Diffs = %+v", resp.Diffs)
	}
	if diff := cmp.Diff([]string{"Sources/Helper.swift"}, resp.Deletes); diff != "" {
		t.Errorf("Deletes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Rename{{From: "Sources/Old.swift", To: "Sources/New.swift"}}, resp.Renames); diff != "" {
		t.Errorf("Renames mismatch (-want +got):\n%s", diff)
	}
	if len(resp.Options) != 0 {
		t.Errorf("unexpected options %+v", resp.Options)
	}
}

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []model.Option
	}{
		{
			name:    "parenthesis labels",
			content: "Two ways to fix this:\n\nA) Capture self weakly\nB) Break the cycle in stop()\n",
			want: []model.Option{
				{Label: "A", Description: "Capture self weakly"},
				{Label: "B", Description: "Break the cycle in stop()"},
			},
		},
		{
			name:    "option headings",
			content: "### Option A: Weak capture\n\nDetails.\n\n### Option B: Unowned capture\n\nMore details.\n",
			want: []model.Option{
				{Label: "A", Description: "Weak capture"},
				{Label: "B", Description: "Unowned capture"},
			},
		},
		{
			name:    "bold list labels",
			content: "- **A.** Use a delegate\n- **B.** Use Combine\n- **A.** duplicate ignored\n",
			want: []model.Option{
				{Label: "A", Description: "Use a delegate"},
				{Label: "B", Description: "Use Combine"},
			},
		},
		{
			name:    "labels inside code are ignored",
			content: "```\nA) not an option\n```\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := Parse(tt.content)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, resp.Options); diff != "" {
				t.Errorf("Options mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

type memTree map[string][]string

func (m memTree) Exists(rel string) bool {
	_, ok := m[rel]
	return ok
}

func (m memTree) ReadLines(rel string) ([]string, error) {
	lines, ok := m[rel]
	if !ok {
		return nil, os.ErrNotExist
	}
	return lines, nil
}

func TestCreatePlan(t *testing.T) {
	tree := memTree{
		"Sources/ConnectionManager.swift": {"final class ConnectionManager {}"},
		"Sources/Net.swift":               {"let timeout = 10"},
		"Sources/Helper.swift":            {"func help() {}"},
		"Sources/Old.swift":               {"struct Old {}"},
	}
	resp, err := Parse(fixResponse)
	if err != nil {
		t.Fatal(err)
	}
	plan := CreatePlan(resp, tree)
	if len(plan.Failed) != 0 {
		t.Fatalf("unexpected failures: %+v", plan.Failed)
	}

	want := []model.FileChange{
		{Path: "Sources/ConnectionManager.swift", Action: model.ActionModify, Content: []string{"final class ConnectionManager {", "    func start() {}", "}"}, Source: "codeblock"},
		{Path: "Sources/Helper.swift", Action: model.ActionDelete, Source: "directive"},
		{Path: "Sources/Net.swift", Action: model.ActionModify, Content: []string{"let timeout = 30"}, Source: "diff"},
		{Path: "Sources/Old.swift", Action: model.ActionRename, NewPath: "Sources/New.swift", Source: "directive"},
	}
	if diff := cmp.Diff(want, plan.Changes); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestCreatePlanFailures(t *testing.T) {
	resp := &Response{
		Diffs:   []DiffBlock{{Path: "A.swift", Raw: "@@\n-missing\n+found"}},
		Deletes: []string{"Gone.swift"},
		Renames: []Rename{{From: "A.swift", To: "B.swift"}},
	}
	tree := memTree{"A.swift": {"let a = 1"}, "B.swift": {"let b = 1"}}
	plan := CreatePlan(resp, tree)
	if len(plan.Changes) != 0 {
		t.Errorf("expected no changes, got %+v", plan.Changes)
	}
	if len(plan.Failed) != 3 {
		t.Errorf("expected 3 failures, got %+v", plan.Failed)
	}
}
