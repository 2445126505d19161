package changelog

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/sokinpui/pfx.go/model"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "changelog.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndList(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	day1 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)
	entries := []*model.ChangeLogEntry{
		{Title: "Fix retain cycle", Date: day1, FilesModified: []model.FileRecord{{Path: "A.swift", Range: model.LineRange{Start: 10, End: 20}}}, Changes: []string{"weak self"}},
		{Title: "Add retry", Slug: "network-retry", Date: day1},
		{Title: "Add retry backoff", Slug: "network-retry", Date: day2, Reasoning: "flaky networks", Notes: "none"},
	}
	for _, e := range entries {
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
		if e.ID == 0 {
			t.Error("Append should set the entry ID")
		}
	}
	if entries[0].Slug != "fix-retain-cycle" {
		t.Errorf("derived slug = %q", entries[0].Slug)
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all", Filter{}, []string{"Fix retain cycle", "Add retry", "Add retry backoff"}},
		{"by day", Filter{Day: day1}, []string{"Fix retain cycle", "Add retry"}},
		{"by slug", Filter{Slug: "network-retry"}, []string{"Add retry", "Add retry backoff"}},
		{"by day and slug", Filter{Day: day2, Slug: "network-retry"}, []string{"Add retry backoff"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.List(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			var titles []string
			for _, e := range got {
				titles = append(titles, e.Title)
			}
			if diff := cmp.Diff(tt.want, titles); diff != "" {
				t.Errorf("titles mismatch (-want +got):\n%s", diff)
			}
		})
	}

	got, _ := s.List(ctx, Filter{Slug: "fix-retain-cycle"})
	if diff := cmp.Diff(*entries[0], got[0], cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendOnly(t *testing.T) {
	s := openStore(t)
	e := &model.ChangeLogEntry{Title: "Fix"}
	if err := s.Append(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec(`UPDATE entries SET title = 'changed'`); err == nil {
		t.Error("update should be rejected")
	}
	if _, err := s.db.Exec(`DELETE FROM entries`); err == nil {
		t.Error("delete should be rejected")
	}
}

func TestRender(t *testing.T) {
	out := Render([]model.ChangeLogEntry{{
		Title:         "Fix retain cycle",
		Slug:          "fix-retain-cycle",
		Date:          time.Date(2025, 3, 1, 10, 0, 0, 0, time.Local),
		FilesModified: []model.FileRecord{{Path: "A.swift", Range: model.LineRange{Start: 10, End: 20}}, {Path: "B.swift"}},
		Reasoning:     "closure captured self",
		Changes:       []string{"weak self"},
	}})
	for _, want := range []string{
		"## Fix retain cycle",
		"**Date:** 2025-03-01 10:00",
		"- `A.swift` (lines 10-20)",
		"- `B.swift`\n",
		"### Reasoning\n\nclosure captured self",
		"### Changes\n\n- weak self",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "### Notes") {
		t.Error("empty notes should be omitted")
	}
}
