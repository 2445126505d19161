package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestTreeFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Sources/A.swift", "a\n")
	writeFile(t, root, "Sources/B.swift", "b\n")
	writeFile(t, root, "Sources/notes.md", "n\n")
	writeFile(t, root, "Pods/Lib/C.swift", "c\n")
	writeFile(t, root, ".pfx/session.json", "{}")

	tree, err := NewTree(root, []string{"swift"}, []string{"Pods"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	files, err := tree.Files()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Sources/A.swift", "Sources/B.swift"}, files); diff != "" {
		t.Errorf("Files mismatch (-want +got):\n%s", diff)
	}
	if !tree.IsDir("Sources") || tree.IsDir("Sources/A.swift") {
		t.Error("IsDir misreports")
	}
}

func TestLineCount(t *testing.T) {
	root := t.TempDir()
	tests := map[string]struct {
		content string
		want    int
	}{
		"empty.txt":        {"", 0},
		"one.txt":          {"one\n", 1},
		"unterminated.txt": {"one\ntwo", 2},
		"blank-lines.txt":  {"\n\n\n", 3},
	}
	for name, tt := range tests {
		writeFile(t, root, name, tt.content)
	}
	tree, _ := NewTree(root, nil, nil, nil)
	for name, tt := range tests {
		got, err := tree.LineCount(name)
		if err != nil {
			t.Fatalf("LineCount(%s): %v", name, err)
		}
		if got != tt.want {
			t.Errorf("LineCount(%s) = %d, want %d", name, got, tt.want)
		}
		lines, _ := tree.ReadLines(name)
		if len(lines) != tt.want {
			t.Errorf("ReadLines(%s) has %d lines, want %d", name, len(lines), tt.want)
		}
	}
}

func TestHashMatchesHashLines(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.swift", "let a = 1\nlet b = 2\n")
	tree, _ := NewTree(root, nil, nil, nil)

	got, err := tree.Hash("a.swift")
	if err != nil {
		t.Fatal(err)
	}
	if want := HashLines([]string{"let a = 1", "let b = 2"}); got != want {
		t.Errorf("Hash = %s, want %s", got, want)
	}
	if h, err := tree.Hash("missing.swift"); err != nil || h != "" {
		t.Errorf("Hash(missing) = %q, %v; want empty, nil", h, err)
	}
}

func TestRel(t *testing.T) {
	root := t.TempDir()
	tree, _ := NewTree(root, nil, nil, nil)
	rel, err := tree.Rel(filepath.Join(root, "Sources", "A.swift"))
	if err != nil || rel != "Sources/A.swift" {
		t.Errorf("Rel = %q, %v", rel, err)
	}
	if _, err := tree.Rel(filepath.Dir(root)); err == nil {
		t.Error("Rel outside the root should fail")
	}
}
