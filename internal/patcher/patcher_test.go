package patcher

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var source = []string{
	"final class ConnectionManager {",
	"    var onClose: (() -> Void)?",
	"",
	"    func start() {",
	"        onClose = { self.stop() }",
	"    }",
	"",
	"    func stop() {}",
	"}",
}

func TestApply(t *testing.T) {
	tests := []struct {
		name string
		diff string
		want []string
	}{
		{
			name: "wrong line numbers and reindented context",
			diff: "--- a/ConnectionManager.swift\n+++ b/ConnectionManager.swift\n@@ -40,3 +40,3 @@\n  func start() {\n-    onClose = { self.stop() }\n+    onClose = { [weak self] in self?.stop() }\n  }",
			want: []string{
				"final class ConnectionManager {",
				"    var onClose: (() -> Void)?",
				"",
				"    func start() {",
				"    onClose = { [weak self] in self?.stop() }",
				"    }",
				"",
				"    func stop() {}",
				"}",
			},
		},
		{
			name: "two hunks",
			diff: "@@ -1,2 +1,3 @@\n final class ConnectionManager {\n+    deinit { stop() }\n     var onClose: (() -> Void)?\n@@ -8,2 +9,2 @@\n-    func stop() {}\n+    func stop() { onClose = nil }\n }",
			want: []string{
				"final class ConnectionManager {",
				"    deinit { stop() }",
				"    var onClose: (() -> Void)?",
				"",
				"    func start() {",
				"        onClose = { self.stop() }",
				"    }",
				"",
				"    func stop() { onClose = nil }",
				"}",
			},
		},
		{
			name: "context spans a blank line",
			diff: "@@ @@\n     }\n \n-    func stop() {}\n+    func stop() {\n+        onClose = nil\n+    }",
			want: []string{
				"final class ConnectionManager {",
				"    var onClose: (() -> Void)?",
				"",
				"    func start() {",
				"        onClose = { self.stop() }",
				"    }",
				"",
				"    func stop() {",
				"        onClose = nil",
				"    }",
				"}",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(source, tt.diff)
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Apply mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestApplyNewFile(t *testing.T) {
	diff := "--- /dev/null\n+++ b/New.swift\n@@ -0,0 +1,2 @@\n+struct New {}\n+"
	got, err := Apply(nil, diff)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"struct New {}", ""}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyErrors(t *testing.T) {
	tests := map[string]string{
		"no hunks":          "--- a/x\n+++ b/x\n",
		"missing context":   "@@\n-    func missing() {}\n+    func found() {}",
		"unanchored insert": "@@\n+let x = 1",
	}
	for name, diff := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Apply(source, diff); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestExtractPathFromDiff(t *testing.T) {
	tests := map[string]string{
		"--- a/Sources/A.swift\n+++ b/Sources/A.swift\n@@": "Sources/A.swift",
		"--- Sources/A.swift\n+++ Sources/A.swift\n@@":     "Sources/A.swift",
		"--- a/Old.swift\n+++ /dev/null\n@@":               "",
		"@@ -1 +1 @@\n-a\n+b":                              "",
	}
	for in, want := range tests {
		if got := ExtractPathFromDiff(in); got != want {
			t.Errorf("ExtractPathFromDiff(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCorrectDiff(t *testing.T) {
	diff := "--- a/C.swift\n+++ b/C.swift\n@@ -99,2 +99,2 @@\n-    func stop() {}\n+    func stop() { onClose = nil }\n }"
	got, err := CorrectDiff(source, diff, "C.swift")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "@@ -8,2 +8,2 @@\n") {
		t.Errorf("hunk header not corrected:\n%s", got)
	}
}
