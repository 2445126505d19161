package tokenizer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/sokinpui/pfx.go/model"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Token
	}{
		{
			name: "prefix only",
			line: "[review]",
			want: Token{Prefix: "review"},
		},
		{
			name: "scope and body",
			line: "[fix]<file:ConnectionManager.swift> Memory leak",
			want: Token{Prefix: "fix", Scope: "file:ConnectionManager.swift", HasScope: true, Body: "Memory leak"},
		},
		{
			name: "modifiers are lowercased",
			line: "  [Fix:KEEP:log] tidy up  ",
			want: Token{Prefix: "fix", Modifiers: []string{"keep", "log"}, Body: "tidy up"},
		},
		{
			name: "hyphenated prefix",
			line: "[file-mv]<file:A.swift> Sources/Net/A.swift",
			want: Token{Prefix: "file-mv", Scope: "file:A.swift", HasScope: true, Body: "Sources/Net/A.swift"},
		},
		{
			name: "scope must follow immediately",
			line: "[add] <T> generic helper",
			want: Token{Prefix: "add", Body: "<T> generic helper"},
		},
		{
			name: "brackets in body are free text",
			line: "[fix] index out of range in items[0]",
			want: Token{Prefix: "fix", Body: "index out of range in items[0]"},
		},
		{
			name: "empty scope clause",
			line: "[search]<> retain cycles",
			want: Token{Prefix: "search", HasScope: true, Body: "retain cycles"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Tokenize(tt.line)
			if err != nil {
				t.Fatalf("Tokenize(%q) returned error: %v", tt.line, err)
			}
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Tokenize(%q) mismatch (-want +got):\n%s", tt.line, diff)
			}
		})
	}
}

func TestTokenizeMalformed(t *testing.T) {
	lines := []string{
		"",
		"fix the bug",
		"[fix the bug",
		"[fix[keep]] body",
		"[]",
		"[fix::keep]",
		"[fix:]",
		"[fix]<file:A.swift body",
		"[fix]<file:<A.swift> body",
		"[two words]",
	}
	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			_, err := Tokenize(line)
			if err == nil {
				t.Fatalf("Tokenize(%q) succeeded, want MalformedCommand", line)
			}
			code, ok := model.CodeOf(err)
			if !ok || code != model.CodeMalformedCommand {
				t.Errorf("Tokenize(%q) error = %v, want code %s", line, err, model.CodeMalformedCommand)
			}
		})
	}
}
