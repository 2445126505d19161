package cli

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want Config
	}{
		{
			name: "request line",
			args: []string{"--writer", "nvim", "-v", "[fix]<file:A.swift>", "Memory", "leak"},
			want: Config{Writer: "nvim", Verbose: true, Args: []string{"[fix]<file:A.swift>", "Memory", "leak"}},
		},
		{
			name: "complete",
			args: []string{"-c", "--no-animation"},
			want: Config{Complete: true, NoAnimation: true, Args: []string{}},
		},
		{
			name: "overrides",
			args: []string{"--backend", "claude --print", "--line-budget", "120", "--config", "/tmp/pfx.toml", "[imp] x"},
			want: Config{Backend: "claude --print", LineBudget: 120, ConfigPath: "/tmp/pfx.toml", Args: []string{"[imp] x"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.args)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(&tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	tests := map[string][]string{
		"exclusive modes":   {"--complete", "--reset"},
		"mode with request": {"--status", "[fix] x"},
		"bad writer":        {"--writer", "emacs"},
		"negative budget":   {"--line-budget", "-1"},
		"unknown flag":      {"--undo"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(args); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
