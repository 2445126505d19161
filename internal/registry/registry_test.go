package registry

import (
	"errors"
	"testing"

	"github.com/sokinpui/pfx.go/model"
)

func TestLookupKnown(t *testing.T) {
	for _, name := range []string{
		"fix", "imp", "add", "rm", "review", "search", "read", "think", "doit", "check",
		"again", "git", "lite", "add-note", "file-add", "file-rm", "file-rn", "file-mv", "list-cmd",
	} {
		info, err := Lookup(name)
		if err != nil {
			t.Errorf("Lookup(%q) failed: %v", name, err)
			continue
		}
		if string(info.Prefix) != name {
			t.Errorf("Lookup(%q) returned %q", name, info.Prefix)
		}
	}
	if got := len(All()); got != 19 {
		t.Errorf("All() has %d entries, want 19", got)
	}
}

func TestLookupUnknown(t *testing.T) {
	_, err := Lookup("bogus")
	var re *model.RejectError
	if !errors.As(err, &re) {
		t.Fatalf("Lookup(bogus) error = %v, want RejectError", err)
	}
	if re.Code != model.CodeUnknownPrefix {
		t.Errorf("code = %s, want %s", re.Code, model.CodeUnknownPrefix)
	}

	_, err = Lookup("fxi")
	if !errors.As(err, &re) || re.Suggestion != "fix" {
		t.Errorf("Lookup(fxi) suggestion = %q, want fix", re.Suggestion)
	}
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		prefix       model.Prefix
		modifiesCode bool
		readOnly     bool
	}{
		{model.PrefixFix, true, false},
		{model.PrefixReview, false, true},
		{model.PrefixThink, false, true},
		{model.PrefixGit, false, false},
		{model.PrefixAddNote, false, false},
		{model.PrefixDoit, true, false},
		{model.Prefix("bogus"), false, false},
	}
	for _, tt := range tests {
		if got := ModifiesCode(tt.prefix); got != tt.modifiesCode {
			t.Errorf("ModifiesCode(%s) = %v, want %v", tt.prefix, got, tt.modifiesCode)
		}
		if got := IsReadOnly(tt.prefix); got != tt.readOnly {
			t.Errorf("IsReadOnly(%s) = %v, want %v", tt.prefix, got, tt.readOnly)
		}
	}
}
