package modifier

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sokinpui/pfx.go/internal/registry"
	"github.com/sokinpui/pfx.go/model"
)

func lookup(t *testing.T, name string) model.PrefixInfo {
	t.Helper()
	info, err := registry.Lookup(name)
	if err != nil {
		t.Fatal(err)
	}
	return info
}

func TestParseCollapsesDuplicates(t *testing.T) {
	set, err := Parse([]string{"log", "keep", "log"})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"keep", "log"}, set.Names()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
	if _, err := Parse([]string{"fast"}); err == nil {
		t.Error("unknown modifier should be rejected")
	}
}

func TestAnnotate(t *testing.T) {
	tests := []struct {
		prefix string
		mods   []model.Modifier
		mode   model.Mode
		write  bool
		keep   bool
		log    bool
	}{
		{"fix", nil, model.ModeApply, true, false, false},
		{"fix", []model.Modifier{model.ModKeep, model.ModLog}, model.ModeApply, true, true, true},
		{"fix", []model.Modifier{model.ModRead, model.ModKeep}, model.ModeDryRun, false, false, false},
		{"review", []model.Modifier{model.ModKeep}, model.ModeDryRun, false, false, false},
		{"think", nil, model.ModeDryRun, false, false, false},
		{"git", []model.Modifier{model.ModLog}, model.ModeApply, true, false, true},
	}
	for _, tt := range tests {
		a, err := Annotate(lookup(t, tt.prefix), model.NewModifierSet(tt.mods...))
		if err != nil {
			t.Fatalf("Annotate(%s) failed: %v", tt.prefix, err)
		}
		if a.Mode != tt.mode || a.WriteAccess != tt.write || a.ConflictBlocks != tt.keep || a.ChangeLog != tt.log {
			t.Errorf("Annotate(%s, %v) = %+v", tt.prefix, tt.mods, a)
		}
	}
}

func TestAnnotateOrderIndependent(t *testing.T) {
	info := lookup(t, "imp")
	a, _ := Parse([]string{"keep", "log"})
	b, _ := Parse([]string{"log", "keep"})
	x, err := Annotate(info, a)
	if err != nil {
		t.Fatal(err)
	}
	y, err := Annotate(info, b)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(x, y); diff != "" {
		t.Errorf("annotations depend on modifier order (-first +second):\n%s", diff)
	}
}

func TestReadRejectedOnMetaPrefixes(t *testing.T) {
	for _, name := range []string{"doit", "again", "check", "list-cmd"} {
		_, err := Annotate(lookup(t, name), model.NewModifierSet(model.ModRead))
		if code, _ := model.CodeOf(err); code != model.CodeMalformedCommand {
			t.Errorf("[%s:read] error = %v, want MalformedCommand", name, err)
		}
	}
}
