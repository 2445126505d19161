// Package modifier folds :keep, :log and :read into dispatch annotations.
package modifier

import (
	"github.com/sokinpui/pfx.go/model"
)

// Parse converts modifier tokens into a set. Duplicates collapse.
func Parse(tokens []string) (model.ModifierSet, error) {
	var set model.ModifierSet
	for _, tok := range tokens {
		m, ok := model.ParseModifier(tok)
		if !ok {
			return 0, model.Reject(model.CodeMalformedCommand, "unknown modifier %q (want keep, log or read)", tok)
		}
		set = set.With(m)
	}
	return set, nil
}

// stage is one step of the pipeline. Stages run in a fixed order, so the
// outcome does not depend on the order modifiers were written in.
type stage func(info model.PrefixInfo, mods model.ModifierSet, a *model.Annotations) error

var stages = []stage{
	baseMode,
	readStage,
	keepStage,
	logStage,
}

// Annotate computes the annotations for a prefix and its modifiers.
func Annotate(info model.PrefixInfo, mods model.ModifierSet) (model.Annotations, error) {
	var a model.Annotations
	for _, s := range stages {
		if err := s(info, mods, &a); err != nil {
			return model.Annotations{}, err
		}
	}
	return a, nil
}

func baseMode(info model.PrefixInfo, _ model.ModifierSet, a *model.Annotations) error {
	if info.IsReadOnly() {
		a.Mode = model.ModeDryRun
		a.Instructions = append(a.Instructions, "Do not modify any file. Report findings only.")
		return nil
	}
	a.Mode = model.ModeApply
	a.WriteAccess = true
	return nil
}

func readStage(info model.PrefixInfo, mods model.ModifierSet, a *model.Annotations) error {
	if !mods.Has(model.ModRead) {
		return nil
	}
	if info.Meta || (!info.DryRunComposable && !info.IsReadOnly()) {
		return model.Reject(model.CodeMalformedCommand, "[%s] does not accept :read", info.Prefix)
	}
	if a.Mode == model.ModeDryRun {
		return nil
	}
	a.Mode = model.ModeDryRun
	a.WriteAccess = false
	a.Instructions = append(a.Instructions,
		"Analysis only: describe the changes you would make without writing them.",
		"If there are several viable approaches, list them as A) ..., B) ... so one can be chosen.")
	return nil
}

func keepStage(_ model.PrefixInfo, mods model.ModifierSet, a *model.Annotations) error {
	if !mods.Has(model.ModKeep) || !a.WriteAccess {
		return nil
	}
	a.ConflictBlocks = true
	a.Instructions = append(a.Instructions,
		"Changes will be merged as conflict blocks (current vs proposed) for manual resolution; return complete file contents.")
	return nil
}

func logStage(_ model.PrefixInfo, mods model.ModifierSet, a *model.Annotations) error {
	if !mods.Has(model.ModLog) || !a.WriteAccess {
		return nil
	}
	a.ChangeLog = true
	a.Instructions = append(a.Instructions,
		"Include a \"## Reasoning\" section, a \"## Changes\" bullet list and an optional \"## Notes\" section.")
	return nil
}
