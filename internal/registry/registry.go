// Package registry holds the closed set of request prefixes.
package registry

import (
	"github.com/agnivade/levenshtein"

	"github.com/sokinpui/pfx.go/model"
)

// entries is ordered as shown by [list-cmd].
var entries = []model.PrefixInfo{
	{Prefix: model.PrefixFix, Writes: model.WritesCode, DryRunComposable: true, Summary: "Fix a bug in the scoped code"},
	{Prefix: model.PrefixImp, Writes: model.WritesCode, DryRunComposable: true, Summary: "Improve or refactor existing code"},
	{Prefix: model.PrefixAdd, Writes: model.WritesCode, DryRunComposable: true, Summary: "Add a new feature or code"},
	{Prefix: model.PrefixRm, Writes: model.WritesCode, DryRunComposable: true, Summary: "Remove code"},
	{Prefix: model.PrefixLite, Writes: model.WritesCode, DryRunComposable: true, Summary: "Small change without planning ceremony"},
	{Prefix: model.PrefixReview, Writes: model.WritesNothing, Summary: "Review code and report findings"},
	{Prefix: model.PrefixSearch, Writes: model.WritesNothing, Summary: "Search the code base and report locations"},
	{Prefix: model.PrefixRead, Writes: model.WritesNothing, Summary: "Analyze and propose a plan without editing"},
	{Prefix: model.PrefixThink, Writes: model.WritesNothing, Summary: "Reason through options without editing"},
	{Prefix: model.PrefixDoit, Writes: model.WritesCode, Meta: true, Summary: "Execute the plan from the last read/think"},
	{Prefix: model.PrefixCheck, Writes: model.WritesNothing, Meta: true, Summary: "Review resolved conflict blocks from a :keep change"},
	{Prefix: model.PrefixAgain, Writes: model.WritesNothing, Meta: true, Summary: "Resume (continue) or restart (retry) the last command"},
	{Prefix: model.PrefixGit, Writes: model.WritesRepo, DryRunComposable: true, Summary: "Prepare git operations such as commit messages"},
	{Prefix: model.PrefixAddNote, Writes: model.WritesRepo, DryRunComposable: true, Summary: "Record a project note"},
	{Prefix: model.PrefixFileAdd, Writes: model.WritesCode, DryRunComposable: true, Summary: "Create a file"},
	{Prefix: model.PrefixFileRm, Writes: model.WritesCode, DryRunComposable: true, Summary: "Delete a file and its references"},
	{Prefix: model.PrefixFileRn, Writes: model.WritesCode, DryRunComposable: true, Summary: "Rename a file and update references"},
	{Prefix: model.PrefixFileMv, Writes: model.WritesCode, DryRunComposable: true, Summary: "Move a file and update references"},
	{Prefix: model.PrefixListCmd, Writes: model.WritesNothing, Meta: true, Summary: "List available commands"},
}

var byName = func() map[model.Prefix]model.PrefixInfo {
	m := make(map[model.Prefix]model.PrefixInfo, len(entries))
	for _, e := range entries {
		m[e.Prefix] = e
	}
	return m
}()

// Lookup returns the registry entry for name or an UnknownPrefix rejection
// suggesting the closest known prefix.
func Lookup(name string) (model.PrefixInfo, error) {
	if info, ok := byName[model.Prefix(name)]; ok {
		return info, nil
	}
	err := model.Reject(model.CodeUnknownPrefix, "unknown prefix %q", name)
	err.Suggestion = Nearest(name)
	return model.PrefixInfo{}, err
}

// Nearest returns the known prefix with the smallest edit distance to name.
func Nearest(name string) string {
	best, bestDist := "", -1
	for _, e := range entries {
		d := levenshtein.ComputeDistance(name, string(e.Prefix))
		if bestDist < 0 || d < bestDist {
			best, bestDist = string(e.Prefix), d
		}
	}
	return best
}

// ModifiesCode reports whether p requests write access to source code.
// Unknown prefixes never do.
func ModifiesCode(p model.Prefix) bool {
	info, ok := byName[p]
	return ok && info.ModifiesCode()
}

// IsReadOnly reports whether p changes nothing at all.
func IsReadOnly(p model.Prefix) bool {
	info, ok := byName[p]
	return ok && info.IsReadOnly()
}

// All returns every registered prefix in display order.
func All() []model.PrefixInfo {
	out := make([]model.PrefixInfo, len(entries))
	copy(out, entries)
	return out
}
