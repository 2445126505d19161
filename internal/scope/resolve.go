package scope

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sokinpui/pfx.go/model"
)

// Tree is the read-only view of the source tree the resolver needs.
// Paths are slash-separated and relative to the tree root.
type Tree interface {
	Files() ([]string, error)
	IsDir(p string) bool
	LineCount(p string) (int, error)
	Symbols(p string) ([]model.Symbol, error)
}

// Resolver checks scopes against a Tree. It never modifies files.
type Resolver struct {
	tree Tree
}

// NewResolver creates a Resolver over tree.
func NewResolver(tree Tree) *Resolver {
	return &Resolver{tree: tree}
}

// Resolve turns sc into concrete targets. Clause kinds intersect: a target
// must lie under a listed dir, inside a listed file range and touch a listed
// class or func, for each kind that is present.
func (r *Resolver) Resolve(sc model.Scope) (model.Resolution, error) {
	res := model.Resolution{Scope: sc}
	if sc.IsEmpty() {
		res.Whole = true
		return res, nil
	}

	all, err := r.tree.Files()
	if err != nil {
		return model.Resolution{}, fmt.Errorf("listing source tree: %w", err)
	}

	for _, d := range sc.Dirs {
		if d != "." && !r.tree.IsDir(d) {
			return model.Resolution{}, model.Reject(model.CodeInvalidScope, "directory %q not found", d)
		}
	}
	res.Dirs = sc.Dirs

	candidates := all
	if len(sc.Dirs) > 0 {
		candidates = filter(all, func(p string) bool { return underAny(p, sc.Dirs) })
	}

	regions := make(map[string]model.LineRange)
	lines := make(map[string]int)
	if len(sc.Files) > 0 {
		for _, name := range sc.FileNames() {
			p, err := r.lookupFile(all, name)
			if err != nil {
				return model.Resolution{}, err
			}
			n, err := r.tree.LineCount(p)
			if err != nil {
				return model.Resolution{}, model.Reject(model.CodeInvalidScope, "file %q: %v", name, err)
			}
			rng, err := concretize(name, sc.Files[name], n)
			if err != nil {
				return model.Resolution{}, err
			}
			regions[p] = rng
			lines[p] = n
		}
		candidates = nil
		for p := range regions {
			if len(sc.Dirs) == 0 || underAny(p, sc.Dirs) {
				candidates = append(candidates, p)
			}
		}
		sort.Strings(candidates)
		if len(candidates) == 0 {
			return model.Resolution{}, model.Reject(model.CodeInvalidScope, "no listed file lies under %s", strings.Join(sc.Dirs, ", "))
		}
	} else {
		for _, p := range candidates {
			n, err := r.tree.LineCount(p)
			if err != nil {
				return model.Resolution{}, fmt.Errorf("counting lines of %s: %w", p, err)
			}
			regions[p] = model.LineRange{Start: 1, End: n}
			lines[p] = n
		}
	}

	if !sc.HasSymbols() {
		for _, p := range candidates {
			res.Targets = append(res.Targets, model.Target{
				Path:    p,
				Lines:   lines[p],
				Regions: []model.LineRange{regions[p]},
			})
		}
		sortTargets(res.Targets)
		return res, nil
	}

	wanted := make(map[model.SymbolKind]map[string]bool)
	wanted[model.SymbolClass] = setOf(sc.Classes)
	wanted[model.SymbolFunc] = setOf(sc.Funcs)
	found := make(map[string]bool)

	for _, p := range candidates {
		syms, err := r.tree.Symbols(p)
		if err != nil {
			return model.Resolution{}, fmt.Errorf("locating symbols in %s: %w", p, err)
		}
		region := regions[p]
		t := model.Target{Path: p, Lines: lines[p]}
		for _, s := range syms {
			if !wanted[s.Kind][s.Name] || !s.Range.Overlaps(region) {
				continue
			}
			found[string(s.Kind)+":"+s.Name] = true
			t.Symbols = append(t.Symbols, s)
			t.Regions = append(t.Regions, intersect(s.Range, region))
		}
		if len(t.Symbols) > 0 {
			t.Regions = merge(t.Regions)
			res.Targets = append(res.Targets, t)
		}
	}

	for _, c := range sc.Classes {
		if !found["class:"+c] {
			return model.Resolution{}, model.Reject(model.CodeInvalidScope, "class %q not found in scope", c)
		}
	}
	for _, f := range sc.Funcs {
		if !found["func:"+f] {
			return model.Resolution{}, model.Reject(model.CodeInvalidScope, "func %q not found in scope", f)
		}
	}
	sortTargets(res.Targets)
	return res, nil
}

// lookupFile finds name by exact relative path, then by unique basename or
// path suffix anywhere in the tree.
func (r *Resolver) lookupFile(all []string, name string) (string, error) {
	var matches []string
	for _, p := range all {
		if p == name {
			return p, nil
		}
		if strings.HasSuffix(p, "/"+name) {
			matches = append(matches, p)
		}
	}
	if len(matches) == 0 {
		if _, err := r.tree.LineCount(name); err == nil {
			return name, nil
		}
		return "", model.Reject(model.CodeInvalidScope, "file %q not found", name)
	}
	if len(matches) > 1 {
		sort.Strings(matches)
		return "", model.Reject(model.CodeInvalidScope, "file %q is ambiguous: %s", name, strings.Join(matches, ", "))
	}
	return matches[0], nil
}

// concretize fills in the end of an open range and checks bounds.
func concretize(name string, r model.LineRange, n int) (model.LineRange, error) {
	if r.IsWhole() {
		return model.LineRange{Start: 1, End: n}, nil
	}
	if r.Start > n {
		return model.LineRange{}, model.Reject(model.CodeInvalidScope, "%s:%s starts beyond end of file (%d lines)", name, r, n)
	}
	if r.End == 0 {
		return model.LineRange{Start: r.Start, End: n}, nil
	}
	if r.End > n {
		return model.LineRange{}, model.Reject(model.CodeInvalidScope, "%s:%s ends beyond end of file (%d lines)", name, r, n)
	}
	return r, nil
}

func intersect(a, b model.LineRange) model.LineRange {
	return model.LineRange{Start: max(a.Start, b.Start), End: min(a.End, b.End)}
}

// merge sorts ranges and joins overlapping or adjacent ones.
func merge(ranges []model.LineRange) []model.LineRange {
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })
	var out []model.LineRange
	for _, r := range ranges {
		if n := len(out); n > 0 && r.Start <= out[n-1].End+1 {
			out[n-1].End = max(out[n-1].End, r.End)
			continue
		}
		out = append(out, r)
	}
	return out
}

func underAny(p string, dirs []string) bool {
	for _, d := range dirs {
		if model.UnderDir(p, d) {
			return true
		}
	}
	return false
}

func filter(paths []string, keep func(string) bool) []string {
	var out []string
	for _, p := range paths {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func setOf(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

func sortTargets(ts []model.Target) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Path < ts[j].Path })
}
