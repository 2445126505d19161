// Package scope parses <dir:/file:/class:/func:> clauses and resolves them
// against a source tree.
package scope

import (
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sokinpui/pfx.go/model"
)

var (
	clauseKeys = []string{"dir", "file", "class", "func"}
	// rangeSuffix matches the optional ":start" or ":start-end" of a file value.
	rangeSuffix = regexp.MustCompile(`^(.+):(\d+)(?:-(\d+))?$`)
)

// Parse parses the text between '<' and '>'. An empty clause yields an empty
// Scope, meaning the whole repository.
func Parse(clause string) (model.Scope, error) {
	var (
		sc      model.Scope
		key     string
		dirs    = map[string]struct{}{}
		classes = map[string]struct{}{}
		funcs   = map[string]struct{}{}
	)

	items := strings.FieldsFunc(clause, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	for _, item := range items {
		value := item
		if k, v, ok := splitKey(item); ok {
			key, value = k, v
		} else if key == "" {
			return model.Scope{}, model.Reject(model.CodeInvalidScope, "scope item %q has no dir:/file:/class:/func: key", item)
		}
		if value == "" {
			return model.Scope{}, model.Reject(model.CodeInvalidScope, "empty value for %s:", key)
		}

		switch key {
		case "dir":
			dirs[cleanPath(value)] = struct{}{}
		case "file":
			name, r, err := parseFileValue(value)
			if err != nil {
				return model.Scope{}, err
			}
			if sc.Files == nil {
				sc.Files = map[string]model.LineRange{}
			}
			if prev, dup := sc.Files[name]; dup && prev != r {
				return model.Scope{}, model.Reject(model.CodeInvalidScope, "file %q listed with conflicting ranges", name)
			}
			sc.Files[name] = r
		case "class":
			classes[value] = struct{}{}
		case "func":
			funcs[strings.TrimSuffix(value, "()")] = struct{}{}
		}
	}

	sc.Dirs = sortedKeys(dirs)
	sc.Classes = sortedKeys(classes)
	sc.Funcs = sortedKeys(funcs)
	return sc, nil
}

func splitKey(item string) (key, value string, ok bool) {
	for _, k := range clauseKeys {
		if strings.HasPrefix(item, k+":") {
			return k, item[len(k)+1:], true
		}
	}
	return "", "", false
}

func parseFileValue(value string) (string, model.LineRange, error) {
	m := rangeSuffix.FindStringSubmatch(value)
	if m == nil {
		if strings.HasSuffix(value, ":") {
			return "", model.LineRange{}, model.Reject(model.CodeInvalidScope, "file %q has an empty line range", value)
		}
		return cleanPath(value), model.LineRange{}, nil
	}
	start, _ := strconv.Atoi(m[2])
	r := model.LineRange{Start: start}
	if m[3] != "" {
		r.End, _ = strconv.Atoi(m[3])
	}
	if r.Start < 1 {
		return "", model.LineRange{}, model.Reject(model.CodeInvalidScope, "line numbers start at 1 in %q", value)
	}
	if r.End != 0 && r.End < r.Start {
		return "", model.LineRange{}, model.Reject(model.CodeInvalidScope, "range end before start in %q", value)
	}
	return cleanPath(m[1]), r, nil
}

func cleanPath(p string) string {
	p = path.Clean(strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimPrefix(p, "./")
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
