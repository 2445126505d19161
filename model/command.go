package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Prefix is the bracketed keyword that opens a request line.
type Prefix string

const (
	PrefixFix     Prefix = "fix"
	PrefixImp     Prefix = "imp"
	PrefixAdd     Prefix = "add"
	PrefixRm      Prefix = "rm"
	PrefixReview  Prefix = "review"
	PrefixSearch  Prefix = "search"
	PrefixRead    Prefix = "read"
	PrefixThink   Prefix = "think"
	PrefixDoit    Prefix = "doit"
	PrefixCheck   Prefix = "check"
	PrefixAgain   Prefix = "again"
	PrefixGit     Prefix = "git"
	PrefixLite    Prefix = "lite"
	PrefixAddNote Prefix = "add-note"
	PrefixFileAdd Prefix = "file-add"
	PrefixFileRm  Prefix = "file-rm"
	PrefixFileRn  Prefix = "file-rn"
	PrefixFileMv  Prefix = "file-mv"
	PrefixListCmd Prefix = "list-cmd"
)

// Modifier is a single execution flag written as a ":name" suffix.
type Modifier uint8

const (
	ModKeep Modifier = 1 << iota
	ModLog
	ModRead
)

// modifierOrder is the canonical serialization order.
var modifierOrder = []Modifier{ModKeep, ModLog, ModRead}

func (m Modifier) String() string {
	switch m {
	case ModKeep:
		return "keep"
	case ModLog:
		return "log"
	case ModRead:
		return "read"
	default:
		return fmt.Sprintf("modifier(%d)", uint8(m))
	}
}

// ParseModifier maps a modifier name to its flag.
func ParseModifier(name string) (Modifier, bool) {
	for _, m := range modifierOrder {
		if m.String() == name {
			return m, true
		}
	}
	return 0, false
}

// ModifierSet is a bitset of modifiers. Adding a modifier twice is a no-op.
type ModifierSet uint8

// NewModifierSet builds a set from the given modifiers.
func NewModifierSet(mods ...Modifier) ModifierSet {
	var s ModifierSet
	for _, m := range mods {
		s = s.With(m)
	}
	return s
}

func (s ModifierSet) Has(m Modifier) bool { return s&ModifierSet(m) != 0 }

func (s ModifierSet) With(m Modifier) ModifierSet { return s | ModifierSet(m) }

func (s ModifierSet) Without(m Modifier) ModifierSet { return s &^ ModifierSet(m) }

func (s ModifierSet) IsEmpty() bool { return s == 0 }

// Names returns the modifier names in canonical order.
func (s ModifierSet) Names() []string {
	var names []string
	for _, m := range modifierOrder {
		if s.Has(m) {
			names = append(names, m.String())
		}
	}
	return names
}

func (s ModifierSet) MarshalJSON() ([]byte, error) {
	names := s.Names()
	if names == nil {
		names = []string{}
	}
	return json.Marshal(names)
}

func (s *ModifierSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	var set ModifierSet
	for _, n := range names {
		m, ok := ParseModifier(n)
		if !ok {
			return fmt.Errorf("unknown modifier %q", n)
		}
		set = set.With(m)
	}
	*s = set
	return nil
}

// LineRange is a 1-based inclusive line range. The zero value means the
// whole file; End == 0 with Start > 0 means "from Start to end of file".
type LineRange struct {
	Start int `json:"start,omitempty"`
	End   int `json:"end,omitempty"`
}

func (r LineRange) IsWhole() bool { return r.Start == 0 && r.End == 0 }

func (r LineRange) IsOpen() bool { return r.Start > 0 && r.End == 0 }

// Contains reports whether line falls inside the range.
func (r LineRange) Contains(line int) bool {
	if r.IsWhole() {
		return true
	}
	if line < r.Start {
		return false
	}
	return r.End == 0 || line <= r.End
}

// Overlaps reports whether two concrete ranges share at least one line.
func (r LineRange) Overlaps(o LineRange) bool {
	return r.Start <= o.End && o.Start <= r.End
}

// Len is the number of lines in a concrete range.
func (r LineRange) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

func (r LineRange) String() string {
	switch {
	case r.IsWhole():
		return ""
	case r.End == 0:
		return strconv.Itoa(r.Start)
	default:
		return fmt.Sprintf("%d-%d", r.Start, r.End)
	}
}

// Scope narrows a request to part of the source tree. An empty Scope means
// the whole repository.
type Scope struct {
	Dirs    []string             `json:"dirs,omitempty"`
	Files   map[string]LineRange `json:"files,omitempty"`
	Classes []string             `json:"classes,omitempty"`
	Funcs   []string             `json:"funcs,omitempty"`
}

func (s Scope) IsEmpty() bool {
	return len(s.Dirs) == 0 && len(s.Files) == 0 && len(s.Classes) == 0 && len(s.Funcs) == 0
}

// HasSymbols reports whether the scope names a class or func.
func (s Scope) HasSymbols() bool { return len(s.Classes) > 0 || len(s.Funcs) > 0 }

// FileNames returns the file keys sorted.
func (s Scope) FileNames() []string {
	names := make([]string, 0, len(s.Files))
	for name := range s.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String renders the scope in canonical clause order without the angle brackets.
func (s Scope) String() string {
	var clauses []string
	if len(s.Dirs) > 0 {
		clauses = append(clauses, "dir:"+strings.Join(s.Dirs, ","))
	}
	if len(s.Files) > 0 {
		values := make([]string, 0, len(s.Files))
		for _, name := range s.FileNames() {
			if r := s.Files[name]; !r.IsWhole() {
				values = append(values, name+":"+r.String())
			} else {
				values = append(values, name)
			}
		}
		clauses = append(clauses, "file:"+strings.Join(values, ","))
	}
	if len(s.Classes) > 0 {
		clauses = append(clauses, "class:"+strings.Join(s.Classes, ","))
	}
	if len(s.Funcs) > 0 {
		clauses = append(clauses, "func:"+strings.Join(s.Funcs, ","))
	}
	return strings.Join(clauses, " ")
}

// Command is a fully parsed request line.
type Command struct {
	Prefix    Prefix      `json:"prefix"`
	Modifiers ModifierSet `json:"modifiers"`
	Scope     Scope       `json:"scope"`
	Body      string      `json:"body,omitempty"`
}

func (c Command) Has(m Modifier) bool { return c.Modifiers.Has(m) }

// String re-serializes the command in canonical form. Parsing the result
// yields an equal Command.
func (c Command) String() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(string(c.Prefix))
	for _, name := range c.Modifiers.Names() {
		b.WriteString(":")
		b.WriteString(name)
	}
	b.WriteString("]")
	if !c.Scope.IsEmpty() {
		b.WriteString("<")
		b.WriteString(c.Scope.String())
		b.WriteString(">")
	}
	if c.Body != "" {
		b.WriteString(" ")
		b.WriteString(c.Body)
	}
	return b.String()
}
