package model

import (
	"maps"
	"path"
	"slices"
	"strings"
	"time"
)

// WriteKind says what a prefix is allowed to change.
type WriteKind string

const (
	WritesNothing WriteKind = "none"
	WritesCode    WriteKind = "code"
	WritesRepo    WriteKind = "repo"
)

// PrefixInfo is the registry entry for a prefix.
type PrefixInfo struct {
	Prefix Prefix    `json:"prefix"`
	Writes WriteKind `json:"writes"`
	// DryRunComposable reports whether the :read modifier may be applied.
	DryRunComposable bool `json:"dry_run_composable"`
	// Meta prefixes act on the session rather than on the source tree.
	Meta    bool   `json:"meta,omitempty"`
	Summary string `json:"summary"`
}

func (i PrefixInfo) ModifiesCode() bool { return i.Writes == WritesCode }

func (i PrefixInfo) IsReadOnly() bool { return i.Writes == WritesNothing }

// Mode is the execution mode chosen by the modifier pipeline.
type Mode string

const (
	ModeApply  Mode = "apply"
	ModeDryRun Mode = "dry-run"
)

// Annotations are the behavior flags attached to a dispatch record.
type Annotations struct {
	Mode           Mode     `json:"mode"`
	WriteAccess    bool     `json:"write_access"`
	ConflictBlocks bool     `json:"conflict_blocks,omitempty"`
	ChangeLog      bool     `json:"change_log,omitempty"`
	Instructions   []string `json:"instructions,omitempty"`
}

type SymbolKind string

const (
	SymbolClass SymbolKind = "class"
	SymbolFunc  SymbolKind = "func"
)

// Symbol is a named declaration located in a source file.
type Symbol struct {
	Name  string     `json:"name"`
	Kind  SymbolKind `json:"kind"`
	Path  string     `json:"path"`
	Range LineRange  `json:"range"`
}

// Target is one file selected by a resolved scope.
type Target struct {
	Path    string      `json:"path"`
	Lines   int         `json:"lines"`
	Regions []LineRange `json:"regions"`
	Symbols []Symbol    `json:"symbols,omitempty"`
}

// Size is the number of lines covered by the target's regions.
func (t Target) Size() int {
	n := 0
	for _, r := range t.Regions {
		n += r.Len()
	}
	return n
}

// Resolution is a Scope checked against the source tree.
type Resolution struct {
	Scope Scope `json:"scope"`
	// Whole is set for an empty scope: every file in the tree.
	Whole   bool     `json:"whole,omitempty"`
	Dirs    []string `json:"dirs,omitempty"`
	Targets []Target `json:"targets,omitempty"`
}

// Target returns the target for path, if selected.
func (r Resolution) Target(p string) (Target, bool) {
	for _, t := range r.Targets {
		if t.Path == p {
			return t, true
		}
	}
	return Target{}, false
}

// Contains reports whether line of path lies inside the resolution.
func (r Resolution) Contains(p string, line int) bool {
	if r.Whole {
		return true
	}
	t, ok := r.Target(p)
	if !ok {
		return false
	}
	for _, region := range t.Regions {
		if region.Contains(line) {
			return true
		}
	}
	return false
}

// CoversPath reports whether a write to p stays within the resolution.
// Paths that do not exist yet are allowed under a dir-only scope.
func (r Resolution) CoversPath(p string) bool {
	if r.Whole {
		return true
	}
	if _, ok := r.Target(p); ok {
		return true
	}
	if len(r.Scope.Files) > 0 || r.Scope.HasSymbols() {
		return false
	}
	for _, d := range r.Dirs {
		if UnderDir(p, d) {
			return true
		}
	}
	return false
}

// Paths lists the target paths in order.
func (r Resolution) Paths() []string {
	paths := make([]string, len(r.Targets))
	for i, t := range r.Targets {
		paths[i] = t.Path
	}
	return paths
}

// UnderDir reports whether slash path p is dir or lies below it.
func UnderDir(p, dir string) bool {
	dir = strings.TrimSuffix(path.Clean(dir), "/")
	if dir == "." || dir == "" {
		return true
	}
	p = path.Clean(p)
	return p == dir || strings.HasPrefix(p, dir+"/")
}

type StepKind string

const (
	StepDispatch StepKind = "dispatch"
	StepApply    StepKind = "apply"
)

type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepDone    StepStatus = "done"
	StepFailed  StepStatus = "failed"
)

// Step is one unit of a plan: either a backend pass or one file application.
type Step struct {
	Title     string      `json:"title"`
	Kind      StepKind    `json:"kind"`
	Status    StepStatus  `json:"status"`
	Focus     []Target    `json:"focus,omitempty"`
	Change    *FileChange `json:"change,omitempty"`
	HashAfter string      `json:"hash_after,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// Plan is an ordered list of steps.
type Plan struct {
	Steps    []Step `json:"steps,omitempty"`
	TaskSlug string `json:"task_slug,omitempty"`
}

// Next returns the index of the first step that is not done.
func (p Plan) Next(kind StepKind) (int, bool) {
	for i, s := range p.Steps {
		if s.Kind == kind && s.Status != StepDone {
			return i, true
		}
	}
	return -1, false
}

// Remaining counts steps of kind that are not done.
func (p Plan) Remaining(kind StepKind) int {
	n := 0
	for _, s := range p.Steps {
		if s.Kind == kind && s.Status != StepDone {
			n++
		}
	}
	return n
}

// Progress is the percentage of dispatch steps completed.
func (p Plan) Progress() int {
	total, done := 0, 0
	for _, s := range p.Steps {
		if s.Kind != StepDispatch {
			continue
		}
		total++
		if s.Status == StepDone {
			done++
		}
	}
	if total == 0 {
		return 0
	}
	return done * 100 / total
}

// Snapshot records the content hashes of the targeted files at dispatch time.
type Snapshot struct {
	TakenAt time.Time         `json:"taken_at"`
	Files   map[string]string `json:"files,omitempty"`
	// Dir holds content copies keyed by relative path.
	Dir string `json:"dir,omitempty"`
}

type DeltaKind string

const (
	DeltaModified DeltaKind = "modified"
	DeltaDeleted  DeltaKind = "deleted"
	DeltaCreated  DeltaKind = "created"
)

// Delta is a manual edit detected between a snapshot and the current tree.
type Delta struct {
	Path string    `json:"path"`
	Kind DeltaKind `json:"kind"`
	Diff string    `json:"diff,omitempty"`
}

// Option is one alternative enumerated by a dry-run report.
type Option struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}

type FileAction string

const (
	ActionCreate FileAction = "create"
	ActionModify FileAction = "modify"
	ActionDelete FileAction = "delete"
	ActionRename FileAction = "rename"
)

// FileChange is a single planned change to a file, relative to the tree root.
type FileChange struct {
	Path    string     `json:"path"`
	Action  FileAction `json:"action"`
	Content []string   `json:"content,omitempty"`
	NewPath string     `json:"new_path,omitempty"`
	Source  string     `json:"source,omitempty"`
}

// FileRecord is a path plus the lines an edit touched.
type FileRecord struct {
	Path  string    `json:"path"`
	Range LineRange `json:"range"`
}

// Dispatch is the record handed to the LLM backend.
type Dispatch struct {
	ID          string      `json:"id"`
	Parent      string      `json:"parent,omitempty"`
	Command     Command     `json:"command"`
	Info        PrefixInfo  `json:"info"`
	Annotations Annotations `json:"annotations"`
	Resolution  Resolution  `json:"resolution"`
	Plan        Plan        `json:"plan"`
	// Step is the plan step this dispatch executes, or -1.
	Step      int       `json:"step"`
	Snapshot  Snapshot  `json:"snapshot"`
	Delta     []Delta   `json:"delta,omitempty"`
	Option    *Option   `json:"option,omitempty"`
	// Analysis is the report of the dry run a [doit] executes.
	Analysis string `json:"analysis,omitempty"`
	Prompt   string `json:"prompt"`
	// Response is the raw backend answer, kept so interrupted apply
	// steps can be resumed without asking again.
	Response  string    `json:"response,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Clone copies d deeply enough that steps, snapshot hashes, deltas and the
// option can be changed without touching d.
func (d *Dispatch) Clone() *Dispatch {
	if d == nil {
		return nil
	}
	c := *d
	c.Plan.Steps = slices.Clone(d.Plan.Steps)
	for i, s := range c.Plan.Steps {
		c.Plan.Steps[i].Focus = slices.Clone(s.Focus)
		if s.Change != nil {
			ch := *s.Change
			ch.Content = slices.Clone(s.Change.Content)
			c.Plan.Steps[i].Change = &ch
		}
	}
	c.Snapshot.Files = maps.Clone(d.Snapshot.Files)
	c.Delta = slices.Clone(d.Delta)
	if d.Option != nil {
		o := *d.Option
		c.Option = &o
	}
	return &c
}

// Outcome is the final signal of a dispatch.
type Outcome string

const (
	OutcomeApplied      Outcome = "Applied"
	OutcomeDryRunReport Outcome = "DryRunReport"
	OutcomeRejected     Outcome = "Rejected"
	OutcomeInterrupted  Outcome = "Interrupted"
)

// Result is what a dispatch produced.
type Result struct {
	Outcome     Outcome      `json:"outcome"`
	Code        Code         `json:"code,omitempty"`
	Reason      string       `json:"reason,omitempty"`
	DispatchID  string       `json:"dispatch_id,omitempty"`
	Report      string       `json:"report,omitempty"`
	Options     []Option     `json:"options,omitempty"`
	Files       []FileRecord `json:"files,omitempty"`
	Failed      []string     `json:"failed,omitempty"`
	ChangeLogID int64        `json:"change_log_id,omitempty"`
	Delta       []Delta      `json:"delta,omitempty"`
	TaskSlug    string       `json:"task_slug,omitempty"`
	Remaining   int          `json:"remaining,omitempty"`
}

// Rejected converts err into a Rejected result when it carries a taxonomy code.
func Rejected(err error) (Result, bool) {
	code, ok := CodeOf(err)
	if !ok {
		return Result{}, false
	}
	return Result{Outcome: OutcomeRejected, Code: code, Reason: err.Error()}, true
}
