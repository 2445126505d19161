package task

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/sokinpui/pfx.go/model"
)

const (
	frontMatterDelim = "---"
	fileExt          = ".md"
)

var (
	ErrNotFound = errors.New("task not found")

	checkboxPrefix = regexp.MustCompile(`^\[[ xX]\]\s*`)
	md             = goldmark.New(goldmark.WithExtensions(extension.TaskList))
)

// Store keeps one markdown file per task in a directory.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore creates a Store over dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create task directory: %w", err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

func (s *Store) path(slug string) string {
	return filepath.Join(s.dir, slug+fileExt)
}

// Save writes t, stamping Updated and recomputing progress from the
// checklist.
func (s *Store) Save(t *model.Task) error {
	if t.Slug == "" {
		return fmt.Errorf("task %q has no slug", t.Title)
	}
	now := s.now().UTC().Truncate(time.Second)
	if t.Created.IsZero() {
		t.Created = now
	}
	t.Updated = now
	Recompute(t)

	data, err := Marshal(t)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(t.Slug), data, 0644)
}

// Load reads the task stored under slug.
func (s *Store) Load(slug string) (*model.Task, error) {
	data, err := os.ReadFile(s.path(slug))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, slug)
	}
	if err != nil {
		return nil, err
	}
	t, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", slug, err)
	}
	t.Slug = slug
	return t, nil
}

// List returns every task, oldest first.
func (s *Store) List() ([]model.Task, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var tasks []model.Task
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != fileExt {
			continue
		}
		t, err := s.Load(strings.TrimSuffix(e.Name(), fileExt))
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Created.Before(tasks[j].Created) })
	return tasks, nil
}

// Recompute derives progress from the checklist and completes the task
// once every subtask is done. A paused task stays paused.
func Recompute(t *model.Task) {
	if len(t.Subtasks) == 0 {
		return
	}
	done := 0
	for _, st := range t.Subtasks {
		if st.Done {
			done++
		}
	}
	t.Progress = done * 100 / len(t.Subtasks)
	switch {
	case done == len(t.Subtasks):
		t.Status = model.TaskCompleted
	case t.Status == model.TaskCompleted || t.Status == "":
		t.Status = model.TaskPending
	}
}

// Check marks the subtask at index i done.
func Check(t *model.Task, i int) {
	if i >= 0 && i < len(t.Subtasks) {
		t.Subtasks[i].Done = true
	}
	Recompute(t)
}

// Marshal renders t as front matter plus a checklist.
func Marshal(t *model.Task) ([]byte, error) {
	if !t.Status.Valid() {
		return nil, fmt.Errorf("invalid task status %q", t.Status)
	}
	fm, err := yaml.Marshal(t)
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	b.WriteString(frontMatterDelim + "\n")
	b.Write(fm)
	b.WriteString(frontMatterDelim + "\n\n")
	fmt.Fprintf(&b, "# %s\n\n", t.Title)
	if len(t.Subtasks) > 0 {
		b.WriteString("## Subtasks\n\n")
		for _, st := range t.Subtasks {
			mark := " "
			if st.Done {
				mark = "x"
			}
			fmt.Fprintf(&b, "- [%s] %s\n", mark, st.Title)
		}
	}
	return b.Bytes(), nil
}

// Unmarshal parses a task file. The slug is not part of the content.
func Unmarshal(data []byte) (*model.Task, error) {
	fm, body, err := splitFrontMatter(data)
	if err != nil {
		return nil, err
	}
	var t model.Task
	if err := yaml.Unmarshal(fm, &t); err != nil {
		return nil, fmt.Errorf("parsing front matter: %w", err)
	}
	if !t.Status.Valid() {
		return nil, fmt.Errorf("invalid task status %q", t.Status)
	}
	if t.Subtasks, err = parseChecklist(body); err != nil {
		return nil, err
	}
	return &t, nil
}

func splitFrontMatter(data []byte) (fm, body []byte, err error) {
	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(content, frontMatterDelim+"\n") {
		return nil, nil, errors.New("missing front matter")
	}
	rest := content[len(frontMatterDelim)+1:]
	end := strings.Index(rest, "\n"+frontMatterDelim+"\n")
	if end < 0 {
		return nil, nil, errors.New("unterminated front matter")
	}
	return []byte(rest[:end+1]), []byte(rest[end+len(frontMatterDelim)+2:]), nil
}

// parseChecklist collects every task-list item in body.
func parseChecklist(body []byte) ([]model.Subtask, error) {
	root := md.Parser().Parse(text.NewReader(body))
	var subtasks []model.Subtask

	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		box, ok := n.(*east.TaskCheckBox)
		if !ok {
			return ast.WalkContinue, nil
		}
		block := box.Parent()
		lines := block.Lines()
		var parts []string
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			parts = append(parts, strings.TrimSpace(string(seg.Value(body))))
		}
		title := checkboxPrefix.ReplaceAllString(strings.Join(parts, " "), "")
		subtasks = append(subtasks, model.Subtask{Title: title, Done: box.IsChecked})
		return ast.WalkSkipChildren, nil
	})
	return subtasks, err
}
