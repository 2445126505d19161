package editor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sokinpui/pfx.go/internal/fs"
	"github.com/sokinpui/pfx.go/model"
)

// Writer applies file changes to the source tree. Paths are relative to
// the tree root.
type Writer interface {
	Write(rel string, lines []string) error
	Delete(rel string) error
	Rename(from, to string) error
	Close() error
}

// Disk writes straight to the filesystem. Deleted files go to the trash
// directory instead of being removed.
type Disk struct {
	root  string
	trash string
}

// NewDisk creates a Disk writer rooted at root.
func NewDisk(root, trashDir string) *Disk {
	return &Disk{root: root, trash: trashDir}
}

func (d *Disk) abs(rel string) string {
	return filepath.Join(d.root, filepath.FromSlash(rel))
}

func (d *Disk) Write(rel string, lines []string) error {
	p := d.abs(rel)
	if err := fs.CreateDirs([]string{p}); err != nil {
		return err
	}
	return os.WriteFile(p, []byte(fs.JoinLines(lines)), 0644)
}

func (d *Disk) Delete(rel string) error {
	return fs.TrashFile(d.abs(rel), d.trash, d.root)
}

func (d *Disk) Rename(from, to string) error {
	return renameFile(d.abs(from), d.abs(to))
}

func (d *Disk) Close() error { return nil }

func renameFile(from, to string) error {
	if _, err := os.Stat(to); err == nil {
		return fmt.Errorf("%s already exists", to)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := fs.CreateDirs([]string{to}); err != nil {
		return err
	}
	return os.Rename(from, to)
}

// Apply performs one change through w.
func Apply(w Writer, c model.FileChange) error {
	switch c.Action {
	case model.ActionCreate, model.ActionModify:
		return w.Write(c.Path, c.Content)
	case model.ActionDelete:
		return w.Delete(c.Path)
	case model.ActionRename:
		return w.Rename(c.Path, c.NewPath)
	default:
		return fmt.Errorf("unknown action %q for %s", c.Action, c.Path)
	}
}

// ProcessSequentially runs processFn over items in order, reporting
// progress after each one.
func ProcessSequentially[T any](
	items []T,
	processFn func(item T) (path string, success bool),
	progressCb func(int),
) (succeeded, failed []string) {
	for i, item := range items {
		path, success := processFn(item)
		if success {
			succeeded = append(succeeded, path)
		} else {
			failed = append(failed, path)
		}
		if progressCb != nil {
			progressCb(i + 1)
		}
	}
	return succeeded, failed
}
