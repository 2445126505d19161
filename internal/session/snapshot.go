package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/sync/errgroup"

	"github.com/sokinpui/pfx.go/internal/fs"
	"github.com/sokinpui/pfx.go/model"
)

// Tree is the part of the source tree snapshots need.
type Tree interface {
	Abs(rel string) string
	Hash(rel string) (string, error)
}

const hashWorkers = 8

// Capture hashes every path and copies existing files into dir. A path that
// does not exist is recorded with an empty hash.
func Capture(ctx context.Context, tree Tree, dir string, paths []string) (model.Snapshot, error) {
	snap := model.Snapshot{
		TakenAt: time.Now().UTC(),
		Files:   make(map[string]string, len(paths)),
		Dir:     dir,
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return model.Snapshot{}, fmt.Errorf("could not create snapshot directory: %w", err)
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(hashWorkers)
	for _, p := range paths {
		p := p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			h, err := tree.Hash(p)
			if err != nil {
				return fmt.Errorf("hashing %s: %w", p, err)
			}
			if h != "" {
				if err := fs.CopyFile(tree.Abs(p), copyPath(dir, p)); err != nil {
					return fmt.Errorf("copying %s: %w", p, err)
				}
			}
			mu.Lock()
			snap.Files[p] = h
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.Snapshot{}, err
	}
	return snap, nil
}

// Rebase records content the interpreter wrote itself, so a later Delta
// only reports edits made by someone else. nil lines mean the file is gone.
func Rebase(snap *model.Snapshot, rel string, lines []string) error {
	if snap.Files == nil {
		snap.Files = make(map[string]string)
	}
	dst := copyPath(snap.Dir, rel)
	if lines == nil {
		snap.Files[rel] = ""
		if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(dst, []byte(fs.JoinLines(lines)), 0644); err != nil {
		return err
	}
	snap.Files[rel] = fs.HashLines(lines)
	return nil
}

// Delta compares the tree against snap and returns one entry per changed
// path, sorted by path.
func Delta(tree Tree, snap model.Snapshot) ([]model.Delta, error) {
	var deltas []model.Delta
	for p, before := range snap.Files {
		now, err := tree.Hash(p)
		if err != nil {
			return nil, fmt.Errorf("hashing %s: %w", p, err)
		}
		if now == before {
			continue
		}

		d := model.Delta{Path: p, Kind: model.DeltaModified}
		switch {
		case before == "":
			d.Kind = model.DeltaCreated
		case now == "":
			d.Kind = model.DeltaDeleted
		}

		var old, cur string
		if before != "" {
			old, err = readString(copyPath(snap.Dir, p))
			if err != nil {
				return nil, err
			}
		}
		if now != "" {
			cur, err = readString(tree.Abs(p))
			if err != nil {
				return nil, err
			}
		}
		d.Diff, err = difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        diffLines(old),
			B:        diffLines(cur),
			FromFile: "a/" + p,
			ToFile:   "b/" + p,
			Context:  3,
		})
		if err != nil {
			return nil, err
		}
		deltas = append(deltas, d)
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i].Path < deltas[j].Path })
	return deltas, nil
}

func copyPath(dir, rel string) string {
	return filepath.Join(dir, filepath.FromSlash(rel))
}

// diffLines splits s keeping terminators, without the phantom empty line
// difflib.SplitLines adds after a trailing newline.
func diffLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if last := len(lines) - 1; lines[last] == "" {
		lines = lines[:last]
	} else {
		lines[last] += "\n"
	}
	return lines
}

func readString(p string) (string, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
