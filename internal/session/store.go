package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/sokinpui/pfx.go/model"
)

const (
	StateDirName  = ".pfx"
	stateFileName = "session.json"
	SnapshotDir   = "snapshots"
	TrashDir      = "trash"
)

// Phase is the lifecycle position of the session.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseDispatched  Phase = "dispatched"
	PhaseCompleted   Phase = "completed"
	PhaseInterrupted Phase = "interrupted"
)

// State is the persisted session.
type State struct {
	Phase          Phase           `json:"phase"`
	LastCommand    *model.Command  `json:"last_command,omitempty"`
	Dispatch       *model.Dispatch `json:"dispatch,omitempty"`
	LastResult     *model.Result   `json:"last_result,omitempty"`
	PendingOptions []model.Option  `json:"pending_options,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func idle() State {
	return State{Phase: PhaseIdle}
}

// clone returns a State that shares nothing mutable with s.
func (s State) clone() State {
	c := s
	c.Dispatch = s.Dispatch.Clone()
	if s.LastCommand != nil {
		cmd := *s.LastCommand
		c.LastCommand = &cmd
	}
	if s.LastResult != nil {
		res := *s.LastResult
		res.Options = slices.Clone(s.LastResult.Options)
		res.Files = slices.Clone(s.LastResult.Files)
		res.Failed = slices.Clone(s.LastResult.Failed)
		res.Delta = slices.Clone(s.LastResult.Delta)
		c.LastResult = &res
	}
	c.PendingOptions = slices.Clone(s.PendingOptions)
	return c
}

// Store reads and writes the session file under the state directory.
type Store struct {
	statePath string
	Dir       string
}

// FindRoot returns the git top-level, falling back to the working directory.
func FindRoot() (string, error) {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	output, err := cmd.Output()
	if err == nil {
		return strings.TrimSpace(string(output)), nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("could not get current working directory: %w", err)
	}
	return wd, nil
}

// NewStore creates the state directory under root if needed.
func NewStore(root string) (*Store, error) {
	dir := filepath.Join(root, StateDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create state directory: %w", err)
	}
	return &Store{
		statePath: filepath.Join(dir, stateFileName),
		Dir:       dir,
	}, nil
}

// Load reads the session. A missing file is an idle session.
func (s *Store) Load() (State, error) {
	data, err := os.ReadFile(s.statePath)
	if errors.Is(err, os.ErrNotExist) {
		return idle(), nil
	}
	if err != nil {
		return State{}, err
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("invalid session file %s: %w", s.statePath, err)
	}
	if st.Phase == "" {
		st.Phase = PhaseIdle
	}
	return st, nil
}

// Save writes the session to a temp file and renames it into place.
func (s *Store) Save(st State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.Dir, stateFileName+".*")
	if err != nil {
		return fmt.Errorf("could not create temp session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.statePath)
}

// Clear removes the session file and every snapshot.
func (s *Store) Clear() error {
	if err := os.Remove(s.statePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return os.RemoveAll(filepath.Join(s.Dir, SnapshotDir))
}

// SnapshotPath is the content-copy directory for a dispatch.
func (s *Store) SnapshotPath(id string) string {
	return filepath.Join(s.Dir, SnapshotDir, id)
}

// TrashPath is where deleted files are moved.
func (s *Store) TrashPath() string {
	return filepath.Join(s.Dir, TrashDir)
}

// Prune removes snapshot directories not named in keep.
func (s *Store) Prune(keep ...string) error {
	root := filepath.Join(s.Dir, SnapshotDir)
	entries, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	kept := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		kept[k] = struct{}{}
	}
	for _, e := range entries {
		if _, ok := kept[e.Name()]; ok {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
