package model

import "time"

// ChangeLogEntry documents one applied change. Entries are append-only.
type ChangeLogEntry struct {
	ID            int64        `json:"id,omitempty"`
	Slug          string       `json:"slug"`
	Title         string       `json:"title"`
	Date          time.Time    `json:"date"`
	FilesModified []FileRecord `json:"files_modified"`
	Reasoning     string       `json:"reasoning,omitempty"`
	Changes       []string     `json:"changes,omitempty"`
	Notes         string       `json:"notes,omitempty"`
	DispatchID    string       `json:"dispatch_id,omitempty"`
}

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskPaused    TaskStatus = "paused"
	TaskCompleted TaskStatus = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskPaused, TaskCompleted:
		return true
	}
	return false
}

type Subtask struct {
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

// Task tracks a multi-pass piece of work.
type Task struct {
	Slug     string     `yaml:"-"`
	Title    string     `yaml:"title"`
	Status   TaskStatus `yaml:"status"`
	Progress int        `yaml:"progress"`
	Command  string     `yaml:"command,omitempty"`
	Created  time.Time  `yaml:"created"`
	Updated  time.Time  `yaml:"updated"`
	Subtasks []Subtask  `yaml:"-"`
}

// Summary holds the results of an operation for display.
type Summary struct {
	Result   Result
	Dispatch *Dispatch
	// HandedOff is set when the dispatch was passed on and awaits a response.
	HandedOff bool
	Created   []string
	Modified  []string
	Failed    []string
	Message   string
}
