// Package manifest defines the persisted per-date record of download
// outcomes. The manifest is what makes a re-run of the same date idempotent:
// tasks already marked succeeded are skipped, and tasks already dispatched
// are never dispatched again.
package manifest

import (
	"context"
	"errors"
	"sort"
	"time"
)

// ErrNotFound is returned by Store.Load when no manifest exists for a date.
var ErrNotFound = errors.New("manifest not found")

// TaskStatus is the lifecycle state of one download task.
type TaskStatus string

const (
	StatusPending     TaskStatus = "pending"
	StatusDownloading TaskStatus = "downloading"
	StatusSucceeded   TaskStatus = "succeeded"
	StatusFailed      TaskStatus = "failed"
)

// Task is the recorded outcome of one paper download.
type Task struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	SourceURL  string     `json:"source_url"`
	PDFURL     string     `json:"pdf_url"`
	Path       string     `json:"path"`
	Status     TaskStatus `json:"status"`
	Attempts   int        `json:"attempts"`
	Error      string     `json:"error,omitempty"`
	Dispatched bool       `json:"dispatched"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Manifest maps paper id to its task outcome for one run date.
type Manifest struct {
	Date  string           `json:"date"`
	Tasks map[string]*Task `json:"tasks"`
}

// New returns an empty manifest for date (YYYY-MM-DD).
func New(date string) *Manifest {
	return &Manifest{
		Date:  date,
		Tasks: make(map[string]*Task),
	}
}

// Upsert records the current state of a task, replacing any prior entry
// with the same id.
func (m *Manifest) Upsert(t Task) {
	if m.Tasks == nil {
		m.Tasks = make(map[string]*Task)
	}
	copied := t
	m.Tasks[t.ID] = &copied
}

// Task returns the entry for id, if present.
func (m *Manifest) Task(id string) (Task, bool) {
	t, ok := m.Tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// MarkDispatched flags the task for id as dispatched.
func (m *Manifest) MarkDispatched(id string, at time.Time) bool {
	t, ok := m.Tasks[id]
	if !ok {
		return false
	}
	t.Dispatched = true
	t.UpdatedAt = at
	return true
}

// Succeeded returns the succeeded tasks ordered by id.
func (m *Manifest) Succeeded() []Task {
	var out []Task
	for _, t := range m.Tasks {
		if t.Status == StatusSucceeded {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Counts tallies terminal task states.
func (m *Manifest) Counts() (succeeded, failed int) {
	for _, t := range m.Tasks {
		switch t.Status {
		case StatusSucceeded:
			succeeded++
		case StatusFailed:
			failed++
		}
	}
	return succeeded, failed
}

// Clone returns a deep copy.
func (m *Manifest) Clone() *Manifest {
	out := New(m.Date)
	for id, t := range m.Tasks {
		copied := *t
		out.Tasks[id] = &copied
	}
	return out
}

// Store persists manifests. The pipeline is the single writer for a given
// date; Save replaces the stored manifest wholesale.
type Store interface {
	// Load returns the manifest for date, or ErrNotFound.
	Load(ctx context.Context, date string) (*Manifest, error)

	// Save persists the manifest, overwriting any prior version for its date.
	Save(ctx context.Context, m *Manifest) error

	// Close releases store resources.
	Close() error
}
