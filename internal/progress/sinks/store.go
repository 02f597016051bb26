package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/mboyd/paperflow/internal/progress"
)

// RunSnapshot is the live view of one run, built from the progress stream.
// It backs the status API while a run is still in flight.
type RunSnapshot struct {
	RunID       string           `json:"run_id"`
	Date        string           `json:"date"`
	State       string           `json:"state"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Papers      int64            `json:"papers"`
	Downloads   map[string]int64 `json:"downloads"`
	Dispatches  map[string]int64 `json:"dispatches"`
	Note        string           `json:"note,omitempty"`
}

// Run states exposed by snapshots.
const (
	RunStateRunning = "running"
	RunStateDone    = "done"
	RunStateError   = "error"
)

// SnapshotStore aggregates events into per-date run snapshots and answers
// queries from the status API.
type SnapshotStore struct {
	mu     sync.RWMutex
	byDate map[string]*RunSnapshot
	latest string
}

// NewSnapshotStore returns an empty store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{byDate: make(map[string]*RunSnapshot)}
}

// Consume folds the batch into the snapshots.
func (s *SnapshotStore) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		s.apply(evt)
	}
	return nil
}

func (s *SnapshotStore) apply(evt progress.Event) {
	snap := s.byDate[evt.Date]
	if snap == nil {
		snap = &RunSnapshot{
			Date:       evt.Date,
			State:      RunStateRunning,
			Downloads:  make(map[string]int64),
			Dispatches: make(map[string]int64),
		}
		s.byDate[evt.Date] = snap
	}
	if s.latest == "" || evt.Date > s.latest {
		s.latest = evt.Date
	}

	switch evt.Stage {
	case progress.StageRunStart:
		snap.RunID = evt.RunUUID().String()
		snap.State = RunStateRunning
		snap.StartedAt = evt.TS
		snap.CompletedAt = nil
	case progress.StageListingDone:
		snap.Papers = evt.Papers
	case progress.StageDownloadDone:
		snap.Downloads[evt.Status]++
	case progress.StageDispatchDone:
		snap.Dispatches[evt.Status]++
	case progress.StageRunDone:
		ts := evt.TS
		snap.State = RunStateDone
		snap.CompletedAt = &ts
	case progress.StageRunError:
		ts := evt.TS
		snap.State = RunStateError
		snap.CompletedAt = &ts
		snap.Note = evt.Note
	}
}

// Close implements the Sink interface; it performs no action.
func (s *SnapshotStore) Close(context.Context) error {
	return nil
}

// Snapshot returns the run snapshot for date.
func (s *SnapshotStore) Snapshot(date string) (RunSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.byDate[date]
	if !ok {
		return RunSnapshot{}, false
	}
	return cloneSnapshot(snap), true
}

// Latest returns the most recent run snapshot by date.
func (s *SnapshotStore) Latest() (RunSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == "" {
		return RunSnapshot{}, false
	}
	return cloneSnapshot(s.byDate[s.latest]), true
}

func cloneSnapshot(snap *RunSnapshot) RunSnapshot {
	out := *snap
	out.Downloads = make(map[string]int64, len(snap.Downloads))
	for k, v := range snap.Downloads {
		out.Downloads[k] = v
	}
	out.Dispatches = make(map[string]int64, len(snap.Dispatches))
	for k, v := range snap.Dispatches {
		out.Dispatches[k] = v
	}
	if snap.CompletedAt != nil {
		ts := *snap.CompletedAt
		out.CompletedAt = &ts
	}
	return out
}
