// Package queue carries arrival events from the watcher to the dispatcher.
package queue

import (
	"context"
	"time"
)

// ArrivalEvent signals that a downloaded file is fully written and ready
// for dispatch. Events are consumed exactly once.
type ArrivalEvent struct {
	FilePath     string    `json:"file_path"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Queue is the hand-off channel between the arrival watcher and the
// dispatch loop.
type Queue interface {
	// Enqueue pushes an event or returns if the context ends.
	Enqueue(ctx context.Context, ev ArrivalEvent) error

	// Dequeue pops the next event, respecting context cancellation.
	// It returns ErrClosed once the queue is closed and drained.
	Dequeue(ctx context.Context) (ArrivalEvent, error)

	// Close stops the queue for shutdown.
	Close()
}
