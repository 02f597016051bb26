// Package publisher defines the interface for announcing dispatch outcomes
// to downstream consumers. The abstraction keeps the pipeline independent
// of a specific message broker.
package publisher

import (
	"context"
	"time"
)

// Event is one dispatch outcome.
type Event struct {
	RunID      string    `json:"run_id"`
	Date       string    `json:"date"`
	PaperID    string    `json:"paper_id"`
	SourceFile string    `json:"source_file"`
	Status     string    `json:"status"`
	At         time.Time `json:"at"`
}

// Publisher announces dispatch outcomes.
type Publisher interface {
	// Publish sends one event. Implementations may be fire-and-forget.
	Publish(ctx context.Context, ev Event) error

	// Close cleans up any client connections and resources.
	Close() error
}

// NoOpPublisher is the default when no broker is configured.
type NoOpPublisher struct{}

// Publish for NoOpPublisher does nothing and returns nil.
func (n *NoOpPublisher) Publish(_ context.Context, _ Event) error { return nil }

// Close for NoOpPublisher does nothing and returns nil.
func (n *NoOpPublisher) Close() error { return nil }
