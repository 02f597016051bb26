// Package memory provides an in-memory publisher for tests.
package memory

import (
	"context"
	"sync"

	"github.com/mboyd/paperflow/internal/publisher"
)

// Publisher records published events.
type Publisher struct {
	mu     sync.Mutex
	events []publisher.Event
}

// New returns an empty in-memory publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish appends the event.
func (p *Publisher) Publish(_ context.Context, ev publisher.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error { return nil }

// Events returns a copy of everything published so far.
func (p *Publisher) Events() []publisher.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publisher.Event, len(p.events))
	copy(out, p.events)
	return out
}
