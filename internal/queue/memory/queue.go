// Package memory provides the bounded in-memory arrival queue.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mboyd/paperflow/internal/queue"
)

// ErrClosed is returned by Dequeue after Close once the queue is drained.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan queue.ArrivalEvent
	closeMu sync.Mutex
	closed  bool
}

// New constructs a queue with the provided capacity.
func New(capacity int) *Queue {
	return &Queue{
		ch: make(chan queue.ArrivalEvent, capacity),
	}
}

// Enqueue pushes an event into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, ev queue.ArrivalEvent) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- ev:
		return nil
	}
}

// Dequeue pops the next event, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (queue.ArrivalEvent, error) {
	select {
	case <-ctx.Done():
		return queue.ArrivalEvent{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case ev, ok := <-q.ch:
		if !ok {
			return queue.ArrivalEvent{}, ErrClosed
		}
		return ev, nil
	}
}

// Close closes the underlying channel for shutdown. Buffered events remain
// readable until drained.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
