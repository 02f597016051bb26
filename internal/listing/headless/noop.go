package headless

import (
	"context"
	"errors"
	"time"

	"github.com/mboyd/paperflow/internal/listing"
)

// Noop stands in when the headless strategy is selected but no browser is
// available. It always fails.
type Noop struct{}

// NewNoop returns the disabled headless fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch always returns an error.
func (n *Noop) Fetch(_ context.Context, _ time.Time) ([]listing.PaperRecord, error) {
	return nil, errors.New("headless fetcher not configured")
}
