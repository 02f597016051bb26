package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mboyd/paperflow/internal/publisher"
)

func TestPublishRecords(t *testing.T) {
	t.Parallel()

	p := New()
	require.NoError(t, p.Publish(context.Background(), publisher.Event{PaperID: "2301.07041", Status: "ok"}))
	require.NoError(t, p.Publish(context.Background(), publisher.Event{PaperID: "2302.12345", Status: "error"}))

	events := p.Events()
	require.Len(t, events, 2)
	require.Equal(t, "2301.07041", events[0].PaperID)

	// The returned slice is a copy.
	events[0].PaperID = "mutated"
	require.Equal(t, "2301.07041", p.Events()[0].PaperID)
}
