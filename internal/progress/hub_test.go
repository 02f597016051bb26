package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (s *captureSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, batch...)
	return nil
}

func (s *captureSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func validEvent(stage Stage) Event {
	return Event{
		RunID: UUIDToBytes(uuid.New()),
		TS:    time.Now().UTC(),
		Stage: stage,
		Date:  "2026-08-27",
	}
}

func TestHubDeliversToSinks(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{MaxBatchWait: 10 * time.Millisecond}, sink)

	hub.Emit(validEvent(StageRunStart))
	hub.Emit(validEvent(StageRunDone))

	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.all(), 2)
	require.True(t, sink.closed)
}

func TestHubDropsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{MaxBatchWait: 10 * time.Millisecond}, sink)

	hub.Emit(Event{Stage: StageRunStart}) // missing run id, date, ts
	ev := validEvent(StageDownloadDone)   // missing paper id and status
	hub.Emit(ev)

	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.all())
}

func TestHubEmitAfterClose(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{}, sink)
	require.NoError(t, hub.Close(context.Background()))

	hub.Emit(validEvent(StageRunStart))
	require.Empty(t, sink.all())
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	base := validEvent(StageDispatchDone)
	base.PaperID = "2301.07041"
	base.Status = "ok"
	require.NoError(t, base.Validate())

	missing := base
	missing.PaperID = ""
	require.Error(t, missing.Validate())

	unknown := validEvent("BOGUS")
	require.Error(t, unknown.Validate())

	negative := base
	negative.Dur = -time.Second
	require.Error(t, negative.Validate())
}
