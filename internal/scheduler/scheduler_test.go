package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c fakeClock) Now() time.Time { return c.t }

func TestNextRunSameDay(t *testing.T) {
	t.Parallel()

	s, err := New(Config{DailyRunTime: "14:30"}, fakeClock{}, nil)
	require.NoError(t, err)

	now := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)
	next := s.nextRun(now)
	require.Equal(t, time.Date(2026, 8, 27, 14, 30, 0, 0, time.UTC), next)
}

func TestNextRunRollsToTomorrow(t *testing.T) {
	t.Parallel()

	s, err := New(Config{DailyRunTime: "14:30"}, fakeClock{}, nil)
	require.NoError(t, err)

	now := time.Date(2026, 8, 27, 15, 0, 0, 0, time.UTC)
	next := s.nextRun(now)
	require.Equal(t, time.Date(2026, 8, 28, 14, 30, 0, 0, time.UTC), next)

	// Exactly at the slot the next run is tomorrow, not now.
	atSlot := time.Date(2026, 8, 27, 14, 30, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, 8, 28, 14, 30, 0, 0, time.UTC), s.nextRun(atSlot))
}

func TestNewRejectsBadTime(t *testing.T) {
	t.Parallel()

	for _, bad := range []string{"", "25:00", "12:75", "noon"} {
		_, err := New(Config{DailyRunTime: bad}, fakeClock{}, nil)
		require.Error(t, err, bad)
	}
}

func TestRunImmediately(t *testing.T) {
	t.Parallel()

	// The scheduled slot is far away; only the immediate run fires.
	now := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)
	s, err := New(Config{DailyRunTime: "23:59", RunImmediately: true}, fakeClock{t: now}, nil)
	require.NoError(t, err)

	var runs atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())
	job := func(context.Context, time.Time) {
		runs.Add(1)
		cancel()
	}
	err = s.Run(ctx, job)
	require.ErrorIs(t, err, context.Canceled)
	require.EqualValues(t, 1, runs.Load())
}
