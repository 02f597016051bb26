package manifest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUpsertAndCounts(t *testing.T) {
	t.Parallel()

	m := New("2026-08-27")
	m.Upsert(Task{ID: "2301.07041", Status: StatusSucceeded})
	m.Upsert(Task{ID: "2302.12345", Status: StatusFailed, Error: "HTTP 404"})
	m.Upsert(Task{ID: "2303.00001", Status: StatusPending})

	succeeded, failed := m.Counts()
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, failed)

	got, ok := m.Task("2302.12345")
	require.True(t, ok)
	require.Equal(t, "HTTP 404", got.Error)
}

func TestUpsertReplaces(t *testing.T) {
	t.Parallel()

	m := New("2026-08-27")
	m.Upsert(Task{ID: "2301.07041", Status: StatusDownloading, Attempts: 1})
	m.Upsert(Task{ID: "2301.07041", Status: StatusSucceeded, Attempts: 2})

	got, ok := m.Task("2301.07041")
	require.True(t, ok)
	require.Equal(t, StatusSucceeded, got.Status)
	require.Equal(t, 2, got.Attempts)
	require.Len(t, m.Tasks, 1)
}

func TestSucceededOrdered(t *testing.T) {
	t.Parallel()

	m := New("2026-08-27")
	m.Upsert(Task{ID: "b", Status: StatusSucceeded})
	m.Upsert(Task{ID: "a", Status: StatusSucceeded})
	m.Upsert(Task{ID: "c", Status: StatusFailed})

	got := m.Succeeded()
	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].ID)
	require.Equal(t, "b", got[1].ID)
}

func TestMarkDispatched(t *testing.T) {
	t.Parallel()

	m := New("2026-08-27")
	m.Upsert(Task{ID: "a", Status: StatusSucceeded})

	at := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	require.True(t, m.MarkDispatched("a", at))
	require.False(t, m.MarkDispatched("missing", at))

	got, _ := m.Task("a")
	require.True(t, got.Dispatched)
	require.Equal(t, at, got.UpdatedAt)
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	m := New("2026-08-27")
	m.Upsert(Task{ID: "a", Status: StatusPending})

	clone := m.Clone()
	clone.Upsert(Task{ID: "a", Status: StatusSucceeded})

	got, _ := m.Task("a")
	require.Equal(t, StatusPending, got.Status)
}
