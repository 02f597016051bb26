package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProcessedSetRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "processed_files.json")
	set, err := LoadProcessedSet(path)
	require.NoError(t, err)
	require.Zero(t, set.Len())

	at := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	require.NoError(t, set.Mark("/data/2026-08-27/a.pdf", "hash-a", at))
	require.True(t, set.Contains("/data/2026-08-27/a.pdf", "hash-a"))

	// Same path, different bytes: not processed.
	require.False(t, set.Contains("/data/2026-08-27/a.pdf", "hash-b"))
	require.False(t, set.Contains("/data/2026-08-27/b.pdf", "hash-a"))

	// A fresh load sees the persisted entries.
	reloaded, err := LoadProcessedSet(path)
	require.NoError(t, err)
	require.Equal(t, 1, reloaded.Len())
	require.True(t, reloaded.Contains("/data/2026-08-27/a.pdf", "hash-a"))
}

func TestProcessedSetBadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "processed_files.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := LoadProcessedSet(path)
	require.Error(t, err)
}
