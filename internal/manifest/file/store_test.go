package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mboyd/paperflow/internal/manifest"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	m := manifest.New("2026-08-27")
	m.Upsert(manifest.Task{
		ID:       "2301.07041",
		Title:    "Scaling Laws Revisited",
		Status:   manifest.StatusSucceeded,
		Attempts: 1,
	})
	require.NoError(t, store.Save(ctx, m))

	got, err := store.Load(ctx, "2026-08-27")
	require.NoError(t, err)
	task, ok := got.Task("2301.07041")
	require.True(t, ok)
	require.Equal(t, manifest.StatusSucceeded, task.Status)
	require.Equal(t, 1, task.Attempts)
}

func TestLoadMissing(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load(context.Background(), "2026-01-01")
	require.ErrorIs(t, err, manifest.ErrNotFound)
}

func TestSaveOverwrites(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)
	ctx := context.Background()

	m := manifest.New("2026-08-27")
	m.Upsert(manifest.Task{ID: "a", Status: manifest.StatusDownloading})
	require.NoError(t, store.Save(ctx, m))

	m.Upsert(manifest.Task{ID: "a", Status: manifest.StatusSucceeded})
	require.NoError(t, store.Save(ctx, m))

	got, err := store.Load(ctx, "2026-08-27")
	require.NoError(t, err)
	task, _ := got.Task("a")
	require.Equal(t, manifest.StatusSucceeded, task.Status)

	// No stray temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "manifest_2026-08-27.json", filepath.Base(entries[0].Name()))
}

func TestRejectsBadDate(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load(context.Background(), "../../etc/passwd")
	require.Error(t, err)

	err = store.Save(context.Background(), manifest.New("20260827"))
	require.Error(t, err)
}
