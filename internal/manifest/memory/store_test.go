package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mboyd/paperflow/internal/manifest"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store := New()
	ctx := context.Background()

	m := manifest.New("2026-08-27")
	m.Upsert(manifest.Task{ID: "2301.07041", Status: manifest.StatusSucceeded})
	require.NoError(t, store.Save(ctx, m))

	got, err := store.Load(ctx, "2026-08-27")
	require.NoError(t, err)
	require.Len(t, got.Tasks, 1)

	// Mutating the loaded copy must not touch the stored manifest.
	got.Upsert(manifest.Task{ID: "extra"})
	again, err := store.Load(ctx, "2026-08-27")
	require.NoError(t, err)
	require.Len(t, again.Tasks, 1)
}

func TestLoadMissing(t *testing.T) {
	t.Parallel()

	_, err := New().Load(context.Background(), "2026-01-01")
	require.ErrorIs(t, err, manifest.ErrNotFound)
}
