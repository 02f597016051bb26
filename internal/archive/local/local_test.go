package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveWritesUnderBase(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p, err := New(dir)
	require.NoError(t, err)

	err = p.Save(context.Background(), "2026-08-27/2301.07041.pdf", []byte("%PDF body"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "2026-08-27", "2301.07041.pdf"))
	require.NoError(t, err)
	require.Equal(t, "%PDF body", string(data))
}

func TestSaveRejectsEscape(t *testing.T) {
	t.Parallel()

	p, err := New(t.TempDir())
	require.NoError(t, err)

	err = p.Save(context.Background(), "../outside.pdf", []byte("x"))
	require.Error(t, err)
}

func TestNewRequiresDir(t *testing.T) {
	t.Parallel()

	_, err := New("  ")
	require.Error(t, err)
}
