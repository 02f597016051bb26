package sha256

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHash(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", got)
}

func TestHashFile(t *testing.T) {
	t.Parallel()

	h := New()
	path := filepath.Join(t.TempDir(), "payload.pdf")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	fromFile, err := h.HashFile(path)
	require.NoError(t, err)

	fromBytes, err := h.Hash([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, fromBytes, fromFile)
}

func TestHashFileMissing(t *testing.T) {
	t.Parallel()

	h := New()
	_, err := h.HashFile(filepath.Join(t.TempDir(), "nope.pdf"))
	require.Error(t, err)
}
