package headless

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mboyd/paperflow/internal/listing/extract"
)

func TestNewChromedpDefaults(t *testing.T) {
	t.Parallel()

	f, err := NewChromedp(Config{URL: "https://huggingface.co/papers"}, extract.NewSelectors(), nil)
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, 45*time.Second, f.cfg.NavigationTimeout)
	require.NotNil(t, f.logger)
}

func TestResolveURLPlaceholder(t *testing.T) {
	t.Parallel()

	date := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	require.Equal(t,
		"https://huggingface.co/papers/date/2026-08-27",
		resolveURL("https://huggingface.co/papers/date/{date}", date),
	)
}

func TestNoopFetchFails(t *testing.T) {
	t.Parallel()

	_, err := NewNoop().Fetch(context.Background(), time.Now())
	require.Error(t, err)
	require.Contains(t, err.Error(), "not configured")
}
