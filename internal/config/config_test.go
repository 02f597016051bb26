package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "00:00", cfg.Scheduler.DailyRunTime)
	require.Equal(t, "colly", cfg.Listing.Fetcher)
	require.Equal(t, "nextdata", cfg.Listing.Strategy)
	require.Equal(t, "downloaded_papers", cfg.Download.Dir)
	require.Equal(t, 3, cfg.Download.RetryCount)
	require.Equal(t, "notify", cfg.Watcher.Mode)
	require.Equal(t, 2*time.Second, cfg.Watcher.SettleInterval)
	require.Equal(t, "file", cfg.Manifest.Provider)
	require.Equal(t, "noop", cfg.Archive.Provider)
	require.Equal(t, "noop", cfg.Publisher.Provider)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paperflow.yaml")
	payload := `
scheduler:
  daily_run_time: "03:30"
  run_immediately: true
download:
  retry_count: 5
  retry_backoff: 2s
dispatch:
  endpoint_url: http://processor:9000/process
  timeout: 45s
watcher:
  mode: poll
  settle_interval: 3s
`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "03:30", cfg.Scheduler.DailyRunTime)
	require.True(t, cfg.Scheduler.RunImmediately)
	require.Equal(t, 5, cfg.Download.RetryCount)
	require.Equal(t, 2*time.Second, cfg.Download.RetryBackoff)
	require.Equal(t, "http://processor:9000/process", cfg.Dispatch.EndpointURL)
	require.Equal(t, "poll", cfg.Watcher.Mode)
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad run time",
			mutate:  func(c *Config) { c.Scheduler.DailyRunTime = "25:99" },
			wantErr: "daily_run_time",
		},
		{
			name:    "bad watcher mode",
			mutate:  func(c *Config) { c.Watcher.Mode = "inotify" },
			wantErr: "watcher.mode",
		},
		{
			name:    "zero retry count",
			mutate:  func(c *Config) { c.Download.RetryCount = 0 },
			wantErr: "download.retry_count",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Manifest.Provider = "postgres" },
			wantErr: "manifest.dsn",
		},
		{
			name:    "gcs without bucket",
			mutate:  func(c *Config) { c.Archive.Provider = "gcs" },
			wantErr: "gcs_bucket",
		},
		{
			name:    "pubsub without topic",
			mutate:  func(c *Config) { c.Publisher.Provider = "pubsub" },
			wantErr: "pubsub",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
