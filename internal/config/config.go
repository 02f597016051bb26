// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Listing   ListingConfig   `mapstructure:"listing"`
	Download  DownloadConfig  `mapstructure:"download"`
	Watcher   WatcherConfig   `mapstructure:"watcher"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Manifest  ManifestConfig  `mapstructure:"manifest"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	StateDir  string          `mapstructure:"state_dir"`
}

// ServerConfig controls the status/metrics HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SchedulerConfig governs the daily run cadence.
type SchedulerConfig struct {
	// DailyRunTime is the local wall-clock time of the daily run, "HH:MM".
	DailyRunTime string `mapstructure:"daily_run_time"`
	// RunImmediately triggers one run at startup before entering the loop.
	RunImmediately bool `mapstructure:"run_immediately"`
	// CycleTimeout bounds one whole pipeline cycle.
	CycleTimeout time.Duration `mapstructure:"cycle_timeout"`
}

// ListingConfig selects and tunes the paper-listing fetcher.
type ListingConfig struct {
	// URL is the daily listing page.
	URL string `mapstructure:"url"`
	// Strategy selects the extraction strategy: nextdata, selectors, arxivlinks.
	Strategy string `mapstructure:"strategy"`
	// Fetcher selects the transport: colly or headless.
	Fetcher   string        `mapstructure:"fetcher"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// DownloadConfig governs the download manager.
type DownloadConfig struct {
	Dir          string        `mapstructure:"dir"`
	RetryCount   int           `mapstructure:"retry_count"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	Timeout      time.Duration `mapstructure:"timeout"`
	// MaxPapers caps how many listing records are downloaded per run; 0 = all.
	MaxPapers int `mapstructure:"max_papers"`
	// Delay is the pause between consecutive downloads.
	Delay time.Duration `mapstructure:"delay"`
}

// WatcherConfig governs arrival detection on the download directory.
type WatcherConfig struct {
	// Mode is "notify" (fsnotify) or "poll" (manifest scan).
	Mode           string        `mapstructure:"mode"`
	SettleInterval time.Duration `mapstructure:"settle_interval"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
}

// DispatchConfig governs submission to the processing endpoint.
type DispatchConfig struct {
	EndpointURL  string        `mapstructure:"endpoint_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RetryCount   int           `mapstructure:"retry_count"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// ManifestConfig selects the manifest store backend.
type ManifestConfig struct {
	// Provider is "file", "postgres", or "memory".
	Provider string `mapstructure:"provider"`
	// DSN is required when Provider is "postgres".
	DSN string `mapstructure:"dsn"`
}

// ArchiveConfig selects the off-pipeline archive backend.
type ArchiveConfig struct {
	// Provider is "noop", "local", or "gcs".
	Provider  string `mapstructure:"provider"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PublisherConfig selects the dispatch-result publisher backend.
type PublisherConfig struct {
	// Provider is "noop" or "pubsub".
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LoggingConfig toggles zap development features and the per-run log dir.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Dir         string `mapstructure:"dir"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAPERFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("scheduler.daily_run_time", "00:00")
	v.SetDefault("scheduler.run_immediately", false)
	v.SetDefault("scheduler.cycle_timeout", 2*time.Hour)
	v.SetDefault("listing.url", "https://huggingface.co/papers")
	v.SetDefault("listing.strategy", "nextdata")
	v.SetDefault("listing.fetcher", "colly")
	v.SetDefault("listing.user_agent", "paperflow/0.1")
	v.SetDefault("listing.timeout", 30*time.Second)
	v.SetDefault("download.dir", "downloaded_papers")
	v.SetDefault("download.retry_count", 3)
	v.SetDefault("download.retry_backoff", time.Second)
	v.SetDefault("download.timeout", 60*time.Second)
	v.SetDefault("download.max_papers", 10)
	v.SetDefault("download.delay", time.Second)
	v.SetDefault("watcher.mode", "notify")
	v.SetDefault("watcher.settle_interval", 2*time.Second)
	v.SetDefault("watcher.poll_interval", 5*time.Second)
	v.SetDefault("dispatch.endpoint_url", "http://localhost:8000/process")
	v.SetDefault("dispatch.timeout", 60*time.Second)
	v.SetDefault("dispatch.retry_count", 3)
	v.SetDefault("dispatch.retry_backoff", 2*time.Second)
	v.SetDefault("manifest.provider", "file")
	v.SetDefault("archive.provider", "noop")
	v.SetDefault("archive.prefix", "papers")
	v.SetDefault("publisher.provider", "noop")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.dir", "logs")
	v.SetDefault("state_dir", "state")
}

var runTimePattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if !runTimePattern.MatchString(c.Scheduler.DailyRunTime) {
		return fmt.Errorf("scheduler.daily_run_time must be HH:MM, got %q", c.Scheduler.DailyRunTime)
	}
	if c.Listing.URL == "" {
		return fmt.Errorf("listing.url must be set")
	}
	if c.Download.Dir == "" {
		return fmt.Errorf("download.dir must be set")
	}
	if c.Download.RetryCount < 1 {
		return fmt.Errorf("download.retry_count must be >= 1")
	}
	if c.Watcher.Mode != "notify" && c.Watcher.Mode != "poll" {
		return fmt.Errorf("watcher.mode must be notify or poll, got %q", c.Watcher.Mode)
	}
	if c.Watcher.SettleInterval <= 0 {
		return fmt.Errorf("watcher.settle_interval must be > 0")
	}
	if c.Dispatch.EndpointURL == "" {
		return fmt.Errorf("dispatch.endpoint_url must be set")
	}
	if c.Dispatch.RetryCount < 1 {
		return fmt.Errorf("dispatch.retry_count must be >= 1")
	}
	if c.Manifest.Provider == "postgres" && c.Manifest.DSN == "" {
		return fmt.Errorf("manifest.provider is 'postgres' but manifest.dsn is not set")
	}
	if c.Archive.Provider == "gcs" && c.Archive.GCSBucket == "" {
		return fmt.Errorf("archive.provider is 'gcs' but archive.gcs_bucket is not set")
	}
	if c.Publisher.Provider == "pubsub" && (c.Publisher.ProjectID == "" || c.Publisher.Topic == "") {
		return fmt.Errorf("publisher.provider is 'pubsub' but project_id or topic is not set")
	}
	return nil
}
