// Package app initializes and holds the long-lived services of the
// pipeline, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/mboyd/paperflow/internal/api"
	"github.com/mboyd/paperflow/internal/archive"
	archivegcs "github.com/mboyd/paperflow/internal/archive/gcs"
	archivelocal "github.com/mboyd/paperflow/internal/archive/local"
	systemclock "github.com/mboyd/paperflow/internal/clock/system"
	"github.com/mboyd/paperflow/internal/config"
	"github.com/mboyd/paperflow/internal/dispatch"
	"github.com/mboyd/paperflow/internal/download"
	"github.com/mboyd/paperflow/internal/id/uuid"
	"github.com/mboyd/paperflow/internal/listing"
	collyfetcher "github.com/mboyd/paperflow/internal/listing/colly"
	"github.com/mboyd/paperflow/internal/listing/extract"
	"github.com/mboyd/paperflow/internal/listing/headless"
	"github.com/mboyd/paperflow/internal/logging"
	"github.com/mboyd/paperflow/internal/manifest"
	manifestfile "github.com/mboyd/paperflow/internal/manifest/file"
	manifestmem "github.com/mboyd/paperflow/internal/manifest/memory"
	manifestpg "github.com/mboyd/paperflow/internal/manifest/postgres"
	"github.com/mboyd/paperflow/internal/pipeline"
	"github.com/mboyd/paperflow/internal/progress"
	"github.com/mboyd/paperflow/internal/progress/sinks"
	"github.com/mboyd/paperflow/internal/publisher"
	publishermem "github.com/mboyd/paperflow/internal/publisher/memory"
	publisherpubsub "github.com/mboyd/paperflow/internal/publisher/pubsub"
	queuemem "github.com/mboyd/paperflow/internal/queue/memory"
	"github.com/mboyd/paperflow/internal/scheduler"
	"github.com/mboyd/paperflow/internal/watcher"
)

const arrivalQueueCapacity = 256

// App holds the shared services for one process: the runner and its
// collaborators, the progress hub, and the HTTP server. It is built once
// at startup and torn down with Close.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	store     manifest.Store
	archive   archive.Provider
	publisher publisher.Publisher
	queue     *queuemem.Queue
	watcher   *watcher.Watcher
	hub       *progress.Hub
	snapshots *sinks.SnapshotStore
	registry  *prometheus.Registry
	runner    *pipeline.Runner
	scheduler *scheduler.Scheduler
	server    *api.Server
}

// New builds the full service graph from cfg, failing fast when any
// backend cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	logger.Info("initializing services")

	store, err := newManifestStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize manifest store: %w", err)
	}
	arc, err := newArchiveProvider(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize archive: %w", err)
	}
	pub, err := newPublisher(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize publisher: %w", err)
	}
	fetcher, err := newFetcher(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize listing fetcher: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		return nil, fmt.Errorf("register pipeline metrics: %w", err)
	}
	snapshots := sinks.NewSnapshotStore()
	hub := progress.NewHub(progress.Config{Logger: logger},
		sinks.NewLogSink(logger), promSink, snapshots)

	clk := systemclock.New()
	q := queuemem.New(arrivalQueueCapacity)
	set, err := watcher.LoadProcessedSet(filepath.Join(cfg.StateDir, "processed_files.json"))
	if err != nil {
		return nil, fmt.Errorf("load processed set: %w", err)
	}
	w := watcher.New(watcher.Config{
		Root:           cfg.Download.Dir,
		Mode:           cfg.Watcher.Mode,
		SettleInterval: cfg.Watcher.SettleInterval,
		PollInterval:   cfg.Watcher.PollInterval,
	}, q, set, store, clk, logger)

	runner := pipeline.New(pipeline.Config{
		DownloadDir:  cfg.Download.Dir,
		StateDir:     cfg.StateDir,
		LogDir:       cfg.Logging.Dir,
		DevLogging:   cfg.Logging.Development,
		CycleTimeout: cfg.Scheduler.CycleTimeout,
	}, pipeline.Deps{
		Fetcher: fetcher,
		Downloader: download.New(download.Config{
			RetryCount:   cfg.Download.RetryCount,
			RetryBackoff: cfg.Download.RetryBackoff,
			Timeout:      cfg.Download.Timeout,
			MaxPapers:    cfg.Download.MaxPapers,
			Delay:        cfg.Download.Delay,
		}, store, clk, logger),
		Store:   store,
		Watcher: w,
		Queue:   q,
		Dispatcher: dispatch.New(dispatch.Config{
			EndpointURL:  cfg.Dispatch.EndpointURL,
			Timeout:      cfg.Dispatch.Timeout,
			RetryCount:   cfg.Dispatch.RetryCount,
			RetryBackoff: cfg.Dispatch.RetryBackoff,
		}, logger),
		Publisher: pub,
		Archive:   arc,
		Emitter:   hub,
		IDs:       uuid.New(),
		Clock:     clk,
		Logger:    logger,
	})

	sched, err := scheduler.New(scheduler.Config{
		DailyRunTime:   cfg.Scheduler.DailyRunTime,
		RunImmediately: cfg.Scheduler.RunImmediately,
	}, clk, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize scheduler: %w", err)
	}

	server := api.NewServer(snapshots, runner, cfg.StateDir, registry, logger)

	logger.Info("services initialized")
	return &App{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		archive:   arc,
		publisher: pub,
		queue:     q,
		watcher:   w,
		hub:       hub,
		snapshots: snapshots,
		registry:  registry,
		runner:    runner,
		scheduler: sched,
		server:    server,
	}, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Runner returns the pipeline runner.
func (a *App) Runner() *pipeline.Runner { return a.runner }

// Scheduler returns the daily scheduler.
func (a *App) Scheduler() *scheduler.Scheduler { return a.scheduler }

// Server returns the HTTP status server.
func (a *App) Server() *api.Server { return a.server }

// Watcher returns the arrival watcher for serve mode.
func (a *App) Watcher() *watcher.Watcher { return a.watcher }

// Close shuts down services in dependency order: the hub drains first so
// no progress events are lost, then the external clients.
func (a *App) Close() {
	a.logger.Info("shutting down services")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.hub.Close(ctx); err != nil {
		a.logger.Warn("close progress hub", zap.Error(err))
	}
	a.queue.Close()
	if err := a.publisher.Close(); err != nil {
		a.logger.Warn("close publisher", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close manifest store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func newManifestStore(ctx context.Context, cfg config.Config) (manifest.Store, error) {
	switch cfg.Manifest.Provider {
	case "file":
		return manifestfile.New(cfg.StateDir)
	case "postgres":
		return manifestpg.New(ctx, manifestpg.Config{DSN: cfg.Manifest.DSN})
	case "memory":
		return manifestmem.New(), nil
	default:
		return nil, fmt.Errorf("unknown manifest provider: %s", cfg.Manifest.Provider)
	}
}

func newArchiveProvider(ctx context.Context, cfg config.Config, logger *zap.Logger) (archive.Provider, error) {
	switch cfg.Archive.Provider {
	case "noop":
		return &archive.NoOpProvider{}, nil
	case "local":
		dir := cfg.Archive.LocalDir
		if dir == "" {
			dir = filepath.Join(cfg.StateDir, "archive")
		}
		return archivelocal.New(dir)
	case "gcs":
		return archivegcs.New(ctx, cfg.Archive.GCSBucket, cfg.Archive.Prefix, logger)
	default:
		return nil, fmt.Errorf("unknown archive provider: %s", cfg.Archive.Provider)
	}
}

func newPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (publisher.Publisher, error) {
	switch cfg.Publisher.Provider {
	case "noop":
		return &publisher.NoOpPublisher{}, nil
	case "memory":
		return publishermem.New(), nil
	case "pubsub":
		return publisherpubsub.New(ctx, cfg.Publisher.ProjectID, cfg.Publisher.Topic, logger)
	default:
		return nil, fmt.Errorf("unknown publisher provider: %s", cfg.Publisher.Provider)
	}
}

func newFetcher(cfg config.Config, logger *zap.Logger) (listing.Fetcher, error) {
	registry := extract.NewRegistry()
	strategy, err := registry.Resolve(cfg.Listing.Strategy)
	if err != nil {
		return nil, err
	}
	switch cfg.Listing.Fetcher {
	case "colly":
		return collyfetcher.New(collyfetcher.Config{
			URL:       cfg.Listing.URL,
			UserAgent: cfg.Listing.UserAgent,
			Timeout:   cfg.Listing.Timeout,
		}, strategy, logger), nil
	case "headless":
		return headless.NewChromedp(headless.Config{
			URL:               cfg.Listing.URL,
			UserAgent:         cfg.Listing.UserAgent,
			NavigationTimeout: cfg.Listing.Timeout,
		}, strategy, logger)
	default:
		return nil, fmt.Errorf("unknown listing fetcher: %s", cfg.Listing.Fetcher)
	}
}
