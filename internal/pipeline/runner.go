// Package pipeline orchestrates one daily acquisition cycle: fetch the
// listing, download the papers, wait for arrivals, dispatch each file to
// the processing endpoint, and report.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mboyd/paperflow/internal/archive"
	"github.com/mboyd/paperflow/internal/clock"
	"github.com/mboyd/paperflow/internal/dispatch"
	"github.com/mboyd/paperflow/internal/listing"
	"github.com/mboyd/paperflow/internal/logging"
	"github.com/mboyd/paperflow/internal/manifest"
	"github.com/mboyd/paperflow/internal/progress"
	"github.com/mboyd/paperflow/internal/publisher"
	"github.com/mboyd/paperflow/internal/queue"
)

// Runner states. The cycle is idle → fetching → downloading →
// watching_for_arrivals → dispatching → reporting → idle; a stage failure
// short-circuits to reporting with a partial report.
const (
	StateIdle        = "idle"
	StateFetching    = "fetching"
	StateDownloading = "downloading"
	StateWatching    = "watching_for_arrivals"
	StateDispatching = "dispatching"
	StateReporting   = "reporting"
)

// Config controls the runner.
type Config struct {
	DownloadDir string
	StateDir    string
	// LogDir, when set, gives every cycle its own run_<date>.log file in
	// addition to the service log.
	LogDir string
	// DevLogging selects the zap development config for run logs.
	DevLogging bool
	// ArrivalTimeout bounds the wait for arrival events after downloads
	// finish (default 60s).
	ArrivalTimeout time.Duration
	// CycleTimeout bounds the whole run; zero means no budget.
	CycleTimeout time.Duration
}

// Downloader is the download stage contract.
type Downloader interface {
	Download(ctx context.Context, date string, records []listing.PaperRecord, destDir string) (*manifest.Manifest, error)
}

// ArrivalWatcher observes the download root and feeds the arrival queue.
type ArrivalWatcher interface {
	Run(ctx context.Context) error
	Rescan(ctx context.Context)
}

// Dispatcher submits one file to the processing endpoint.
type Dispatcher interface {
	Submit(ctx context.Context, filePath string) dispatch.Result
}

// IDGenerator mints run identifiers.
type IDGenerator interface {
	NewID() string
}

// Deps are the collaborators one run needs. All state shared between the
// download stage and the dispatch side flows through the queue and the
// manifest store; the runner goroutine is the only manifest writer.
type Deps struct {
	Fetcher    listing.Fetcher
	Downloader Downloader
	Store      manifest.Store
	Watcher    ArrivalWatcher
	Queue      queue.Queue
	Dispatcher Dispatcher
	Publisher  publisher.Publisher
	Archive    archive.Provider
	Emitter    progress.Emitter
	IDs        IDGenerator
	Clock      clock.Clock
	Logger     *zap.Logger
}

// Runner executes pipeline cycles.
type Runner struct {
	cfg   Config
	deps  Deps
	state atomic.Value
	// log is the active logger: the service logger between cycles, the
	// per-run logger while a cycle executes. Cycles never overlap.
	log atomic.Pointer[zap.Logger]
}

type dispatchOutcome struct {
	path   string
	result dispatch.Result
}

// New builds a Runner.
func New(cfg Config, deps Deps) *Runner {
	if cfg.ArrivalTimeout <= 0 {
		cfg.ArrivalTimeout = 60 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Publisher == nil {
		deps.Publisher = &publisher.NoOpPublisher{}
	}
	if deps.Archive == nil {
		deps.Archive = &archive.NoOpProvider{}
	}
	r := &Runner{cfg: cfg, deps: deps}
	r.state.Store(StateIdle)
	r.log.Store(deps.Logger)
	return r
}

func (r *Runner) logger() *zap.Logger {
	return r.log.Load()
}

// State reports the current stage of the cycle.
func (r *Runner) State() string {
	return r.state.Load().(string)
}

func (r *Runner) setState(s string) {
	r.state.Store(s)
	r.logger().Debug("pipeline state", zap.String("state", s))
}

// RunOnce executes one cycle for date and always returns a report. Per-task
// failures never abort the run; a stage failure yields a partial report
// with the error recorded. Re-running the same date is idempotent: the
// manifest skips completed downloads and the processed set prevents
// duplicate dispatch.
func (r *Runner) RunOnce(ctx context.Context, date time.Time) *RunReport {
	if r.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.CycleTimeout)
		defer cancel()
	}
	defer r.setState(StateIdle)

	if r.cfg.LogDir != "" {
		runLog, err := logging.NewRunLogger(r.cfg.DevLogging, r.cfg.LogDir, date)
		if err != nil {
			r.logger().Warn("open per-run log file", zap.Error(err))
		} else {
			r.log.Store(runLog)
			defer func() {
				_ = runLog.Sync()
				r.log.Store(r.deps.Logger)
			}()
		}
	}

	dateStr := date.Format("2006-01-02")
	runID := r.newRunID()
	report := &RunReport{
		RunID:     runID.String(),
		Date:      dateStr,
		StartedAt: r.deps.Clock.Now(),
	}
	r.emit(progress.Event{RunID: progress.UUIDToBytes(runID), Stage: progress.StageRunStart, Date: dateStr})
	r.logger().Info("run started", zap.String("run_id", report.RunID), zap.String("date", dateStr))

	// The watcher and the dispatch consumer run alongside the download
	// stage; arrivals are dispatched as soon as files settle.
	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		if err := r.deps.Watcher.Run(watchCtx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger().Warn("watcher stopped", zap.Error(err))
		}
	}()
	consumeCtx, consumeCancel := context.WithCancel(ctx)
	defer consumeCancel()
	results := make(chan dispatchOutcome, 256)
	consumerDone := make(chan struct{})
	go r.consumeArrivals(consumeCtx, results, consumerDone)

	// Fetching. A fetch failure is not fatal: the run continues with an
	// empty listing and reports zero papers.
	r.setState(StateFetching)
	records, err := r.deps.Fetcher.Fetch(ctx, date)
	if err != nil {
		r.logger().Error("listing fetch failed", zap.Error(err))
		report.Error = err.Error()
		records = nil
	}
	r.emit(progress.Event{
		RunID:  progress.UUIDToBytes(runID),
		Stage:  progress.StageListingDone,
		Date:   dateStr,
		Papers: int64(len(records)),
	})

	// Downloading.
	var m *manifest.Manifest
	if len(records) > 0 {
		r.setState(StateDownloading)
		m, err = r.deps.Downloader.Download(ctx, dateStr, records, r.cfg.DownloadDir)
		if err != nil {
			r.logger().Error("download stage failed", zap.Error(err))
			if report.Error == "" {
				report.Error = err.Error()
			}
		}
	}
	if m == nil {
		m = r.loadManifest(ctx, dateStr)
	}
	for _, t := range m.Tasks {
		if t.Status != manifest.StatusSucceeded && t.Status != manifest.StatusFailed {
			continue
		}
		r.emit(progress.Event{
			RunID:   progress.UUIDToBytes(runID),
			Stage:   progress.StageDownloadDone,
			Date:    dateStr,
			PaperID: t.ID,
			Status:  string(t.Status),
		})
	}

	// Watching: a rescan catches anything the live watcher missed.
	r.setState(StateWatching)
	r.deps.Watcher.Rescan(ctx)

	// Dispatching: consume outcomes until every succeeded download has
	// had its dispatch attempt, the arrival budget runs out, or the run
	// is canceled.
	r.setState(StateDispatching)
	outcomes := make(map[string]dispatch.Result)
	deadline := time.NewTimer(r.cfg.ArrivalTimeout)
	defer deadline.Stop()
waitLoop:
	for pendingDispatch(m) > 0 {
		select {
		case out, ok := <-results:
			if !ok {
				break waitLoop
			}
			r.applyOutcome(ctx, runID, m, out, outcomes)
		case <-deadline.C:
			r.logger().Warn("arrival wait timed out",
				zap.Int("pending", pendingDispatch(m)))
			break waitLoop
		case <-ctx.Done():
			break waitLoop
		}
	}

	// Stop the watcher first so no new arrivals enter the queue, then the
	// consumer, then drain whatever it already submitted. The queue itself
	// stays open; serve mode reuses it across cycles.
	watchCancel()
	<-watcherDone
	consumeCancel()
	for out := range results {
		r.applyOutcome(ctx, runID, m, out, outcomes)
	}
	<-consumerDone

	// Reporting.
	r.setState(StateReporting)
	report.fill(m, outcomes)
	report.CompletedAt = r.deps.Clock.Now()
	r.persistReport(ctx, report)

	stage := progress.StageRunDone
	if report.Error != "" {
		stage = progress.StageRunError
	}
	r.emit(progress.Event{
		RunID: progress.UUIDToBytes(runID),
		Stage: stage,
		Date:  dateStr,
		Dur:   report.CompletedAt.Sub(report.StartedAt),
		Note:  report.Error,
	})
	r.logger().Info("run finished",
		zap.String("run_id", report.RunID),
		zap.Int("total", report.Total),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("dispatch_ok", report.DispatchOK),
		zap.Int("dispatch_failed", report.DispatchFailed),
	)
	return report
}

// consumeArrivals dequeues arrival events and submits each file once. It
// owns no manifest state; outcomes flow back to the runner goroutine.
func (r *Runner) consumeArrivals(ctx context.Context, results chan<- dispatchOutcome, done chan struct{}) {
	defer close(done)
	defer close(results)
	for {
		ev, err := r.deps.Queue.Dequeue(ctx)
		if err != nil {
			return
		}
		res := r.deps.Dispatcher.Submit(ctx, ev.FilePath)
		results <- dispatchOutcome{path: ev.FilePath, result: res}
	}
}

// applyOutcome records a dispatch attempt against the manifest. The
// dispatched flag flips exactly once per task regardless of result status.
func (r *Runner) applyOutcome(ctx context.Context, runID uuid.UUID, m *manifest.Manifest, out dispatchOutcome, outcomes map[string]dispatch.Result) {
	id := r.taskIDForPath(m, out.path)
	if id == "" {
		r.logger().Warn("dispatch outcome for unknown file", zap.String("path", out.path))
		return
	}
	if t, ok := m.Task(id); ok && t.Dispatched {
		return
	}
	m.MarkDispatched(id, r.deps.Clock.Now())
	if err := r.deps.Store.Save(ctx, m); err != nil {
		r.logger().Error("save manifest after dispatch", zap.Error(err))
	}
	outcomes[id] = out.result

	r.emit(progress.Event{
		RunID:   progress.UUIDToBytes(runID),
		Stage:   progress.StageDispatchDone,
		Date:    m.Date,
		PaperID: id,
		Status:  out.result.Status,
		Note:    out.result.ErrorDetail,
	})
	if err := r.deps.Publisher.Publish(ctx, publisher.Event{
		RunID:      runID.String(),
		Date:       m.Date,
		PaperID:    id,
		SourceFile: out.path,
		Status:     out.result.Status,
		At:         r.deps.Clock.Now(),
	}); err != nil {
		r.logger().Warn("publish dispatch event", zap.Error(err))
	}
	if out.result.Status == dispatch.StatusOK {
		r.archiveFile(ctx, m.Date, id, out.path)
	}
}

func (r *Runner) archiveFile(ctx context.Context, date, id, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		r.logger().Warn("read file for archive", zap.String("path", path), zap.Error(err))
		return
	}
	object := date + "/" + id + ".pdf"
	if err := r.deps.Archive.Save(ctx, object, data); err != nil {
		r.logger().Warn("archive file", zap.String("object", object), zap.Error(err))
	}
}

// taskIDForPath resolves an arrival path back to its manifest entry.
func (r *Runner) taskIDForPath(m *manifest.Manifest, path string) string {
	for id, t := range m.Tasks {
		abs, err := filepath.Abs(t.Path)
		if err == nil && abs == path {
			return id
		}
		if t.Path == path {
			return id
		}
	}
	base := filepath.Base(path)
	id := base[:len(base)-len(filepath.Ext(base))]
	if _, ok := m.Task(id); ok {
		return id
	}
	return ""
}

func (r *Runner) loadManifest(ctx context.Context, date string) *manifest.Manifest {
	m, err := r.deps.Store.Load(ctx, date)
	if err != nil {
		if !errors.Is(err, manifest.ErrNotFound) {
			r.logger().Warn("load manifest", zap.String("date", date), zap.Error(err))
		}
		return manifest.New(date)
	}
	return m
}

// persistReport writes the state file and ships a copy to the archive.
func (r *Runner) persistReport(ctx context.Context, report *RunReport) {
	data, err := report.JSON()
	if err != nil {
		r.logger().Error("encode run report", zap.Error(err))
		return
	}
	if r.cfg.StateDir != "" {
		if err := os.MkdirAll(r.cfg.StateDir, 0o755); err != nil {
			r.logger().Error("create state directory", zap.Error(err))
		} else {
			path := filepath.Join(r.cfg.StateDir, "report_"+report.Date+".json")
			if err := os.WriteFile(path, data, 0o644); err != nil {
				r.logger().Error("write run report", zap.String("path", path), zap.Error(err))
			}
		}
	}
	if err := r.deps.Archive.Save(ctx, "reports/report_"+report.Date+".json", data); err != nil {
		r.logger().Warn("archive run report", zap.Error(err))
	}
}

// ReadReport loads a persisted run report from the state directory.
func ReadReport(stateDir, date string) (*RunReport, error) {
	path := filepath.Join(stateDir, "report_"+date+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run report: %w", err)
	}
	var report RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode run report %s: %w", path, err)
	}
	return &report, nil
}

func (r *Runner) newRunID() uuid.UUID {
	id, err := uuid.Parse(r.deps.IDs.NewID())
	if err != nil {
		return uuid.New()
	}
	return id
}

func (r *Runner) emit(evt progress.Event) {
	if r.deps.Emitter == nil {
		return
	}
	evt.TS = r.deps.Clock.Now()
	r.deps.Emitter.Emit(evt)
}

func pendingDispatch(m *manifest.Manifest) int {
	n := 0
	for _, t := range m.Tasks {
		if t.Status == manifest.StatusSucceeded && !t.Dispatched {
			n++
		}
	}
	return n
}
