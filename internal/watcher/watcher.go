// Package watcher observes the download root and emits an arrival event
// once a PDF is confirmed fully written. Two modes share identical
// behavior: notify uses filesystem events, poll scans the manifest for
// succeeded tasks not yet dispatched. Both are restart-safe: a rescan of
// existing files against the processed set runs before live watching.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/mboyd/paperflow/internal/clock"
	"github.com/mboyd/paperflow/internal/hash/sha256"
	"github.com/mboyd/paperflow/internal/manifest"
	"github.com/mboyd/paperflow/internal/queue"
)

// Watch modes.
const (
	ModeNotify = "notify"
	ModePoll   = "poll"
)

// Config controls the watcher.
type Config struct {
	Root           string
	Mode           string
	SettleInterval time.Duration
	PollInterval   time.Duration
}

// Watcher turns completed downloads into arrival events.
type Watcher struct {
	cfg    Config
	q      queue.Queue
	set    *ProcessedSet
	store  manifest.Store
	hasher *sha256.Hasher
	clk    clock.Clock
	logger *zap.Logger

	inflightMu sync.Mutex
	inflight   map[string]struct{}
	wg         sync.WaitGroup
}

// New builds a Watcher. The manifest store is only consulted in poll mode.
func New(cfg Config, q queue.Queue, set *ProcessedSet, store manifest.Store, clk clock.Clock, logger *zap.Logger) *Watcher {
	if cfg.SettleInterval <= 0 {
		cfg.SettleInterval = 2 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		cfg:      cfg,
		q:        q,
		set:      set,
		store:    store,
		hasher:   sha256.New(),
		clk:      clk,
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

// Run blocks until ctx is done. It first rescans existing files so nothing
// downloaded before a restart is lost, then watches live.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.cfg.Root, 0o755); err != nil {
		return fmt.Errorf("create watch root: %w", err)
	}
	w.Rescan(ctx)

	var err error
	switch w.cfg.Mode {
	case ModePoll:
		err = w.runPoll(ctx)
	default:
		err = w.runNotify(ctx)
	}
	w.wg.Wait()
	return err
}

// Rescan walks the download root and emits arrivals for settled files not
// yet in the processed set. Handling goes through the in-flight set so a
// rescan never races a live event handler on the same file.
func (w *Watcher) Rescan(ctx context.Context) {
	_ = filepath.WalkDir(w.cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !isPDF(path) {
			return nil
		}
		w.spawnHandle(ctx, path)
		return nil
	})
}

func (w *Watcher) runNotify(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.cfg.Root); err != nil {
		return fmt.Errorf("watch %s: %w", w.cfg.Root, err)
	}
	// fsnotify is not recursive; date directories are watched individually.
	entries, err := os.ReadDir(w.cfg.Root)
	if err != nil {
		return fmt.Errorf("list watch root: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := fw.Add(filepath.Join(w.cfg.Root, e.Name())); err != nil {
				w.logger.Warn("watch subdirectory", zap.String("dir", e.Name()), zap.Error(err))
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return errors.New("fsnotify event channel closed")
			}
			w.handleEvent(ctx, fw, ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return errors.New("fsnotify error channel closed")
			}
			w.logger.Warn("fsnotify error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, fw *fsnotify.Watcher, ev fsnotify.Event) {
	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) {
		return
	}
	info, err := os.Stat(ev.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if ev.Op.Has(fsnotify.Create) {
			if err := fw.Add(ev.Name); err != nil {
				w.logger.Warn("watch new directory", zap.String("dir", ev.Name), zap.Error(err))
			}
		}
		return
	}
	if !isPDF(ev.Name) {
		return
	}
	w.spawnHandle(ctx, ev.Name)
}

func (w *Watcher) runPoll(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.pollManifest(ctx)
		}
	}
}

// pollManifest emits arrivals for today's succeeded tasks that have not
// been dispatched yet.
func (w *Watcher) pollManifest(ctx context.Context) {
	date := w.clk.Now().Format("2006-01-02")
	m, err := w.store.Load(ctx, date)
	if errors.Is(err, manifest.ErrNotFound) {
		return
	}
	if err != nil {
		w.logger.Warn("load manifest", zap.String("date", date), zap.Error(err))
		return
	}
	for _, task := range m.Succeeded() {
		if task.Dispatched {
			continue
		}
		w.spawnHandle(ctx, task.Path)
	}
}

// spawnHandle runs the settle-and-emit sequence for path unless one is
// already in flight for it.
func (w *Watcher) spawnHandle(ctx context.Context, path string) {
	w.inflightMu.Lock()
	if _, busy := w.inflight[path]; busy {
		w.inflightMu.Unlock()
		return
	}
	w.inflight[path] = struct{}{}
	w.inflightMu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() {
			w.inflightMu.Lock()
			delete(w.inflight, path)
			w.inflightMu.Unlock()
		}()
		w.handleFile(ctx, path)
	}()
}

// handleFile waits for the file to settle, then emits exactly one arrival
// for its current content.
func (w *Watcher) handleFile(ctx context.Context, path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if err := w.waitSettled(ctx, abs); err != nil {
		return
	}
	hash, err := w.hasher.HashFile(abs)
	if err != nil {
		w.logger.Warn("hash arrival", zap.String("path", abs), zap.Error(err))
		return
	}
	if w.set.Contains(abs, hash) {
		return
	}
	// Enqueue before marking: a failed enqueue must leave the file
	// unmarked so a later rescan can deliver it. A re-emit after a
	// failed mark is harmless; the dispatched flag on the manifest
	// suppresses duplicate dispatches.
	ev := queue.ArrivalEvent{FilePath: abs, DiscoveredAt: w.clk.Now()}
	if err := w.q.Enqueue(ctx, ev); err != nil {
		w.logger.Warn("enqueue arrival", zap.String("path", abs), zap.Error(err))
		return
	}
	if err := w.set.Mark(abs, hash, w.clk.Now()); err != nil {
		w.logger.Error("persist processed set", zap.Error(err))
	}
	w.logger.Info("arrival", zap.String("path", abs))
}

// waitSettled returns once the file's size is non-zero and unchanged across
// a full settle interval.
func (w *Watcher) waitSettled(ctx context.Context, path string) error {
	var last int64 = -1
	for {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		size := info.Size()
		if size > 0 && size == last {
			return nil
		}
		last = size
		timer := time.NewTimer(w.cfg.SettleInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}
