// Package download turns listing records into persisted PDF files. It owns
// the retry/backoff policy, de-duplication against prior runs, and the
// incremental manifest bookkeeping that makes re-runs idempotent.
package download

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/mboyd/paperflow/internal/clock"
	"github.com/mboyd/paperflow/internal/listing"
	"github.com/mboyd/paperflow/internal/manifest"
)

// Config controls the download manager.
type Config struct {
	RetryCount   int
	RetryBackoff time.Duration
	Timeout      time.Duration
	MaxPapers    int
	Delay        time.Duration
}

// Manager downloads papers and records their outcomes in a manifest.
type Manager struct {
	cfg    Config
	client *http.Client
	store  manifest.Store
	policy *RetryPolicy
	clk    clock.Clock
	logger *zap.Logger
}

// New builds a Manager. A nil client gets a default with the configured
// per-request timeout.
func New(cfg Config, store manifest.Store, clk clock.Clock, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Manager{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		store:  store,
		policy: NewRetryPolicy(cfg.RetryCount, cfg.RetryBackoff),
		clk:    clk,
		logger: logger,
	}
}

// Download fetches every record's PDF into destDir/<date>/ and returns the
// manifest of outcomes. One failing paper never aborts the batch; only an
// unusable destination directory is fatal. The manifest is saved after each
// task so a crash loses at most the in-flight download.
func (m *Manager) Download(ctx context.Context, date string, records []listing.PaperRecord, destDir string) (*manifest.Manifest, error) {
	runDir := filepath.Join(destDir, date)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("create download directory: %w", err)
	}

	current, err := m.store.Load(ctx, date)
	if errors.Is(err, manifest.ErrNotFound) {
		current = manifest.New(date)
	} else if err != nil {
		return nil, fmt.Errorf("load prior manifest: %w", err)
	}

	if m.cfg.MaxPapers > 0 && len(records) > m.cfg.MaxPapers {
		m.logger.Info("capping listing",
			zap.Int("listed", len(records)),
			zap.Int("max_papers", m.cfg.MaxPapers),
		)
		records = records[:m.cfg.MaxPapers]
	}

	for i, rec := range records {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && m.cfg.Delay > 0 {
			if !sleepCtx(ctx, m.cfg.Delay) {
				break
			}
		}
		m.processRecord(ctx, current, rec, runDir)
		if err := m.store.Save(ctx, current); err != nil {
			m.logger.Error("save manifest", zap.String("date", date), zap.Error(err))
		}
	}
	return current, nil
}

func (m *Manager) processRecord(ctx context.Context, current *manifest.Manifest, rec listing.PaperRecord, runDir string) {
	dest := filepath.Join(runDir, rec.ID+".pdf")

	if prior, ok := current.Task(rec.ID); ok && prior.Status == manifest.StatusSucceeded && fileNonEmpty(prior.Path) {
		// Duplicate skip: already downloaded in a prior run of this date.
		// Keep the prior entry, including its dispatched flag.
		m.logger.Info("skipping duplicate",
			zap.String("id", rec.ID),
			zap.String("path", prior.Path),
		)
		return
	}

	task := manifest.Task{
		ID:        rec.ID,
		Title:     rec.Title,
		SourceURL: rec.SourceURL,
		PDFURL:    rec.PDFURL,
		Path:      dest,
		Status:    manifest.StatusDownloading,
		UpdatedAt: m.clk.Now(),
	}

	attempts := 0
	var lastErr error
	for {
		attempts++
		lastErr = m.fetchOnce(ctx, rec.PDFURL, dest)
		if lastErr == nil {
			break
		}
		if !m.policy.ShouldRetry(lastErr, attempts) {
			break
		}
		m.logger.Warn("download attempt failed",
			zap.String("id", rec.ID),
			zap.Int("attempt", attempts),
			zap.Error(lastErr),
		)
		if !sleepCtx(ctx, m.policy.Backoff(attempts)) {
			break
		}
	}

	task.Attempts = attempts
	task.UpdatedAt = m.clk.Now()
	if lastErr != nil {
		task.Status = manifest.StatusFailed
		task.Error = lastErr.Error()
		m.logger.Error("download failed",
			zap.String("id", rec.ID),
			zap.Int("attempts", attempts),
			zap.Error(lastErr),
		)
	} else {
		task.Status = manifest.StatusSucceeded
		if err := m.writeMetadata(rec, dest); err != nil {
			m.logger.Warn("write metadata sidecar", zap.String("id", rec.ID), zap.Error(err))
		}
		m.logger.Info("downloaded",
			zap.String("id", rec.ID),
			zap.String("path", dest),
			zap.Int("attempts", attempts),
		)
	}
	current.Upsert(task)
}

// fetchOnce performs a single transfer attempt. The PDF lands in a temp
// file first and is renamed into place only after the body is fully copied,
// so the destination path never holds a partial file.
func (m *Manager) fetchOnce(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &NetworkError{URL: url, Err: err}
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &NetworkError{URL: url, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*.tmp")
	if err != nil {
		return &WriteError{Path: dest, Err: err}
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &NetworkError{URL: url, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &WriteError{Path: dest, Err: err}
	}
	if n == 0 {
		os.Remove(tmpName)
		return &NetworkError{URL: url, Err: fmt.Errorf("empty response body")}
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return &WriteError{Path: dest, Err: err}
	}
	return nil
}

// writeMetadata stores the record as a JSON sidecar next to the PDF. The
// dispatcher attaches it to the upload.
func (m *Manager) writeMetadata(rec listing.PaperRecord, pdfPath string) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	sidecar := pdfPath[:len(pdfPath)-len(filepath.Ext(pdfPath))] + ".json"
	return os.WriteFile(sidecar, data, 0o644)
}

func fileNonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

// sleepCtx waits for d or until ctx is done. It reports whether the full
// wait elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
