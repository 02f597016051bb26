package download

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mboyd/paperflow/internal/listing"
	"github.com/mboyd/paperflow/internal/manifest"
	manifestmem "github.com/mboyd/paperflow/internal/manifest/memory"
)

type fakeClock struct{ t time.Time }

func (c fakeClock) Now() time.Time { return c.t }

var testClock = fakeClock{t: time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)}

const runDate = "2026-08-27"

func record(id string) listing.PaperRecord {
	return listing.PaperRecord{
		ID:     id,
		Title:  "Paper " + id,
		PDFURL: "", // filled per test
	}
}

func pdfServer(t *testing.T, fail map[string]int) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	counts := map[string]*atomic.Int64{}
	for id := range fail {
		counts[id] = &atomic.Int64{}
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		id := filepath.Base(r.URL.Path)
		if n, ok := fail[id]; ok {
			c := counts[id]
			if c.Add(1) <= int64(n) {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
		}
		_, _ = w.Write([]byte("%PDF-1.4 fake body"))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func tasksFor(srv *httptest.Server, ids ...string) []listing.PaperRecord {
	var out []listing.PaperRecord
	for _, id := range ids {
		rec := record(id)
		rec.PDFURL = srv.URL + "/" + id + ".pdf"
		out = append(out, rec)
	}
	return out
}

func TestDownloadSuccess(t *testing.T) {
	t.Parallel()

	srv, _ := pdfServer(t, nil)
	store := manifestmem.New()
	dir := t.TempDir()

	mgr := New(Config{RetryCount: 3, RetryBackoff: time.Millisecond}, store, testClock, nil)
	m, err := mgr.Download(context.Background(), runDate, tasksFor(srv, "2301.07041", "2302.12345"), dir)
	require.NoError(t, err)

	succeeded, failed := m.Counts()
	require.Equal(t, 2, succeeded)
	require.Zero(t, failed)

	pdf := filepath.Join(dir, runDate, "2301.07041.pdf")
	info, err := os.Stat(pdf)
	require.NoError(t, err)
	require.Positive(t, info.Size())

	// Metadata sidecar accompanies the PDF.
	_, err = os.Stat(filepath.Join(dir, runDate, "2301.07041.json"))
	require.NoError(t, err)
}

func TestRetryThenSuccess(t *testing.T) {
	t.Parallel()

	srv, _ := pdfServer(t, map[string]int{"2301.07041.pdf": 2})
	store := manifestmem.New()

	mgr := New(Config{RetryCount: 3, RetryBackoff: time.Millisecond}, store, testClock, nil)
	m, err := mgr.Download(context.Background(), runDate, tasksFor(srv, "2301.07041"), t.TempDir())
	require.NoError(t, err)

	task, ok := m.Task("2301.07041")
	require.True(t, ok)
	require.Equal(t, manifest.StatusSucceeded, task.Status)
	require.Equal(t, 3, task.Attempts)
}

func TestPermanentFailureIsIsolated(t *testing.T) {
	t.Parallel()

	srv, _ := pdfServer(t, map[string]int{"2302.12345.pdf": 100})
	store := manifestmem.New()

	mgr := New(Config{RetryCount: 3, RetryBackoff: time.Millisecond}, store, testClock, nil)
	m, err := mgr.Download(context.Background(), runDate,
		tasksFor(srv, "2301.07041", "2302.12345", "2303.00001"), t.TempDir())
	require.NoError(t, err)

	succeeded, failed := m.Counts()
	require.Equal(t, 2, succeeded)
	require.Equal(t, 1, failed)

	task, _ := m.Task("2302.12345")
	require.Equal(t, manifest.StatusFailed, task.Status)
	require.Equal(t, 3, task.Attempts)
	require.Contains(t, task.Error, "HTTP 500")
}

func TestConnectionRefusedIsRetried(t *testing.T) {
	t.Parallel()

	// Reserve a port, then close it so every dial is refused.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	store := manifestmem.New()
	rec := record("2301.07041")
	rec.PDFURL = "http://" + addr + "/2301.07041.pdf"

	mgr := New(Config{RetryCount: 3, RetryBackoff: time.Millisecond}, store, testClock, nil)
	m, err := mgr.Download(context.Background(), runDate, []listing.PaperRecord{rec}, t.TempDir())
	require.NoError(t, err)

	task, ok := m.Task("2301.07041")
	require.True(t, ok)
	require.Equal(t, manifest.StatusFailed, task.Status)
	require.Equal(t, 3, task.Attempts)
	require.Contains(t, task.Error, "connect")
}

func TestRerunSkipsSucceeded(t *testing.T) {
	t.Parallel()

	srv, hits := pdfServer(t, nil)
	store := manifestmem.New()
	dir := t.TempDir()
	records := tasksFor(srv, "2301.07041")

	mgr := New(Config{RetryCount: 3, RetryBackoff: time.Millisecond}, store, testClock, nil)
	first, err := mgr.Download(context.Background(), runDate, records, dir)
	require.NoError(t, err)
	firstHits := hits.Load()

	// Simulate an earlier dispatch so we can assert the flag survives.
	first.MarkDispatched("2301.07041", testClock.Now())
	require.NoError(t, store.Save(context.Background(), first))

	second, err := mgr.Download(context.Background(), runDate, records, dir)
	require.NoError(t, err)
	require.Equal(t, firstHits, hits.Load())

	task, ok := second.Task("2301.07041")
	require.True(t, ok)
	require.Equal(t, manifest.StatusSucceeded, task.Status)
	require.True(t, task.Dispatched)
}

func TestMaxPapersCap(t *testing.T) {
	t.Parallel()

	srv, _ := pdfServer(t, nil)
	store := manifestmem.New()

	mgr := New(Config{RetryCount: 1, MaxPapers: 2}, store, testClock, nil)
	m, err := mgr.Download(context.Background(), runDate,
		tasksFor(srv, "a", "b", "c", "d"), t.TempDir())
	require.NoError(t, err)
	require.Len(t, m.Tasks, 2)
}

func TestUnusableDestinationIsFatal(t *testing.T) {
	t.Parallel()

	srv, _ := pdfServer(t, nil)
	store := manifestmem.New()

	// A regular file where the download root should be.
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	mgr := New(Config{RetryCount: 1}, store, testClock, nil)
	_, err := mgr.Download(context.Background(), runDate, tasksFor(srv, "a"), blocker)
	require.Error(t, err)
}
