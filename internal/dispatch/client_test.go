package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writePaper(t *testing.T, withMetadata bool) string {
	t.Helper()
	dir := t.TempDir()
	pdf := filepath.Join(dir, "2301.07041.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4 fake body"), 0o644))
	if withMetadata {
		meta := filepath.Join(dir, "2301.07041.json")
		require.NoError(t, os.WriteFile(meta, []byte(`{"id":"2301.07041","title":"Scaling Laws Revisited"}`), 0o644))
	}
	return pdf
}

func TestSubmitOK(t *testing.T) {
	t.Parallel()

	var gotMetadata atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, _, err := r.FormFile("file")
		require.NoError(t, err)
		gotMetadata.Store(r.FormValue("metadata"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","payload":{"summary":"a paper"}}`))
	}))
	defer srv.Close()

	c := New(Config{EndpointURL: srv.URL, Timeout: 5 * time.Second, RetryCount: 3, RetryBackoff: time.Millisecond}, nil)
	res := c.Submit(context.Background(), writePaper(t, true))

	require.Equal(t, StatusOK, res.Status)
	require.Equal(t, 1, res.Attempts)
	require.JSONEq(t, `{"summary":"a paper"}`, string(res.Payload))
	require.Contains(t, gotMetadata.Load().(string), "Scaling Laws Revisited")
}

func TestSubmitTimeoutThenSuccess(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			time.Sleep(500 * time.Millisecond)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := New(Config{
		EndpointURL:  srv.URL,
		Timeout:      100 * time.Millisecond,
		RetryCount:   3,
		RetryBackoff: time.Millisecond,
	}, nil)
	res := c.Submit(context.Background(), writePaper(t, false))

	require.Equal(t, StatusOK, res.Status)
	require.Equal(t, 3, res.Attempts)
	require.EqualValues(t, 3, calls.Load())
}

func TestSubmitAllRetriesFail(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(Config{
		EndpointURL:  srv.URL,
		Timeout:      50 * time.Millisecond,
		RetryCount:   3,
		RetryBackoff: time.Millisecond,
	}, nil)
	res := c.Submit(context.Background(), writePaper(t, false))

	require.Equal(t, StatusError, res.Status)
	require.Equal(t, 3, res.Attempts)
	require.NotEmpty(t, res.ErrorDetail)
}

func TestSubmitEndpointErrorNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"not a pdf"}`))
	}))
	defer srv.Close()

	c := New(Config{EndpointURL: srv.URL, Timeout: time.Second, RetryCount: 3, RetryBackoff: time.Millisecond}, nil)
	res := c.Submit(context.Background(), writePaper(t, false))

	require.Equal(t, StatusError, res.Status)
	require.EqualValues(t, 1, calls.Load())
	require.Contains(t, res.ErrorDetail, "422")
}

func TestSubmitErrorPayloadNormalized(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"failed","error":"model overloaded"}`))
	}))
	defer srv.Close()

	c := New(Config{EndpointURL: srv.URL, Timeout: time.Second, RetryCount: 2, RetryBackoff: time.Millisecond}, nil)
	res := c.Submit(context.Background(), writePaper(t, false))

	require.Equal(t, StatusError, res.Status)
	require.Equal(t, "model overloaded", res.ErrorDetail)
	require.Equal(t, 1, res.Attempts)
}

func TestSubmitNonJSONBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("processed"))
	}))
	defer srv.Close()

	c := New(Config{EndpointURL: srv.URL, Timeout: time.Second, RetryCount: 1}, nil)
	res := c.Submit(context.Background(), writePaper(t, false))

	require.Equal(t, StatusOK, res.Status)
	require.JSONEq(t, `"processed"`, string(res.Payload))
}

func TestSubmitMissingFile(t *testing.T) {
	t.Parallel()

	c := New(Config{EndpointURL: "http://127.0.0.1:1", Timeout: time.Second, RetryCount: 3}, nil)
	res := c.Submit(context.Background(), "/nonexistent/paper.pdf")

	require.Equal(t, StatusError, res.Status)
	require.Equal(t, 1, res.Attempts)
}
