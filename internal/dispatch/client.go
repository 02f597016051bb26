// Package dispatch submits downloaded papers to the processing endpoint.
// Submit never fails past its boundary: retry exhaustion and endpoint
// errors both come back as a Result with status error, so one bad paper
// never stops the run.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/mboyd/paperflow/internal/download"
)

// Result statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Result is the normalized outcome of one dispatch, independent of the
// endpoint's actual response schema.
type Result struct {
	SourceFile  string          `json:"source_file"`
	Status      string          `json:"status"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	ErrorDetail string          `json:"error_detail,omitempty"`
	Attempts    int             `json:"attempts"`
}

// Config controls the dispatch client.
type Config struct {
	EndpointURL  string
	Timeout      time.Duration
	RetryCount   int
	RetryBackoff time.Duration
}

// Client uploads files to the processing endpoint.
type Client struct {
	cfg    Config
	client *http.Client
	policy *download.RetryPolicy
	logger *zap.Logger
}

// New builds a Client. The per-attempt timeout is enforced via request
// contexts so the retry loop stays in control.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{},
		policy: download.NewRetryPolicy(cfg.RetryCount, cfg.RetryBackoff),
		logger: logger,
	}
}

// Submit uploads filePath and normalizes the endpoint's response. Timeouts
// and transient network errors are retried up to the attempt cap; an error
// payload from the endpoint is recorded without further retries.
func (c *Client) Submit(ctx context.Context, filePath string) Result {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.RetryCount; attempt++ {
		res, retryable, err := c.attempt(ctx, filePath)
		if err == nil {
			res.Attempts = attempt
			return res
		}
		lastErr = err
		if !retryable || ctx.Err() != nil {
			return Result{
				SourceFile:  filePath,
				Status:      StatusError,
				ErrorDetail: err.Error(),
				Attempts:    attempt,
			}
		}
		c.logger.Warn("dispatch attempt failed",
			zap.String("file", filePath),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < c.cfg.RetryCount {
			timer := time.NewTimer(c.policy.Backoff(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return Result{
					SourceFile:  filePath,
					Status:      StatusError,
					ErrorDetail: ctx.Err().Error(),
					Attempts:    attempt,
				}
			case <-timer.C:
			}
		}
	}
	return Result{
		SourceFile:  filePath,
		Status:      StatusError,
		ErrorDetail: fmt.Sprintf("all %d attempts failed: %v", c.cfg.RetryCount, lastErr),
		Attempts:    c.cfg.RetryCount,
	}
}

// attempt performs one upload. The bool reports whether a failure is worth
// retrying: network trouble is, an endpoint error payload is not.
func (c *Client) attempt(ctx context.Context, filePath string) (Result, bool, error) {
	body, contentType, err := c.buildForm(filePath)
	if err != nil {
		return Result{}, false, err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.cfg.EndpointURL, body)
	if err != nil {
		return Result{}, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, true, fmt.Errorf("post %s: %w", c.cfg.EndpointURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, true, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, false, fmt.Errorf("endpoint returned HTTP %d: %s", resp.StatusCode, truncate(respBody, 200))
	}
	return normalize(filePath, respBody), false, nil
}

// buildForm assembles the multipart body: the PDF under "file" plus the
// metadata sidecar, when present, under "metadata".
func (c *Client) buildForm(filePath string) (*bytes.Buffer, string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", filePath, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("copy %s into form: %w", filePath, err)
	}

	sidecar := filePath[:len(filePath)-len(filepath.Ext(filePath))] + ".json"
	if meta, err := os.ReadFile(sidecar); err == nil {
		if err := mw.WriteField("metadata", string(meta)); err != nil {
			return nil, "", fmt.Errorf("write metadata field: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("finalize form: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

// normalize maps whatever the endpoint answered into a Result. A JSON
// object with a status field is honored; anything else becomes an ok result
// with the raw body as payload.
func normalize(filePath string, body []byte) Result {
	res := Result{SourceFile: filePath, Status: StatusOK}

	var envelope struct {
		Status  string          `json:"status"`
		Payload json.RawMessage `json:"payload"`
		Result  json.RawMessage `json:"result"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		res.Payload = json.RawMessage(fmt.Sprintf("%q", string(body)))
		return res
	}

	switch envelope.Status {
	case "", StatusOK, "success":
		res.Status = StatusOK
	default:
		res.Status = StatusError
		res.ErrorDetail = envelope.Error
		if res.ErrorDetail == "" {
			res.ErrorDetail = "endpoint reported status " + envelope.Status
		}
	}
	switch {
	case len(envelope.Payload) > 0:
		res.Payload = envelope.Payload
	case len(envelope.Result) > 0:
		res.Payload = envelope.Result
	default:
		res.Payload = json.RawMessage(body)
	}
	return res
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
