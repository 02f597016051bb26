// Package collyfetcher implements listing.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/mboyd/paperflow/internal/listing"
	"github.com/mboyd/paperflow/internal/listing/extract"
)

// Config controls collector behavior.
type Config struct {
	// URL is the listing page. A "{date}" placeholder, if present, is
	// replaced with the run date in YYYY-MM-DD form.
	URL       string
	UserAgent string
	Timeout   time.Duration
}

// Fetcher retrieves the listing page with a Colly collector and hands the
// body to an extraction strategy.
type Fetcher struct {
	cfg           Config
	strategy      extract.Strategy
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// New builds a Fetcher.
func New(cfg Config, strategy extract.Strategy, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	return &Fetcher{
		cfg:           cfg,
		strategy:      strategy,
		baseCollector: c,
		logger:        logger,
	}
}

// Fetch retrieves the listing for date and extracts its paper records.
// Parse and network failures are both reported as *listing.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, date time.Time) ([]listing.PaperRecord, error) {
	pageURL := ResolveURL(f.cfg.URL, date)

	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	var (
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		if r.StatusCode != http.StatusOK {
			fetchErr = fmt.Errorf("HTTP %d", r.StatusCode)
			return
		}
		body = r.Body
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	f.logger.Debug("fetching listing", zap.String("url", pageURL))
	if err := runCollector(ctx, collector, pageURL); err != nil {
		return nil, &listing.FetchError{URL: pageURL, Err: err}
	}
	if fetchErr != nil {
		return nil, &listing.FetchError{URL: pageURL, Err: fetchErr}
	}
	if len(body) == 0 {
		return nil, &listing.FetchError{URL: pageURL, Err: fmt.Errorf("empty response body")}
	}

	records, err := f.strategy.Extract(body, date)
	if err != nil {
		return nil, &listing.FetchError{URL: pageURL, Err: err}
	}
	f.logger.Info("listing fetched",
		zap.String("url", pageURL),
		zap.String("strategy", f.strategy.Name()),
		zap.Int("papers", len(records)),
	)
	return records, nil
}

// runCollector executes the visit in a goroutine so cancellation of ctx
// is honored even while Colly blocks on the network.
func runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("listing fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit failed: %w", err)
		}
		return nil
	}
}

// ResolveURL substitutes the {date} placeholder, when present, with the
// run date.
func ResolveURL(rawURL string, date time.Time) string {
	return strings.ReplaceAll(rawURL, "{date}", date.Format("2006-01-02"))
}
