// Package headless fetches the listing page with a real browser. Some
// listing builds render the paper feed entirely client-side, so the
// HTTP-only fetcher sees an empty shell; this fetcher executes the page's
// JavaScript before handing the DOM to the extraction strategy.
package headless

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/mboyd/paperflow/internal/listing"
	"github.com/mboyd/paperflow/internal/listing/extract"
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	// URL is the listing page; supports the {date} placeholder.
	URL               string
	UserAgent         string
	NavigationTimeout time.Duration
}

// Fetcher implements listing.Fetcher using chromedp and headless Chrome.
type Fetcher struct {
	cfg         Config
	strategy    extract.Strategy
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// NewChromedp creates a headless fetcher backed by chromedp.
func NewChromedp(cfg Config, strategy extract.Strategy, logger *zap.Logger) (*Fetcher, error) {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		strategy:    strategy,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}, nil
}

// Close cancels the allocator context.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch navigates to the listing with a headless browser, waits for the
// rendered DOM, and extracts paper records from it.
func (f *Fetcher) Fetch(ctx context.Context, date time.Time) ([]listing.PaperRecord, error) {
	pageURL := resolveURL(f.cfg.URL, date)

	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, f.cfg.NavigationTimeout)
	defer cancel()

	// Stop waiting on the page if the caller's context ends first.
	go func() {
		select {
		case <-ctx.Done():
			taskCancel()
		case <-taskCtx.Done():
		}
	}()

	var html string
	actions := []chromedp.Action{
		f.networkSetupAction(),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return nil, &listing.FetchError{URL: pageURL, Err: fmt.Errorf("chromedp run: %w", err)}
	}

	records, err := f.strategy.Extract([]byte(html), date)
	if err != nil {
		return nil, &listing.FetchError{URL: pageURL, Err: err}
	}
	f.logger.Info("listing rendered",
		zap.String("url", pageURL),
		zap.String("strategy", f.strategy.Name()),
		zap.Int("papers", len(records)),
	)
	return records, nil
}

func (f *Fetcher) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func resolveURL(rawURL string, date time.Time) string {
	return strings.ReplaceAll(rawURL, "{date}", date.Format("2006-01-02"))
}
