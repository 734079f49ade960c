package scraper

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/distill/internal/scrape/browser"
	"github.com/edgecomet/distill/internal/scrape/metrics"
	"github.com/edgecomet/distill/internal/scrape/pool"
	"github.com/edgecomet/distill/pkg/types"
)

const (
	DefaultScrapeTimeout   = 10 * time.Second
	DefaultBodyWaitTimeout = 5 * time.Second
)

// Config bounds the time spent on one scrape
type Config struct {
	ScrapeTimeout   time.Duration // Overall budget, measured from tab acquisition
	BodyWaitTimeout time.Duration // Wait for the body element after navigation
}

// DefaultConfig returns the default scrape timeouts
func DefaultConfig() *Config {
	return &Config{
		ScrapeTimeout:   DefaultScrapeTimeout,
		BodyWaitTimeout: DefaultBodyWaitTimeout,
	}
}

// Result is the outcome of a successful scrape
type Result struct {
	Metadata types.PageMetadata
	Content  string
}

// TabSource hands out exclusive tabs
type TabSource interface {
	Acquire(ctx context.Context) (*pool.Lease, error)
	Release(lease *pool.Lease)
	Stats() pool.PoolStats
}

// Scraper renders pages on pooled tabs and extracts their content
type Scraper struct {
	tabs             TabSource
	converter        Converter
	config           *Config
	metricsCollector *metrics.MetricsCollector
	logger           *zap.Logger
}

// NewScraper creates a scraper on top of a tab pool
func NewScraper(tabs TabSource, converter Converter, config *Config,
	metricsCollector *metrics.MetricsCollector, logger *zap.Logger,
) *Scraper {
	if config == nil {
		config = DefaultConfig()
	}
	return &Scraper{
		tabs:             tabs,
		converter:        converter,
		config:           config,
		metricsCollector: metricsCollector,
		logger:           logger,
	}
}

type outcome struct {
	result *Result
	err    error
}

// Scrape loads url on a pooled tab and returns its metadata and content in format.
// The overall timeout starts once a tab is leased; the lease is released on every path.
func (s *Scraper) Scrape(ctx context.Context, url string, format types.OutputFormat) (*Result, error) {
	start := time.Now()

	result, err := s.scrape(ctx, url, format)

	s.metricsCollector.RecordScrapeDuration(time.Since(start).Seconds())
	if err != nil {
		s.metricsCollector.RecordScrape(KindOf(err).String())
		return nil, err
	}
	s.metricsCollector.RecordScrape("success")
	return result, nil
}

func (s *Scraper) scrape(ctx context.Context, url string, format types.OutputFormat) (*Result, error) {
	lease, err := s.tabs.Acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, newError(ErrTimeout, err, "timed out waiting for a browser tab")
		}
		if errors.Is(err, pool.ErrPoolShutdown) {
			return nil, newError(ErrInternal, err, "service is shutting down")
		}
		return nil, newError(ErrBrowser, err, "failed to acquire browser tab")
	}
	defer s.tabs.Release(lease)

	scrapeCtx, cancel := context.WithTimeout(ctx, s.config.ScrapeTimeout)
	defer cancel()

	// Buffered so an abandoned worker can always finish
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				lease.MarkBroken()
				done <- outcome{err: newError(ErrInternal, nil, "scrape worker panicked: %v", r)}
			}
		}()
		result, err := s.run(scrapeCtx, lease.Tab, url, format)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && scrapeCtx.Err() != nil {
			lease.MarkBroken()
			return nil, s.timeoutError(ctx, url)
		}
		if out.err != nil {
			// The tab goes back to the idle cache; a dead one fails the reclaim probe
			s.logger.Warn("Scrape failed",
				zap.String("url", url),
				zap.String("lease_id", lease.ID),
				zap.Error(out.err))
			return nil, out.err
		}

		s.logger.Info("Scraped",
			zap.String("url", url),
			zap.String("title", out.result.Metadata.Title),
			zap.Int("len", len(out.result.Content)),
			zap.Bool("reused_tab", lease.Reused()))
		return out.result, nil

	case <-scrapeCtx.Done():
		// The worker may still hold the tab
		lease.MarkBroken()
		return nil, s.timeoutError(ctx, url)
	}
}

func (s *Scraper) timeoutError(ctx context.Context, url string) *Error {
	if errors.Is(ctx.Err(), context.Canceled) {
		s.logger.Debug("Scrape cancelled by caller", zap.String("url", url))
		return newError(ErrTimeout, ctx.Err(), "scrape cancelled: %s", url)
	}

	s.logger.Error("Page load timeout",
		zap.String("url", url),
		zap.Duration("timeout", s.config.ScrapeTimeout))
	return newError(ErrTimeout, nil, "Timeout after %s: %s", s.config.ScrapeTimeout, url)
}

// run drives the tab through navigate, wait, extract and format
func (s *Scraper) run(ctx context.Context, tab browser.Tab, url string, format types.OutputFormat) (*Result, error) {
	if err := tab.Navigate(ctx, url); err != nil {
		return nil, newError(ErrBrowser, err, "navigation failed")
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.config.BodyWaitTimeout)
	err := tab.WaitReady(waitCtx, "body")
	cancel()
	if err != nil {
		return nil, newError(ErrBrowser, err, "body element wait failed")
	}

	raw, err := tab.Evaluate(ctx, extractScript)
	if err != nil {
		return nil, newError(ErrBrowser, err, "script evaluation failed")
	}

	extract, err := ParseExtract(raw)
	if err != nil {
		return nil, newError(ErrBrowser, err, "extraction result parse failed")
	}

	content, err := s.format(url, extract.BodyHTML, format)
	if err != nil {
		return nil, err
	}

	return &Result{
		Metadata: types.PageMetadata{
			Title:  extract.Title,
			OGTags: extract.OGTags,
		},
		Content: content,
	}, nil
}

func (s *Scraper) format(url, bodyHTML string, format types.OutputFormat) (string, error) {
	switch format {
	case types.OutputFormatHTML:
		return bodyHTML, nil
	case types.OutputFormatMarkdown, "":
		content, err := s.converter.Convert(url, bodyHTML)
		if err != nil {
			return "", newError(ErrInternal, err, "markdown conversion failed")
		}
		return content, nil
	default:
		return "", newError(ErrInternal, nil, "unsupported output format %q", format)
	}
}

// Stats returns the underlying pool statistics
func (s *Scraper) Stats() pool.PoolStats {
	return s.tabs.Stats()
}
