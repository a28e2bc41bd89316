package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"github.com/bernabe05rodriguez-stack/CarScraper/config"
	"github.com/bernabe05rodriguez-stack/CarScraper/models"
	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/extensions"
)

const (
	ctxKeyStdContext = "std_ctx"
	ctxKeyStart      = "start"
	ctxKeyPage       = "page"
)

// FetcherOptions configures an HTMLFetcher.
type FetcherOptions struct {
	UserAgent        string
	RandomUserAgent  bool
	RequestTimeout   time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	RetryBackoffMax  time.Duration
	RespectRobotsTxt bool
	Headers          map[string]string
	// Transport replaces the default HTTP transport, e.g. with httpmock in tests.
	Transport http.RoundTripper
	Metrics   *Metrics
	Logger    *slog.Logger
	// Sleep waits between retries; defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// FetcherOptionsFromConfig maps service configuration onto fetcher options.
func FetcherOptionsFromConfig(cfg *config.Config) FetcherOptions {
	return FetcherOptions{
		UserAgent:        cfg.UserAgent,
		RandomUserAgent:  cfg.RandomUserAgent,
		RequestTimeout:   cfg.RequestTimeout,
		MaxRetries:       cfg.MaxRetries,
		RetryBackoff:     cfg.RetryBackoff,
		RetryBackoffMax:  cfg.RetryBackoffMax,
		RespectRobotsTxt: cfg.RespectRobotsTxt,
	}
}

// HTMLFetcher is the static fetch family: one colly collector per marketplace.
type HTMLFetcher struct {
	platform  models.Platform
	opts      FetcherOptions
	collector *colly.Collector
	logger    *slog.Logger
}

// NewHTMLFetcher builds a synchronous collector that keeps every response,
// including error statuses, so block detection can inspect the body.
func NewHTMLFetcher(platform models.Platform, opts FetcherOptions) *HTMLFetcher {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	collector := colly.NewCollector(
		colly.UserAgent(opts.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.ParseHTTPErrorResponse = true
	collector.IgnoreRobotsTxt = !opts.RespectRobotsTxt
	collector.SetRequestTimeout(opts.RequestTimeout)
	if opts.Transport != nil {
		collector.WithTransport(opts.Transport)
	} else {
		collector.WithTransport(&http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   opts.RequestTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		})
	}
	if opts.RandomUserAgent {
		extensions.RandomUserAgent(collector)
	}

	f := &HTMLFetcher{
		platform:  platform,
		opts:      opts,
		collector: collector,
		logger:    logger.With(slog.String("component", "fetcher"), slog.String("platform", string(platform))),
	}
	f.configureHandlers()
	return f
}

func (f *HTMLFetcher) configureHandlers() {
	f.collector.OnRequest(func(r *colly.Request) {
		if ctx, ok := r.Ctx.GetAny(ctxKeyStdContext).(context.Context); ok && ctx.Err() != nil {
			r.Abort()
			return
		}
		for k, v := range f.opts.Headers {
			r.Headers.Set(k, v)
		}
		r.Ctx.Put(ctxKeyStart, time.Now())
		f.opts.Metrics.IncRequest(string(f.platform), string(StrategyStatic))
		f.logger.Debug("fetching page", slog.String("url", r.URL.String()))
	})

	f.collector.OnResponse(func(r *colly.Response) {
		if start, ok := r.Ctx.GetAny(ctxKeyStart).(time.Time); ok {
			f.opts.Metrics.ObserveDuration(string(f.platform), time.Since(start))
		}
		if r.StatusCode >= http.StatusBadRequest {
			f.logger.Warn("non-success response",
				slog.Int("status", r.StatusCode),
				slog.String("url", r.Request.URL.String()),
			)
		}
		r.Ctx.Put(ctxKeyPage, &Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       r.Body,
		})
	})

	f.collector.OnError(func(r *colly.Response, err error) {
		url := ""
		if r != nil && r.Request != nil && r.Request.URL != nil {
			url = r.Request.URL.String()
		}
		f.logger.Debug("transport error", slog.String("url", url), slog.Any("error", err))
	})
}

// Fetch downloads url, retrying transient failures with capped exponential backoff.
func (f *HTMLFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	for attempt := 0; ; attempt++ {
		page, err := f.fetchOnce(ctx, url)
		if err == nil {
			err = checkPage(page)
		}
		if err == nil {
			return page, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		kind := ErrorKind(err)
		f.opts.Metrics.IncError(string(f.platform), kind)
		if !Retryable(err) || attempt >= f.opts.MaxRetries {
			return page, err
		}

		delay := f.backoff(attempt + 1)
		f.opts.Metrics.IncRetries(string(f.platform))
		f.logger.Warn("fetch failed, retrying",
			slog.String("url", url),
			slog.String("category", kind),
			slog.Int("attempt", attempt+1),
			slog.Int("max_retries", f.opts.MaxRetries),
			slog.Duration("backoff", delay),
			slog.Any("error", err),
		)
		if err := f.opts.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (f *HTMLFetcher) fetchOnce(ctx context.Context, url string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cctx := colly.NewContext()
	cctx.Put(ctxKeyStdContext, ctx)

	err := f.collector.Request(http.MethodGet, url, nil, cctx, nil)
	page, _ := cctx.GetAny(ctxKeyPage).(*Page)
	if err != nil {
		status := 0
		if page != nil {
			status = page.StatusCode
		}
		if classified := classifyError(err, status); classified != nil {
			return page, classified
		}
		return page, fmt.Errorf("request %s: %w", url, err)
	}
	if page == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, ErrConnection{Err: fmt.Errorf("no response for %s", url)}
	}
	return page, nil
}

// backoff mirrors the crawler's exponential schedule with up to one base unit of jitter.
func (f *HTMLFetcher) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := f.opts.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	delay += time.Duration(rand.Int64N(int64(base)))
	if max := f.opts.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
