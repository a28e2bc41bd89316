package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bernabe05rodriguez-stack/CarScraper/config"
	"github.com/bernabe05rodriguez-stack/CarScraper/models"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// Renderer loads a page in a real browser so client-side scripts run.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (*Page, error)
}

// RenderRequest describes one rendered page load.
type RenderRequest struct {
	Platform models.Platform
	URL      string
	// Wait is extra settle time after navigation for XHR traffic.
	Wait time.Duration
	// Capture selects network responses whose bodies are kept in Page.Captured.
	Capture func(url, mimeType string) bool
}

// CaptureJSON keeps JSON responses whose URL contains one of fragments.
func CaptureJSON(fragments ...string) func(url, mimeType string) bool {
	return func(url, mimeType string) bool {
		if !strings.Contains(mimeType, "json") {
			return false
		}
		for _, f := range fragments {
			if strings.Contains(url, f) {
				return true
			}
		}
		return len(fragments) == 0
	}
}

// RendererOptions configures ChromeRenderer.
type RendererOptions struct {
	Headless    bool
	BrowserPath string
	UserAgent   string
	Timeout     time.Duration
	Wait        time.Duration
	Metrics     *Metrics
	Logger      *slog.Logger
}

// RendererOptionsFromConfig maps service configuration onto renderer options.
func RendererOptionsFromConfig(cfg *config.Config) RendererOptions {
	return RendererOptions{
		Headless:    cfg.Headless,
		BrowserPath: cfg.BrowserPath,
		UserAgent:   cfg.UserAgent,
		Timeout:     cfg.RequestTimeout,
		Wait:        cfg.RenderWait,
	}
}

// ChromeRenderer drives headless Chrome through the DevTools protocol.
// One browser process is shared; each Render opens its own tab.
type ChromeRenderer struct {
	opts     RendererOptions
	allocCtx context.Context
	cancel   context.CancelFunc
	logger   *slog.Logger
}

// NewChromeRenderer prepares the browser allocator. Chrome starts lazily on first use.
func NewChromeRenderer(opts RendererOptions) *ChromeRenderer {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.BrowserPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.BrowserPath))
	}
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)

	return &ChromeRenderer{
		opts:     opts,
		allocCtx: allocCtx,
		cancel:   cancel,
		logger:   logger.With(slog.String("component", "renderer")),
	}
}

// Render navigates to req.URL, waits for the page to settle and returns the DOM
// together with any captured XHR bodies.
func (r *ChromeRenderer) Render(ctx context.Context, req RenderRequest) (*Page, error) {
	tabCtx, cancelTab := chromedp.NewContext(r.allocCtx)
	defer cancelTab()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	timeout := r.opts.Timeout
	wait := req.Wait
	if wait <= 0 {
		wait = r.opts.Wait
	}
	runCtx, cancelRun := context.WithTimeout(tabCtx, timeout+wait)
	defer cancelRun()

	var (
		mu     sync.Mutex
		status int
	)
	bodies := newCaptureSet()
	chromedp.ListenTarget(runCtx, func(ev any) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			if e.Type == network.ResourceTypeDocument {
				mu.Lock()
				if status == 0 {
					status = int(e.Response.Status)
				}
				mu.Unlock()
			}
			if req.Capture != nil && req.Capture(e.Response.URL, e.Response.MimeType) {
				bodies.expect(e.RequestID)
			}
		case *network.EventLoadingFinished:
			if !bodies.start(e.RequestID) {
				return
			}
			go func(id network.RequestID) {
				var body []byte
				err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
					var err error
					body, err = network.GetResponseBody(id).Do(ctx)
					return err
				}))
				if err != nil {
					r.logger.Debug("read intercepted body", slog.Any("error", err))
				}
				bodies.done(body, err)
			}(e.RequestID)
		}
	})

	var html string
	start := time.Now()
	r.opts.Metrics.IncRequest(string(req.Platform), string(StrategyRendered))
	err := chromedp.Run(runCtx,
		network.Enable(),
		chromedp.Navigate(req.URL),
		chromedp.Sleep(wait),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	captured := bodies.wait()
	r.opts.Metrics.ObserveDuration(string(req.Platform), time.Since(start))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout{Err: err}
		}
		return nil, fmt.Errorf("render %s: %w", req.URL, err)
	}

	mu.Lock()
	page := &Page{URL: req.URL, StatusCode: status, Body: []byte(html), Captured: captured}
	mu.Unlock()
	if err := checkPage(page); err != nil {
		return page, err
	}
	return page, nil
}

// captureSet tracks XHR bodies being read while a tab is open. Once wait is
// called no new reads start, so late LoadingFinished events are dropped.
type captureSet struct {
	mu       sync.Mutex
	wg       sync.WaitGroup
	closed   bool
	pending  map[network.RequestID]struct{}
	captured [][]byte
}

func newCaptureSet() *captureSet {
	return &captureSet{pending: make(map[network.RequestID]struct{})}
}

func (c *captureSet) expect(id network.RequestID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.pending[id] = struct{}{}
	}
}

// start reports whether a body read for id should begin. Callers must call done.
func (c *captureSet) start(id network.RequestID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	delete(c.pending, id)
	if !ok || c.closed {
		return false
	}
	c.wg.Add(1)
	return true
}

func (c *captureSet) done(body []byte, err error) {
	if err == nil {
		c.mu.Lock()
		c.captured = append(c.captured, body)
		c.mu.Unlock()
	}
	c.wg.Done()
}

// wait stops new reads, waits for those in flight and returns the bodies.
func (c *captureSet) wait() [][]byte {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.wg.Wait()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.captured
}

// Close shuts the browser down.
func (r *ChromeRenderer) Close() {
	if r == nil {
		return
	}
	r.cancel()
}
