// Package adapters implements one scraper.Adapter per supported marketplace.
package adapters

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/bernabe05rodriguez-stack/CarScraper/models"
	"github.com/bernabe05rodriguez-stack/CarScraper/parser"
	"github.com/bernabe05rodriguez-stack/CarScraper/scraper"
	"golang.org/x/net/html"
)

// Fetcher is the static fetch family; *scraper.HTMLFetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*scraper.Page, error)
}

// Options are shared by every adapter.
type Options struct {
	// BaseURL overrides the marketplace host, mainly for tests.
	BaseURL    string
	MaxPages   int
	RenderWait time.Duration
	Limiter    scraper.Waiter
	Metrics    *scraper.Metrics
	Logger     *slog.Logger
	Now        func() time.Time
}

type base struct {
	info scraper.Info
	opts Options
	log  *slog.Logger
}

func newBase(info scraper.Info, opts Options) base {
	if opts.BaseURL != "" {
		info.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 10
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return base{
		info: info,
		opts: opts,
		log:  logger.With(slog.String("component", "adapter"), slog.String("platform", string(info.Platform))),
	}
}

// Info describes the marketplace.
func (b base) Info() scraper.Info {
	return b.info
}

func (b base) paginate(ctx context.Context, fetch scraper.PageFunc) (scraper.Result, error) {
	return scraper.Paginate(ctx, scraper.PaginateOptions{
		Platform: b.info.Platform,
		MaxPages: b.opts.MaxPages,
		Limiter:  b.opts.Limiter,
		Metrics:  b.opts.Metrics,
		Logger:   b.log,
	}, fetch)
}

// finish stamps catalogue fields and applies the local filters.
func (b base) finish(res scraper.Result, spec models.SearchSpec, filter scraper.FilterOptions) scraper.Result {
	now := b.opts.Now()
	for i := range res.Listings {
		b.info.Stamp(&res.Listings[i], now)
	}
	before := len(res.Listings)
	res.Listings = scraper.Filter(res.Listings, spec, now, filter)
	b.log.Info("search finished",
		slog.Int("listings", len(res.Listings)),
		slog.Int("filtered_out", before-len(res.Listings)),
		slog.Int("warnings", len(res.Warnings)),
	)
	return res
}

func (b base) render(ctx context.Context, r scraper.Renderer, url string, capture func(string, string) bool) (*scraper.Page, error) {
	return r.Render(ctx, scraper.RenderRequest{
		Platform: b.info.Platform,
		URL:      url,
		Wait:     b.opts.RenderWait,
		Capture:  capture,
	})
}

// firstText returns the trimmed text of the first selector that matches.
func firstText(s *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		if found := s.Find(sel).First(); found.Length() > 0 {
			if text := parser.Clean(found.Text()); text != "" {
				return text
			}
		}
	}
	return ""
}

// firstMatch returns the first selection hit by one of selectors.
func firstMatch(s *goquery.Selection, selectors ...string) *goquery.Selection {
	for _, sel := range selectors {
		if found := s.Find(sel).First(); found.Length() > 0 {
			return found
		}
	}
	return nil
}

func imageURL(s *goquery.Selection, selector string) string {
	img := s.Find(selector).First()
	if src, ok := img.Attr("src"); ok && src != "" && !strings.HasPrefix(src, "data:") {
		return src
	}
	src, _ := img.Attr("data-src")
	return src
}

// cardsOrLinkParents selects listing cards, falling back to the parents of detail links.
func cardsOrLinkParents(doc *goquery.Document, cards, link string) *goquery.Selection {
	if cards != "" {
		if found := doc.Find(cards); found.Length() > 0 {
			return found
		}
	}
	seen := make(map[string]bool)
	seenNode := make(map[*html.Node]bool)
	var nodes []*html.Node
	doc.Find(link).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if href == "" || seen[href] {
			return
		}
		seen[href] = true
		if parent := a.ParentsFiltered("article, li, div").First(); parent.Length() > 0 {
			if node := parent.Get(0); !seenNode[node] {
				seenNode[node] = true
				nodes = append(nodes, node)
			}
		}
	})
	return doc.FindNodes(nodes...)
}

// decodeItems reads an intercepted JSON body and returns the listing objects in it.
func decodeItems(body []byte, keys ...string) []map[string]any {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil
	}
	if list, ok := data.([]any); ok {
		return parser.FindObjects(map[string]any{"items": list}, "items")
	}
	return parser.FindObjects(data, keys...)
}

func ptrFloat(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return models.Float(v)
}

func ptrInt(v int, ok bool) *int {
	if !ok {
		return nil
	}
	return models.Int(v)
}

func containsAny(text string, needles ...string) bool {
	lower := strings.ToLower(text)
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

func truncate(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}
