// Package scraper defines the marketplace adapter contract and the shared fetch,
// pagination and anti-bot plumbing every adapter builds on.
package scraper

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/bernabe05rodriguez-stack/CarScraper/models"
)

// Adapter searches one marketplace.
// Implementations paginate internally and return the full batch in one call.
type Adapter interface {
	Search(ctx context.Context, spec models.SearchSpec) (Result, error)
}

// Result is the batch an adapter returns for one search.
type Result struct {
	Listings []models.Listing
	// Warnings are non-fatal notes, e.g. skipped containers or a truncated page walk.
	Warnings []string
}

// Strategy names the fetch family an adapter uses.
type Strategy string

const (
	StrategyStatic   Strategy = "static"
	StrategyRendered Strategy = "rendered"
)

// Page is a fetched document.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
	// Captured holds JSON response bodies intercepted while rendering.
	Captured [][]byte
}

// Document parses the page body with goquery.
func (p *Page) Document() (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.Body))
	if err != nil {
		return nil, ParseFailure("parse html %s: %w", p.URL, err)
	}
	return doc, nil
}

var (
	challengeTitles = []string{
		"just a moment",
		"attention required",
		"access denied",
		"are you a robot",
		"pardon our interruption",
		"ich bin kein roboter",
	}
	challengeMarkers = []string{
		"cf-chl-",
		"captcha-delivery.com",
		"px-captcha",
		"hcaptcha.com",
		"_incapsula_resource",
	}
)

// DetectChallenge reports whether a response looks like an anti-bot interstitial.
func DetectChallenge(statusCode int, body []byte) (string, bool) {
	lower := strings.ToLower(string(body))
	title := ""
	if start := strings.Index(lower, "<title"); start >= 0 {
		if end := strings.Index(lower[start:], "</title>"); end >= 0 {
			title = lower[start : start+end]
		}
	}
	for _, marker := range challengeTitles {
		if strings.Contains(title, marker) {
			return marker, true
		}
	}
	for _, marker := range challengeMarkers {
		if strings.Contains(lower, marker) {
			return marker, true
		}
	}
	if statusCode == http.StatusForbidden || statusCode == http.StatusTooManyRequests {
		return http.StatusText(statusCode), true
	}
	return "", false
}

// checkPage converts a response into the adapter error taxonomy.
func checkPage(page *Page) error {
	if reason, ok := DetectChallenge(page.StatusCode, page.Body); ok {
		return ErrBlocked{StatusCode: page.StatusCode, Reason: reason}
	}
	if page.StatusCode >= http.StatusBadRequest {
		return classifyError(nil, page.StatusCode)
	}
	return nil
}

// Info describes a marketplace and how its adapter fetches pages.
type Info struct {
	Platform models.Platform
	Name     string
	Region   models.Region
	Kind     models.Kind
	Currency models.Currency
	BaseURL  string
	Strategy Strategy
}

// Stamp fills the catalogue fields of l that the extractor left empty.
func (i Info) Stamp(l *models.Listing, now time.Time) {
	l.Platform = i.Platform
	l.Region = i.Region
	l.Kind = i.Kind
	if l.Currency == "" {
		l.Currency = i.Currency
	}
	if l.ScrapedAt.IsZero() {
		l.ScrapedAt = now
	}
}
