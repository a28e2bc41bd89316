package adapters

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/bernabe05rodriguez-stack/CarScraper/scraper"
	"github.com/jarcoal/httpmock"
)

var testNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func testOptions(baseURL string) Options {
	return Options{
		BaseURL:  baseURL,
		MaxPages: 5,
		Now:      func() time.Time { return testNow },
	}
}

// fakeFetcher serves canned bodies by exact URL; unknown URLs are a 404.
type fakeFetcher struct {
	pages    map[string]string
	requests []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*scraper.Page, error) {
	f.requests = append(f.requests, url)
	body, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("%w: status %d", scraper.ErrNoResults, http.StatusNotFound)
	}
	return &scraper.Page{URL: url, StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

// fakeRenderer answers every render with the next queued page.
type fakeRenderer struct {
	pages    []*scraper.Page
	requests []scraper.RenderRequest
}

func (r *fakeRenderer) Render(_ context.Context, req scraper.RenderRequest) (*scraper.Page, error) {
	r.requests = append(r.requests, req)
	if len(r.pages) == 0 {
		return nil, fmt.Errorf("%w: nothing rendered", scraper.ErrNoResults)
	}
	page := r.pages[0]
	r.pages = r.pages[1:]
	page.URL = req.URL
	page.StatusCode = http.StatusOK
	return page, nil
}

func htmlResponse(body string) *http.Response {
	resp := httpmock.NewStringResponse(http.StatusOK, body)
	resp.Header.Set("Content-Type", "text/html; charset=utf-8")
	return resp
}

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return doc
}

func TestCardsOrLinkParentsFallsBackToLinkParents(t *testing.T) {
	doc := mustDoc(t, `<html><body>
		<div class="row"><a href="/listing/a">A</a><a href="/listing/a">A again</a></div>
		<li><a href="/listing/b">B</a></li>
		<a href="/about">About</a>
	</body></html>`)

	cards := cardsOrLinkParents(doc, ".listing-card", "a[href*='/listing/']")
	if cards.Length() != 2 {
		t.Fatalf("expected 2 parents, got %d", cards.Length())
	}
	if !cards.First().Is("div.row") || !cards.Last().Is("li") {
		t.Fatalf("unexpected parents: %s, %s", goquery.NodeName(cards.First()), goquery.NodeName(cards.Last()))
	}
}

func TestCardsOrLinkParentsPrefersCards(t *testing.T) {
	doc := mustDoc(t, `<div class="card"><a href="/listing/a">A</a></div><div class="card"></div>`)
	if got := cardsOrLinkParents(doc, ".card", "a[href*='/listing/']").Length(); got != 2 {
		t.Fatalf("expected both cards, got %d", got)
	}
}

func TestImageURLSkipsDataURIs(t *testing.T) {
	doc := mustDoc(t, `<div><img src="data:image/gif;base64,R0lG" data-src="https://img.test/1.jpg"></div>`)
	if got := imageURL(doc.Selection, "img"); got != "https://img.test/1.jpg" {
		t.Fatalf("imageURL = %q", got)
	}
}

func TestDecodeItems(t *testing.T) {
	items := decodeItems([]byte(`{"data":{"results":[{"title":"a"},{"title":"b"},"noise"]}}`), "results")
	if len(items) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(items))
	}
	if got := decodeItems([]byte(`[{"title":"a"}]`)); len(got) != 1 {
		t.Fatalf("top-level arrays should decode, got %d", len(got))
	}
	if got := decodeItems([]byte(`not json`), "results"); got != nil {
		t.Fatalf("invalid json should decode to nil, got %v", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("Autohaus Müller", 10); got != "Autohaus M" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate = %q", got)
	}
}
