package adapters

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/bernabe05rodriguez-stack/CarScraper/models"
	"github.com/bernabe05rodriguez-stack/CarScraper/parser"
	"github.com/bernabe05rodriguez-stack/CarScraper/scraper"
)

var batEndedOn = regexp.MustCompile(`on (\d{1,2}/\d{1,2}/\d{2,4})`)

// BaT scrapes Bring a Trailer model pages, which list completed auctions server side.
type BaT struct {
	base
	fetcher Fetcher
}

// NewBaT creates the Bring a Trailer adapter.
func NewBaT(fetcher Fetcher, opts Options) *BaT {
	return &BaT{
		base: newBase(scraper.Info{
			Platform: models.PlatformBaT,
			Name:     "Bring a Trailer",
			Region:   models.RegionUSA,
			Kind:     models.KindAuction,
			Currency: models.CurrencyUSD,
			BaseURL:  "https://bringatrailer.com",
			Strategy: scraper.StrategyStatic,
		}, opts),
		fetcher: fetcher,
	}
}

func (a *BaT) searchURL(spec models.SearchSpec) string {
	path := "/" + parser.Slug(spec.Make) + "/"
	if spec.Model != "" {
		path += parser.Slug(spec.Model) + "/"
	}
	return a.info.BaseURL + path
}

// Search reads the single model page; BaT loads older results through an API we do not call.
func (a *BaT) Search(ctx context.Context, spec models.SearchSpec) (scraper.Result, error) {
	res, err := a.paginate(ctx, func(ctx context.Context, _ int) (scraper.PageResult, error) {
		page, err := a.fetcher.Fetch(ctx, a.searchURL(spec))
		if err != nil {
			return scraper.PageResult{}, err
		}
		doc, err := page.Document()
		if err != nil {
			return scraper.PageResult{}, err
		}
		return a.parsePage(doc), nil
	})
	if err != nil {
		return scraper.Result{}, err
	}
	return a.finish(res, spec, scraper.FilterOptions{}), nil
}

func (a *BaT) parsePage(doc *goquery.Document) scraper.PageResult {
	cards := doc.Find(".listing-card")
	if cards.Length() == 0 {
		cards = cardsOrLinkParents(doc, "div[data-listing_id]", "a[href*='/listing/']")
	}

	pr := scraper.PageResult{
		Containers: cards.Length(),
		Empty:      doc.Find(".listings-empty, .no-results").Length() > 0,
	}
	cards.Each(func(_ int, card *goquery.Selection) {
		listing, reason := a.parseCard(card)
		if reason != "" {
			pr.Skip(reason)
			return
		}
		pr.Listings = append(pr.Listings, listing)
	})
	return pr
}

func (a *BaT) parseCard(card *goquery.Selection) (models.Listing, string) {
	link := firstMatch(card, "h3 a", ".content-main h3 a", "a.image-overlay")
	if link == nil {
		return models.Listing{}, "missing title"
	}
	title := parser.Clean(link.Text())
	if title == "" {
		title, _ = link.Attr("title")
	}
	if title == "" {
		return models.Listing{}, "missing title"
	}
	href, _ := link.Attr("href")
	if href == "" {
		href, _ = card.Find("a.image-overlay").Attr("href")
	}

	t := parser.ParseTitle(title)
	l := models.Listing{
		Title:    title,
		Year:     t.Year,
		Make:     t.Make,
		Model:    t.Model,
		Trim:     t.Trim,
		URL:      parser.AbsoluteURL(a.info.BaseURL, href),
		ImageURL: imageURL(card, ".thumbnail img"),
	}

	label := strings.ToLower(firstText(card, ".bid-label"))
	results := strings.ToLower(firstText(card, ".item-results"))
	l.Sold = (strings.Contains(results, "sold") && !strings.Contains(results, "not sold")) ||
		(results == "" && strings.Contains(label, "sold"))

	priceText := firstText(card, ".bid-formatted.bold", ".bid-formatted")
	if priceText == "" {
		priceText = results
	}
	if price, ok := parser.ParsePriceUSD(priceText); ok {
		if l.Sold {
			l.Price = models.Float(price)
		} else {
			l.HighBid = models.Float(price)
		}
	}
	if m := batEndedOn.FindStringSubmatch(results); m != nil {
		if ended, err := parseUSDate(m[1]); err == nil {
			l.EndedAt = &ended
		}
	}
	return l, ""
}

func parseUSDate(s string) (time.Time, error) {
	for _, layout := range []string{"1/2/06", "1/2/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
