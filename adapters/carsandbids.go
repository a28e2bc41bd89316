package adapters

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/bernabe05rodriguez-stack/CarScraper/models"
	"github.com/bernabe05rodriguez-stack/CarScraper/parser"
	"github.com/bernabe05rodriguez-stack/CarScraper/scraper"
)

var carsAndBidsItemKeys = []string{"auctions", "results", "listings", "data", "items", "content"}

// CarsAndBids renders the past-auctions page and reads the JSON the page fetches.
type CarsAndBids struct {
	base
	renderer scraper.Renderer
}

// NewCarsAndBids creates the Cars & Bids adapter.
func NewCarsAndBids(renderer scraper.Renderer, opts Options) *CarsAndBids {
	return &CarsAndBids{
		base: newBase(scraper.Info{
			Platform: models.PlatformCarsAndBids,
			Name:     "Cars & Bids",
			Region:   models.RegionUSA,
			Kind:     models.KindAuction,
			Currency: models.CurrencyUSD,
			BaseURL:  "https://carsandbids.com",
			Strategy: scraper.StrategyRendered,
		}, opts),
		renderer: renderer,
	}
}

func (a *CarsAndBids) searchURL(spec models.SearchSpec) string {
	q := url.Values{}
	q.Set("q", strings.TrimSpace(spec.Make+" "+spec.Model))
	if spec.YearFrom > 0 {
		q.Set("yearFrom", strconv.Itoa(spec.YearFrom))
	}
	if spec.YearTo > 0 {
		q.Set("yearTo", strconv.Itoa(spec.YearTo))
	}
	return a.info.BaseURL + "/past-auctions/?" + q.Encode()
}

// Search renders one results view. Intercepted API data wins over embedded page
// state, which wins over the rendered cards.
func (a *CarsAndBids) Search(ctx context.Context, spec models.SearchSpec) (scraper.Result, error) {
	res, err := a.paginate(ctx, func(ctx context.Context, _ int) (scraper.PageResult, error) {
		page, err := a.render(ctx, a.renderer, a.searchURL(spec),
			scraper.CaptureJSON("/api/", "/search", "/auctions", "graphql"))
		if err != nil {
			return scraper.PageResult{}, err
		}
		return a.parsePage(page)
	})
	if err != nil {
		return scraper.Result{}, err
	}
	return a.finish(res, spec, scraper.FilterOptions{DropUnknownYear: true}), nil
}

func (a *CarsAndBids) parsePage(page *scraper.Page) (scraper.PageResult, error) {
	var items []map[string]any
	for _, body := range page.Captured {
		items = append(items, decodeItems(body, carsAndBidsItemKeys...)...)
	}

	doc, err := page.Document()
	if err != nil {
		return scraper.PageResult{}, err
	}
	if len(items) == 0 {
		if data, err := parser.NextData(doc); err == nil {
			items = parser.FindObjects(data, "auctions", "results", "listings")
		}
	}

	if len(items) > 0 {
		pr := scraper.PageResult{Containers: len(items)}
		for _, item := range items {
			l, reason := a.parseItem(item)
			if reason != "" {
				pr.Skip(reason)
				continue
			}
			pr.Listings = append(pr.Listings, l)
		}
		return pr, nil
	}

	cards := cardsOrLinkParents(doc, ".auction-card, .past-auction, [class*='auction-card'], [class*='AuctionCard']", "a[href*='/auctions/']")
	pr := scraper.PageResult{
		Containers: cards.Length(),
		Empty:      strings.Contains(strings.ToLower(doc.Find("body").Text()), "no auctions found"),
	}
	cards.Each(func(_ int, card *goquery.Selection) {
		l, reason := a.parseCard(card)
		if reason != "" {
			pr.Skip(reason)
			return
		}
		pr.Listings = append(pr.Listings, l)
	})
	return pr, nil
}

func (a *CarsAndBids) parseItem(item map[string]any) (models.Listing, string) {
	title := parser.String(item, "title")
	if title == "" {
		return models.Listing{}, "missing title"
	}
	t := parser.ParseTitle(title)
	l := models.Listing{
		Title: title,
		Year:  t.Year,
		Make:  t.Make,
		Model: t.Model,
		Trim:  t.Trim,
	}
	if l.Year == 0 {
		if y, ok := parser.Number(item, "year"); ok {
			l.Year = int(y)
		}
	}
	if l.Make == "" {
		l.Make = parser.String(item, "make")
		l.Model = parser.String(item, "model")
	}

	status := strings.ToLower(parser.String(item, "status"))
	l.Sold = status == "sold" || status == "completed"

	var price *float64
	for _, key := range []string{"sold_price", "price", "currentBid", "current_bid"} {
		if raw, ok := item[key].(string); ok && raw != "" {
			lower := strings.ToLower(raw)
			if strings.Contains(lower, "not sold") || strings.Contains(lower, "bid to") {
				l.Sold = false
			}
			price = ptrFloat(parser.ParsePriceUSD(raw))
			break
		}
		if v, ok := parser.Number(item, key); ok {
			price = models.Float(v)
			break
		}
	}
	if l.Sold {
		l.Price = price
	} else {
		l.HighBid = price
	}

	for _, key := range []string{"bid_count", "bids", "bidCount"} {
		if v, ok := parser.Number(item, key); ok {
			l.BidCount = models.Int(int(v))
			break
		}
		if raw, ok := item[key].(string); ok {
			l.BidCount = ptrInt(parser.ParseCount(raw))
			break
		}
	}

	href := parser.String(item, "url")
	if href == "" {
		href = parser.String(item, "link")
	}
	if href == "" {
		if id := parser.String(item, "id"); id != "" {
			href = "/auctions/" + id
		}
	}
	l.URL = parser.AbsoluteURL(a.info.BaseURL, href)
	for _, key := range []string{"image", "photo_url", "thumbnail", "primaryPhotoUrl"} {
		if img := parser.String(item, key); img != "" {
			l.ImageURL = img
			break
		}
	}
	for _, key := range []string{"end_date", "endDate", "auction_end"} {
		if raw := parser.String(item, key); raw != "" {
			if ended, err := time.Parse(time.RFC3339, raw); err == nil {
				l.EndedAt = &ended
			}
			break
		}
	}
	return l, ""
}

func (a *CarsAndBids) parseCard(card *goquery.Selection) (models.Listing, string) {
	titleEl := firstMatch(card, "a h3", ".auction-title a", ".auction-title", "a.hero-link", "h2 a", "h3 a")
	if titleEl == nil {
		return models.Listing{}, "missing title"
	}
	title := parser.Clean(titleEl.Text())
	if title == "" {
		return models.Listing{}, "missing title"
	}
	href, _ := titleEl.Attr("href")
	if href == "" {
		href, _ = titleEl.Closest("a").Attr("href")
	}
	if href == "" {
		href, _ = card.Find("a[href*='/auctions/']").First().Attr("href")
	}
	if href == "" && goquery.NodeName(card) == "a" {
		href, _ = card.Attr("href")
	}

	t := parser.ParseTitle(title)
	l := models.Listing{
		Title:    title,
		Year:     t.Year,
		Make:     t.Make,
		Model:    t.Model,
		Trim:     t.Trim,
		URL:      parser.AbsoluteURL(a.info.BaseURL, href),
		ImageURL: imageURL(card, "img"),
	}
	text := strings.ToLower(parser.Clean(card.Text()))
	l.Sold = strings.Contains(text, "sold") && !strings.Contains(text, "not sold")

	priceText := firstText(card, ".auction-result", ".sold-price", ".current-bid", "[class*='price']", "[class*='bid-value']")
	if price, ok := parser.ParsePriceUSD(priceText); ok {
		if l.Sold {
			l.Price = models.Float(price)
		} else {
			l.HighBid = models.Float(price)
		}
	}
	l.BidCount = ptrInt(parser.ParseCount(firstText(card, ".bid-number", ".bids", "[class*='bid-count']")))
	return l, ""
}
