package adapters

import (
	"context"
	"net/url"
	"strconv"

	"github.com/PuerkitoBio/goquery"
	"github.com/bernabe05rodriguez-stack/CarScraper/models"
	"github.com/bernabe05rodriguez-stack/CarScraper/parser"
	"github.com/bernabe05rodriguez-stack/CarScraper/scraper"
)

const autotraderPageSize = 25

// Autotrader renders inventory search pages; results arrive over XHR.
type Autotrader struct {
	base
	renderer scraper.Renderer
}

// NewAutotrader creates the Autotrader adapter.
func NewAutotrader(renderer scraper.Renderer, opts Options) *Autotrader {
	return &Autotrader{
		base: newBase(scraper.Info{
			Platform: models.PlatformAutotrader,
			Name:     "Autotrader",
			Region:   models.RegionUSA,
			Kind:     models.KindUsedCar,
			Currency: models.CurrencyUSD,
			BaseURL:  "https://www.autotrader.com",
			Strategy: scraper.StrategyRendered,
		}, opts),
		renderer: renderer,
	}
}

func (a *Autotrader) searchURL(spec models.SearchSpec, page int) string {
	path := "/cars-for-sale/all-cars/" + parser.Slug(spec.Make)
	if spec.Model != "" {
		path += "/" + parser.Slug(spec.Model)
	}
	q := url.Values{}
	q.Set("searchRadius", "0")
	q.Set("isNewSearch", "true")
	q.Set("sortBy", "relevance")
	q.Set("numRecords", strconv.Itoa(autotraderPageSize))
	q.Set("firstRecord", strconv.Itoa((page-1)*autotraderPageSize))
	if spec.YearFrom > 0 {
		q.Set("startYear", strconv.Itoa(spec.YearFrom))
	}
	if spec.YearTo > 0 {
		q.Set("endYear", strconv.Itoa(spec.YearTo))
	}
	if spec.Keyword != "" {
		q.Set("keywordPhrases", spec.Keyword)
	}
	return a.info.BaseURL + path + "?" + q.Encode()
}

// Search walks result pages of autotraderPageSize records each.
func (a *Autotrader) Search(ctx context.Context, spec models.SearchSpec) (scraper.Result, error) {
	res, err := a.paginate(ctx, func(ctx context.Context, page int) (scraper.PageResult, error) {
		rendered, err := a.render(ctx, a.renderer, a.searchURL(spec, page),
			scraper.CaptureJSON("/rest/searchresults", "/api/", "/rest/lsc/", "searchResults"))
		if err != nil {
			return scraper.PageResult{}, err
		}
		return a.parsePage(rendered)
	})
	if err != nil {
		return scraper.Result{}, err
	}
	return a.finish(res, spec, scraper.FilterOptions{}), nil
}

func (a *Autotrader) parsePage(page *scraper.Page) (scraper.PageResult, error) {
	var items []map[string]any
	for _, body := range page.Captured {
		items = append(items, decodeItems(body, "listings", "results", "vehicles", "items")...)
	}
	doc, err := page.Document()
	if err != nil {
		return scraper.PageResult{}, err
	}
	if len(items) == 0 {
		if data, err := parser.NextData(doc); err == nil {
			items = parser.FindObjects(data, "listings", "results", "vehicles")
		}
	}

	var pr scraper.PageResult
	if len(items) > 0 {
		pr.Containers = len(items)
		for _, item := range items {
			l, reason := a.parseItem(item)
			if reason != "" {
				pr.Skip(reason)
				continue
			}
			pr.Listings = append(pr.Listings, l)
		}
	} else {
		cards := doc.Find("[data-cmp='inventoryListing'], .inventory-listing, [class*='listing-card'], .vehicle-card, [data-testid='listing']")
		pr.Containers = cards.Length()
		pr.Empty = doc.Find("[data-cmp='noResults'], .no-results").Length() > 0
		cards.Each(func(_ int, card *goquery.Selection) {
			l, reason := a.parseCard(card)
			if reason != "" {
				pr.Skip(reason)
				return
			}
			pr.Listings = append(pr.Listings, l)
		})
	}
	pr.HasNext = pr.Containers >= autotraderPageSize
	return pr, nil
}

func (a *Autotrader) parseItem(item map[string]any) (models.Listing, string) {
	title := parser.String(item, "title")
	if title == "" {
		return models.Listing{}, "missing title"
	}
	t := parser.ParseTitle(title)
	l := models.Listing{
		Title:      title,
		Year:       t.Year,
		Make:       t.Make,
		Model:      t.Model,
		Trim:       t.Trim,
		DealerName: parser.String(item, "owner", "name"),
		Location:   parser.String(item, "owner", "location", "city"),
	}

	if v, ok := parser.Number(item, "pricingDetail", "primary"); ok {
		l.Price = models.Float(v)
	} else if raw := parser.String(item, "pricingDetail", "primary"); raw != "" {
		l.Price = ptrFloat(parser.ParsePriceUSD(raw))
	} else if v, ok := parser.Number(item, "listPrice"); ok {
		l.Price = models.Float(v)
	}
	if l.Price == nil {
		return models.Listing{}, "missing price"
	}

	if v, ok := parser.Number(item, "specifications", "mileage", "value"); ok {
		l.Mileage = models.Int(int(v))
	} else if raw := parser.String(item, "specifications", "mileage", "value"); raw != "" {
		l.Mileage = ptrInt(parser.ParseCount(raw))
	}
	if v, ok := parser.Number(item, "daysOnMarket"); ok {
		l.DaysOnMarket = models.Int(int(v))
	}

	href := parser.String(item, "href")
	if href == "" {
		href = parser.String(item, "url")
	}
	l.URL = parser.AbsoluteURL(a.info.BaseURL, href)
	l.ImageURL = parser.String(item, "image")
	if l.ImageURL == "" {
		l.ImageURL = parser.String(item, "primaryPhotoUrl")
	}
	return l, ""
}

func (a *Autotrader) parseCard(card *goquery.Selection) (models.Listing, string) {
	title := firstText(card, "h2", "h3", "[data-cmp='inventoryListingTitle']")
	if title == "" {
		return models.Listing{}, "missing title"
	}
	price, ok := parser.ParsePriceUSD(firstText(card, ".first-price", "[data-cmp='firstPrice']", ".primary-price", "[class*='price']"))
	if !ok {
		return models.Listing{}, "missing price"
	}
	href, _ := card.Find("a[href*='/cars-for-sale/']").First().Attr("href")

	t := parser.ParseTitle(title)
	l := models.Listing{
		Title:      title,
		Year:       t.Year,
		Make:       t.Make,
		Model:      t.Model,
		Trim:       t.Trim,
		Price:      models.Float(price),
		DealerName: firstText(card, "[class*='dealer']", ".dealer-name"),
		URL:        parser.AbsoluteURL(a.info.BaseURL, href),
		ImageURL:   imageURL(card, "img"),
	}
	card.Find("[class*='mileage'], [class*='specifications'], li").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := parser.Clean(s.Text())
		if n, ok := parser.ParseCount(text); ok && containsAny(text, "miles", "mi.") {
			l.Mileage = models.Int(n)
			return false
		}
		return true
	})
	return l, ""
}
