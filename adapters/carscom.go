package adapters

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/bernabe05rodriguez-stack/CarScraper/models"
	"github.com/bernabe05rodriguez-stack/CarScraper/parser"
	"github.com/bernabe05rodriguez-stack/CarScraper/scraper"
)

const carsComPageSize = 20

// CarsCom scrapes the server-rendered cars.com shopping results.
type CarsCom struct {
	base
	fetcher Fetcher
}

// NewCarsCom creates the cars.com adapter.
func NewCarsCom(fetcher Fetcher, opts Options) *CarsCom {
	return &CarsCom{
		base: newBase(scraper.Info{
			Platform: models.PlatformCarsCom,
			Name:     "Cars.com",
			Region:   models.RegionUSA,
			Kind:     models.KindUsedCar,
			Currency: models.CurrencyUSD,
			BaseURL:  "https://www.cars.com",
			Strategy: scraper.StrategyStatic,
		}, opts),
		fetcher: fetcher,
	}
}

func (a *CarsCom) searchURL(spec models.SearchSpec, page int) string {
	makeSlug := underscoreSlug(spec.Make)
	q := url.Values{}
	q.Set("stock_type", "used")
	q.Set("maximum_distance", "all")
	q.Set("sort", "best_match_desc")
	q.Set("page_size", strconv.Itoa(carsComPageSize))
	q.Set("page", strconv.Itoa(page))
	q.Set("makes[]", makeSlug)
	if spec.Model != "" {
		q.Set("models[]", makeSlug+"-"+underscoreSlug(spec.Model))
	}
	if spec.YearFrom > 0 {
		q.Set("year_min", strconv.Itoa(spec.YearFrom))
	}
	if spec.YearTo > 0 {
		q.Set("year_max", strconv.Itoa(spec.YearTo))
	}
	if spec.Keyword != "" {
		q.Set("keyword", spec.Keyword)
	}
	return a.info.BaseURL + "/shopping/results/?" + q.Encode()
}

// Search walks the paginated results.
func (a *CarsCom) Search(ctx context.Context, spec models.SearchSpec) (scraper.Result, error) {
	res, err := a.paginate(ctx, func(ctx context.Context, page int) (scraper.PageResult, error) {
		fetched, err := a.fetcher.Fetch(ctx, a.searchURL(spec, page))
		if err != nil {
			return scraper.PageResult{}, err
		}
		doc, err := fetched.Document()
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

func (a *CarsCom) parsePage(doc *goquery.Document) scraper.PageResult {
	cards := doc.Find(".vehicle-card, .listing-row, [data-qa='results-card']")
	pr := scraper.PageResult{
		Containers: cards.Length(),
		Empty:      doc.Find(".sds-page-section--no-results, [data-qa='no-results']").Length() > 0,
		HasNext:    doc.Find("#next_paginate, a[aria-label='Next page']").Length() > 0 || cards.Length() >= carsComPageSize,
	}
	cards.Each(func(_ int, card *goquery.Selection) {
		l, reason := a.parseCard(card)
		if reason != "" {
			pr.Skip(reason)
			return
		}
		pr.Listings = append(pr.Listings, l)
	})
	return pr
}

func (a *CarsCom) parseCard(card *goquery.Selection) (models.Listing, string) {
	link := firstMatch(card, "h2 a", ".vehicle-card-link", "a.vehicle-card-visited-tracking-link", "a[href*='/vehicledetail/']")
	title := firstText(card, "h2", ".title")
	if title == "" && link != nil {
		title = parser.Clean(link.Text())
	}
	if title == "" {
		return models.Listing{}, "missing title"
	}
	price, ok := parser.ParsePriceUSD(firstText(card, ".primary-price", "[class*='primary-price']", ".listing-row__price"))
	if !ok {
		return models.Listing{}, "missing price"
	}

	href := ""
	if link != nil {
		href, _ = link.Attr("href")
	}
	t := parser.ParseTitle(title)
	l := models.Listing{
		Title:      title,
		Year:       t.Year,
		Make:       t.Make,
		Model:      t.Model,
		Trim:       t.Trim,
		Price:      models.Float(price),
		Mileage:    ptrInt(parser.ParseCount(firstText(card, ".mileage", "[class*='mileage']"))),
		DealerName: firstText(card, ".dealer-name", "[class*='dealer-name']"),
		Location:   firstText(card, ".miles-from", "[class*='miles-from']"),
		URL:        parser.AbsoluteURL(a.info.BaseURL, href),
		ImageURL:   imageURL(card, "img"),
	}
	return l, ""
}

func underscoreSlug(text string) string {
	return strings.ReplaceAll(strings.ToLower(parser.Clean(text)), " ", "_")
}
