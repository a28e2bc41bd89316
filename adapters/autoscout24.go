package adapters

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/bernabe05rodriguez-stack/CarScraper/models"
	"github.com/bernabe05rodriguez-stack/CarScraper/parser"
	"github.com/bernabe05rodriguez-stack/CarScraper/scraper"
)

const autoScout24PageSize = 20

// AutoScout24 reads the listing state embedded in the server-rendered page.
type AutoScout24 struct {
	base
	fetcher Fetcher
}

// NewAutoScout24 creates the AutoScout24 adapter.
func NewAutoScout24(fetcher Fetcher, opts Options) *AutoScout24 {
	return &AutoScout24{
		base: newBase(scraper.Info{
			Platform: models.PlatformAutoScout24,
			Name:     "AutoScout24",
			Region:   models.RegionGermany,
			Kind:     models.KindUsedCar,
			Currency: models.CurrencyEUR,
			BaseURL:  "https://www.autoscout24.de",
			Strategy: scraper.StrategyStatic,
		}, opts),
		fetcher: fetcher,
	}
}

func (a *AutoScout24) searchURL(spec models.SearchSpec, page int) string {
	path := "/lst/" + parser.Slug(spec.Make)
	if spec.Model != "" {
		path += "/" + parser.Slug(spec.Model)
	}
	q := url.Values{}
	q.Set("sort", "standard")
	q.Set("desc", "0")
	q.Set("ustate", "N,U")
	q.Set("size", strconv.Itoa(autoScout24PageSize))
	q.Set("page", strconv.Itoa(page))
	q.Set("cy", "D")
	q.Set("atype", "C")
	if spec.YearFrom > 0 {
		q.Set("fregfrom", strconv.Itoa(spec.YearFrom))
	}
	if spec.YearTo > 0 {
		q.Set("fregto", strconv.Itoa(spec.YearTo))
	}
	if spec.Keyword != "" {
		q.Set("search_query", spec.Keyword)
	}
	return a.info.BaseURL + path + "?" + q.Encode()
}

// Search pages through the results until a page carries no listings.
func (a *AutoScout24) Search(ctx context.Context, spec models.SearchSpec) (scraper.Result, error) {
	res, err := a.paginate(ctx, func(ctx context.Context, page int) (scraper.PageResult, error) {
		fetched, err := a.fetcher.Fetch(ctx, a.searchURL(spec, page))
		if err != nil {
			return scraper.PageResult{}, err
		}
		return a.parsePage(fetched)
	})
	if err != nil {
		return scraper.Result{}, err
	}
	return a.finish(res, spec, scraper.FilterOptions{}), nil
}

func (a *AutoScout24) parsePage(page *scraper.Page) (scraper.PageResult, error) {
	doc, err := page.Document()
	if err != nil {
		return scraper.PageResult{}, err
	}
	data, err := parser.NextData(doc)
	if err != nil {
		return scraper.PageResult{}, scraper.ParseFailure("autoscout24 page state: %v", err)
	}
	items := parser.FindObjects(data, "listings")
	pr := scraper.PageResult{
		Containers: len(items),
		Empty:      len(items) == 0,
		HasNext:    len(items) >= autoScout24PageSize,
	}
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

func (a *AutoScout24) parseItem(item map[string]any) (models.Listing, string) {
	makeName := parser.String(item, "vehicle", "make")
	modelName := parser.String(item, "vehicle", "model")
	if makeName == "" {
		return models.Listing{}, "missing make"
	}
	trim := parser.String(item, "vehicle", "modelVersionInput")
	title := strings.TrimSpace(strings.Join([]string{makeName, modelName, trim}, " "))

	l := models.Listing{
		Title:      parser.Clean(title),
		Make:       makeName,
		Model:      modelName,
		Trim:       trim,
		DealerName: parser.String(item, "seller", "companyName"),
		URL:        parser.AbsoluteURL(a.info.BaseURL, parser.String(item, "url")),
	}
	if v, ok := parser.Number(item, "tracking", "price"); ok {
		l.Price = models.Float(v)
	} else {
		l.Price = ptrFloat(parser.ParsePriceEUR(parser.String(item, "price", "priceFormatted")))
	}
	if v, ok := parser.Number(item, "tracking", "mileage"); ok {
		l.Mileage = models.Int(int(v))
	}
	if year, ok := parser.FindYear(parser.String(item, "tracking", "firstRegistration")); ok {
		l.Year = year
	}
	l.Location = parser.Clean(parser.String(item, "location", "zip") + " " + parser.String(item, "location", "city"))
	if images, ok := item["images"].([]any); ok && len(images) > 0 {
		l.ImageURL, _ = images[0].(string)
	}
	return l, ""
}
