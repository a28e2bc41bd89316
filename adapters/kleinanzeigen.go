package adapters

import (
	"context"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/bernabe05rodriguez-stack/CarScraper/models"
	"github.com/bernabe05rodriguez-stack/CarScraper/parser"
	"github.com/bernabe05rodriguez-stack/CarScraper/scraper"
)

// kleinanzeigenCategory is the "Autos" category id.
const kleinanzeigenCategory = "k0c216"

// Kleinanzeigen scrapes private classifieds. Prices are often negotiable and may be missing.
type Kleinanzeigen struct {
	base
	fetcher Fetcher
}

// NewKleinanzeigen creates the Kleinanzeigen adapter.
func NewKleinanzeigen(fetcher Fetcher, opts Options) *Kleinanzeigen {
	return &Kleinanzeigen{
		base: newBase(scraper.Info{
			Platform: models.PlatformKleinanzeigen,
			Name:     "Kleinanzeigen",
			Region:   models.RegionGermany,
			Kind:     models.KindUsedCar,
			Currency: models.CurrencyEUR,
			BaseURL:  "https://www.kleinanzeigen.de",
			Strategy: scraper.StrategyStatic,
		}, opts),
		fetcher: fetcher,
	}
}

func (a *Kleinanzeigen) searchURL(spec models.SearchSpec, page int) string {
	var parts []string
	for _, p := range []string{spec.Make, spec.Model, spec.Keyword} {
		if p = parser.Slug(p); p != "" {
			parts = append(parts, p)
		}
	}
	query := strings.Join(parts, "-")
	if query == "" {
		query = "auto"
	}
	if page == 1 {
		return a.info.BaseURL + "/s-autos/" + query + "/" + kleinanzeigenCategory
	}
	return a.info.BaseURL + "/s-autos/seite:" + strconv.Itoa(page) + "/" + query + "/" + kleinanzeigenCategory
}

// Search walks the result pages.
func (a *Kleinanzeigen) Search(ctx context.Context, spec models.SearchSpec) (scraper.Result, error) {
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

func (a *Kleinanzeigen) parsePage(doc *goquery.Document) scraper.PageResult {
	cards := cardsOrLinkParents(doc, "article.aditem, [data-testid='ad-listitem'], .ad-listitem", "a[href*='/s-anzeige/']")
	pr := scraper.PageResult{
		Containers: cards.Length(),
		Empty:      doc.Find(".outcome-noresults, [data-testid='no-results']").Length() > 0,
		HasNext:    doc.Find("a.pagination-next, [data-testid='pagination-next']").Length() > 0,
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

func (a *Kleinanzeigen) parseCard(card *goquery.Selection) (models.Listing, string) {
	link := firstMatch(card, "a.ellipsis", "h2 a", "[data-testid='ad-title'] a", ".aditem-main--middle--title a", "a[href*='/s-anzeige/']")
	if link == nil {
		return models.Listing{}, "missing title"
	}
	title := parser.Clean(link.Text())
	if title == "" {
		return models.Listing{}, "missing title"
	}
	href, _ := link.Attr("href")
	text := strings.ToLower(parser.Clean(card.Text()))

	t := parser.ParseTitle(title)
	l := models.Listing{
		Title:    title,
		Year:     t.Year,
		Make:     t.Make,
		Model:    t.Model,
		Trim:     t.Trim,
		Price:    ptrFloat(parser.ParsePriceEUR(firstText(card, ".aditem-main--middle--price-shipping--price", "p.aditem-main--middle--price", "[class*='price']"))),
		Mileage:  ptrInt(parser.ParseKilometres(text)),
		Location: firstText(card, "[class*='location']", ".aditem-main--top--left"),
		URL:      parser.AbsoluteURL(a.info.BaseURL, href),
		ImageURL: imageURL(card, "img"),
	}
	if l.Year == 0 {
		if year, ok := parser.FindYear(text); ok {
			l.Year = year
		}
	}
	return l, ""
}
