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

const mobileDePageSize = 20

// MobileDe renders mobile.de searches; the result list is built client side.
type MobileDe struct {
	base
	renderer scraper.Renderer
}

// NewMobileDe creates the mobile.de adapter.
func NewMobileDe(renderer scraper.Renderer, opts Options) *MobileDe {
	return &MobileDe{
		base: newBase(scraper.Info{
			Platform: models.PlatformMobileDe,
			Name:     "mobile.de",
			Region:   models.RegionGermany,
			Kind:     models.KindUsedCar,
			Currency: models.CurrencyEUR,
			BaseURL:  "https://suchen.mobile.de",
			Strategy: scraper.StrategyRendered,
		}, opts),
		renderer: renderer,
	}
}

func (a *MobileDe) searchURL(spec models.SearchSpec, page int) string {
	q := url.Values{}
	q.Set("isSearchRequest", "true")
	q.Set("damageUnrepaired", "NO_DAMAGE_UNREPAIRED")
	q.Set("scopeId", "C")
	q.Set("sfmr", "false")
	q.Set("pageNumber", strconv.Itoa(page))
	if query := spec.Query(); query != "" {
		q.Set("q", query)
	}
	if spec.YearFrom > 0 {
		q.Set("minFirstRegistrationDate", strconv.Itoa(spec.YearFrom))
	}
	if spec.YearTo > 0 {
		q.Set("maxFirstRegistrationDate", strconv.Itoa(spec.YearTo))
	}
	return a.info.BaseURL + "/fahrzeuge/search.html?" + q.Encode()
}

// Search walks the rendered result pages.
func (a *MobileDe) Search(ctx context.Context, spec models.SearchSpec) (scraper.Result, error) {
	res, err := a.paginate(ctx, func(ctx context.Context, page int) (scraper.PageResult, error) {
		rendered, err := a.render(ctx, a.renderer, a.searchURL(spec, page), nil)
		if err != nil {
			return scraper.PageResult{}, err
		}
		doc, err := rendered.Document()
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

func (a *MobileDe) parsePage(doc *goquery.Document) scraper.PageResult {
	cards := cardsOrLinkParents(doc,
		"[data-testid='result-listing'], .cBox-body--resultitem, .result-item, .search-result-entry, [class*='result-listing'], [class*='ResultItem']",
		"a[href*='/fahrzeuge/details']")
	pr := scraper.PageResult{
		Containers: cards.Length(),
		Empty:      doc.Find("[data-testid='no-results'], .no-results").Length() > 0,
		HasNext:    doc.Find("[data-testid='pagination:next']").Length() > 0 || cards.Length() >= mobileDePageSize,
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

func (a *MobileDe) parseCard(card *goquery.Selection) (models.Listing, string) {
	link := firstMatch(card, "a.link--muted", "[data-testid='result-title']", "h2 a", ".headline a", "a[href*='/fahrzeuge/details']")
	if link == nil {
		return models.Listing{}, "missing title"
	}
	title := parser.Clean(link.Text())
	if title == "" {
		return models.Listing{}, "missing title"
	}
	href, _ := link.Attr("href")
	if href == "" {
		href, _ = card.Find("a[href*='/fahrzeuge/details']").First().Attr("href")
	}

	price, ok := parser.ParsePriceEUR(firstText(card, "[data-testid='price-label']", ".price-block", ".seller-currency", "[class*='price']"))
	if !ok {
		return models.Listing{}, "missing price"
	}

	cardText := parser.Clean(card.Text())
	t := parser.ParseTitle(title)
	l := models.Listing{
		Title:      title,
		Year:       t.Year,
		Make:       t.Make,
		Model:      t.Model,
		Trim:       t.Trim,
		Currency:   models.CurrencyEUR,
		Price:      models.Float(price),
		DealerName: truncate(firstText(card, "[data-testid='seller-info']", ".seller-info"), 100),
		Location:   firstText(card, "[data-testid='seller-address']", ".seller-address"),
		URL:        parser.AbsoluteURL("https://www.mobile.de", href),
		ImageURL:   imageURL(card, "img"),
	}
	if km, ok := parser.ParseCount(firstText(card, "[data-testid='mileage-label']", ".rbt-regMil498")); ok {
		l.Mileage = models.Int(km)
	} else {
		l.Mileage = ptrInt(parser.ParseKilometres(cardText))
	}
	if l.Year == 0 {
		reg := firstText(card, "[data-testid='firstRegistration-label']", ".rbt-regDate")
		if reg == "" {
			reg = cardText
		}
		if year, ok := parser.FindRegistrationYear(reg); ok {
			l.Year = year
		}
	}
	return l, ""
}
