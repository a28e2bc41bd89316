package adapters

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/bernabe05rodriguez-stack/CarScraper/models"
	"github.com/bernabe05rodriguez-stack/CarScraper/scraper"
)

// CarGurus entity ids for makes; models resolve through cargurusModels.
var cargurusMakes = map[string]string{
	"acura": "m4", "alfa romeo": "m124", "audi": "m19", "bmw": "m3",
	"buick": "m21", "cadillac": "m22", "chevrolet": "m1", "chrysler": "m23",
	"dodge": "m24", "fiat": "m98", "ford": "m2", "genesis": "m203",
	"gmc": "m26", "honda": "m6", "hyundai": "m28", "infiniti": "m84",
	"jaguar": "m31", "jeep": "m32", "kia": "m33", "land rover": "m35",
	"lexus": "m37", "lincoln": "m38", "maserati": "m40", "mazda": "m42",
	"mercedes-benz": "m43", "mini": "m45", "mitsubishi": "m46",
	"nissan": "m12", "pontiac": "m47", "porsche": "m48", "ram": "m191",
	"scion": "m52", "subaru": "m53", "toyota": "m7", "volkswagen": "m55",
	"volvo": "m56", "tesla": "m112", "aston martin": "m110",
	"ferrari": "m25", "lamborghini": "m34", "mclaren": "m141",
	"rolls-royce": "m49", "bentley": "m20", "rivian": "m233",
	"lucid": "m234", "polestar": "m219",
}

var cargurusModels = map[string]map[string]string{
	"bmw":           {"m2": "d2396", "m3": "d390", "m4": "d2258", "m5": "d391", "x5": "d393", "z4": "d395", "3 series": "d1512", "5 series": "d1628"},
	"chevrolet":     {"camaro": "d606", "corvette": "d1", "silverado 1500": "d630", "tahoe": "d639"},
	"ford":          {"bronco": "d320", "f-150": "d337", "mustang": "d2", "ranger": "d354"},
	"honda":         {"accord": "d585", "civic": "d586", "civic type r": "d2568", "s2000": "d596"},
	"mercedes-benz": {"c-class": "d66", "e-class": "d76", "g-class": "d78", "s-class": "d82", "sl-class": "d84"},
	"nissan":        {"350z": "d236", "370z": "d2018", "gt-r": "d1103"},
	"porsche":       {"718 boxster": "d2416", "718 cayman": "d2430", "911": "d404", "boxster": "d408", "cayenne": "d410", "cayman": "d993", "macan": "d2261", "panamera": "d1037", "taycan": "d2974"},
	"toyota":        {"4runner": "d290", "camry": "d292", "land cruiser": "d299", "supra": "d309", "tacoma": "d311"},
	"volkswagen":    {"golf": "d198", "golf gti": "d199", "golf r": "d2131", "jetta": "d200"},
}

var (
	cargurusTitle    = regexp.MustCompile(`"listingTitle":"([^"]*)"`)
	cargurusID       = regexp.MustCompile(`"id":(\d{6,})`)
	cargurusYear     = regexp.MustCompile(`"carYear":"?(\d{4})"?`)
	cargurusMake     = regexp.MustCompile(`"makeName":"([^"]+)"`)
	cargurusModel    = regexp.MustCompile(`"modelName":"([^"]+)"`)
	cargurusTrim     = regexp.MustCompile(`"trimName":"([^"]+)"`)
	cargurusPrice    = regexp.MustCompile(`"priceData":\{[^}]*"current":(\d+)`)
	cargurusPriceAlt = regexp.MustCompile(`"price":(\d+)`)
	cargurusMileage  = regexp.MustCompile(`"mileageData":\{"value":(\d+)`)
	cargurusLocation = regexp.MustCompile(`"displayLocation":"([^"]+)"`)
	cargurusImage    = regexp.MustCompile(`"pictureData":\{"url":"([^"]+)"`)
	cargurusDealer   = regexp.MustCompile(`"serviceProviderName":"([^"]+)"`)
	cargurusDOM      = regexp.MustCompile(`"daysOnMarket":(\d+)`)
)

// cargurusWindow is how far around each title the listing's fields are searched.
const cargurusWindow = 2000

// CarGurus reads the listing JSON CarGurus inlines into its search pages.
type CarGurus struct {
	base
	fetcher Fetcher
}

// NewCarGurus creates the CarGurus adapter.
func NewCarGurus(fetcher Fetcher, opts Options) *CarGurus {
	return &CarGurus{
		base: newBase(scraper.Info{
			Platform: models.PlatformCarGurus,
			Name:     "CarGurus",
			Region:   models.RegionUSA,
			Kind:     models.KindUsedCar,
			Currency: models.CurrencyUSD,
			BaseURL:  "https://www.cargurus.com",
			Strategy: scraper.StrategyStatic,
		}, opts),
		fetcher: fetcher,
	}
}

// resolveEntity maps make/model onto a CarGurus entity id, preferring the model.
func resolveEntity(makeName, modelName string) (string, bool) {
	mk := strings.ToLower(strings.TrimSpace(makeName))
	if modelName != "" {
		md := strings.ToLower(strings.TrimSpace(modelName))
		if id, ok := cargurusModels[mk][md]; ok {
			return id, true
		}
		for name, id := range cargurusModels[mk] {
			if strings.Contains(name, md) || strings.Contains(md, name) {
				return id, true
			}
		}
	}
	if id, ok := cargurusMakes[mk]; ok {
		return id, true
	}
	for name, id := range cargurusMakes {
		if strings.HasPrefix(name, mk) {
			return id, true
		}
	}
	return "", false
}

func (a *CarGurus) searchURL(spec models.SearchSpec, entity string) string {
	slug := "l-Used-" + strings.ReplaceAll(strings.TrimSpace(spec.Make), " ", "-")
	if spec.Model != "" {
		slug += "-" + strings.ReplaceAll(strings.TrimSpace(spec.Model), " ", "-")
	}
	return fmt.Sprintf("%s/Cars/%s-%s", a.info.BaseURL, slug, entity)
}

// Search fetches the entity landing page. Year bounds are applied locally.
func (a *CarGurus) Search(ctx context.Context, spec models.SearchSpec) (scraper.Result, error) {
	entity, ok := resolveEntity(spec.Make, spec.Model)
	if !ok {
		a.log.Warn("no cargurus entity for search", slog.String("make", spec.Make), slog.String("model", spec.Model))
		return scraper.Result{Warnings: []string{fmt.Sprintf("cargurus has no entity for %q %q", spec.Make, spec.Model)}}, nil
	}

	res, err := a.paginate(ctx, func(ctx context.Context, _ int) (scraper.PageResult, error) {
		page, err := a.fetcher.Fetch(ctx, a.searchURL(spec, entity))
		if err != nil {
			return scraper.PageResult{}, err
		}
		return a.parsePage(string(page.Body)), nil
	})
	if err != nil {
		return scraper.Result{}, err
	}
	return a.finish(res, spec, scraper.FilterOptions{}), nil
}

func (a *CarGurus) parsePage(html string) scraper.PageResult {
	pr := scraper.PageResult{
		Empty: strings.Contains(html, `"totalListings":0`) || strings.Contains(html, "No matching listings"),
	}
	seen := make(map[string]bool)
	titles := cargurusTitle.FindAllStringSubmatchIndex(html, -1)
	for i, loc := range titles {
		title := html[loc[2]:loc[3]]
		w := listingWindow(html, titles, i)

		id := w.field(cargurusID)
		if id != "" {
			if seen[id] {
				continue
			}
			seen[id] = true
		}
		pr.Containers++

		year, _ := strconv.Atoi(w.field(cargurusYear))
		mk := w.field(cargurusMake)
		if year == 0 || mk == "" {
			pr.Skip("missing year or make")
			continue
		}
		l := models.Listing{
			Title:      title,
			Year:       year,
			Make:       mk,
			Model:      w.field(cargurusModel),
			Trim:       w.field(cargurusTrim),
			Location:   w.field(cargurusLocation),
			DealerName: w.field(cargurusDealer),
			ImageURL:   w.field(cargurusImage),
		}
		price := w.field(cargurusPrice)
		if price == "" {
			price = w.field(cargurusPriceAlt)
		}
		if v, err := strconv.ParseFloat(price, 64); err == nil {
			l.Price = models.Float(v)
		}
		if v, err := strconv.Atoi(w.field(cargurusMileage)); err == nil {
			l.Mileage = models.Int(v)
		}
		if v, err := strconv.Atoi(w.field(cargurusDOM)); err == nil {
			l.DaysOnMarket = models.Int(v)
		}
		if id != "" {
			l.URL = a.info.BaseURL + "/details/" + id
		}
		pr.Listings = append(pr.Listings, l)
	}
	return pr
}

// window is the text around one listing title, split at the title so fields
// after it are preferred over those of the previous listing.
type window struct {
	after  string
	before string
}

func listingWindow(html string, titles [][]int, i int) window {
	loc := titles[i]
	end := min(len(html), loc[1]+cargurusWindow)
	if i+1 < len(titles) {
		end = min(end, titles[i+1][0])
	}
	start := max(0, loc[0]-cargurusWindow)
	if i > 0 {
		start = max(start, titles[i-1][1])
	}
	return window{after: html[loc[1]:end], before: html[start:loc[0]]}
}

func (w window) field(re *regexp.Regexp) string {
	if m := re.FindStringSubmatch(w.after); m != nil {
		return m[1]
	}
	all := re.FindAllStringSubmatch(w.before, -1)
	if len(all) == 0 {
		return ""
	}
	return all[len(all)-1][1]
}
