// Package source maps platform identifiers onto their marketplace adapters.
package source

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/bernabe05rodriguez-stack/CarScraper/adapters"
	"github.com/bernabe05rodriguez-stack/CarScraper/config"
	"github.com/bernabe05rodriguez-stack/CarScraper/models"
	"github.com/bernabe05rodriguez-stack/CarScraper/scraper"
)

// Source is an adapter that can describe itself.
type Source interface {
	scraper.Adapter
	Info() scraper.Info
}

// Registry is the fixed set of sources a process can dispatch to.
type Registry struct {
	sources map[models.Platform]Source
}

// New builds a registry; two sources claiming one platform is an error.
func New(sources ...Source) (*Registry, error) {
	r := &Registry{sources: make(map[models.Platform]Source, len(sources))}
	for _, s := range sources {
		p := s.Info().Platform
		if _, dup := r.sources[p]; dup {
			return nil, fmt.Errorf("platform %q registered twice", p)
		}
		r.sources[p] = s
	}
	return r, nil
}

// Lookup returns the source serving p.
func (r *Registry) Lookup(p models.Platform) (Source, bool) {
	s, ok := r.sources[p]
	return s, ok
}

// Check rejects platforms that are unknown or whose kind differs from kind.
func (r *Registry) Check(kind models.Kind, platforms []models.Platform) error {
	for _, p := range platforms {
		s, ok := r.sources[p]
		if !ok {
			return fmt.Errorf("%w: unknown platform %q", models.ErrInvalidSpec, p)
		}
		if info := s.Info(); info.Kind != kind {
			return fmt.Errorf("%w: %s lists %s, not %s", models.ErrInvalidSpec, p, info.Kind, kind)
		}
	}
	return nil
}

// Platforms lists the registered platforms for region and kind in a stable order.
// An empty region or kind matches all.
func (r *Registry) Platforms(region models.Region, kind models.Kind) []models.Platform {
	var out []models.Platform
	for p, s := range r.sources {
		info := s.Info()
		if (region == "" || info.Region == region) && (kind == "" || info.Kind == kind) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Infos returns the catalogue of every registered source, sorted by platform.
func (r *Registry) Infos() []scraper.Info {
	platforms := r.Platforms("", "")
	out := make([]scraper.Info, 0, len(platforms))
	for _, p := range platforms {
		out = append(out, r.sources[p].Info())
	}
	return out
}

// Deps are the shared collaborators every default adapter is built with.
type Deps struct {
	Config  *config.Config
	Limiter scraper.Waiter
	// Renderer serves the browser-rendered platforms.
	Renderer scraper.Renderer
	Metrics  *scraper.Metrics
	Logger   *slog.Logger
	// Transport replaces the HTTP transport of the static fetchers.
	Transport http.RoundTripper
}

var acceptLanguage = map[models.Region]string{
	models.RegionUSA:     "en-US,en;q=0.9",
	models.RegionGermany: "de-DE,de;q=0.9,en;q=0.8",
}

// Default wires the eight supported marketplaces.
func Default(deps Deps) (*Registry, error) {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	opts := adapters.Options{
		MaxPages:   cfg.MaxPages,
		RenderWait: cfg.RenderWait,
		Limiter:    deps.Limiter,
		Metrics:    deps.Metrics,
		Logger:     deps.Logger,
	}
	fetcher := func(p models.Platform, region models.Region) *scraper.HTMLFetcher {
		fo := scraper.FetcherOptionsFromConfig(cfg)
		fo.Headers = map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Language": acceptLanguage[region],
		}
		fo.Transport = deps.Transport
		fo.Metrics = deps.Metrics
		fo.Logger = deps.Logger
		return scraper.NewHTMLFetcher(p, fo)
	}

	return New(
		adapters.NewBaT(fetcher(models.PlatformBaT, models.RegionUSA), opts),
		adapters.NewCarsAndBids(deps.Renderer, opts),
		adapters.NewAutotrader(deps.Renderer, opts),
		adapters.NewCarsCom(fetcher(models.PlatformCarsCom, models.RegionUSA), opts),
		adapters.NewCarGurus(fetcher(models.PlatformCarGurus, models.RegionUSA), opts),
		adapters.NewMobileDe(deps.Renderer, opts),
		adapters.NewAutoScout24(fetcher(models.PlatformAutoScout24, models.RegionGermany), opts),
		adapters.NewKleinanzeigen(fetcher(models.PlatformKleinanzeigen, models.RegionGermany), opts),
	)
}
