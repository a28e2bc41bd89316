package source

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/bernabe05rodriguez-stack/CarScraper/models"
	"github.com/bernabe05rodriguez-stack/CarScraper/scraper"
)

type stubSource struct {
	info scraper.Info
}

func (s stubSource) Search(context.Context, models.SearchSpec) (scraper.Result, error) {
	return scraper.Result{}, nil
}

func (s stubSource) Info() scraper.Info { return s.info }

func stub(p models.Platform, region models.Region, kind models.Kind) stubSource {
	return stubSource{info: scraper.Info{Platform: p, Region: region, Kind: kind}}
}

func TestNewRejectsDuplicates(t *testing.T) {
	_, err := New(
		stub(models.PlatformBaT, models.RegionUSA, models.KindAuction),
		stub(models.PlatformBaT, models.RegionUSA, models.KindAuction),
	)
	if err == nil {
		t.Fatal("expected duplicate platform error")
	}
}

func TestCheck(t *testing.T) {
	r, err := New(
		stub(models.PlatformBaT, models.RegionUSA, models.KindAuction),
		stub(models.PlatformCarsCom, models.RegionUSA, models.KindUsedCar),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	tests := []struct {
		name      string
		kind      models.Kind
		platforms []models.Platform
		wantErr   bool
	}{
		{name: "known", kind: models.KindAuction, platforms: []models.Platform{models.PlatformBaT}},
		{name: "unknown", kind: models.KindAuction, platforms: []models.Platform{"ebay"}, wantErr: true},
		{name: "wrong kind", kind: models.KindAuction, platforms: []models.Platform{models.PlatformCarsCom}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Check(tt.kind, tt.platforms)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Check() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, models.ErrInvalidSpec) {
				t.Fatalf("error %v does not wrap ErrInvalidSpec", err)
			}
		})
	}
}

func TestDefaultCatalogue(t *testing.T) {
	r, err := Default(Deps{})
	if err != nil {
		t.Fatalf("Default() error: %v", err)
	}

	if got := len(r.Infos()); got != 8 {
		t.Fatalf("expected 8 platforms, got %d", got)
	}
	germany := r.Platforms(models.RegionGermany, models.KindUsedCar)
	want := []models.Platform{models.PlatformAutoScout24, models.PlatformKleinanzeigen, models.PlatformMobileDe}
	if !reflect.DeepEqual(germany, want) {
		t.Fatalf("Germany used-car platforms = %v, want %v", germany, want)
	}
	auctions := r.Platforms("", models.KindAuction)
	if !reflect.DeepEqual(auctions, []models.Platform{models.PlatformBaT, models.PlatformCarsAndBids}) {
		t.Fatalf("auction platforms = %v", auctions)
	}

	s, ok := r.Lookup(models.PlatformMobileDe)
	if !ok || s.Info().Strategy != scraper.StrategyRendered || s.Info().Currency != models.CurrencyEUR {
		t.Fatalf("mobile.de catalogue entry wrong: %+v", s)
	}
	if s, _ := r.Lookup(models.PlatformKleinanzeigen); s.Info().Strategy != scraper.StrategyStatic {
		t.Fatalf("kleinanzeigen should use the static fetcher")
	}
}
