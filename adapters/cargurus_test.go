package adapters

import (
	"context"
	"testing"

	"github.com/bernabe05rodriguez-stack/CarScraper/models"
)

const cargurusFixture = `<html><script>window.__PREFLIGHT__ = {"listings":[
{"listingTitle":"Porsche 911 Targa","id":300000001,"makeName":"Porsche"},
{"listingTitle":"2020 Porsche 911 Carrera S","id":300000002,"carYear":2020,"makeName":"Porsche","modelName":"911","trimName":"Carrera S","priceData":{"currency":"USD","current":118500},"mileageData":{"value":14200},"displayLocation":"Austin, TX","serviceProviderName":"Porsche Austin","daysOnMarket":12,"pictureData":{"url":"https://img.test/911.jpg"}},
{"listingTitle":"2020 Porsche 911 Carrera S","id":300000002,"carYear":2020,"makeName":"Porsche"},
{"listingTitle":"2016 Porsche 911 Turbo","id":300000003,"carYear":"2016","makeName":"Porsche","modelName":"911","price":104000}
],"totalListings":3}</script></html>`

func TestResolveEntity(t *testing.T) {
	tests := []struct {
		make, model string
		want        string
		ok          bool
	}{
		{make: "Porsche", model: "911", want: "d404", ok: true},
		{make: "porsche", model: "Cayman GT4", want: "d993", ok: true},
		{make: "Porsche", model: "959", want: "m48", ok: true},
		{make: "Mercedes", want: "m43", ok: true},
		{make: "Yugo", ok: false},
	}
	for _, tt := range tests {
		got, ok := resolveEntity(tt.make, tt.model)
		if got != tt.want || ok != tt.ok {
			t.Errorf("resolveEntity(%q, %q) = %q, %v; want %q, %v", tt.make, tt.model, got, ok, tt.want, tt.ok)
		}
	}
}

func TestCarGurusSearch(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://cg.test/Cars/l-Used-Porsche-911-d404": cargurusFixture,
	}}
	a := NewCarGurus(fetcher, testOptions("https://cg.test"))

	res, err := a.Search(context.Background(), models.SearchSpec{
		Kind:      models.KindUsedCar,
		Make:      "Porsche",
		Model:     "911",
		YearFrom:  2018,
		Platforms: []models.Platform{models.PlatformCarGurus},
	})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	// The Targa has no year, the duplicate is dropped and the 2016 Turbo is out of range.
	if len(res.Listings) != 1 {
		t.Fatalf("expected 1 listing, got %d: %+v", len(res.Listings), res.Listings)
	}
	l := res.Listings[0]
	if l.Price == nil || *l.Price != 118500 || l.Mileage == nil || *l.Mileage != 14200 {
		t.Fatalf("price or mileage wrong: %+v", l)
	}
	if l.DaysOnMarket == nil || *l.DaysOnMarket != 12 || l.DealerName != "Porsche Austin" || l.Location != "Austin, TX" {
		t.Fatalf("dealer fields wrong: %+v", l)
	}
	if l.Trim != "Carrera S" || l.URL != "https://cg.test/details/300000002" || l.ImageURL != "https://img.test/911.jpg" {
		t.Fatalf("metadata wrong: %+v", l)
	}
	if len(res.Warnings) != 1 || res.Warnings[0] != "skipped 1 items: missing year or make" {
		t.Fatalf("warnings = %v", res.Warnings)
	}
}

func TestCarGurusUnknownMakeWarnsWithoutFetching(t *testing.T) {
	fetcher := &fakeFetcher{}
	a := NewCarGurus(fetcher, testOptions("https://cg.test"))

	res, err := a.Search(context.Background(), models.SearchSpec{Kind: models.KindUsedCar, Make: "Yugo"})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(res.Listings) != 0 || len(res.Warnings) != 1 || len(fetcher.requests) != 0 {
		t.Fatalf("unexpected result %+v after %d requests", res, len(fetcher.requests))
	}
}

func TestCarGurusParseAlternatePrice(t *testing.T) {
	a := NewCarGurus(&fakeFetcher{}, testOptions("https://cg.test"))
	pr := a.parsePage(cargurusFixture)
	if pr.Containers != 3 {
		t.Fatalf("containers = %d, want 3", pr.Containers)
	}
	turbo := pr.Listings[len(pr.Listings)-1]
	if turbo.Year != 2016 || turbo.Price == nil || *turbo.Price != 104000 {
		t.Fatalf("turbo parsed wrong: %+v", turbo)
	}
}
