package adapters

import (
	"context"
	"strings"
	"testing"

	"github.com/bernabe05rodriguez-stack/CarScraper/models"
	"github.com/bernabe05rodriguez-stack/CarScraper/scraper"
)

func TestAutotraderReadsCapturedSearchResults(t *testing.T) {
	renderer := &fakeRenderer{pages: []*scraper.Page{{
		Body: []byte("<html><body></body></html>"),
		Captured: [][]byte{[]byte(`{"listings":[
			{"title":"Used 2019 Porsche 911 Carrera","pricingDetail":{"primary":89995},"specifications":{"mileage":{"value":"21,500"}},"daysOnMarket":30,"href":"/cars-for-sale/vehicle/701","owner":{"name":"Porsche North Scottsdale","location":{"city":"Scottsdale"}}},
			{"title":"Used 2020 Porsche 911 Carrera 4S","pricingDetail":{"primary":"$112,400"},"href":"/cars-for-sale/vehicle/702"},
			{"title":"Used 2021 Porsche 911 Turbo"}
		]}`)},
	}}}
	a := NewAutotrader(renderer, testOptions("https://at.test"))

	res, err := a.Search(context.Background(), models.SearchSpec{
		Kind:      models.KindUsedCar,
		Make:      "Porsche",
		Model:     "911",
		Platforms: []models.Platform{models.PlatformAutotrader},
	})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if got := renderer.requests[0].URL; !strings.HasPrefix(got, "https://at.test/cars-for-sale/all-cars/porsche/911?") || !strings.Contains(got, "firstRecord=0") {
		t.Fatalf("unexpected url %s", got)
	}
	if len(renderer.requests) != 1 {
		t.Fatalf("a short page should end pagination, rendered %d pages", len(renderer.requests))
	}
	if len(res.Listings) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(res.Listings))
	}
	first := res.Listings[0]
	if first.Year != 2019 || first.Make != "Porsche" || first.Model != "911" || first.Trim != "Carrera" {
		t.Fatalf("title split wrong: %+v", first)
	}
	if first.Mileage == nil || *first.Mileage != 21500 || first.DaysOnMarket == nil || *first.DaysOnMarket != 30 {
		t.Fatalf("specs wrong: %+v", first)
	}
	if first.DealerName != "Porsche North Scottsdale" || first.Location != "Scottsdale" || first.URL != "https://at.test/cars-for-sale/vehicle/701" {
		t.Fatalf("metadata wrong: %+v", first)
	}
	if second := res.Listings[1]; second.Price == nil || *second.Price != 112400 {
		t.Fatalf("string price not parsed: %+v", second)
	}
	if len(res.Warnings) != 1 || res.Warnings[0] != "skipped 1 items: missing price" {
		t.Fatalf("warnings = %v", res.Warnings)
	}
}

func TestAutotraderFallsBackToCards(t *testing.T) {
	renderer := &fakeRenderer{pages: []*scraper.Page{{Body: []byte(`<html><body>
		<div data-cmp="inventoryListing">
		  <h2>Used 2018 Porsche 911 GTS</h2>
		  <span class="first-price">96,850</span>
		  <ul><li>Exterior: Black</li><li>31,204 miles</li></ul>
		  <a href="/cars-for-sale/vehicle/9">view</a>
		</div>
	</body></html>`)}}}
	a := NewAutotrader(renderer, testOptions("https://at.test"))

	res, err := a.Search(context.Background(), models.SearchSpec{Kind: models.KindUsedCar, Make: "Porsche"})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(res.Listings) != 1 {
		t.Fatalf("expected 1 listing, got %d", len(res.Listings))
	}
	l := res.Listings[0]
	if l.Price == nil || *l.Price != 96850 || l.Mileage == nil || *l.Mileage != 31204 {
		t.Fatalf("card parsed wrong: %+v", l)
	}
}
