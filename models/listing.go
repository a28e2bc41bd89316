// Package models defines the data structures shared by the scraper, orchestrator and engines.
package models

import (
	"fmt"
	"time"
)

// Platform identifies one external marketplace.
type Platform string

const (
	PlatformBaT           Platform = "bat"
	PlatformCarsAndBids   Platform = "carsandbids"
	PlatformAutotrader    Platform = "autotrader"
	PlatformCarsCom       Platform = "carscom"
	PlatformCarGurus      Platform = "cargurus"
	PlatformMobileDe      Platform = "mobilede"
	PlatformAutoScout24   Platform = "autoscout24"
	PlatformKleinanzeigen Platform = "kleinanzeigen"
)

// Region is the market a platform serves.
type Region string

const (
	RegionUSA     Region = "usa"
	RegionGermany Region = "germany"
)

// Kind separates auction results from used-car classifieds.
type Kind string

const (
	KindAuction Kind = "auction"
	KindUsedCar Kind = "used_car"
)

// Valid reports whether k is a known listing kind.
func (k Kind) Valid() bool {
	return k == KindAuction || k == KindUsedCar
}

// Currency is the ISO code a price is quoted in.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
)

// Valid reports whether c belongs to the supported enumeration.
func (c Currency) Valid() bool {
	return c == CurrencyUSD || c == CurrencyEUR
}

// Listing is one normalized item scraped from a marketplace.
//
// Price is the sold price for auctions and the asking price for used cars.
// Auctions that ended without a sale carry their last bid in HighBid instead.
// Auction-only and used-car-only fields stay nil on the other kind.
type Listing struct {
	Platform Platform `csv:"platform" json:"platform"`
	Region   Region   `csv:"region" json:"region"`
	Kind     Kind     `csv:"kind" json:"kind"`
	Title    string   `csv:"title" json:"title,omitempty"`
	Make     string   `csv:"make" json:"make"`
	Model    string   `csv:"model" json:"model"`
	Trim     string   `csv:"trim" json:"trim,omitempty"`
	Year     int      `csv:"year" json:"year,omitempty"`
	Currency Currency `csv:"currency" json:"currency"`
	Price    *float64 `csv:"price" json:"price,omitempty"`

	Sold        bool       `csv:"sold" json:"sold,omitempty"`
	HighBid     *float64   `csv:"high_bid" json:"high_bid,omitempty"`
	BidCount    *int       `csv:"bid_count" json:"bid_count,omitempty"`
	AuctionDays *int       `csv:"auction_days" json:"auction_days,omitempty"`
	EndedAt     *time.Time `csv:"ended_at" json:"ended_at,omitempty"`

	Mileage      *int   `csv:"mileage" json:"mileage,omitempty"`
	DaysOnMarket *int   `csv:"days_on_market" json:"days_on_market,omitempty"`
	DealerName   string `csv:"dealer_name" json:"dealer_name,omitempty"`
	Location     string `csv:"location" json:"location,omitempty"`

	URL       string    `csv:"url" json:"url"`
	ImageURL  string    `csv:"image_url" json:"image_url,omitempty"`
	ScrapedAt time.Time `csv:"scraped_at" json:"scraped_at"`
}

// Validate checks the invariants every stored listing must hold.
func (l *Listing) Validate() error {
	if l == nil {
		return fmt.Errorf("listing is nil")
	}
	if l.Platform == "" {
		return fmt.Errorf("listing missing platform")
	}
	if !l.Kind.Valid() {
		return fmt.Errorf("listing %s has unknown kind %q", l.URL, l.Kind)
	}
	if !l.Currency.Valid() {
		return fmt.Errorf("listing %s has unsupported currency %q", l.URL, l.Currency)
	}
	if l.Price != nil && *l.Price < 0 {
		return fmt.Errorf("listing %s has negative price %v", l.URL, *l.Price)
	}
	return nil
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
