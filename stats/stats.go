// Package stats computes descriptive statistics over listing sets.
//
// Values keep full precision; a statistic with no input values is nil.
package stats

import (
	"sort"

	"github.com/bernabe05rodriguez-stack/CarScraper/models"
)

// PriceStats describes one price distribution.
type PriceStats struct {
	Count  int      `json:"count"`
	Mean   *float64 `json:"mean"`
	Median *float64 `json:"median"`
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
}

// AuctionStats summarises auction listings.
type AuctionStats struct {
	Total int `json:"total"`
	Sold  int `json:"sold"`
	// SellThrough is Sold/Total as a fraction.
	SellThrough     *float64   `json:"sell_through"`
	SoldPrice       PriceStats `json:"sold_price"`
	HighBid         PriceStats `json:"high_bid"`
	MeanBidCount    *float64   `json:"mean_bid_count"`
	MeanAuctionDays *float64   `json:"mean_auction_days"`
}

// UsedCarStats summarises used-car listings.
type UsedCarStats struct {
	Total            int        `json:"total"`
	ListPrice        PriceStats `json:"list_price"`
	MeanDaysOnMarket *float64   `json:"mean_days_on_market"`
	MeanMileage      *float64   `json:"mean_mileage"`
}

// Summary is the statistics of a mixed listing set.
type Summary struct {
	Count int `json:"count"`
	// Price covers the sold prices of auctions and the list prices of used cars.
	Price   PriceStats    `json:"price"`
	Auction *AuctionStats `json:"auction,omitempty"`
	UsedCar *UsedCarStats `json:"used_car,omitempty"`
}

// Sold reports whether an auction counts as a sale: the flag is set and a price is known.
func Sold(l models.Listing) bool {
	return l.Kind == models.KindAuction && l.Sold && l.Price != nil
}

// Summarize computes the summary of listings.
func Summarize(listings []models.Listing) Summary {
	s := Summary{Count: len(listings)}
	var auctions, used, priced []models.Listing
	for _, l := range listings {
		switch l.Kind {
		case models.KindAuction:
			auctions = append(auctions, l)
			if Sold(l) {
				priced = append(priced, l)
			}
		case models.KindUsedCar:
			used = append(used, l)
			if l.Price != nil {
				priced = append(priced, l)
			}
		}
	}
	s.Price = Prices(collect(priced, func(l models.Listing) *float64 { return l.Price }))
	if len(auctions) > 0 {
		a := Auctions(auctions)
		s.Auction = &a
	}
	if len(used) > 0 {
		u := UsedCars(used)
		s.UsedCar = &u
	}
	return s
}

// Auctions summarises auction listings; other kinds are ignored.
func Auctions(listings []models.Listing) AuctionStats {
	var (
		a                AuctionStats
		soldPrices, bids []float64
		highBids, days   []float64
	)
	for _, l := range listings {
		if l.Kind != models.KindAuction {
			continue
		}
		a.Total++
		if Sold(l) {
			a.Sold++
			soldPrices = append(soldPrices, *l.Price)
		} else if l.HighBid != nil {
			highBids = append(highBids, *l.HighBid)
		}
		if l.BidCount != nil {
			bids = append(bids, float64(*l.BidCount))
		}
		if l.AuctionDays != nil {
			days = append(days, float64(*l.AuctionDays))
		}
	}
	if a.Total > 0 {
		rate := float64(a.Sold) / float64(a.Total)
		a.SellThrough = &rate
	}
	a.SoldPrice = Prices(soldPrices)
	a.HighBid = Prices(highBids)
	a.MeanBidCount = Mean(bids)
	a.MeanAuctionDays = Mean(days)
	return a
}

// UsedCars summarises used-car listings; other kinds are ignored.
func UsedCars(listings []models.Listing) UsedCarStats {
	var (
		u                     UsedCarStats
		prices, days, mileage []float64
	)
	for _, l := range listings {
		if l.Kind != models.KindUsedCar {
			continue
		}
		u.Total++
		if l.Price != nil {
			prices = append(prices, *l.Price)
		}
		if l.DaysOnMarket != nil {
			days = append(days, float64(*l.DaysOnMarket))
		}
		if l.Mileage != nil {
			mileage = append(mileage, float64(*l.Mileage))
		}
	}
	u.ListPrice = Prices(prices)
	u.MeanDaysOnMarket = Mean(days)
	u.MeanMileage = Mean(mileage)
	return u
}

// Prices describes values; the input is not modified.
func Prices(values []float64) PriceStats {
	p := PriceStats{Count: len(values)}
	if len(values) == 0 {
		return p
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	lo, hi := sorted[0], sorted[len(sorted)-1]
	p.Mean = Mean(sorted)
	p.Median = Median(sorted)
	p.Min = &lo
	p.Max = &hi
	return p
}

// Mean returns the arithmetic mean, or nil for no values.
func Mean(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	return &mean
}

// Median returns the middle value, averaging the two middle values of an even count.
func Median(values []float64) *float64 {
	n := len(values)
	if n == 0 {
		return nil
	}
	sorted := values
	if !sort.Float64sAreSorted(values) {
		sorted = append([]float64(nil), values...)
		sort.Float64s(sorted)
	}
	var m float64
	if n%2 == 1 {
		m = sorted[n/2]
	} else {
		m = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return &m
}

func collect(listings []models.Listing, field func(models.Listing) *float64) []float64 {
	out := make([]float64, 0, len(listings))
	for _, l := range listings {
		if v := field(l); v != nil {
			out = append(out, *v)
		}
	}
	return out
}
