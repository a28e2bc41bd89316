// Package compare derives cross-region price deltas from two listing sets.
package compare

import (
	"math"

	"github.com/bernabe05rodriguez-stack/CarScraper/models"
	"github.com/bernabe05rodriguez-stack/CarScraper/stats"
)

// NotableThreshold is the absolute percentage delta above which a difference is notable.
const NotableThreshold = 5.0

// Direction says which market is cheaper.
type Direction string

const (
	GermanyCheaper Direction = "Germany cheaper"
	USACheaper     Direction = "USA cheaper"
	AtParity       Direction = "at parity"
)

// Arbitrage is the price delta between the markets, in USD.
type Arbitrage struct {
	USAMean        float64   `json:"usa_mean"`
	GermanyMean    float64   `json:"germany_mean_eur"`
	GermanyMeanUSD float64   `json:"germany_mean_usd"`
	Delta          float64   `json:"delta"`
	DeltaPct       float64   `json:"delta_pct"`
	Direction      Direction `json:"direction"`
	Notable        bool      `json:"notable"`
}

// Result holds both summaries and, when both sides carry prices, the arbitrage.
type Result struct {
	USA     stats.Summary `json:"usa"`
	Germany stats.Summary `json:"germany"`
	// Rate is the EUR to USD rate used; zero when none was available.
	Rate float64 `json:"rate"`
	// InsufficientData is set when either side has no priced listings.
	InsufficientData bool       `json:"insufficient_data"`
	Arbitrage        *Arbitrage `json:"arbitrage,omitempty"`
}

// Compare summarises both sides and, when possible, converts the German mean at
// rate. A non-positive rate leaves Arbitrage nil without flagging insufficient data.
func Compare(usa, germany []models.Listing, rate float64) Result {
	r := Result{
		USA:     stats.Summarize(usa),
		Germany: stats.Summarize(germany),
	}
	usaMean, deMean := r.USA.Price.Mean, r.Germany.Price.Mean
	if len(usa) == 0 || len(germany) == 0 || usaMean == nil || deMean == nil {
		r.InsufficientData = true
		return r
	}
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return r
	}
	r.Rate = rate
	r.Arbitrage = arbitrage(*usaMean, *deMean, rate)
	return r
}

func arbitrage(usaMean, deMean, rate float64) *Arbitrage {
	deUSD := deMean * rate
	a := &Arbitrage{
		USAMean:        usaMean,
		GermanyMean:    deMean,
		GermanyMeanUSD: deUSD,
		Delta:          usaMean - deUSD,
	}
	if deUSD != 0 {
		a.DeltaPct = a.Delta / deUSD * 100
	}
	switch {
	case a.Delta > 0:
		a.Direction = GermanyCheaper
	case a.Delta < 0:
		a.Direction = USACheaper
	default:
		a.Direction = AtParity
	}
	a.Notable = math.Abs(a.DeltaPct) > NotableThreshold
	return a
}
