package scraper

import (
	"strings"
	"time"

	"github.com/bernabe05rodriguez-stack/CarScraper/models"
)

// FilterOptions tunes Filter for sites whose listings lack some fields.
type FilterOptions struct {
	// DropUnknownYear removes listings without a year when a year bound is set.
	DropUnknownYear bool
}

// Filter applies the year range, keyword and auction time window locally for
// sites that cannot filter server side. Listings without an end date survive the
// time filter.
func Filter(listings []models.Listing, spec models.SearchSpec, now time.Time, opts FilterOptions) []models.Listing {
	keyword := strings.ToLower(strings.TrimSpace(spec.Keyword))
	cutoff, hasCutoff := spec.TimeFilter.Cutoff(now)
	yearBound := spec.YearFrom > 0 || spec.YearTo > 0

	out := listings[:0:0]
	for _, l := range listings {
		if l.Year == 0 {
			if yearBound && opts.DropUnknownYear {
				continue
			}
		} else if !spec.MatchesYear(l.Year) {
			continue
		}
		if keyword != "" &&
			!strings.Contains(strings.ToLower(l.Title), keyword) &&
			!strings.Contains(strings.ToLower(l.URL), keyword) {
			continue
		}
		if hasCutoff && l.EndedAt != nil && l.EndedAt.Before(cutoff) {
			continue
		}
		out = append(out, l)
	}
	return out
}
