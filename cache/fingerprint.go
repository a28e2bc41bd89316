package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/bernabe05rodriguez-stack/CarScraper/models"
	"golang.org/x/text/cases"
)

type fingerprintInput struct {
	Kind       models.Kind       `json:"kind"`
	Make       string            `json:"make"`
	Model      string            `json:"model"`
	YearFrom   int               `json:"year_from"`
	YearTo     int               `json:"year_to"`
	Keyword    string            `json:"keyword"`
	TimeFilter models.TimeFilter `json:"time_filter"`
	Platforms  []models.Platform `json:"platforms"`
}

// Fingerprint is the cache key of spec. Platform order and duplicates, letter
// case and surrounding whitespace of the text fields do not change it; an unset
// time filter and "all" are the same.
func Fingerprint(spec models.SearchSpec) string {
	in := fingerprintInput{
		Kind:       spec.Kind,
		Make:       fold(spec.Make),
		Model:      fold(spec.Model),
		YearFrom:   spec.YearFrom,
		YearTo:     spec.YearTo,
		Keyword:    fold(spec.Keyword),
		TimeFilter: spec.TimeFilter,
		Platforms:  normalizePlatforms(spec.Platforms),
	}
	if in.TimeFilter == models.TimeFilterAllTimes {
		in.TimeFilter = models.TimeFilterNone
	}
	raw, _ := json.Marshal(in)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func fold(s string) string {
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}

func normalizePlatforms(platforms []models.Platform) []models.Platform {
	seen := make(map[models.Platform]bool, len(platforms))
	out := make([]models.Platform, 0, len(platforms))
	for _, p := range platforms {
		p = models.Platform(strings.ToLower(strings.TrimSpace(string(p))))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
