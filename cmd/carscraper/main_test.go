package main

import (
	"bytes"
	"context"
	"flag"
	"log/slog"
	"strings"
	"testing"

	"github.com/bernabe05rodriguez-stack/CarScraper/compare"
	"github.com/bernabe05rodriguez-stack/CarScraper/models"
	"github.com/bernabe05rodriguez-stack/CarScraper/orchestrator"
	"github.com/bernabe05rodriguez-stack/CarScraper/scraper"
	"github.com/bernabe05rodriguez-stack/CarScraper/source"
	"github.com/bernabe05rodriguez-stack/CarScraper/stats"
)

type stub struct{ info scraper.Info }

func (s stub) Info() scraper.Info { return s.info }

func (s stub) Search(context.Context, models.SearchSpec) (scraper.Result, error) {
	return scraper.Result{}, nil
}

func testRegistry(t *testing.T) *source.Registry {
	t.Helper()
	reg, err := source.New(
		stub{scraper.Info{Platform: models.PlatformCarsCom, Region: models.RegionUSA, Kind: models.KindUsedCar}},
		stub{scraper.Info{Platform: models.PlatformCarGurus, Region: models.RegionUSA, Kind: models.KindUsedCar}},
		stub{scraper.Info{Platform: models.PlatformBaT, Region: models.RegionUSA, Kind: models.KindAuction}},
		stub{scraper.Info{Platform: models.PlatformMobileDe, Region: models.RegionGermany, Kind: models.KindUsedCar}},
	)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

func TestSearchFlags(t *testing.T) {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	var sf searchFlags
	sf.register(fs)
	args := []string{"-make", " Porsche ", "-model", "911", "-year-from", "2015", "-region", "USA"}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse: %v", err)
	}

	spec := sf.spec(testRegistry(t))
	if spec.Make != "Porsche" || spec.YearFrom != 2015 || spec.Kind != models.KindUsedCar {
		t.Fatalf("spec = %+v", spec)
	}
	want := []models.Platform{models.PlatformCarGurus, models.PlatformCarsCom}
	if len(spec.Platforms) != len(want) || spec.Platforms[0] != want[0] || spec.Platforms[1] != want[1] {
		t.Fatalf("platforms = %v, want %v", spec.Platforms, want)
	}
}

func TestSearchFlagsExplicitPlatforms(t *testing.T) {
	sf := searchFlags{kind: "auction", make: "Porsche", platforms: "BaT, carsandbids,,"}
	spec := sf.spec(testRegistry(t))
	if len(spec.Platforms) != 2 || spec.Platforms[0] != models.PlatformBaT || spec.Platforms[1] != models.PlatformCarsAndBids {
		t.Fatalf("platforms = %v", spec.Platforms)
	}
}

func TestRunPlatformsListsCatalogue(t *testing.T) {
	var buf bytes.Buffer
	if err := runPlatforms(&buf); err != nil {
		t.Fatalf("platforms: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 8 {
		t.Fatalf("got %d platforms, want 8:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(buf.String(), "kleinanzeigen") {
		t.Fatalf("missing kleinanzeigen:\n%s", buf.String())
	}
}

func TestPrintComparison(t *testing.T) {
	mean := 100000.0
	cmp := orchestrator.Comparison{
		Result: compare.Result{
			USA:     stats.Summary{Count: 2, Price: stats.PriceStats{Count: 2, Mean: &mean}},
			Germany: stats.Summary{Count: 2},
			Rate:    1.1,
			Arbitrage: &compare.Arbitrage{
				GermanyMeanUSD: 82500,
				Delta:          17500,
				DeltaPct:       21.2,
				Direction:      compare.GermanyCheaper,
				Notable:        true,
			},
		},
		RateSource: "configured",
		RateStale:  true,
	}
	var buf bytes.Buffer
	printComparison(&buf, cmp)
	out := buf.String()
	for _, want := range []string{"Germany cheaper, notable", "+17500 USD", "configured), stale", "Germany (EUR): no prices"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestLogJobsReportsRetainedJobs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	jobs := []models.Job{
		{ID: "job-2", Spec: models.SearchSpec{Make: "BMW", Model: "M3"}, Status: models.StatusRunning},
		{ID: "job-1", Spec: models.SearchSpec{Make: "Porsche", Model: "911"}, Status: models.StatusCompleted, Cached: true, ListingCount: 4},
	}
	logJobs(logger, jobs)

	out := buf.String()
	for _, want := range []string{"job_id=job-2", "status=running", "job_id=job-1", "cached=true", "listings=4", "jobs=2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %q:\n%s", want, out)
		}
	}
}
