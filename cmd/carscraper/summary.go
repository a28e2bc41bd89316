package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/bernabe05rodriguez-stack/CarScraper/models"
	"github.com/bernabe05rodriguez-stack/CarScraper/orchestrator"
	"github.com/bernabe05rodriguez-stack/CarScraper/output"
	"github.com/bernabe05rodriguez-stack/CarScraper/stats"
)

const separator = "--------------------------------------------------"

func printJobSummary(w io.Writer, res orchestrator.Results, duration time.Duration, outputFile string, counts output.Counts) {
	job := res.Job
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintf(w, "Search complete: %s %s\n", job.Spec.Make, job.Spec.Model)
	fmt.Fprintf(w, "  Job:           %s\n", job.ID)
	fmt.Fprintf(w, "  Cached:        %v\n", job.Cached)
	fmt.Fprintf(w, "  Listings:      %d\n", job.ListingCount)
	for _, rep := range job.Platforms {
		line := fmt.Sprintf("  %-14s %-9s %4d listings", rep.Platform, rep.State, rep.Listings)
		if rep.ErrorKind != "" {
			line += " (" + rep.ErrorKind + ")"
		}
		fmt.Fprintln(w, line)
	}
	printPrices(w, "Price", res.Stats.Price)
	if a := res.Stats.Auction; a != nil {
		fmt.Fprintf(w, "  Sold:          %d of %d (%s)\n", a.Sold, a.Total, percent(a.SellThrough))
		fmt.Fprintf(w, "  Mean bids:     %s\n", number(a.MeanBidCount))
	}
	if u := res.Stats.UsedCar; u != nil {
		fmt.Fprintf(w, "  Mean mileage:  %s\n", number(u.MeanMileage))
		fmt.Fprintf(w, "  Mean on lot:   %s days\n", number(u.MeanDaysOnMarket))
	}
	if counts.Duplicates > 0 || counts.Invalid > 0 {
		fmt.Fprintf(w, "  Skipped:       %d duplicate, %d invalid\n", counts.Duplicates, counts.Invalid)
	}
	fmt.Fprintf(w, "  Duration:      %v\n", duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  Output file:   %s\n", outputFile)
	fmt.Fprintln(w, separator)
}

func printComparison(w io.Writer, cmp orchestrator.Comparison) {
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "USA vs Germany")
	fmt.Fprintf(w, "  USA listings:      %d\n", cmp.USA.Count)
	fmt.Fprintf(w, "  Germany listings:  %d\n", cmp.Germany.Count)
	printPrices(w, "USA (USD)", cmp.USA.Price)
	printPrices(w, "Germany (EUR)", cmp.Germany.Price)
	switch {
	case cmp.InsufficientData:
		fmt.Fprintln(w, "  Not enough priced listings to compare.")
	case cmp.Arbitrage == nil:
		fmt.Fprintln(w, "  No EUR/USD rate available; arbitrage omitted.")
	default:
		a := cmp.Arbitrage
		rate := fmt.Sprintf("%.4f (%s)", cmp.Rate, cmp.RateSource)
		if cmp.RateStale {
			rate += ", stale"
		}
		fmt.Fprintf(w, "  EUR/USD:           %s\n", rate)
		fmt.Fprintf(w, "  Germany in USD:    %.0f\n", a.GermanyMeanUSD)
		fmt.Fprintf(w, "  Delta:             %+.0f USD (%+.1f%%)\n", a.Delta, a.DeltaPct)
		verdict := string(a.Direction)
		if a.Notable {
			verdict += ", notable"
		}
		fmt.Fprintf(w, "  Verdict:           %s\n", verdict)
	}
	fmt.Fprintln(w, separator)
}

func printPrices(w io.Writer, label string, p stats.PriceStats) {
	if p.Count == 0 {
		fmt.Fprintf(w, "  %s: no prices\n", label)
		return
	}
	fmt.Fprintf(w, "  %s: mean %s, median %s, min %s, max %s (%d priced)\n",
		label, number(p.Mean), number(p.Median), number(p.Min), number(p.Max), p.Count)
}

func number(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.0f", *v)
}

func percent(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", *v*100)
}

// logJobs reports the jobs still retained when the watch loop stops.
func logJobs(logger *slog.Logger, jobs []models.Job) {
	for _, job := range jobs {
		logger.Info("retained job",
			slog.String("job_id", job.ID),
			slog.String("make", job.Spec.Make),
			slog.String("model", job.Spec.Model),
			slog.String("status", string(job.Status)),
			slog.Bool("cached", job.Cached),
			slog.Int("listings", job.ListingCount),
		)
	}
	logger.Info("watch stopped", slog.Int("jobs", len(jobs)))
}
