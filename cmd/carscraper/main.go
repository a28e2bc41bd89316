package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bernabe05rodriguez-stack/CarScraper/config"
	"github.com/bernabe05rodriguez-stack/CarScraper/models"
	"github.com/bernabe05rodriguez-stack/CarScraper/output"
	"github.com/bernabe05rodriguez-stack/CarScraper/scheduler"
	"github.com/bernabe05rodriguez-stack/CarScraper/source"
)

const usage = `usage: carscraper <command> [flags]

commands:
  search     run one search and write its listings
  compare    search the USA and Germany and report the price gap
  watch      re-run a watch list of searches on an interval
  platforms  list the supported marketplaces
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "search":
		err = runSearch(ctx, os.Args[2:])
	case "compare":
		err = runCompare(ctx, os.Args[2:])
	case "watch":
		err = runWatch(ctx, os.Args[2:])
	case "platforms":
		err = runPlatforms(os.Stdout)
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		slog.Error("command failed", slog.String("command", os.Args[1]), slog.Any("error", err))
		os.Exit(1)
	}
}

// common holds the flags every running command accepts.
type common struct {
	envFile     string
	verbose     bool
	metricsAddr string
	wait        time.Duration
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.envFile, "env", ".env", "Optional .env file")
	fs.BoolVar(&c.verbose, "v", false, "Enable verbose logging")
	fs.StringVar(&c.metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	fs.DurationVar(&c.wait, "wait", 15*time.Minute, "Maximum time to wait for a job")
}

// setup loads configuration, overlays flags and builds the app.
func (c *common) setup(ctx context.Context) (*app, func(), error) {
	cfg, err := config.Load(c.envFile)
	if err != nil {
		return nil, nil, err
	}
	if c.metricsAddr != "" {
		cfg.MetricsAddr = c.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger, closeLogs, err := newLogger(cfg, c.verbose)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		closeLogs()
		return nil, nil, err
	}
	return a, func() {
		a.close()
		closeLogs()
	}, nil
}

// searchFlags is the subset of a search spec accepted on the command line.
type searchFlags struct {
	kind      string
	make      string
	model     string
	yearFrom  int
	yearTo    int
	keyword   string
	time      string
	platforms string
	region    string
}

func (f *searchFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.kind, "kind", string(models.KindUsedCar), "Listing kind: auction or used_car")
	fs.StringVar(&f.make, "make", "", "Vehicle make (required)")
	fs.StringVar(&f.model, "model", "", "Vehicle model")
	fs.IntVar(&f.yearFrom, "year-from", 0, "Earliest model year")
	fs.IntVar(&f.yearTo, "year-to", 0, "Latest model year")
	fs.StringVar(&f.keyword, "keyword", "", "Free-text keyword")
	fs.StringVar(&f.time, "time", "", "Auction time filter: 5m, 1y, 2y or all")
	fs.StringVar(&f.platforms, "platforms", "", "Comma separated platforms (default: every platform of the region and kind)")
	fs.StringVar(&f.region, "region", "", "Region used when -platforms is empty: usa or germany")
}

// spec builds the search. An empty platform list is expanded from the registry.
func (f *searchFlags) spec(reg *source.Registry) models.SearchSpec {
	spec := models.SearchSpec{
		Kind:       models.Kind(strings.ToLower(f.kind)),
		Make:       strings.TrimSpace(f.make),
		Model:      strings.TrimSpace(f.model),
		YearFrom:   f.yearFrom,
		YearTo:     f.yearTo,
		Keyword:    strings.TrimSpace(f.keyword),
		TimeFilter: models.TimeFilter(f.time),
		Platforms:  splitPlatforms(f.platforms),
	}
	if len(spec.Platforms) == 0 && reg != nil {
		spec.Platforms = reg.Platforms(models.Region(strings.ToLower(f.region)), spec.Kind)
	}
	return spec
}

func splitPlatforms(s string) []models.Platform {
	var out []models.Platform
	for _, p := range strings.Split(s, ",") {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, models.Platform(p))
		}
	}
	return out
}

func runSearch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	var c common
	var sf searchFlags
	c.register(fs)
	sf.register(fs)
	outputFile := fs.String("output", "", "Output file path (default from config)")
	outputFormat := fs.String("format", "", "Output format: csv, json, or dual (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, cleanup, err := c.setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	startTime := time.Now()
	job, err := a.orch.Submit(ctx, sf.spec(a.sources))
	if err != nil {
		return err
	}
	job, err = awaitJob(ctx, a, job.ID, c.wait)
	if err != nil {
		return err
	}
	if job.Status != models.StatusCompleted {
		return fmt.Errorf("job %s %s: %s", job.ID, job.Status, job.Error)
	}
	res, err := a.orch.GetResults(job.ID)
	if err != nil {
		return err
	}

	file, format := a.cfg.OutputFile, a.cfg.OutputFormat
	if *outputFile != "" {
		file = *outputFile
	}
	if *outputFormat != "" {
		format = *outputFormat
	}
	counts, err := export(format, file, res.Listings)
	if err != nil {
		return err
	}
	printJobSummary(os.Stdout, res, time.Since(startTime), file, counts)
	return nil
}

func runCompare(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("compare", flag.ContinueOnError)
	var c common
	var sf searchFlags
	c.register(fs)
	sf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, cleanup, err := c.setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	// Germany only has used-car marketplaces, so both sides compare used-car prices.
	sf.kind = string(models.KindUsedCar)
	sf.platforms = ""
	sf.region = string(models.RegionUSA)
	usaSpec := sf.spec(a.sources)
	sf.region = string(models.RegionGermany)
	deSpec := sf.spec(a.sources)

	usaJob, err := a.orch.Submit(ctx, usaSpec)
	if err != nil {
		return fmt.Errorf("usa search: %w", err)
	}
	deJob, err := a.orch.Submit(ctx, deSpec)
	if err != nil {
		return fmt.Errorf("germany search: %w", err)
	}
	for _, id := range []string{usaJob.ID, deJob.ID} {
		job, err := awaitJob(ctx, a, id, c.wait)
		if err != nil {
			return err
		}
		if job.Status != models.StatusCompleted {
			return fmt.Errorf("job %s %s: %s", job.ID, job.Status, job.Error)
		}
	}

	cmp, err := a.orch.Compare(ctx, usaJob.ID, deJob.ID)
	if err != nil {
		return err
	}
	printComparison(os.Stdout, cmp)
	return nil
}

func runWatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	var c common
	c.register(fs)
	watchFile := fs.String("watches", "watches.json", "JSON watch list")
	interval := fs.Duration("interval", 0, "Re-run interval (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	watches, err := scheduler.LoadWatches(*watchFile)
	if err != nil {
		return err
	}
	a, cleanup, err := c.setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	every := a.cfg.SchedulerInterval
	if *interval > 0 {
		every = *interval
	}
	s, err := scheduler.New(a.orch, watches, scheduler.Options{
		Interval: every,
		Logger:   a.logger,
		OnSubmit: func(w scheduler.Watch, job models.Job, err error) {
			if err != nil || job.Cached {
				return
			}
			go func() {
				done, err := awaitJob(ctx, a, job.ID, c.wait)
				if err != nil {
					return
				}
				a.logger.Info("watch finished",
					slog.String("watch", w.Name),
					slog.String("status", string(done.Status)),
					slog.Int("listings", done.ListingCount),
				)
			}()
		},
	})
	if err != nil {
		return err
	}
	a.logger.Info("watching", slog.Int("watches", len(watches)), slog.Duration("interval", every))
	err = s.Run(ctx)
	logJobs(a.logger, a.orch.Jobs())
	return err
}

func runPlatforms(w io.Writer) error {
	reg, err := source.Default(source.Deps{})
	if err != nil {
		return err
	}
	for _, info := range reg.Infos() {
		fmt.Fprintf(w, "%-14s %-22s %-8s %-9s %-4s %s\n", info.Platform, info.Name, info.Region, info.Kind, info.Currency, info.BaseURL)
	}
	return nil
}

// awaitJob waits for a terminal status, logging progress while it runs.
func awaitJob(ctx context.Context, a *app, id string, limit time.Duration) (models.Job, error) {
	waitCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-ticker.C:
				if job, err := a.orch.GetStatus(waitCtx, id); err == nil {
					a.logger.Info("job progress",
						slog.String("job_id", id),
						slog.Int("progress", job.Progress),
						slog.Int("listings", job.ListingCount),
					)
				}
			case <-done:
				return
			}
		}
	}()

	job, err := a.orch.Wait(waitCtx, id)
	if err != nil {
		if cancelErr := a.orch.Cancel(id); cancelErr != nil {
			a.logger.Warn("cancel failed", slog.String("job_id", id), slog.Any("error", cancelErr))
		}
		return models.Job{}, fmt.Errorf("waiting for job %s: %w", id, err)
	}
	return job, nil
}

func export(format, file string, listings []models.Listing) (output.Counts, error) {
	writer, err := output.New(format, file)
	if err != nil {
		return output.Counts{}, fmt.Errorf("creating writer: %w", err)
	}
	exporter := output.NewExporter(writer, 0)
	defer func() {
		if err := exporter.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()
	if err := exporter.Add(listings); err != nil {
		return output.Counts{}, err
	}
	if err := exporter.Flush(); err != nil {
		return output.Counts{}, err
	}
	counts := exporter.Counts()
	if counts.Written > 0 {
		if err := writer.Validate(); err != nil {
			return counts, fmt.Errorf("output validation failed: %w", err)
		}
	}
	return counts, nil
}
