package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/bernabe05rodriguez-stack/CarScraper/models"
)

// Waiter paces requests to one platform.
type Waiter interface {
	Wait(ctx context.Context, platform models.Platform) error
}

// PageResult is what an adapter extracted from one results page.
type PageResult struct {
	Listings []models.Listing
	// Containers is the number of listing cards or JSON items found, parsed or not.
	Containers int
	// Skipped counts containers dropped, keyed by reason.
	Skipped map[string]int
	HasNext bool
	// Empty is set when the site explicitly reports zero matches.
	Empty bool
}

// Skip records a dropped container.
func (r *PageResult) Skip(reason string) {
	if r.Skipped == nil {
		r.Skipped = make(map[string]int)
	}
	r.Skipped[reason]++
}

// PageFunc fetches and parses one 1-based results page.
type PageFunc func(ctx context.Context, page int) (PageResult, error)

// PaginateOptions bounds a page walk.
type PaginateOptions struct {
	Platform models.Platform
	MaxPages int
	Limiter  Waiter
	Metrics  *Metrics
	Logger   *slog.Logger
}

// Paginate walks result pages until the site runs out, MaxPages is reached or a
// page fails. A failure on the first page fails the search; a later failure keeps
// what was collected and adds a warning.
func Paginate(ctx context.Context, opts PaginateOptions, fetch PageFunc) (Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}

	var (
		result  Result
		skipped = make(map[string]int)
	)
	for page := 1; page <= maxPages; page++ {
		if opts.Limiter != nil {
			if err := opts.Limiter.Wait(ctx, opts.Platform); err != nil {
				return Result{}, err
			}
		}

		pr, err := fetch(ctx, page)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, ctxErr
			}
			if page == 1 {
				if errors.Is(err, ErrNoResults) {
					return result, nil
				}
				return Result{}, err
			}
			if !errors.Is(err, ErrNoResults) {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("page %d failed (%s), kept %d listings from earlier pages", page, ErrorKind(err), len(result.Listings)))
				logger.Warn("page failed, stopping pagination",
					slog.String("platform", string(opts.Platform)),
					slog.Int("page", page),
					slog.Any("error", err),
				)
			}
			break
		}

		for reason, n := range pr.Skipped {
			skipped[reason] += n
			opts.Metrics.AddSkipped(string(opts.Platform), reason, n)
		}

		if pr.Containers == 0 {
			if page == 1 && !pr.Empty {
				return Result{}, ParseFailure("no listing containers on %s results page", opts.Platform)
			}
			break
		}
		if page == 1 && len(pr.Listings) == 0 && len(pr.Skipped) > 0 {
			return Result{}, ParseFailure("all %d listing containers on %s failed to parse", pr.Containers, opts.Platform)
		}

		result.Listings = append(result.Listings, pr.Listings...)
		opts.Metrics.AddItems(string(opts.Platform), len(pr.Listings))
		logger.Debug("page parsed",
			slog.String("platform", string(opts.Platform)),
			slog.Int("page", page),
			slog.Int("containers", pr.Containers),
			slog.Int("listings", len(pr.Listings)),
			slog.Int("total", len(result.Listings)),
		)

		if !pr.HasNext {
			break
		}
	}

	reasons := make([]string, 0, len(skipped))
	for reason := range skipped {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		result.Warnings = append(result.Warnings, fmt.Sprintf("skipped %d items: %s", skipped[reason], reason))
	}
	return result, nil
}
