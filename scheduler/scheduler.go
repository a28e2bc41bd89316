// Package scheduler re-submits a watch list of searches on a fixed interval.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bernabe05rodriguez-stack/CarScraper/models"
)

// Submitter starts jobs; *orchestrator.Orchestrator satisfies it.
type Submitter interface {
	Submit(ctx context.Context, spec models.SearchSpec) (models.Job, error)
}

// Watch is a named search run on every tick.
type Watch struct {
	Name string            `json:"name"`
	Spec models.SearchSpec `json:"spec"`
}

// Options configures New.
type Options struct {
	Interval time.Duration
	Logger   *slog.Logger
	// OnSubmit observes every submission, successful or not.
	OnSubmit func(w Watch, job models.Job, err error)
	// Ticks replaces the interval ticker.
	Ticks <-chan time.Time
}

// Scheduler submits every watch immediately and then once per interval.
// Unchanged searches are answered from the result cache until it expires.
type Scheduler struct {
	submitter Submitter
	watches   []Watch
	opts      Options
	logger    *slog.Logger
}

// New validates the watch list up front so a bad entry fails at startup.
func New(submitter Submitter, watches []Watch, opts Options) (*Scheduler, error) {
	if submitter == nil {
		return nil, fmt.Errorf("scheduler needs a submitter")
	}
	if len(watches) == 0 {
		return nil, fmt.Errorf("watch list is empty")
	}
	if opts.Interval <= 0 && opts.Ticks == nil {
		return nil, fmt.Errorf("scheduler interval must be positive")
	}
	for i, w := range watches {
		if err := w.Spec.Validate(); err != nil {
			return nil, fmt.Errorf("watch %d (%s): %w", i, w.Name, err)
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		submitter: submitter,
		watches:   watches,
		opts:      opts,
		logger:    logger.With(slog.String("component", "scheduler")),
	}, nil
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticks := s.opts.Ticks
	if ticks == nil {
		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	s.RunOnce(ctx)
	for {
		select {
		case <-ticks:
			s.RunOnce(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

// RunOnce submits every watch and returns how many were accepted.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	accepted := 0
	for _, w := range s.watches {
		if ctx.Err() != nil {
			break
		}
		job, err := s.submitter.Submit(ctx, w.Spec)
		if s.opts.OnSubmit != nil {
			s.opts.OnSubmit(w, job, err)
		}
		if err != nil {
			s.logger.Warn("watch submission failed", slog.String("watch", w.Name), slog.Any("error", err))
			continue
		}
		accepted++
		s.logger.Info("watch submitted",
			slog.String("watch", w.Name),
			slog.String("job_id", job.ID),
			slog.Bool("cached", job.Cached),
		)
	}
	return accepted
}

// LoadWatches reads a JSON array of watches.
func LoadWatches(path string) ([]Watch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read watch list: %w", err)
	}
	var watches []Watch
	if err := json.Unmarshal(data, &watches); err != nil {
		return nil, fmt.Errorf("decode watch list: %w", err)
	}
	for i := range watches {
		if watches[i].Name == "" {
			watches[i].Name = fmt.Sprintf("%s %s", watches[i].Spec.Make, watches[i].Spec.Model)
		}
	}
	return watches, nil
}
