// Package fx supplies the EUR to USD exchange rate used by comparisons.
package fx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrNoRate is returned when neither a live, cached nor configured rate exists.
var ErrNoRate = errors.New("no exchange rate available")

// Rate is one EUR to USD quote.
type Rate struct {
	Value     float64   `json:"value"`
	FetchedAt time.Time `json:"fetched_at"`
	Source    string    `json:"source"`
	// Stale marks a last-known or configured rate served because the live source failed.
	Stale bool `json:"stale,omitempty"`
}

// Source returns the current rate.
type Source interface {
	Rate(ctx context.Context) (Rate, error)
}

// Frankfurter queries a Frankfurter compatible endpoint, e.g.
// https://api.frankfurter.app/latest?from=EUR&to=USD.
type Frankfurter struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewFrankfurter creates a client. A nil client uses one with the given timeout.
func NewFrankfurter(url string, client *http.Client, timeout time.Duration) *Frankfurter {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Frankfurter{url: url, client: client, now: time.Now}
}

type frankfurterResponse struct {
	Base  string             `json:"base"`
	Date  string             `json:"date"`
	Rates map[string]float64 `json:"rates"`
}

// Rate fetches the latest quote.
func (f *Frankfurter) Rate(ctx context.Context) (Rate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return Rate{}, fmt.Errorf("build rate request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := f.client.Do(req)
	if err != nil {
		return Rate{}, fmt.Errorf("fetch rate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Rate{}, fmt.Errorf("fetch rate: status %d", resp.StatusCode)
	}

	var body frankfurterResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Rate{}, fmt.Errorf("decode rate: %w", err)
	}
	usd, ok := body.Rates["USD"]
	if !ok || usd <= 0 {
		return Rate{}, fmt.Errorf("rate response has no USD quote")
	}
	return Rate{Value: usd, FetchedAt: f.now(), Source: "frankfurter"}, nil
}

// Fallback caches the upstream rate for MaxAge and degrades to the last known
// rate, then to a configured rate, when the upstream fails.
type Fallback struct {
	upstream   Source
	configured float64
	maxAge     time.Duration
	now        func() time.Time
	logger     *slog.Logger

	group singleflight.Group
	mu    sync.Mutex
	last  *Rate
}

// FallbackOptions configures NewFallback.
type FallbackOptions struct {
	// Configured is served when no rate was ever fetched; zero disables it.
	Configured float64
	MaxAge     time.Duration
	Now        func() time.Time
	Logger     *slog.Logger
}

// NewFallback wraps upstream, which may be nil to always serve the configured rate.
func NewFallback(upstream Source, opts FallbackOptions) *Fallback {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{
		upstream:   upstream,
		configured: opts.Configured,
		maxAge:     opts.MaxAge,
		now:        opts.Now,
		logger:     logger.With(slog.String("component", "fx")),
	}
}

// Rate never fails while a last-known or configured rate exists. Concurrent
// callers share a single upstream fetch.
func (f *Fallback) Rate(ctx context.Context) (Rate, error) {
	if last := f.lastRate(); last != nil && f.now().Sub(last.FetchedAt) < f.maxAge {
		return *last, nil
	}
	if f.upstream != nil {
		v, err, _ := f.group.Do("rate", func() (any, error) {
			rate, err := f.upstream.Rate(ctx)
			if err != nil {
				return nil, err
			}
			f.mu.Lock()
			f.last = &rate
			f.mu.Unlock()
			return rate, nil
		})
		if err == nil {
			return v.(Rate), nil
		}
		f.logger.Warn("exchange rate fetch failed", slog.Any("error", err))
	}
	if last := f.lastRate(); last != nil {
		stale := *last
		stale.Stale = true
		return stale, nil
	}
	if f.configured > 0 {
		return Rate{Value: f.configured, FetchedAt: f.now(), Source: "configured", Stale: true}, nil
	}
	return Rate{}, ErrNoRate
}

func (f *Fallback) lastRate() *Rate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}
