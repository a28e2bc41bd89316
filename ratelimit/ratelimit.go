// Package ratelimit spaces out requests to each marketplace with randomised delays.
package ratelimit

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/bernabe05rodriguez-stack/CarScraper/models"
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Limiter delays outbound requests by a uniform random duration in [min, max].
// Waits for the same platform are serialised; different platforms never block each other.
type Limiter struct {
	min   time.Duration
	max   time.Duration
	sleep SleepFunc

	mu    sync.Mutex
	rng   *rand.Rand
	lanes map[models.Platform]*sync.Mutex
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithSleep replaces the real sleep, mainly for tests.
func WithSleep(fn SleepFunc) Option {
	return func(l *Limiter) {
		l.sleep = fn
	}
}

// WithSeed makes the delay sequence reproducible.
func WithSeed(seed uint64) Option {
	return func(l *Limiter) {
		l.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// New creates a limiter for the given bounds.
func New(min, max time.Duration, opts ...Option) (*Limiter, error) {
	if min < 0 || max < min {
		return nil, fmt.Errorf("invalid delay bounds [%s, %s]", min, max)
	}
	l := &Limiter{
		min:   min,
		max:   max,
		sleep: sleepContext,
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		lanes: make(map[models.Platform]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Wait blocks before the next request to platform is allowed.
func (l *Limiter) Wait(ctx context.Context, platform models.Platform) error {
	if l == nil {
		return ctx.Err()
	}
	lane := l.lane(platform)
	lane.Lock()
	defer lane.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return l.sleep(ctx, l.Next())
}

// Next draws the next delay without waiting.
func (l *Limiter) Next() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	span := l.max - l.min
	if span <= 0 {
		return l.min
	}
	return l.min + time.Duration(l.rng.Int64N(int64(span)+1))
}

// Bounds reports the configured delay interval.
func (l *Limiter) Bounds() (time.Duration, time.Duration) {
	return l.min, l.max
}

func (l *Limiter) lane(platform models.Platform) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lane, ok := l.lanes[platform]
	if !ok {
		lane = &sync.Mutex{}
		l.lanes[platform] = lane
	}
	return lane
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
