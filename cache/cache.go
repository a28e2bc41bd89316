// Package cache keeps completed search results for a time-to-live.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bernabe05rodriguez-stack/CarScraper/models"
	"github.com/bernabe05rodriguez-stack/CarScraper/stats"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Entry is one cached result set.
type Entry struct {
	Fingerprint string            `json:"fingerprint"`
	Spec        models.SearchSpec `json:"spec"`
	Listings    []models.Listing  `json:"listings"`
	Stats       stats.Summary     `json:"stats"`
	// Partial is set when some platforms failed while the result was built.
	Partial   bool      `json:"partial,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is a persistent backing tier, e.g. storage.Postgres.
type Store interface {
	GetEntry(ctx context.Context, fingerprint string) (Entry, bool, error)
	PutEntry(ctx context.Context, entry Entry) error
}

// Options configures New.
type Options struct {
	TTL time.Duration
	// Size bounds the in-memory tier.
	Size    int
	Store   Store
	Metrics *Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// Cache is a bounded in-memory LRU with lazy TTL expiry, optionally backed by a Store.
// It is safe for concurrent use.
type Cache struct {
	ttl     time.Duration
	entries *lru.Cache[string, Entry]
	store   Store
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a cache.
func New(opts Options) (*Cache, error) {
	if opts.TTL <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive")
	}
	if opts.Size <= 0 {
		opts.Size = 512
	}
	entries, err := lru.New[string, Entry](opts.Size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		ttl:     opts.TTL,
		entries: entries,
		store:   opts.Store,
		metrics: opts.Metrics,
		logger:  logger.With(slog.String("component", "cache")),
		now:     opts.Now,
	}, nil
}

func (c *Cache) fresh(e Entry) bool {
	return c.now().Sub(e.CreatedAt) <= c.ttl
}

// Get returns the entry for fingerprint unless it is absent or older than the TTL.
func (c *Cache) Get(ctx context.Context, fingerprint string) (Entry, bool) {
	if e, ok := c.entries.Get(fingerprint); ok {
		if c.fresh(e) {
			c.metrics.observe(resultHit)
			return e, true
		}
		c.entries.Remove(fingerprint)
		c.metrics.observe(resultExpired)
		return Entry{}, false
	}
	if c.store != nil {
		e, ok, err := c.store.GetEntry(ctx, fingerprint)
		if err != nil {
			c.logger.Warn("cache store lookup failed", slog.String("fingerprint", fingerprint), slog.Any("error", err))
		} else if ok && c.fresh(e) {
			c.entries.Add(fingerprint, e)
			c.metrics.observe(resultHit)
			return e, true
		}
	}
	c.metrics.observe(resultMiss)
	return Entry{}, false
}

// Put replaces the entry stored under e.Fingerprint. The in-memory tier is always
// updated; a store failure is returned after that.
func (c *Cache) Put(ctx context.Context, e Entry) error {
	if e.Fingerprint == "" {
		e.Fingerprint = Fingerprint(e.Spec)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = c.now()
	}
	c.entries.Add(e.Fingerprint, e)
	if c.store != nil {
		if err := c.store.PutEntry(ctx, e); err != nil {
			return fmt.Errorf("persist cache entry %s: %w", e.Fingerprint, err)
		}
	}
	return nil
}

// Len reports the number of entries held in memory, fresh or not.
func (c *Cache) Len() int {
	return c.entries.Len()
}
