package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bernabe05rodriguez-stack/CarScraper/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func baseSpec() models.SearchSpec {
	return models.SearchSpec{
		Kind:      models.KindAuction,
		Make:      "Porsche",
		Model:     "911",
		YearFrom:  2015,
		YearTo:    2020,
		Platforms: []models.Platform{models.PlatformBaT, models.PlatformCarsAndBids},
	}
}

func TestFingerprintNormalization(t *testing.T) {
	want := Fingerprint(baseSpec())
	tests := []struct {
		name   string
		mutate func(*models.SearchSpec)
	}{
		{name: "platform order", mutate: func(s *models.SearchSpec) {
			s.Platforms = []models.Platform{models.PlatformCarsAndBids, models.PlatformBaT}
		}},
		{name: "duplicate platform", mutate: func(s *models.SearchSpec) {
			s.Platforms = append(s.Platforms, models.PlatformBaT)
		}},
		{name: "make case", mutate: func(s *models.SearchSpec) { s.Make = "PORSCHE" }},
		{name: "model whitespace", mutate: func(s *models.SearchSpec) { s.Model = "  911 " }},
		{name: "empty keyword", mutate: func(s *models.SearchSpec) { s.Keyword = "" }},
		{name: "blank keyword", mutate: func(s *models.SearchSpec) { s.Keyword = "   " }},
		{name: "all times", mutate: func(s *models.SearchSpec) { s.TimeFilter = models.TimeFilterAllTimes }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := baseSpec()
			tt.mutate(&spec)
			if got := Fingerprint(spec); got != want {
				t.Fatalf("fingerprint changed: %s != %s", got, want)
			}
		})
	}
}

func TestFingerprintDistinguishesSearches(t *testing.T) {
	base := Fingerprint(baseSpec())
	mutations := map[string]func(*models.SearchSpec){
		"year":      func(s *models.SearchSpec) { s.YearTo = 2021 },
		"keyword":   func(s *models.SearchSpec) { s.Keyword = "manual" },
		"platforms": func(s *models.SearchSpec) { s.Platforms = s.Platforms[:1] },
		"filter":    func(s *models.SearchSpec) { s.TimeFilter = models.TimeFilter1Year },
		"kind":      func(s *models.SearchSpec) { s.Kind = models.KindUsedCar },
	}
	for name, mutate := range mutations {
		spec := baseSpec()
		mutate(&spec)
		if Fingerprint(spec) == base {
			t.Errorf("%s change should alter the fingerprint", name)
		}
	}
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func TestCacheTTL(t *testing.T) {
	clk := &clock{now: time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)}
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	c, err := New(Options{TTL: 6 * time.Hour, Size: 8, Metrics: metrics, Now: clk.Now})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx := context.Background()
	fp := Fingerprint(baseSpec())

	if _, ok := c.Get(ctx, fp); ok {
		t.Fatal("empty cache should miss")
	}
	if err := c.Put(ctx, Entry{Spec: baseSpec(), Listings: []models.Listing{{Title: "a"}}}); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	clk.now = clk.now.Add(6 * time.Hour)
	e, ok := c.Get(ctx, fp)
	if !ok || len(e.Listings) != 1 {
		t.Fatalf("entry at exactly the TTL should still be fresh")
	}

	clk.now = clk.now.Add(time.Second)
	if _, ok := c.Get(ctx, fp); ok {
		t.Fatal("entry past the TTL should miss")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry should be evicted on lookup, len=%d", c.Len())
	}

	if got := testutil.ToFloat64(metrics.LookupsTotal.WithLabelValues(resultHit)); got != 1 {
		t.Fatalf("hits = %v", got)
	}
	if got := testutil.ToFloat64(metrics.LookupsTotal.WithLabelValues(resultExpired)); got != 1 {
		t.Fatalf("expired = %v", got)
	}
}

func TestCachePutReplaces(t *testing.T) {
	c, err := New(Options{TTL: time.Hour})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx := context.Background()
	fp := Fingerprint(baseSpec())
	_ = c.Put(ctx, Entry{Fingerprint: fp, Listings: []models.Listing{{Title: "old"}}})
	_ = c.Put(ctx, Entry{Fingerprint: fp, Listings: []models.Listing{{Title: "new"}, {Title: "newer"}}})

	e, ok := c.Get(ctx, fp)
	if !ok || len(e.Listings) != 2 || e.Listings[0].Title != "new" {
		t.Fatalf("Put should replace the whole entry, got %+v", e)
	}
}

type memoryStore struct {
	entries map[string]Entry
	putErr  error
}

func (m *memoryStore) GetEntry(_ context.Context, fp string) (Entry, bool, error) {
	e, ok := m.entries[fp]
	return e, ok, nil
}

func (m *memoryStore) PutEntry(_ context.Context, e Entry) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.entries[e.Fingerprint] = e
	return nil
}

func TestCacheStoreFallback(t *testing.T) {
	clk := &clock{now: time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)}
	store := &memoryStore{entries: map[string]Entry{}}
	ctx := context.Background()
	fp := Fingerprint(baseSpec())

	first, _ := New(Options{TTL: time.Hour, Store: store, Now: clk.Now})
	if err := first.Put(ctx, Entry{Spec: baseSpec()}); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if _, ok := store.entries[fp]; !ok {
		t.Fatal("Put should write through to the store")
	}

	// A new process finds the entry in the store.
	second, _ := New(Options{TTL: time.Hour, Store: store, Now: clk.Now})
	if _, ok := second.Get(ctx, fp); !ok {
		t.Fatal("expected a hit from the store")
	}
	if second.Len() != 1 {
		t.Fatal("store hit should be promoted to memory")
	}

	clk.now = clk.now.Add(2 * time.Hour)
	third, _ := New(Options{TTL: time.Hour, Store: store, Now: clk.Now})
	if _, ok := third.Get(ctx, fp); ok {
		t.Fatal("stale store entries must miss")
	}
}

func TestCachePutReportsStoreErrors(t *testing.T) {
	store := &memoryStore{entries: map[string]Entry{}, putErr: errors.New("disk full")}
	c, _ := New(Options{TTL: time.Hour, Store: store})
	if err := c.Put(context.Background(), Entry{Spec: baseSpec()}); err == nil {
		t.Fatal("expected the store error")
	}
	if _, ok := c.Get(context.Background(), Fingerprint(baseSpec())); !ok {
		t.Fatal("memory tier should still hold the entry")
	}
}

func TestNewRejectsZeroTTL(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected an error for a zero ttl")
	}
}
