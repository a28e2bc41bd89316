package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	ItemsScrapedTotal *prometheus.CounterVec
	ItemsSkippedTotal *prometheus.CounterVec
	RetriesTotal      *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
// Other packages register their collectors on the same Registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total page requests issued per marketplace.",
		},
		[]string{"platform", "strategy"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "Page fetch latency per marketplace.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"platform"},
	)
	itemsScraped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_items_scraped_total",
			Help: "Total listings extracted per marketplace.",
		},
		[]string{"platform"},
	)
	itemsSkipped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_items_skipped_total",
			Help: "Listing containers skipped because a field could not be extracted.",
		},
		[]string{"platform", "reason"},
	)
	retries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_retries_total",
			Help: "Total number of fetch retry attempts scheduled.",
		},
		[]string{"platform"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"platform", "error_type"},
	)

	registry.MustRegister(requests, requestDuration, itemsScraped, itemsSkipped, retries, errorsTotal)

	return &Metrics{
		Registry:          registry,
		RequestsTotal:     requests,
		RequestDuration:   requestDuration,
		ItemsScrapedTotal: itemsScraped,
		ItemsSkippedTotal: itemsSkipped,
		RetriesTotal:      retries,
		ErrorsTotal:       errorsTotal,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(platform, strategy string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(platform, strategy).Inc()
}

// ObserveDuration records a page fetch duration.
func (m *Metrics) ObserveDuration(platform string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(platform).Observe(d.Seconds())
}

// AddItems increments the items scraped counter.
func (m *Metrics) AddItems(platform string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ItemsScrapedTotal.WithLabelValues(platform).Add(float64(n))
}

// AddSkipped counts containers dropped for reason.
func (m *Metrics) AddSkipped(platform, reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ItemsSkippedTotal.WithLabelValues(platform, reason).Add(float64(n))
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries(platform string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(platform).Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(platform, errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(platform, errorType).Inc()
}
