package cache

import "github.com/prometheus/client_golang/prometheus"

const (
	resultHit     = "hit"
	resultMiss    = "miss"
	resultExpired = "expired"
)

// Metrics counts cache lookups by outcome.
type Metrics struct {
	LookupsTotal *prometheus.CounterVec
}

// NewMetrics registers the cache collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	lookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Result cache lookups by outcome.",
		},
		[]string{"result"},
	)
	reg.MustRegister(lookups)
	return &Metrics{LookupsTotal: lookups}
}

func (m *Metrics) observe(result string) {
	if m == nil {
		return
	}
	m.LookupsTotal.WithLabelValues(result).Inc()
}
