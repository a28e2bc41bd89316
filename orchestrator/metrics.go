package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the orchestrator collectors.
type Metrics struct {
	JobsTotal    *prometheus.CounterVec
	TasksTotal   *prometheus.CounterVec
	TaskDuration *prometheus.HistogramVec
	ActiveJobs   prometheus.Gauge
}

// NewMetrics registers the orchestrator collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	jobs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_jobs_total",
			Help: "Jobs by terminal status and cache outcome.",
		},
		[]string{"status", "cached"},
	)
	tasks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_tasks_total",
			Help: "Platform tasks by final state.",
		},
		[]string{"platform", "state"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_task_duration_seconds",
			Help:    "Wall time of one platform task, retries included.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"platform"},
	)
	active := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orchestrator_active_jobs",
		Help: "Jobs currently dispatched to platforms.",
	})
	reg.MustRegister(jobs, tasks, duration, active)
	return &Metrics{JobsTotal: jobs, TasksTotal: tasks, TaskDuration: duration, ActiveJobs: active}
}

func (m *Metrics) jobFinished(status string, cached bool) {
	if m == nil {
		return
	}
	c := "false"
	if cached {
		c = "true"
	}
	m.JobsTotal.WithLabelValues(status, c).Inc()
}

func (m *Metrics) taskFinished(platform, state string, d time.Duration) {
	if m == nil {
		return
	}
	m.TasksTotal.WithLabelValues(platform, state).Inc()
	m.TaskDuration.WithLabelValues(platform).Observe(d.Seconds())
}

func (m *Metrics) jobStarted() {
	if m == nil {
		return
	}
	m.ActiveJobs.Inc()
}

func (m *Metrics) jobDone() {
	if m == nil {
		return
	}
	m.ActiveJobs.Dec()
}
