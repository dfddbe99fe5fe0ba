// Package jobmetrics holds Prometheus collectors shared by background jobs.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusSuccess = "success"
	statusFailure = "failure"
)

// Metrics records job runs. A nil *Metrics discards everything.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	reminders   prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers job collectors on registerer. A nil registerer shares
// one instance registered on the Prometheus default registry.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer != nil {
		return register(registerer)
	}
	defaultOnce.Do(func() {
		defaultMetrics = register(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

func register(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crm221_jobs_total",
			Help: "Job runs by job and status.",
		}, []string{"job", "status"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crm221_jobs_failures_total",
			Help: "Failed job runs by job.",
		}, []string{"job"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crm221_job_duration_seconds",
			Help:    "Job run duration in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		}, []string{"job"}),
		lastSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "crm221_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run by job.",
		}, []string{"job"}),
		reminders: factory.NewCounter(prometheus.CounterOpts{
			Name: "crm221_lease_reminders_total",
			Help: "Lease reminders produced by the reminder scan.",
		}),
	}
}

// Tracker times one job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing a run of job.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the run outcome and returns err unchanged.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	m := t.metrics
	m.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	if err != nil {
		m.failures.WithLabelValues(t.job).Inc()
		m.runs.WithLabelValues(t.job, statusFailure).Inc()
		return err
	}
	m.runs.WithLabelValues(t.job, statusSuccess).Inc()
	m.lastSuccess.WithLabelValues(t.job).SetToCurrentTime()
	return nil
}

// AddReminders counts reminders produced by one scan.
func (m *Metrics) AddReminders(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.reminders.Add(float64(count))
}
