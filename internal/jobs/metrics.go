package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	tamper      *prometheus.CounterVec
	corrections *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddTamper records hash chain verification findings.
func (m *Metrics) AddTamper(mismatches, brokenLinks int) {
	if m == nil {
		return
	}
	if mismatches > 0 {
		m.tamper.WithLabelValues("mismatch").Add(float64(mismatches))
	}
	if brokenLinks > 0 {
		m.tamper.WithLabelValues("broken_link").Add(float64(brokenLinks))
	}
}

// AddCorrections records balance corrections applied by rebuild jobs.
func (m *Metrics) AddCorrections(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.corrections.WithLabelValues("balance").Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saldo_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saldo_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "saldo_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	tamper := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saldo_chain_tamper_total",
		Help: "Hash chain verification findings grouped by kind.",
	}, []string{"kind"})
	corrections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saldo_balance_corrections_total",
		Help: "Balance corrections applied during rebuild jobs.",
	}, []string{"scope"})
	registerer.MustRegister(runs, failures, duration, tamper, corrections)
	return &Metrics{runs: runs, failures: failures, duration: duration, tamper: tamper, corrections: corrections}
}
