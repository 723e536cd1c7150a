// Package metrics exposes download counters in the Prometheus format.
package metrics

import (
	"github.com/altafino/attachment-fetcher/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "fetcher"

// Run results recorded by ObserveRun.
const (
	RunSuccess  = "success"
	RunError    = "error"
	RunCanceled = "canceled"
)

// Metrics owns a private registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	jobs       *prometheus.CounterVec
	bytes      prometheus.Counter
	retries    prometheus.Counter
	inFlight   prometheus.Gauge
	runs       *prometheus.CounterVec
	runSeconds *prometheus.HistogramVec
	skipped    *prometheus.CounterVec
}

// New creates and registers the fetcher metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Download jobs by final status.",
		}, []string{"status"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloaded_bytes_total",
			Help:      "Attachment bytes written.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_retries_total",
			Help:      "Fetch attempts that were retried.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Jobs currently being downloaded.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed runs by profile and result.",
		}, []string{"profile", "result"}),
		runSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a run.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"profile"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_attachments_total",
			Help:      "Matching attachments skipped because an earlier run downloaded them.",
		}, []string{"profile"}),
	}

	m.registry.MustRegister(
		m.jobs, m.bytes, m.retries, m.inFlight, m.runs, m.runSeconds, m.skipped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Report implements the orchestrator's progress reporter.
func (m *Metrics) Report(e models.Event) {
	switch e.Status {
	case models.StatusInProgress:
		if e.Err != nil {
			m.retries.Inc()
			return
		}
		m.inFlight.Inc()
	case models.StatusDone:
		m.inFlight.Dec()
		m.jobs.WithLabelValues(string(models.StatusDone)).Inc()
		m.bytes.Add(float64(e.Bytes))
	case models.StatusFailed:
		// Jobs canceled before they started were never counted in flight.
		if e.Attempt > 0 {
			m.inFlight.Dec()
		}
		m.jobs.WithLabelValues(string(models.StatusFailed)).Inc()
	}
}

// ObserveRun records the outcome of a run.
func (m *Metrics) ObserveRun(profile string, s *models.Summary, err error) {
	result := RunSuccess
	switch {
	case err != nil:
		result = RunError
	case s != nil && s.Canceled:
		result = RunCanceled
	}
	m.runs.WithLabelValues(profile, result).Inc()
	if s == nil {
		return
	}
	m.runSeconds.WithLabelValues(profile).Observe(s.Duration.Seconds())
	m.skipped.WithLabelValues(profile).Add(float64(s.Skipped))
}
