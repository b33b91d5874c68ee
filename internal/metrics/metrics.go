// Package metrics exposes Prometheus instrumentation for the job pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shelfarr/internal/queue"
)

const namespace = "shelfarr"

// Metrics holds the collectors registered on a private registry so several
// instances (one per test) never collide.
type Metrics struct {
	Registry *prometheus.Registry

	Transitions     *prometheus.CounterVec
	StepDuration    *prometheus.HistogramVec
	StepErrors      *prometheus.CounterVec
	JobsByStatus    *prometheus.GaugeVec
	SearchResults   prometheus.Histogram
	PublishFailures prometheus.Counter
	RecheckSweeps   prometheus.Counter
	RecheckDuration prometheus.Histogram
	TorrentResumes  prometheus.Counter
}

// New creates and registers every collector.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_transitions_total",
			Help:      "Job status transitions by source and target status",
		}, []string{"from", "to"}),
		StepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_step_duration_seconds",
			Help:      "Duration of one advance step by starting status",
			Buckets:   []float64{0.05, 0.25, 1, 5, 30, 120, 600, 1800, 3600},
		}, []string{"status"}),
		StepErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_step_errors_total",
			Help:      "Advance step failures by status and retryability",
		}, []string{"status", "retryable"}),
		JobsByStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs",
			Help:      "Jobs currently in each status",
		}, []string{"status"}),
		SearchResults: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results",
			Help:      "Number of results returned per indexer search",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
		PublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Library scan requests that failed",
		}),
		RecheckSweeps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recheck_sweeps_total",
			Help:      "Completed recheck sweeps",
		}),
		RecheckDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recheck_sweep_duration_seconds",
			Help:      "Duration of recheck sweeps",
			Buckets:   prometheus.DefBuckets,
		}),
		TorrentResumes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "torrent_resumes_total",
			Help:      "Inactive torrents resumed by the recheck scheduler",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// ObserveTransition counts a status change.
func (m *Metrics) ObserveTransition(from, to queue.Status) {
	if m == nil || from == to {
		return
	}
	m.Transitions.WithLabelValues(string(from), string(to)).Inc()
}

// ObserveStep records how long an advance step starting at status took and
// whether it failed.
func (m *Metrics) ObserveStep(status queue.Status, started time.Time, err error, retryable bool) {
	if m == nil {
		return
	}
	m.StepDuration.WithLabelValues(string(status)).Observe(time.Since(started).Seconds())
	if err != nil {
		label := "false"
		if retryable {
			label = "true"
		}
		m.StepErrors.WithLabelValues(string(status), label).Inc()
	}
}

// SetStatusCounts replaces the per-status job gauge.
func (m *Metrics) SetStatusCounts(counts map[queue.Status]int) {
	if m == nil {
		return
	}
	for _, status := range queue.AllStatuses() {
		m.JobsByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

// ObserveSearchResults records how many hits one search returned.
func (m *Metrics) ObserveSearchResults(n int) {
	if m == nil {
		return
	}
	m.SearchResults.Observe(float64(n))
}

// IncPublishFailure counts a failed library rescan.
func (m *Metrics) IncPublishFailure() {
	if m == nil {
		return
	}
	m.PublishFailures.Inc()
}

// IncTorrentResume counts a torrent resumed by the recheck sweep.
func (m *Metrics) IncTorrentResume() {
	if m == nil {
		return
	}
	m.TorrentResumes.Inc()
}

// ObserveRecheck records one completed recheck sweep.
func (m *Metrics) ObserveRecheck(started time.Time) {
	if m == nil {
		return
	}
	m.RecheckSweeps.Inc()
	m.RecheckDuration.Observe(time.Since(started).Seconds())
}
