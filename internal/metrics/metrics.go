// Package metrics exposes Prometheus collectors for the rank worker.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsTotal             *prometheus.CounterVec
	claimsTotal           *prometheus.CounterVec
	searchDurationSeconds prometheus.Histogram
	searchRetriesTotal    prometheus.Counter
	queueDepth            prometheus.Gauge
	browserSessionsActive prometheus.Gauge

	once sync.Once
)

// Job outcome labels recorded by ObserveJob.
const (
	OutcomeSuccess      = "success"
	OutcomeBlocked      = "blocked"
	OutcomeNoCandidates = "no_candidates"
	OutcomeError        = "error"
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meorank_jobs_total",
				Help: "Total rank check jobs processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		claimsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meorank_claims_total",
				Help: "Total claim attempts, labeled by result (job, empty, error).",
			},
			[]string{"result"},
		)

		searchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "meorank_search_duration_seconds",
				Help:    "Histogram of browser search latencies.",
				Buckets: []float64{1, 2.5, 5, 10, 20, 40, 60, 120},
			},
		)

		searchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "meorank_search_retries_total",
				Help: "Total transient navigation retries inside the searching step.",
			},
		)

		queueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "meorank_queue_depth",
				Help: "Number of jobs currently queued.",
			},
		)

		browserSessionsActive = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "meorank_browser_sessions_active",
				Help: "Whether a browser session is currently held (0 or 1 per process).",
			},
		)
	})
}

// ObserveJob increments the outcome counter for one completed job.
func ObserveJob(outcome string) {
	if jobsTotal != nil {
		jobsTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveClaim increments the claim counter for one claim attempt.
func ObserveClaim(result string) {
	if claimsTotal != nil {
		claimsTotal.WithLabelValues(result).Inc()
	}
}

// ObserveSearchDuration records one browser search latency.
func ObserveSearchDuration(d time.Duration) {
	if searchDurationSeconds != nil {
		searchDurationSeconds.Observe(d.Seconds())
	}
}

// ObserveSearchRetry counts one transient navigation retry.
func ObserveSearchRetry() {
	if searchRetriesTotal != nil {
		searchRetriesTotal.Inc()
	}
}

// SetQueueDepth records the current queue depth.
func SetQueueDepth(depth int) {
	if queueDepth != nil {
		queueDepth.Set(float64(depth))
	}
}

// SetBrowserActive flags whether a browser session is held.
func SetBrowserActive(active bool) {
	if browserSessionsActive == nil {
		return
	}
	if active {
		browserSessionsActive.Set(1)
	} else {
		browserSessionsActive.Set(0)
	}
}
