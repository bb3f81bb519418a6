// Package metrics exposes Prometheus instrumentation for the engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder collects engine metrics. A nil *Recorder discards everything.
type Recorder struct {
	registry *prometheus.Registry

	submissions   *prometheus.CounterVec
	runs          *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	activeRuns    prometheus.Gauge
	reaperRemoved prometheus.Counter
	reaperFailed  prometheus.Counter
}

// NewRecorder registers the engine collectors on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cortex_submissions_total",
			Help: "Submissions received, by language and acceptance.",
		}, []string{"language", "accepted"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cortex_runs_total",
			Help: "Completed runs, by language and final state.",
		}, []string{"language", "state"}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cortex_run_duration_seconds",
			Help:    "Wall time of the exec phase of a run.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"language"}),
		activeRuns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cortex_active_runs",
			Help: "Runs currently in flight on this process.",
		}),
		reaperRemoved: factory.NewCounter(prometheus.CounterOpts{
			Name: "cortex_reaper_removed_total",
			Help: "Stopped containers removed by the reaper.",
		}),
		reaperFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "cortex_reaper_failed_total",
			Help: "Stopped containers the reaper failed to remove.",
		}),
	}
}

// Submitted counts an incoming submission.
func (r *Recorder) Submitted(language string, accepted bool) {
	if r == nil {
		return
	}
	label := "false"
	if accepted {
		label = "true"
	}
	r.submissions.WithLabelValues(language, label).Inc()
}

// RunStarted marks a run as in flight and returns a func that completes it.
func (r *Recorder) RunStarted() func() {
	if r == nil {
		return func() {}
	}
	r.activeRuns.Inc()
	return r.activeRuns.Dec
}

// RunFinished records a completed run.
func (r *Recorder) RunFinished(language, state string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(language, state).Inc()
	if elapsed > 0 {
		r.runDuration.WithLabelValues(language).Observe(elapsed.Seconds())
	}
}

// Reaped records the outcome of one reaper sweep.
func (r *Recorder) Reaped(removed, failed int) {
	if r == nil {
		return
	}
	r.reaperRemoved.Add(float64(removed))
	r.reaperFailed.Add(float64(failed))
}

// Registry exposes the underlying registry for scraping or tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
