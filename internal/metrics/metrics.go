// Package metrics exposes scan and load-test counters for Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aiforce-discovery-agent/collectors/web-scanner/internal/loadtest"
	"github.com/aiforce-discovery-agent/collectors/web-scanner/internal/scanner"
)

// Recorder owns a private registry. All methods are safe on a nil receiver
// so callers can leave metrics unwired.
type Recorder struct {
	registry *prometheus.Registry

	jobsTotal          *prometheus.CounterVec
	jobDuration        *prometheus.HistogramVec
	findingsTotal      *prometheus.CounterVec
	requestsTotal      *prometheus.CounterVec
	requestDurationSec prometheus.Histogram
}

var (
	_ scanner.Observer         = (*Recorder)(nil)
	_ loadtest.RequestObserver = (*Recorder)(nil)
)

// New creates a recorder with process and Go runtime collectors attached.
func New() *Recorder {
	// Custom registry keeps tests and embedders isolated from the default one.
	registry := prometheus.NewRegistry()

	r := &Recorder{
		registry: registry,
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scanner_jobs_total",
				Help: "Scan jobs finished, by scanner and terminal status",
			},
			[]string{"scanner", "status"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scanner_job_duration_seconds",
				Help:    "Wall-clock duration of scan jobs",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"scanner"},
		),
		findingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scanner_findings_total",
				Help: "Findings reported, by severity",
			},
			[]string{"severity"},
		),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loadtest_requests_total",
				Help: "Load-test requests, by outcome class",
			},
			[]string{"outcome"},
		),
		requestDurationSec: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "loadtest_request_duration_seconds",
				Help:    "Latency of load-test requests",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	registry.MustRegister(
		r.jobsTotal,
		r.jobDuration,
		r.findingsTotal,
		r.requestsTotal,
		r.requestDurationSec,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveResult records one finished scan job.
func (r *Recorder) ObserveResult(res *scanner.ScanResult) {
	if r == nil || res == nil {
		return
	}
	r.jobsTotal.WithLabelValues(string(res.Type), string(res.Status)).Inc()
	if !res.EndTime.IsZero() {
		r.jobDuration.WithLabelValues(string(res.Type)).Observe(res.Duration().Seconds())
	}
	for _, f := range res.Findings {
		r.findingsTotal.WithLabelValues(string(f.Severity)).Inc()
	}
}

// ObserveRequest records one load-test request. A zero status code is a
// transport error.
func (r *Recorder) ObserveRequest(statusCode int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.requestsTotal.WithLabelValues(outcome(statusCode)).Inc()
	r.requestDurationSec.Observe(elapsed.Seconds())
}

func outcome(code int) string {
	if code <= 0 {
		return "error"
	}
	return strconv.Itoa(code/100) + "xx"
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}
