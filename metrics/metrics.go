// Package metrics exposes Prometheus collectors for the acquisition engine.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	stageAttemptsTotal     *prometheus.CounterVec
	stageDurationSeconds   *prometheus.HistogramVec
	sourceResultsTotal     *prometheus.CounterVec
	captchaDetectionsTotal *prometheus.CounterVec
	browserLaunchesTotal   *prometheus.CounterVec
	browserRotationsTotal  *prometheus.CounterVec
	browserActivePages     prometheus.Gauge
	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec
	hostWaitSeconds        *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. It is safe to call multiple times, and every
// Observe function calls it, so packages under test need no setup.
func Init() {
	once.Do(func() {
		stageAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regscout_stage_attempts_total",
				Help: "Pipeline stage attempts, labeled by source, stage and outcome.",
			},
			[]string{"source", "stage", "outcome"},
		)

		stageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "regscout_stage_duration_seconds",
				Help:    "Pipeline stage latency, labeled by source and stage.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"source", "stage"},
		)

		sourceResultsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regscout_source_results_total",
				Help: "Source results, labeled by source and error code (\"ok\" on success).",
			},
			[]string{"source", "code"},
		)

		captchaDetectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regscout_captcha_detections_total",
				Help: "Challenge pages observed, labeled by source.",
			},
			[]string{"source"},
		)

		browserLaunchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regscout_browser_launches_total",
				Help: "Browser session launches, labeled by result.",
			},
			[]string{"result"},
		)

		browserRotationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regscout_browser_rotations_total",
				Help: "Browser sessions retired, labeled by reason.",
			},
			[]string{"reason"},
		)

		browserActivePages = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "regscout_browser_active_pages",
				Help: "Stealth pages currently open.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regscout_http_requests_total",
				Help: "API requests, labeled by method, route and code.",
			},
			[]string{"method", "route", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "regscout_http_request_duration_seconds",
				Help:    "API request latency, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"method", "route"},
		)

		hostWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "regscout_host_wait_seconds",
				Help:    "Time spent waiting on per-host politeness limits.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"host"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveStage records one pipeline stage attempt.
func ObserveStage(source, stage, outcome string, d time.Duration) {
	Init()
	stageAttemptsTotal.WithLabelValues(source, stage, outcome).Inc()
	stageDurationSeconds.WithLabelValues(source, stage).Observe(d.Seconds())
}

// ObserveSourceResult records the final outcome of a source.
func ObserveSourceResult(source, code string) {
	Init()
	if code == "" {
		code = "ok"
	}
	sourceResultsTotal.WithLabelValues(source, code).Inc()
}

// ObserveCaptcha records a challenge page.
func ObserveCaptcha(source string) {
	Init()
	captchaDetectionsTotal.WithLabelValues(source).Inc()
}

// ObserveBrowserLaunch records a launch attempt ("ok" or "error").
func ObserveBrowserLaunch(result string) {
	Init()
	browserLaunchesTotal.WithLabelValues(result).Inc()
}

// ObserveBrowserRotation records a retired session.
func ObserveBrowserRotation(reason string) {
	Init()
	browserRotationsTotal.WithLabelValues(reason).Inc()
}

// IncActivePages increments the open stealth page gauge.
func IncActivePages() {
	Init()
	browserActivePages.Inc()
}

// DecActivePages decrements the open stealth page gauge.
func DecActivePages() {
	Init()
	browserActivePages.Dec()
}

// ObserveHTTPRequest records one API request.
func ObserveHTTPRequest(method, route string, code int, d time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveHostWait records time spent blocked on a host limiter.
func ObserveHostWait(host string, d time.Duration) {
	Init()
	hostWaitSeconds.WithLabelValues(host).Observe(d.Seconds())
}
