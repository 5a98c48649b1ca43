// Package metrics defines the Prometheus collectors for the pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	stageRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paper2code_stage_runs_total",
			Help: "Total number of pipeline stage invocations",
		},
		[]string{"stage", "outcome"},
	)

	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "paper2code_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	llmRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paper2code_llm_requests_total",
			Help: "Total number of outbound generation calls",
		},
		[]string{"provider", "outcome"},
	)

	llmRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paper2code_llm_retries_total",
			Help: "Total number of retried generation or retrieval calls",
		},
		[]string{"target"},
	)

	llmTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paper2code_llm_tokens_total",
			Help: "Tokens consumed by outbound generation calls",
		},
		[]string{"provider", "direction"},
	)

	llmInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "paper2code_llm_in_flight",
			Help: "Generation calls currently holding a concurrency slot",
		},
	)

	lockWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "paper2code_session_lock_wait_seconds",
			Help:    "Time spent waiting for the per-session lock",
			Buckets: prometheus.DefBuckets,
		},
	)

	refinements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paper2code_refinement_iterations_total",
			Help: "Refinement iterations by outcome",
		},
		[]string{"outcome"},
	)

	initOnce sync.Once
)

// Init registers all collectors with the default registry.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			stageRuns,
			stageDuration,
			llmRequests,
			llmRetries,
			llmTokens,
			llmInFlight,
			lockWait,
			refinements,
		)
	})
}

// Handler returns the /metrics handler.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveStage records one stage invocation that started at start.
func ObserveStage(stage string, start time.Time, err error) {
	stageRuns.WithLabelValues(stage, outcome(err)).Inc()
	stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// ObserveLLMCall records one outbound generation call and its token usage.
func ObserveLLMCall(provider string, inputTokens, outputTokens int, err error) {
	llmRequests.WithLabelValues(provider, outcome(err)).Inc()
	if err == nil {
		llmTokens.WithLabelValues(provider, "input").Add(float64(inputTokens))
		llmTokens.WithLabelValues(provider, "output").Add(float64(outputTokens))
	}
}

// IncRetry counts one retry against target.
func IncRetry(target string) {
	llmRetries.WithLabelValues(target).Inc()
}

// TrackInFlight increments the in-flight gauge and returns its decrement.
func TrackInFlight() func() {
	llmInFlight.Inc()
	return llmInFlight.Dec
}

// ObserveLockWait records how long a caller waited for a session lock.
func ObserveLockWait(d time.Duration) {
	lockWait.Observe(d.Seconds())
}

// ObserveRefinement counts one committed or failed refinement iteration.
func ObserveRefinement(err error) {
	refinements.WithLabelValues(outcome(err)).Inc()
}
