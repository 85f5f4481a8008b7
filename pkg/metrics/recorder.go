// Package metrics provides Prometheus-based metrics recording and querying
// for the execution engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder records task lifecycle metrics.
type Recorder struct {
	tasksTotal       *prometheus.CounterVec
	retriesTotal     *prometheus.CounterVec
	gateVerdicts     *prometheus.CounterVec
	tokensTotal      *prometheus.CounterVec
	executionSeconds *prometheus.HistogramVec
	activeContainers prometheus.Gauge
}

// NewRecorder creates and registers the engine's metrics.
func NewRecorder() *Recorder {
	return &Recorder{
		tasksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cto_tasks_total",
				Help: "Total coding tasks by final status, complexity, and access mode",
			},
			[]string{"status", "complexity", "access_mode"},
		),
		retriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cto_retries_total",
				Help: "Total quality gate retries by repository",
			},
			[]string{"repository"},
		),
		gateVerdicts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cto_gate_verdicts_total",
				Help: "Quality gate verdicts",
			},
			[]string{"verdict"},
		),
		tokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cto_oracle_tokens_total",
				Help: "Oracle tokens used by stage",
			},
			[]string{"stage"},
		),
		executionSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cto_execution_duration_seconds",
				Help:    "Duration of execution attempts in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"agent", "complexity"},
		),
		activeContainers: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cto_active_environments",
				Help: "Currently live sandbox environments",
			},
		),
	}
}

// ObserveTask records a finished task.
func (r *Recorder) ObserveTask(status, complexity, accessMode string) {
	r.tasksTotal.WithLabelValues(status, complexity, accessMode).Inc()
}

// ObserveRetry records a quality gate retry.
func (r *Recorder) ObserveRetry(repository string) {
	r.retriesTotal.WithLabelValues(repository).Inc()
}

// ObserveVerdict records a gate verdict.
func (r *Recorder) ObserveVerdict(verdict string) {
	r.gateVerdicts.WithLabelValues(verdict).Inc()
}

// ObserveTokens records oracle token usage for a stage.
func (r *Recorder) ObserveTokens(stage string, tokens int) {
	if tokens > 0 {
		r.tokensTotal.WithLabelValues(stage).Add(float64(tokens))
	}
}

// ObserveExecution records one execution attempt's duration.
func (r *Recorder) ObserveExecution(agent, complexity string, duration time.Duration) {
	r.executionSeconds.WithLabelValues(agent, complexity).Observe(duration.Seconds())
}

// SetActiveEnvironments updates the live environment gauge.
func (r *Recorder) SetActiveEnvironments(n int) {
	r.activeContainers.Set(float64(n))
}

// Handler returns the scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
