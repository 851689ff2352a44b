package processor

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the Prometheus metrics for the message processor.
type Metrics struct {
	// Run outcomes
	RunsTotal   *prometheus.CounterVec
	RunDuration prometheus.Histogram
	ActiveRuns  prometheus.Gauge

	// Stage execution
	StageDuration *prometheus.HistogramVec
	StageFailures *prometheus.CounterVec

	// Analysis and synthesis quality
	AnalysisFallbacks   *prometheus.CounterVec
	SynthesisConfidence prometheus.Histogram

	// Sanitization
	RedactionsTotal prometheus.Counter
}

// NewMetrics creates and registers the processor metrics.
//
// sync.Once keeps registration single-shot so repeated construction (tests,
// config reload) cannot panic with a duplicate collector.
//
// Metrics:
//   - personad_runs_total{outcome} - runs by outcome (success/failure)
//   - personad_run_duration_seconds - end-to-end run duration
//   - personad_active_runs - runs currently in the pipeline
//   - personad_stage_duration_seconds{stage} - per-stage duration
//   - personad_stage_failures_total{stage,reason} - stage failures
//   - personad_analysis_fallbacks_total{kind} - fan-out branches that fell back
//   - personad_synthesis_confidence - confidence of synthesized views
//   - personad_redactions_total - secrets masked before analysis
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			RunsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "personad_runs_total",
					Help: "Total number of pipeline runs by outcome",
				},
				[]string{"outcome"}, // "success" or "failure"
			),

			RunDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "personad_run_duration_seconds",
					Help:    "End-to-end pipeline run duration in seconds",
					Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
				},
			),

			ActiveRuns: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "personad_active_runs",
					Help: "Number of runs currently in the pipeline",
				},
			),

			StageDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "personad_stage_duration_seconds",
					Help:    "Per-stage execution duration in seconds",
					Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
				},
				[]string{"stage"},
			),

			StageFailures: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "personad_stage_failures_total",
					Help: "Total number of stage failures",
				},
				[]string{"stage", "reason"}, // reason: "timeout", "panic", or "error"
			),

			AnalysisFallbacks: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "personad_analysis_fallbacks_total",
					Help: "Total number of analysis branches settled by fallback",
				},
				[]string{"kind"},
			),

			SynthesisConfidence: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "personad_synthesis_confidence",
					Help:    "Confidence of synthesized persona views",
					Buckets: prometheus.LinearBuckets(0.2, 0.05, 16), // the clamp range
				},
			),

			RedactionsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "personad_redactions_total",
					Help: "Total number of secrets masked before analysis",
				},
			),
		}
	})

	return globalMetrics
}

// RecordRun records a settled run.
func (m *Metrics) RecordRun(success bool, d time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(d.Seconds())
}

// RecordStage records a settled stage.
func (m *Metrics) RecordStage(stage string, d time.Duration, failure string) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if failure != "" {
		m.StageFailures.WithLabelValues(stage, failureReason(failure)).Inc()
	}
}

// RecordAnalysisFallback records one fan-out branch that settled by fallback.
func (m *Metrics) RecordAnalysisFallback(kind string) {
	m.AnalysisFallbacks.WithLabelValues(kind).Inc()
}

// ObserveConfidence records a synthesized view's confidence.
func (m *Metrics) ObserveConfidence(c float64) {
	m.SynthesisConfidence.Observe(c)
}

// RecordRedactions records secrets masked in one message.
func (m *Metrics) RecordRedactions(n int) {
	m.RedactionsTotal.Add(float64(n))
}

// failureReason folds a stage error message into a bounded label set.
func failureReason(msg string) string {
	switch {
	case strings.Contains(msg, "timed out"):
		return "timeout"
	case strings.Contains(msg, "panicked"):
		return "panic"
	default:
		return "error"
	}
}
