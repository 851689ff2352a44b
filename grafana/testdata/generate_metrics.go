// Package main serves synthetic personad metrics so Grafana dashboards can
// be built and tested without putting real traffic through the daemon.
//
// The metric names, labels, and buckets mirror the processor's instrument
// set exactly; only the values are random.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Run outcomes
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "personad_runs_total",
			Help: "Total number of pipeline runs by outcome",
		},
		[]string{"outcome"},
	)
	runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "personad_run_duration_seconds",
			Help:    "End-to-end pipeline run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)
	activeRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "personad_active_runs",
			Help: "Number of runs currently in the pipeline",
		},
	)

	// Stage execution
	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "personad_stage_duration_seconds",
			Help:    "Per-stage execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"stage"},
	)
	stageFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "personad_stage_failures_total",
			Help: "Total number of stage failures",
		},
		[]string{"stage", "reason"},
	)

	// Analysis and synthesis quality
	analysisFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "personad_analysis_fallbacks_total",
			Help: "Total number of analysis branches settled by fallback",
		},
		[]string{"kind"},
	)
	synthesisConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "personad_synthesis_confidence",
			Help:    "Confidence of synthesized persona views",
			Buckets: prometheus.LinearBuckets(0.2, 0.05, 16),
		},
	)

	// Sanitization
	redactionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "personad_redactions_total",
			Help: "Total number of secrets masked before analysis",
		},
	)
)

var (
	stages  = []string{"sanitize", "analyze", "synthesize", "archive"}
	kinds   = []string{"message-intent", "session-state", "memory-relevance", "social-context"}
	reasons = []string{"timeout", "panic", "error"}
)

func init() {
	prometheus.MustRegister(
		runsTotal,
		runDuration,
		activeRuns,
		stageDuration,
		stageFailures,
		analysisFallbacks,
		synthesisConfidence,
		redactionsTotal,
	)
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "9090"
	}

	generateSampleData()

	ctx, cancel := context.WithCancel(context.Background())
	go generateContinuousData(ctx)

	http.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: ":" + port}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		cancel()
		server.Shutdown(context.Background())
	}()

	fmt.Printf("Sample metrics server running on http://localhost:%s/metrics\n", port)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println("\nTo use with Prometheus, add this to prometheus.yml:")
	fmt.Printf("  - job_name: 'personad-test'\n    static_configs:\n      - targets: ['localhost:%s']\n", port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

// simulateRun records one synthetic pipeline run across every instrument,
// with roughly the failure and fallback rates of a healthy daemon.
func simulateRun() {
	total := 0.0
	failed := false
	for _, stage := range stages {
		d := rand.Float64() * 0.02
		stageDuration.WithLabelValues(stage).Observe(d)
		total += d
		if rand.Float64() < 0.02 {
			stageFailures.WithLabelValues(stage, randomChoice(reasons)).Inc()
			failed = true
		}
	}

	outcome := "success"
	if failed && rand.Float64() < 0.3 {
		outcome = "failure"
	}
	runsTotal.WithLabelValues(outcome).Inc()
	runDuration.Observe(total)

	if rand.Float64() < 0.05 {
		analysisFallbacks.WithLabelValues(randomChoice(kinds)).Inc()
	}
	if rand.Float64() < 0.1 {
		redactionsTotal.Add(float64(rand.Intn(3) + 1))
	}
	synthesisConfidence.Observe(0.2 + rand.Float64()*0.75)
}

func generateSampleData() {
	for i := 0; i < 200; i++ {
		simulateRun()
	}
	activeRuns.Set(float64(rand.Intn(4)))
}

func generateContinuousData(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for i := 0; i < rand.Intn(5)+1; i++ {
				simulateRun()
			}
			activeRuns.Set(float64(rand.Intn(4)))
		}
	}
}

func randomChoice(choices []string) string {
	return choices[rand.Intn(len(choices))]
}
