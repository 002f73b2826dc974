// Package metrics defines the Prometheus collectors recorded during an
// evaluation run. A run is a short-lived batch job, so the collectors live
// in their own registry and are pushed to a Pushgateway when the run ends
// instead of being scraped.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Query outcomes used as the "outcome" label.
const (
	OutcomeFound  = "found"
	OutcomeMissed = "missed"
	OutcomeError  = "error"
)

// Metrics holds all Prometheus collectors for one run.
type Metrics struct {
	Registry            *prometheus.Registry
	QueriesTotal        *prometheus.CounterVec
	QueryScore          prometheus.Histogram
	HitPosition         prometheus.Histogram
	SearchLatency       prometheus.Histogram
	SkippedLinesTotal   prometheus.Counter
	CombinedScore       prometheus.Gauge
	MaxCombinedScore    prometheus.Gauge
	ScoreRatio          prometheus.Gauge
	LastRunTimestamp    prometheus.Gauge
	CircuitBreakerState *prometheus.GaugeVec
}

// New creates and registers all collectors in a fresh registry. strategy is
// attached as a constant label so runs of different query templates stay
// apart.
func New(strategy string) *Metrics {
	labels := prometheus.Labels{"strategy": strategy}
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "relevance_queries_total",
				Help:        "Evaluated test cases by outcome (found, missed, error).",
				ConstLabels: labels,
			},
			[]string{"outcome"},
		),
		QueryScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:        "relevance_query_score",
				Help:        "Score earned per test case.",
				Buckets:     []float64{0, 10, 20, 30, 40, 50, 100},
				ConstLabels: labels,
			},
		),
		HitPosition: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:        "relevance_hit_position",
				Help:        "1-based rank of the expected hit when found.",
				Buckets:     []float64{1, 2, 3, 4, 5, 10},
				ConstLabels: labels,
			},
		),
		SearchLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:        "relevance_search_latency_seconds",
				Help:        "Search endpoint latency per test case, including retries.",
				Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
				ConstLabels: labels,
			},
		),
		SkippedLinesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name:        "relevance_skipped_lines_total",
				Help:        "Malformed test file lines skipped.",
				ConstLabels: labels,
			},
		),
		CombinedScore: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "relevance_combined_score",
				Help:        "Sum of per-query scores of the run.",
				ConstLabels: labels,
			},
		),
		MaxCombinedScore: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "relevance_max_combined_score",
				Help:        "Best possible combined score of the run.",
				ConstLabels: labels,
			},
		),
		ScoreRatio: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "relevance_score_ratio",
				Help:        "Combined score divided by the maximum combined score.",
				ConstLabels: labels,
			},
		),
		LastRunTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "relevance_last_run_timestamp_seconds",
				Help:        "Unix time the run finished.",
				ConstLabels: labels,
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name:        "relevance_circuit_breaker_state",
				Help:        "Circuit breaker state (0=closed, 1=open, 2=half-open).",
				ConstLabels: labels,
			},
			[]string{"name"},
		),
	}

	m.Registry.MustRegister(
		m.QueriesTotal,
		m.QueryScore,
		m.HitPosition,
		m.SearchLatency,
		m.SkippedLinesTotal,
		m.CombinedScore,
		m.MaxCombinedScore,
		m.ScoreRatio,
		m.LastRunTimestamp,
		m.CircuitBreakerState,
	)

	return m
}

// ObserveQuery records one evaluated test case.
func (m *Metrics) ObserveQuery(outcome string, score, position int, latency time.Duration) {
	m.QueriesTotal.WithLabelValues(outcome).Inc()
	m.QueryScore.Observe(float64(score))
	if outcome == OutcomeFound {
		m.HitPosition.Observe(float64(position))
	}
	if latency > 0 {
		m.SearchLatency.Observe(latency.Seconds())
	}
}

// ObserveTotals records the final score of the run.
func (m *Metrics) ObserveTotals(combined, maxCombined int) {
	m.CombinedScore.Set(float64(combined))
	m.MaxCombinedScore.Set(float64(maxCombined))
	if maxCombined > 0 {
		m.ScoreRatio.Set(float64(combined) / float64(maxCombined))
	}
	m.LastRunTimestamp.SetToCurrentTime()
}

// SetBreakerState mirrors a circuit breaker transition; state follows the
// resilience.State numbering.
func (m *Metrics) SetBreakerState(name string, state int) {
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// Push sends the registry to a Pushgateway, replacing the metrics previously
// pushed for the same job and instance.
func (m *Metrics) Push(ctx context.Context, url, job, instance string) error {
	pusher := push.New(url, job).Gatherer(m.Registry)
	if instance != "" {
		pusher = pusher.Grouping("instance", instance)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}
	return nil
}
