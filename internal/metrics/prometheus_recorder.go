package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once            sync.Once
	buildDuration   prom.Histogram
	stepDuration    *prom.HistogramVec
	buildOutcome    *prom.CounterVec
	activeSessions  prom.Gauge
	healthScore     *prom.GaugeVec
	predictionError prom.Histogram
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.buildDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "buildmon",
			Name:      "build_duration_seconds",
			Help:      "Total wall-clock duration of completed builds",
			Buckets:   prom.ExponentialBuckets(1, 2, 12),
		})
		pr.stepDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "buildmon",
			Name:      "step_duration_seconds",
			Help:      "Duration of individual toolchain steps",
			Buckets:   prom.DefBuckets,
		}, []string{"step"})
		pr.buildOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "buildmon",
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"})
		pr.activeSessions = prom.NewGauge(prom.GaugeOpts{
			Namespace: "buildmon",
			Name:      "active_sessions",
			Help:      "Number of build sessions currently tracked",
		})
		pr.healthScore = prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "buildmon",
			Name:      "health_score",
			Help:      "Composite build health score per target key",
		}, []string{"target"})
		pr.predictionError = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "buildmon",
			Name:      "prediction_error_seconds",
			Help:      "Absolute error between predicted and actual build duration",
			Buckets:   prom.ExponentialBuckets(0.5, 2, 10),
		})
		reg.MustRegister(pr.buildDuration, pr.stepDuration, pr.buildOutcome,
			pr.activeSessions, pr.healthScore, pr.predictionError)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil || p.buildDuration == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveStepDuration(step string, d time.Duration) {
	if p == nil || p.stepDuration == nil {
		return
	}
	p.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome OutcomeLabel) {
	if p == nil || p.buildOutcome == nil {
		return
	}
	p.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) SetActiveSessions(n int) {
	if p == nil || p.activeSessions == nil {
		return
	}
	p.activeSessions.Set(float64(n))
}

func (p *PrometheusRecorder) SetHealthScore(targetKey string, score int) {
	if p == nil || p.healthScore == nil {
		return
	}
	p.healthScore.WithLabelValues(targetKey).Set(float64(score))
}

func (p *PrometheusRecorder) ObservePredictionError(seconds float64) {
	if p == nil || p.predictionError == nil {
		return
	}
	p.predictionError.Observe(seconds)
}
