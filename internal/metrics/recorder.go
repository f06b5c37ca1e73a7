package metrics

import "time"

// OutcomeLabel enumerates final build outcomes for counters.
type OutcomeLabel string

const (
	OutcomeSuccess    OutcomeLabel = "success"
	OutcomeFailed     OutcomeLabel = "failed"
	OutcomeTerminated OutcomeLabel = "terminated"
	OutcomeConflict   OutcomeLabel = "conflict"
)

// Recorder defines observability hooks for build and analytics metrics.
// Implementations may forward to Prometheus, OpenTelemetry, etc. All methods
// must be safe for nil receivers when using the NoopRecorder (allowing
// optional injection).
type Recorder interface {
	ObserveBuildDuration(d time.Duration)
	ObserveStepDuration(step string, d time.Duration) // step: configure|build
	IncBuildOutcome(outcome OutcomeLabel)
	SetActiveSessions(n int)
	SetHealthScore(targetKey string, score int)
	ObservePredictionError(seconds float64)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveBuildDuration(time.Duration)         {}
func (NoopRecorder) ObserveStepDuration(string, time.Duration)  {}
func (NoopRecorder) IncBuildOutcome(OutcomeLabel)               {}
func (NoopRecorder) SetActiveSessions(int)                      {}
func (NoopRecorder) SetHealthScore(string, int)                 {}
func (NoopRecorder) ObservePredictionError(float64)             {}
