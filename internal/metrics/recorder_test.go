package metrics

import "time"

type testRecorder struct {
	stepDurations  map[string]int
	buildDurations int
	buildOutcomes  map[OutcomeLabel]int
	activeSessions int
	healthScores   map[string]int
	predErrors     int
}

func newTestRecorder() *testRecorder {
	return &testRecorder{
		stepDurations: map[string]int{},
		buildOutcomes: map[OutcomeLabel]int{},
		healthScores:  map[string]int{},
	}
}

func (t *testRecorder) ObserveBuildDuration(_ time.Duration) { t.buildDurations++ }
func (t *testRecorder) ObserveStepDuration(step string, _ time.Duration) {
	t.stepDurations[step]++
}
func (t *testRecorder) IncBuildOutcome(outcome OutcomeLabel) { t.buildOutcomes[outcome]++ }
func (t *testRecorder) SetActiveSessions(n int)              { t.activeSessions = n }
func (t *testRecorder) SetHealthScore(key string, score int) { t.healthScores[key] = score }
func (t *testRecorder) ObservePredictionError(float64)       { t.predErrors++ }
