package health

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildmon/internal/state"
)

func newTestScorer(t *testing.T) *Scorer {
	t.Helper()
	store, err := state.NewJSONStore(filepath.Join(t.TempDir(), "health_tracker.json"))
	require.NoError(t, err)
	return NewScorer(store)
}

func TestScore_RequiresFiveBuilds(t *testing.T) {
	s := newTestScorer(t)
	targets := []string{"core"}

	for i := 0; i < 4; i++ {
		s.Record(targets, true, 10*time.Second, 0, 0, "")
	}
	_, ok := s.Score(targets)
	require.False(t, ok)

	s.Record(targets, true, 10*time.Second, 0, 0, "")
	_, ok = s.Score(targets)
	require.True(t, ok)
}

func TestScore_PerfectBuilds(t *testing.T) {
	s := newTestScorer(t)
	targets := []string{"core"}

	for i := 0; i < 5; i++ {
		s.Record(targets, true, 10*time.Second, 0, 0, "")
	}

	score, ok := s.Score(targets)
	require.True(t, ok)
	// Exactly five builds leaves no older durations to compare against
	// and no usable predictions, so performance falls back to 75:
	// 100*0.4 + 75*0.3 + 100*0.2 + 80*0.1 = 90.5, truncated to 90.
	assert.Equal(t, 90, score)
	assert.GreaterOrEqual(t, score, 0)
	assert.LessOrEqual(t, score, 100)
}

func TestScore_TrendAfterThreeCalculations(t *testing.T) {
	s := newTestScorer(t)
	targets := []string{"core"}

	for i := 0; i < 5; i++ {
		s.Record(targets, true, 10*time.Second, 0, 0, "")
	}

	_, _ = s.Score(targets)
	assert.Equal(t, TrendInsufficientData, s.Trend(targets))
	_, _ = s.Score(targets)
	assert.Equal(t, TrendInsufficientData, s.Trend(targets))
	_, _ = s.Score(targets)
	assert.Equal(t, TrendStable, s.Trend(targets))
}

func TestScore_FailuresLowerScore(t *testing.T) {
	s := newTestScorer(t)
	good := []string{"good"}
	bad := []string{"bad"}

	for i := 0; i < 10; i++ {
		s.Record(good, true, 10*time.Second, 0, 0, "")
		s.Record(bad, i%2 == 0, 10*time.Second, 0, 0, "")
	}

	goodScore, ok := s.Score(good)
	require.True(t, ok)
	badScore, ok := s.Score(bad)
	require.True(t, ok)
	assert.Greater(t, goodScore, badScore)
}

func TestScore_WarningsLowerScore(t *testing.T) {
	s := newTestScorer(t)
	noisy := []string{"noisy"}
	quiet := []string{"quiet"}

	for i := 0; i < 5; i++ {
		s.Record(noisy, true, 10*time.Second, 0, 25, "")
		s.Record(quiet, true, 10*time.Second, 0, 0, "")
	}

	noisyScore, _ := s.Score(noisy)
	quietScore, _ := s.Score(quiet)
	assert.Greater(t, quietScore, noisyScore)
}

func TestScore_HighResourceUseLowersScore(t *testing.T) {
	s := newTestScorer(t)
	heavy := []string{"heavy"}

	for i := 0; i < 5; i++ {
		s.Record(heavy, true, 10*time.Second, 0, 0, "98%/9.5g")
	}

	score, ok := s.Score(heavy)
	require.True(t, ok)
	// Resource sub-score drops to 60 with very high CPU and memory.
	assert.Less(t, score, 96)
}

func TestScore_RollingWindowCaps(t *testing.T) {
	s := newTestScorer(t)
	targets := []string{"core"}

	for i := 0; i < 40; i++ {
		s.Record(targets, true, 10*time.Second, 0, 0, "")
		_, _ = s.Score(targets)
	}

	key := "core"
	assert.LessOrEqual(t, len(s.doc.BuildMetrics[key]), maxMetricsPerTarget)
	assert.LessOrEqual(t, len(s.doc.HealthHistory[key]), maxHealthHistory)
}

func TestAnalyze_ReliabilityIssues(t *testing.T) {
	s := newTestScorer(t)
	targets := []string{"flaky"}

	for i := 0; i < 3; i++ {
		s.Record(targets, true, 10*time.Second, 0, 0, "")
	}
	s.Record(targets, false, 10*time.Second, 0, 0, "")
	s.Record(targets, false, 10*time.Second, 0, 0, "")

	analysis, ok := s.Analyze(targets)
	require.True(t, ok)
	assert.Contains(t, analysis.PrimaryIssues, IssueReliability)
}

func TestAnalyze_PerformanceRegression(t *testing.T) {
	s := newTestScorer(t)
	targets := []string{"slowing"}

	for i := 0; i < 5; i++ {
		s.Record(targets, true, 10*time.Second, 0, 0, "")
	}
	for i := 0; i < 5; i++ {
		s.Record(targets, true, 30*time.Second, 0, 0, "")
	}

	analysis, ok := s.Analyze(targets)
	require.True(t, ok)
	assert.Contains(t, analysis.PrimaryIssues, IssuePerformanceRegression)
}

func TestAnalyze_WarningIncrease(t *testing.T) {
	s := newTestScorer(t)
	targets := []string{"warny"}

	for i := 0; i < 5; i++ {
		s.Record(targets, true, 10*time.Second, 0, 8, "")
	}

	analysis, ok := s.Analyze(targets)
	require.True(t, ok)
	assert.Contains(t, analysis.PrimaryIssues, IssueWarningIncrease)
}

func TestAnalyze_NoData(t *testing.T) {
	s := newTestScorer(t)
	_, ok := s.Analyze([]string{"nothing"})
	require.False(t, ok)
}

func TestParseResourceSummary(t *testing.T) {
	cpu, mem := parseResourceSummary("45%/800m")
	require.NotNil(t, cpu)
	require.NotNil(t, mem)
	assert.Equal(t, 45.0, *cpu)
	assert.Equal(t, 800.0, *mem)

	cpu, mem = parseResourceSummary("72%/1.5g")
	require.NotNil(t, mem)
	assert.Equal(t, 72.0, *cpu)
	assert.Equal(t, 1536.0, *mem)

	cpu, mem = parseResourceSummary("")
	assert.Nil(t, cpu)
	assert.Nil(t, mem)
}

func TestClear(t *testing.T) {
	s := newTestScorer(t)
	s.Record([]string{"a"}, true, time.Second, 0, 0, "")
	s.Record([]string{"b"}, true, time.Second, 0, 0, "")

	s.Clear([]string{"a"})
	assert.Equal(t, []string{"b"}, s.TrackedTargets())

	s.Clear(nil)
	assert.Empty(t, s.TrackedTargets())
}

func TestRecord_ConcurrentWithScore(t *testing.T) {
	s := newTestScorer(t)
	targets := []string{"core"}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			s.Record(targets, true, 40*time.Second, 0, 0, "")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			s.Score(targets)
			s.Trend(targets)
			s.Analyze(targets)
		}
	}()
	wg.Wait()

	score, ok := s.Score(targets)
	require.True(t, ok)
	assert.Positive(t, score)
}
