// Package health aggregates recent build outcomes into a composite 0-100
// score per target, with sub-scores for success rate, duration trend,
// warning load, and resource use, plus a trend classification derived from
// the per-target score history.
package health

import (
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/buildmon/internal/state"
	"git.home.luguber.info/inful/buildmon/internal/targetkey"
)

const (
	maxMetricsPerTarget = 20
	maxHealthHistory    = 10
	minBuildsForScore   = 5
)

// Trend values.
const (
	TrendImproving        = "improving"
	TrendStable           = "stable"
	TrendDeclining        = "declining"
	TrendInsufficientData = "insufficient_data"
)

// Issue flags reported by Analyze.
const (
	IssueReliability           = "reliability_issues"
	IssuePerformanceRegression = "performance_regression"
	IssueWarningIncrease       = "warning_increase"
)

// MetricRecord is one completed build observation for health scoring.
type MetricRecord struct {
	Timestamp          float64  `json:"timestamp"`
	Success            bool     `json:"success"`
	Duration           float64  `json:"duration"`
	PredictedDuration  float64  `json:"predicted_duration,omitempty"`
	PredictionAccuracy float64  `json:"prediction_accuracy"`
	WarningCount       int      `json:"warning_count"`
	CPUUsage           *float64 `json:"cpu_usage,omitempty"`
	MemoryUsage        *float64 `json:"memory_usage,omitempty"`
	Targets            []string `json:"targets"`
}

// ComponentScores breaks the composite score into its parts.
type ComponentScores struct {
	Success     float64 `json:"success"`
	Performance float64 `json:"performance"`
	Warnings    float64 `json:"warnings"`
	Resources   float64 `json:"resources"`
}

type historyEntry struct {
	Timestamp       float64         `json:"timestamp"`
	HealthScore     int             `json:"health_score"`
	ComponentScores ComponentScores `json:"component_scores"`
}

type scorerDocument struct {
	BuildMetrics  map[string][]MetricRecord `json:"build_metrics"`
	HealthHistory map[string][]historyEntry `json:"health_history"`
	Metadata      scorerMetadata            `json:"metadata"`
}

type scorerMetadata struct {
	Version            string  `json:"version,omitempty"`
	TotalBuildsTracked int     `json:"total_builds_tracked"`
	LastCalculation    float64 `json:"last_calculation"`
	LastUpdate         float64 `json:"last_update,omitempty"`
}

// Scorer tracks build health per target key. Safe for concurrent use.
type Scorer struct {
	store  *state.JSONStore
	logger *slog.Logger
	now    func() time.Time

	mu  sync.Mutex
	doc scorerDocument
}

// NewScorer loads health tracking state from the given store.
func NewScorer(store *state.JSONStore) *Scorer {
	s := &Scorer{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	s.doc = scorerDocument{
		BuildMetrics:  make(map[string][]MetricRecord),
		HealthHistory: make(map[string][]historyEntry),
		Metadata:      scorerMetadata{Version: "1.0.0"},
	}
	if err := store.Load(&s.doc); err != nil {
		s.logger.Warn("Could not load health tracker data, starting empty", "error", err)
	}
	if s.doc.BuildMetrics == nil {
		s.doc.BuildMetrics = make(map[string][]MetricRecord)
	}
	if s.doc.HealthHistory == nil {
		s.doc.HealthHistory = make(map[string][]historyEntry)
	}
	return s
}

// WithLogger sets a custom logger.
func (s *Scorer) WithLogger(logger *slog.Logger) *Scorer {
	s.logger = logger
	return s
}

// Record appends one build outcome to the target's metric window.
// resourceSummary is the sampler's compact "cpu%/mem" encoding and may be
// empty. predictedDuration of zero means no prediction existed.
func (s *Scorer) Record(targets []string, success bool, duration time.Duration,
	predictedDuration time.Duration, warningCount int, resourceSummary string) {
	key := targetkey.Joined(targets)
	now := float64(s.now().Unix())

	record := MetricRecord{
		Timestamp:          now,
		Success:            success,
		Duration:           duration.Seconds(),
		PredictedDuration:  predictedDuration.Seconds(),
		PredictionAccuracy: predictionAccuracy(duration.Seconds(), predictedDuration.Seconds()),
		WarningCount:       warningCount,
		Targets:            append([]string(nil), targets...),
	}
	record.CPUUsage, record.MemoryUsage = parseResourceSummary(resourceSummary)

	s.mu.Lock()
	defer s.mu.Unlock()

	metrics := append(s.doc.BuildMetrics[key], record)
	if len(metrics) > maxMetricsPerTarget {
		metrics = metrics[len(metrics)-maxMetricsPerTarget:]
	}
	s.doc.BuildMetrics[key] = metrics

	s.doc.Metadata.TotalBuildsTracked++
	s.doc.Metadata.LastUpdate = now
	s.save()
}

// Score computes the composite health score for the targets, appending the
// result to the target's score history. Returns false below five recorded
// builds.
func (s *Scorer) Score(targets []string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scoreLocked(targetkey.Joined(targets))
}

func (s *Scorer) scoreLocked(key string) (int, bool) {
	metrics := s.doc.BuildMetrics[key]
	if len(metrics) < minBuildsForScore {
		return 0, false
	}

	components := ComponentScores{
		Success:     successScore(metrics),
		Performance: performanceScore(metrics),
		Warnings:    warningScore(metrics),
		Resources:   resourceScore(metrics),
	}

	healthScore := components.Success*0.4 +
		components.Performance*0.3 +
		components.Warnings*0.2 +
		components.Resources*0.1

	now := float64(s.now().Unix())
	entries := append(s.doc.HealthHistory[key], historyEntry{
		Timestamp:       now,
		HealthScore:     int(healthScore),
		ComponentScores: components,
	})
	if len(entries) > maxHealthHistory {
		entries = entries[len(entries)-maxHealthHistory:]
	}
	s.doc.HealthHistory[key] = entries

	s.doc.Metadata.LastCalculation = now
	s.save()

	return int(healthScore), true
}

// Trend classifies the direction of the target's recent health scores.
func (s *Scorer) Trend(targets []string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trendLocked(targetkey.Joined(targets))
}

func (s *Scorer) trendLocked(key string) string {
	history := s.doc.HealthHistory[key]
	if len(history) < 3 {
		return TrendInsufficientData
	}

	recent := history
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}

	scores := make([]float64, len(recent))
	for i, h := range recent {
		scores[i] = float64(h.HealthScore)
	}

	slope, ok := regressionSlope(scores)
	if !ok {
		return TrendStable
	}
	switch {
	case slope > 2.0:
		return TrendImproving
	case slope < -2.0:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// Analysis is the qualitative health report for a target.
type Analysis struct {
	HealthScore     *int     `json:"health_score"`
	HealthTrend     string   `json:"health_trend"`
	PrimaryIssues   []string `json:"primary_issues"`
	BuildCount      int      `json:"build_count"`
	SuccessRate     float64  `json:"success_rate"`
	AverageDuration float64  `json:"average_duration"`
	RecentWarnings  float64  `json:"recent_warnings"`
}

// Analyze returns the composite score, trend, and qualitative issue flags
// for the targets, or false when no metrics exist.
func (s *Scorer) Analyze(targets []string) (Analysis, bool) {
	key := targetkey.Joined(targets)

	s.mu.Lock()
	defer s.mu.Unlock()

	metrics := s.doc.BuildMetrics[key]
	if len(metrics) == 0 {
		return Analysis{}, false
	}

	analysis := Analysis{BuildCount: len(metrics)}
	if score, ok := s.scoreLocked(key); ok {
		analysis.HealthScore = &score
	}
	analysis.HealthTrend = s.trendLocked(key)

	var successes int
	var durationSum float64
	for _, m := range metrics {
		if m.Success {
			successes++
		}
		durationSum += m.Duration
	}
	analysis.SuccessRate = float64(successes) / float64(len(metrics))
	analysis.AverageDuration = durationSum / float64(len(metrics))

	if len(metrics) >= 5 {
		recent := metrics[len(metrics)-5:]

		var recentFailures int
		var warningSum float64
		for _, m := range recent {
			if !m.Success {
				recentFailures++
			}
			warningSum += float64(m.WarningCount)
		}
		analysis.RecentWarnings = warningSum / float64(len(recent))

		if recentFailures >= 2 {
			analysis.PrimaryIssues = append(analysis.PrimaryIssues, IssueReliability)
		}

		if len(metrics) >= 10 {
			recentAvg := meanDuration(metrics[len(metrics)-5:])
			olderAvg := meanDuration(metrics[len(metrics)-10 : len(metrics)-5])
			if recentAvg > olderAvg*1.2 {
				analysis.PrimaryIssues = append(analysis.PrimaryIssues, IssuePerformanceRegression)
			}
		}

		if analysis.RecentWarnings > 5 {
			analysis.PrimaryIssues = append(analysis.PrimaryIssues, IssueWarningIncrease)
		}
	}

	return analysis, true
}

// TrackedTargets returns all target keys with recorded metrics.
func (s *Scorer) TrackedTargets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.doc.BuildMetrics))
	for key := range s.doc.BuildMetrics {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Clear removes health data for the targets, or everything when nil.
func (s *Scorer) Clear(targets []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if targets == nil {
		s.doc.BuildMetrics = make(map[string][]MetricRecord)
		s.doc.HealthHistory = make(map[string][]historyEntry)
		s.doc.Metadata.TotalBuildsTracked = 0
	} else {
		key := targetkey.Joined(targets)
		delete(s.doc.BuildMetrics, key)
		delete(s.doc.HealthHistory, key)
	}
	s.save()
}

func successScore(metrics []MetricRecord) float64 {
	if len(metrics) == 0 {
		return 0
	}
	var successes int
	for _, m := range metrics {
		if m.Success {
			successes++
		}
	}
	rate := float64(successes) / float64(len(metrics))

	switch {
	case rate == 1.0:
		return 100
	case rate >= 0.9:
		return 85 + (rate-0.9)*150
	case rate >= 0.7:
		return 60 + (rate-0.7)*125
	default:
		return rate * 85
	}
}

func performanceScore(metrics []MetricRecord) float64 {
	if len(metrics) == 0 {
		return 0
	}

	var durations []float64
	for _, m := range metrics {
		if m.Duration > 0 {
			durations = append(durations, m.Duration)
		}
	}
	if len(durations) < 2 {
		return 80
	}

	if len(durations) >= 5 {
		recent := durations[len(durations)-5:]
		older := durations[:len(durations)-5]
		if len(older) > 0 {
			recentAvg := mean(recent)
			olderAvg := mean(older)
			ratio := 1.0
			if recentAvg > 0 {
				ratio = olderAvg / recentAvg
			}
			switch {
			case ratio > 1.2:
				return 95
			case ratio > 1.05:
				return 85
			case ratio > 0.95:
				return 80
			case ratio > 0.8:
				return 65
			default:
				return 40
			}
		}
	}

	var accuracies []float64
	for _, m := range metrics {
		if m.PredictionAccuracy > 0.8 {
			accuracies = append(accuracies, m.PredictionAccuracy)
		}
	}
	if len(accuracies) >= 3 {
		return 70 + mean(accuracies)*30
	}

	return 75
}

func warningScore(metrics []MetricRecord) float64 {
	if len(metrics) == 0 {
		return 100
	}

	anyWarnings := false
	for _, m := range metrics {
		if m.WarningCount > 0 {
			anyWarnings = true
			break
		}
	}
	if !anyWarnings {
		return 100
	}

	recent := metrics
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	var sum float64
	for _, m := range recent {
		sum += float64(m.WarningCount)
	}
	avg := sum / float64(len(recent))

	switch {
	case avg == 0:
		return 100
	case avg <= 2:
		return 90
	case avg <= 5:
		return 75
	case avg <= 10:
		return 60
	case avg <= 20:
		return 40
	default:
		return 20
	}
}

func resourceScore(metrics []MetricRecord) float64 {
	var cpuValues, memoryValues []float64
	for _, m := range metrics {
		if m.CPUUsage != nil {
			cpuValues = append(cpuValues, *m.CPUUsage)
		}
		if m.MemoryUsage != nil {
			memoryValues = append(memoryValues, *m.MemoryUsage)
		}
	}
	if len(cpuValues) == 0 && len(memoryValues) == 0 {
		return 80
	}

	score := 100.0

	if len(cpuValues) > 0 {
		avgCPU := mean(cpuValues)
		switch {
		case avgCPU > 95:
			score -= 20
		case avgCPU > 85:
			score -= 10
		case avgCPU < 30:
			score -= 5
		}
	}

	if len(memoryValues) > 0 {
		avgMemoryGB := mean(memoryValues) / 1024
		switch {
		case avgMemoryGB > 8:
			score -= 20
		case avgMemoryGB > 4:
			score -= 10
		case avgMemoryGB > 2:
			score -= 5
		}
	}

	return math.Max(0, score)
}

func predictionAccuracy(actual, predicted float64) float64 {
	if predicted <= 0 || actual <= 0 {
		return 0
	}
	relativeError := math.Abs(actual-predicted) / predicted
	return math.Max(0, 1-relativeError)
}

// parseResourceSummary extracts CPU percent and memory MB from the
// sampler's compact "45%/800m" or "72%/1.5g" encoding.
func parseResourceSummary(summary string) (*float64, *float64) {
	if !strings.Contains(summary, "%/") {
		return nil, nil
	}
	parts := strings.SplitN(summary, "%/", 2)
	cpu, err := strconv.ParseFloat(strings.TrimSuffix(parts[0], "%"), 64)
	if err != nil {
		return nil, nil
	}

	memStr := parts[1]
	// Peak annotations like " pk:95%/2.1g" trail the average pair.
	if idx := strings.IndexByte(memStr, ' '); idx >= 0 {
		memStr = memStr[:idx]
	}
	var memory float64
	switch {
	case strings.HasSuffix(memStr, "g"):
		v, err := strconv.ParseFloat(strings.TrimSuffix(memStr, "g"), 64)
		if err != nil {
			return &cpu, nil
		}
		memory = v * 1024
	case strings.HasSuffix(memStr, "m"):
		v, err := strconv.ParseFloat(strings.TrimSuffix(memStr, "m"), 64)
		if err != nil {
			return &cpu, nil
		}
		memory = v
	default:
		return &cpu, nil
	}
	return &cpu, &memory
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func meanDuration(metrics []MetricRecord) float64 {
	var sum float64
	for _, m := range metrics {
		sum += m.Duration
	}
	return sum / float64(len(metrics))
}

// regressionSlope returns the least-squares slope of values against their
// indices, and false when the slope is undefined.
func regressionSlope(values []float64) (float64, bool) {
	n := len(values)
	if n < 2 {
		return 0, false
	}
	xMean := float64(n-1) / 2
	yMean := mean(values)

	var numerator, denominator float64
	for i, y := range values {
		x := float64(i)
		numerator += (x - xMean) * (y - yMean)
		denominator += (x - xMean) * (x - xMean)
	}
	if denominator == 0 {
		return 0, false
	}
	return numerator / denominator, true
}

func (s *Scorer) save() {
	if err := s.store.Save(&s.doc); err != nil {
		s.logger.Warn("Could not save health tracker data", "error", err)
	}
}
