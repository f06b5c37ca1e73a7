// Package history learns per-target build durations and predicts how long
// the next build will take. Records live in per-target rolling windows and
// are pruned of stale entries on a daily cadence.
package history

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"git.home.luguber.info/inful/buildmon/internal/state"
	"git.home.luguber.info/inful/buildmon/internal/targetkey"
)

const (
	maxHistoryPerTarget = 50
	minSamples          = 3
	recentWindow        = 10
	outlierThreshold    = 2.5
	maxRecordAge        = 30 * 24 * time.Hour
	cleanupInterval     = 24 * time.Hour
	minRetainedRecords  = 5
)

// BuildRecord is one completed build observation.
type BuildRecord struct {
	Duration  float64  `json:"duration"`
	Timestamp float64  `json:"timestamp"`
	Targets   []string `json:"targets"`
	Success   bool     `json:"success"`
}

type historyDocument struct {
	Builds   map[string][]BuildRecord `json:"builds"`
	Metadata metadata                 `json:"metadata"`
}

type metadata struct {
	LastCleanup         float64 `json:"last_cleanup"`
	LastUpdate          float64 `json:"last_update,omitempty"`
	TotalBuildsRecorded int     `json:"total_builds_recorded"`
	Version             string  `json:"version,omitempty"`
}

// Predictor learns build durations per target key. Safe for concurrent
// use; the daemon records from monitor goroutines while maintenance
// prunes.
type Predictor struct {
	store  *state.JSONStore
	logger *slog.Logger
	now    func() time.Time

	mu  sync.Mutex
	doc historyDocument
}

// NewPredictor loads existing history from the given store. A corrupt or
// missing document resets to empty state rather than failing.
func NewPredictor(store *state.JSONStore) *Predictor {
	p := &Predictor{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	p.doc = historyDocument{
		Builds:   make(map[string][]BuildRecord),
		Metadata: metadata{LastCleanup: float64(p.now().Unix()), Version: "1.0.0"},
	}
	if err := store.Load(&p.doc); err != nil {
		p.logger.Warn("Could not load build history, starting empty", "error", err)
	}
	if p.doc.Builds == nil {
		p.doc.Builds = make(map[string][]BuildRecord)
	}
	return p
}

// WithLogger sets a custom logger.
func (p *Predictor) WithLogger(logger *slog.Logger) *Predictor {
	p.logger = logger
	return p
}

// WithClock overrides the time source, used by tests and cleanup scheduling.
func (p *Predictor) WithClock(now func() time.Time) *Predictor {
	p.now = now
	return p
}

// Record appends a successful build duration to the target's rolling window.
func (p *Predictor) Record(targets []string, duration time.Duration) {
	key := targetkey.Derive(targets)
	now := float64(p.now().Unix())

	p.mu.Lock()
	defer p.mu.Unlock()

	record := BuildRecord{
		Duration:  duration.Seconds(),
		Timestamp: now,
		Targets:   append([]string(nil), targets...),
		Success:   true,
	}

	records := append(p.doc.Builds[key], record)
	if len(records) > maxHistoryPerTarget {
		records = records[len(records)-maxHistoryPerTarget:]
	}
	p.doc.Builds[key] = records

	p.doc.Metadata.TotalBuildsRecorded++
	p.doc.Metadata.LastUpdate = now

	if now-p.doc.Metadata.LastCleanup > cleanupInterval.Seconds() {
		p.cleanupOldRecords()
		p.doc.Metadata.LastCleanup = now
	}

	p.save()
}

// Predict returns the expected duration for the given targets, or false
// when fewer than three records exist for the target key.
func (p *Predictor) Predict(targets []string) (time.Duration, bool) {
	key := targetkey.Derive(targets)

	p.mu.Lock()
	defer p.mu.Unlock()

	records := p.doc.Builds[key]
	if len(records) < minSamples {
		return 0, false
	}

	recent := records
	if len(recent) > recentWindow {
		recent = recent[len(recent)-recentWindow:]
	}

	durations := make([]float64, len(recent))
	for i, r := range recent {
		durations[i] = r.Duration
	}

	if len(durations) >= 5 {
		durations = removeOutliers(durations, outlierThreshold)
	}
	if len(durations) < minSamples {
		return 0, false
	}

	// Recency-weighted average; newer samples carry more weight.
	var weightedSum, weightSum float64
	for i, d := range durations {
		w := float64(i+1)*0.1 + 0.5
		weightedSum += d * w
		weightSum += w
	}
	predicted := weightedSum / weightSum

	if len(durations) >= 5 {
		predicted *= trendFactor(durations)
	}

	return time.Duration(predicted * float64(time.Second)), true
}

// removeOutliers drops values beyond threshold standard deviations from the
// mean, but never reduces the sample below three values.
func removeOutliers(durations []float64, threshold float64) []float64 {
	if len(durations) < 3 {
		return durations
	}

	var sum float64
	for _, d := range durations {
		sum += d
	}
	mean := sum / float64(len(durations))

	var variance float64
	for _, d := range durations {
		variance += (d - mean) * (d - mean)
	}
	stdDev := math.Sqrt(variance / float64(len(durations)))
	if stdDev == 0 {
		return durations
	}

	filtered := durations[:0:0]
	for _, d := range durations {
		if math.Abs(d-mean) <= threshold*stdDev {
			filtered = append(filtered, d)
		}
	}
	if len(filtered) < 3 {
		return durations
	}
	return filtered
}

// trendFactor converts the linear-regression slope of the ordered durations
// into a multiplier, clamped to [0.5, 2.0].
func trendFactor(durations []float64) float64 {
	n := len(durations)
	if n < 3 {
		return 1.0
	}

	xMean := float64(n-1) / 2
	var yMean float64
	for _, y := range durations {
		yMean += y
	}
	yMean /= float64(n)

	var numerator, denominator float64
	for i, y := range durations {
		x := float64(i)
		numerator += (x - xMean) * (y - yMean)
		denominator += (x - xMean) * (x - xMean)
	}
	if denominator == 0 {
		return 1.0
	}

	slope := numerator / denominator
	factor := 1.0 + slope*0.1
	return math.Max(0.5, math.Min(2.0, factor))
}

// cleanupOldRecords drops records older than 30 days per target, keeping at
// least five records for targets that have them, and removes empty targets.
func (p *Predictor) cleanupOldRecords() {
	cutoff := float64(p.now().Unix()) - maxRecordAge.Seconds()

	for key, records := range p.doc.Builds {
		recent := records[:0:0]
		for _, r := range records {
			if r.Timestamp >= cutoff {
				recent = append(recent, r)
			}
		}
		if len(recent) < minRetainedRecords && len(records) >= minRetainedRecords {
			recent = records[len(records)-minRetainedRecords:]
		}
		if len(recent) > 0 {
			p.doc.Builds[key] = recent
		} else {
			delete(p.doc.Builds, key)
		}
	}
}

// Cleanup prunes stale records immediately, independent of the record-time
// trigger. Used by the daemon's scheduled maintenance job.
func (p *Predictor) Cleanup() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cleanupOldRecords()
	p.doc.Metadata.LastCleanup = float64(p.now().Unix())
	p.save()
}

// TargetStatistics summarizes recorded history for one target key.
type TargetStatistics struct {
	TargetKey           string        `json:"target_key"`
	BuildCount          int           `json:"build_count"`
	AverageDuration     float64       `json:"average_duration"`
	MinDuration         float64       `json:"min_duration"`
	MaxDuration         float64       `json:"max_duration"`
	RecentBuilds        []BuildRecord `json:"recent_builds"`
	PredictionAvailable bool          `json:"prediction_available"`
}

// Statistics returns recorded history for the given targets, or false when
// no history exists for the derived key.
func (p *Predictor) Statistics(targets []string) (TargetStatistics, bool) {
	key := targetkey.Derive(targets)

	p.mu.Lock()
	defer p.mu.Unlock()

	records := p.doc.Builds[key]
	if len(records) == 0 {
		return TargetStatistics{}, false
	}

	stats := TargetStatistics{
		TargetKey:           key,
		BuildCount:          len(records),
		MinDuration:         records[0].Duration,
		MaxDuration:         records[0].Duration,
		PredictionAvailable: len(records) >= minSamples,
	}
	var sum float64
	for _, r := range records {
		sum += r.Duration
		if r.Duration < stats.MinDuration {
			stats.MinDuration = r.Duration
		}
		if r.Duration > stats.MaxDuration {
			stats.MaxDuration = r.Duration
		}
	}
	stats.AverageDuration = sum / float64(len(records))

	recent := records
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	stats.RecentBuilds = append([]BuildRecord(nil), recent...)
	return stats, true
}

// OverallStatistics summarizes all recorded history.
type OverallStatistics struct {
	TotalBuildsRecorded int      `json:"total_builds_recorded"`
	TotalTargets        int      `json:"total_targets"`
	Targets             []string `json:"targets"`
}

// Overall returns aggregate statistics across all target keys.
func (p *Predictor) Overall() OverallStatistics {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := OverallStatistics{TotalTargets: len(p.doc.Builds)}
	for key, records := range p.doc.Builds {
		stats.TotalBuildsRecorded += len(records)
		stats.Targets = append(stats.Targets, key)
	}
	return stats
}

// Clear removes history for the given targets, or all history when targets
// is nil.
func (p *Predictor) Clear(targets []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if targets == nil {
		p.doc.Builds = make(map[string][]BuildRecord)
		p.doc.Metadata.TotalBuildsRecorded = 0
	} else {
		delete(p.doc.Builds, targetkey.Derive(targets))
	}
	p.save()
}

func (p *Predictor) save() {
	if err := p.store.Save(&p.doc); err != nil {
		p.logger.Warn("Could not save build history", "error", err)
	}
}
