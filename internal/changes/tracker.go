// Package changes tracks source and config file modifications since the
// last successful build per target and turns them into rebuild
// recommendations and impact levels.
package changes

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/buildmon/internal/state"
	"git.home.luguber.info/inful/buildmon/internal/targetkey"
)

// Recommendation values returned by Recommend.
const (
	NoChanges          = "no_changes"
	FullRebuild        = "full_rebuild"
	IncrementalRebuild = "incremental_rebuild"
	TargetedRebuild    = "targeted_rebuild"
)

// Impact levels returned by Impact.
const (
	ImpactNone   = "none"
	ImpactLow    = "low"
	ImpactMedium = "medium"
	ImpactHigh   = "high"
)

var monitoredExtensions = map[string]bool{
	".c": true, ".cpp": true, ".cc": true, ".cxx": true,
	".h": true, ".hpp": true, ".hxx": true,
	".cmake": true, ".txt": true, ".in": true, ".py": true,
}

var sourceExtensions = map[string]bool{
	".c": true, ".cpp": true, ".cc": true, ".cxx": true,
}

var headerExtensions = map[string]bool{
	".h": true, ".hpp": true, ".hxx": true,
}

var ignorePatterns = []string{
	"build", ".git", "__pycache__", ".pytest_cache",
	"node_modules", ".vscode", ".idea",
}

// ChangeSet describes files modified since the last successful build.
type ChangeSet struct {
	ChangedFiles       []string `json:"changed_files"`
	ConfigFilesChanged []string `json:"config_files_changed"`
	TotalChanges       int      `json:"total_changes"`
	LastBuildTime      float64  `json:"last_build_time"`
	ScanTime           float64  `json:"scan_time"`
}

type trackerDocument struct {
	FileTimestamps       map[string]float64 `json:"file_timestamps"`
	LastSuccessfulBuilds map[string]float64 `json:"last_successful_builds"`
	Metadata             trackerMetadata    `json:"metadata"`
}

type trackerMetadata struct {
	LastScan              float64 `json:"last_scan"`
	LastSuccessfulBuild   float64 `json:"last_successful_build,omitempty"`
	TotalSuccessfulBuilds int     `json:"total_successful_builds"`
	Version               string  `json:"version,omitempty"`
}

// Tracker maintains per-target build baselines over a project tree.
// Safe for concurrent use.
type Tracker struct {
	projectRoot string
	store       *state.JSONStore
	logger      *slog.Logger
	now         func() time.Time

	mu  sync.Mutex
	doc trackerDocument
}

// NewTracker loads tracking state for the given project root.
func NewTracker(projectRoot string, store *state.JSONStore) *Tracker {
	t := &Tracker{
		projectRoot: projectRoot,
		store:       store,
		logger:      slog.Default(),
		now:         time.Now,
	}
	t.doc = trackerDocument{
		FileTimestamps:       make(map[string]float64),
		LastSuccessfulBuilds: make(map[string]float64),
		Metadata:             trackerMetadata{Version: "1.0.0"},
	}
	if err := store.Load(&t.doc); err != nil {
		t.logger.Warn("Could not load build tracker data, starting empty", "error", err)
	}
	if t.doc.FileTimestamps == nil {
		t.doc.FileTimestamps = make(map[string]float64)
	}
	if t.doc.LastSuccessfulBuilds == nil {
		t.doc.LastSuccessfulBuilds = make(map[string]float64)
	}
	return t
}

// WithLogger sets a custom logger.
func (t *Tracker) WithLogger(logger *slog.Logger) *Tracker {
	t.logger = logger
	return t
}

func trackerKey(targets []string) string {
	return targetkey.Joined(targets)
}

// DetectChanges returns files modified since the target's last successful
// build, or nil when there is no baseline or nothing changed. The first
// build of a target never reports changes.
func (t *Tracker) DetectChanges(targets []string) *ChangeSet {
	key := trackerKey(targets)

	t.mu.Lock()
	defer t.mu.Unlock()

	lastBuild := t.doc.LastSuccessfulBuilds[key]
	if lastBuild == 0 {
		return nil
	}

	var changed, configChanged []string
	for _, rel := range t.monitoredFiles() {
		info, err := os.Stat(filepath.Join(t.projectRoot, rel))
		if err != nil {
			continue
		}
		mtime := float64(info.ModTime().UnixNano()) / float64(time.Second)
		if mtime > lastBuild {
			changed = append(changed, rel)
			if isConfigFile(rel) {
				configChanged = append(configChanged, rel)
			}
		}
	}

	if len(changed) == 0 {
		return nil
	}

	scanTime := float64(t.now().UnixNano()) / float64(time.Second)
	t.doc.Metadata.LastScan = scanTime
	t.save()

	return &ChangeSet{
		ChangedFiles:       changed,
		ConfigFilesChanged: configChanged,
		TotalChanges:       len(changed),
		LastBuildTime:      lastBuild,
		ScanTime:           scanTime,
	}
}

// Recommend maps a change set to a rebuild recommendation.
func Recommend(cs *ChangeSet) string {
	if cs == nil || len(cs.ChangedFiles) == 0 {
		return NoChanges
	}

	if len(cs.ConfigFilesChanged) > 0 {
		return FullRebuild
	}

	var sourceFiles, headerFiles []string
	for _, f := range cs.ChangedFiles {
		if sourceExtensions[strings.ToLower(filepath.Ext(f))] {
			sourceFiles = append(sourceFiles, f)
		}
		if headerExtensions[strings.ToLower(filepath.Ext(f))] {
			headerFiles = append(headerFiles, f)
		}
	}

	if len(cs.ChangedFiles) > 10 || len(headerFiles) > 3 {
		return FullRebuild
	}

	if changesAreClustered(cs.ChangedFiles) {
		return TargetedRebuild
	}

	if len(sourceFiles) <= 3 && len(headerFiles) <= 1 {
		return IncrementalRebuild
	}

	return IncrementalRebuild
}

// Impact classifies how disruptive a change set is to the next build.
func Impact(cs *ChangeSet) string {
	if cs == nil || len(cs.ChangedFiles) == 0 {
		return ImpactNone
	}

	if len(cs.ConfigFilesChanged) > 0 {
		return ImpactHigh
	}

	var headerCount int
	for _, f := range cs.ChangedFiles {
		if headerExtensions[strings.ToLower(filepath.Ext(f))] {
			headerCount++
		}
	}

	total := len(cs.ChangedFiles)
	switch {
	case total >= 10 || headerCount >= 5:
		return ImpactHigh
	case total >= 5 || headerCount >= 2:
		return ImpactMedium
	case total >= 1:
		return ImpactLow
	default:
		return ImpactNone
	}
}

// RecordSuccess updates the target's baseline timestamp and refreshes the
// stored mtime of every monitored file.
func (t *Tracker) RecordSuccess(targets []string) {
	key := trackerKey(targets)
	now := float64(t.now().UnixNano()) / float64(time.Second)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.doc.LastSuccessfulBuilds[key] = now

	for _, rel := range t.monitoredFiles() {
		info, err := os.Stat(filepath.Join(t.projectRoot, rel))
		if err != nil {
			continue
		}
		t.doc.FileTimestamps[rel] = float64(info.ModTime().UnixNano()) / float64(time.Second)
	}

	t.doc.Metadata.LastSuccessfulBuild = now
	t.doc.Metadata.TotalSuccessfulBuilds++
	t.save()
}

// Statistics summarizes tracker state.
type Statistics struct {
	TrackedTargets        []string `json:"tracked_targets"`
	TotalMonitoredFiles   int      `json:"total_monitored_files"`
	LastScan              float64  `json:"last_scan"`
	TotalSuccessfulBuilds int      `json:"total_successful_builds"`
}

// Stats returns tracker statistics.
func (t *Tracker) Stats() Statistics {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := Statistics{
		TotalMonitoredFiles:   len(t.doc.FileTimestamps),
		LastScan:              t.doc.Metadata.LastScan,
		TotalSuccessfulBuilds: t.doc.Metadata.TotalSuccessfulBuilds,
	}
	for key := range t.doc.LastSuccessfulBuilds {
		stats.TrackedTargets = append(stats.TrackedTargets, key)
	}
	sort.Strings(stats.TrackedTargets)
	return stats
}

// Clear removes tracking data for the given targets, or everything when
// targets is nil.
func (t *Tracker) Clear(targets []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if targets == nil {
		t.doc.FileTimestamps = make(map[string]float64)
		t.doc.LastSuccessfulBuilds = make(map[string]float64)
		t.doc.Metadata.TotalSuccessfulBuilds = 0
	} else {
		delete(t.doc.LastSuccessfulBuilds, trackerKey(targets))
	}
	t.save()
}

// monitoredFiles walks the project tree and returns relative paths of all
// files worth tracking, skipping ignored directories.
func (t *Tracker) monitoredFiles() []string {
	var files []string
	_ = filepath.WalkDir(t.projectRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(t.projectRoot, path)
		if relErr != nil || rel == "." {
			return nil
		}
		if d.IsDir() {
			if shouldIgnore(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if shouldIgnore(rel) {
			return nil
		}
		name := d.Name()
		if monitoredExtensions[strings.ToLower(filepath.Ext(name))] ||
			name == "CMakeLists.txt" || name == "Makefile" {
			files = append(files, rel)
		}
		return nil
	})
	return files
}

func shouldIgnore(rel string) bool {
	for _, pattern := range ignorePatterns {
		if strings.Contains(rel, pattern) {
			return true
		}
	}
	return false
}

func isConfigFile(rel string) bool {
	name := filepath.Base(rel)
	return name == "CMakeLists.txt" || name == "Makefile" || filepath.Ext(rel) == ".cmake"
}

// changesAreClustered reports whether at least 80% of the changed files sit
// in the top two most-affected directories. Below three files the heuristic
// never fires. The 0.8 threshold is a tunable, not a derived constant.
func changesAreClustered(changedFiles []string) bool {
	if len(changedFiles) <= 2 {
		return false
	}

	directories := make(map[string]int)
	for _, f := range changedFiles {
		directories[filepath.Dir(f)]++
	}

	counts := make([]int, 0, len(directories))
	for _, c := range directories {
		counts = append(counts, c)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(counts)))

	total := len(changedFiles)
	top := counts[0]
	if len(counts) >= 2 {
		top += counts[1]
	}
	return float64(top)/float64(total) >= 0.8
}

func (t *Tracker) save() {
	if err := t.store.Save(&t.doc); err != nil {
		t.logger.Warn("Could not save build tracker data", "error", err)
	}
}
