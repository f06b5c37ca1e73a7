// Package deps watches dependency and build-manifest files for changes and
// classifies each change into a type, impact, and remediation command.
// Scans are differential: only files whose mtime moved past the stored
// value are reported.
package deps

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/buildmon/internal/state"
)

// Change types.
const (
	TypeBuildConfig        = "build_config"
	TypePackageConfig      = "package_config"
	TypeDependencyManifest = "dependency_manifest"
	TypeBuildSystem        = "build_system"
	TypeUnknown            = "unknown"
)

// Impact values.
const (
	ImpactFullRebuild      = "full_rebuild"
	ImpactPackageSpecific  = "package_specific"
	ImpactDependencyUpdate = "dependency_update"
	ImpactUnknown          = "unknown"
)

var dependencyPatterns = []string{
	"CMakeLists.txt",
	"*.cmake",
	"configure.ac",
	"configure.in",
	"Makefile.in",
	"Makefile.am",
	"meson.build",
	"BUILD",
	"BUILD.bazel",
	"conanfile.txt",
	"conanfile.py",
	"vcpkg.json",
	"vcpkg-configuration.json",
	"requirements.txt",
	"setup.py",
	"pyproject.toml",
	"Cargo.toml",
	"package.json",
	"*.pc",
	"*.pc.in",
}

var ignoreDirs = map[string]bool{
	"build": true, ".git": true, "__pycache__": true, ".pytest_cache": true,
	"node_modules": true, ".vscode": true, ".idea": true, ".vs": true,
	"venv": true, ".venv": true,
}

var buildConfigNames = map[string]bool{
	"CMakeLists.txt": true, "configure.ac": true, "configure.in": true,
	"Makefile.in": true, "Makefile.am": true, "meson.build": true,
}

var manifestNames = map[string]bool{
	"conanfile.txt": true, "conanfile.py": true, "vcpkg.json": true,
	"vcpkg-configuration.json": true, "requirements.txt": true,
	"setup.py": true, "pyproject.toml": true, "Cargo.toml": true,
	"package.json": true,
}

// ChangeEvent describes one changed dependency file.
type ChangeEvent struct {
	File           string  `json:"file"`
	Type           string  `json:"type"`
	Impact         string  `json:"impact"`
	Recommendation string  `json:"recommendation"`
	Timestamp      float64 `json:"timestamp"`
}

type trackerDocument struct {
	DependencyFiles map[string]float64 `json:"dependency_files"`
	LastCheck       float64            `json:"last_check"`
	Metadata        trackerMetadata    `json:"metadata"`
}

type trackerMetadata struct {
	Version     string `json:"version,omitempty"`
	TotalChecks int    `json:"total_checks"`
}

// Tracker scans the project tree for dependency file changes.
// Safe for concurrent use; the daemon scans from both the scheduler
// and the watcher debounce goroutine.
type Tracker struct {
	projectRoot string
	store       *state.JSONStore
	logger      *slog.Logger
	now         func() time.Time

	mu  sync.Mutex
	doc trackerDocument
}

// NewTracker loads dependency tracking state for the project root.
func NewTracker(projectRoot string, store *state.JSONStore) *Tracker {
	t := &Tracker{
		projectRoot: projectRoot,
		store:       store,
		logger:      slog.Default(),
		now:         time.Now,
	}
	t.doc = trackerDocument{
		DependencyFiles: make(map[string]float64),
		Metadata:        trackerMetadata{Version: "1.0.0"},
	}
	if err := store.Load(&t.doc); err != nil {
		t.logger.Warn("Could not load dependency tracker data, starting empty", "error", err)
	}
	if t.doc.DependencyFiles == nil {
		t.doc.DependencyFiles = make(map[string]float64)
	}
	return t
}

// WithLogger sets a custom logger.
func (t *Tracker) WithLogger(logger *slog.Logger) *Tracker {
	t.logger = logger
	return t
}

// DetectChanges scans for dependency files whose mtime moved past the
// stored value, returning nil when nothing changed. Stored mtimes are
// updated only for files found changed.
func (t *Tracker) DetectChanges() []ChangeEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.detectChangesLocked()
}

func (t *Tracker) detectChangesLocked() []ChangeEvent {
	now := float64(t.now().UnixNano()) / float64(time.Second)
	var changes []ChangeEvent

	for _, rel := range t.dependencyFiles() {
		info, err := os.Stat(filepath.Join(t.projectRoot, rel))
		if err != nil {
			continue
		}
		mtime := float64(info.ModTime().UnixNano()) / float64(time.Second)
		if mtime > t.doc.DependencyFiles[rel] {
			changes = append(changes, t.analyzeChange(rel))
			t.doc.DependencyFiles[rel] = mtime
		}
	}

	t.doc.LastCheck = now
	t.doc.Metadata.TotalChecks++

	if len(changes) > 0 {
		t.save()
		return changes
	}
	return nil
}

// ForceScan clears stored mtimes and rescans, reporting every dependency
// file as changed.
func (t *Tracker) ForceScan() []ChangeEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.doc.DependencyFiles = make(map[string]float64)
	return t.detectChangesLocked()
}

// Clear resets all dependency tracking state.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.doc.DependencyFiles = make(map[string]float64)
	t.doc.LastCheck = 0
	t.doc.Metadata.TotalChecks = 0
	t.save()
}

// Status summarizes dependency tracking state.
type Status struct {
	MonitoredFilesCount int                 `json:"monitored_files_count"`
	TrackedFiles        []string            `json:"tracked_files"`
	LastCheck           float64             `json:"last_check"`
	TotalChecks         int                 `json:"total_checks"`
	FilesByType         map[string][]string `json:"files_by_type"`
}

// CurrentStatus returns tracking status including all monitored files
// grouped by classification.
func (t *Tracker) CurrentStatus() Status {
	monitored := t.dependencyFiles()

	t.mu.Lock()
	defer t.mu.Unlock()

	status := Status{
		MonitoredFilesCount: len(monitored),
		LastCheck:           t.doc.LastCheck,
		TotalChecks:         t.doc.Metadata.TotalChecks,
		FilesByType:         make(map[string][]string),
	}
	for rel := range t.doc.DependencyFiles {
		status.TrackedFiles = append(status.TrackedFiles, rel)
	}
	sort.Strings(status.TrackedFiles)
	for _, rel := range monitored {
		fileType := Classify(filepath.Base(rel))
		status.FilesByType[fileType] = append(status.FilesByType[fileType], rel)
	}
	return status
}

func (t *Tracker) analyzeChange(rel string) ChangeEvent {
	filename := filepath.Base(rel)
	changeType := Classify(filename)
	impact, recommendation := assessImpact(filename, changeType)
	return ChangeEvent{
		File:           rel,
		Type:           changeType,
		Impact:         impact,
		Recommendation: recommendation,
		Timestamp:      float64(t.now().UnixNano()) / float64(time.Second),
	}
}

// Classify maps a dependency file name to its change type.
func Classify(filename string) string {
	switch {
	case buildConfigNames[filename]:
		return TypeBuildConfig
	case strings.HasSuffix(filename, ".cmake"),
		strings.HasSuffix(filename, ".pc"),
		strings.HasSuffix(filename, ".pc.in"):
		return TypePackageConfig
	case manifestNames[filename]:
		return TypeDependencyManifest
	case filename == "BUILD" || filename == "BUILD.bazel":
		return TypeBuildSystem
	default:
		return TypeUnknown
	}
}

// assessImpact maps a classified change to an impact level and a
// remediation command.
func assessImpact(filename, changeType string) (string, string) {
	switch changeType {
	case TypeBuildConfig:
		switch {
		case filename == "CMakeLists.txt":
			return ImpactFullRebuild, "Run cmake -S $(pwd) -B $(pwd)/build && make clean && make"
		case filename == "configure.ac" || filename == "configure.in":
			return ImpactFullRebuild, "Run autoreconf -fiv && ./configure && make clean && make"
		case filename == "meson.build":
			return ImpactFullRebuild, "Run meson setup --reconfigure builddir && ninja -C builddir clean && ninja -C builddir"
		default:
			return ImpactFullRebuild, "Clean and rebuild entire project"
		}

	case TypePackageConfig:
		lower := strings.ToLower(filename)
		switch {
		case strings.Contains(lower, "find") && strings.HasSuffix(filename, ".cmake"):
			pkg := strings.ReplaceAll(filename, "Find", "")
			pkg = strings.TrimSuffix(pkg, ".cmake")
			return ImpactPackageSpecific, fmt.Sprintf("Clear CMake cache and rebuild packages using %s", pkg)
		case strings.HasSuffix(filename, ".pc"):
			pkg := strings.TrimSuffix(filename, ".pc")
			return ImpactPackageSpecific, fmt.Sprintf("Update pkg-config cache and rebuild %s dependencies", pkg)
		default:
			return ImpactPackageSpecific, "Clear configuration cache and rebuild affected packages"
		}

	case TypeDependencyManifest:
		switch {
		case strings.HasPrefix(filename, "conanfile"):
			return ImpactDependencyUpdate, "Run conan install && cmake -S $(pwd) -B $(pwd)/build && make"
		case strings.HasPrefix(filename, "vcpkg"):
			return ImpactDependencyUpdate, "Run vcpkg integrate install && cmake -S $(pwd) -B $(pwd)/build && make"
		case filename == "requirements.txt":
			return ImpactDependencyUpdate, "Run pip install -r requirements.txt && rebuild"
		case filename == "package.json":
			return ImpactDependencyUpdate, "Run npm install && rebuild"
		case filename == "Cargo.toml":
			return ImpactDependencyUpdate, "Run cargo build"
		default:
			return ImpactDependencyUpdate, "Update dependencies and rebuild"
		}

	case TypeBuildSystem:
		return ImpactFullRebuild, "Regenerate build files and rebuild entire project"

	default:
		return ImpactUnknown, "Manual investigation required"
	}
}

// dependencyFiles walks the project tree and returns relative paths of all
// files matching the dependency patterns.
func (t *Tracker) dependencyFiles() []string {
	var files []string
	_ = filepath.WalkDir(t.projectRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != t.projectRoot && ignoreDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if matchesAnyPattern(d.Name()) {
			if rel, relErr := filepath.Rel(t.projectRoot, path); relErr == nil {
				files = append(files, rel)
			}
		}
		return nil
	})
	return files
}

func matchesAnyPattern(filename string) bool {
	for _, pattern := range dependencyPatterns {
		if matchesPattern(filename, pattern) {
			return true
		}
	}
	return false
}

func matchesPattern(filename, pattern string) bool {
	if strings.Contains(pattern, "*") {
		if strings.HasPrefix(pattern, "*.") {
			return strings.HasSuffix(filename, pattern[1:])
		}
		if strings.HasSuffix(pattern, "*") {
			return strings.HasPrefix(filename, pattern[:len(pattern)-1])
		}
		return false
	}
	return filename == pattern
}

func (t *Tracker) save() {
	if err := t.store.Save(&t.doc); err != nil {
		t.logger.Warn("Could not save dependency tracker data", "error", err)
	}
}
