// Package fixes matches build error text against a catalog of known
// failure patterns and returns ranked, confidence-scored remediations.
// The catalog is data: it loads from a JSON document, seeds itself with
// common toolchain failures on first use, and accepts new patterns at
// runtime after schema validation.
package fixes

import (
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	bmerrors "git.home.luguber.info/inful/buildmon/internal/errors"
	"git.home.luguber.info/inful/buildmon/internal/state"
)

const (
	confidenceThreshold = 60
	maxSuggestions      = 3
)

// Fix complexity classes.
const (
	FixQuick   = "quick"
	FixMedium  = "medium"
	FixComplex = "complex"
)

// Pattern is one catalog entry.
type Pattern struct {
	RegexPatterns     []string `json:"regex_patterns"`
	SuggestedFix      string   `json:"suggested_fix"`
	FixCommands       []string `json:"fix_commands"`
	FixType           string   `json:"fix_type"`
	Confidence        int      `json:"confidence"`
	ApplicableSystems []string `json:"applicable_systems,omitempty"`
}

// Suggestion is one ranked remediation for an error.
type Suggestion struct {
	Pattern       string   `json:"pattern"`
	SuggestedFix  string   `json:"suggested_fix"`
	FixCommands   []string `json:"fix_commands"`
	FixType       string   `json:"fix_type"`
	Confidence    int      `json:"confidence"`
	ErrorCategory string   `json:"error_category,omitempty"`
}

type catalogDocument struct {
	Version  string             `json:"version,omitempty"`
	Patterns map[string]Pattern `json:"patterns"`
	Metadata catalogMetadata    `json:"metadata"`
}

type catalogMetadata struct {
	LastUpdated                string `json:"last_updated,omitempty"`
	PatternCount               int    `json:"pattern_count"`
	DefaultConfidenceThreshold int    `json:"default_confidence_threshold"`
}

// Advisor suggests fixes for build errors.
type Advisor struct {
	store    *state.JSONStore
	doc      catalogDocument
	compiled map[string][]*regexp.Regexp
	logger   *slog.Logger
}

// NewAdvisor loads the fix catalog, seeding the default pattern set when
// no catalog document exists yet.
func NewAdvisor(store *state.JSONStore) *Advisor {
	a := &Advisor{
		store:    store,
		compiled: make(map[string][]*regexp.Regexp),
		logger:   slog.Default(),
	}
	if err := store.Load(&a.doc); err != nil {
		a.logger.Warn("Could not load fix catalog, using defaults", "error", err)
	}
	if len(a.doc.Patterns) == 0 {
		a.doc = defaultCatalog()
		a.save()
	}
	a.compilePatterns()
	return a
}

// WithLogger sets a custom logger.
func (a *Advisor) WithLogger(logger *slog.Logger) *Advisor {
	a.logger = logger
	return a
}

func (a *Advisor) compilePatterns() {
	for id, pattern := range a.doc.Patterns {
		var regexes []*regexp.Regexp
		for _, expr := range pattern.RegexPatterns {
			re, err := regexp.Compile("(?i)" + expr)
			if err != nil {
				a.logger.Warn("Skipping invalid fix pattern regex",
					"pattern", id, "regex", expr, "error", err)
				continue
			}
			regexes = append(regexes, re)
		}
		a.compiled[id] = regexes
	}
}

// Suggest returns up to three remediations for the error text, sorted by
// non-increasing confidence. Patterns with no regex match never appear.
func (a *Advisor) Suggest(errorText, filePath, errorCategory string) []Suggestion {
	var suggestions []Suggestion

	for id, pattern := range a.doc.Patterns {
		confidence := a.confidence(errorText, filePath, id, pattern)
		if confidence < confidenceThreshold {
			continue
		}
		suggestions = append(suggestions, Suggestion{
			Pattern:       id,
			SuggestedFix:  pattern.SuggestedFix,
			FixCommands:   pattern.FixCommands,
			FixType:       pattern.FixType,
			Confidence:    confidence,
			ErrorCategory: errorCategory,
		})
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].Confidence != suggestions[j].Confidence {
			return suggestions[i].Confidence > suggestions[j].Confidence
		}
		return suggestions[i].Pattern < suggestions[j].Pattern
	})

	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}
	return suggestions
}

func (a *Advisor) confidence(errorText, filePath, id string, pattern Pattern) int {
	regexes := a.compiled[id]
	if len(regexes) == 0 {
		return 0
	}

	matches := 0
	for _, re := range regexes {
		if re.MatchString(errorText) {
			matches++
		}
	}
	if matches == 0 {
		return 0
	}

	confidence := pattern.Confidence * matches / len(regexes)
	confidence += contextAdjustment(errorText, filePath, pattern)

	if confidence < 0 {
		return 0
	}
	if confidence > 100 {
		return 100
	}
	return confidence
}

func contextAdjustment(errorText, filePath string, pattern Pattern) int {
	adjustment := 0

	if filePath != "" {
		ext := strings.ToLower(filepath.Ext(filePath))
		switch ext {
		case ".c", ".cpp", ".cc", ".cxx", ".h", ".hpp":
			lower := strings.ToLower(pattern.SuggestedFix)
			if strings.Contains(lower, "library") ||
				strings.Contains(lower, "header") ||
				strings.Contains(lower, "linker") {
				adjustment += 5
			}
		}
	}

	if len(errorText) > 100 {
		adjustment += 3
	}
	if strings.Contains(strings.ToLower(errorText), "fatal error") {
		adjustment += 2
	}

	for _, system := range pattern.ApplicableSystems {
		if system == "all" || system == "linux" {
			adjustment += 2
			break
		}
	}

	return adjustment
}

// AddPattern validates and persists a new catalog entry at runtime.
func (a *Advisor) AddPattern(id string, pattern Pattern) error {
	if id == "" {
		return bmerrors.ValidationError("pattern id is required")
	}
	if len(pattern.RegexPatterns) == 0 {
		return bmerrors.ValidationError("pattern requires at least one regex")
	}
	if pattern.SuggestedFix == "" {
		return bmerrors.ValidationError("pattern requires a suggested fix")
	}
	if len(pattern.FixCommands) == 0 {
		return bmerrors.ValidationError("pattern requires fix commands")
	}
	if pattern.FixType == "" {
		return bmerrors.ValidationError("pattern requires a fix type")
	}
	if pattern.Confidence <= 0 || pattern.Confidence > 100 {
		return bmerrors.ValidationError("pattern confidence must be in (0,100]")
	}
	for _, expr := range pattern.RegexPatterns {
		if _, err := regexp.Compile("(?i)" + expr); err != nil {
			return bmerrors.ValidationError("invalid regex: " + expr)
		}
	}

	if a.doc.Patterns == nil {
		a.doc.Patterns = make(map[string]Pattern)
	}
	a.doc.Patterns[id] = pattern
	a.doc.Metadata.PatternCount = len(a.doc.Patterns)
	a.compilePatterns()
	a.save()
	return nil
}

// Statistics describes the catalog composition.
type Statistics struct {
	TotalPatterns          int            `json:"total_patterns"`
	FixTypes               map[string]int `json:"fix_types"`
	ConfidenceDistribution map[string]int `json:"confidence_distribution"`
}

// Stats summarizes the loaded catalog.
func (a *Advisor) Stats() Statistics {
	stats := Statistics{
		TotalPatterns:          len(a.doc.Patterns),
		FixTypes:               make(map[string]int),
		ConfidenceDistribution: map[string]int{"high": 0, "medium": 0, "low": 0},
	}
	for _, pattern := range a.doc.Patterns {
		stats.FixTypes[pattern.FixType]++
		switch {
		case pattern.Confidence >= 90:
			stats.ConfidenceDistribution["high"]++
		case pattern.Confidence >= 70:
			stats.ConfidenceDistribution["medium"]++
		default:
			stats.ConfidenceDistribution["low"]++
		}
	}
	return stats
}

// Clear resets the catalog to the default pattern set.
func (a *Advisor) Clear() {
	a.doc = defaultCatalog()
	a.compiled = make(map[string][]*regexp.Regexp)
	a.compilePatterns()
	a.save()
}

func (a *Advisor) save() {
	if err := a.store.Save(&a.doc); err != nil {
		a.logger.Warn("Could not save fix catalog", "error", err)
	}
}
