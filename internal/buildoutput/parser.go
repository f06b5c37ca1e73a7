// Package buildoutput parses merged compiler/make output into structured
// diagnostics. Lines that match no known pattern are skipped, the parser
// never fails on malformed input.
package buildoutput

import (
	"regexp"
	"strconv"
	"strings"
)

// Diagnostic categories.
const (
	CategoryLink   = "link"
	CategoryHeader = "header"
	CategorySymbol = "symbol"
	CategorySyntax = "syntax"
	CategoryCMake  = "cmake"
	CategoryType   = "type"
	CategoryBuild  = "build"
	CategoryAccess = "access"
	CategoryLib    = "lib"
	CategoryOther  = "other"
)

// Diagnostic severities, ordered by how urgently they block a build.
const (
	SeverityCritical = "C"
	SeverityFixable  = "F"
	SeverityNoise    = "N"
	SeverityWarning  = "W"
)

// Diagnostic is one parsed error or warning line.
type Diagnostic struct {
	Type     string `json:"type"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Severity string `json:"severity"`
}

// Progress describes the last completed build milestone.
type Progress struct {
	Completion string `json:"completion,omitempty"`
	LastTarget string `json:"last_target,omitempty"`
}

// Result is the structured summary of one build's output.
type Result struct {
	Status       string       `json:"status"`
	Errors       []Diagnostic `json:"errors"`
	Warnings     []Diagnostic `json:"warnings"`
	ErrorCount   int          `json:"error_count"`
	WarningCount int          `json:"warning_count"`
	Progress     Progress     `json:"progress"`
}

const maxReportedWarnings = 10

type linePattern struct {
	re     *regexp.Regexp
	groups int // submatch layout: 4 = file:line:col:msg, 3 = file:line:msg, 2 = file:msg, 1 = msg
}

var errorPatterns = []linePattern{
	{regexp.MustCompile(`^(.+?):(\d+):(\d+):\s*error:\s*(.+)$`), 4},
	{regexp.MustCompile(`^(.+?):(\d+):\s*error:\s*(.+)$`), 3},
	{regexp.MustCompile(`^(.+?):(\d+):(\d+):\s*fatal error:\s*(.+)$`), 4},
	{regexp.MustCompile(`^(.+?):(\d+):\s*fatal error:\s*(.+)$`), 3},
	{regexp.MustCompile(`^(.+?):\s*error:\s*(.+)$`), 2},
	{regexp.MustCompile(`^make\[\d+\]:\s*\*\*\*\s*(.+)$`), 1},
	{regexp.MustCompile(`^collect2:\s*error:\s*(.+)$`), 1},
	{regexp.MustCompile(`^/usr/bin/ld:\s*(.+)$`), 1},
	{regexp.MustCompile(`^CMake Error:\s*(.+)$`), 1},
}

var warningPatterns = []linePattern{
	{regexp.MustCompile(`^(.+?):(\d+):(\d+):\s*warning:\s*(.+)$`), 4},
	{regexp.MustCompile(`^(.+?):(\d+):\s*warning:\s*(.+)$`), 3},
	{regexp.MustCompile(`^(.+?):\s*warning:\s*(.+)$`), 2},
}

// ProgressRe matches a bracketed make completion percentage like "[ 42%]".
var ProgressRe = regexp.MustCompile(`\[\s*(\d+)%\]`)

// ParseProgress extracts a completion percentage from one output line.
func ParseProgress(line string) (int, bool) {
	m := ProgressRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	pct, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return pct, true
}

// Parse produces a structured result from merged make/compiler output.
func Parse(output string) Result {
	result := Result{
		Status:   "success",
		Errors:   []Diagnostic{},
		Warnings: []Diagnostic{},
	}

	lines := strings.Split(output, "\n")
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if d, ok := matchDiagnostic(errorPatterns, "error", line); ok {
			result.Errors = append(result.Errors, d)
			result.Status = "failed"
			continue
		}
		if d, ok := matchDiagnostic(warningPatterns, "warning", line); ok {
			result.Warnings = append(result.Warnings, d)
		}
	}

	result.ErrorCount = len(result.Errors)
	result.WarningCount = len(result.Warnings)
	if len(result.Warnings) > maxReportedWarnings {
		result.Warnings = result.Warnings[:maxReportedWarnings]
	}

	if result.Status == "success" {
		result.Progress = extractProgress(lines)
	}
	return result
}

func matchDiagnostic(patterns []linePattern, kind, line string) (Diagnostic, bool) {
	for _, p := range patterns {
		m := p.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		d := Diagnostic{Type: kind}
		switch p.groups {
		case 4:
			d.File = m[1]
			d.Line, _ = strconv.Atoi(m[2])
			d.Column, _ = strconv.Atoi(m[3])
			d.Message = m[4]
		case 3:
			d.File = m[1]
			d.Line, _ = strconv.Atoi(m[2])
			d.Message = m[3]
		case 2:
			d.File = m[1]
			d.Message = m[2]
		default:
			d.Message = m[1]
		}
		d.Category = Categorize(d.Message, d.File)
		d.Severity = Severity(kind, d.Category, d.Message)
		return d, true
	}
	return Diagnostic{}, false
}

func extractProgress(lines []string) Progress {
	var progress Progress
	for _, line := range lines {
		if !strings.Contains(line, "%]") || !strings.Contains(line, "Built target") {
			continue
		}
		head, tail, ok := strings.Cut(line, "]")
		if !ok || !strings.Contains(head, "%") {
			continue
		}
		pctPart, _, _ := strings.Cut(head, "%")
		fields := strings.Fields(pctPart)
		if len(fields) == 0 {
			continue
		}
		pct := strings.TrimPrefix(fields[len(fields)-1], "[")
		progress.Completion = pct + "%"
		progress.LastTarget = strings.TrimSpace(tail)
	}
	return progress
}

var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{CategoryLink, []string{
		"collect2:", "/usr/bin/ld:", "ld:", "cannot find -l",
		"library not found", "shared object", "relocation", "undefined reference",
	}},
	{CategoryHeader, []string{
		"no such file or directory", "file not found", "#include",
		"fatal error:", "cannot find", "missing header",
	}},
	{CategorySymbol, []string{
		"undefined symbol", "undeclared identifier",
		"was not declared", "has not been declared", "unknown type name",
	}},
	{CategorySyntax, []string{
		"syntax error", "expected", "unexpected", "parse error",
		"invalid syntax", "missing semicolon", "missing ')", "missing '}'",
	}},
	{CategoryCMake, []string{
		"cmake", "could not find", "configuration", "package not found",
		"no cmake", "missing dependency",
	}},
	{CategoryType, []string{
		"type error", "incompatible types", "cannot convert", "invalid conversion",
		"type mismatch", "conflicting types",
	}},
	{CategoryBuild, []string{
		"make:", "target", "recipe", "no rule", "file is up to date",
	}},
	{CategoryAccess, []string{
		"permission denied", "cannot open", "access denied", "read-only",
	}},
}

var thirdPartyLibs = []string{"libevent", "libwebsockets", "openssl", "icu", "zlib"}

// Categorize maps an error message (and optionally its file path) to one
// diagnostic category. Checks run in priority order, first match wins.
func Categorize(message, filePath string) string {
	messageLower := strings.ToLower(message)
	fileLower := strings.ToLower(filePath)

	for _, group := range categoryKeywords {
		for _, keyword := range group.keywords {
			if strings.Contains(messageLower, keyword) {
				return group.category
			}
		}
	}

	for _, lib := range thirdPartyLibs {
		if strings.Contains(fileLower, lib) {
			return CategoryLib
		}
	}
	if strings.Contains(messageLower, "deprecated") || strings.Contains(messageLower, "warning directive") {
		return CategoryLib
	}

	return CategoryOther
}

// Severity ranks a diagnostic for triage. kind is "error" or "warning".
func Severity(kind, category, message string) string {
	messageLower := strings.ToLower(message)

	if kind == "error" {
		switch category {
		case CategoryHeader, CategorySymbol, CategoryLink:
			return SeverityCritical
		}
	}

	if category == CategoryCMake {
		for _, keyword := range []string{"could not find", "missing", "required"} {
			if strings.Contains(messageLower, keyword) {
				return SeverityCritical
			}
		}
	}

	if category == CategorySyntax || category == CategoryType {
		return SeverityFixable
	}
	if category == CategoryHeader &&
		(strings.Contains(messageLower, "#include") || strings.Contains(messageLower, "file not found")) {
		return SeverityFixable
	}

	if category == CategoryLib {
		return SeverityNoise
	}

	if kind == "warning" {
		for _, keyword := range []string{"deprecated", "will be removed", "obsolete"} {
			if strings.Contains(messageLower, keyword) {
				return SeverityWarning
			}
		}
		return SeverityNoise
	}

	if category == CategoryBuild || category == CategoryAccess {
		return SeverityFixable
	}
	if kind == "error" {
		return SeverityFixable
	}
	return SeverityWarning
}

var monitorKeywords = []string{
	"error", "warning", "failed", "could not", "not found",
	"built target", "building",
}

// Important reports whether a live output line is worth retaining in the
// session's bounded buffer.
func Important(line string) bool {
	lower := strings.ToLower(line)
	for _, keyword := range monitorKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

var configureKeepKeywords = []string{
	"warning:", "error:", "failed", "not found", "missing",
	"compiler identification", "build type:",
	"installing to", "found openssl", "found icu", "deprecation warning",
	"cmake deprecation warning", "final compile flags",
}

// FilterConfigureOutput reduces configure-step output to the lines a
// caller actually needs to see.
func FilterConfigureOutput(lines []string, succeeded bool) []string {
	var important []string
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		lower := strings.ToLower(line)

		keep := false
		for _, keyword := range configureKeepKeywords {
			if strings.Contains(lower, keyword) {
				keep = true
				break
			}
		}
		if !keep && strings.HasPrefix(line, "-- ") &&
			(strings.Contains(lower, "found") || strings.Contains(lower, "not found")) {
			keep = true
		}
		if keep {
			important = append(important, line)
		}
	}

	if len(important) == 0 {
		if succeeded {
			return []string{"Configure step completed successfully"}
		}
		return []string{"Configure step failed, check the build environment"}
	}
	return important
}

// CountWarnings counts lines mentioning "warning" in any case.
func CountWarnings(lines []string) int {
	count := 0
	for _, line := range lines {
		if strings.Contains(strings.ToLower(line), "warning") {
			count++
		}
	}
	return count
}
