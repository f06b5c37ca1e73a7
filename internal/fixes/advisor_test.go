package fixes

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildmon/internal/state"
)

func newTestAdvisor(t *testing.T) *Advisor {
	t.Helper()
	store, err := state.NewJSONStore(filepath.Join(t.TempDir(), "fixes.json"))
	require.NoError(t, err)
	return NewAdvisor(store)
}

func TestSuggestMissingOpenSSLHeader(t *testing.T) {
	advisor := newTestAdvisor(t)

	errorText := "/src/net/tls.c:12:10: fatal error: openssl/ssl.h: No such file or directory\n" +
		"   12 | #include <openssl/ssl.h> // not found on this system"

	suggestions := advisor.Suggest(errorText, "/src/net/tls.c", "header")
	require.NotEmpty(t, suggestions)
	require.Equal(t, "missing_openssl_headers", suggestions[0].Pattern)
	require.GreaterOrEqual(t, suggestions[0].Confidence, 90)
	require.Equal(t, "header", suggestions[0].ErrorCategory)
	require.Contains(t, suggestions[0].FixCommands, "sudo apt install -y libssl-dev openssl")
}

func TestSuggestNoMatchReturnsEmpty(t *testing.T) {
	advisor := newTestAdvisor(t)

	suggestions := advisor.Suggest("everything went fine", "", "")
	require.Empty(t, suggestions)
}

func TestSuggestTopThreeSortedByConfidence(t *testing.T) {
	advisor := newTestAdvisor(t)

	errorText := "cannot create build/out: Permission denied\n" +
		"disk full: No space left on device\n" +
		"virtual memory exhausted: Cannot allocate memory, out of memory\n" +
		"cmake warning: CMAKE_BUILD_TYPE is not set"

	suggestions := advisor.Suggest(errorText, "", "")
	require.Len(t, suggestions, 3)
	require.Equal(t, "disk_space", suggestions[0].Pattern)
	for i := 1; i < len(suggestions); i++ {
		require.LessOrEqual(t, suggestions[i].Confidence, suggestions[i-1].Confidence)
	}
}

func TestSuggestSourceFileBonus(t *testing.T) {
	advisor := newTestAdvisor(t)

	errorText := "undefined reference to `pthread_create'\n/usr/bin/ld: cannot find -lpthread"

	withFile := advisor.Suggest(errorText, "src/worker.cpp", "")
	withoutFile := advisor.Suggest(errorText, "", "")
	require.NotEmpty(t, withFile)
	require.NotEmpty(t, withoutFile)
	require.Equal(t, "missing_pthread", withFile[0].Pattern)
	require.Equal(t, withoutFile[0].Confidence+5, withFile[0].Confidence)
}

func TestSuggestPartialMatchScalesConfidence(t *testing.T) {
	advisor := newTestAdvisor(t)

	// Matches one of two permission_denied regexes: 92/2 stays under the
	// 60 threshold even with the linux applicability bonus.
	suggestions := advisor.Suggest("Permission denied", "", "")
	require.Empty(t, suggestions)
}

func TestAddPatternValidation(t *testing.T) {
	advisor := newTestAdvisor(t)

	err := advisor.AddPattern("incomplete", Pattern{
		RegexPatterns: []string{"boom"},
		SuggestedFix:  "do the thing",
		Confidence:    80,
	})
	require.Error(t, err)

	err = advisor.AddPattern("bad_regex", Pattern{
		RegexPatterns: []string{"unclosed ["},
		SuggestedFix:  "do the thing",
		FixCommands:   []string{"fix it"},
		FixType:       FixQuick,
		Confidence:    80,
	})
	require.Error(t, err)

	err = advisor.AddPattern("", Pattern{
		RegexPatterns: []string{"boom"},
		SuggestedFix:  "do the thing",
		FixCommands:   []string{"fix it"},
		FixType:       FixQuick,
		Confidence:    80,
	})
	require.Error(t, err)
}

func TestAddPatternMatchable(t *testing.T) {
	advisor := newTestAdvisor(t)

	err := advisor.AddPattern("missing_protoc", Pattern{
		RegexPatterns: []string{
			"protoc: command not found",
			"protoc-gen-go: program not found",
		},
		SuggestedFix:      "Install the protobuf compiler",
		FixCommands:       []string{"sudo apt install -y protobuf-compiler"},
		FixType:           FixQuick,
		Confidence:        90,
		ApplicableSystems: []string{"linux"},
	})
	require.NoError(t, err)

	errorText := "sh: protoc: command not found\nprotoc-gen-go: program not found in PATH"
	suggestions := advisor.Suggest(errorText, "", "")
	require.NotEmpty(t, suggestions)
	require.Equal(t, "missing_protoc", suggestions[0].Pattern)
}

func TestCatalogPersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixes.json")
	store, err := state.NewJSONStore(path)
	require.NoError(t, err)

	advisor := NewAdvisor(store)
	require.NoError(t, advisor.AddPattern("custom_one", Pattern{
		RegexPatterns: []string{"kaboom"},
		SuggestedFix:  "reboot",
		FixCommands:   []string{"sudo reboot"},
		FixType:       FixComplex,
		Confidence:    70,
	}))

	_, err = os.Stat(path)
	require.NoError(t, err)

	store2, err := state.NewJSONStore(path)
	require.NoError(t, err)
	reloaded := NewAdvisor(store2)
	require.Contains(t, reloaded.doc.Patterns, "custom_one")
	require.Contains(t, reloaded.doc.Patterns, "missing_openssl_headers")
}

func TestStats(t *testing.T) {
	advisor := newTestAdvisor(t)

	stats := advisor.Stats()
	require.Equal(t, 12, stats.TotalPatterns)
	require.Equal(t, 6, stats.ConfidenceDistribution["high"])
	require.Equal(t, 6, stats.ConfidenceDistribution["medium"])
	require.Equal(t, 0, stats.ConfidenceDistribution["low"])
	require.Equal(t, 6, stats.FixTypes[FixQuick])
}

func TestClearRestoresDefaults(t *testing.T) {
	advisor := newTestAdvisor(t)
	require.NoError(t, advisor.AddPattern("custom_one", Pattern{
		RegexPatterns: []string{"kaboom"},
		SuggestedFix:  "reboot",
		FixCommands:   []string{"sudo reboot"},
		FixType:       FixComplex,
		Confidence:    70,
	}))
	require.Equal(t, 13, advisor.Stats().TotalPatterns)

	advisor.Clear()
	require.Equal(t, 12, advisor.Stats().TotalPatterns)
	require.NotContains(t, advisor.doc.Patterns, "custom_one")
}
