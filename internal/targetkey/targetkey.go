// Package targetkey derives stable bucket keys from build target lists.
// The key is a pure function of the sorted target set, so reordered but
// equal target lists share learned history.
package targetkey

import (
	"fmt"
	"sort"
	"strings"
)

// FullBuild is the key used for whole-tree builds.
const FullBuild = "full_build"

const packageSuffix = "/fast"

var metaTargets = map[string]bool{
	"all":     true,
	"install": true,
}

// Derive maps a target list to its history bucket key.
func Derive(targets []string) string {
	if len(targets) == 0 {
		return FullBuild
	}

	sorted := make([]string, len(targets))
	copy(sorted, targets)
	sort.Strings(sorted)

	if len(sorted) == 1 {
		target := sorted[0]
		switch {
		case strings.HasSuffix(target, packageSuffix):
			name := strings.ReplaceAll(target, packageSuffix, "")
			name = strings.ReplaceAll(name, "package_", "")
			return "package_" + name
		case metaTargets[target]:
			return FullBuild
		default:
			return "target_" + target
		}
	}

	allPackages := true
	for _, target := range sorted {
		if !strings.HasPrefix(target, "package_") {
			allPackages = false
			break
		}
	}
	if allPackages {
		return fmt.Sprintf("multi_package_%d", len(sorted))
	}
	return fmt.Sprintf("multi_target_%d", len(sorted))
}

// Joined returns the literal joined-target key used by the change and
// health trackers. Unlike Derive it does not bucket by build shape; equal
// target sets still collapse to the same key.
func Joined(targets []string) string {
	if len(targets) == 0 {
		return "default_build"
	}
	sorted := make([]string, len(targets))
	copy(sorted, targets)
	sort.Strings(sorted)
	key := strings.Join(sorted, "_")
	key = strings.ReplaceAll(key, "/", "_")
	key = strings.ReplaceAll(key, "package_", "pkg_")
	return key
}
