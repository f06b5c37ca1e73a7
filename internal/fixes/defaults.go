package fixes

import "time"

// defaultCatalog seeds the advisor with common C/C++ toolchain failures:
// missing system headers, CMake configuration problems, linker errors,
// build system errors and resource exhaustion.
func defaultCatalog() catalogDocument {
	return catalogDocument{
		Version: "1.0.0",
		Patterns: map[string]Pattern{
			"missing_openssl_headers": {
				RegexPatterns: []string{
					"fatal error: openssl/ssl\\.h: No such file or directory",
					"openssl/ssl\\.h: No such file or directory",
					"#include.*openssl.*not found",
				},
				SuggestedFix: "Install OpenSSL development packages",
				FixCommands: []string{
					"sudo apt update",
					"sudo apt install -y libssl-dev openssl",
					"pkg-config --modversion openssl",
				},
				FixType:           FixQuick,
				Confidence:        95,
				ApplicableSystems: []string{"ubuntu", "debian"},
			},
			"missing_zlib_headers": {
				RegexPatterns: []string{
					"fatal error: zlib\\.h: No such file or directory",
					"zlib\\.h: No such file or directory",
				},
				SuggestedFix: "Install zlib development package",
				FixCommands: []string{
					"sudo apt update",
					"sudo apt install -y zlib1g-dev",
				},
				FixType:           FixQuick,
				Confidence:        95,
				ApplicableSystems: []string{"ubuntu", "debian"},
			},
			"missing_pthread": {
				RegexPatterns: []string{
					"undefined reference to `pthread_",
					"ld:.*cannot find -lpthread",
				},
				SuggestedFix: "Link pthread library or install development packages",
				FixCommands: []string{
					"sudo apt install -y libc6-dev",
					"# Add -lpthread to linker flags in CMakeLists.txt",
				},
				FixType:           FixMedium,
				Confidence:        85,
				ApplicableSystems: []string{"ubuntu", "debian", "linux"},
			},
			"cmake_missing_package": {
				RegexPatterns: []string{
					"CMake Error.*Could not find package (\\w+)",
					"Could not find a package configuration file provided by \"(\\w+)\"",
				},
				SuggestedFix: "Install missing package development libraries",
				FixCommands: []string{
					"# Install development package (example for OpenSSL):",
					"sudo apt install -y libssl-dev",
					"rm -rf build/CMakeCache.txt",
					"cmake -S $(pwd) -B $(pwd)/build",
				},
				FixType:           FixMedium,
				Confidence:        88,
				ApplicableSystems: []string{"ubuntu", "debian"},
			},
			"cmake_prefix_path": {
				RegexPatterns: []string{
					"CMake Error.*CMAKE_PREFIX_PATH",
					"Set CMAKE_PREFIX_PATH to a directory containing",
				},
				SuggestedFix: "Set CMAKE_PREFIX_PATH to library installation directory",
				FixCommands: []string{
					"export CMAKE_PREFIX_PATH=/usr/local:/opt/local:$CMAKE_PREFIX_PATH",
					"cmake -S $(pwd) -B $(pwd)/build",
					"# Or add -DCMAKE_PREFIX_PATH=/path/to/libraries to cmake command",
				},
				FixType:           FixMedium,
				Confidence:        78,
				ApplicableSystems: []string{"linux", "macos"},
			},
			"cmake_build_type": {
				RegexPatterns: []string{
					"CMAKE_BUILD_TYPE is not set",
					"Warning.*CMAKE_BUILD_TYPE",
				},
				SuggestedFix: "Set CMAKE_BUILD_TYPE for optimized builds",
				FixCommands: []string{
					"cmake -DCMAKE_BUILD_TYPE=Release ..",
					"# Or for debug builds: cmake -DCMAKE_BUILD_TYPE=Debug ..",
				},
				FixType:           FixQuick,
				Confidence:        90,
				ApplicableSystems: []string{"all"},
			},
			"undefined_reference": {
				RegexPatterns: []string{
					"undefined reference to `(\\w+)",
					"ld:.*undefined symbol: (\\w+)",
				},
				SuggestedFix: "Link missing library or check function implementation",
				FixCommands: []string{
					"# Check if library is installed:",
					"pkg-config --list-all | grep <library_name>",
					"# Add library to CMakeLists.txt:",
					"# target_link_libraries(<target> <library_name>)",
				},
				FixType:           FixMedium,
				Confidence:        70,
				ApplicableSystems: []string{"all"},
			},
			"multiple_definition": {
				RegexPatterns: []string{
					"multiple definition of `(\\w+)",
					"duplicate symbol: (\\w+)",
				},
				SuggestedFix: "Remove duplicate function definitions or fix header guards",
				FixCommands: []string{
					"# Check for duplicate function implementations",
					"grep -r \"function_name\" src/",
					"# Add header guards or use inline for header-only functions",
				},
				FixType:           FixComplex,
				Confidence:        75,
				ApplicableSystems: []string{"all"},
			},
			"make_no_rule": {
				RegexPatterns: []string{
					"make.*No rule to make target",
					"No targets specified and no makefile found",
				},
				SuggestedFix: "Run cmake to generate Makefile or check target names",
				FixCommands: []string{
					"cd build",
					"cmake -S $(pwd) -B $(pwd)/build",
					"make --help | grep -A5 'Available targets'",
				},
				FixType:           FixQuick,
				Confidence:        88,
				ApplicableSystems: []string{"all"},
			},
			"permission_denied": {
				RegexPatterns: []string{
					"Permission denied",
					"cannot create.*Permission denied",
				},
				SuggestedFix: "Fix file/directory permissions",
				FixCommands: []string{
					"sudo chown -R $USER:$USER .",
					"chmod -R 755 .",
					"# Or run with appropriate permissions",
				},
				FixType:           FixQuick,
				Confidence:        92,
				ApplicableSystems: []string{"linux", "macos"},
			},
			"disk_space": {
				RegexPatterns: []string{
					"No space left on device",
					"disk full",
				},
				SuggestedFix: "Free up disk space",
				FixCommands: []string{
					"df -h .",
					"du -h --max-depth=1 .",
					"# Clean build directory: rm -rf build/*",
					"# Or clean system: sudo apt autoremove && sudo apt autoclean",
				},
				FixType:           FixMedium,
				Confidence:        95,
				ApplicableSystems: []string{"all"},
			},
			"memory_exhausted": {
				RegexPatterns: []string{
					"virtual memory exhausted",
					"out of memory",
					"Cannot allocate memory",
				},
				SuggestedFix: "Reduce parallel jobs or increase system memory",
				FixCommands: []string{
					"# Reduce parallel jobs:",
					"make -j2",
					"# Or increase swap space if available",
				},
				FixType:           FixQuick,
				Confidence:        90,
				ApplicableSystems: []string{"all"},
			},
		},
		Metadata: catalogMetadata{
			LastUpdated:                time.Now().UTC().Format("2006-01-02"),
			PatternCount:               12,
			DefaultConfidenceThreshold: confidenceThreshold,
		},
	}
}
