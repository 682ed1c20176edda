// Package version holds the release version, bumped by the release workflow.
package version

// Current is the release version without a "v" prefix.
const Current = "0.3.0"

// String is the version as printed by the CLI.
func String() string {
	return "leadfinder " + Current
}
