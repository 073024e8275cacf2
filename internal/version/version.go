// Package version carries the build version stamped in at link time.
package version

import "strings"

var version = "dev"

// String returns the build version for the current binary.
func String() string {
	return version
}

// Format returns a display-friendly version string with a "v" prefix.
// Special values like "dev" pass through unchanged.
func Format(v string) string {
	if v == "" || v == "dev" || strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}
