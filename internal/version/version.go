package version

import "github.com/fatih/color"

// Version information for the vigil CLI.
// These variables can be overridden at build time via -ldflags.

var (
	nameColor    = color.New(color.FgGreen, color.Bold)
	versionColor = color.New(color.FgYellow, color.Bold)

	// Version is the semantic version of the CLI.
	Version = "0.1.0-dev"

	// GitCommit is an optional git commit hash.
	GitCommit = ""

	// BuildDate is an optional build date in ISO-8601.
	BuildDate = ""
)

// String renders the version line printed by `vigil version`.
func String() string {
	s := nameColor.Sprint("vigil") + " " + versionColor.Sprint(Version)
	if GitCommit != "" {
		s += " (" + GitCommit + ")"
	}
	if BuildDate != "" {
		s += " built " + BuildDate
	}
	return s
}
