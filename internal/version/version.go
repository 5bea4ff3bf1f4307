package version

import "fmt"

var (
	// Version is overridden via ldflags.
	Version = "0.1.0"
	// Commit is the short git SHA, or "none".
	Commit = "none"
	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)

func Short() string {
	return Version
}

// Full renders version, commit and build time on one line.
func Full() string {
	return fmt.Sprintf("alertd %s (commit %s, built %s)", Version, Commit, BuildTime)
}
