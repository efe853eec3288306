package version

import "fmt"

// Set at build time via -ldflags.
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info returns a human-readable version string.
func Info() string {
	return fmt.Sprintf("Version: %s\nGitCommit: %s\nBuildTime: %s",
		Version, GitCommit, BuildTime)
}
