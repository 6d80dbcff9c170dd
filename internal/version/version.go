// Package version holds build metadata injected at link time.
package version

import "fmt"

// Populated via -ldflags "-X modelgate/internal/version.Version=..." etc.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info returns a one-line human-readable version string.
func Info() string {
	return fmt.Sprintf("modelgate %s (commit %s, built %s)", Version, Commit, Date)
}
