// Package version carries the build identity stamped in at link time via
// -ldflags. Defaults apply to plain `go build` trees.
package version

import "fmt"

var (
	CLIName    = "swap"
	CLIVersion = "0.1.0"
	Commit     = "unknown"
	BuildDate  = "unknown"
)

func Long() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", CLIVersion, Commit, BuildDate)
}

// UserAgent identifies this build to quote and relayer APIs.
func UserAgent() string {
	return CLIName + "-cli/" + CLIVersion
}
