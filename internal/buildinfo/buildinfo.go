// Package buildinfo holds version metadata stamped at build time via ldflags.
package buildinfo

import (
	"fmt"
	"runtime"
)

// Set with -ldflags "-X tidyoux/timestamper/internal/buildinfo.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// UserAgent returns the User-Agent sent on outbound requests.
func UserAgent() string {
	return fmt.Sprintf("timestamper/%s (%s; %s/%s)", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Info returns build metadata for the health endpoint.
func Info() map[string]string {
	return map[string]string{
		"version":    Version,
		"git_commit": GitCommit,
		"go_version": runtime.Version(),
	}
}
