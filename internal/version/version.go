// Package version holds build metadata injected through -ldflags.
package version

import (
	"fmt"
	"runtime"

	"github.com/aatumaykin/autodelete/internal/logger"
)

var (
	Version   = "0.1.0-dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GoVersion = runtime.Version()
)

// SetInfo overrides the build metadata. Empty values keep the current ones.
func SetInfo(v, bt, gc, gv string) {
	if v != "" {
		Version = v
	}
	if bt != "" {
		BuildTime = bt
	}
	if gc != "" {
		GitCommit = gc
	}
	if gv != "" {
		GoVersion = gv
	}
}

// String renders a one-line summary for `autodelete version`.
func String() string {
	return fmt.Sprintf("autodelete %s (commit %s, built %s, %s)", Version, GitCommit, BuildTime, GoVersion)
}

// Fields returns the metadata as structured log fields for the startup line.
func Fields() []logger.Field {
	return []logger.Field{
		{Key: "version", Value: Version},
		{Key: "git_commit", Value: GitCommit},
		{Key: "build_time", Value: BuildTime},
	}
}
