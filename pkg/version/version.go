package version

import (
	"fmt"
	"log/slog"
	"runtime"
)

// Set at build time with -ldflags "-X github.com/jonny/executor-provisioner/pkg/version.Version=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildTime)
}

// LogAttrs returns the build information as structured log attributes.
func LogAttrs() []any {
	return []any{
		slog.String("version", Version),
		slog.String("commit", Commit),
		slog.String("build_time", BuildTime),
		slog.String("go", runtime.Version()),
	}
}
