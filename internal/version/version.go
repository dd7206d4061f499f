// Package version holds build metadata shared by all nlpipe binaries.
//
// Release builds stamp the variables via ldflags:
//
//	go build -ldflags "-X github.com/nlpipe/nlpipe/internal/version.Version=1.2.0 \
//	  -X github.com/nlpipe/nlpipe/internal/version.Commit=abc1234 \
//	  -X github.com/nlpipe/nlpipe/internal/version.Date=2026-08-24"
package version

import (
	"fmt"
	"runtime"
)

// Build-time variables injected via ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Short returns the bare version string.
func Short() string {
	return Version
}

// Long returns the multi-line build report printed by `<binary> version`.
func Long(binary string) string {
	return fmt.Sprintf("%s %s\n  Commit:     %s\n  Built:      %s\n  Go version: %s\n  OS/Arch:    %s/%s",
		binary, Version, Commit, Date, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
