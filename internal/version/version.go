// Package version reports build information set at link time:
//
//	go build -ldflags "-X github.com/devvluca/EclesIA/internal/version.Version=v1.0.0 \
//	  -X github.com/devvluca/EclesIA/internal/version.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/devvluca/EclesIA/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Short returns the version number.
func Short() string {
	if Version == "dev" {
		if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			return bi.Main.Version
		}
	}
	return Version
}

// Build describes the running binary.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Current returns the build of the running binary.
func Current() Build {
	return Build{
		Version:   Short(),
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Info returns a multi-line description of the build.
func Info() string {
	b := Current()
	return fmt.Sprintf("eclesia %s\n  commit:     %s\n  built:      %s\n  go version: %s\n  platform:   %s",
		b.Version, b.Commit, b.BuildTime, b.GoVersion, b.Platform)
}
