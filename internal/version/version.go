// Package version carries build metadata, set through -ldflags on release builds and
// resolved from the Go build info otherwise.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

const devVersion = "0.1.0-dev"

var (
	AppName   = "s3sync"
	Version   = devVersion
	Revision  = "HEAD"
	BuildDate = ""
)

func applyBuildInfo(mainVersion string, settings map[string]string) {
	if Version == devVersion || Version == "" {
		if mainVersion != "" && mainVersion != "(devel)" {
			Version = strings.TrimPrefix(mainVersion, "v")
		}
	}

	if Revision == "HEAD" || Revision == "" {
		if r := settings["vcs.revision"]; r != "" {
			if settings["vcs.modified"] == "true" {
				r += "-dirty"
			}
			Revision = r
		}
	}

	if BuildDate == "" {
		BuildDate = settings["vcs.time"]
	}
}

// Short returns `0.1.0 (5e23a4)`
func Short() string {
	return fmt.Sprintf("%s (%s)", Version, Revision)
}

// Detailed returns `0.1.0 (5e23a4; go1.24.1; linux/amd64; 2025-01-01T00:00:00Z)`
func Detailed() string {
	date := BuildDate
	if date == "" {
		date = "unknown"
	}
	return fmt.Sprintf("%s (%s; %s; %s/%s; %s)", Version, Revision, runtime.Version(), runtime.GOOS, runtime.GOARCH, date)
}

// UserAgent identifies this build in outgoing requests.
func UserAgent() string {
	return fmt.Sprintf("%s/%s", AppName, Version)
}

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok || info == nil {
		return
	}
	settings := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}
	applyBuildInfo(info.Main.Version, settings)
}
