package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const (
	devVersion  = "0.1.0-dev"
	devRevision = "HEAD"
	shortRevLen = 12
)

// Set with -ldflags "-X github.com/stonefire/cloudsync/internal/version.Version=..." on release builds.
var (
	AppName   = "CloudSync"
	Version   = devVersion
	Revision  = devRevision
	BuildDate = ""
)

// fillFromBuild fills in whatever the linker left at its dev default
// using the module version and VCS stamps recorded by the go tool.
func fillFromBuild(modVersion string, vcs map[string]string) {
	if (Version == devVersion || Version == "") && modVersion != "" && modVersion != "(devel)" {
		Version = strings.TrimPrefix(modVersion, "v")
	}

	if rev := vcs["vcs.revision"]; rev != "" && (Revision == devRevision || Revision == "") {
		if len(rev) > shortRevLen {
			rev = rev[:shortRevLen]
		}
		if vcs["vcs.modified"] == "true" {
			rev += "+dirty"
		}
		Revision = rev
	}

	if BuildDate == "" {
		BuildDate = vcs["vcs.time"]
	}
}

// Detailed is printed by `cloudsync version` - `0.1.0 (5e23a4; go1.23.6; linux/amd64; 2025-01-02T03:04:05Z)`
func Detailed() string {
	return fmt.Sprintf("%s (%s; %s; %s/%s; %s)", Version, Revision, runtime.Version(), runtime.GOOS, runtime.GOARCH, BuildDate)
}

// UserAgent is sent on every outbound HTTP request - `CloudSync/0.1.0 (5e23a4; linux/amd64)`
func UserAgent() string {
	return fmt.Sprintf("%s/%s (%s; %s/%s)", AppName, Version, Revision, runtime.GOOS, runtime.GOARCH)
}

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		vcs := make(map[string]string, len(info.Settings))
		for _, s := range info.Settings {
			if strings.HasPrefix(s.Key, "vcs.") {
				vcs[s.Key] = s.Value
			}
		}
		fillFromBuild(info.Main.Version, vcs)
	}
	if BuildDate == "" {
		BuildDate = time.Now().UTC().Format(time.RFC3339)
	}
}
