package version

import "runtime"

// Build information, injected via ldflags at build time:
//
//	-X github.com/alessandrobessi/tamagotchi/internal/platform/version.Version=v1.2.0
var (
	// Version is the git tag or semantic version
	Version = "dev"
	// Commit is the git commit SHA
	Commit = "unknown"
	// BuildTime is the ISO 8601 build timestamp
	BuildTime = "unknown"
)

// Info holds complete build information
type Info struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// ServiceName identifies this binary in /version and in the startup log line.
const ServiceName = "tamagotchi"

// Get returns the current build information
func Get() Info {
	return Info{
		Service:   ServiceName,
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}
