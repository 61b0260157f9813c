// SPDX-License-Identifier: MIT
//
// Package build carries the metadata stamped into the binary at compile
// time with -ldflags: application name, build timestamp, Git commit and
// semantic version. Unstamped development builds fall back to "dev"
// values so the binary still runs.
package build

// BuildInfo is the resolved build metadata.
type BuildInfo struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// Populated by -ldflags during compilation; empty in development.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
)

var info = BuildInfo{
	Name:        "audiograph",
	Description: "Real-time audio graph rendering engine",
	Time:        "unknown",
	Commit:      "unknown",
	Version:     "dev",
}

// Initialize copies stamped values over the development defaults.
// Call once, early in startup.
func Initialize() {
	if buildName != "" {
		info.Name = buildName
	}
	if buildTime != "" {
		info.Time = buildTime
	}
	if buildCommit != "" {
		info.Commit = buildCommit
	}
	if buildVersion != "" {
		info.Version = buildVersion
	}
}

// Info returns the current build metadata.
func Info() *BuildInfo {
	return &info
}
