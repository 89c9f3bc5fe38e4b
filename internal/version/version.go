// Package version holds build metadata injected at release time.
package version

// Version is the application version, overridden via ldflags on tagged builds.
var Version = "0.1.0"

// GitCommit is the git commit hash, set at build time via ldflags.
var GitCommit = "unknown"

// BuildDate is the build timestamp, set at build time via ldflags.
var BuildDate = "unknown"
