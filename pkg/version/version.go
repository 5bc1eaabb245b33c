// Package version exposes build-time version information.
package version

var (
	// Version is the current version of skillengine.
	// Set during the build process via -ldflags.
	Version = "dev"

	// GitCommit is the git commit SHA that was built.
	GitCommit = "unknown"
)
