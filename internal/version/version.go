// Package version exposes build metadata stamped via -ldflags.
package version

var (
	// Version is the release version, "dev" for local builds.
	Version = "dev"
	// Commit is the git revision the binary was built from.
	Commit = "unknown"
)

// String renders the version with its commit, e.g. "1.4.0 (a1b2c3d)".
func String() string {
	return Version + " (" + Commit + ")"
}
