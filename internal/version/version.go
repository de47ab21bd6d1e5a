// Package version exposes the gateway's build identity: stamped via
// ldflags by the release pipeline, reported at startup and in the
// origin User-Agent.
package version

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)
