// Package version holds build-time metadata injected via -ldflags.
package version

// Set at build time:
//
//	go build -ldflags "-X github.com/kitsurai/torii/internal/version.Version=v1.2.3"
var (
	Version = "dev"
	Commit  = "unknown"
)
