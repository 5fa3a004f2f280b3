// Package version carries build metadata injected with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/platformbuilds/dashbridge/internal/version.Version=v1.2.0"
package version

var (
	Version    = "dev"
	CommitHash = "unknown"
	BuildTime  = ""
)
