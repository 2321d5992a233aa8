// Package version provides build version information embedding for this
// service.
//
// Version, git commit, branch, and build time are set at compile time
// via -ldflags:
//
//	go build -ldflags "-X github.com/kbukum/sttrelay/internal/version.Version=1.0.0"
package version
