// Package version provides the splitbench build version to binaries and
// archival records.
package version

// Version is the version of this binary. It is meant to be overridden at
// build time via ldflags:
//
//	go build -ldflags "-X github.com/splitbench/splitbench/pkg/version.Version=$(git describe --tags)"
var Version = "no-version"
