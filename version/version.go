// Package version holds build metadata injected at link time via
// -ldflags, e.g.:
//
//	go build -ldflags "-X github.com/jackzampolin/tagflow/version.GitRelease=v0.2.0"
package version

import "runtime"

var (
	// GitRelease is the release tag or branch the binary was built from.
	GitRelease = "dev"

	// GitCommit is the short commit hash.
	GitCommit = "unknown"

	// GitCommitDate is the commit date.
	GitCommitDate = "unknown"

	// GoInfo is the Go toolchain version.
	GoInfo = runtime.Version()
)
