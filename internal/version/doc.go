// Package version exposes build metadata of the release-pipeline binary.
//
// Variables Version, Commit, and BuildTime are injected at build time via
// Go ldflags. They describe the tool, not the compiler release it promotes.
package version
