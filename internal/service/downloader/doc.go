// Package downloader fetches the release artifacts of a nightly build.
//
// Each artifact is streamed to the download directory under its public name,
// and its SHA-256 sibling file is written right after the body is on disk.
// The first failure aborts the phase.
package downloader
