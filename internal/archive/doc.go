// Package archive unpacks release archives and derives the gzip variant of
// the primary xz tarball.
//
// Extraction supports .tar.xz, .tar.gz and .zip and refuses entries that would
// land outside the destination directory.
package archive
