// Package repackager derives the .tar.gz variant of the primary .tar.xz
// source tarball for consumers that cannot read xz, and publishes its
// checksum. The .tar.xz is only read.
package repackager
