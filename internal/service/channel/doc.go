// Package channel decides whether a release becomes the stable version and,
// if so, repoints the public docs symlink and rewrites the stable-channel
// record. Release candidates (odd patch numbers) are never promoted.
package channel
