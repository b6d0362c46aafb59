// Package release contains the core domain types of the release pipeline.
//
// It defines Version (a major.minor.patch triple with the odd-patch
// release-candidate rule), Release (version plus nightly build hash) and
// Artifact (a named file of the artifact set), together with the filename
// conventions shared by every phase.
package release
