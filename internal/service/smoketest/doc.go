// Package smoketest validates that the released source tarball builds and
// passes a small slice of the project's own tests.
//
// Every command runs inside the extracted tree with PATH reduced to a fixed
// list of system directories plus the tree's own bin directory, so the result
// does not depend on tools installed on the operator's machine. A version
// self-check mismatch is a soft failure: it is logged, the remaining steps
// are skipped, and Run returns without error.
package smoketest
