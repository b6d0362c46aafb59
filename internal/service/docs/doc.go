// Package docs stages the release documentation under the public web root.
//
// Two strategies exist. "build" clones the source repository at the
// maintenance branch, patches the stylesheet reference and runs the project's
// own documentation build with a sanitized PATH. "extract" copies the
// pre-built documentation out of a downloaded archive. Both leave
// <web-root>/<version>/ populated with the static files.
package docs
