// Package pipeline wires the release phases together.
//
// A run loads the configuration, resolves the release being published and
// then executes one phase or the whole chain (download, docs, repackage,
// smoke test, channel update) in order. The first hard failure stops the run.
// A marker file in the download directory keeps two runs from working on the
// same tree at once.
package pipeline
