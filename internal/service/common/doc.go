// Package common holds helpers shared by the pipeline phases.
//
// It provides the Executor abstraction every external tool invocation goes
// through, the PhaseError type carrying the failing command and phase name,
// and argv placeholder expansion.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
