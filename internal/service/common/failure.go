//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"errors"
	"fmt"
	"strings"
)

// PhaseError is a hard failure: it names the failing command and the phase it belongs to.
type PhaseError struct {
	// Phase is the pipeline phase label (e.g. "download").
	Phase string
	// Command describes what failed, usually the rendered command line.
	Command string
	// Err is the underlying cause, if any.
	Err error
}

// errNonZeroExit is the cause recorded when a command exits unsuccessfully.
var errNonZeroExit = errors.New("non-zero exit status")

// Error renders the failure banner.
func (e *PhaseError) Error() string {
	return fmt.Sprintf("FAILURE: %s\nPHASE: %s", e.Command, e.Phase)
}

// Unwrap exposes the cause.
func (e *PhaseError) Unwrap() error {
	return e.Err
}

// Fail wraps err as a hard failure of the given phase.
// An error that already is a PhaseError is returned as is.
func Fail(phase, command string, err error) error {
	var phaseErr *PhaseError
	if errors.As(err, &phaseErr) {
		return err
	}

	return &PhaseError{
		Phase:   phase,
		Command: command,
		Err:     err,
	}
}

// Check turns a failed run or a non-zero exit into a hard failure of the phase.
func Check(phase string, cmd Command, result *Result, err error) error {
	if err != nil {
		return Fail(phase, cmd.String(), err)
	}

	if result == nil || result.ExitCode != 0 {
		code := -1
		if result != nil {
			code = result.ExitCode
		}

		return Fail(phase, cmd.String(), fmt.Errorf("%w: %d", errNonZeroExit, code))
	}

	return nil
}

// Expand substitutes {key} placeholders in every argument.
func Expand(argv []string, placeholders map[string]string) []string {
	pairs := make([]string, 0, 2*len(placeholders))
	for key, value := range placeholders {
		pairs = append(pairs, "{"+key+"}", value)
	}

	replacer := strings.NewReplacer(pairs...)

	result := make([]string, len(argv))
	for i, arg := range argv {
		result[i] = replacer.Replace(arg)
	}

	return result
}
