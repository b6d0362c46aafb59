// Package commontest provides a recording Executor for orchestration tests.
package commontest

import (
	"context"
	"sync"

	"github.com/oshokin/release-pipeline/internal/service/common"
)

// Executor records every command and answers with Handler, or success when Handler is nil.
type Executor struct {
	// Handler decides the outcome of each command.
	Handler func(cmd common.Command) (*common.Result, error)

	mu       sync.Mutex
	commands []common.Command
}

// Run records cmd and returns the scripted outcome.
func (e *Executor) Run(_ context.Context, cmd common.Command) (*common.Result, error) {
	e.mu.Lock()
	e.commands = append(e.commands, cmd)
	e.mu.Unlock()

	if e.Handler == nil {
		return &common.Result{}, nil
	}

	return e.Handler(cmd)
}

// Commands returns a copy of the recorded commands.
func (e *Executor) Commands() []common.Command {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]common.Command(nil), e.commands...)
}

// Lines returns the recorded command lines.
func (e *Executor) Lines() []string {
	commands := e.Commands()

	lines := make([]string, 0, len(commands))
	for _, cmd := range commands {
		lines = append(lines, cmd.String())
	}

	return lines
}
