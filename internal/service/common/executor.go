//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/oshokin/release-pipeline/internal/logger"
)

// Command describes one external tool invocation.
// Dir and Path only affect the child process: the parent's working directory
// and environment are never modified.
type Command struct {
	// Name is the executable; bare names are resolved against Path when it is set.
	Name string
	// Args are the arguments after the executable.
	Args []string
	// Dir is the working directory of the child, empty for the current one.
	Dir string
	// Path replaces the child's PATH when non-nil.
	Path []string
	// Env holds extra KEY=VALUE entries for the child.
	Env []string
}

// NewCommand builds a Command from an argv list.
func NewCommand(argv ...string) Command {
	if len(argv) == 0 {
		return Command{}
	}

	return Command{
		Name: argv[0],
		Args: append([]string(nil), argv[1:]...),
	}
}

// In returns a copy of the command running in dir.
func (c Command) In(dir string) Command {
	c.Dir = dir

	return c
}

// WithPath returns a copy of the command with PATH replaced by dirs.
func (c Command) WithPath(dirs ...string) Command {
	c.Path = append([]string{}, dirs...)

	return c
}

// WithEnv returns a copy of the command with extra environment entries.
func (c Command) WithEnv(env ...string) Command {
	c.Env = append(append([]string(nil), c.Env...), env...)

	return c
}

// String renders the command line for logs and failure banners.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	for _, part := range append([]string{c.Name}, c.Args...) {
		if part == "" || strings.ContainsAny(part, " \t\"'") {
			part = fmt.Sprintf("%q", part)
		}

		parts = append(parts, part)
	}

	return strings.Join(parts, " ")
}

// Result is the outcome of a command that ran to completion.
type Result struct {
	// ExitCode is the process exit status.
	ExitCode int
	// Output is the combined stdout and stderr.
	Output []byte
}

// FirstLine returns the first line of the output without the line ending.
func (r *Result) FirstLine() string {
	if r == nil {
		return ""
	}

	line, _, _ := strings.Cut(string(r.Output), "\n")

	return strings.TrimRight(line, "\r")
}

// Executor runs external commands.
// A non-zero exit is reported through Result.ExitCode; the error is reserved
// for commands that could not run at all.
type Executor interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecExecutor runs commands as real child processes.
type ExecExecutor struct {
	// outputLevel is the minimum level of the logger echoing subprocess output.
	outputLevel zapcore.Level
}

// ExecOption configures an ExecExecutor.
type ExecOption func(*ExecExecutor)

// WithOutputLevel sets the minimum level at which subprocess output is echoed.
func WithOutputLevel(level zapcore.Level) ExecOption {
	return func(e *ExecExecutor) {
		e.outputLevel = level
	}
}

var errExecutableNotFound = errors.New("executable not found in PATH override")

// NewExecExecutor creates an executor backed by os/exec.
func NewExecExecutor(opts ...ExecOption) *ExecExecutor {
	e := &ExecExecutor{
		outputLevel: zapcore.DebugLevel,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Run starts the command, waits for it and captures its output.
func (e *ExecExecutor) Run(ctx context.Context, cmd Command) (*Result, error) {
	name, err := resolve(cmd)
	if err != nil {
		return nil, err
	}

	output := logger.FromContext(ctx).
		WithOptions(logger.WithLevel(e.outputLevel)).
		Named("exec")

	logger.DebugKV(ctx, "Running command", "command", cmd.String(), "dir", cmd.Dir)

	var (
		captured bytes.Buffer
		echo     = &lineLogger{log: output}
		child    = exec.CommandContext(ctx, name, cmd.Args...)
	)

	child.Dir = cmd.Dir
	child.Env = childEnv(os.Environ(), cmd)
	child.Stdout = &teeWriter{primary: &captured, echo: echo}
	child.Stderr = child.Stdout

	err = child.Run()

	echo.flush()

	var exitErr *exec.ExitError

	switch {
	case err == nil:
		return &Result{ExitCode: 0, Output: captured.Bytes()}, nil
	case errors.As(err, &exitErr):
		return &Result{ExitCode: exitErr.ExitCode(), Output: captured.Bytes()}, nil
	default:
		return nil, fmt.Errorf("run %s: %w", cmd.Name, err)
	}
}

// resolve finds the executable, honouring the PATH override for bare names.
func resolve(cmd Command) (string, error) {
	if cmd.Path == nil || strings.ContainsRune(cmd.Name, filepath.Separator) {
		return cmd.Name, nil
	}

	for _, dir := range cmd.Path {
		candidate := filepath.Join(dir, cmd.Name)

		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() && info.Mode().Perm()&0o111 != 0 {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%s: %w", cmd.Name, errExecutableNotFound)
}

// childEnv derives the child environment from the parent's without mutating it.
func childEnv(parent []string, cmd Command) []string {
	env := make([]string, 0, len(parent)+len(cmd.Env)+1)

	for _, entry := range parent {
		if cmd.Path != nil && strings.HasPrefix(entry, "PATH=") {
			continue
		}

		env = append(env, entry)
	}

	if cmd.Path != nil {
		env = append(env, "PATH="+strings.Join(cmd.Path, string(os.PathListSeparator)))
	}

	return append(env, cmd.Env...)
}

// teeWriter copies writes to a buffer and a line logger.
type teeWriter struct {
	primary *bytes.Buffer
	echo    *lineLogger
}

func (w *teeWriter) Write(p []byte) (int, error) {
	w.primary.Write(p)
	w.echo.write(p)

	return len(p), nil
}

// lineLogger logs complete lines of subprocess output.
type lineLogger struct {
	log     *zap.SugaredLogger
	pending []byte
}

func (l *lineLogger) write(p []byte) {
	l.pending = append(l.pending, p...)

	for {
		idx := bytes.IndexByte(l.pending, '\n')
		if idx < 0 {
			return
		}

		l.log.Debug(strings.TrimRight(string(l.pending[:idx]), "\r"))
		l.pending = l.pending[idx+1:]
	}
}

func (l *lineLogger) flush() {
	if len(l.pending) > 0 {
		l.log.Debug(string(l.pending))
		l.pending = nil
	}
}
