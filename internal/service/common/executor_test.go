//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// minimalPath is enough to find a POSIX shell on the test machines.
var minimalPath = []string{"/usr/bin", "/bin"}

// TestExecExecutor_PathOverrideIsScopedToChild checks that the child sees the override
// and the parent PATH is unchanged on success and on failure.
func TestExecExecutor_PathOverrideIsScopedToChild(t *testing.T) {
	extra := t.TempDir()
	before := os.Getenv("PATH")
	executor := NewExecExecutor()

	cmd := NewCommand("sh", "-c", `printf %s "$PATH"`).WithPath(append(minimalPath, extra)...)

	result, err := executor.Run(context.Background(), cmd)
	require.NoError(t, err)
	require.Equal(t, 0, result.ExitCode)
	require.Equal(t, strings.Join(append(minimalPath, extra), string(os.PathListSeparator)), string(result.Output))
	require.Equal(t, before, os.Getenv("PATH"))

	failing := NewCommand("sh", "-c", "exit 3").WithPath(minimalPath...)

	result, err = executor.Run(context.Background(), failing)
	require.NoError(t, err)
	require.Equal(t, 3, result.ExitCode)
	require.Equal(t, before, os.Getenv("PATH"))

	_, err = executor.Run(context.Background(), NewCommand("definitely-not-a-tool").WithPath(extra))
	require.ErrorIs(t, err, errExecutableNotFound)
	require.Equal(t, before, os.Getenv("PATH"))
}

// TestExecExecutor_DirIsScopedToChild checks the child runs in Dir and the parent stays put.
func TestExecExecutor_DirIsScopedToChild(t *testing.T) {
	dir := t.TempDir()

	before, err := os.Getwd()
	require.NoError(t, err)

	executor := NewExecExecutor()

	result, err := executor.Run(context.Background(), NewCommand("pwd").In(dir))
	require.NoError(t, err)

	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	require.Equal(t, resolved, strings.TrimSpace(result.FirstLine()))

	_, err = executor.Run(context.Background(), NewCommand("sh", "-c", "exit 1").In(dir))
	require.NoError(t, err)

	_, err = executor.Run(context.Background(), NewCommand("sh").In(filepath.Join(dir, "missing")))
	require.Error(t, err)

	after, err := os.Getwd()
	require.NoError(t, err)
	require.Equal(t, before, after)
}

// TestExecExecutor_ExtraEnvAndRelativeBinary runs a script relative to Dir with extra env.
func TestExecExecutor_ExtraEnvAndRelativeBinary(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	script := "#!/bin/sh\necho \"$GREETING\"\necho second\n"
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bin", "tool"), []byte(script), 0o755))

	cmd := NewCommand("bin/tool").In(dir).WithPath(minimalPath...).WithEnv("GREETING=hello 1.4.8")

	result, err := NewExecExecutor().Run(context.Background(), cmd)
	require.NoError(t, err)
	require.Equal(t, "hello 1.4.8", result.FirstLine())
	require.Contains(t, string(result.Output), "second")
}

// TestChildEnv verifies PATH replacement without touching the parent slice.
func TestChildEnv(t *testing.T) {
	t.Parallel()

	parent := []string{"HOME=/root", "PATH=/opt/evil/bin:/usr/bin"}

	env := childEnv(parent, Command{Path: []string{"/bin", "/x"}, Env: []string{"A=B"}})
	require.Equal(t, []string{"HOME=/root", "PATH=/bin:/x", "A=B"}, env)
	require.Equal(t, "PATH=/opt/evil/bin:/usr/bin", parent[1])

	env = childEnv(parent, Command{})
	require.Equal(t, parent, env)
}

// TestCommandString quotes arguments that need it.
func TestCommandString(t *testing.T) {
	t.Parallel()

	require.Equal(t, `git commit -m "a message" ""`, NewCommand("git", "commit", "-m", "a message", "").String())
	require.Equal(t, "", NewCommand().Name)
}
