package smoketest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/oshokin/release-pipeline/internal/archive/archivetest"
	"github.com/oshokin/release-pipeline/internal/checksum"
	"github.com/oshokin/release-pipeline/internal/config"
	"github.com/oshokin/release-pipeline/internal/domain/release"
	"github.com/oshokin/release-pipeline/internal/logger"
	"github.com/oshokin/release-pipeline/internal/service/common"
	"github.com/oshokin/release-pipeline/internal/service/common/commontest"
)

// fixture prepares a config, a release and the source tarball in the download directory.
func fixture(t *testing.T) (*config.Config, *release.Release) {
	t.Helper()

	root := t.TempDir()
	cfg := config.Default()
	cfg.DownloadDir = filepath.Join(root, "download")
	cfg.WorkDir = filepath.Join(root, "work")
	cfg.MinimalPath = []string{"/usr/bin", "/bin"}
	cfg.Smoke.TestCategories = []string{"gc"}
	cfg.Smoke.Packages = []string{"jester"}

	rel, err := release.New("nim", "1.4.8", "abc123", "")
	require.NoError(t, err)

	writeTarball(t, cfg, map[string]string{
		"nim-1.4.8/build.sh": "#!/bin/sh\n",
	})

	return cfg, rel
}

// writeTarball stores the source tarball and its checksum file as the downloader would.
func writeTarball(t *testing.T, cfg *config.Config, files map[string]string) {
	t.Helper()

	tarball := filepath.Join(cfg.DownloadDir, "nim-1.4.8.tar.xz")
	archivetest.WriteTarXz(t, tarball, files)

	_, err := checksum.WriteSibling(tarball)
	require.NoError(t, err)
}

// versionHandler answers the version self-check with line and everything else with success.
func versionHandler(line string) func(common.Command) (*common.Result, error) {
	return func(cmd common.Command) (*common.Result, error) {
		if cmd.Name == "bin/nim" && len(cmd.Args) == 1 && cmd.Args[0] == "--version" {
			return &common.Result{Output: []byte(line + "\nCompiled at 2021-05-25\n")}, nil
		}

		return &common.Result{}, nil
	}
}

// TestRun_FullSequence runs every step with the sanitized PATH in the extracted tree.
func TestRun_FullSequence(t *testing.T) {
	t.Parallel()

	cfg, rel := fixture(t)
	executor := &commontest.Executor{Handler: versionHandler("Nim Compiler Version 1.4.8 [Linux: amd64]")}

	outcome, err := Run(context.Background(), &Options{Release: rel, Config: cfg, Executor: executor})
	require.NoError(t, err)
	require.True(t, outcome.Passed)

	tree, err := filepath.Abs(filepath.Join(ScratchDir(cfg.WorkDir, rel), "nim-1.4.8"))
	require.NoError(t, err)

	bin := filepath.Join(tree, "bin")

	require.Equal(t, []string{
		"sh build.sh",
		"bin/nim --version",
		"bin/nim c koch",
		"./koch boot -d:release",
		"./koch tests --nim:bin/nim cat gc",
		bin + "/nimble install -y --nim:" + bin + "/nim jester",
	}, executor.Lines())

	for _, cmd := range executor.Commands() {
		require.Equal(t, tree, cmd.Dir)
		require.Equal(t, []string{"/usr/bin", "/bin", bin}, cmd.Path)
	}

	require.Equal(t, []string{"NIM_EXE_NOT_IN_PATH=NOT_IN_PATH"}, executor.Commands()[4].Env)
	require.Empty(t, executor.Commands()[5].Env)

	_, err = os.Stat(filepath.Join(tree, "build.sh"))
	require.NoError(t, err)
}

// TestRun_VersionMismatchIsSoftFailure skips every later step without an error.
func TestRun_VersionMismatchIsSoftFailure(t *testing.T) {
	t.Parallel()

	cfg, rel := fixture(t)
	executor := &commontest.Executor{Handler: versionHandler("Nim Compiler Version 1.4.6 [Linux: amd64]")}

	core, logs := observer.New(zapcore.DebugLevel)
	ctx := logger.ToContext(context.Background(), zap.New(core).Sugar())

	outcome, err := Run(ctx, &Options{Release: rel, Config: cfg, Executor: executor})
	require.NoError(t, err)
	require.False(t, outcome.Passed)

	failures := logs.FilterMessage("Version check: failure").All()
	require.Len(t, failures, 1)
	require.Equal(t, zapcore.ErrorLevel, failures[0].Level)
	require.Equal(t, "1.4.8", failures[0].ContextMap()["expected"])
	require.Contains(t, outcome.VersionLine, "1.4.6")
	require.Equal(t, []string{"sh build.sh", "bin/nim --version"}, executor.Lines())
}

// TestRun_BuildFailureIsHard aborts with a phase error.
func TestRun_BuildFailureIsHard(t *testing.T) {
	t.Parallel()

	cfg, rel := fixture(t)
	executor := &commontest.Executor{
		Handler: func(common.Command) (*common.Result, error) {
			return &common.Result{ExitCode: 2}, nil
		},
	}

	outcome, err := Run(context.Background(), &Options{Release: rel, Config: cfg, Executor: executor})
	require.Nil(t, outcome)
	require.EqualError(t, err, "FAILURE: sh build.sh\nPHASE: smoke-test")
	require.Len(t, executor.Lines(), 1)
}

// TestRun_CorruptTarballIsHardFailure stops before extracting a tarball that fails its checksum.
func TestRun_CorruptTarballIsHardFailure(t *testing.T) {
	t.Parallel()

	cfg, rel := fixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.DownloadDir, "nim-1.4.8.tar.xz"), []byte("cut short"), 0o644))

	executor := &commontest.Executor{}

	_, err := Run(context.Background(), &Options{Release: rel, Config: cfg, Executor: executor})
	require.ErrorIs(t, err, checksum.ErrChecksumMismatch)
	require.Contains(t, err.Error(), "PHASE: smoke-test")
	require.Empty(t, executor.Commands())
}

// TestRun_ScratchIsFresh removes leftovers from a previous run.
func TestRun_ScratchIsFresh(t *testing.T) {
	t.Parallel()

	cfg, rel := fixture(t)
	leftover := filepath.Join(ScratchDir(cfg.WorkDir, rel), "stale.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(leftover), 0o755))
	require.NoError(t, os.WriteFile(leftover, []byte("x"), 0o644))

	executor := &commontest.Executor{Handler: versionHandler("Nim Compiler Version 1.4.8")}

	_, err := Run(context.Background(), &Options{Release: rel, Config: cfg, Executor: executor})
	require.NoError(t, err)

	_, err = os.Stat(leftover)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestRun_RealProcesses drives the smoke test with shell scripts standing in for the compiler.
func TestRun_RealProcesses(t *testing.T) {
	t.Parallel()

	cfg, rel := fixture(t)

	script := strings.Join([]string{
		"#!/bin/sh",
		"mkdir -p bin",
		"printf '#!/bin/sh\\necho \"Nim Compiler Version 1.4.8\"\\n' > bin/nim",
		"chmod +x bin/nim",
	}, "\n") + "\n"

	writeTarball(t, cfg, map[string]string{
		"nim-1.4.8/build.sh": script,
	})

	cfg.Smoke.SelfHost = [][]string{{"nim", "--version"}}
	cfg.Smoke.TestCommand = []string{"sh", "-c", "test \"$NIM_EXE_NOT_IN_PATH\" = NOT_IN_PATH && echo {category}"}
	cfg.Smoke.InstallCommand = []string{"{bindir}/nim", "{package}"}

	outcome, err := Run(context.Background(), &Options{Release: rel, Config: cfg, Executor: common.NewExecExecutor()})
	require.NoError(t, err)
	require.True(t, outcome.Passed)
	require.Equal(t, "Nim Compiler Version 1.4.8", outcome.VersionLine)
}
