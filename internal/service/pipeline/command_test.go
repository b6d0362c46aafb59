package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/release-pipeline/internal/archive/archivetest"
	"github.com/oshokin/release-pipeline/internal/config"
	"github.com/oshokin/release-pipeline/internal/service/common"
	"github.com/oshokin/release-pipeline/internal/service/common/commontest"
)

const buildHash = "2021-05-25-version-1-4-abc123"

// fixture serves a two-artifact store for 1.4.8 and returns a config rooted in a temp dir.
func fixture(t *testing.T) *config.Config {
	t.Helper()

	root := t.TempDir()
	store := filepath.Join(root, "store")

	archivetest.WriteTarXz(t, filepath.Join(store, "nim-1.4.8.tar.xz"), map[string]string{
		"nim-1.4.8/build.sh": "#!/bin/sh\n",
	})
	archivetest.WriteTarXz(t, filepath.Join(store, "nim-1.4.8-linux_x64.tar.xz"), map[string]string{
		"nim-1.4.8/doc/html/index.html":    "<html>1.4.8</html>",
		"nim-1.4.8/doc/html/overview.html": "<html>overview</html>",
	})

	server := httptest.NewServer(http.StripPrefix("/"+buildHash+"/", http.FileServer(http.Dir(store))))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.ArtifactBaseURL = server.URL
	cfg.DownloadDir = filepath.Join(root, "download")
	cfg.WebRoot = filepath.Join(root, "public")
	cfg.WorkDir = filepath.Join(root, "work")
	cfg.Artifacts = []config.Artifact{
		{Suffix: "", Ext: "tar.xz"},
		{Suffix: "-linux_x64", Ext: "tar.xz"},
	}
	cfg.Smoke.TestCategories = []string{"gc"}
	cfg.Smoke.Packages = nil

	return cfg
}

// versionExecutor answers the version self-check with line.
func versionExecutor(line string) *commontest.Executor {
	return &commontest.Executor{
		Handler: func(cmd common.Command) (*common.Result, error) {
			if len(cmd.Args) == 1 && cmd.Args[0] == "--version" {
				return &common.Result{Output: []byte(line + "\n")}, nil
			}

			return &common.Result{}, nil
		},
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	contents, err := os.ReadFile(path)
	require.NoError(t, err)

	return string(contents)
}

func TestPlan(t *testing.T) {
	t.Parallel()

	all, err := Plan(CommandAll)
	require.NoError(t, err)
	require.Equal(t, []string{"download", "docs", "repackage", "smoke-test", "update"}, all)

	build, err := Plan(CommandBuild)
	require.NoError(t, err)

	docs, err := Plan(CommandDocs)
	require.NoError(t, err)
	require.Equal(t, build, docs)

	for _, command := range Commands() {
		_, err = Plan(command)
		require.NoError(t, err, command)
	}

	_, err = Plan("publish")
	require.ErrorIs(t, err, errUnknownCommand)
}

// TestRun_All runs every phase against a local artifact store.
func TestRun_All(t *testing.T) {
	t.Parallel()

	cfg := fixture(t)

	report, err := Run(context.Background(), &Options{
		Config:    cfg,
		Command:   CommandAll,
		Version:   "1.4.8",
		BuildHash: buildHash,
		Executor:  versionExecutor("Nim Compiler Version 1.4.8 [Linux: amd64]"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, report.RunID)
	require.Equal(t, []string{"download", "docs", "repackage", "smoke-test", "update"}, report.Phases)
	require.True(t, report.Smoke.Passed)
	require.True(t, report.Promotion.Promoted)

	for _, name := range []string{
		"nim-1.4.8.tar.xz",
		"nim-1.4.8.tar.xz.sha256",
		"nim-1.4.8-linux_x64.tar.xz.sha256",
		"nim-1.4.8.tar.gz",
		"nim-1.4.8.tar.gz.sha256",
	} {
		require.FileExists(t, filepath.Join(cfg.DownloadDir, name))
	}

	require.Equal(t, "<html>1.4.8</html>", readFile(t, filepath.Join(cfg.WebRoot, "docs", "index.html")))
	require.Equal(t, "1.4.8\n", readFile(t, filepath.Join(cfg.WebRoot, "channels", "stable")))
	require.NoFileExists(t, filepath.Join(cfg.DownloadDir, MarkerFilename))
}

// TestRun_RequireSmokeTestWithholdsPromotion skips the update after a soft failure.
func TestRun_RequireSmokeTestWithholdsPromotion(t *testing.T) {
	t.Parallel()

	cfg := fixture(t)
	cfg.Promotion.RequireSmokeTest = true

	report, err := Run(context.Background(), &Options{
		Config:    cfg,
		Command:   CommandAll,
		Version:   "1.4.8",
		BuildHash: buildHash,
		Executor:  versionExecutor("Nim Compiler Version 1.4.6"),
	})
	require.NoError(t, err)
	require.False(t, report.Smoke.Passed)
	require.Nil(t, report.Promotion)
	require.Equal(t, []string{"download", "docs", "repackage", "smoke-test"}, report.Phases)
	require.NoFileExists(t, filepath.Join(cfg.WebRoot, "channels", "stable"))
}

// TestRun_SoftFailureDoesNotBlockPromotionByDefault keeps the update independent of the smoke outcome.
func TestRun_SoftFailureDoesNotBlockPromotionByDefault(t *testing.T) {
	t.Parallel()

	cfg := fixture(t)

	report, err := Run(context.Background(), &Options{
		Config:    cfg,
		Command:   CommandAll,
		Version:   "1.4.8",
		BuildHash: buildHash,
		Executor:  versionExecutor("Nim Compiler Version 1.4.6"),
	})
	require.NoError(t, err)
	require.False(t, report.Smoke.Passed)
	require.True(t, report.Promotion.Promoted)
}

// TestRun_DownloadFailureStopsTheRun leaves later phases untouched.
func TestRun_DownloadFailureStopsTheRun(t *testing.T) {
	t.Parallel()

	cfg := fixture(t)
	cfg.Artifacts = append(cfg.Artifacts, config.Artifact{Suffix: "_x64", Ext: "zip"})

	executor := versionExecutor("Nim Compiler Version 1.4.8")

	report, err := Run(context.Background(), &Options{
		Config:    cfg,
		Command:   CommandAll,
		Version:   "1.4.8",
		BuildHash: buildHash,
		Executor:  executor,
	})

	var phaseErr *common.PhaseError

	require.True(t, errors.As(err, &phaseErr))
	require.Equal(t, "download", phaseErr.Phase)
	require.Empty(t, report.Phases)
	require.Empty(t, executor.Commands())
	require.NoDirExists(t, cfg.WebRoot)
	require.NoFileExists(t, filepath.Join(cfg.DownloadDir, MarkerFilename))
}

// TestRun_MalformedVersionIsInitFailure rejects the input before any phase runs.
func TestRun_MalformedVersionIsInitFailure(t *testing.T) {
	t.Parallel()

	cfg := fixture(t)

	_, err := Run(context.Background(), &Options{
		Config:    cfg,
		Command:   CommandDownload,
		Version:   "1.4",
		BuildHash: buildHash,
	})

	var phaseErr *common.PhaseError

	require.True(t, errors.As(err, &phaseErr))
	require.Equal(t, Phase, phaseErr.Phase)
	require.NoDirExists(t, cfg.DownloadDir)
}

// TestRun_HotfixOverride fetches the hotfix-marked remote names.
func TestRun_HotfixOverride(t *testing.T) {
	t.Parallel()

	cfg := fixture(t)
	store := t.TempDir()

	archivetest.WriteTarXz(t, filepath.Join(store, "nim-1.4.8-hotfix2.tar.xz"), map[string]string{
		"nim-1.4.8/build.sh": "#!/bin/sh\n",
	})

	server := httptest.NewServer(http.StripPrefix("/"+buildHash+"/", http.FileServer(http.Dir(store))))
	t.Cleanup(server.Close)

	cfg.ArtifactBaseURL = server.URL
	cfg.Artifacts = cfg.Artifacts[:1]

	_, err := Run(context.Background(), &Options{
		Config:    cfg,
		Command:   CommandDownload,
		Version:   "1.4.8",
		BuildHash: buildHash,
		Hotfix:    "-hotfix2",
	})
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(cfg.DownloadDir, "nim-1.4.8.tar.xz"))
}

// TestRun_LiveMarkerBlocksTheRun refuses to start while another pipeline holds the marker.
func TestRun_LiveMarkerBlocksTheRun(t *testing.T) {
	t.Parallel()

	cfg := fixture(t)
	marker := filepath.Join(cfg.DownloadDir, MarkerFilename)

	require.NoError(t, os.MkdirAll(cfg.DownloadDir, 0o755))
	require.NoError(t, os.WriteFile(marker, fmt.Appendf(nil, "%d other-run\n", os.Getpid()), 0o644))

	_, err := Run(context.Background(), &Options{
		Config:    cfg,
		Command:   CommandDownload,
		Version:   "1.4.8",
		BuildHash: buildHash,
	})
	require.ErrorIs(t, err, ErrAlreadyRunning)
	require.FileExists(t, marker)
	require.NoFileExists(t, filepath.Join(cfg.DownloadDir, "nim-1.4.8.tar.xz"))
}
