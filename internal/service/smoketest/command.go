package smoketest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/release-pipeline/internal/archive"
	"github.com/oshokin/release-pipeline/internal/checksum"
	"github.com/oshokin/release-pipeline/internal/config"
	"github.com/oshokin/release-pipeline/internal/domain/release"
	"github.com/oshokin/release-pipeline/internal/logger"
	"github.com/oshokin/release-pipeline/internal/service/common"
)

// Phase is the label used in failure banners.
const Phase = "smoke-test"

// defaultDirMode is used for the scratch directory.
const defaultDirMode os.FileMode = 0o755

// Options are inputs accepted by the smoke tester.
type Options struct {
	// Release identifies the tarball under test.
	Release *release.Release
	// Config provides directories, the smoke settings and the minimal PATH.
	Config *config.Config
	// Executor runs build, test and install commands.
	Executor common.Executor
}

// Outcome reports how far the smoke test got.
type Outcome struct {
	// Passed is false when the version self-check did not match.
	Passed bool
	// VersionLine is the first line printed by the version self-check.
	VersionLine string
}

// tester holds the per-run state of one smoke test.
type tester struct {
	opts         *Options
	tree         string
	path         []string
	placeholders map[string]string
}

// Run performs the smoke test. A hard failure is returned as an error; a
// version mismatch yields Outcome.Passed == false and a nil error.
func Run(ctx context.Context, opts *Options) (*Outcome, error) {
	ctx = logger.WithName(ctx, Phase)

	t, err := prepare(ctx, opts)
	if err != nil {
		return nil, err
	}

	cfg := opts.Config.Smoke

	logger.Info(ctx, "Building from the released tarball")

	if err = t.runAll(ctx, cfg.Bootstrap, nil); err != nil {
		return nil, err
	}

	outcome, err := t.checkVersion(ctx)
	if err != nil || !outcome.Passed {
		return outcome, err
	}

	logger.Info(ctx, "Bootstrapping with the freshly built compiler")

	if err = t.runAll(ctx, cfg.SelfHost, nil); err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Running test categories", "categories", cfg.TestCategories)

	for _, category := range cfg.TestCategories {
		argv := common.Expand(cfg.TestCommand, map[string]string{"category": category})
		if err = t.run(ctx, argv, cfg.TestEnv); err != nil {
			return nil, err
		}
	}

	logger.InfoKV(ctx, "Installing packages", "packages", cfg.Packages)

	for _, pkg := range cfg.Packages {
		argv := common.Expand(cfg.InstallCommand, map[string]string{"package": pkg})
		if err = t.run(ctx, argv, nil); err != nil {
			return nil, err
		}
	}

	logger.Info(ctx, "Smoke test passed")

	return outcome, nil
}

// prepare copies the tarball into a fresh scratch directory and extracts it.
func prepare(ctx context.Context, opts *Options) (*tester, error) {
	rel := opts.Release

	scratch, err := filepath.Abs(ScratchDir(opts.Config.WorkDir, rel))
	if err != nil {
		return nil, common.Fail(Phase, "resolve scratch directory", err)
	}

	if err = os.RemoveAll(scratch); err != nil {
		return nil, common.Fail(Phase, "rm -rf "+scratch, err)
	}

	if err = os.MkdirAll(scratch, defaultDirMode); err != nil {
		return nil, common.Fail(Phase, "mkdir "+scratch, err)
	}

	name := rel.LocalName(release.SourceTarball)
	source := filepath.Join(opts.Config.DownloadDir, name)
	copied := filepath.Join(scratch, name)

	logger.InfoKV(ctx, "Preparing scratch directory", "tarball", source, "scratch", scratch)

	if err = checksum.VerifySibling(source); err != nil {
		return nil, common.Fail(Phase, "sha256sum -c "+checksum.SiblingPath(source), err)
	}

	if err = copyFile(source, copied); err != nil {
		return nil, common.Fail(Phase, "cp "+source+" "+scratch, err)
	}

	if err = archive.Extract(copied, scratch); err != nil {
		return nil, common.Fail(Phase, "tar -xf "+copied, err)
	}

	tree := filepath.Join(scratch, rel.Base())
	bin := filepath.Join(tree, "bin")

	placeholders := rel.Placeholders()
	placeholders["bindir"] = bin

	return &tester{
		opts:         opts,
		tree:         tree,
		path:         append(append([]string(nil), opts.Config.MinimalPath...), bin),
		placeholders: placeholders,
	}, nil
}

// ScratchDir returns the smoke test scratch directory for a release.
func ScratchDir(workDir string, rel *release.Release) string {
	return filepath.Join(workDir, "smoke-"+rel.Version.String())
}

// checkVersion runs the fresh binary with the version flag and inspects the first line.
func (t *tester) checkVersion(ctx context.Context) (*Outcome, error) {
	cfg := t.opts.Config.Smoke
	argv := t.expand([]string{cfg.Binary, cfg.VersionFlag})
	cmd := common.NewCommand(argv...).In(t.tree).WithPath(t.path...)

	result, err := t.opts.Executor.Run(ctx, cmd)
	if err = common.Check(Phase, cmd, result, err); err != nil {
		return nil, err
	}

	expected := t.opts.Release.Version.String()
	outcome := &Outcome{VersionLine: result.FirstLine()}

	if !strings.Contains(outcome.VersionLine, expected) {
		logger.ErrorKV(ctx, "Version check: failure", "expected", expected, "got", outcome.VersionLine)

		return outcome, nil
	}

	logger.InfoKV(ctx, "Version check: success", "version", outcome.VersionLine)

	outcome.Passed = true

	return outcome, nil
}

// runAll runs each argv in order, stopping at the first failure.
func (t *tester) runAll(ctx context.Context, commands [][]string, env []string) error {
	for _, argv := range commands {
		if err := t.run(ctx, argv, env); err != nil {
			return err
		}
	}

	return nil
}

// run executes one command in the extracted tree under the sanitized PATH.
func (t *tester) run(ctx context.Context, argv, env []string) error {
	cmd := common.NewCommand(t.expand(argv)...).In(t.tree).WithPath(t.path...)
	if len(env) > 0 {
		cmd = cmd.WithEnv(env...)
	}

	logger.InfoKV(ctx, "Running", "command", cmd.String())

	result, err := t.opts.Executor.Run(ctx, cmd)

	return common.Check(Phase, cmd, result, err)
}

func (t *tester) expand(argv []string) []string {
	return common.Expand(argv, t.placeholders)
}

// copyFile copies src to dst, replacing dst.
func copyFile(src, dst string) error {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}

	defer func() {
		_ = in.Close()
	}()

	out, err := os.Create(filepath.Clean(dst))
	if err != nil {
		return err
	}

	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()

		return fmt.Errorf("copy %s: %w", src, err)
	}

	return out.Close()
}
