package docs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/release-pipeline/internal/logger"
	"github.com/oshokin/release-pipeline/internal/service/common"
)

// cacheBustParam is appended to the stylesheet reference.
const cacheBustParam = "?v="

var errStylesheetRefMissing = errors.New("stylesheet reference not found")

// build produces the documentation from a source checkout and returns its output directory.
func build(ctx context.Context, opts *Options) (string, error) {
	cfg := opts.Config.Docs
	rel := opts.Release

	checkout, err := filepath.Abs(CheckoutDir(opts.Config.WorkDir, rel.Base()))
	if err != nil {
		return "", common.Fail(Phase, "resolve checkout directory", err)
	}

	if err = cloneIfMissing(ctx, opts, checkout); err != nil {
		return "", err
	}

	for _, argv := range [][]string{
		{"git", "checkout", rel.Version.Branch()},
		{"git", "pull"},
	} {
		if err = run(ctx, opts.Executor, common.NewCommand(argv...).In(checkout)); err != nil {
			return "", err
		}
	}

	output := filepath.Join(checkout, filepath.FromSlash(cfg.OutputDir))

	if AlreadyBuilt(checkout, cfg.OutputManifest) {
		logger.InfoKV(ctx, "Documentation already built, skipping", "manifest", cfg.OutputManifest)

		return output, nil
	}

	stylesheet := filepath.Join(checkout, filepath.FromSlash(cfg.StylesheetFile))
	if err = PatchStylesheet(stylesheet, cfg.StylesheetRef, rel.Version.String()); err != nil {
		return "", common.Fail(Phase, "patch "+stylesheet, err)
	}

	path := append(append([]string(nil), opts.Config.MinimalPath...), filepath.Join(checkout, "bin"))
	placeholders := rel.Placeholders()

	commands := append(append([][]string(nil), cfg.Bootstrap...), cfg.Build)
	for _, argv := range commands {
		cmd := common.NewCommand(common.Expand(argv, placeholders)...).In(checkout).WithPath(path...)
		if err = run(ctx, opts.Executor, cmd); err != nil {
			return "", err
		}
	}

	return output, nil
}

// CheckoutDir returns the version-scoped source checkout location.
func CheckoutDir(workDir, base string) string {
	return filepath.Join(workDir, base+"-src")
}

// AlreadyBuilt reports whether a previous run left the output manifest behind.
func AlreadyBuilt(checkout, manifest string) bool {
	if manifest == "" {
		return false
	}

	_, err := os.Stat(filepath.Join(checkout, filepath.FromSlash(manifest)))

	return err == nil
}

// cloneIfMissing clones the repository unless the checkout directory exists.
func cloneIfMissing(ctx context.Context, opts *Options, checkout string) error {
	if _, err := os.Stat(checkout); err == nil {
		logger.InfoKV(ctx, "Source checkout exists, skipping clone", "path", checkout)

		return nil
	}

	if err := os.MkdirAll(filepath.Dir(checkout), defaultDirMode); err != nil {
		return common.Fail(Phase, "mkdir "+filepath.Dir(checkout), err)
	}

	return run(ctx, opts.Executor, common.NewCommand("git", "clone", opts.Config.Docs.Repository, checkout))
}

// PatchStylesheet appends a cache-busting query parameter to the first line
// referencing ref. A line that is already patched is left alone.
func PatchStylesheet(path, ref, version string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return err
	}

	lines := strings.SplitAfter(string(contents), "\n")
	for i, line := range lines {
		if !strings.Contains(line, ref) {
			continue
		}

		if strings.Contains(line, ref+cacheBustParam) {
			return nil
		}

		lines[i] = strings.Replace(line, ref, ref+cacheBustParam+version, 1)

		return os.WriteFile(path, []byte(strings.Join(lines, "")), info.Mode().Perm())
	}

	return fmt.Errorf("%s in %s: %w", ref, path, errStylesheetRefMissing)
}

// run executes cmd and converts failures into phase errors.
func run(ctx context.Context, executor common.Executor, cmd common.Command) error {
	logger.InfoKV(ctx, "Running", "command", cmd.String(), "dir", cmd.Dir)

	result, err := executor.Run(ctx, cmd)

	return common.Check(Phase, cmd, result, err)
}
