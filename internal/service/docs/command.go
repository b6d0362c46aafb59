package docs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oshokin/release-pipeline/internal/config"
	"github.com/oshokin/release-pipeline/internal/domain/release"
	"github.com/oshokin/release-pipeline/internal/logger"
	"github.com/oshokin/release-pipeline/internal/service/common"
)

// Phase is the label used in failure banners.
const Phase = "docs"

// defaultDirMode is used for directories created by this phase.
const defaultDirMode os.FileMode = 0o755

var errNotDirectory = errors.New("not a directory")

// Options are inputs accepted by the documentation stager.
type Options struct {
	// Release identifies the version being documented.
	Release *release.Release
	// Config provides directories, the docs settings and the minimal PATH.
	Config *config.Config
	// Executor runs version-control and build commands.
	Executor common.Executor
}

// Run stages documentation with the configured strategy.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, Phase)

	var (
		source string
		err    error
	)

	switch opts.Config.Docs.Strategy {
	case config.StrategyBuild:
		source, err = build(ctx, opts)
	default:
		var cleanup func()

		source, cleanup, err = extract(ctx, opts)
		if cleanup != nil {
			defer cleanup()
		}
	}

	if err != nil {
		return err
	}

	target := PublicDir(opts.Config.WebRoot, opts.Release.Version)

	logger.InfoKV(ctx, "Publishing documentation", "from", source, "to", target)

	if err = publish(source, target); err != nil {
		return common.Fail(Phase, "copy "+source+" "+target, err)
	}

	return nil
}

// PublicDir returns <web-root>/<version>.
func PublicDir(webRoot string, version release.Version) string {
	return filepath.Join(webRoot, version.String())
}

// publish replaces target with a copy of the source tree.
func publish(source, target string) error {
	info, err := os.Stat(source)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("%s: %w", source, errNotDirectory)
	}

	if err = os.RemoveAll(target); err != nil {
		return err
	}

	if err = os.MkdirAll(filepath.Dir(target), defaultDirMode); err != nil {
		return err
	}

	return os.CopyFS(target, os.DirFS(source))
}
