package docs

import (
	"context"
	"os"
	"path/filepath"

	"github.com/oshokin/release-pipeline/internal/archive"
	"github.com/oshokin/release-pipeline/internal/domain/release"
	"github.com/oshokin/release-pipeline/internal/logger"
	"github.com/oshokin/release-pipeline/internal/service/common"
)

// extract unpacks the configured archive into a scratch directory and returns
// the embedded documentation tree plus a cleanup removing the scratch directory.
func extract(ctx context.Context, opts *Options) (string, func(), error) {
	cfg := opts.Config.Docs
	artifact := release.Artifact{Suffix: cfg.ArchiveSuffix, Ext: cfg.ArchiveExt}
	source := filepath.Join(opts.Config.DownloadDir, opts.Release.LocalName(artifact))

	if err := os.MkdirAll(opts.Config.WorkDir, defaultDirMode); err != nil {
		return "", nil, common.Fail(Phase, "mkdir "+opts.Config.WorkDir, err)
	}

	scratch, err := os.MkdirTemp(opts.Config.WorkDir, "docs-")
	if err != nil {
		return "", nil, common.Fail(Phase, "mkdir scratch", err)
	}

	cleanup := func() {
		if err := os.RemoveAll(scratch); err != nil {
			logger.WarnKV(ctx, "Unable to remove scratch directory", "path", scratch, "error", err)
		}
	}

	logger.InfoKV(ctx, "Extracting documentation archive", "archive", source, "scratch", scratch)

	if err = archive.Extract(source, scratch); err != nil {
		return "", cleanup, common.Fail(Phase, "extract "+source, err)
	}

	docDir := common.Expand([]string{cfg.ArchiveDocDir}, opts.Release.Placeholders())[0]

	return filepath.Join(scratch, filepath.FromSlash(docDir)), cleanup, nil
}
