package repackager

import (
	"context"
	"path/filepath"

	"github.com/oshokin/release-pipeline/internal/archive"
	"github.com/oshokin/release-pipeline/internal/checksum"
	"github.com/oshokin/release-pipeline/internal/domain/release"
	"github.com/oshokin/release-pipeline/internal/logger"
	"github.com/oshokin/release-pipeline/internal/service/common"
)

// Phase is the label used in failure banners.
const Phase = "repackage"

// Options are inputs accepted by the repackager.
type Options struct {
	// Release identifies the tarball to convert.
	Release *release.Release
	// Dir is the download directory holding the tarball.
	Dir string
}

// Run writes <base>.tar.gz and its checksum next to <base>.tar.xz.
// Re-running overwrites the previous .tar.gz with identical bytes.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, Phase)

	source := filepath.Join(opts.Dir, opts.Release.LocalName(release.SourceTarball))
	target := filepath.Join(opts.Dir, opts.Release.GzipName(release.SourceTarball))

	if err := checksum.VerifySibling(source); err != nil {
		return common.Fail(Phase, "sha256sum -c "+checksum.SiblingPath(source), err)
	}

	logger.InfoKV(ctx, "Recompressing source tarball", "from", source, "to", target)

	if err := archive.XzToGzip(source, target); err != nil {
		return common.Fail(Phase, "xz -d | gzip -9 "+source, err)
	}

	digest, err := checksum.WriteSibling(target)
	if err != nil {
		return common.Fail(Phase, "sha256 "+target, err)
	}

	logger.InfoKV(ctx, "Gzip tarball stored", "path", target, "sha256", digest)

	return nil
}
