package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/oshokin/release-pipeline/internal/checksum"
	"github.com/oshokin/release-pipeline/internal/domain/release"
	"github.com/oshokin/release-pipeline/internal/logger"
	"github.com/oshokin/release-pipeline/internal/service/common"
)

// Phase is the label used in failure banners.
const Phase = "download"

const (
	// defaultDirMode is used when creating the download directory.
	defaultDirMode os.FileMode = 0o755
	// artifactFileMode is used for downloaded artifacts, which are served publicly.
	artifactFileMode os.FileMode = 0o644
)

var errBadHTTPStatus = errors.New("unexpected http status")

// Options are inputs accepted by the downloader.
type Options struct {
	// Release identifies the version and nightly build.
	Release *release.Release
	// Artifacts is the set of files to fetch.
	Artifacts []release.Artifact
	// BaseURL is the artifact store root.
	BaseURL string
	// Dir receives the artifacts.
	Dir string
	// Client performs the requests; http.DefaultClient when nil.
	Client *http.Client
}

// Run downloads every artifact and writes its checksum file.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, Phase)

	if err := os.MkdirAll(opts.Dir, defaultDirMode); err != nil {
		return common.Fail(Phase, "mkdir "+opts.Dir, err)
	}

	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}

	for _, artifact := range opts.Artifacts {
		source, err := artifactURL(opts.BaseURL, opts.Release.BuildHash, opts.Release.RemoteName(artifact))
		if err != nil {
			return common.Fail(Phase, "parse artifact URL", err)
		}

		target := filepath.Join(opts.Dir, opts.Release.LocalName(artifact))

		logger.InfoKV(ctx, "Downloading artifact", "url", source, "path", target)

		if err = fetch(ctx, client, source, target); err != nil {
			return common.Fail(Phase, "GET "+source, err)
		}

		digest, err := checksum.WriteSibling(target)
		if err != nil {
			return common.Fail(Phase, "sha256 "+target, err)
		}

		logger.InfoKV(ctx, "Artifact stored", "path", target, "sha256", digest)
	}

	return nil
}

// artifactURL composes <base>/<hash>/<name>.
func artifactURL(base, buildHash, name string) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	// Use path.Join to normalize duplicate slashes when composing the URL path.
	parsed.Path = path.Join(parsed.Path, buildHash, name)

	return parsed.String(), nil
}

// fetch streams the response body of a GET request into target.
func fetch(ctx context.Context, client *http.Client, source, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, http.NoBody)
	if err != nil {
		return err
	}

	response, err := client.Do(req)
	if err != nil {
		return err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%s, %s: %w", source, response.Status, errBadHTTPStatus)
	}

	// The body lands in a temporary file first, so an interrupted transfer
	// leaves any previous artifact and its checksum file untouched.
	out, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+"-*.part")
	if err != nil {
		return err
	}

	tmpName := out.Name()

	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err = io.Copy(out, response.Body); err != nil {
		_ = out.Close()

		return err
	}

	if err = out.Close(); err != nil {
		return err
	}

	if err = os.Chmod(tmpName, artifactFileMode); err != nil {
		return err
	}

	return os.Rename(tmpName, filepath.Clean(target))
}
