package channel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oshokin/release-pipeline/internal/domain/release"
	"github.com/oshokin/release-pipeline/internal/logger"
	repo "github.com/oshokin/release-pipeline/internal/repository/channel"
	"github.com/oshokin/release-pipeline/internal/service/common"
)

// Phase is the label used in failure banners.
const Phase = "update"

// DocsLinkName is the public symlink pointing at the current docs folder.
const DocsLinkName = "docs"

var errSymlinkMismatch = errors.New("docs symlink points elsewhere")

// Options are inputs accepted by the channel updater.
type Options struct {
	// Release is the candidate for promotion.
	Release *release.Release
	// WebRoot holds the version folders, the docs symlink and the channels directory.
	WebRoot string
	// Repository overrides the stable-channel store; the web root file is used when nil.
	Repository repo.Repository
}

// Decision describes what the updater did.
type Decision struct {
	// Promoted is true when the candidate became the stable version.
	Promoted bool
	// Previous is the stable version before this run (0.0.0 when none).
	Previous release.Version
	// Candidate is the version that was considered.
	Candidate release.Version
}

// Run compares the candidate with the recorded stable version and promotes it if newer.
func Run(ctx context.Context, opts *Options) (*Decision, error) {
	ctx = logger.WithName(ctx, Phase)

	store := opts.Repository
	if store == nil {
		store = repo.NewStableRepository(opts.WebRoot)
	}

	previous, err := store.Load(ctx)

	switch {
	case errors.Is(err, repo.ErrNotFound):
		logger.Info(ctx, "No stable channel record yet, assuming 0.0.0")

		previous = release.Zero
	case err != nil:
		return nil, common.Fail(Phase, "read stable channel", err)
	}

	decision := &Decision{
		Previous:  previous,
		Candidate: opts.Release.Version,
	}

	if !release.IsNewer(decision.Candidate, previous) {
		logger.InfoKV(ctx, "Stable version unchanged",
			"stable", previous.String(),
			"candidate", decision.Candidate.String(),
			"release_candidate", decision.Candidate.IsReleaseCandidate())

		return decision, nil
	}

	link := filepath.Join(opts.WebRoot, DocsLinkName)

	if err = PointSymlink(link, decision.Candidate.String()); err != nil {
		return nil, common.Fail(Phase, "ln -sfn "+decision.Candidate.String()+" "+link, err)
	}

	entries, err := VerifySymlink(link, decision.Candidate.String())
	if err != nil {
		return nil, common.Fail(Phase, "ls "+link, err)
	}

	logger.InfoKV(ctx, "Docs symlink updated", "link", link, "target", decision.Candidate.String(), "entries", entries)

	if err = store.Save(ctx, decision.Candidate); err != nil {
		return nil, common.Fail(Phase, "write stable channel", err)
	}

	decision.Promoted = true

	logger.InfoKV(ctx, "Stable channel promoted", "from", previous.String(), "to", decision.Candidate.String())

	return decision, nil
}

// PointSymlink atomically makes link point at target by renaming a fresh symlink over it.
func PointSymlink(link, target string) error {
	if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
		return err
	}

	tmp := filepath.Join(filepath.Dir(link), "."+filepath.Base(link)+".new")
	_ = os.Remove(tmp)

	if err := os.Symlink(target, tmp); err != nil {
		return err
	}

	if err := os.Rename(tmp, link); err != nil {
		_ = os.Remove(tmp)

		return err
	}

	return nil
}

// VerifySymlink checks the link target and lists the linked directory.
// It returns the number of entries found.
func VerifySymlink(link, target string) (int, error) {
	actual, err := os.Readlink(link)
	if err != nil {
		return 0, err
	}

	if actual != target {
		return 0, fmt.Errorf("%s -> %s, want %s: %w", link, actual, target, errSymlinkMismatch)
	}

	entries, err := os.ReadDir(link)
	if err != nil {
		return 0, err
	}

	return len(entries), nil
}
