package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/release-pipeline/internal/logger"
)

// MarkerFilename is the run marker created in the download directory.
const MarkerFilename = ".release-pipeline.run"

// ErrAlreadyRunning is returned when a live pipeline process owns the marker.
var ErrAlreadyRunning = errors.New("another release pipeline is already running")

// Guard owns the run marker for the lifetime of one run.
type Guard struct {
	path  string
	runID string
}

// Acquire creates the run marker in dir. An existing marker is honoured only
// while its process is alive and is a pipeline process; otherwise it is stale
// and gets replaced.
func Acquire(ctx context.Context, dir, runID string) (*Guard, error) {
	path := filepath.Join(dir, MarkerFilename)

	if isPipelineRunning(ctx, path) {
		return nil, ErrAlreadyRunning
	}

	marker, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, ErrAlreadyRunning
		}

		return nil, fmt.Errorf("create run marker: %w", err)
	}

	_, err = fmt.Fprintf(marker, "%d %s\n", os.Getpid(), runID)
	if closeErr := marker.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(path)

		return nil, fmt.Errorf("write run marker: %w", err)
	}

	return &Guard{path: path, runID: runID}, nil
}

// Release removes the marker if it still belongs to this run.
func (g *Guard) Release(ctx context.Context) {
	if g == nil {
		return
	}

	_, owner, err := readMarker(g.path)
	if err != nil || owner != g.runID {
		return
	}

	if err = os.Remove(g.path); err != nil {
		logger.WarnKV(ctx, "Unable to remove run marker", "path", g.path, "error", err)
	}
}

// isPipelineRunning reports whether the marker at path belongs to a live pipeline.
// Stale and unreadable markers are removed.
func isPipelineRunning(ctx context.Context, path string) bool {
	pid, runID, err := readMarker(path)

	switch {
	case errors.Is(err, os.ErrNotExist):
		return false
	case err != nil:
		logger.WarnKV(ctx, "Removing unreadable run marker", "path", path, "error", err)
	case isPipelineProcess(pid):
		logger.WarnKV(ctx, "Run marker is held by a live process", "pid", pid, "run_id", runID)

		return true
	default:
		logger.InfoKV(ctx, "Removing stale run marker", "pid", pid, "run_id", runID)
	}

	if err = os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WarnKV(ctx, "Unable to remove run marker", "path", path, "error", err)

		return true
	}

	return false
}

var errMalformedMarker = errors.New("malformed run marker")

func readMarker(path string) (int, string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return 0, "", err
	}

	fields := strings.Fields(string(contents))
	if len(fields) != 2 {
		return 0, "", errMalformedMarker
	}

	pid, err := strconv.Atoi(fields[0])
	if err != nil || pid <= 0 {
		return 0, "", errMalformedMarker
	}

	return pid, fields[1], nil
}

// isPipelineProcess checks that pid is alive and runs the same executable as we do.
func isPipelineProcess(pid int) bool {
	process, err := ps.FindProcess(pid)
	if err != nil || process == nil {
		return false
	}

	return process.Executable() == selfExecutable()
}

func selfExecutable() string {
	self, err := ps.FindProcess(os.Getpid())
	if err == nil && self != nil {
		return self.Executable()
	}

	return filepath.Base(os.Args[0])
}
