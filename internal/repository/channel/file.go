package channel

import (
	"bytes"
	"context"
	"crypto"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/release-pipeline/internal/domain/release"

	// Ensure SHA256 available for update verification.
	_ "crypto/sha256"
)

// Repository defines persistence operations for a release channel.
type Repository interface {
	Load(ctx context.Context) (release.Version, error)
	Save(ctx context.Context, version release.Version) error
}

const (
	// DirName is the directory under the web root holding channel files.
	DirName = "channels"
	// StableName is the file name of the stable channel.
	StableName = "stable"

	// DefaultFileMode is used for channel files, which are served publicly.
	DefaultFileMode os.FileMode = 0o644
	// defaultDirMode is used when creating the channels directory.
	defaultDirMode os.FileMode = 0o755
)

// ErrNotFound is returned when the channel file does not exist yet.
var ErrNotFound = errors.New("channel record not found")

// FileRepository persists a channel as "<version>\n" in a plain text file.
type FileRepository struct {
	// path is the filesystem location of the channel file.
	path string
	// mu serialises access to the channel file within this process.
	mu sync.Mutex
}

// NewFileRepository creates a repository that reads and writes the file at path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// NewStableRepository returns the repository for <webRoot>/channels/stable.
func NewStableRepository(webRoot string) *FileRepository {
	return NewFileRepository(filepath.Join(webRoot, DirName, StableName))
}

// Load reads the recorded version. A malformed record is an error.
func (r *FileRepository) Load(_ context.Context) (release.Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return release.Zero, ErrNotFound
		}

		return release.Zero, fmt.Errorf("read channel file: %w", err)
	}

	version, err := release.ParseVersion(string(contents))
	if err != nil {
		return release.Zero, fmt.Errorf("decode channel file %s: %w", r.path, err)
	}

	return version, nil
}

// Save replaces the channel file content with the given version in one step.
func (r *FileRepository) Save(_ context.Context, version release.Version) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), defaultDirMode); err != nil {
		return fmt.Errorf("create channel directory: %w", err)
	}

	data := []byte(version.String() + "\n")

	if _, err := os.Stat(r.path); errors.Is(err, os.ErrNotExist) {
		return r.create(data)
	}

	hasher := crypto.SHA256.New()
	_, _ = hasher.Write(data)

	options := goupdate.Options{
		TargetPath: r.path,
		TargetMode: DefaultFileMode,
		Checksum:   hasher.Sum(nil),
		Hash:       crypto.SHA256,
	}

	if err := goupdate.Apply(bytes.NewReader(data), options); err != nil {
		return fmt.Errorf("replace channel file: %w", err)
	}

	return nil
}

// create writes a brand-new channel file through a renamed temporary file.
func (r *FileRepository) create(data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(r.path), "."+filepath.Base(r.path)+"-*.new")
	if err != nil {
		return fmt.Errorf("create channel file: %w", err)
	}

	tmpName := tmp.Name()

	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("write channel file: %w", err)
	}

	if err = tmp.Close(); err != nil {
		return err
	}

	if err = os.Chmod(tmpName, DefaultFileMode); err != nil {
		return err
	}

	return os.Rename(tmpName, r.path)
}
