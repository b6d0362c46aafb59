package archive

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ulikunitz/xz"
)

// DefaultFileMode is applied to files produced by this package.
const DefaultFileMode os.FileMode = 0o644

// XzToGzip decompresses the xz file src and recompresses the payload into dst
// with maximum gzip effort. The gzip header carries no name or timestamp, so the
// same input always yields the same bytes. src is only read; dst is replaced
// through a temporary file in its directory.
func XzToGzip(src, dst string) error {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}

	defer func() {
		_ = in.Close()
	}()

	decompressed, err := xz.NewReader(in)
	if err != nil {
		return fmt.Errorf("open xz stream %s: %w", src, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}

	tmpName := tmp.Name()

	// Removing a renamed file fails harmlessly.
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err = recompress(tmp, decompressed); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("recompress %s: %w", src, err)
	}

	if err = tmp.Close(); err != nil {
		return err
	}

	if err = os.Chmod(tmpName, DefaultFileMode); err != nil {
		return err
	}

	return os.Rename(tmpName, dst)
}

func recompress(out io.Writer, payload io.Reader) error {
	writer, err := gzip.NewWriterLevel(out, gzip.BestCompression)
	if err != nil {
		return err
	}

	if _, err = io.Copy(writer, payload); err != nil {
		_ = writer.Close()

		return err
	}

	return writer.Close()
}
