package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
)

const (
	// DefaultDirMode is used for directories created during extraction.
	DefaultDirMode os.FileMode = 0o755

	extTarXz = ".tar.xz"
	extTarGz = ".tar.gz"
	extZip   = ".zip"
)

var (
	errUnsupportedFormat = errors.New("unsupported archive format")
	errUnsafePath        = errors.New("archive entry escapes destination")
)

// Extract unpacks src into dst, choosing the format from the file extension.
func Extract(src, dst string) error {
	if err := os.MkdirAll(dst, DefaultDirMode); err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	switch name := strings.ToLower(src); {
	case strings.HasSuffix(name, extTarXz):
		return extractTar(src, dst, func(r io.Reader) (io.Reader, error) {
			return xz.NewReader(r)
		})
	case strings.HasSuffix(name, extTarGz):
		return extractTar(src, dst, func(r io.Reader) (io.Reader, error) {
			return gzip.NewReader(r)
		})
	case strings.HasSuffix(name, extZip):
		return extractZip(src, dst)
	default:
		return fmt.Errorf("%s: %w", src, errUnsupportedFormat)
	}
}

// extractTar streams a compressed tarball into dst.
func extractTar(src, dst string, decompress func(io.Reader) (io.Reader, error)) error {
	file, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}

	defer func() {
		_ = file.Close()
	}()

	stream, err := decompress(file)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}

	reader := tar.NewReader(stream)

	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("read %s: %w", src, err)
		}

		target, err := safeJoin(dst, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err = os.MkdirAll(target, DefaultDirMode); err != nil {
				return err
			}
		case tar.TypeReg:
			if err = writeFile(target, reader, header.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err = writeSymlink(target, header.Linkname); err != nil {
				return err
			}
		case tar.TypeLink:
			var source string

			source, err = safeJoin(dst, header.Linkname)
			if err != nil {
				return err
			}

			if err = os.Link(source, target); err != nil {
				return fmt.Errorf("link %s: %w", target, err)
			}
		default:
			// Device nodes, fifos and pax records carry nothing a release needs.
		}
	}
}

// extractZip unpacks a zip archive into dst.
func extractZip(src, dst string) error {
	reader, err := zip.OpenReader(filepath.Clean(src))
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}

	defer func() {
		_ = reader.Close()
	}()

	for _, entry := range reader.File {
		if err = extractZipEntry(entry, dst); err != nil {
			return err
		}
	}

	return nil
}

func extractZipEntry(entry *zip.File, dst string) error {
	target, err := safeJoin(dst, entry.Name)
	if err != nil {
		return err
	}

	mode := entry.Mode()
	if mode.IsDir() {
		return os.MkdirAll(target, DefaultDirMode)
	}

	contents, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", entry.Name, err)
	}

	defer func() {
		_ = contents.Close()
	}()

	if mode&os.ModeSymlink != 0 {
		linkname, err := io.ReadAll(contents)
		if err != nil {
			return err
		}

		return writeSymlink(target, string(linkname))
	}

	perm := mode.Perm()
	if perm == 0 {
		perm = 0o644
	}

	return writeFile(target, contents, perm)
}

func writeFile(target string, contents io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), DefaultDirMode); err != nil {
		return err
	}

	out, err := os.OpenFile(filepath.Clean(target), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}

	if _, err = io.Copy(out, contents); err != nil {
		_ = out.Close()

		return fmt.Errorf("write %s: %w", target, err)
	}

	return out.Close()
}

func writeSymlink(target, linkname string) error {
	if err := os.MkdirAll(filepath.Dir(target), DefaultDirMode); err != nil {
		return err
	}

	if err := os.Symlink(linkname, target); err != nil && !os.IsExist(err) {
		return fmt.Errorf("symlink %s -> %s: %w", target, linkname, err)
	}

	return nil
}

// safeJoin joins name onto root and refuses results outside root.
func safeJoin(root, name string) (string, error) {
	root = filepath.Clean(root)
	target := filepath.Join(root, name)

	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", name, errUnsafePath)
	}

	return target, nil
}
