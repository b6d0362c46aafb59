// Package archivetest writes small release archives for tests.
package archivetest

import (
	"archive/tar"
	"archive/zip"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

// fileMode is used for every regular file in generated archives.
const fileMode = 0o755

// WriteTarXz creates an xz-compressed tarball at path holding files (name -> body).
func WriteTarXz(t *testing.T, path string, files map[string]string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	out, err := os.Create(path)
	require.NoError(t, err)

	compressed, err := xz.NewWriter(out)
	require.NoError(t, err)

	writer := tar.NewWriter(compressed)

	for _, name := range sortedNames(files) {
		body := files[name]

		//nolint:exhaustruct // Only the fields tar needs for a regular file.
		require.NoError(t, writer.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     fileMode,
			Size:     int64(len(body)),
			Typeflag: tar.TypeReg,
		}))

		_, err = writer.Write([]byte(body))
		require.NoError(t, err)
	}

	require.NoError(t, writer.Close())
	require.NoError(t, compressed.Close())
	require.NoError(t, out.Close())
}

// WriteZip creates a zip archive at path holding files (name -> body).
func WriteZip(t *testing.T, path string, files map[string]string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	out, err := os.Create(path)
	require.NoError(t, err)

	writer := zip.NewWriter(out)

	for _, name := range sortedNames(files) {
		entry, err := writer.Create(name)
		require.NoError(t, err)

		_, err = entry.Write([]byte(files[name]))
		require.NoError(t, err)
	}

	require.NoError(t, writer.Close())
	require.NoError(t, out.Close())
}

func sortedNames(files map[string]string) []string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
