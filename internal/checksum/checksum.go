package checksum

import (
	"crypto"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	// Ensure SHA256 available for checksum calculation.
	_ "crypto/sha256"
)

const (
	// Ext is appended to an artifact path to form its checksum sibling.
	Ext = ".sha256"

	// DefaultFunction is the hash used for every published artifact.
	DefaultFunction crypto.Hash = crypto.SHA256

	// DefaultFileMode is used for sibling files.
	DefaultFileMode os.FileMode = 0o644
)

// ErrChecksumMismatch is returned when an artifact no longer matches its sibling file.
var ErrChecksumMismatch = errors.New("checksum mismatch")

var (
	errHashUnavailable  = errors.New("hash function unavailable")
	errMalformedSibling = errors.New("malformed checksum file")
)

// Sum returns the raw digest of the file at path, streamed from disk.
func Sum(path string) ([]byte, error) {
	if !DefaultFunction.Available() {
		return nil, fmt.Errorf("checksum calculation not possible: %w", errHashUnavailable)
	}

	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = file.Close()
	}()

	hasher := DefaultFunction.New()
	if _, err = io.Copy(hasher, file); err != nil {
		return nil, fmt.Errorf("calculate checksum of %s: %w", path, err)
	}

	return hasher.Sum(nil), nil
}

// File returns the hex-encoded digest of the file at path.
func File(path string) (string, error) {
	sum, err := Sum(path)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(sum), nil
}

// SiblingPath returns the checksum file path for an artifact.
func SiblingPath(path string) string {
	return path + Ext
}

// WriteSibling hashes the artifact as it currently is on disk and writes the sibling file.
// It returns the hex digest.
func WriteSibling(path string) (string, error) {
	digest, err := File(path)
	if err != nil {
		return "", err
	}

	line := digest + "  " + filepath.Base(path) + "\n"
	if err = os.WriteFile(SiblingPath(path), []byte(line), DefaultFileMode); err != nil {
		return "", fmt.Errorf("write checksum file: %w", err)
	}

	return digest, nil
}

// ReadSibling returns the hex digest recorded in the artifact's sibling file.
func ReadSibling(path string) (string, error) {
	contents, err := os.ReadFile(filepath.Clean(SiblingPath(path)))
	if err != nil {
		return "", err
	}

	fields := strings.Fields(string(contents))
	if len(fields) == 0 {
		return "", fmt.Errorf("%s: %w", SiblingPath(path), errMalformedSibling)
	}

	if _, err = hex.DecodeString(fields[0]); err != nil || len(fields[0]) != 2*DefaultFunction.Size() {
		return "", fmt.Errorf("%s: %w", SiblingPath(path), errMalformedSibling)
	}

	return fields[0], nil
}

// VerifySibling recomputes the artifact digest and compares it with the sibling file.
func VerifySibling(path string) error {
	recorded, err := ReadSibling(path)
	if err != nil {
		return err
	}

	actual, err := File(path)
	if err != nil {
		return err
	}

	if !strings.EqualFold(recorded, actual) {
		return fmt.Errorf("%s: %w", path, ErrChecksumMismatch)
	}

	return nil
}
