package release

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// PrimaryExt is the extension of the primary source tarball.
const PrimaryExt = "tar.xz"

// errEmptyBuildHash is returned when no nightly build hash is provided.
var errEmptyBuildHash = errors.New("build hash must be provided")

// Artifact describes one file of the artifact set.
type Artifact struct {
	// Suffix is the os/arch marker, empty for the source tarball (e.g. "-linux_x64").
	Suffix string
	// Ext is the file extension without the leading dot (e.g. "tar.xz").
	Ext string
}

// SourceTarball is the primary artifact every phase after download relies on.
//
//nolint:gochecknoglobals // Immutable value.
var SourceTarball = Artifact{Ext: PrimaryExt}

// Release identifies one pipeline run target. It is immutable during a run.
type Release struct {
	// Project is the filename prefix of every artifact (e.g. "nim").
	Project string
	// Version is the public version being released.
	Version Version
	// BuildHash identifies the nightly build the artifacts are pulled from.
	BuildHash string
	// Hotfix is an optional marker present only in remote artifact names.
	Hotfix string
}

// New validates inputs and builds a Release.
func New(project, version, buildHash, hotfix string) (*Release, error) {
	v, err := ParseVersion(version)
	if err != nil {
		return nil, err
	}

	buildHash = strings.TrimSpace(buildHash)
	if buildHash == "" {
		return nil, errEmptyBuildHash
	}

	return &Release{
		Project:   project,
		Version:   v,
		BuildHash: buildHash,
		Hotfix:    strings.TrimSpace(hotfix),
	}, nil
}

// Base returns "<project>-<version>", the top-level directory inside source archives.
func (r *Release) Base() string {
	return fmt.Sprintf("%s-%s", r.Project, r.Version)
}

// RemoteName is the filename in the artifact store, hotfix marker included.
func (r *Release) RemoteName(a Artifact) string {
	return fmt.Sprintf("%s%s%s.%s", r.Base(), r.Hotfix, a.Suffix, a.Ext)
}

// LocalName is the public filename written to the download directory.
func (r *Release) LocalName(a Artifact) string {
	return fmt.Sprintf("%s%s.%s", r.Base(), a.Suffix, a.Ext)
}

// GzipName returns the name of the gzip counterpart of an xz artifact.
func (r *Release) GzipName(a Artifact) string {
	return strings.TrimSuffix(r.LocalName(a), ".xz") + ".gz"
}

// Placeholders returns the values substituted into configured command lines.
func (r *Release) Placeholders() map[string]string {
	return map[string]string{
		"project": r.Project,
		"version": r.Version.String(),
		"major":   strconv.FormatUint(r.Version.Major, 10),
		"minor":   strconv.FormatUint(r.Version.Minor, 10),
		"patch":   strconv.FormatUint(r.Version.Patch, 10),
	}
}
