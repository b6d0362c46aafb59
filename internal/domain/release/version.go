package release

import (
	"errors"
	"fmt"
	"strings"

	"github.com/blang/semver"
)

// Version is a release version triple.
type Version struct {
	// Major is the first component of the triple.
	Major uint64
	// Minor is the second component of the triple.
	Minor uint64
	// Patch is the third component; odd values mark release candidates.
	Patch uint64
}

// Zero is the version assumed when nothing has been promoted yet.
//
//nolint:gochecknoglobals // Immutable sentinel value.
var Zero = Version{}

// ErrMalformedVersion is returned when a string is not a plain major.minor.patch triple.
var ErrMalformedVersion = errors.New("malformed version")

// ParseVersion parses a strict "major.minor.patch" string.
// Pre-release and build metadata are rejected.
func ParseVersion(s string) (Version, error) {
	trimmed := strings.TrimSpace(s)

	parsed, err := semver.Parse(trimmed)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q: %w", ErrMalformedVersion, s, err)
	}

	if len(parsed.Pre) > 0 || len(parsed.Build) > 0 {
		return Zero, fmt.Errorf("%w: %q has pre-release or build metadata", ErrMalformedVersion, s)
	}

	return Version{
		Major: parsed.Major,
		Minor: parsed.Minor,
		Patch: parsed.Patch,
	}, nil
}

// String renders the version as "major.minor.patch".
func (v Version) String() string {
	return v.semver().String()
}

// Branch returns the maintenance branch name, e.g. "version-1-4".
func (v Version) Branch() string {
	return fmt.Sprintf("version-%d-%d", v.Major, v.Minor)
}

// IsReleaseCandidate reports whether the patch number is odd.
func (v Version) IsReleaseCandidate() bool {
	return v.Patch%2 == 1
}

// Compare returns -1, 0 or 1 comparing the triples lexicographically.
func (v Version) Compare(other Version) int {
	return v.semver().Compare(other.semver())
}

// IsNewer reports whether candidate should replace current as the stable version.
// Release candidates are never newer than anything.
func IsNewer(candidate, current Version) bool {
	if candidate.IsReleaseCandidate() {
		return false
	}

	return candidate.Compare(current) > 0
}

func (v Version) semver() semver.Version {
	//nolint:exhaustruct // Plain triples have no pre-release or build parts.
	return semver.Version{
		Major: v.Major,
		Minor: v.Minor,
		Patch: v.Patch,
	}
}
