package release

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestParseVersion covers valid triples and the malformed inputs that must be rejected.
func TestParseVersion(t *testing.T) {
	t.Parallel()

	v, err := ParseVersion(" 1.4.8\n")
	require.NoError(t, err)
	require.Equal(t, Version{Major: 1, Minor: 4, Patch: 8}, v)
	require.Equal(t, "1.4.8", v.String())

	for _, bad := range []string{"", "1.4", "1.4.8.2", "v1.4.8", "1.4.8-rc1", "1.4.8+abc", "a.b.c", "01.4.8"} {
		_, err = ParseVersion(bad)
		require.ErrorIs(t, err, ErrMalformedVersion, bad)
	}
}

// TestVersionBranch checks the maintenance branch naming.
func TestVersionBranch(t *testing.T) {
	t.Parallel()

	require.Equal(t, "version-1-4", Version{Major: 1, Minor: 4, Patch: 8}.Branch())
	require.Equal(t, "version-0-20", Version{Minor: 20}.Branch())
}

// TestIsNewer_EvenPatchIsLexicographic exhaustively compares small even-patch triples.
func TestIsNewer_EvenPatchIsLexicographic(t *testing.T) {
	t.Parallel()

	for a := range uint64(3) {
		for b := range uint64(3) {
			for c := uint64(0); c < 6; c += 2 {
				candidate := Version{Major: a, Minor: b, Patch: c}

				for x := range uint64(3) {
					for y := range uint64(3) {
						for z := range uint64(6) {
							current := Version{Major: x, Minor: y, Patch: z}
							lexGreater := a > x || (a == x && (b > y || (b == y && c > z)))

							require.Equal(t, lexGreater, IsNewer(candidate, current), "%s vs %s", candidate, current)
						}
					}
				}
			}
		}
	}
}

// TestIsNewer_OddPatchNeverPromoted ensures release candidates never win.
func TestIsNewer_OddPatchNeverPromoted(t *testing.T) {
	t.Parallel()

	candidate := Version{Major: 9, Minor: 9, Patch: 7}

	require.True(t, candidate.IsReleaseCandidate())
	require.False(t, IsNewer(candidate, Zero))
	require.False(t, IsNewer(candidate, Version{Major: 1, Minor: 4, Patch: 6}))
	require.False(t, IsNewer(Version{Major: 1, Minor: 4, Patch: 7}, Version{Major: 1, Minor: 4, Patch: 6}))
}

// TestIsNewer_AgainstZero treats a missing stable record as 0.0.0.
func TestIsNewer_AgainstZero(t *testing.T) {
	t.Parallel()

	require.True(t, IsNewer(Version{Minor: 20}, Zero))
	require.False(t, IsNewer(Zero, Zero))
}

func TestVersionCompare(t *testing.T) {
	t.Parallel()

	a := Version{Major: 1, Minor: 4, Patch: 8}

	require.Equal(t, 0, a.Compare(a))
	require.Equal(t, 1, a.Compare(Version{Major: 1, Minor: 4, Patch: 6}))
	require.Equal(t, -1, a.Compare(Version{Major: 1, Minor: 10}))
}
