package content

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	require.Equal(t, "Atlas Gen 2", Normalize("  Atlas \t Gen\n\n2  "))
	require.Equal(t, "", Normalize("   \n\t  "))
	require.Equal(t, "unchanged", Normalize("unchanged"))
}

func TestDigestIgnoresWhitespaceDifferences(t *testing.T) {
	h := New()

	a := h.Digest("Atlas Gen 2", "An electric humanoid robot.")
	b := h.Digest("  Atlas   Gen 2 ", "An  electric\nhumanoid\trobot.")
	require.Equal(t, a, b)
	require.Len(t, a, 64)
}

func TestDigestSensitiveToContent(t *testing.T) {
	h := New()

	base := h.Digest("Atlas Gen 2", "An electric humanoid robot.")
	require.NotEqual(t, base, h.Digest("Atlas Gen 3", "An electric humanoid robot."))
	require.NotEqual(t, base, h.Digest("Atlas Gen 2", "A hydraulic humanoid robot."))
}

func TestDigestSeparatesTitleFromContent(t *testing.T) {
	h := New()

	// The field boundary must matter: moving a word across it changes
	// the digest.
	require.NotEqual(t,
		h.Digest("Atlas Gen", "2 ships today"),
		h.Digest("Atlas", "Gen 2 ships today"),
	)
}

func TestDigestDeterministic(t *testing.T) {
	h := New()
	require.Equal(t,
		h.Digest("title", "content"),
		h.Digest("title", "content"),
	)
}
