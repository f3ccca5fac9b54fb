package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeDisplayName(t *testing.T) {
	t.Parallel()

	t.Run("trims and collapses whitespace", func(t *testing.T) {
		actual, err := SanitizeDisplayName("  Alice \t  Liddell\n")
		require.NoError(t, err)
		require.Equal(t, "Alice Liddell", actual)
	})

	t.Run("removes invisible and control characters", func(t *testing.T) {
		actual, err := SanitizeDisplayName("Ad\u200Bmin\u0007istrator\uFEFF")
		require.NoError(t, err)
		require.Equal(t, "Administrator", actual)
	})

	t.Run("keeps multi-byte characters intact", func(t *testing.T) {
		actual, err := SanitizeDisplayName("José Núñez 山田")
		require.NoError(t, err)
		require.Equal(t, "José Núñez 山田", actual)
	})

	t.Run("allows empty names", func(t *testing.T) {
		actual, err := SanitizeDisplayName("   ")
		require.NoError(t, err)
		require.Empty(t, actual)
	})

	t.Run("rejects null bytes", func(t *testing.T) {
		_, err := SanitizeDisplayName("evil\x00name")
		require.Error(t, err)
	})

	t.Run("rejects names over the limit", func(t *testing.T) {
		_, err := SanitizeDisplayName(strings.Repeat("é", MaxDisplayNameLength+1))
		require.Error(t, err)

		actual, err := SanitizeDisplayName(strings.Repeat("é", MaxDisplayNameLength))
		require.NoError(t, err)
		require.Len(t, []rune(actual), MaxDisplayNameLength)
	})
}
