package auth

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_HashToken(t *testing.T) {
	t.Parallel()

	t.Run("deterministic", func(t *testing.T) {
		require.Equal(t, HashToken("token"), HashToken("token"), "same input should produce same digest")
	})

	t.Run("hex encoded sha256", func(t *testing.T) {
		digest := HashToken("token")

		require.Len(t, digest, 64, "sha256 hex digest is 64 chars")
		_, err := hex.DecodeString(digest)
		require.NoError(t, err, "digest should be valid hex")
	})

	t.Run("different input different digest", func(t *testing.T) {
		require.NotEqual(t, HashToken("one"), HashToken("two"))
	})
}

func Test_GenerateSecret(t *testing.T) {
	t.Parallel()

	t.Run("generate ok", func(t *testing.T) {
		raw, digest, err := GenerateSecret()

		require.NoError(t, err)
		require.Len(t, raw, 64, "32 random bytes hex encoded")
		require.Equal(t, HashToken(raw), digest, "digest should match the raw secret")
	})

	t.Run("secrets unique", func(t *testing.T) {
		first, _, err := GenerateSecret()
		require.NoError(t, err)
		second, _, err := GenerateSecret()
		require.NoError(t, err)

		require.NotEqual(t, first, second)
	})
}
