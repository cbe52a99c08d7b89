package mongodb

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/writeup-app/writeup/internal/storage"
)

func TestNewSessionKey(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		key, err := newSessionKey()
		require.NoError(t, err)
		require.Len(t, key, sessionKeyLength)
		for _, r := range key {
			require.True(t, strings.ContainsRune(sessionKeyAlphabet, r),
				"key contains %q outside the alphabet", r)
		}
		require.True(t, storage.IsSafe(key))
	})
}

func TestSessionKeyAlphabetIsSafe(t *testing.T) {
	t.Parallel()
	require.True(t, storage.IsSafe(sessionKeyAlphabet))
}
