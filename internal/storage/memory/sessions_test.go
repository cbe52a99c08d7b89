package memory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/writeup-app/writeup/internal/storage"
)

func TestSessions_SaveLoadRoundtrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pool, _ := newTestPool(t)
	sessions := pool.Sessions()

	state := storage.SessionState{"user_id": "alice", "theme": "dark"}
	key, err := sessions.Save(ctx, state, time.Hour)
	require.NoError(t, err)

	require.Len(t, key, sessionKeyLength)
	for _, r := range key {
		require.True(t, strings.ContainsRune(sessionKeyAlphabet, r), "key contains %q", r)
	}
	require.True(t, storage.IsSafe(key))

	loaded, err := sessions.Load(ctx, key)
	require.NoError(t, err)
	require.Equal(t, state, loaded)

	// The store holds its own copy; mutating the original afterwards
	// must not leak into stored state.
	state["theme"] = "light"
	loaded, err = sessions.Load(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "dark", loaded["theme"])
}

func TestSessions_LoadUnknownKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pool, _ := newTestPool(t)
	sessions := pool.Sessions()

	_, err := sessions.Load(ctx, "nope")
	require.Equal(t, storage.CodeMissingEntry, storage.CodeOf(err))

	_, err = sessions.Load(ctx, "evil{$ne:null}")
	require.Equal(t, storage.CodeInvalidSequence, storage.CodeOf(err))
}

func TestSessions_Expiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pool, clock := newTestPool(t)
	sessions := pool.Sessions()

	key, err := sessions.Save(ctx, storage.SessionState{"user_id": "alice"}, time.Hour)
	require.NoError(t, err)

	clock.Advance(59 * time.Minute)
	_, err = sessions.Load(ctx, key)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = sessions.Load(ctx, key)
	require.Equal(t, storage.CodeMissingEntry, storage.CodeOf(err))

	// The expired record was dropped, so a later update fails too.
	err = sessions.Update(ctx, key, storage.SessionState{"user_id": "alice"}, time.Hour)
	require.Equal(t, storage.CodeMissingEntry, storage.CodeOf(err))
}

func TestSessions_UpdateRenewsTTL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pool, clock := newTestPool(t)
	sessions := pool.Sessions()

	key, err := sessions.Save(ctx, storage.SessionState{"step": "1"}, time.Hour)
	require.NoError(t, err)

	clock.Advance(50 * time.Minute)
	require.NoError(t, sessions.Update(ctx, key, storage.SessionState{"step": "2"}, time.Hour))

	// Past the original deadline but within the renewed one.
	clock.Advance(30 * time.Minute)
	loaded, err := sessions.Load(ctx, key)
	require.NoError(t, err)
	require.Equal(t, storage.SessionState{"step": "2"}, loaded)
}

func TestSessions_UpdateUnknownKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pool, _ := newTestPool(t)
	sessions := pool.Sessions()

	err := sessions.Update(ctx, "neversaved", storage.SessionState{}, time.Hour)
	require.Equal(t, storage.CodeMissingEntry, storage.CodeOf(err))
}

func TestSessions_Delete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pool, _ := newTestPool(t)
	sessions := pool.Sessions()

	key, err := sessions.Save(ctx, storage.SessionState{"user_id": "alice"}, time.Hour)
	require.NoError(t, err)

	require.NoError(t, sessions.Delete(ctx, key))
	_, err = sessions.Load(ctx, key)
	require.Equal(t, storage.CodeMissingEntry, storage.CodeOf(err))

	// Deleting an absent key is not an error.
	require.NoError(t, sessions.Delete(ctx, key))
}

func TestSessions_KeysAreUnique(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pool, _ := newTestPool(t)
	sessions := pool.Sessions()

	seen := make(map[string]bool)
	for i := 0; i < 32; i++ {
		key, err := sessions.Save(ctx, storage.SessionState{}, time.Hour)
		require.NoError(t, err)
		require.False(t, seen[key])
		seen[key] = true
	}
}
