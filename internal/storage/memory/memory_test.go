package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/writeup-app/writeup/internal/auth"
	"github.com/writeup-app/writeup/internal/storage"
)

// newTestPool creates an empty pool with a frozen clock and a fast
// fake hasher.
func newTestPool(t *testing.T) (*Pool, *storage.FakeClock) {
	t.Helper()
	clock := storage.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	return Open(Config{Hasher: auth.FakeInsecureHasher{}, Clock: clock}), clock
}

func register(t *testing.T, manager storage.DBManager, username string) storage.UserManager {
	t.Helper()
	user, err := manager.Register(context.Background(), username, "pw-"+username)
	require.NoError(t, err)
	return user
}

func associate(t *testing.T, a storage.UserManager, b string) {
	t.Helper()
	require.NoError(t, a.AssociateWith(context.Background(), b))
}

func TestMeta(t *testing.T) {
	t.Parallel()
	pool, clock := newTestPool(t)
	manager := pool.Manager()

	meta := manager.Meta()
	require.Equal(t, DriverID, meta.DriverID)
	require.Equal(t, schemaVersion, meta.Version)

	alice := register(t, manager, "alice")
	require.Equal(t, "alice", alice.Meta().ID)
	require.Equal(t, clock.Now(), alice.Meta().MemberSince)
}

func TestRegisterAndLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pool, _ := newTestPool(t)
	manager := pool.Manager()

	_, err := manager.Register(ctx, "alice", "pw1")
	require.NoError(t, err)

	alice, err := manager.Authenticate(ctx, "alice", "pw1")
	require.NoError(t, err)
	require.Equal(t, "alice", alice.Meta().ID)

	_, err = manager.Authenticate(ctx, "alice", "wrong")
	require.ErrorIs(t, err, storage.ErrIncorrectCredentials)

	// bob never registered: same error kind as a wrong password, so
	// the error channel does not reveal which accounts exist.
	_, err = manager.Authenticate(ctx, "bob", "anything")
	require.ErrorIs(t, err, storage.ErrIncorrectCredentials)
}

func TestRegister_DuplicateRejected(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pool, _ := newTestPool(t)
	manager := pool.Manager()

	register(t, manager, "alice")
	_, err := manager.Register(ctx, "alice", "other")
	require.Equal(t, storage.CodeDuplicate, storage.CodeOf(err))

	// The original password still works: nothing was overwritten.
	_, err = manager.Authenticate(ctx, "alice", "pw-alice")
	require.NoError(t, err)
}

func TestInjectionGuard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pool, _ := newTestPool(t)
	manager := pool.Manager()

	_, err := manager.User(ctx, "evil{$ne:null}")
	require.Equal(t, storage.CodeInvalidSequence, storage.CodeOf(err))

	_, err = manager.Register(ctx, "evil{$ne:null}", "pw")
	require.Equal(t, storage.CodeInvalidSequence, storage.CodeOf(err))

	_, err = manager.Authenticate(ctx, "evil{$ne:null}", "pw")
	require.Equal(t, storage.CodeInvalidSequence, storage.CodeOf(err))

	alice := register(t, manager, "alice")
	err = alice.AssociateWith(ctx, "evil{$ne:null}")
	require.Equal(t, storage.CodeInvalidSequence, storage.CodeOf(err))

	_, err = alice.Note(ctx, "evil{$ne:null}")
	require.Equal(t, storage.CodeInvalidSequence, storage.CodeOf(err))
}

func TestAssociationSymmetry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pool, _ := newTestPool(t)
	manager := pool.Manager()

	alice := register(t, manager, "alice")
	bob := register(t, manager, "bob")

	associate(t, alice, "bob")

	aliceSide, err := alice.Associates(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"bob"}, aliceSide)

	bobSide, err := bob.Associates(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, bobSide)

	require.NoError(t, alice.RevokeAssociation(ctx, "bob"))

	aliceSide, err = alice.Associates(ctx)
	require.NoError(t, err)
	require.Empty(t, aliceSide)

	bobSide, err = bob.Associates(ctx)
	require.NoError(t, err)
	require.Empty(t, bobSide)
}

func TestAssociate_Rejections(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pool, _ := newTestPool(t)
	manager := pool.Manager()

	alice := register(t, manager, "alice")
	register(t, manager, "bob")

	err := alice.AssociateWith(ctx, "alice")
	require.Equal(t, storage.CodeInvalidRequest, storage.CodeOf(err))

	_, err = manager.User(ctx, "nobody")
	require.Equal(t, storage.CodeMissingEntry, storage.CodeOf(err))
	err = alice.AssociateWith(ctx, "nobody")
	require.Equal(t, storage.CodeMissingEntry, storage.CodeOf(err))

	associate(t, alice, "bob")
	err = alice.AssociateWith(ctx, "bob")
	require.Equal(t, storage.CodeInvalidRequest, storage.CodeOf(err))
}

func TestRevokeAssociation_Rejections(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pool, _ := newTestPool(t)
	manager := pool.Manager()

	alice := register(t, manager, "alice")
	register(t, manager, "bob")

	err := alice.RevokeAssociation(ctx, "alice")
	require.Equal(t, storage.CodeInvalidRequest, storage.CodeOf(err))

	err = alice.RevokeAssociation(ctx, "bob")
	require.Equal(t, storage.CodeInvalidRequest, storage.CodeOf(err))
}

func TestNoteLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pool, clock := newTestPool(t)
	manager := pool.Manager()

	alice := register(t, manager, "alice")
	note, err := alice.AddNote(ctx, "T1")
	require.NoError(t, err)

	require.Equal(t, "T1", note.Title())
	require.Equal(t, "", note.Content())
	require.Empty(t, note.Tags())

	meta := note.Meta()
	require.Equal(t, storage.Moderate, meta.Permission)
	require.Equal(t, "alice", meta.OwnerID)
	require.Equal(t, clock.Now(), meta.CreatedAt)
	require.Equal(t, clock.Now(), meta.LastEdited)

	created := meta.LastEdited
	clock.Advance(time.Minute)

	require.NoError(t, note.SetContent(ctx, "hello"))
	require.Equal(t, "hello", note.Content())
	require.True(t, note.Meta().LastEdited.After(created))

	// A fresh manager sees the persisted values, not just the cache.
	reloaded, err := alice.Note(ctx, meta.ID)
	require.NoError(t, err)
	require.Equal(t, "hello", reloaded.Content())
	require.Equal(t, note.Meta().LastEdited, reloaded.Meta().LastEdited)

	clock.Advance(time.Minute)
	require.NoError(t, note.SetTitle(ctx, "T2"))
	require.Equal(t, "T2", note.Title())

	require.NoError(t, note.SetTags(ctx, []string{"work", "draft"}))
	require.Equal(t, []string{"work", "draft"}, note.Tags())
}

func TestNotes_ListsEveryAllowance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pool, _ := newTestPool(t)
	manager := pool.Manager()

	alice := register(t, manager, "alice")
	bob := register(t, manager, "bob")
	associate(t, alice, "bob")

	own, err := bob.AddNote(ctx, "bob's own")
	require.NoError(t, err)

	shared, err := alice.AddNote(ctx, "from alice")
	require.NoError(t, err)
	require.NoError(t, shared.UpdateShare(ctx, "bob", storage.Read))

	noteIDs, err := bob.Notes(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{own.Meta().ID, shared.Meta().ID}, noteIDs)
}

func TestSharing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pool, _ := newTestPool(t)
	manager := pool.Manager()

	alice := register(t, manager, "alice")
	bob := register(t, manager, "bob")
	associate(t, alice, "bob")

	note, err := alice.AddNote(ctx, "shared")
	require.NoError(t, err)
	noteID := note.Meta().ID

	require.NoError(t, note.UpdateShare(ctx, "bob", storage.ReadWrite))

	bobNote, err := bob.Note(ctx, noteID)
	require.NoError(t, err)
	require.Equal(t, storage.ReadWrite, bobNote.Meta().Permission)

	// ReadWrite suffices for edits...
	require.NoError(t, bobNote.SetTitle(ctx, "edited by bob"))

	// ...but not for deletion or re-sharing, which require Moderate.
	err = bob.RemoveNote(ctx, noteID)
	require.ErrorIs(t, err, storage.ErrNoPermission)
	err = bobNote.UpdateShare(ctx, "alice", storage.Read)
	require.ErrorIs(t, err, storage.ErrNoPermission)

	// The note still exists and carries bob's edit.
	aliceNote, err := alice.Note(ctx, noteID)
	require.NoError(t, err)
	require.Equal(t, "edited by bob", aliceNote.Title())
}

func TestShare_ReadOnlyCannotWrite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pool, _ := newTestPool(t)
	manager := pool.Manager()

	alice := register(t, manager, "alice")
	bob := register(t, manager, "bob")
	associate(t, alice, "bob")

	note, err := alice.AddNote(ctx, "read only")
	require.NoError(t, err)
	require.NoError(t, note.UpdateShare(ctx, "bob", storage.Read))

	bobNote, err := bob.Note(ctx, note.Meta().ID)
	require.NoError(t, err)
	require.Equal(t, "read only", bobNote.Title())

	err = bobNote.SetTitle(ctx, "nope")
	require.ErrorIs(t, err, storage.ErrNoPermission)
	err = bobNote.SetContent(ctx, "nope")
	require.ErrorIs(t, err, storage.ErrNoPermission)
	err = bobNote.SetTags(ctx, []string{"nope"})
	require.ErrorIs(t, err, storage.ErrNoPermission)
}

func TestShare_LevelChangeInPlace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pool, _ := newTestPool(t)
	manager := pool.Manager()

	alice := register(t, manager, "alice")
	bob := register(t, manager, "bob")
	associate(t, alice, "bob")

	note, err := alice.AddNote(ctx, "n")
	require.NoError(t, err)
	require.NoError(t, note.UpdateShare(ctx, "bob", storage.ReadWrite))
	require.NoError(t, note.UpdateShare(ctx, "bob", storage.Read))

	bobNote, err := bob.Note(ctx, note.Meta().ID)
	require.NoError(t, err)
	require.Equal(t, storage.Read, bobNote.Meta().Permission)

	// Only one allowance entry per (user, note) pair exists.
	noteIDs, err := bob.Notes(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{note.Meta().ID}, noteIDs)
}

func TestShare_RequiresAssociation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pool, _ := newTestPool(t)
	manager := pool.Manager()

	alice := register(t, manager, "alice")
	register(t, manager, "bob")

	note, err := alice.AddNote(ctx, "private")
	require.NoError(t, err)

	for _, level := range []storage.PermissionLevel{storage.Forbidden, storage.Read, storage.ReadWrite, storage.Moderate} {
		err = note.UpdateShare(ctx, "bob", level)
		require.Equal(t, storage.CodeInvalidRequest, storage.CodeOf(err), "level %v", level)
	}
}

func TestShare_IdempotentRevoke(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pool, _ := newTestPool(t)
	manager := pool.Manager()

	alice := register(t, manager, "alice")
	register(t, manager, "bob")
	associate(t, alice, "bob")

	note, err := alice.AddNote(ctx, "n")
	require.NoError(t, err)
	require.NoError(t, note.UpdateShare(ctx, "bob", storage.Read))

	require.NoError(t, note.UpdateShare(ctx, "bob", storage.Forbidden))

	// Second revoke: nothing left to revoke. An error, not a crash
	// and not silent success.
	err = note.UpdateShare(ctx, "bob", storage.Forbidden)
	require.Equal(t, storage.CodeInvalidRequest, storage.CodeOf(err))
}

func TestNote_ExistenceHidden(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pool, _ := newTestPool(t)
	manager := pool.Manager()

	alice := register(t, manager, "alice")
	carol := register(t, manager, "carol")

	note, err := alice.AddNote(ctx, "secret")
	require.NoError(t, err)

	// Existing-but-unshared and never-existed both read as a
	// permission denial.
	_, err = carol.Note(ctx, note.Meta().ID)
	require.ErrorIs(t, err, storage.ErrNoPermission)

	_, err = carol.Note(ctx, newNoteID())
	require.ErrorIs(t, err, storage.ErrNoPermission)
}

func TestRemoveNote_SweepsAllAllowances(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pool, _ := newTestPool(t)
	manager := pool.Manager()

	alice := register(t, manager, "alice")
	bob := register(t, manager, "bob")
	carol := register(t, manager, "carol")
	associate(t, alice, "bob")
	associate(t, alice, "carol")

	note, err := alice.AddNote(ctx, "doomed")
	require.NoError(t, err)
	noteID := note.Meta().ID
	require.NoError(t, note.UpdateShare(ctx, "bob", storage.Read))
	require.NoError(t, note.UpdateShare(ctx, "carol", storage.ReadWrite))

	require.NoError(t, alice.RemoveNote(ctx, noteID))

	for _, user := range []storage.UserManager{alice, bob, carol} {
		noteIDs, err := user.Notes(ctx)
		require.NoError(t, err)
		require.NotContains(t, noteIDs, noteID)

		_, err = user.Note(ctx, noteID)
		require.ErrorIs(t, err, storage.ErrNoPermission)
	}
}

func TestRevokeAssociation_WithdrawsSharesBothWays(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pool, _ := newTestPool(t)
	manager := pool.Manager()

	alice := register(t, manager, "alice")
	bob := register(t, manager, "bob")
	associate(t, alice, "bob")

	fromAlice, err := alice.AddNote(ctx, "alice's")
	require.NoError(t, err)
	require.NoError(t, fromAlice.UpdateShare(ctx, "bob", storage.ReadWrite))

	fromBob, err := bob.AddNote(ctx, "bob's")
	require.NoError(t, err)
	require.NoError(t, fromBob.UpdateShare(ctx, "alice", storage.Read))

	require.NoError(t, alice.RevokeAssociation(ctx, "bob"))

	// Shares in both directions are gone; own notes survive.
	aliceNotes, err := alice.Notes(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{fromAlice.Meta().ID}, aliceNotes)

	bobNotes, err := bob.Notes(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{fromBob.Meta().ID}, bobNotes)
}

func TestRemoveUser_Cascade(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pool, _ := newTestPool(t)
	manager := pool.Manager()

	alice := register(t, manager, "alice")
	bob := register(t, manager, "bob")
	associate(t, alice, "bob")

	owned, err := alice.AddNote(ctx, "alice's note")
	require.NoError(t, err)
	require.NoError(t, owned.UpdateShare(ctx, "bob", storage.ReadWrite))

	bobsNote, err := bob.AddNote(ctx, "bob's note")
	require.NoError(t, err)
	require.NoError(t, bobsNote.UpdateShare(ctx, "alice", storage.Read))

	require.NoError(t, manager.RemoveUser(ctx, "alice"))

	// Alice's notes are gone everywhere, bob no longer lists her,
	// and both her credential and user records are absent.
	bobNotes, err := bob.Notes(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{bobsNote.Meta().ID}, bobNotes)

	bobAssociates, err := bob.Associates(ctx)
	require.NoError(t, err)
	require.Empty(t, bobAssociates)

	_, err = manager.User(ctx, "alice")
	require.Equal(t, storage.CodeMissingEntry, storage.CodeOf(err))

	_, err = manager.Authenticate(ctx, "alice", "pw-alice")
	require.ErrorIs(t, err, storage.ErrIncorrectCredentials)

	// Bob's own note is untouched.
	survivor, err := bob.Note(ctx, bobsNote.Meta().ID)
	require.NoError(t, err)
	require.Equal(t, "bob's note", survivor.Title())
}
