package mongodb

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/writeup-app/writeup/internal/storage"
)

// userManager implements storage.UserManager.
type userManager struct {
	meta  storage.UserMeta
	conn  *conn
	clock storage.Clock
}

func newUserManager(ctx context.Context, c *conn, clock storage.Clock, userID string) (*userManager, error) {
	user, err := fetchUser(ctx, c, userID)
	if err != nil {
		return nil, err
	}
	return &userManager{
		meta: storage.UserMeta{
			ID:          user.ID,
			Name:        user.ID,
			MemberSince: user.MemberSince,
		},
		conn:  c,
		clock: clock,
	}, nil
}

func (m *userManager) Meta() storage.UserMeta {
	return m.meta
}

func (m *userManager) AssociateWith(ctx context.Context, userID string) error {
	if err := storage.CheckSafe(userID); err != nil {
		return err
	}
	if userID == m.meta.ID {
		return storage.InvalidRequest("users can not be associated with themselves")
	}
	other, err := fetchUser(ctx, m.conn, userID)
	if err != nil {
		return err
	}
	if slices.Contains(other.Connections, m.meta.ID) {
		return storage.InvalidRequest(
			fmt.Sprintf("%q and %q already share an association with each other", m.meta.ID, userID))
	}

	// Both sides are pushed; success is reported only if both pushes
	// succeed. A one-sided failure leaves the graph asymmetric and is
	// surfaced for the caller to retry — the core does not auto-repair.
	errOther := m.conn.updateOne(ctx, usersCollection, byID(other.ID),
		pushTo("connections", m.meta.ID))
	errSelf := m.conn.updateOne(ctx, usersCollection, byID(m.meta.ID),
		pushTo("connections", other.ID))
	if errOther != nil || errSelf != nil {
		return storage.QueryFailed(
			fmt.Sprintf("adding %q and %q to each other's connections", m.meta.ID, other.ID),
			errors.Join(errOther, errSelf))
	}
	return nil
}

func (m *userManager) Associates(ctx context.Context) ([]string, error) {
	// Read fresh every time: connections change through other users'
	// actions.
	user, err := fetchUser(ctx, m.conn, m.meta.ID)
	if err != nil {
		return nil, err
	}
	return user.Connections, nil
}

func (m *userManager) RevokeAssociation(ctx context.Context, userID string) error {
	if err := storage.CheckSafe(userID); err != nil {
		return err
	}
	if userID == m.meta.ID {
		return storage.InvalidRequest("users are not associated with themselves")
	}

	self, err := fetchUser(ctx, m.conn, m.meta.ID)
	if err != nil {
		return err
	}
	if !slices.Contains(self.Connections, userID) {
		return storage.InvalidRequest(
			fmt.Sprintf("%q and %q are not associated with each other", m.meta.ID, userID))
	}
	other, err := fetchUser(ctx, m.conn, userID)
	if err != nil {
		return err
	}

	// Shares granted as a consequence of the association, in both
	// directions.
	selfShares := sharedNoteIDs(self, other.ID)
	otherShares := sharedNoteIDs(other, self.ID)

	// Four steps: revoke both share sets, then drop both edges.
	// Partial failure is reported as one aggregate error per phase;
	// already-applied steps are not rolled back (the store has no
	// multi-document transactions).
	errSelf := m.conn.updateOne(ctx, usersCollection, byID(self.ID), pullAllowances(selfShares))
	errOther := m.conn.updateOne(ctx, usersCollection, byID(other.ID), pullAllowances(otherShares))
	if errSelf != nil || errOther != nil {
		return storage.QueryFailed(
			fmt.Sprintf("revoke allowances for notes shared between %q and %q", self.ID, other.ID),
			errors.Join(errSelf, errOther))
	}

	errSelf = m.conn.updateOne(ctx, usersCollection, byID(self.ID),
		pullFrom("connections", other.ID))
	errOther = m.conn.updateOne(ctx, usersCollection, byID(other.ID),
		pullFrom("connections", self.ID))
	if errSelf != nil || errOther != nil {
		return storage.QueryFailed(
			fmt.Sprintf("cancel association between %q and %q", self.ID, other.ID),
			errors.Join(errSelf, errOther))
	}
	return nil
}

func (m *userManager) Notes(ctx context.Context) ([]string, error) {
	user, err := fetchUser(ctx, m.conn, m.meta.ID)
	if err != nil {
		return nil, err
	}
	noteIDs := make([]string, 0, len(user.Allowances))
	for _, allow := range user.Allowances {
		noteIDs = append(noteIDs, allow.NoteID)
	}
	return noteIDs, nil
}

func (m *userManager) AddNote(ctx context.Context, title string) (storage.NoteManager, error) {
	now := m.clock.Now()
	note := noteDoc{
		Title:      title,
		Content:    "",
		OwnerID:    m.meta.ID,
		Tags:       []string{},
		CreatedAt:  now,
		LastEdited: now,
	}

	insertedID, err := m.conn.insertOne(ctx, notesCollection, note)
	if err != nil {
		return nil, storage.QueryFailed("insert of new note", err)
	}
	oid, ok := insertedID.(primitive.ObjectID)
	if !ok {
		return nil, storage.New(storage.CodeSchemaParse,
			fmt.Sprintf("inserted note id has unexpected type %T", insertedID))
	}
	noteID := oid.Hex()

	err = m.conn.updateOne(ctx, usersCollection, byID(m.meta.ID),
		pushTo("allowances", allowanceDoc{
			NoteID:  noteID,
			Level:   storage.Moderate.String(),
			OwnerID: m.meta.ID,
		}))
	if err != nil {
		// The note document now exists without any allowance pointing
		// at it. No rollback; the error names the orphan so an
		// operator can act.
		return nil, storage.QueryFailed(
			fmt.Sprintf("register new note %q with owner %q (note inserted, allowance push failed)", noteID, m.meta.ID),
			err)
	}
	return m.Note(ctx, noteID)
}

func (m *userManager) Note(ctx context.Context, noteID string) (storage.NoteManager, error) {
	if err := storage.CheckSafe(noteID); err != nil {
		return nil, err
	}
	user, err := fetchUser(ctx, m.conn, m.meta.ID)
	if err != nil {
		return nil, err
	}
	for _, allow := range user.Allowances {
		if allow.NoteID != noteID {
			continue
		}
		level, err := storage.ParsePermissionLevel(allow.Level)
		if err != nil {
			return nil, err
		}
		return newNoteManager(ctx, m.conn, m.clock, noteID, level)
	}
	// No allowance entry. Whether the note exists or was simply never
	// shared with this user is deliberately indistinguishable.
	return nil, storage.ErrNoPermission
}

func (m *userManager) RemoveNote(ctx context.Context, noteID string) error {
	note, err := m.Note(ctx, noteID)
	if err != nil {
		return err
	}
	if !note.Meta().Permission.Permits(storage.Moderate) {
		return storage.ErrNoPermission
	}

	// Collection-wide sweep of every allowance referencing the note.
	// Not indexed per-user, which is acceptable: deletions are rare
	// relative to reads.
	err = m.conn.updateMany(ctx, usersCollection, bson.D{},
		pullFrom("allowances", bson.D{{Key: "note_id", Value: noteID}}))
	if err != nil {
		return storage.QueryFailed(fmt.Sprintf("remove references to note with ID=%q", noteID), err)
	}

	oid, err := noteObjectID(noteID)
	if err != nil {
		return err
	}
	if err := m.conn.deleteOne(ctx, notesCollection, bson.D{{Key: "_id", Value: oid}}); err != nil {
		return storage.QueryFailed(fmt.Sprintf("removal of note with ID=%q", noteID), err)
	}
	return nil
}

// sharedNoteIDs returns the ids of notes in holder's allowance list
// that are owned by ownerID.
func sharedNoteIDs(holder *userDoc, ownerID string) []string {
	var noteIDs []string
	for _, allow := range holder.Allowances {
		if allow.OwnerID == ownerID {
			noteIDs = append(noteIDs, allow.NoteID)
		}
	}
	return noteIDs
}

// pushTo builds a $push update appending value to an array field.
func pushTo(field string, value any) bson.D {
	return bson.D{{Key: "$push", Value: bson.D{{Key: field, Value: value}}}}
}

// pullFrom builds a $pull update removing matching entries from an
// array field. Pulling an absent entry is a no-op, which the
// multi-step sequences rely on.
func pullFrom(field string, match any) bson.D {
	return bson.D{{Key: "$pull", Value: bson.D{{Key: field, Value: match}}}}
}

// pullAllowances builds a $pull update removing every allowance
// whose note id is in noteIDs.
func pullAllowances(noteIDs []string) bson.D {
	if noteIDs == nil {
		noteIDs = []string{}
	}
	return pullFrom("allowances", bson.D{
		{Key: "note_id", Value: bson.D{{Key: "$in", Value: noteIDs}}},
	})
}
