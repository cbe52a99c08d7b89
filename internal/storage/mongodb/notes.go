package mongodb

import (
	"context"
	"fmt"
	"slices"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/writeup-app/writeup/internal/storage"
)

// noteCache holds the field values a previous note lookup already
// included, saving redundant reads at a minimal cost of accuracy.
type noteCache struct {
	title   string
	content string
	tags    []string
}

// noteManager implements storage.NoteManager. The permission level
// in meta is a snapshot taken when the manager was constructed; it
// is not re-checked per call.
type noteManager struct {
	meta  storage.NoteMeta
	conn  *conn
	clock storage.Clock
	cache noteCache
}

func newNoteManager(ctx context.Context, c *conn, clock storage.Clock, noteID string, perm storage.PermissionLevel) (*noteManager, error) {
	note, err := fetchNote(ctx, c, noteID)
	if err != nil {
		return nil, err
	}
	return &noteManager{
		meta: storage.NoteMeta{
			ID:         noteID,
			Permission: perm,
			OwnerID:    note.OwnerID,
			CreatedAt:  note.CreatedAt,
			LastEdited: note.LastEdited,
		},
		conn:  c,
		clock: clock,
		cache: noteCache{title: note.Title, content: note.Content, tags: note.Tags},
	}, nil
}

func (m *noteManager) Meta() storage.NoteMeta {
	return m.meta
}

func (m *noteManager) Title() string {
	return m.cache.title
}

func (m *noteManager) SetTitle(ctx context.Context, title string) error {
	return m.setField(ctx, "title", title, func() { m.cache.title = title })
}

func (m *noteManager) Content() string {
	return m.cache.content
}

func (m *noteManager) SetContent(ctx context.Context, content string) error {
	return m.setField(ctx, "content", content, func() { m.cache.content = content })
}

func (m *noteManager) Tags() []string {
	return slices.Clone(m.cache.tags)
}

func (m *noteManager) SetTags(ctx context.Context, tags []string) error {
	tags = slices.Clone(tags)
	return m.setField(ctx, "tags", tags, func() { m.cache.tags = tags })
}

// setField writes one note field plus a fresh last_edited stamp in a
// single update, then runs commit to mirror the change into the
// cache. The cache is only touched after the store reported success,
// so the two never diverge after a reported success.
func (m *noteManager) setField(ctx context.Context, field string, value any, commit func()) error {
	if !m.meta.Permission.Permits(storage.ReadWrite) {
		return storage.ErrNoPermission
	}
	oid, err := noteObjectID(m.meta.ID)
	if err != nil {
		return err
	}

	stamp := m.clock.Now()
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: field, Value: value},
		{Key: "last_edited", Value: stamp},
	}}}
	if err := m.conn.updateOne(ctx, notesCollection, bson.D{{Key: "_id", Value: oid}}, update); err != nil {
		return storage.QueryFailed(
			fmt.Sprintf("set %s of note with ID=%q", field, m.meta.ID), err)
	}

	m.meta.LastEdited = stamp
	commit()
	return nil
}

func (m *noteManager) UpdateShare(ctx context.Context, userID string, level storage.PermissionLevel) error {
	if !m.meta.Permission.Permits(storage.Moderate) {
		return storage.ErrNoPermission
	}

	target, err := fetchUser(ctx, m.conn, userID)
	if err != nil {
		return err
	}
	// Association with the owner is a prerequisite for sharing.
	if !slices.Contains(target.Connections, m.meta.OwnerID) {
		return storage.InvalidRequest(
			fmt.Sprintf("%q and %q don't associate with each other", m.meta.OwnerID, userID))
	}

	hasAllowance := false
	for _, allow := range target.Allowances {
		if allow.NoteID == m.meta.ID {
			hasAllowance = true
			break
		}
	}

	filter, update, err := shareUpdate(userID, m.meta.ID, m.meta.OwnerID, level, hasAllowance)
	if err != nil {
		return err
	}
	if err := m.conn.updateOne(ctx, usersCollection, filter, update); err != nil {
		return storage.QueryFailed(
			fmt.Sprintf("update user's (ID=%q) share of note (ID=%q)", userID, m.meta.ID), err)
	}
	return nil
}

// shareUpdate builds the filter and update document for a share
// mutation. Three cases: revoking an absent allowance is an invalid
// request, a new grant is a $push, revoking an existing one is a
// $pull, and changing the level of an existing one is a targeted
// $set on the matched array element (never a full-list replace).
func shareUpdate(userID, noteID, ownerID string, level storage.PermissionLevel, hasAllowance bool) (filter, update bson.D, err error) {
	switch {
	case level == storage.Forbidden && !hasAllowance:
		return nil, nil, storage.InvalidRequest(
			fmt.Sprintf("%q has no permission to revoke", userID))
	case level == storage.Forbidden:
		filter = byID(userID)
		update = pullFrom("allowances", bson.D{{Key: "note_id", Value: noteID}})
	case !hasAllowance:
		filter = byID(userID)
		update = pushTo("allowances", allowanceDoc{
			NoteID:  noteID,
			Level:   level.String(),
			OwnerID: ownerID,
		})
	default:
		filter = bson.D{
			{Key: "_id", Value: userID},
			{Key: "allowances.note_id", Value: noteID},
		}
		update = bson.D{{Key: "$set", Value: bson.D{
			{Key: "allowances.$.level", Value: level.String()},
		}}}
	}
	return filter, update, nil
}

// noteObjectID converts a note id back to its object id. Note ids
// only ever originate from inserted documents, so a malformed one is
// a schema fault, not caller input.
func noteObjectID(noteID string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(noteID)
	if err != nil {
		return primitive.NilObjectID, storage.New(storage.CodeSchemaParse,
			fmt.Sprintf("note id %q is not a valid object id", noteID))
	}
	return oid, nil
}
