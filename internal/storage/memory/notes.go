package memory

import (
	"context"
	"fmt"
	"slices"

	"github.com/writeup-app/writeup/internal/storage"
)

// noteManager implements storage.NoteManager. Permission is a
// snapshot taken at construction, and title/content/tags are served
// from a local cache kept in lockstep with the store on every
// successful mutation.
type noteManager struct {
	meta  storage.NoteMeta
	store *store
	clock storage.Clock
	cache noteCache
}

type noteCache struct {
	title   string
	content string
	tags    []string
}

// newNoteManager snapshots the note's fields. Caller must hold the
// store lock.
func newNoteManager(s *store, clock storage.Clock, noteID string, perm storage.PermissionLevel) (*noteManager, error) {
	note, err := s.getNote(noteID)
	if err != nil {
		return nil, err
	}
	return &noteManager{
		meta: storage.NoteMeta{
			ID:         noteID,
			Permission: perm,
			OwnerID:    note.ownerID,
			CreatedAt:  note.createdAt,
			LastEdited: note.lastEdited,
		},
		store: s,
		clock: clock,
		cache: noteCache{
			title:   note.title,
			content: note.content,
			tags:    slices.Clone(note.tags),
		},
	}, nil
}

func (m *noteManager) Meta() storage.NoteMeta {
	return m.meta
}

func (m *noteManager) Title() string {
	return m.cache.title
}

func (m *noteManager) SetTitle(ctx context.Context, title string) error {
	return m.setField(ctx,
		func(note *noteRecord) { note.title = title },
		func() { m.cache.title = title })
}

func (m *noteManager) Content() string {
	return m.cache.content
}

func (m *noteManager) SetContent(ctx context.Context, content string) error {
	return m.setField(ctx,
		func(note *noteRecord) { note.content = content },
		func() { m.cache.content = content })
}

func (m *noteManager) Tags() []string {
	return slices.Clone(m.cache.tags)
}

func (m *noteManager) SetTags(ctx context.Context, tags []string) error {
	tags = slices.Clone(tags)
	return m.setField(ctx,
		func(note *noteRecord) { note.tags = slices.Clone(tags) },
		func() { m.cache.tags = tags })
}

// setField applies one field mutation plus a fresh lastEdited stamp
// to the stored note, then mirrors it into the cache.
func (m *noteManager) setField(_ context.Context, apply func(*noteRecord), commit func()) error {
	if !m.meta.Permission.Permits(storage.ReadWrite) {
		return storage.ErrNoPermission
	}

	stamp := m.clock.Now()

	m.store.mu.Lock()
	note, err := m.store.getNote(m.meta.ID)
	if err != nil {
		m.store.mu.Unlock()
		return err
	}
	apply(note)
	note.lastEdited = stamp
	m.store.mu.Unlock()

	m.meta.LastEdited = stamp
	commit()
	return nil
}

func (m *noteManager) UpdateShare(ctx context.Context, userID string, level storage.PermissionLevel) error {
	if !m.meta.Permission.Permits(storage.Moderate) {
		return storage.ErrNoPermission
	}

	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	target, err := m.store.getUser(userID)
	if err != nil {
		return err
	}
	if !slices.Contains(target.connections, m.meta.OwnerID) {
		return storage.InvalidRequest(
			fmt.Sprintf("%q and %q don't associate with each other", m.meta.OwnerID, userID))
	}

	existing := -1
	for i, allow := range target.allowances {
		if allow.noteID == m.meta.ID {
			existing = i
			break
		}
	}

	switch {
	case level == storage.Forbidden && existing < 0:
		return storage.InvalidRequest(fmt.Sprintf("%q has no permission to revoke", userID))
	case level == storage.Forbidden:
		target.allowances = slices.Delete(target.allowances, existing, existing+1)
	case existing < 0:
		target.allowances = append(target.allowances, allowance{
			noteID:  m.meta.ID,
			level:   level,
			ownerID: m.meta.OwnerID,
		})
	default:
		target.allowances[existing].level = level
	}
	return nil
}
