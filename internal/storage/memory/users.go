package memory

import (
	"context"
	"fmt"
	"slices"

	"github.com/writeup-app/writeup/internal/storage"
)

// userManager implements storage.UserManager.
type userManager struct {
	meta  storage.UserMeta
	store *store
	clock storage.Clock
}

func newUserManager(s *store, clock storage.Clock, userID string) (*userManager, error) {
	s.mu.Lock()
	user, err := s.getUser(userID)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &userManager{
		meta: storage.UserMeta{
			ID:          userID,
			Name:        userID,
			MemberSince: user.memberSince,
		},
		store: s,
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

	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	other, err := m.store.getUser(userID)
	if err != nil {
		return err
	}
	if slices.Contains(other.connections, m.meta.ID) {
		return storage.InvalidRequest(
			fmt.Sprintf("%q and %q already share an association with each other", m.meta.ID, userID))
	}
	self, err := m.store.getUser(m.meta.ID)
	if err != nil {
		return err
	}

	other.connections = append(other.connections, m.meta.ID)
	self.connections = append(self.connections, userID)
	return nil
}

func (m *userManager) Associates(ctx context.Context) ([]string, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	user, err := m.store.getUser(m.meta.ID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(user.connections), nil
}

func (m *userManager) RevokeAssociation(ctx context.Context, userID string) error {
	if err := storage.CheckSafe(userID); err != nil {
		return err
	}
	if userID == m.meta.ID {
		return storage.InvalidRequest("users are not associated with themselves")
	}

	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	self, err := m.store.getUser(m.meta.ID)
	if err != nil {
		return err
	}
	if !slices.Contains(self.connections, userID) {
		return storage.InvalidRequest(
			fmt.Sprintf("%q and %q are not associated with each other", m.meta.ID, userID))
	}
	other, err := m.store.getUser(userID)
	if err != nil {
		return err
	}

	// Withdraw the shares granted in either direction, then drop both
	// edges.
	self.allowances = slices.DeleteFunc(self.allowances, func(a allowance) bool {
		return a.ownerID == userID
	})
	other.allowances = slices.DeleteFunc(other.allowances, func(a allowance) bool {
		return a.ownerID == m.meta.ID
	})
	self.connections = slices.DeleteFunc(self.connections, func(id string) bool {
		return id == userID
	})
	other.connections = slices.DeleteFunc(other.connections, func(id string) bool {
		return id == m.meta.ID
	})
	return nil
}

func (m *userManager) Notes(ctx context.Context) ([]string, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	user, err := m.store.getUser(m.meta.ID)
	if err != nil {
		return nil, err
	}
	noteIDs := make([]string, 0, len(user.allowances))
	for _, allow := range user.allowances {
		noteIDs = append(noteIDs, allow.noteID)
	}
	return noteIDs, nil
}

func (m *userManager) AddNote(ctx context.Context, title string) (storage.NoteManager, error) {
	now := m.clock.Now()
	noteID := newNoteID()

	m.store.mu.Lock()
	user, err := m.store.getUser(m.meta.ID)
	if err != nil {
		m.store.mu.Unlock()
		return nil, err
	}
	m.store.notes[noteID] = &noteRecord{
		title:      title,
		content:    "",
		ownerID:    m.meta.ID,
		tags:       []string{},
		createdAt:  now,
		lastEdited: now,
	}
	user.allowances = append(user.allowances, allowance{
		noteID:  noteID,
		level:   storage.Moderate,
		ownerID: m.meta.ID,
	})
	m.store.mu.Unlock()

	return m.Note(ctx, noteID)
}

func (m *userManager) Note(ctx context.Context, noteID string) (storage.NoteManager, error) {
	if err := storage.CheckSafe(noteID); err != nil {
		return nil, err
	}

	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	user, err := m.store.getUser(m.meta.ID)
	if err != nil {
		return nil, err
	}
	for _, allow := range user.allowances {
		if allow.noteID == noteID {
			return newNoteManager(m.store, m.clock, noteID, allow.level)
		}
	}
	// Absent allowance and permission denial are indistinguishable.
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

	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	// Sweep every allowance referencing the note before the note
	// itself goes.
	for _, user := range m.store.users {
		user.allowances = slices.DeleteFunc(user.allowances, func(a allowance) bool {
			return a.noteID == noteID
		})
	}
	delete(m.store.notes, noteID)
	return nil
}
