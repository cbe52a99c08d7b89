package memory

import (
	"context"
	"errors"

	"github.com/writeup-app/writeup/internal/storage"
)

// databaseManager implements storage.DBManager.
type databaseManager struct {
	meta   storage.DBMeta
	store  *store
	hasher storage.PasswordHasher
	clock  storage.Clock
}

func (m *databaseManager) Meta() storage.DBMeta {
	return m.meta
}

func (m *databaseManager) Authenticate(ctx context.Context, username, password string) (storage.UserManager, error) {
	if err := storage.CheckSafe(username); err != nil {
		return nil, err
	}

	m.store.mu.Lock()
	hash, ok := m.store.creds[username]
	m.store.mu.Unlock()

	if !ok {
		// Same dummy hash computation as the mongodb backend, for the
		// same reason: the unknown-user path must cost as much as a
		// failed verification.
		_, _ = m.hasher.HashPassword(password)
		return nil, storage.ErrIncorrectCredentials
	}
	if !m.hasher.VerifyPassword(password, hash) {
		return nil, storage.ErrIncorrectCredentials
	}
	return m.User(ctx, username)
}

func (m *databaseManager) Register(ctx context.Context, username, password string) (storage.UserManager, error) {
	if err := storage.CheckSafe(username); err != nil {
		return nil, err
	}
	hash, err := m.hasher.HashPassword(password)
	if err != nil {
		return nil, storage.QueryFailed("hashing of new user's password", err)
	}

	m.store.mu.Lock()
	if _, exists := m.store.creds[username]; exists {
		m.store.mu.Unlock()
		return nil, storage.Duplicate(credentialsCollection, username)
	}
	m.store.creds[username] = hash
	m.store.users[username] = &userRecord{
		allowances:  []allowance{},
		connections: []string{},
		memberSince: m.clock.Now(),
	}
	m.store.mu.Unlock()

	return m.User(ctx, username)
}

func (m *databaseManager) User(ctx context.Context, userID string) (storage.UserManager, error) {
	return newUserManager(m.store, m.clock, userID)
}

func (m *databaseManager) RemoveUser(ctx context.Context, userID string) error {
	user, err := m.User(ctx, userID)
	if err != nil {
		return err
	}

	noteIDs, err := user.Notes(ctx)
	if err != nil {
		return err
	}
	for _, noteID := range noteIDs {
		if err := user.RemoveNote(ctx, noteID); err != nil && !errors.Is(err, storage.ErrNoPermission) {
			return err
		}
	}

	associates, err := user.Associates(ctx)
	if err != nil {
		return err
	}
	for _, other := range associates {
		if err := user.RevokeAssociation(ctx, other); err != nil {
			return err
		}
	}

	m.store.mu.Lock()
	delete(m.store.creds, userID)
	delete(m.store.users, userID)
	m.store.mu.Unlock()
	return nil
}
