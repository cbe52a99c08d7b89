package memory

import (
	"context"
	"crypto/rand"
	"fmt"
	"maps"
	"time"

	"github.com/writeup-app/writeup/internal/storage"
)

const sessionKeyLength = 64

// Same alphabet as the mongodb backend: generated keys must pass the
// sanitization guard.
const sessionKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// sessionStore implements storage.SessionStore in memory.
type sessionStore struct {
	store *store
	clock storage.Clock
}

func (s *sessionStore) Load(ctx context.Context, key string) (storage.SessionState, error) {
	if err := storage.CheckSafe(key); err != nil {
		return nil, err
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	session, ok := s.store.sessions[key]
	if !ok {
		return nil, storage.MissingEntry(sessionsCollection, key)
	}
	if s.clock.Now().After(session.expire) {
		delete(s.store.sessions, key)
		return nil, storage.MissingEntry(sessionsCollection, key)
	}
	return maps.Clone(session.state), nil
}

func (s *sessionStore) Save(ctx context.Context, state storage.SessionState, ttl time.Duration) (string, error) {
	key, err := newSessionKey()
	if err != nil {
		return "", storage.QueryFailed("generation of session key", err)
	}

	s.store.mu.Lock()
	s.store.sessions[key] = sessionRecord{
		state:  maps.Clone(state),
		expire: s.clock.Now().Add(ttl),
	}
	s.store.mu.Unlock()
	return key, nil
}

func (s *sessionStore) Update(ctx context.Context, key string, state storage.SessionState, ttl time.Duration) error {
	if err := storage.CheckSafe(key); err != nil {
		return err
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	if _, ok := s.store.sessions[key]; !ok {
		return storage.MissingEntry(sessionsCollection, key)
	}
	s.store.sessions[key] = sessionRecord{
		state:  maps.Clone(state),
		expire: s.clock.Now().Add(ttl),
	}
	return nil
}

func (s *sessionStore) Delete(ctx context.Context, key string) error {
	if err := storage.CheckSafe(key); err != nil {
		return err
	}

	s.store.mu.Lock()
	delete(s.store.sessions, key)
	s.store.mu.Unlock()
	return nil
}

func newSessionKey() (string, error) {
	raw := make([]byte, sessionKeyLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("draw session key: %w", err)
	}
	key := make([]byte, sessionKeyLength)
	for i, b := range raw {
		key[i] = sessionKeyAlphabet[int(b)%len(sessionKeyAlphabet)]
	}
	return string(key), nil
}
