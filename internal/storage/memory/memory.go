// Package memory implements the storage manager interfaces entirely
// in process memory. It mirrors the mongodb backend's semantics —
// same error kinds, same gating, same cascade order — and backs the
// conformance tests as well as the CLI's --no-db mode, the same way
// the rest of the stack swaps real services for in-process fakes
// under test.
package memory

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/writeup-app/writeup/internal/auth"
	"github.com/writeup-app/writeup/internal/storage"
)

// DriverID identifies this backend in DBMeta.
const DriverID = "memory"

// schemaVersion matches the mongodb backend's layout version; a
// fresh in-memory store is always current.
const schemaVersion = "1.0"

// Collection names, used verbatim in error messages so both backends
// report identically.
const (
	notesCollection       = "notes"
	credentialsCollection = "creds"
	usersCollection       = "user"
	sessionsCollection    = "sessions"
)

type allowance struct {
	noteID  string
	level   storage.PermissionLevel
	ownerID string
}

type userRecord struct {
	allowances  []allowance
	connections []string
	memberSince time.Time
}

type noteRecord struct {
	title      string
	content    string
	ownerID    string
	tags       []string
	createdAt  time.Time
	lastEdited time.Time
}

type sessionRecord struct {
	state  storage.SessionState
	expire time.Time
}

// store holds all records behind one lock. Operations take the lock
// once and run to completion, so unlike the mongodb backend the
// multi-step sequences here happen to be atomic — callers must not
// rely on that.
type store struct {
	mu       sync.Mutex
	creds    map[string]string // username -> password hash
	users    map[string]*userRecord
	notes    map[string]*noteRecord
	sessions map[string]sessionRecord
}

// Config configures an in-memory pool.
type Config struct {
	// Hasher is the password hashing collaborator. Nil means argon2id;
	// tests usually pass auth.FakeInsecureHasher.
	Hasher storage.PasswordHasher
	// Clock overrides the time source. Nil means system time.
	Clock storage.Clock
}

// Pool implements storage.ManagerPool on an in-memory store.
type Pool struct {
	store  *store
	hasher storage.PasswordHasher
	clock  storage.Clock
}

// Open creates an empty in-memory pool. It cannot fail: there is no
// handshake and a fresh store is always on the current schema
// version.
func Open(cfg Config) *Pool {
	if cfg.Hasher == nil {
		cfg.Hasher = auth.Argon2Hasher{}
	}
	if cfg.Clock == nil {
		cfg.Clock = storage.SystemClock{}
	}
	return &Pool{
		store: &store{
			creds:    make(map[string]string),
			users:    make(map[string]*userRecord),
			notes:    make(map[string]*noteRecord),
			sessions: make(map[string]sessionRecord),
		},
		hasher: cfg.Hasher,
		clock:  cfg.Clock,
	}
}

// Manager returns a fresh DBManager on the shared store.
func (p *Pool) Manager() storage.DBManager {
	return &databaseManager{
		meta:   storage.DBMeta{DriverID: DriverID, Version: schemaVersion},
		store:  p.store,
		hasher: p.hasher,
		clock:  p.clock,
	}
}

// Sessions returns the session store on the shared store.
func (p *Pool) Sessions() storage.SessionStore {
	return &sessionStore{store: p.store, clock: p.clock}
}

// Close is a no-op; the store lives and dies with the process.
func (p *Pool) Close(context.Context) error {
	return nil
}

// newNoteID generates a fresh note id. Dashless hex so generated ids
// always pass the sanitization guard.
func newNoteID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// getUser returns the user record for id. Caller must hold the lock.
func (s *store) getUser(userID string) (*userRecord, error) {
	if err := storage.CheckSafe(userID); err != nil {
		return nil, err
	}
	user, ok := s.users[userID]
	if !ok {
		return nil, storage.MissingEntry(usersCollection, userID)
	}
	return user, nil
}

// getNote returns the note record for id. Caller must hold the lock.
func (s *store) getNote(noteID string) (*noteRecord, error) {
	if err := storage.CheckSafe(noteID); err != nil {
		return nil, err
	}
	note, ok := s.notes[noteID]
	if !ok {
		return nil, storage.MissingEntry(notesCollection, noteID)
	}
	return note, nil
}
