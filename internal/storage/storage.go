// Package storage defines the layered manager interfaces through
// which every stateful operation of the notes backend is mediated,
// the permission lattice that gates them, and the error taxonomy the
// backends report with.
//
// A caller obtains a DBManager from a ManagerPool, authenticates or
// registers to obtain a UserManager, then optionally descends to a
// NoteManager for a specific note. Each descent re-validates identity
// and permission against the store; no manager trusts data cached by
// a level above it beyond what it fetched itself at construction.
package storage

import (
	"context"
	"time"
)

// DBMeta is a database's meta information.
type DBMeta struct {
	// DriverID identifies the backend in use.
	DriverID string
	// Version is the schema version the database is running.
	Version string
}

// UserMeta is a user's identity snapshot, captured when the
// UserManager was constructed.
type UserMeta struct {
	ID          string
	Name        string
	MemberSince time.Time
}

// NoteMeta is a note's meta information. Permission is the calling
// user's level, captured at construction and valid for the manager's
// lifetime.
type NoteMeta struct {
	ID         string
	Permission PermissionLevel
	OwnerID    string
	CreatedAt  time.Time
	LastEdited time.Time
}

// ManagerPool holds one validated connection and mints stateless
// DBManager handles from it. Callers may request one manager per
// logical operation.
type ManagerPool interface {
	// Manager returns a fresh DBManager. Cheap and stateless.
	Manager() DBManager
	// Sessions returns the session store backed by the same connection.
	Sessions() SessionStore
	// Close releases the underlying connection.
	Close(ctx context.Context) error
}

// DBManager performs identity-level operations. It never touches
// note content.
type DBManager interface {
	// Meta returns the database's meta information.
	Meta() DBMeta

	// Authenticate verifies a user's credentials and returns the
	// corresponding UserManager. Unknown users and wrong passwords
	// both fail with ErrIncorrectCredentials; the unknown-user path
	// still performs a dummy hash computation so account existence
	// does not leak through response latency.
	Authenticate(ctx context.Context, username, password string) (UserManager, error)

	// Register creates a credential and user record for a new
	// account and returns its UserManager. Fails with a duplicate
	// error if the username is taken.
	Register(ctx context.Context, username, password string) (UserManager, error)

	// User returns a UserManager for an existing user.
	User(ctx context.Context, userID string) (UserManager, error)

	// RemoveUser deletes a user: first every note it owns and every
	// association it holds, then its credential and user records
	// together.
	RemoveUser(ctx context.Context, userID string) error
}

// UserManager performs operations scoped to one user.
type UserManager interface {
	// Meta returns the identity snapshot taken at construction.
	Meta() UserMeta

	// AssociateWith connects this user with another. The connection
	// is symmetric: both users list each other afterwards.
	AssociateWith(ctx context.Context, userID string) error
	// Associates returns the user's current connections, read fresh
	// from the store since other users' actions change it.
	Associates(ctx context.Context) ([]string, error)
	// RevokeAssociation disconnects two users, first withdrawing
	// every note share granted in either direction as a consequence
	// of the association.
	RevokeAssociation(ctx context.Context, userID string) error

	// Notes returns the ids of every note this user may access.
	Notes(ctx context.Context) ([]string, error)
	// AddNote creates an empty note owned by this user and returns
	// its manager. The owner holds Moderate permission.
	AddNote(ctx context.Context, title string) (NoteManager, error)
	// Note returns a manager for a note this user holds an allowance
	// for. Notes that exist but were never shared with this user are
	// indistinguishable from permission denial.
	Note(ctx context.Context, noteID string) (NoteManager, error)
	// RemoveNote deletes a note this user moderates, sweeping every
	// allowance referencing it from all users first.
	RemoveNote(ctx context.Context, noteID string) error
}

// NoteManager performs operations scoped to one note, gated by the
// permission level captured at construction. Title, content and tags
// are served from a local cache populated at construction; every
// successful mutator updates both the store and the cache.
//
// A NoteManager is not safe for concurrent mutation; use it from one
// goroutine at a time.
type NoteManager interface {
	// Meta returns the note's meta information.
	Meta() NoteMeta

	Title() string
	SetTitle(ctx context.Context, title string) error

	Content() string
	SetContent(ctx context.Context, content string) error

	Tags() []string
	SetTags(ctx context.Context, tags []string) error

	// UpdateShare grants, changes, or (with Forbidden) revokes
	// another user's allowance for this note. Requires Moderate, and
	// requires the target to be associated with the note's owner.
	UpdateShare(ctx context.Context, userID string, level PermissionLevel) error
}

// SessionState is the opaque key-value state a web session carries.
type SessionState map[string]string

// SessionStore persists web-session state with a time-to-live. Keys
// are generated by the store and are safe to hand to clients.
type SessionStore interface {
	// Load returns the state stored under key. Expired or unknown
	// sessions fail with a missing_entry error; an expired session
	// is deleted on the way out.
	Load(ctx context.Context, key string) (SessionState, error)
	// Save stores state under a fresh random key and returns it.
	Save(ctx context.Context, state SessionState, ttl time.Duration) (string, error)
	// Update replaces the state under an existing key and renews its
	// expiry.
	Update(ctx context.Context, key string, state SessionState, ttl time.Duration) error
	// Delete removes the session. Deleting an unknown key is a no-op.
	Delete(ctx context.Context, key string) error
}

// PasswordHasher is the external hashing collaborator. The pepper or
// secret behind it is supplied by configuration, not by this layer.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	VerifyPassword(password, encodedHash string) bool
}
