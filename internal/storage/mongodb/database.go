package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/writeup-app/writeup/internal/storage"
)

// databaseManager implements storage.DBManager.
type databaseManager struct {
	meta   storage.DBMeta
	conn   *conn
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

	var cred credentialDoc
	err := m.conn.findOne(ctx, credentialsCollection, byID(username), &cred)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// Hash the supplied password anyway so the unknown-user path
		// costs the same as a failed verification. Without this,
		// response latency would reveal whether the account exists.
		_, _ = m.hasher.HashPassword(password)
		return nil, storage.ErrIncorrectCredentials
	}
	if err != nil {
		return nil, storage.QueryFailed(fmt.Sprintf("lookup of credential with ID=%q", username), err)
	}

	if !m.hasher.VerifyPassword(password, cred.PasswordHash) {
		return nil, storage.ErrIncorrectCredentials
	}
	return m.User(ctx, cred.ID)
}

func (m *databaseManager) Register(ctx context.Context, username, password string) (storage.UserManager, error) {
	if err := storage.CheckSafe(username); err != nil {
		return nil, err
	}

	// Refuse to overwrite an existing account.
	var existing credentialDoc
	err := m.conn.findOne(ctx, credentialsCollection, byID(username), &existing)
	if err == nil {
		return nil, storage.Duplicate(credentialsCollection, username)
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.QueryFailed(fmt.Sprintf("lookup of credential with ID=%q", username), err)
	}

	hash, err := m.hasher.HashPassword(password)
	if err != nil {
		return nil, storage.QueryFailed("hashing of new user's password", err)
	}

	cred := credentialDoc{ID: username, PasswordHash: hash}
	user := userDoc{
		ID:          username,
		Allowances:  []allowanceDoc{},
		Connections: []string{},
		MemberSince: m.clock.Now(),
	}

	credID, credErr := m.conn.insertOne(ctx, credentialsCollection, cred)
	userID, userErr := m.conn.insertOne(ctx, usersCollection, user)
	if credErr != nil || userErr != nil {
		return nil, storage.QueryFailed(
			fmt.Sprintf("insert of credential/user with ID=%q", username),
			errors.Join(credErr, userErr))
	}
	// Both inserts carry the same _id. If the store reports otherwise
	// the two collections have diverged, which nothing above this
	// layer can repair.
	if credID != userID {
		return nil, storage.New(storage.CodeQuery, "ids of credential and user documents differ")
	}

	return m.User(ctx, username)
}

func (m *databaseManager) User(ctx context.Context, userID string) (storage.UserManager, error) {
	return newUserManager(ctx, m.conn, m.clock, userID)
}

func (m *databaseManager) RemoveUser(ctx context.Context, userID string) error {
	user, err := m.User(ctx, userID)
	if err != nil {
		return err
	}

	// Release every note the user can reach. Owned notes are deleted
	// outright; notes merely shared with the user fail the Moderate
	// gate and keep existing — their allowance entries die with the
	// user document below.
	noteIDs, err := user.Notes(ctx)
	if err != nil {
		return err
	}
	for _, noteID := range noteIDs {
		if err := user.RemoveNote(ctx, noteID); err != nil && !errors.Is(err, storage.ErrNoPermission) {
			return err
		}
	}

	// Withdraw every association, which also revokes shares granted
	// in either direction.
	associates, err := user.Associates(ctx)
	if err != nil {
		return err
	}
	for _, other := range associates {
		if err := user.RevokeAssociation(ctx, other); err != nil {
			return err
		}
	}

	// Credential and user documents go together. No partial-success
	// signaling: the caller's only valid reaction is retry or alert.
	credErr := m.conn.deleteOne(ctx, credentialsCollection, byID(userID))
	userErr := m.conn.deleteOne(ctx, usersCollection, byID(userID))
	if credErr != nil || userErr != nil {
		return storage.QueryFailed(
			fmt.Sprintf("removal of user and credential with ID=%q", userID),
			errors.Join(credErr, userErr))
	}
	return nil
}
