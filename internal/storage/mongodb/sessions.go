package mongodb

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/writeup-app/writeup/internal/storage"
)

// sessionKeyLength is the length of generated session keys.
const sessionKeyLength = 64

// sessionKeyAlphabet deliberately contains none of the reserved
// characters, so generated keys always pass the sanitization guard.
const sessionKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// sessionStore implements storage.SessionStore on the sessions
// collection.
type sessionStore struct {
	conn  *conn
	clock storage.Clock
}

func (s *sessionStore) Load(ctx context.Context, key string) (storage.SessionState, error) {
	if err := storage.CheckSafe(key); err != nil {
		return nil, err
	}
	var doc sessionDoc
	err := s.conn.findOne(ctx, sessionsCollection, byID(key), &doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.MissingEntry(sessionsCollection, key)
	}
	if err != nil {
		return nil, storage.QueryFailed(fmt.Sprintf("lookup of session with key=%q", key), err)
	}
	if s.clock.Now().After(doc.Expire) {
		// Lazy expiry: the startup sweep only catches sessions that
		// timed out before the last restart.
		_ = s.conn.deleteOne(ctx, sessionsCollection, byID(key))
		return nil, storage.MissingEntry(sessionsCollection, key)
	}
	return doc.State, nil
}

func (s *sessionStore) Save(ctx context.Context, state storage.SessionState, ttl time.Duration) (string, error) {
	key, err := newSessionKey()
	if err != nil {
		return "", storage.QueryFailed("generation of session key", err)
	}
	doc := sessionDoc{
		ID:     key,
		State:  state,
		Expire: s.clock.Now().Add(ttl),
	}
	if _, err := s.conn.insertOne(ctx, sessionsCollection, doc); err != nil {
		return "", storage.QueryFailed("insert of new session", err)
	}
	return key, nil
}

func (s *sessionStore) Update(ctx context.Context, key string, state storage.SessionState, ttl time.Duration) error {
	if err := storage.CheckSafe(key); err != nil {
		return err
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "state", Value: state},
		{Key: "expire", Value: s.clock.Now().Add(ttl)},
	}}}
	matched, err := s.conn.updateOneMatched(ctx, sessionsCollection, byID(key), update)
	if err != nil {
		return storage.QueryFailed(fmt.Sprintf("update of session with key=%q", key), err)
	}
	if matched == 0 {
		return storage.MissingEntry(sessionsCollection, key)
	}
	return nil
}

func (s *sessionStore) Delete(ctx context.Context, key string) error {
	if err := storage.CheckSafe(key); err != nil {
		return err
	}
	if err := s.conn.deleteOne(ctx, sessionsCollection, byID(key)); err != nil {
		return storage.QueryFailed(fmt.Sprintf("removal of session with key=%q", key), err)
	}
	return nil
}

// newSessionKey draws a random alphanumeric key.
func newSessionKey() (string, error) {
	raw := make([]byte, sessionKeyLength)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	key := make([]byte, sessionKeyLength)
	for i, b := range raw {
		key[i] = sessionKeyAlphabet[int(b)%len(sessionKeyAlphabet)]
	}
	return string(key), nil
}
