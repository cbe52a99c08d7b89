// Package mongodb implements the storage manager interfaces on a
// MongoDB server. All three collections (creds, user, notes) live in
// one database alongside a meta collection carrying the
// schema-version marker and a sessions collection for web sessions.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/writeup-app/writeup/internal/auth"
	"github.com/writeup-app/writeup/internal/storage"
)

// Config configures a connection to a MongoDB server.
type Config struct {
	// Addr is the host:port of the server.
	Addr string
	// Username and Password authenticate against the server itself,
	// not against any application user.
	Username string
	Password string
	// Database overrides the database name. Empty means "writeup".
	Database string
	// Hasher is the password hashing collaborator. Nil means argon2id.
	Hasher storage.PasswordHasher
	// Clock overrides the time source. Nil means system time.
	Clock storage.Clock
	// Logger receives connection-level events. Zero value is fine.
	Logger zerolog.Logger
}

// Pool implements storage.ManagerPool on one validated MongoDB
// connection.
type Pool struct {
	client  *mongo.Client
	conn    *conn
	hasher  storage.PasswordHasher
	clock   storage.Clock
	version string
	log     zerolog.Logger
}

// Open connects to the server, verifies the connection with a ping,
// and runs the schema-version guard: a fresh database is stamped
// with the current version, a stamped database must match it exactly
// or Open fails with a migration_required error rather than operating
// on an incompatible layout. Expired sessions are swept on the way.
func Open(ctx context.Context, cfg Config) (*Pool, error) {
	if cfg.Database == "" {
		cfg.Database = defaultDatabase
	}
	if cfg.Hasher == nil {
		cfg.Hasher = auth.Argon2Hasher{}
	}
	if cfg.Clock == nil {
		cfg.Clock = storage.SystemClock{}
	}

	uri := fmt.Sprintf("mongodb://%s:%s@%s",
		url.QueryEscape(cfg.Username), url.QueryEscape(cfg.Password), cfg.Addr)
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetAppName("writeup"))
	if err != nil {
		return nil, storage.ServerConnection(err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, storage.ServerConnection(err)
	}

	db := client.Database(cfg.Database)
	version, err := ensureSchemaVersion(ctx, db)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	pool := &Pool{
		client:  client,
		conn:    &conn{db: db},
		hasher:  cfg.Hasher,
		clock:   cfg.Clock,
		version: version,
		log:     cfg.Logger,
	}

	// Stale sessions accumulate between restarts; sweep them now.
	expired := bson.D{{Key: "expire", Value: bson.D{{Key: "$lt", Value: cfg.Clock.Now()}}}}
	if err := pool.conn.deleteMany(ctx, sessionsCollection, expired); err != nil {
		pool.log.Warn().Err(err).Msg("failed to remove timed-out sessions from storage")
	}

	pool.log.Info().
		Str("driver", DriverID).
		Str("database", cfg.Database).
		Str("schema_version", version).
		Msg("connected to database")
	return pool, nil
}

// ensureSchemaVersion reads the stored schema-version marker,
// writing it on first run, and fails when it differs from the
// version this build expects.
func ensureSchemaVersion(ctx context.Context, db *mongo.Database) (string, error) {
	coll := db.Collection(metaCollection)

	var entry metaEntry
	err := coll.FindOne(ctx, byID(metaKeySchemaVersion)).Decode(&entry)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		// Freshly created database: stamp it.
		entry = metaEntry{ID: metaKeySchemaVersion, Value: SchemaVersion}
		if _, err := coll.InsertOne(ctx, entry); err != nil {
			return "", storage.QueryFailed("insert of database schema version", err)
		}
	case err != nil:
		return "", storage.QueryFailed("lookup of database schema version", err)
	}

	if entry.Value != SchemaVersion {
		return "", storage.MigrationRequired(entry.Value, SchemaVersion)
	}
	return entry.Value, nil
}

// Manager returns a fresh DBManager on the shared connection.
func (p *Pool) Manager() storage.DBManager {
	return &databaseManager{
		meta:   storage.DBMeta{DriverID: DriverID, Version: p.version},
		conn:   p.conn,
		hasher: p.hasher,
		clock:  p.clock,
	}
}

// Sessions returns the session store on the shared connection.
func (p *Pool) Sessions() storage.SessionStore {
	return &sessionStore{conn: p.conn, clock: p.clock}
}

// Close disconnects from the server.
func (p *Pool) Close(ctx context.Context) error {
	return p.client.Disconnect(ctx)
}

// fetchUser reads a user document, rejecting unsafe ids before they
// reach the query.
func fetchUser(ctx context.Context, c *conn, userID string) (*userDoc, error) {
	if err := storage.CheckSafe(userID); err != nil {
		return nil, err
	}
	var user userDoc
	err := c.findOne(ctx, usersCollection, byID(userID), &user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.MissingEntry(usersCollection, userID)
	}
	if err != nil {
		return nil, storage.QueryFailed(fmt.Sprintf("lookup of user with ID=%q", userID), err)
	}
	return &user, nil
}

// fetchNote reads a note document by its hex object id.
func fetchNote(ctx context.Context, c *conn, noteID string) (*noteDoc, error) {
	if err := storage.CheckSafe(noteID); err != nil {
		return nil, err
	}
	oid, err := noteObjectID(noteID)
	if err != nil {
		return nil, err
	}
	var note noteDoc
	err = c.findOne(ctx, notesCollection, bson.D{{Key: "_id", Value: oid}}, &note)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.MissingEntry(notesCollection, noteID)
	}
	if err != nil {
		return nil, storage.QueryFailed(fmt.Sprintf("lookup of note with ID=%q", noteID), err)
	}
	return &note, nil
}
