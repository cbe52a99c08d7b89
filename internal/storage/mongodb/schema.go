package mongodb

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SchemaVersion is the data layout this build understands. The pool
// refuses to operate on a database stamped with any other version.
const SchemaVersion = "1.0"

// DriverID identifies this backend in DBMeta.
const DriverID = "mongodb"

// defaultDatabase is the database name inside the MongoDB server.
const defaultDatabase = "writeup"

// Collection identifiers.
const (
	metaCollection        = "meta"
	notesCollection       = "notes"
	credentialsCollection = "creds"
	usersCollection       = "user"
	sessionsCollection    = "sessions"
)

// metaKeySchemaVersion is the _id of the schema-version marker in
// the meta collection.
const metaKeySchemaVersion = "schema_version"

// metaEntry is a key-value pair in the meta collection.
type metaEntry struct {
	ID    string `bson:"_id"`
	Value string `bson:"value"`
}

// allowanceDoc links a user to a note they may access. Levels are
// stored by name so the documents stay readable in the shell.
type allowanceDoc struct {
	NoteID  string `bson:"note_id"`
	Level   string `bson:"level"`
	OwnerID string `bson:"owner_id"`
}

// credentialDoc holds what is needed to verify a login. The hash is
// produced by the external hashing collaborator; plaintext never
// reaches this layer's documents.
type credentialDoc struct {
	ID           string `bson:"_id"`
	PasswordHash string `bson:"passwd_hash"`
}

// userDoc is a user record. Connections is symmetric across
// documents; allowances is not.
type userDoc struct {
	ID          string         `bson:"_id"`
	Allowances  []allowanceDoc `bson:"allowances"`
	Connections []string       `bson:"connections"`
	MemberSince time.Time      `bson:"member_since"`
}

// noteDoc is a note record. Exactly one owner per note.
type noteDoc struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	Title      string             `bson:"title"`
	Content    string             `bson:"content"`
	OwnerID    string             `bson:"owner_id"`
	Tags       []string           `bson:"tags"`
	CreatedAt  time.Time          `bson:"created_at"`
	LastEdited time.Time          `bson:"last_edited"`
}

// sessionDoc is a stored web session.
type sessionDoc struct {
	ID     string            `bson:"_id"`
	State  map[string]string `bson:"state"`
	Expire time.Time         `bson:"expire"`
}
