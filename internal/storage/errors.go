package storage

import (
	"errors"
	"fmt"
)

// Code classifies a storage error.
type Code string

const (
	// CodeServerConnection — the database server did not respond.
	// Fatal at startup; the process should not proceed.
	CodeServerConnection Code = "server_connection"
	// CodeMigrationRequired — the stored schema version differs from
	// the one this build expects. Fatal at startup.
	CodeMigrationRequired Code = "migration_required"
	// CodeMissingEntry — a lookup by id found nothing.
	CodeMissingEntry Code = "missing_entry"
	// CodeQuery — an otherwise unclassified store failure. Carries a
	// description of the failed operation for operator diagnosis.
	CodeQuery Code = "query"
	// CodeSchemaParse — returned data does not follow the expected schema.
	CodeSchemaParse Code = "schema_parse"
	// CodeInvalidSequence — caller-supplied input contains reserved
	// characters and was rejected before reaching the store.
	CodeInvalidSequence Code = "invalid_sequence"
	// CodeInvalidRequest — the request is well-formed but invalid
	// (self-association, sharing with a stranger, nothing to revoke...).
	CodeInvalidRequest Code = "invalid_request"
	// CodeDuplicate — an entry with that key already exists.
	CodeDuplicate Code = "duplicate"
	// CodeIncorrectCredentials — authentication failed. Deliberately
	// identical for unknown users and wrong passwords.
	CodeIncorrectCredentials Code = "incorrect_credentials"
	// CodeNoPermission — the caller's permission level is insufficient.
	// Also returned for notes that were never shared with the caller,
	// so existence is not leaked through the error channel.
	CodeNoPermission Code = "no_permission"
)

// Error is a coded storage error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches any *Error carrying the same code, so
// errors.Is(err, storage.ErrNoPermission) works regardless of message.
func (e *Error) Is(target error) bool {
	var coded *Error
	if !errors.As(target, &coded) {
		return false
	}
	return e != nil && e.Code == coded.Code
}

// New creates a coded error with message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a coded error with message and cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Err: cause}
}

// CodeOf returns the error code, defaulting to query.
func CodeOf(err error) Code {
	if err == nil {
		return CodeQuery
	}
	var coded *Error
	if errors.As(err, &coded) && coded.Code != "" {
		return coded.Code
	}
	return CodeQuery
}

// Sentinels for the fixed-message kinds. Returned as-is by the
// backends and matchable with errors.Is.
var (
	ErrIncorrectCredentials = &Error{Code: CodeIncorrectCredentials, Message: "incorrect credentials"}
	ErrNoPermission         = &Error{Code: CodeNoPermission, Message: "insufficient permission"}
)

// ServerConnection wraps a failed handshake with the database server.
func ServerConnection(cause error) error {
	return Wrap(CodeServerConnection, "could not connect to database server", cause)
}

// MigrationRequired reports a schema-version mismatch between the
// database and this build.
func MigrationRequired(found, want string) error {
	return New(CodeMigrationRequired,
		fmt.Sprintf("database schema version is %q, this build expects %q: migration required", found, want))
}

// MissingEntry reports a failed lookup, naming the collection and id.
func MissingEntry(collection, id string) error {
	return New(CodeMissingEntry, fmt.Sprintf("couldn't find expected %s with ID=%q", collection, id))
}

// QueryFailed wraps an unclassified store failure with a description
// of the operation that failed.
func QueryFailed(op string, cause error) error {
	return Wrap(CodeQuery, fmt.Sprintf("query failed: %s", op), cause)
}

// InvalidSequence rejects input containing reserved characters,
// naming the offending string.
func InvalidSequence(seq string) error {
	return New(CodeInvalidSequence, fmt.Sprintf("sequence %q uses forbidden characters", seq))
}

// InvalidRequest rejects a well-formed but invalid instruction.
func InvalidRequest(reason string) error {
	return New(CodeInvalidRequest, reason)
}

// Duplicate reports an insert whose key already exists.
func Duplicate(collection, id string) error {
	return New(CodeDuplicate, fmt.Sprintf("%s with ID=%q already exists", collection, id))
}
