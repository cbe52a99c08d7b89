package storage

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err  error
		want Code
	}{
		{ErrIncorrectCredentials, CodeIncorrectCredentials},
		{ErrNoPermission, CodeNoPermission},
		{MissingEntry("user", "alice"), CodeMissingEntry},
		{MigrationRequired("0.9", "1.0"), CodeMigrationRequired},
		{InvalidSequence("a{b"), CodeInvalidSequence},
		{InvalidRequest("no"), CodeInvalidRequest},
		{Duplicate("creds", "alice"), CodeDuplicate},
		{QueryFailed("lookup", errors.New("boom")), CodeQuery},
		{ServerConnection(errors.New("refused")), CodeServerConnection},
		{fmt.Errorf("wrapped: %w", ErrNoPermission), CodeNoPermission},
		{errors.New("plain"), CodeQuery},
		{nil, CodeQuery},
	}
	for _, tc := range cases {
		if got := CodeOf(tc.err); got != tc.want {
			t.Errorf("CodeOf(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

// TestErrorIs_MatchesByCode checks that errors.Is treats any two
// coded errors with the same code as equal, so callers can match the
// sentinels regardless of message text.
func TestErrorIs_MatchesByCode(t *testing.T) {
	t.Parallel()
	if !errors.Is(New(CodeNoPermission, "anything"), ErrNoPermission) {
		t.Error("no_permission errors should match ErrNoPermission")
	}
	if !errors.Is(fmt.Errorf("outer: %w", ErrIncorrectCredentials), ErrIncorrectCredentials) {
		t.Error("wrapped sentinel should still match")
	}
	if errors.Is(MissingEntry("user", "x"), ErrNoPermission) {
		t.Error("distinct codes must not match")
	}
}

func TestErrorMessages(t *testing.T) {
	t.Parallel()
	if got, want := MissingEntry("user", "alice").Error(), `couldn't find expected user with ID="alice"`; got != want {
		t.Errorf("MissingEntry = %q, want %q", got, want)
	}
	if got, want := Duplicate("creds", "alice").Error(), `creds with ID="alice" already exists`; got != want {
		t.Errorf("Duplicate = %q, want %q", got, want)
	}

	migration := MigrationRequired("0.9", "1.0").Error()
	if migration == "" || CodeOf(MigrationRequired("0.9", "1.0")) == CodeServerConnection {
		t.Error("migration mismatch must be distinct from a connection failure")
	}
}

func TestErrorUnwrap(t *testing.T) {
	t.Parallel()
	cause := errors.New("socket closed")
	err := QueryFailed("lookup of user", cause)
	if !errors.Is(err, cause) {
		t.Error("QueryFailed should preserve its cause for errors.Is")
	}
}
