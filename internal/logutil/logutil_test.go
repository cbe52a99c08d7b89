package logutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSensitiveLogField(t *testing.T) {
	t.Parallel()
	sensitive := []string{
		"password", "DB_PASSWORD", "passwd_hash", "Session-Key",
		"session_key", "api_token", "client_secret",
	}
	for _, key := range sensitive {
		assert.True(t, IsSensitiveLogField(key), "key %q", key)
	}

	plain := []string{"username", "db_addr", "note_id", "title", "member_since"}
	for _, key := range plain {
		assert.False(t, IsSensitiveLogField(key), "key %q", key)
	}
}

func TestRedactValue(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "[REDACTED]", RedactValue("db_password", "hunter2"))
	assert.Equal(t, "alice", RedactValue("username", "alice"))
}

func TestTruncateForLog(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", TruncateForLog("   ", 10))
	assert.Equal(t, "short", TruncateForLog("short", 10))
	assert.Equal(t, "one\\ntwo", TruncateForLog("one\ntwo", 20))

	long := strings.Repeat("x", 50)
	got := TruncateForLog(long, 10)
	assert.Equal(t, "xxxxxxxxxx... [truncated]", got)

	// Non-positive limits disable truncation.
	assert.Equal(t, long, TruncateForLog(long, 0))
}
