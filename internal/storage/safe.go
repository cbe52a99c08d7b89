package storage

import "strings"

// forbiddenChars are characters that serve no use in an identifier
// outside of a potential injection attempt. Any caller-supplied id
// must pass IsSafe before it is interpolated into a store query.
const forbiddenChars = "{}$:-%"

// IsSafe reports whether s is free of reserved characters.
func IsSafe(s string) bool {
	return !strings.ContainsAny(s, forbiddenChars)
}

// CheckSafe returns an invalid_sequence error when s contains
// reserved characters, nil otherwise.
func CheckSafe(s string) error {
	if !IsSafe(s) {
		return InvalidSequence(s)
	}
	return nil
}
