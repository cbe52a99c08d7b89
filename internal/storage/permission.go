package storage

import "fmt"

// PermissionLevel is the level of access a user holds on a note.
// The levels form a total order; every gate compares with Permits
// (>=), never with equality, so anything allowed at a lower level is
// allowed at every level above it.
type PermissionLevel int

const (
	// Forbidden grants no access at all.
	Forbidden PermissionLevel = iota
	// Read grants read-only access.
	Read
	// ReadWrite grants read and modify access.
	ReadWrite
	// Moderate grants read, modify, delete and re-share access.
	// It is the level implicitly held by a note's owner.
	Moderate
)

// Permits reports whether a holder of level l may perform an
// operation requiring at least req.
func (l PermissionLevel) Permits(req PermissionLevel) bool {
	return l >= req
}

func (l PermissionLevel) String() string {
	switch l {
	case Forbidden:
		return "Forbidden"
	case Read:
		return "Read"
	case ReadWrite:
		return "ReadWrite"
	case Moderate:
		return "Moderate"
	default:
		return fmt.Sprintf("PermissionLevel(%d)", int(l))
	}
}

// ParsePermissionLevel converts a stored level name back to its
// PermissionLevel. Unknown names are a schema violation, not caller
// input, so they map to a schema_parse error.
func ParsePermissionLevel(s string) (PermissionLevel, error) {
	switch s {
	case "Forbidden":
		return Forbidden, nil
	case "Read":
		return Read, nil
	case "ReadWrite":
		return ReadWrite, nil
	case "Moderate":
		return Moderate, nil
	default:
		return Forbidden, New(CodeSchemaParse, fmt.Sprintf("unknown permission level %q", s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l PermissionLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *PermissionLevel) UnmarshalText(text []byte) error {
	parsed, err := ParsePermissionLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
