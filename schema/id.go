package schema

import "github.com/google/uuid"

// UUID returns a new random (version 4) identifier.
func UUID() string {
	return uuid.NewString()
}

// IsUUID reports whether s parses as an RFC 4122 identifier.
func IsUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
