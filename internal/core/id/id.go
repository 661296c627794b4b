// Package id provides the UUIDv7 identifiers used for products, movements,
// import batches and outbox messages.
package id

import (
	"github.com/google/uuid"
)

// ID is a UUID. Movements rely on v7 ids sorting by creation time as the
// tie-breaker after created_at.
type ID = uuid.UUID

// New returns a UUIDv7, falling back to a random v4 if the clock source fails.
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return v
}

// Parse reads an id from its canonical or braced text form.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// MustParse panics on malformed input. Tests and fixtures only.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}

// Nil is the zero id, used for "no actor" and "no movement".
func Nil() ID {
	return uuid.Nil
}

// IsNil reports whether v is the zero id.
func IsNil(v ID) bool {
	return v == uuid.Nil
}

// Short returns the last 8 hex characters, the form used in undo reasons.
// The head of a v7 id is its timestamp, so the tail keeps ids created close
// together distinct.
func Short(v ID) string {
	s := v.String()
	return s[len(s)-8:]
}
