package auth

import "github.com/google/uuid"

// newID returns a new v4 UUID string for user primary keys.
func newID() string {
	return uuid.NewString()
}
