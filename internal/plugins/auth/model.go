// Package auth handles user accounts, password security, and session
// management for Galerie. Sessions live in Redis, referenced by an opaque
// token in a cookie, and exist for anonymous visitors too: gallery access
// codes grant session-scoped access that must survive without a login.
package auth

import (
	"time"
)

// Role constants. Admins manage galleries and bypass every access gate;
// clients view galleries they were granted and upload within quota.
const (
	RoleAdmin  = "admin"
	RoleClient = "client"
)

// User represents a registered account. This is the domain model used
// throughout the application.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"` // Never expose in JSON responses.
	Role         string     `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// IsAdmin returns true for admin accounts.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// --- Request DTOs (bound from HTTP requests) ---

// LoginRequest holds the data submitted by the login form.
type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// --- Session ---

// Session is the per-connection context stored in Redis. The session token
// is the key, this struct is the value (JSON-encoded). Anonymous sessions
// have an empty UserID and Role.
type Session struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`

	// GrantedGalleryIDs is the set of galleries unlocked via access code in
	// this session. Session-scoped only: it never becomes a durable
	// assignment and dies with the session.
	GrantedGalleryIDs []string `json:"granted_gallery_ids,omitempty"`

	// LoginAt is set when the session is promoted to an authenticated one.
	LoginAt *time.Time `json:"login_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// IsAuthenticated returns true if the session belongs to a logged-in user.
func (s *Session) IsAuthenticated() bool {
	return s.UserID != ""
}

// IsAdmin returns true if the session belongs to an admin.
func (s *Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}

// HasGrant reports whether this session unlocked the gallery via access code.
func (s *Session) HasGrant(galleryID string) bool {
	for _, id := range s.GrantedGalleryIDs {
		if id == galleryID {
			return true
		}
	}
	return false
}

// AddGrant records a session-scoped access grant for the gallery. Adding an
// existing grant is a no-op.
func (s *Session) AddGrant(galleryID string) {
	if !s.HasGrant(galleryID) {
		s.GrantedGalleryIDs = append(s.GrantedGalleryIDs, galleryID)
	}
}
