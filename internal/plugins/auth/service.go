package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"

	"github.com/lichtbild/galerie/internal/apperror"
)

// argon2id parameters tuned for a self-hosted application running on modest
// hardware. These follow OWASP recommendations for argon2id:
// memory=64MB, iterations=3, parallelism=4.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // 64 MB in KiB
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// AuthService defines the business logic contract for authentication.
// Handlers call these methods -- they never touch the repository directly.
type AuthService interface {
	// Authenticate verifies an email/password pair and returns the user.
	// The error never reveals whether the email exists.
	Authenticate(ctx context.Context, email, password string) (*User, error)

	// CreateUser creates an account with the given role. Used by the admin
	// plugin for client provisioning and by setup tooling for the first admin.
	CreateUser(ctx context.Context, email, password, role string) (*User, error)

	// SetPassword replaces a user's password hash.
	SetPassword(ctx context.Context, userID, password string) error

	// EnsureAdmin seeds the first admin account if none exists. A fresh
	// deployment has no other way to obtain an operator login, since
	// regular account creation sits behind the admin surface.
	EnsureAdmin(ctx context.Context, email, password string) error
}

// authService implements AuthService with argon2id hashing.
type authService struct {
	repo UserRepository
}

// NewAuthService creates a new auth service with the given repository.
func NewAuthService(repo UserRepository) AuthService {
	return &authService{repo: repo}
}

// Authenticate verifies credentials. On success it stamps last_login_at
// (fire-and-forget, non-critical).
func (s *authService) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Code == 404 {
			// Don't reveal whether the email exists -- use generic message.
			return nil, apperror.NewUnauthorized("invalid email or password")
		}
		return nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	if !verifyPassword(password, user.PasswordHash) {
		return nil, apperror.NewUnauthorized("invalid email or password")
	}

	if err := s.repo.UpdateLastLogin(ctx, user.ID); err != nil {
		slog.Warn("failed to update last login",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
	}

	return user, nil
}

// CreateUser validates uniqueness, hashes the password with argon2id, and
// persists the account.
func (s *authService) CreateUser(ctx context.Context, email, password, role string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperror.NewBadRequest("email and password are required")
	}
	if role != RoleAdmin && role != RoleClient {
		return nil, apperror.NewBadRequest("invalid role")
	}

	// Check uniqueness before doing expensive hashing.
	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("checking email: %w", err))
	}
	if exists {
		return nil, apperror.NewConflict("an account with this email already exists")
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	user := &User{
		ID:           newID(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("creating user: %w", err))
	}

	slog.Info("user created",
		slog.String("user_id", user.ID),
		slog.String("role", user.Role),
	)

	return user, nil
}

// SetPassword hashes and stores a new password for the user.
func (s *authService) SetPassword(ctx context.Context, userID, password string) error {
	if password == "" {
		return apperror.NewBadRequest("password is required")
	}

	hash, err := hashPassword(password)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	return s.repo.UpdatePassword(ctx, userID, hash)
}

// EnsureAdmin creates the first admin account when no admin row exists.
// Idempotent: subsequent startups are a no-op even if the seeded account's
// email was later changed.
func (s *authService) EnsureAdmin(ctx context.Context, email, password string) error {
	exists, err := s.repo.AdminExists(ctx)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("checking for admin account: %w", err))
	}
	if exists {
		return nil
	}

	user, err := s.CreateUser(ctx, email, password, RoleAdmin)
	if err != nil {
		return err
	}

	slog.Warn("seeded initial admin account; change its password after first login",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)
	return nil
}

// normalizeEmail lower-cases and trims an email address for lookups.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// --- Password Hashing (argon2id) ---

// hashPassword creates an argon2id hash of the given password. The output
// format is: $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
// This format is compatible with most argon2 libraries and allows self-
// contained verification without separate salt storage.
func hashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads, b64Salt, b64Hash)

	return encoded, nil
}

// verifyPassword checks a plaintext password against an argon2id hash string.
// Returns true if the password matches.
func verifyPassword(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false
	}

	var memory uint32
	var iterations uint32
	var parallelism uint8
	_, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism)
	if err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expectedHash)))

	// Constant-time comparison to prevent timing attacks.
	return subtle.ConstantTimeCompare(expectedHash, computedHash) == 1
}
