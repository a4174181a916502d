// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 8080).
	Port int

	// BaseURL is the public-facing URL used for links and redirects.
	BaseURL string

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string

	// Database holds MariaDB connection settings.
	Database DatabaseConfig

	// Redis holds Redis connection settings.
	Redis RedisConfig

	// Session holds session cookie and lifetime settings.
	Session SessionConfig

	// Upload holds file upload and quarantine settings.
	Upload UploadConfig

	// RateLimit holds throttling windows for logins and generic requests.
	RateLimit RateLimitConfig

	// Admin holds the credentials seeded when no admin account exists.
	Admin AdminConfig

	// PayPalHandle is the paypal.me handle payment redirects point at.
	PayPalHandle string
}

// AdminConfig holds the first-admin seed credentials. Only consulted when
// the users table has no admin row, so changing them later has no effect.
type AdminConfig struct {
	// Email is the seeded admin login (default: "admin@example.com").
	Email string

	// Password is the seeded admin password (default: "admin123").
	// Change it after first login.
	Password string
}

// DatabaseConfig holds MariaDB connection parameters. Individual fields
// (Host, User, Password, Name) are read from separate env vars so container
// orchestrators can manage each independently. If DATABASE_URL is set, it
// takes precedence over the individual fields.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	// If no port is specified, 3306 is appended automatically.
	Host string

	// User is the MariaDB username (default: "galerie").
	User string

	// Password is the MariaDB password (default: "galerie").
	Password string

	// Name is the database name (default: "galerie").
	Name string

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	// MaxOpenConns is the maximum number of open connections in the pool.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections in the pool.
	MaxIdleConns int

	// ConnMaxLifetime is how long a connection can be reused.
	ConnMaxLifetime time.Duration
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built from the individual
// Host/User/Password/Name fields using the driver's Config.FormatDSN()
// to safely handle special characters in passwords.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
// Allows users to set DB_HOST=mydb (gets :3306) or DB_HOST=mydb:3307 (as-is).
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string
}

// SessionConfig holds session settings. Sessions live in Redis and are
// referenced by an opaque token transported in a cookie.
type SessionConfig struct {
	// CookieName is the name of the session cookie.
	CookieName string

	// TTL is how long sessions last before expiring.
	TTL time.Duration
}

// UploadConfig holds file upload settings.
type UploadConfig struct {
	// MaxFileSize is the per-file upload ceiling in bytes (transport level).
	MaxFileSize int64

	// MediaPath is the root directory for stored media files.
	MediaPath string

	// QuarantinePath is the directory rejected uploads are moved into.
	QuarantinePath string
}

// RateLimitConfig holds fixed-window throttle parameters.
type RateLimitConfig struct {
	// LoginMaxAttempts is the number of failed logins allowed per window.
	LoginMaxAttempts int

	// LoginWindow is the login attempt window (also the block duration).
	LoginWindow time.Duration

	// RequestMaxAttempts is the generic per-client request ceiling per window.
	RequestMaxAttempts int

	// RequestWindow is the generic request throttle window.
	RequestWindow time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		BaseURL:  getEnv("BASE_URL", "http://localhost:8080"),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost:3306"),
			User:            getEnv("DB_USER", "galerie"),
			Password:        getEnv("DB_PASSWORD", "galerie"),
			Name:            getEnv("DB_NAME", "galerie"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},

		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},

		Session: SessionConfig{
			CookieName: getEnv("SESSION_COOKIE", "galerie_session"),
			TTL:        getEnvDuration("SESSION_TTL", 168*time.Hour),
		},

		Upload: UploadConfig{
			MaxFileSize:    getEnvInt64("MAX_UPLOAD_SIZE", 100*1024*1024), // 100 MiB
			MediaPath:      getEnv("MEDIA_PATH", "./media"),
			QuarantinePath: getEnv("QUARANTINE_PATH", "./quarantine"),
		},

		RateLimit: RateLimitConfig{
			LoginMaxAttempts:   getEnvInt("LOGIN_MAX_ATTEMPTS", 5),
			LoginWindow:        getEnvDuration("LOGIN_WINDOW", 900*time.Second),
			RequestMaxAttempts: getEnvInt("REQUEST_MAX_ATTEMPTS", 100),
			RequestWindow:      getEnvDuration("REQUEST_WINDOW", 60*time.Second),
		},

		Admin: AdminConfig{
			Email:    getEnv("ADMIN_EMAIL", "admin@example.com"),
			Password: getEnv("ADMIN_PASSWORD", "admin123"),
		},

		PayPalHandle: getEnv("PAYPAL_HANDLE", ""),
	}

	// The paywall flow cannot build redirect URLs without a handle, but only
	// production needs to hard-fail; development falls back to a dummy.
	envLower := strings.ToLower(cfg.Env)
	if envLower == "production" || envLower == "prod" {
		if cfg.PayPalHandle == "" {
			return nil, fmt.Errorf("PAYPAL_HANDLE is required in production")
		}
	}
	if cfg.PayPalHandle == "" {
		cfg.PayPalHandle = "example"
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvInt64 reads an int64 env var or returns the default.
func getEnvInt64(key string, defaultVal int64) int64 {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvDuration reads a duration env var (e.g., "15m") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
