// Package app is the application bootstrap and dependency injection root.
// It creates and holds all shared infrastructure (DB pool, Redis client,
// Echo instance) and wires together all plugins.
package app

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/lichtbild/galerie/internal/apperror"
	"github.com/lichtbild/galerie/internal/config"
	"github.com/lichtbild/galerie/internal/middleware"
	"github.com/lichtbild/galerie/internal/plugins/activity"
	"github.com/lichtbild/galerie/internal/plugins/auth"
	"github.com/lichtbild/galerie/internal/security"
)

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// DB is the MariaDB connection pool shared by all plugins.
	DB *sql.DB

	// Redis is the Redis client shared for sessions, CSRF tokens, caching.
	Redis *redis.Client

	// Echo is the HTTP server instance.
	Echo *echo.Echo

	// sessions is the Redis-backed session store. Created here because the
	// session middleware runs globally, before any plugin handler.
	sessions *auth.SessionManager

	// csrf issues and consumes one-time tokens bound to sessions.
	csrf *security.CSRFGuard

	// activity is kept for background retention pruning; set in RegisterRoutes.
	activity activity.ActivityService
}

// New creates a new App instance with the given dependencies and configures
// the Echo server with global middleware and error handling.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client) *App {
	e := echo.New()

	// Disable Echo's default banner and startup message -- we log our own.
	e.HideBanner = true
	e.HidePort = true

	// Configure trusted reverse proxy IPs so c.RealIP() returns the actual
	// client IP instead of the proxy's IP. Critical for rate limiting,
	// client fingerprints, and the activity log.
	middleware.TrustedProxies(e, []string{
		"127.0.0.0/8",    // Localhost
		"10.0.0.0/8",     // Docker default bridge
		"172.16.0.0/12",  // Docker bridge (alternate range)
		"192.168.0.0/16", // Common LAN
		"fd00::/8",       // IPv6 private
	})

	app := &App{
		Config:   cfg,
		DB:       db,
		Redis:    rdb,
		Echo:     e,
		sessions: auth.NewSessionManager(rdb, cfg.Session.TTL),
		csrf:     security.NewCSRFGuard(rdb),
	}

	// Register global middleware in order of execution.
	app.setupMiddleware()

	// Register the custom error handler that maps AppErrors to HTTP responses.
	e.HTTPErrorHandler = app.errorHandler

	return app
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: outermost (recovery) runs first, innermost (CSRF) runs last.
func (a *App) setupMiddleware() {
	// Panic recovery -- must be outermost to catch panics from all other middleware.
	a.Echo.Use(middleware.Recovery())

	// Request logging -- log every request with method, path, status, latency.
	a.Echo.Use(middleware.RequestLogger())

	// Security headers -- CSP, X-Frame-Options, X-Content-Type-Options, etc.
	a.Echo.Use(middleware.SecurityHeaders())

	// Global request throttle -- caps how fast a single client fingerprint
	// can hit the server, before any session or DB work happens per route.
	requestLimiter := security.NewRateLimiter(
		security.NewRateLimitRepository(a.DB),
		a.Config.RateLimit.RequestMaxAttempts,
		a.Config.RateLimit.RequestWindow,
	)
	a.Echo.Use(middleware.Throttle(requestLimiter))

	// Session -- every visitor gets a session, anonymous or not. Runs before
	// CSRF because tokens are bound to the session that requested them.
	a.Echo.Use(auth.WithSession(a.Config.Session.CookieName, a.sessions))

	// CSRF -- one-time session-bound tokens on all state-changing requests.
	a.Echo.Use(auth.CSRFProtect(a.csrf))
}

// errorHandler is the custom Echo error handler. It maps domain errors
// (AppError) to HTTP responses. Clients that accept JSON get a structured
// error body; browsers hitting a 401 are redirected to the login page.
func (a *App) errorHandler(err error, c echo.Context) {
	// Don't double-write if response is already committed.
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	errType := "internal_error"
	message := "An unexpected error occurred"

	// Check if it's our domain error type.
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
		errType = appErr.Type
		message = appErr.Message

		// Log internal errors with the underlying cause.
		if appErr.Internal != nil {
			slog.Error("internal error",
				slog.String("type", appErr.Type),
				slog.String("message", appErr.Message),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
			)
		}
	} else {
		// Check for Echo's built-in HTTP errors (e.g., 404 from router).
		var echoErr *echo.HTTPError
		if errors.As(err, &echoErr) {
			code = echoErr.Code
			errType = strings.ToLower(strings.ReplaceAll(http.StatusText(code), " ", "_"))
			if msg, ok := echoErr.Message.(string); ok {
				message = msg
			}
		} else {
			// Truly unexpected error -- log it.
			slog.Error("unhandled error",
				slog.Any("error", err),
				slog.String("path", c.Request().URL.Path),
			)
		}
	}

	// Regular browser 401 -- redirect to login page instead of a JSON wall.
	if code == http.StatusUnauthorized && !acceptsJSON(c) {
		c.Redirect(http.StatusSeeOther, "/login")
		return
	}

	if writeErr := c.JSON(code, map[string]string{
		"type":    errType,
		"message": message,
	}); writeErr != nil {
		slog.Error("failed to write error response", slog.Any("error", writeErr))
	}
}

// acceptsJSON reports whether the client asked for a JSON response, either
// explicitly via Accept or implicitly by being an XHR/fetch client.
func acceptsJSON(c echo.Context) bool {
	if strings.Contains(c.Request().Header.Get("Accept"), "application/json") {
		return true
	}
	return c.Request().Header.Get("X-Requested-With") == "XMLHttpRequest"
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting Galerie server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
	)
	return a.Echo.Start(addr)
}
