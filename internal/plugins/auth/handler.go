package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lichtbild/galerie/internal/apperror"
	"github.com/lichtbild/galerie/internal/security"
)

// ActivitySink receives auth events for the activity log. Wired to the
// activity plugin at startup; may be nil in tests.
type ActivitySink func(ctx context.Context, action, userID, ip, userAgent, details string)

// Handler handles HTTP requests for authentication (login, logout, CSRF
// token minting). Handlers are thin: they bind the request, call the
// service, and render the response. No business logic lives here.
type Handler struct {
	service      AuthService
	sessions     *SessionManager
	csrf         *security.CSRFGuard
	loginLimiter *security.RateLimiter
	cookieName   string
	activity     ActivitySink
}

// NewHandler creates a new auth handler.
func NewHandler(service AuthService, sessions *SessionManager, csrf *security.CSRFGuard, loginLimiter *security.RateLimiter, cookieName string, activity ActivitySink) *Handler {
	return &Handler{
		service:      service,
		sessions:     sessions,
		csrf:         csrf,
		loginLimiter: loginLimiter,
		cookieName:   cookieName,
		activity:     activity,
	}
}

// Login processes a login submission (POST /login). Failed attempts count
// against a per-client budget; once exhausted the client is locked out for
// the remainder of the window and every response carries the retry delay.
func (h *Handler) Login(c echo.Context) error {
	ctx := c.Request().Context()
	identifier := security.RequestIdentifier(c)

	allowed, err := h.loginLimiter.IsAllowed(ctx, identifier, security.ActionLogin)
	if err != nil {
		return err
	}
	if !allowed {
		remaining, err := h.loginLimiter.RemainingBlockSeconds(ctx, identifier, security.ActionLogin)
		if err != nil {
			return err
		}
		return apperror.NewRateLimited(remaining)
	}

	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	if req.Email == "" || req.Password == "" {
		return apperror.NewValidation("email and password are required")
	}

	user, err := h.service.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		if limitErr := h.loginLimiter.RecordAttempt(ctx, identifier, security.ActionLogin, false); limitErr != nil {
			slog.Warn("recording failed login attempt", slog.Any("error", limitErr))
		}
		h.record(c, "login_failed", "", req.Email)
		return err
	}

	if err := h.loginLimiter.RecordAttempt(ctx, identifier, security.ActionLogin, true); err != nil {
		slog.Warn("resetting login rate limit", slog.Any("error", err))
	}

	// Regenerate the session token on privilege change. The anonymous
	// session's access-code grants carry over.
	token, err := h.sessions.Promote(ctx, GetSessionToken(c), GetSession(c), user)
	if err != nil {
		return err
	}

	setSessionCookie(c, h.cookieName, token)

	h.record(c, "login", user.ID, user.Email)

	if wantsJSON(c) {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "ok",
			"role":   user.Role,
		})
	}
	if user.IsAdmin() {
		return c.Redirect(http.StatusSeeOther, "/admin")
	}
	return c.Redirect(http.StatusSeeOther, "/dashboard")
}

// Logout destroys the session and clears the cookie (POST /logout).
func (h *Handler) Logout(c echo.Context) error {
	token := GetSessionToken(c)
	if token != "" {
		// Destroy the session in Redis. Ignore errors -- the cookie
		// will be cleared regardless.
		if err := h.sessions.Destroy(c.Request().Context(), token); err != nil {
			slog.Warn("destroying session", slog.Any("error", err))
		}
	}

	h.record(c, "logout", GetUserID(c), "")
	clearSessionCookie(c, h.cookieName)

	if wantsJSON(c) {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
	return c.Redirect(http.StatusSeeOther, "/login")
}

// CSRFToken mints a fresh one-time CSRF token bound to the caller's session
// (GET /csrf-token). Clients embed it in the next mutating request.
func (h *Handler) CSRFToken(c echo.Context) error {
	token, err := h.csrf.Issue(c.Request().Context(), GetSessionToken(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"csrf_token": token,
		"expires_in": int(security.CSRFTokenTTL.Seconds()),
	})
}

// record forwards an auth event to the activity sink, if one is wired.
func (h *Handler) record(c echo.Context, action, userID, details string) {
	if h.activity == nil {
		return
	}
	h.activity(c.Request().Context(), action, userID, c.RealIP(), c.Request().UserAgent(), details)
}
