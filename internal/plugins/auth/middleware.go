package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lichtbild/galerie/internal/apperror"
	"github.com/lichtbild/galerie/internal/security"
)

// Context keys for storing session data in Echo context. Other plugins use
// these keys (via the exported getter functions below) to access the
// caller's session.
const (
	contextKeySession      = "auth_session"
	contextKeySessionToken = "auth_session_token"
)

// csrfHeaderName is the header AJAX clients send the CSRF token in.
const csrfHeaderName = "X-CSRF-Token"

// csrfFormField is the hidden form field name for form submissions.
const csrfFormField = "csrf_token"

// WithSession returns middleware that resolves the session cookie and
// injects the session into the request context. Visitors without a valid
// session get a fresh anonymous one: access-code grants and CSRF tokens are
// session-bound and must work before any login.
func WithSession(cookieName string, sessions *SessionManager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			if cookie, err := c.Cookie(cookieName); err == nil && cookie.Value != "" {
				session, err := sessions.Get(ctx, cookie.Value)
				if err == nil {
					c.Set(contextKeySession, session)
					c.Set(contextKeySessionToken, cookie.Value)
					return next(c)
				}
				// Expired or unknown token: fall through and mint a new session.
			}

			session := &Session{}
			token, err := sessions.Create(ctx, session)
			if err != nil {
				return err
			}

			setSessionCookie(c, cookieName, token)
			c.Set(contextKeySession, session)
			c.Set(contextKeySessionToken, token)

			return next(c)
		}
	}
}

// RequireAuth returns middleware that rejects requests whose session is not
// authenticated. Browsers are redirected to /login; API-style requests get
// a 401. Must run after WithSession.
func RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			session := GetSession(c)
			if session == nil || !session.IsAuthenticated() {
				return handleUnauthenticated(c)
			}
			return next(c)
		}
	}
}

// RequireAdmin returns middleware that rejects non-admin sessions with 403.
// Must run after WithSession.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			session := GetSession(c)
			if session == nil || !session.IsAuthenticated() {
				return handleUnauthenticated(c)
			}
			if !session.IsAdmin() {
				return apperror.NewForbidden("admin access required")
			}
			return next(c)
		}
	}
}

// CSRFProtect returns middleware that validates a one-time CSRF token on
// every state-changing request (POST, PUT, PATCH, DELETE). The token comes
// from the X-CSRF-Token header or the csrf_token form field and is consumed
// atomically, so a replayed or concurrent duplicate submission hard-fails
// with 403 and no partial effects. Must run after WithSession.
func CSRFProtect(guard *security.CSRFGuard) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isSafeMethod(c.Request().Method) {
				return next(c)
			}

			token := c.Request().Header.Get(csrfHeaderName)
			if token == "" {
				token = c.FormValue(csrfFormField)
			}

			ok, err := guard.Consume(c.Request().Context(), GetSessionToken(c), token)
			if err != nil {
				return err
			}
			if !ok {
				return apperror.NewForbidden("invalid or missing CSRF token")
			}

			return next(c)
		}
	}
}

// isSafeMethod returns true for HTTP methods that should not change state.
func isSafeMethod(method string) bool {
	return method == http.MethodGet ||
		method == http.MethodHead ||
		method == http.MethodOptions
}

// handleUnauthenticated returns the appropriate response for unauthenticated
// requests: redirect for browsers, 401 JSON for API clients.
func handleUnauthenticated(c echo.Context) error {
	if wantsJSON(c) {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error":   "unauthorized",
			"message": "authentication required",
		})
	}
	return c.Redirect(http.StatusSeeOther, "/login")
}

// wantsJSON returns true if the client asked for a JSON response.
func wantsJSON(c echo.Context) bool {
	accept := c.Request().Header.Get("Accept")
	return accept == "application/json" ||
		c.Request().Header.Get("X-Requested-With") == "XMLHttpRequest"
}

// setSessionCookie writes the session cookie on the response.
func setSessionCookie(c echo.Context, name, token string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Request().TLS != nil || c.Request().Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie expires the session cookie on the response.
func clearSessionCookie(c echo.Context, name string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// --- Exported getters for other plugins ---

// GetSession retrieves the session from the Echo context. Returns nil if
// WithSession did not run.
func GetSession(c echo.Context) *Session {
	session, ok := c.Get(contextKeySession).(*Session)
	if !ok {
		return nil
	}
	return session
}

// GetSessionToken retrieves the session token from the Echo context.
// Returns empty string if WithSession did not run.
func GetSessionToken(c echo.Context) string {
	token, ok := c.Get(contextKeySessionToken).(string)
	if !ok {
		return ""
	}
	return token
}

// GetUserID retrieves the authenticated user's ID from the Echo context.
// Returns empty string for anonymous sessions.
func GetUserID(c echo.Context) string {
	if session := GetSession(c); session != nil {
		return session.UserID
	}
	return ""
}
