package auth

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up all auth-related routes on the given Echo instance.
// Session and CSRF middleware are applied globally by the app wiring; the
// route-level middleware exported from this package (RequireAuth,
// RequireAdmin) is for other plugins' groups.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.POST("/login", h.Login)
	e.POST("/logout", h.Logout)
	e.GET("/csrf-token", h.CSRFToken)
}
