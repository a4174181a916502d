package activity

import (
	"github.com/labstack/echo/v4"

	"github.com/lichtbild/galerie/internal/plugins/auth"
)

// RegisterRoutes sets up activity routes. The feed is admin-only.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/admin/activity", h.Feed, auth.RequireAdmin())
}
