package admin

import (
	"github.com/labstack/echo/v4"

	"github.com/lichtbild/galerie/internal/plugins/auth"
)

// RegisterRoutes sets up the admin surface. Everything here is admin-only.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/admin", h.Dashboard, auth.RequireAdmin())

	users := e.Group("/admin/users", auth.RequireAdmin())
	users.GET("", h.ListClients)
	users.POST("", h.CreateClient)
	users.PUT("/:id", h.UpdateClient)
	users.DELETE("/:id", h.DeleteClient)
}
