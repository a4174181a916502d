package gallery

import (
	"github.com/labstack/echo/v4"

	"github.com/lichtbild/galerie/internal/plugins/auth"
)

// RegisterRoutes sets up gallery routes. Viewing and unlocking are open to
// anonymous sessions (access resolution happens inside the handler);
// management is admin-only.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/galleries/:id", h.View)
	e.POST("/galleries/:id/unlock", h.Unlock)

	e.GET("/dashboard", h.Dashboard, auth.RequireAuth())

	admin := e.Group("/admin/galleries", auth.RequireAdmin())
	admin.GET("", h.List)
	admin.POST("", h.Create)
	admin.PUT("/:id", h.Update)
	admin.DELETE("/:id", h.Delete)
}
