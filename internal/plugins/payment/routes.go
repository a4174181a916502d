package payment

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up payment routes. Initiation and verification work
// for anonymous buyers too; confirmation is a mutating request and is
// covered by the global CSRF middleware.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/galleries/:id/pay", h.Initiate)
	e.GET("/galleries/:id/payment-status", h.Status)
	e.GET("/payments/:reference", h.Verify)
	e.POST("/payments/:reference/confirm", h.Confirm)
}
