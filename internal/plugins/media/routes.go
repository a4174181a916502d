package media

import (
	"fmt"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/lichtbild/galerie/internal/plugins/auth"
)

// RegisterRoutes sets up media routes. The body limit covers a full batch
// of maximum-size files plus multipart overhead, so a legitimate multi-file
// upload never 413s at transport; the inspector enforces the exact per-file
// limit and the service enforces the batch count.
func RegisterRoutes(e *echo.Echo, h *Handler, maxFileBytes int64) {
	bodyLimit := fmt.Sprintf("%dM", MaxBatchFiles*(maxFileBytes/(1024*1024)+1))
	e.POST("/galleries/:id/media", h.Upload, auth.RequireAuth(), echomw.BodyLimit(bodyLimit))
	e.GET("/galleries/:id/media", h.List)

	e.GET("/media/:id", h.Serve)
	e.DELETE("/media/:id", h.Delete, auth.RequireAuth())
}
