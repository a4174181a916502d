package activity

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handler exposes the admin activity feed.
type Handler struct {
	service ActivityService
}

// NewHandler creates a new activity handler.
func NewHandler(service ActivityService) *Handler {
	return &Handler{service: service}
}

// Feed returns a page of recent activity (GET /admin/activity?page=N).
func (h *Handler) Feed(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))

	entries, total, err := h.service.Feed(c.Request().Context(), page)
	if err != nil {
		return err
	}

	if page < 1 {
		page = 1
	}
	return c.JSON(http.StatusOK, map[string]any{
		"entries":  entries,
		"total":    total,
		"page":     page,
		"per_page": perPage,
	})
}
