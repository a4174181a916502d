package admin

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lichtbild/galerie/internal/apperror"
	"github.com/lichtbild/galerie/internal/plugins/auth"
)

// Handler handles HTTP requests for the admin surface.
type Handler struct {
	service  AdminService
	activity auth.ActivitySink
}

// NewHandler creates a new admin handler.
func NewHandler(service AdminService, activity auth.ActivitySink) *Handler {
	return &Handler{service: service, activity: activity}
}

// Dashboard returns the aggregate overview (GET /admin).
func (h *Handler) Dashboard(c echo.Context) error {
	stats, err := h.service.Dashboard(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

// ListClients returns all accounts with their assignments
// (GET /admin/users).
func (h *Handler) ListClients(c echo.Context) error {
	clients, err := h.service.ListClients(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"users": clients})
}

// CreateClient provisions a client account (POST /admin/users).
func (h *Handler) CreateClient(c echo.Context) error {
	var req CreateClientRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	client, err := h.service.CreateClient(c.Request().Context(), req)
	if err != nil {
		return err
	}

	h.record(c, "client_created", client.ID)
	return c.JSON(http.StatusCreated, client)
}

// UpdateClient edits a client account (PUT /admin/users/:id).
func (h *Handler) UpdateClient(c echo.Context) error {
	var req UpdateClientRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	client, err := h.service.UpdateClient(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return err
	}

	h.record(c, "client_updated", client.ID)
	return c.JSON(http.StatusOK, client)
}

// DeleteClient removes a client account (DELETE /admin/users/:id).
func (h *Handler) DeleteClient(c echo.Context) error {
	id := c.Param("id")
	if err := h.service.DeleteClient(c.Request().Context(), id); err != nil {
		return err
	}

	h.record(c, "client_deleted", id)
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) record(c echo.Context, action, entityID string) {
	if h.activity == nil {
		return
	}
	h.activity(c.Request().Context(), action, auth.GetUserID(c), c.RealIP(), c.Request().UserAgent(), entityID)
}
