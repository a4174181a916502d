package gallery

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lichtbild/galerie/internal/apperror"
	"github.com/lichtbild/galerie/internal/plugins/auth"
	"github.com/lichtbild/galerie/internal/security"
)

// Handler handles HTTP requests for gallery viewing, unlocking, and admin
// management. Handlers are thin: bind, call the service, render.
type Handler struct {
	service     GalleryService
	resolver    *AccessResolver
	sessions    *auth.SessionManager
	codeLimiter *security.RateLimiter
	activity    auth.ActivitySink
}

// NewHandler creates a new gallery handler. codeLimiter throttles
// access-code guessing with the same budget as logins.
func NewHandler(service GalleryService, resolver *AccessResolver, sessions *auth.SessionManager, codeLimiter *security.RateLimiter, activity auth.ActivitySink) *Handler {
	return &Handler{
		service:     service,
		resolver:    resolver,
		sessions:    sessions,
		codeLimiter: codeLimiter,
		activity:    activity,
	}
}

// View resolves access and returns the gallery (GET /galleries/:id).
// Callers without access are redirected to the page that can change that:
// code entry, or payment initiation for paywalled galleries.
func (h *Handler) View(c echo.Context) error {
	ctx := c.Request().Context()

	g, err := h.service.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	decision, err := h.resolver.Resolve(ctx, g, auth.GetSession(c))
	if err != nil {
		return err
	}
	if !decision.Allow {
		return c.Redirect(http.StatusSeeOther, decision.RedirectTo)
	}

	return c.JSON(http.StatusOK, g)
}

// Unlock processes an access-code submission (POST /galleries/:id/unlock).
// Guesses are rate-limited per client fingerprint; a correct code records a
// session-scoped grant and resets the counter.
func (h *Handler) Unlock(c echo.Context) error {
	ctx := c.Request().Context()
	identifier := security.RequestIdentifier(c)

	allowed, err := h.codeLimiter.IsAllowed(ctx, identifier, security.ActionAccessCode)
	if err != nil {
		return err
	}
	if !allowed {
		remaining, err := h.codeLimiter.RemainingBlockSeconds(ctx, identifier, security.ActionAccessCode)
		if err != nil {
			return err
		}
		return apperror.NewRateLimited(remaining)
	}

	var req UnlockRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	if req.Code == "" {
		return apperror.NewValidation("access code is required")
	}

	g, err := h.service.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	session := auth.GetSession(c)
	if err := h.resolver.SubmitAccessCode(ctx, g, req.Code, session); err != nil {
		if limitErr := h.codeLimiter.RecordAttempt(ctx, identifier, security.ActionAccessCode, false); limitErr != nil {
			slog.Warn("recording failed unlock attempt", slog.Any("error", limitErr))
		}
		h.record(c, "gallery_unlock_failed", g.ID)
		return err
	}

	if err := h.codeLimiter.RecordAttempt(ctx, identifier, security.ActionAccessCode, true); err != nil {
		slog.Warn("resetting unlock rate limit", slog.Any("error", err))
	}

	// Persist the grant so it survives to the next request.
	if err := h.sessions.Save(ctx, auth.GetSessionToken(c), session); err != nil {
		return err
	}

	h.record(c, "gallery_unlocked", g.ID)
	return c.Redirect(http.StatusSeeOther, ViewPath(g.ID))
}

// Dashboard lists the galleries the authenticated client can reach
// (GET /dashboard).
func (h *Handler) Dashboard(c echo.Context) error {
	session := auth.GetSession(c)
	galleries, err := h.service.ListAccessible(c.Request().Context(), session.UserID, session.Email)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"galleries": galleries})
}

// --- Admin management ---

// List returns all galleries with media figures (GET /admin/galleries).
func (h *Handler) List(c echo.Context) error {
	galleries, err := h.service.ListAll(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"galleries": galleries})
}

// Create creates a gallery (POST /admin/galleries).
func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	g, err := h.service.Create(c.Request().Context(), req)
	if err != nil {
		return err
	}

	h.record(c, "gallery_created", g.ID)
	return c.JSON(http.StatusCreated, g)
}

// Update edits a gallery (PUT /admin/galleries/:id).
func (h *Handler) Update(c echo.Context) error {
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	g, err := h.service.Update(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return err
	}

	h.record(c, "gallery_updated", g.ID)
	return c.JSON(http.StatusOK, g)
}

// Delete removes a gallery (DELETE /admin/galleries/:id).
func (h *Handler) Delete(c echo.Context) error {
	id := c.Param("id")
	if err := h.service.Delete(c.Request().Context(), id); err != nil {
		return err
	}

	h.record(c, "gallery_deleted", id)
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) record(c echo.Context, action, galleryID string) {
	if h.activity == nil {
		return
	}
	h.activity(c.Request().Context(), action, auth.GetUserID(c), c.RealIP(), c.Request().UserAgent(), galleryID)
}
