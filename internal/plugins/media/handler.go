package media

import (
	"io"
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lichtbild/galerie/internal/apperror"
	"github.com/lichtbild/galerie/internal/plugins/auth"
	"github.com/lichtbild/galerie/internal/plugins/gallery"
)

// Handler handles HTTP requests for media operations. Every view/list/
// upload path is gated by the gallery access resolver; delete is gated by
// ownership.
type Handler struct {
	service   MediaService
	galleries gallery.GalleryService
	resolver  *gallery.AccessResolver
	activity  auth.ActivitySink
}

// NewHandler creates a new media handler.
func NewHandler(service MediaService, galleries gallery.GalleryService, resolver *gallery.AccessResolver, activity auth.ActivitySink) *Handler {
	return &Handler{
		service:   service,
		galleries: galleries,
		resolver:  resolver,
		activity:  activity,
	}
}

// Upload handles a multipart batch upload into a gallery
// (POST /galleries/:id/media). The caller must be logged in and must pass
// the gallery's access gate; quota and per-file inspection happen in the
// service.
func (h *Handler) Upload(c echo.Context) error {
	ctx := c.Request().Context()
	session := auth.GetSession(c)

	g, err := h.galleries.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	decision, err := h.resolver.Resolve(ctx, g, session)
	if err != nil {
		return err
	}
	if !decision.Allow {
		return c.Redirect(http.StatusSeeOther, decision.RedirectTo)
	}

	form, err := c.MultipartForm()
	if err != nil {
		return apperror.NewBadRequest("invalid multipart request")
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return apperror.NewValidation("no files provided")
	}

	files := make([]*UploadFile, 0, len(headers))
	for _, header := range headers {
		files = append(files, readUploadFile(header))
	}

	summary, err := h.service.UploadBatch(ctx, BatchInput{
		GalleryID:  g.ID,
		UploaderID: session.UserID,
		IsAdmin:    session.IsAdmin(),
		Files:      files,
	})
	if err != nil {
		return err
	}

	h.record(c, "media_uploaded", g.ID)

	status := http.StatusCreated
	if summary.Succeeded == 0 {
		status = http.StatusUnprocessableEntity
	}
	return c.JSON(status, summary)
}

// List returns a gallery's media metadata (GET /galleries/:id/media).
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()

	g, err := h.galleries.Get(ctx, c.Param("id"))
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

	assets, err := h.service.ListByGallery(ctx, g.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"media": assets})
}

// Serve streams a media file (GET /media/:id). Access follows the owning
// gallery's gate. Stored filenames are random and immutable, so far-future
// cache headers are safe.
func (h *Handler) Serve(c echo.Context) error {
	ctx := c.Request().Context()

	asset, err := h.service.GetByID(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	g, err := h.galleries.Get(ctx, asset.GalleryID)
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

	c.Response().Header().Set("Cache-Control", "private, max-age=31536000, immutable")
	c.Response().Header().Set("Content-Type", asset.MimeType)
	return c.File(h.service.FilePath(asset))
}

// Delete removes a media asset (DELETE /media/:id). Clients may delete
// their own uploads; admins may delete anything.
func (h *Handler) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	session := auth.GetSession(c)

	asset, err := h.service.GetByID(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	owns := asset.UploaderUserID != nil && *asset.UploaderUserID == session.UserID
	if !owns && !session.IsAdmin() {
		return apperror.NewForbidden("you cannot delete this file")
	}

	if err := h.service.Delete(ctx, asset.ID); err != nil {
		return err
	}

	h.record(c, "media_deleted", asset.ID)
	return c.NoContent(http.StatusNoContent)
}

// readUploadFile fully reads one multipart part into an UploadFile,
// capturing transport failures instead of aborting the batch.
func readUploadFile(header *multipart.FileHeader) *UploadFile {
	f := &UploadFile{
		Name:         header.Filename,
		DeclaredMime: header.Header.Get("Content-Type"),
		Size:         header.Size,
	}

	src, err := header.Open()
	if err != nil {
		f.TransportErr = err
		return f
	}
	defer src.Close()

	content, err := io.ReadAll(src)
	if err != nil {
		f.TransportErr = err
		return f
	}

	f.Content = content
	f.Size = int64(len(content))
	return f
}

func (h *Handler) record(c echo.Context, action, entityID string) {
	if h.activity == nil {
		return
	}
	h.activity(c.Request().Context(), action, auth.GetUserID(c), c.RealIP(), c.Request().UserAgent(), entityID)
}
