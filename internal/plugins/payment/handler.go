package payment

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lichtbild/galerie/internal/apperror"
	"github.com/lichtbild/galerie/internal/plugins/auth"
	"github.com/lichtbild/galerie/internal/plugins/gallery"
)

// Handler handles HTTP requests for the payment flow.
type Handler struct {
	service  PaymentService
	activity auth.ActivitySink
}

// NewHandler creates a new payment handler.
func NewHandler(service PaymentService, activity auth.ActivitySink) *Handler {
	return &Handler{service: service, activity: activity}
}

// Initiate starts a purchase (GET /galleries/:id/pay). Buyers who already
// paid are sent straight back to the gallery.
func (h *Handler) Initiate(c echo.Context) error {
	result, err := h.service.Initiate(c.Request().Context(), c.Param("id"), auth.GetSession(c))
	if err != nil {
		return err
	}
	if result.AlreadyPaid {
		return c.Redirect(http.StatusSeeOther, result.RedirectTo)
	}

	h.record(c, "payment_initiated", c.Param("id"))
	return c.JSON(http.StatusOK, result)
}

// Verify shows the state of a payment reference (GET /payments/:reference),
// the page the buyer returns to after paying.
func (h *Handler) Verify(c echo.Context) error {
	p, err := h.service.GetByReference(c.Request().Context(), c.Param("reference"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"payment":     p,
		"confirm_url": "/payments/" + p.Reference + "/confirm",
	})
}

// Confirm marks a pending payment verified
// (POST /payments/:reference/confirm). Verification is manual: the operator
// or buyer supplies the PayPal transaction id after checking the money
// arrived.
func (h *Handler) Confirm(c echo.Context) error {
	var req ConfirmRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	p, err := h.service.Confirm(c.Request().Context(), c.Param("reference"), req.TransactionID)
	if err != nil {
		return err
	}

	h.record(c, "payment_verified", p.GalleryID)
	return c.Redirect(http.StatusSeeOther, gallery.ViewPath(p.GalleryID))
}

// Status reports whether the current actor has paid for a gallery
// (GET /galleries/:id/payment-status).
func (h *Handler) Status(c echo.Context) error {
	session := auth.GetSession(c)
	if session == nil || !session.IsAuthenticated() {
		return c.JSON(http.StatusOK, map[string]bool{"paid": false})
	}

	paid, err := h.service.IsVerified(c.Request().Context(), c.Param("id"), session.Email)
	if err != nil {
		return apperror.NewInternal(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"paid": paid})
}

func (h *Handler) record(c echo.Context, action, entityID string) {
	if h.activity == nil {
		return
	}
	h.activity(c.Request().Context(), action, auth.GetUserID(c), c.RealIP(), c.Request().UserAgent(), entityID)
}
