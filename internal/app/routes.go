package app

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lichtbild/galerie/internal/plugins/activity"
	"github.com/lichtbild/galerie/internal/plugins/admin"
	"github.com/lichtbild/galerie/internal/plugins/auth"
	"github.com/lichtbild/galerie/internal/plugins/gallery"
	"github.com/lichtbild/galerie/internal/plugins/media"
	"github.com/lichtbild/galerie/internal/plugins/payment"
	"github.com/lichtbild/galerie/internal/security"
)

// RegisterRoutes builds the full dependency graph (repositories, services,
// handlers) and registers every plugin's routes. This is the single place
// where plugins are wired together; the plugins themselves only know about
// the interfaces they consume.
func (a *App) RegisterRoutes() {
	e := a.Echo
	cfg := a.Config

	// Health check endpoint for Docker/Cosmos health monitoring.
	e.GET("/healthz", func(c echo.Context) error {
		if err := a.DB.PingContext(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// --- Repositories ---
	userRepo := auth.NewUserRepository(a.DB)
	galleryRepo := gallery.NewGalleryRepository(a.DB)
	mediaRepo := media.NewMediaRepository(a.DB)
	paymentRepo := payment.NewPaymentRepository(a.DB)
	activityRepo := activity.NewActivityRepository(a.DB)
	adminRepo := admin.NewAdminRepository(a.DB)
	rateLimitRepo := security.NewRateLimitRepository(a.DB)

	// --- Services ---
	authSvc := auth.NewAuthService(userRepo)
	gallerySvc := gallery.NewGalleryService(galleryRepo)
	paymentSvc := payment.NewPaymentService(paymentRepo, galleryRepo, cfg.PayPalHandle)
	activitySvc := activity.NewActivityService(activityRepo)
	adminSvc := admin.NewAdminService(adminRepo, userRepo, authSvc, galleryRepo)

	inspector := media.NewFileInspector(cfg.Upload.QuarantinePath)
	quota := media.NewQuotaLedger(mediaRepo)
	mediaSvc := media.NewMediaService(mediaRepo, inspector, quota, cfg.Upload.MediaPath)

	// The payment service doubles as the access resolver's paywall
	// predicate, so a verified payment unlocks the gallery.
	resolver := gallery.NewAccessResolver(galleryRepo, paymentSvc)

	// Credential and access-code guessing share the same budget; the
	// generic request throttle is wired globally in setupMiddleware.
	loginLimiter := security.NewRateLimiter(rateLimitRepo, cfg.RateLimit.LoginMaxAttempts, cfg.RateLimit.LoginWindow)
	codeLimiter := security.NewRateLimiter(rateLimitRepo, cfg.RateLimit.LoginMaxAttempts, cfg.RateLimit.LoginWindow)

	// Every plugin that records audit events gets the same sink.
	sink := auth.ActivitySink(activitySvc.Record)

	// --- Handlers + Routes ---
	auth.RegisterRoutes(e, auth.NewHandler(authSvc, a.sessions, a.csrf, loginLimiter, cfg.Session.CookieName, sink))
	gallery.RegisterRoutes(e, gallery.NewHandler(gallerySvc, resolver, a.sessions, codeLimiter, sink))
	media.RegisterRoutes(e, media.NewHandler(mediaSvc, gallerySvc, resolver, sink), cfg.Upload.MaxFileSize)
	payment.RegisterRoutes(e, payment.NewHandler(paymentSvc, sink))
	activity.RegisterRoutes(e, activity.NewHandler(activitySvc))
	admin.RegisterRoutes(e, admin.NewHandler(adminSvc, sink))

	// Activity retention is enforced lazily from the app root rather than a
	// cron sidecar; see Maintenance in cmd/server.
	a.activity = activitySvc
}

// Activity exposes the activity service for background maintenance tasks.
func (a *App) Activity() activity.ActivityService {
	return a.activity
}
