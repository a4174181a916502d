package middleware

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/lichtbild/galerie/internal/apperror"
	"github.com/lichtbild/galerie/internal/security"
)

// Throttle applies a fixed-window request ceiling per client fingerprint.
// Every request counts against the window; a client that exhausts its budget
// is blocked for the remainder of the window and told when to come back.
//
// The limiter is fail-open: if the backing store is unreachable the request
// proceeds, because an outage in the throttle table must not take down the
// whole site.
func Throttle(limiter *security.RateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			identifier := security.RequestIdentifier(c)

			allowed, err := limiter.IsAllowed(ctx, identifier, security.ActionRequest)
			if err != nil {
				slog.Warn("request throttle check failed",
					slog.String("path", c.Request().URL.Path),
					slog.Any("error", err),
				)
				return next(c)
			}
			if !allowed {
				retry, err := limiter.RemainingBlockSeconds(ctx, identifier, security.ActionRequest)
				if err != nil || retry <= 0 {
					// Worst case the block lasts one full window.
					retry = int(limiter.Window().Seconds())
				}
				return apperror.NewRateLimited(retry)
			}

			if err := limiter.RecordAttempt(ctx, identifier, security.ActionRequest, false); err != nil {
				slog.Warn("request throttle record failed", slog.Any("error", err))
			}

			return next(c)
		}
	}
}
