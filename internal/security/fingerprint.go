// Package security implements the abuse-prevention core of Galerie: client
// fingerprinting, fixed-window rate limiting with escalating lockouts, and
// one-time CSRF tokens. Components here are transport-agnostic services;
// the Echo middleware adapters live in internal/middleware and the plugins.
package security

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/labstack/echo/v4"
)

// ClientIdentifier derives a stable, non-reversible identifier from the
// client's IP address and User-Agent string. Hashing both together makes the
// fingerprint resistant to trivial IP-only rotation while keeping raw
// addresses out of the rate_limits table. This is a heuristic identity, not
// a cryptographic one.
func ClientIdentifier(ip, userAgent string) string {
	sum := sha256.Sum256([]byte(ip + "|" + userAgent))
	return hex.EncodeToString(sum[:])
}

// RequestIdentifier derives the client identifier for an Echo request.
// c.RealIP() resolves the best-effort client IP: the trusted-proxy extractor
// (internal/middleware/proxy.go) consults forwarding headers only when the
// direct peer is a trusted proxy, falling back to the peer address.
func RequestIdentifier(c echo.Context) string {
	return ClientIdentifier(c.RealIP(), c.Request().UserAgent())
}
