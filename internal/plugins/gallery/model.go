package gallery

import "time"

// Gallery is a collection of media shared with one or more clients. Access
// is gated by exactly one primary mechanism at resolve time: paywall (when
// set, supersedes everything else for non-admins), public flag, standing
// assignment, legacy client email match, or a session-scoped access code
// grant.
type Gallery struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	ClientEmail   string    `json:"client_email,omitempty"`
	AccessCode    string    `json:"-"`
	IsPublic      bool      `json:"is_public"`
	HasPaywall    bool      `json:"has_paywall"`
	PriceAmount   int64     `json:"price_amount,omitempty"`
	PriceCurrency string    `json:"price_currency,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Assignment grants a user standing access to a gallery. Created by an
// admin or automatically on payment confirmation; unique per (user, gallery).
type Assignment struct {
	UserID    string    `json:"user_id"`
	GalleryID string    `json:"gallery_id"`
	CreatedAt time.Time `json:"created_at"`
}

// GalleryStats augments a gallery with aggregate media figures for
// dashboard listings.
type GalleryStats struct {
	Gallery
	MediaCount int   `json:"media_count"`
	TotalBytes int64 `json:"total_bytes"`
}

// CreateRequest is the admin form payload for creating a gallery.
type CreateRequest struct {
	Name          string `json:"name" form:"name"`
	ClientEmail   string `json:"client_email" form:"client_email"`
	AccessCode    string `json:"access_code" form:"access_code"`
	IsPublic      bool   `json:"is_public" form:"is_public"`
	HasPaywall    bool   `json:"has_paywall" form:"has_paywall"`
	PriceAmount   int64  `json:"price_amount" form:"price_amount"`
	PriceCurrency string `json:"price_currency" form:"price_currency"`
}

// UpdateRequest is the admin form payload for editing a gallery.
type UpdateRequest struct {
	Name          string `json:"name" form:"name"`
	ClientEmail   string `json:"client_email" form:"client_email"`
	AccessCode    string `json:"access_code" form:"access_code"`
	IsPublic      bool   `json:"is_public" form:"is_public"`
	HasPaywall    bool   `json:"has_paywall" form:"has_paywall"`
	PriceAmount   int64  `json:"price_amount" form:"price_amount"`
	PriceCurrency string `json:"price_currency" form:"price_currency"`
}

// UnlockRequest is the access-code submission payload.
type UnlockRequest struct {
	Code string `json:"code" form:"code"`
}
