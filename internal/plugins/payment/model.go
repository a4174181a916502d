// Package payment tracks paywalled-gallery purchases. The flow is
// deliberately manual: initiation creates a pending record and points the
// buyer at a PayPal.me link carrying a unique reference; confirmation marks
// the record verified and grants gallery access. The rest of the
// application only ever asks one question of this package: does a verified
// record exist for (gallery, email).
package payment

import "time"

// Payment status constants.
const (
	StatusPending  = "pending"
	StatusVerified = "verified"
	StatusFailed   = "failed"
)

// Payment is one purchase attempt for a gallery.
type Payment struct {
	ID            string     `json:"id"`
	GalleryID     string     `json:"gallery_id"`
	UserID        *string    `json:"user_id,omitempty"`
	Email         string     `json:"email,omitempty"`
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	Reference     string     `json:"reference"`
	Status        string     `json:"status"`
	TransactionID string     `json:"transaction_id,omitempty"`
	VerifiedAt    *time.Time `json:"verified_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// InitiateResult is what payment initiation hands back to the client: either
// the caller already paid (redirect straight to the gallery), or the
// PayPal link plus the reference to confirm with later.
type InitiateResult struct {
	AlreadyPaid bool   `json:"already_paid,omitempty"`
	RedirectTo  string `json:"redirect_to,omitempty"`
	Reference   string `json:"reference,omitempty"`
	PayPalURL   string `json:"paypal_url,omitempty"`
	Amount      string `json:"amount,omitempty"`
	Currency    string `json:"currency,omitempty"`
	GalleryName string `json:"gallery_name,omitempty"`
}

// ConfirmRequest is the manual confirmation payload.
type ConfirmRequest struct {
	TransactionID string `json:"transaction_id" form:"transaction_id"`
}
