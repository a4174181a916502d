// Package admin bundles the operator surface: the dashboard overview and
// client account management. Gallery management itself lives in the gallery
// plugin; this package owns the cross-cutting aggregates and user
// provisioning.
package admin

import "time"

// DashboardStats is the admin landing page's aggregate view.
type DashboardStats struct {
	UserCount       int            `json:"user_count"`
	GalleryCount    int            `json:"gallery_count"`
	MediaCount      int            `json:"media_count"`
	TotalMediaBytes int64          `json:"total_media_bytes"`
	PendingPayments int            `json:"pending_payments"`
	RecentUploads   []RecentUpload `json:"recent_uploads"`
}

// RecentUpload is one row of the dashboard's latest-uploads list.
type RecentUpload struct {
	MediaID     string    `json:"media_id"`
	GalleryID   string    `json:"gallery_id"`
	GalleryName string    `json:"gallery_name"`
	Filename    string    `json:"filename"`
	ByteSize    int64     `json:"byte_size"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// ClientView is one row of the user management list, including the
// galleries assigned to the account.
type ClientView struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	GalleryIDs  []string   `json:"gallery_ids"`
}

// CreateClientRequest provisions a client account with optional initial
// gallery assignments.
type CreateClientRequest struct {
	Email      string   `json:"email" form:"email"`
	Password   string   `json:"password" form:"password"`
	GalleryIDs []string `json:"gallery_ids" form:"gallery_ids"`
}

// UpdateClientRequest edits a client account. An empty password keeps the
// current one.
type UpdateClientRequest struct {
	Email      string   `json:"email" form:"email"`
	Password   string   `json:"password" form:"password"`
	GalleryIDs []string `json:"gallery_ids" form:"gallery_ids"`
}
