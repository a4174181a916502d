// Package media implements gallery uploads: per-file content inspection
// with quarantine, per-user per-gallery quota enforcement, storage, and
// serving. A file is persisted only after both the inspector and the quota
// ledger approve.
package media

import "time"

// Media type constants.
const (
	TypePhoto = "photo"
	TypeVideo = "video"
)

// Upload limits. The per-file ceiling is a transport-level bound; the quota
// bounds are per (uploader, gallery) account-level budgets enforced by the
// quota ledger. Admin uploads are exempt from the quota, not from the
// per-file ceiling.
const (
	MaxFileBytes  = 100 * 1024 * 1024 // single file
	QuotaMaxFiles = 5
	QuotaMaxBytes = 15 * 1024 * 1024 // aggregate per (uploader, gallery)

	// MaxBatchFiles caps files per upload request. Unlike the quota it also
	// applies to admins; the transport body limit is sized from it, so a
	// full batch of maximum-size files fits through in one request.
	MaxBatchFiles = 10
)

// allowedExtensions is the extension allow-set (lower-cased, without dot).
var allowedExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true,
	"mp4": true, "mov": true, "avi": true, "wmv": true,
}

// allowedMimeTypes is the parallel allow-set for sniffed content types.
var allowedMimeTypes = map[string]bool{
	"image/jpeg": true, "image/png": true, "image/gif": true, "image/webp": true,
	"video/mp4": true, "video/quicktime": true, "video/x-msvideo": true, "video/x-ms-wmv": true,
}

// mediaTypeForMime maps a sniffed MIME type to the stored media type.
func mediaTypeForMime(mime string) string {
	if len(mime) >= 6 && mime[:6] == "video/" {
		return TypeVideo
	}
	return TypePhoto
}

// MediaAsset is a stored gallery file. Filename is always generated, never
// user-supplied. UploaderUserID is nil for admin uploads, which do not
// count against any quota.
type MediaAsset struct {
	ID             string    `json:"id"`
	GalleryID      string    `json:"gallery_id"`
	UploaderUserID *string   `json:"uploader_user_id,omitempty"`
	Type           string    `json:"type"`
	Filename       string    `json:"filename"`
	MimeType       string    `json:"mime_type"`
	ByteSize       int64     `json:"byte_size"`
	UploadedAt     time.Time `json:"uploaded_at"`
}

// UploadFile is one file of an incoming batch, fully read from the
// transport. TransportErr carries a multipart/transfer failure for this
// file; when set, no content checks run and the file is rejected with that
// single reason.
type UploadFile struct {
	Name         string
	DeclaredMime string
	Size         int64
	Content      []byte
	TransportErr error
}

// Upload outcome constants for per-file results.
const (
	OutcomeSuccess          = "success"
	OutcomeValidationFailed = "validation_failed"
	OutcomeQuotaRejected    = "quota_rejected"
	OutcomeStorageFailed    = "storage_failed"
)

// UploadResult reports what happened to one file of a batch.
type UploadResult struct {
	Name     string   `json:"name"`
	Outcome  string   `json:"outcome"`
	Errors   []string `json:"errors,omitempty"`
	AssetID  string   `json:"asset_id,omitempty"`
	ByteSize int64    `json:"byte_size,omitempty"`
}

// BatchSummary is the structured response for an upload batch: one entry
// per file plus success/failure counts and total bytes persisted.
type BatchSummary struct {
	Results     []UploadResult `json:"results"`
	Succeeded   int            `json:"succeeded"`
	Failed      int            `json:"failed"`
	BytesStored int64          `json:"bytes_stored"`
	QuotaErrors []string       `json:"quota_errors,omitempty"`
}
