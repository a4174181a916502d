package media

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	// Register decoders for structural validation of images.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// sniffLimit is how much of the file the signature scan reads.
const sniffLimit = 8 * 1024

// forbiddenNameChars are filename characters rejected outright, on top of
// control characters and traversal sequences.
const forbiddenNameChars = `<>:"|?*`

// maliciousSignatures is the denylist applied to the lower-cased head of
// every upload. A heuristic defense against polyglot files (a JPEG with
// embedded PHP), not a full AV scan.
var maliciousSignatures = []string{
	"<?php",
	"<?=",
	"<script",
	"javascript:",
	"vbscript:",
	"onerror=",
	"onload=",
	"onclick=",
	"onmouseover=",
	"eval(",
	"exec(",
	"system(",
	"shell_exec(",
	"passthru(",
	"base64_decode(",
	"../",
	"..\\",
}

// FileInspector validates an upload's type, filename, and content against
// the media policy, and moves rejects into quarantine. It is stateless and
// safe for concurrent use.
type FileInspector struct {
	quarantinePath string
}

// NewFileInspector creates an inspector writing rejects under
// quarantinePath.
func NewFileInspector(quarantinePath string) *FileInspector {
	return &FileInspector{quarantinePath: quarantinePath}
}

// Inspect runs every admissibility check and returns the accumulated
// reasons for rejection; an empty slice means the file is admissible. A
// transport error short-circuits: nothing else can be trusted about the
// file.
func (i *FileInspector) Inspect(file *UploadFile) []string {
	if file.TransportErr != nil {
		return []string{fmt.Sprintf("upload failed: %v", file.TransportErr)}
	}

	var errs []string

	if file.Size == 0 {
		errs = append(errs, "file is empty")
	}
	if file.Size > MaxFileBytes {
		errs = append(errs, fmt.Sprintf("file exceeds the %d MiB limit", MaxFileBytes/(1024*1024)))
	}

	if nameErr := checkFilename(file.Name); nameErr != "" {
		errs = append(errs, nameErr)
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(file.Name), "."))
	if !allowedExtensions[ext] {
		errs = append(errs, fmt.Sprintf("file type .%s is not allowed", ext))
	}

	// The client-declared content type is advisory only; the decision rests
	// on what the bytes actually are.
	sniffed := sniffMime(file.Content)
	if !allowedMimeTypes[sniffed] {
		errs = append(errs, "file content is not a supported image or video format")
	} else if strings.HasPrefix(sniffed, "image/") {
		if _, _, err := image.Decode(bytes.NewReader(file.Content)); err != nil {
			errs = append(errs, "image file is corrupt or not decodable")
		}
	}

	if sigErr := scanSignatures(file.Content); sigErr != "" {
		errs = append(errs, sigErr)
	}

	return errs
}

// Quarantine moves a rejected upload into the quarantine area for audit.
// The stored name is timestamped and never derived from a client-controlled
// path. Quarantined files are write-only: nothing in the application reads
// them back.
func (i *FileInspector) Quarantine(file *UploadFile, reasons []string) {
	if len(file.Content) == 0 {
		return
	}

	if err := os.MkdirAll(i.quarantinePath, 0o755); err != nil {
		slog.Error("creating quarantine directory", slog.Any("error", err))
		return
	}

	name := fmt.Sprintf("%d_%s.quarantine", time.Now().UnixNano(), sanitizeBaseName(file.Name))
	path := filepath.Join(i.quarantinePath, name)
	if err := os.WriteFile(path, file.Content, 0o600); err != nil {
		slog.Error("writing quarantine file", slog.Any("error", err))
		return
	}

	slog.Warn("upload quarantined",
		slog.String("original_name", file.Name),
		slog.String("quarantine_file", name),
		slog.Any("reasons", reasons),
	)
}

// SniffedMime exposes the content sniff for callers that need the stored
// MIME type of an admissible file.
func (i *FileInspector) SniffedMime(file *UploadFile) string {
	return sniffMime(file.Content)
}

// GenerateStoredFilename produces the on-disk name for an accepted upload:
// timestamp, random bytes, and the lower-cased original extension. The
// original filename never becomes a path component, which removes the
// traversal and collision class structurally.
func GenerateStoredFilename(originalName string) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating filename: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(originalName))
	return fmt.Sprintf("%d_%s%s", time.Now().UnixNano(), hex.EncodeToString(b), ext), nil
}

// checkFilename enforces the filename policy: printable, no shell/FS
// metacharacters, no traversal, no hidden/underscore prefix, bounded
// length, and at most one dot (blocks double-extension smuggling like
// x.jpg.php).
func checkFilename(name string) string {
	if name == "" {
		return "filename is empty"
	}
	if len(name) > 255 {
		return "filename is longer than 255 bytes"
	}
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
		return "filename must not start with a dot or underscore"
	}
	if strings.Contains(name, "../") || strings.Contains(name, `..\`) {
		return "filename contains a path traversal sequence"
	}
	if strings.ContainsAny(name, forbiddenNameChars) {
		return "filename contains forbidden characters"
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return "filename contains control characters"
		}
	}
	if strings.Count(name, ".") > 1 {
		return "filename must contain exactly one extension"
	}
	return ""
}

// sanitizeBaseName reduces a client filename to a safe path component for
// the quarantine name: base name only, with anything outside
// [A-Za-z0-9._-] replaced by an underscore. Quarantined files failed
// validation, so their names can contain anything at all.
func sanitizeBaseName(name string) string {
	base := filepath.Base(name)
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return "unnamed"
	}

	var b strings.Builder
	b.Grow(len(base))
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "unnamed"
	}
	return b.String()
}

// scanSignatures reads the head of the file, lower-cases it, and checks it
// against the executable/script marker denylist.
func scanSignatures(content []byte) string {
	head := content
	if len(head) > sniffLimit {
		head = head[:sniffLimit]
	}

	if bytes.IndexByte(head, 0x00) >= 0 {
		// NUL bytes are legitimate in binary media, but only after the
		// format sniff already vouched for the container. The denylist scan
		// cares about script payloads, which have no business containing
		// NUL -- so the check applies to text-looking heads only.
		if !looksBinary(head) {
			return "file content contains NUL bytes"
		}
	}

	lowered := strings.ToLower(string(head))
	for _, sig := range maliciousSignatures {
		if strings.Contains(lowered, sig) {
			return fmt.Sprintf("file content contains a forbidden pattern (%q)", sig)
		}
	}
	return ""
}

// looksBinary reports whether the head starts with a known media container
// signature.
func looksBinary(head []byte) bool {
	return sniffMime(head) != ""
}

// sniffMime determines the content type from magic bytes. Returns the MIME
// string for known media formats, or "" for anything unrecognized.
func sniffMime(data []byte) string {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "image/jpeg"
	case len(data) >= 8 &&
		data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 &&
		data[4] == 0x0D && data[5] == 0x0A && data[6] == 0x1A && data[7] == 0x0A:
		return "image/png"
	case len(data) >= 6 && string(data[:3]) == "GIF":
		return "image/gif"
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return "image/webp"
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:11]) == "AVI":
		return "video/x-msvideo"
	case len(data) >= 12 && string(data[4:8]) == "ftyp":
		if strings.HasPrefix(string(data[8:12]), "qt") {
			return "video/quicktime"
		}
		return "video/mp4"
	case len(data) >= 8 && string(data[:4]) == "moov",
		len(data) >= 8 && string(data[4:8]) == "moov",
		len(data) >= 8 && string(data[4:8]) == "mdat":
		return "video/quicktime"
	case len(data) >= 16 &&
		data[0] == 0x30 && data[1] == 0x26 && data[2] == 0xB2 && data[3] == 0x75 &&
		data[4] == 0x8E && data[5] == 0x66 && data[6] == 0xCF && data[7] == 0x11:
		return "video/x-ms-wmv"
	default:
		return ""
	}
}
