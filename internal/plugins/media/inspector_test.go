package media

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// --- Test fixtures ---

// tinyPNG encodes a 1x1 image as PNG.
func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding png fixture: %v", err)
	}
	return buf.Bytes()
}

// tinyJPEG encodes a small image as JPEG.
func tinyJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encoding jpeg fixture: %v", err)
	}
	return buf.Bytes()
}

// tinyGIF encodes a 1x1 image as GIF.
func tinyGIF(t *testing.T) []byte {
	t.Helper()
	img := image.NewPaletted(image.Rect(0, 0, 1, 1), color.Palette{color.Black})
	var buf bytes.Buffer
	if err := gif.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encoding gif fixture: %v", err)
	}
	return buf.Bytes()
}

// fakeMP4 builds a minimal ftyp header.
func fakeMP4() []byte {
	return []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0, 0, 0, 0}
}

func newTestInspector(t *testing.T) *FileInspector {
	t.Helper()
	return NewFileInspector(t.TempDir())
}

func uploadFile(name string, content []byte) *UploadFile {
	return &UploadFile{Name: name, Size: int64(len(content)), Content: content}
}

// --- Inspect tests ---

func TestInspect_AcceptsValidImages(t *testing.T) {
	insp := newTestInspector(t)

	cases := map[string]*UploadFile{
		"photo.png":  uploadFile("photo.png", tinyPNG(t)),
		"photo.jpg":  uploadFile("photo.jpg", tinyJPEG(t)),
		"photo.jpeg": uploadFile("photo.jpeg", tinyJPEG(t)),
		"anim.gif":   uploadFile("anim.gif", tinyGIF(t)),
	}
	for name, f := range cases {
		if errs := insp.Inspect(f); len(errs) != 0 {
			t.Errorf("%s: expected no errors, got %v", name, errs)
		}
	}
}

func TestInspect_AcceptsVideoContainer(t *testing.T) {
	insp := newTestInspector(t)

	f := uploadFile("clip.mp4", fakeMP4())
	if errs := insp.Inspect(f); len(errs) != 0 {
		t.Errorf("expected mp4 container to pass, got %v", errs)
	}
}

func TestInspect_TransportErrorShortCircuits(t *testing.T) {
	insp := newTestInspector(t)

	// A transport failure must be the only error even though the file
	// would fail several content checks too.
	f := &UploadFile{Name: "../evil.php", TransportErr: errors.New("connection reset")}
	errs := insp.Inspect(f)
	if len(errs) != 1 {
		t.Fatalf("expected exactly one error, got %v", errs)
	}
	if !strings.Contains(errs[0], "upload failed") {
		t.Errorf("expected transport error message, got %q", errs[0])
	}
}

func TestInspect_EmptyFile(t *testing.T) {
	insp := newTestInspector(t)

	f := &UploadFile{Name: "photo.jpg", Size: 0}
	if errs := insp.Inspect(f); !containsSubstring(errs, "empty") {
		t.Errorf("expected empty-file error, got %v", errs)
	}
}

func TestInspect_OversizedFile(t *testing.T) {
	insp := newTestInspector(t)

	f := uploadFile("photo.jpg", tinyJPEG(t))
	f.Size = MaxFileBytes + 1
	if errs := insp.Inspect(f); !containsSubstring(errs, "exceeds") {
		t.Errorf("expected size error, got %v", errs)
	}
}

func TestInspect_DisallowedExtension(t *testing.T) {
	insp := newTestInspector(t)

	for _, name := range []string{"script.php", "doc.pdf", "archive.zip", "noextension"} {
		f := uploadFile(name, tinyJPEG(t))
		if errs := insp.Inspect(f); !containsSubstring(errs, "not allowed") {
			t.Errorf("%s: expected extension error, got %v", name, errs)
		}
	}
}

func TestInspect_ExtensionCaseInsensitive(t *testing.T) {
	insp := newTestInspector(t)

	f := uploadFile("PHOTO.JPG", tinyJPEG(t))
	if errs := insp.Inspect(f); len(errs) != 0 {
		t.Errorf("expected upper-case extension to pass, got %v", errs)
	}
}

func TestInspect_DoubleExtensionBlocked(t *testing.T) {
	insp := newTestInspector(t)

	// Valid JPEG content cannot rescue a smuggled name.
	f := uploadFile("photo.jpg.php", tinyJPEG(t))
	if errs := insp.Inspect(f); !containsSubstring(errs, "extension") {
		t.Errorf("expected double-extension rejection, got %v", errs)
	}
}

func TestInspect_FilenamePolicy(t *testing.T) {
	insp := newTestInspector(t)
	content := tinyJPEG(t)

	bad := []string{
		".hidden.jpg",
		"_underscore.jpg",
		`weird"name.jpg`,
		"question?.jpg",
		"tab\tname.jpg",
		"../escape.jpg",
		`..\escape.jpg`,
		strings.Repeat("a", 256) + ".jpg",
	}
	for _, name := range bad {
		f := uploadFile(name, content)
		if errs := insp.Inspect(f); len(errs) == 0 {
			t.Errorf("%q: expected filename rejection", name)
		}
	}
}

func TestInspect_SniffedTypeWinsOverDeclared(t *testing.T) {
	insp := newTestInspector(t)

	// Plain text with an image extension and a spoofed declared type.
	f := uploadFile("notes.jpg", []byte("just some text, honestly an image"))
	f.DeclaredMime = "image/jpeg"
	if errs := insp.Inspect(f); !containsSubstring(errs, "not a supported") {
		t.Errorf("expected sniff rejection, got %v", errs)
	}
}

func TestInspect_DeclaredMismatchAloneIsNotFatal(t *testing.T) {
	insp := newTestInspector(t)

	// Real PNG declared as JPEG: the sniffed type passes, so the
	// mismatch alone must not reject.
	f := uploadFile("photo.png", tinyPNG(t))
	f.DeclaredMime = "image/jpeg"
	if errs := insp.Inspect(f); len(errs) != 0 {
		t.Errorf("expected declared/sniffed mismatch to pass, got %v", errs)
	}
}

func TestInspect_CorruptImageRejected(t *testing.T) {
	insp := newTestInspector(t)

	// Correct PNG magic bytes but garbage after: sniff passes, decode
	// must not.
	content := append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, []byte("garbagegarbage")...)
	f := uploadFile("photo.png", content)
	if errs := insp.Inspect(f); !containsSubstring(errs, "corrupt") {
		t.Errorf("expected decode failure, got %v", errs)
	}
}

func TestInspect_EmbeddedPHPRejected(t *testing.T) {
	insp := newTestInspector(t)

	// A real JPEG with PHP appended inside the scanned head: a polyglot.
	content := append(tinyJPEG(t), []byte("<?php system($_GET['c']); ?>")...)
	f := uploadFile("photo.jpg", content)
	if errs := insp.Inspect(f); !containsSubstring(errs, "forbidden pattern") {
		t.Errorf("expected signature rejection, got %v", errs)
	}
}

func TestInspect_ScriptMarkersCaseInsensitive(t *testing.T) {
	insp := newTestInspector(t)

	content := append(tinyJPEG(t), []byte("<SCRIPT>alert(1)</SCRIPT>")...)
	f := uploadFile("photo.jpg", content)
	if errs := insp.Inspect(f); !containsSubstring(errs, "forbidden pattern") {
		t.Errorf("expected case-insensitive signature match, got %v", errs)
	}
}

func TestInspect_SignatureScanLimitedToHead(t *testing.T) {
	insp := newTestInspector(t)

	// The marker sits beyond the scanned head and must not trigger.
	content := tinyJPEG(t)
	content = append(content, bytes.Repeat([]byte{0xAA}, sniffLimit)...)
	content = append(content, []byte("<?php")...)
	f := uploadFile("photo.jpg", content)
	if errs := insp.Inspect(f); len(errs) != 0 {
		t.Errorf("expected marker beyond head to pass, got %v", errs)
	}
}

// --- Quarantine tests ---

func TestQuarantine_WritesCopyForAudit(t *testing.T) {
	dir := t.TempDir()
	insp := NewFileInspector(dir)

	content := append(tinyJPEG(t), []byte("<?php evil(); ?>")...)
	f := uploadFile("photo.jpg", content)
	reasons := insp.Inspect(f)
	if len(reasons) == 0 {
		t.Fatal("fixture should be rejected")
	}

	insp.Quarantine(f, reasons)

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading quarantine dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one quarantined file, got %d", len(entries))
	}
	if !strings.HasSuffix(entries[0].Name(), ".quarantine") {
		t.Errorf("expected .quarantine suffix, got %s", entries[0].Name())
	}

	stored, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("reading quarantined file: %v", err)
	}
	if !bytes.Equal(stored, content) {
		t.Error("expected quarantined bytes to match the original upload")
	}
}

func TestQuarantine_SanitizesHostileFilename(t *testing.T) {
	dir := t.TempDir()
	insp := NewFileInspector(dir)

	f := uploadFile(`../../etc/pass wd<script>.php`, []byte("<?php evil(); ?>"))
	reasons := insp.Inspect(f)
	if len(reasons) == 0 {
		t.Fatal("fixture should be rejected")
	}

	insp.Quarantine(f, reasons)

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading quarantine dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one quarantined file inside the quarantine dir, got %d", len(entries))
	}

	name := entries[0].Name()
	if !strings.HasSuffix(name, ".quarantine") {
		t.Errorf("expected .quarantine suffix, got %s", name)
	}
	for _, bad := range []string{"..", "/", `\`, "<", ">", " "} {
		if strings.Contains(name, bad) {
			t.Errorf("quarantine name %q still contains %q", name, bad)
		}
	}
}

func TestSanitizeBaseName(t *testing.T) {
	cases := map[string]string{
		"photo.jpg":             "photo.jpg",
		"../../shadow":          "shadow",
		"a b<c>.png":            "a_b_c_.png",
		"..":                    "unnamed",
		`..\..\boot.ini`:        ".._.._boot.ini",
		"Ümlaut photo (1).jpeg": "_mlaut_photo__1_.jpeg",
	}
	for in, want := range cases {
		if got := sanitizeBaseName(in); got != want {
			t.Errorf("sanitizeBaseName(%q) = %q, want %q", in, got, want)
		}
	}
}

// --- Stored filename tests ---

func TestGenerateStoredFilename(t *testing.T) {
	name, err := GenerateStoredFilename("../../Evil Name.JPG")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(name, ".jpg") {
		t.Errorf("expected lower-cased extension, got %s", name)
	}
	if strings.Contains(name, "Evil") || strings.Contains(name, "..") || strings.Contains(name, "/") {
		t.Errorf("client-controlled name leaked into stored filename: %s", name)
	}

	other, err := GenerateStoredFilename("photo.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name == other {
		t.Error("expected generated names to be unique")
	}
}

// containsSubstring reports whether any error message contains the substring.
func containsSubstring(errs []string, sub string) bool {
	for _, e := range errs {
		if strings.Contains(e, sub) {
			return true
		}
	}
	return false
}
