package attachment

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"image"
	// Register standard image decoders so image.Decode recognizes them.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/GyroZepelix/mithril-forms/internal/audit"
	"github.com/GyroZepelix/mithril-forms/internal/datapath"
	"github.com/GyroZepelix/mithril-forms/internal/form"
	"github.com/GyroZepelix/mithril-forms/internal/schema"
)

// MaxUploadSize is the largest accepted file (10 MiB).
const MaxUploadSize = 10 << 20

// allowedMIMETypes is the set of MIME types accepted for upload.
var allowedMIMETypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"application/pdf": true,
	"text/plain":      true,
	"text/csv":        true,
}

// imageMIMETypes is the subset of allowed types that are images.
var imageMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// mimeToExtension maps validated MIME types to file extensions. Stored
// names never reuse the client's extension.
var mimeToExtension = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
	"text/plain":      ".txt",
	"text/csv":        ".csv",
}

// thumbnail defines a resizing target.
type thumbnail struct {
	Name     string
	MaxWidth int
}

var thumbnails = []thumbnail{
	{Name: "sm", MaxWidth: 320},
	{Name: "md", MaxWidth: 800},
}

// store persists attachment records. *Repository implements it.
type store interface {
	Create(ctx context.Context, a *Attachment) error
	GetByID(ctx context.Context, id string) (*Attachment, error)
	GetByFilename(ctx context.Context, filename string) (*Attachment, error)
	Delete(ctx context.Context, id string) error
}

// Service implements upload processing and deletion.
type Service struct {
	repo    store
	storage *LocalStorage
	audit   *audit.Service
}

// NewService creates a new attachment Service. The audit service is
// optional; if nil, audit events are skipped.
func NewService(repo *Repository, storage *LocalStorage, auditService *audit.Service) *Service {
	return &Service{repo: repo, storage: storage, audit: auditService}
}

// UploadError is a user-facing upload rejection.
type UploadError struct {
	Message string
}

func (e *UploadError) Error() string {
	return e.Message
}

// Upload validates an uploaded file against the form field it is meant
// for, stores it with its thumbnails and records it.
func (s *Service) Upload(ctx context.Context, f *schema.Form, fieldKey string, fh *multipart.FileHeader, actorID string) (*Attachment, error) {
	field := FindField(f.Schema(), fieldKey)
	if field == nil || !field.Widget.IsUpload() {
		return nil, &UploadError{Message: fmt.Sprintf("field '%s' does not accept uploads", fieldKey)}
	}

	if fh.Size > MaxUploadSize {
		return nil, &UploadError{Message: fmt.Sprintf("file size %d exceeds maximum of %d bytes", fh.Size, MaxUploadSize)}
	}

	file, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("opening uploaded file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading uploaded file: %w", err)
	}
	if int64(len(data)) > MaxUploadSize {
		return nil, &UploadError{Message: fmt.Sprintf("file size exceeds maximum of %d bytes", MaxUploadSize)}
	}

	mimeType := detectMIME(data, fh.Header.Get("Content-Type"))
	if !allowedMIMETypes[mimeType] {
		return nil, &UploadError{Message: fmt.Sprintf("MIME type '%s' is not allowed", mimeType)}
	}
	if field.Widget == form.WidgetImageUpload && !imageMIMETypes[mimeType] {
		return nil, &UploadError{Message: fmt.Sprintf("field '%s' only accepts images", fieldKey)}
	}

	name := generateUUID() + mimeToExtension[mimeType]
	if err := s.storage.Save(Original, name, data); err != nil {
		return nil, fmt.Errorf("saving original file: %w", err)
	}

	a := &Attachment{
		Form:         f.Name,
		Field:        fieldKey,
		Filename:     name,
		OriginalName: fh.Filename,
		MimeType:     mimeType,
		Size:         int64(len(data)),
		Variants:     make(map[string]string),
	}
	if imageMIMETypes[mimeType] {
		s.processThumbnails(a, data)
	}

	if err := s.repo.Create(ctx, a); err != nil {
		s.cleanupFiles(a)
		return nil, fmt.Errorf("creating attachment record: %w", err)
	}

	s.audit.Log(ctx, audit.Event{
		Action:     audit.ActionAttachmentUpload,
		ActorID:    actorID,
		Resource:   f.Name,
		ResourceID: a.ID,
		Payload:    map[string]any{"field": fieldKey, "mime_type": mimeType, "size": a.Size},
	})
	return a, nil
}

// detectMIME sniffs the content type. The client header is only trusted
// when sniffing fails or narrows an allowed type (text/csv over
// text/plain).
func detectMIME(data []byte, header string) string {
	detected := baseMIME(http.DetectContentType(data[:min(512, len(data))]))
	claimed := baseMIME(header)

	switch {
	case detected == "application/octet-stream" && allowedMIMETypes[claimed]:
		return claimed
	case allowedMIMETypes[detected] && allowedMIMETypes[claimed] && strings.HasPrefix(claimed, "text/") && detected == "text/plain":
		return claimed
	}
	return detected
}

// baseMIME strips parameters: "text/plain; charset=utf-8" becomes
// "text/plain".
func baseMIME(mime string) string {
	if i := strings.IndexByte(mime, ';'); i != -1 {
		mime = mime[:i]
	}
	return strings.TrimSpace(mime)
}

// processThumbnails records the image size and writes a downscaled copy
// for every thumbnail narrower than the original. Failures only skip
// thumbnails.
func (s *Service) processThumbnails(a *Attachment, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic during thumbnail generation", "filename", a.Filename, "panic", fmt.Sprint(r))
		}
	}()

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		slog.Warn("failed to decode image for thumbnails", "filename", a.Filename, "error", err)
		return
	}

	width, height := img.Bounds().Dx(), img.Bounds().Dy()
	a.Width, a.Height = &width, &height

	format, ext := thumbnailFormat(a.MimeType)
	thumbName := replaceExt(a.Filename, ext)

	for _, t := range thumbnails {
		if width <= t.MaxWidth {
			continue
		}
		resized := imaging.Resize(img, t.MaxWidth, 0, imaging.Lanczos)
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, resized, format); err != nil {
			slog.Warn("failed to encode thumbnail", "variant", t.Name, "filename", a.Filename, "error", err)
			continue
		}
		if err := s.storage.Save(t.Name, thumbName, buf.Bytes()); err != nil {
			slog.Warn("failed to save thumbnail", "variant", t.Name, "filename", a.Filename, "error", err)
			continue
		}
		a.Variants[t.Name] = thumbName
	}
}

// cleanupFiles removes the original and every thumbnail of a.
func (s *Service) cleanupFiles(a *Attachment) {
	if err := s.storage.Delete(Original, a.Filename); err != nil {
		slog.Warn("failed to clean up original file", "filename", a.Filename, "error", err)
	}
	for variant, name := range a.Variants {
		if err := s.storage.Delete(variant, name); err != nil {
			slog.Warn("failed to clean up thumbnail", "variant", variant, "filename", name, "error", err)
		}
	}
}

// Delete removes an attachment record and its files.
func (s *Service) Delete(ctx context.Context, id, actorID string) error {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.cleanupFiles(a)

	s.audit.Log(ctx, audit.Event{
		Action:     audit.ActionAttachmentDelete,
		ActorID:    actorID,
		Resource:   a.Form,
		ResourceID: id,
	})
	return nil
}

// File resolves the path of a stored variant. Unknown or missing
// thumbnails fall back to the original.
func (s *Service) File(ctx context.Context, filename, variant string) (*Attachment, string, error) {
	a, err := s.repo.GetByFilename(ctx, filename)
	if err != nil {
		return nil, "", err
	}
	name := a.Filename
	if thumb, ok := a.Variants[variant]; ok && variant != Original {
		name = thumb
	} else {
		variant = Original
	}
	return a, s.storage.Path(variant, name), nil
}

// FindField returns the field a dotted upload key addresses. Keys may
// descend into containers and may carry array indexes for repeater items:
// "receipts.0.scan" and "receipts.scan" both address scan.
func FindField(s *form.Schema, key string) *form.Field {
	if s == nil {
		return nil
	}
	if f, ok := s.Fields.Get(key); ok {
		return f
	}
	for _, f := range s.Fields {
		if f.ItemSchema == nil || !strings.HasPrefix(key, f.Key+".") {
			continue
		}
		rest := datapath.Split(strings.TrimPrefix(key, f.Key+"."))
		if len(rest) > 1 {
			if _, err := strconv.Atoi(rest[0]); err == nil {
				rest = rest[1:]
			}
		}
		if found := FindField(f.ItemSchema, strings.Join(rest, ".")); found != nil {
			return found
		}
	}
	return nil
}

// generateUUID generates a UUID v4 string using crypto/rand.
func generateUUID() string {
	var uuid [16]byte
	if _, err := rand.Read(uuid[:]); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	uuid[6] = (uuid[6] & 0x0f) | 0x40
	uuid[8] = (uuid[8] & 0x3f) | 0x80

	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		uuid[0:4], uuid[4:6], uuid[6:8], uuid[8:10], uuid[10:16])
}

// thumbnailFormat returns the encoding and extension used for thumbnails.
// imaging cannot encode WebP, so WebP thumbnails are PNG.
func thumbnailFormat(mimeType string) (imaging.Format, string) {
	switch mimeType {
	case "image/png", "image/webp":
		return imaging.PNG, ".png"
	case "image/gif":
		return imaging.GIF, ".gif"
	default:
		return imaging.JPEG, ".jpg"
	}
}

// replaceExt replaces the file extension on filename with newExt.
func replaceExt(filename, newExt string) string {
	i := strings.LastIndex(filename, ".")
	if i == -1 {
		return filename + newExt
	}
	return filename[:i] + newExt
}

// isValidUUID validates the 8-4-4-4-12 hex format.
func isValidUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	for i, c := range s {
		if i == 8 || i == 13 || i == 18 || i == 23 {
			if c != '-' {
				return false
			}
			continue
		}
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
