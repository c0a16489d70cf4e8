// Package attachment stores files uploaded for file-upload and image-upload
// fields: MIME checking by content, image thumbnails, local storage and the
// attachments table.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/GyroZepelix/mithril-forms/internal/database"
)

// ErrNotFound is returned when an attachment does not exist.
var ErrNotFound = errors.New("attachment not found")

// Attachment is a stored upload and its metadata.
type Attachment struct {
	ID           string            `json:"id"`
	Form         string            `json:"form"`
	Field        string            `json:"field"`
	Filename     string            `json:"filename"`
	OriginalName string            `json:"original_name"`
	MimeType     string            `json:"mime_type"`
	Size         int64             `json:"size"`
	Width        *int              `json:"width,omitempty"`
	Height       *int              `json:"height,omitempty"`
	Variants     map[string]string `json:"variants"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Repository handles database operations for attachment records.
type Repository struct {
	db *database.DB
}

// NewRepository creates a new attachment Repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

const attachmentColumns = `id, form, field, filename, original_name, mime_type, size, width, height, variants, created_at`

// Create inserts a new record and fills its generated ID and timestamp.
func (r *Repository) Create(ctx context.Context, a *Attachment) error {
	variantsJSON, err := json.Marshal(a.Variants)
	if err != nil {
		return fmt.Errorf("marshaling variants: %w", err)
	}

	err = r.db.Pool().QueryRow(ctx, `
		INSERT INTO attachments (form, field, filename, original_name, mime_type, size, width, height, variants)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`,
		a.Form, a.Field, a.Filename, a.OriginalName, a.MimeType, a.Size, a.Width, a.Height, variantsJSON,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting attachment record: %w", err)
	}
	return nil
}

// GetByID retrieves a record by its UUID.
func (r *Repository) GetByID(ctx context.Context, id string) (*Attachment, error) {
	return r.getOne(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE id = $1`, id)
}

// GetByFilename retrieves a record by its generated filename.
func (r *Repository) GetByFilename(ctx context.Context, filename string) (*Attachment, error) {
	return r.getOne(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE filename = $1`, filename)
}

func (r *Repository) getOne(ctx context.Context, query string, arg string) (*Attachment, error) {
	a := &Attachment{}
	var variantsJSON []byte

	err := r.db.Pool().QueryRow(ctx, query, arg).Scan(&a.ID, &a.Form, &a.Field, &a.Filename,
		&a.OriginalName, &a.MimeType, &a.Size, &a.Width, &a.Height, &variantsJSON, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying attachment: %w", err)
	}

	if err := json.Unmarshal(variantsJSON, &a.Variants); err != nil {
		return nil, fmt.Errorf("unmarshaling variants: %w", err)
	}
	return a, nil
}

// Delete removes a record by its UUID.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool().Exec(ctx, `DELETE FROM attachments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting attachment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
