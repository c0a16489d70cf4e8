package submission

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/GyroZepelix/mithril-forms/internal/database"
	"github.com/GyroZepelix/mithril-forms/internal/schema"
	"github.com/GyroZepelix/mithril-forms/internal/search"
)

// ErrNotFound is returned when a submission or draft does not exist.
var ErrNotFound = errors.New("submission not found")

// Submission is a stored, finalized form submission.
type Submission struct {
	ID         string         `json:"id"`
	Form       string         `json:"form"`
	Data       map[string]any `json:"data"`
	SchemaHash string         `json:"schema_hash"`
	CreatedAt  time.Time      `json:"created_at"`

	// Headline is the highlighted search snippet, set on searched lists.
	Headline string `json:"search_headline,omitempty"`
}

// Draft is the autosaved part of an unfinished submission.
type Draft struct {
	ID        string         `json:"id"`
	Form      string         `json:"form"`
	Payload   map[string]any `json:"payload"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Repository stores submissions and drafts.
type Repository struct {
	db *database.DB
}

// NewRepository creates a new submission Repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

const submissionColumns = "id, form, data, schema_hash, created_at"

func scanSubmission(row pgx.Row, extra ...any) (*Submission, error) {
	var s Submission
	var data []byte
	dest := append([]any{&s.ID, &s.Form, &data, &s.SchemaHash, &s.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &s.Data); err != nil {
		return nil, fmt.Errorf("decoding submission data: %w", err)
	}
	return &s, nil
}

// Insert stores a finalized submission and returns the stored row.
func (r *Repository) Insert(ctx context.Context, form, schemaHash string, data map[string]any) (*Submission, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding submission data: %w", err)
	}

	row := r.db.Pool().QueryRow(ctx,
		`INSERT INTO submissions (form, data, schema_hash)
		 VALUES ($1, $2, $3)
		 RETURNING `+submissionColumns,
		form, body, schemaHash,
	)
	s, err := scanSubmission(row)
	if err != nil {
		return nil, fmt.Errorf("inserting submission: %w", err)
	}
	return s, nil
}

// List retrieves a page of a form's submissions with optional filtering,
// sorting and full-text search over the searchable fields.
func (r *Repository) List(ctx context.Context, form string, searchable []string, q QueryParams) ([]*Submission, int, error) {
	whereParts := []string{"form = $1"}
	args := []any{form}
	argIdx := 2

	// Sort filter keys for deterministic parameter ordering.
	filterKeys := make([]string, 0, len(q.Filters))
	for key := range q.Filters {
		filterKeys = append(filterKeys, key)
	}
	sort.Strings(filterKeys)

	for _, key := range filterKeys {
		whereParts = append(whereParts, fmt.Sprintf("%s = $%d", schema.DataExpr(key), argIdx))
		args = append(args, q.Filters[key])
		argIdx++
	}

	var searchWhere, searchOrder, searchHeadline string
	if q.Search != "" && len(searchable) > 0 {
		var searchArgs []any
		searchWhere, searchOrder, searchHeadline, searchArgs = search.BuildSearchClause(q.Search, searchable, argIdx)
		whereParts = append(whereParts, searchWhere)
		args = append(args, searchArgs...)
		argIdx += len(searchArgs)
	}

	whereClause := "WHERE " + strings.Join(whereParts, " AND ")

	var total int
	countSQL := "SELECT COUNT(*) FROM submissions " + whereClause
	if err := r.db.Pool().QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting submissions: %w", err)
	}

	selectCols := submissionColumns
	if searchHeadline != "" {
		selectCols += ", " + searchHeadline
	}

	orderDir := "DESC"
	if strings.EqualFold(q.Order, "asc") {
		orderDir = "ASC"
	}
	// When search is active, rank first, then the requested sort.
	var orderParts []string
	if searchOrder != "" {
		orderParts = append(orderParts, searchOrder)
	}
	orderParts = append(orderParts, sortExpr(q.Sort)+" "+orderDir, "id "+orderDir)

	dataSQL := fmt.Sprintf("SELECT %s FROM submissions %s ORDER BY %s LIMIT $%d OFFSET $%d",
		selectCols, whereClause, strings.Join(orderParts, ", "), argIdx, argIdx+1)
	args = append(args, q.PerPage, (q.Page-1)*q.PerPage)

	rows, err := r.db.Pool().Query(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying submissions: %w", err)
	}
	defer rows.Close()

	var out []*Submission
	for rows.Next() {
		var extra []any
		var headline string
		if searchHeadline != "" {
			extra = append(extra, &headline)
		}
		s, err := scanSubmission(rows, extra...)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning submission: %w", err)
		}
		s.Headline = headline
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating submissions: %w", err)
	}
	return out, total, nil
}

// GetByID retrieves one submission of a form.
func (r *Repository) GetByID(ctx context.Context, form, id string) (*Submission, error) {
	row := r.db.Pool().QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE form = $1 AND id = $2`, form, id)
	s, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting submission: %w", err)
	}
	return s, nil
}

// Delete removes one submission of a form.
func (r *Repository) Delete(ctx context.Context, form, id string) error {
	tag, err := r.db.Pool().Exec(ctx, `DELETE FROM submissions WHERE form = $1 AND id = $2`, form, id)
	if err != nil {
		return fmt.Errorf("deleting submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertDraft stores payload as the draft, replacing any earlier payload.
func (r *Repository) UpsertDraft(ctx context.Context, form, id string, payload map[string]any) (*Draft, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding draft payload: %w", err)
	}

	row := r.db.Pool().QueryRow(ctx,
		`INSERT INTO drafts (form, id, payload)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (form, id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()
		 RETURNING id, form, payload, updated_at`,
		form, id, body,
	)
	d, err := scanDraft(row)
	if err != nil {
		return nil, fmt.Errorf("upserting draft: %w", err)
	}
	return d, nil
}

// GetDraft retrieves a draft.
func (r *Repository) GetDraft(ctx context.Context, form, id string) (*Draft, error) {
	row := r.db.Pool().QueryRow(ctx,
		`SELECT id, form, payload, updated_at FROM drafts WHERE form = $1 AND id = $2`, form, id)
	d, err := scanDraft(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting draft: %w", err)
	}
	return d, nil
}

// DeleteDraft removes a draft.
func (r *Repository) DeleteDraft(ctx context.Context, form, id string) error {
	tag, err := r.db.Pool().Exec(ctx, `DELETE FROM drafts WHERE form = $1 AND id = $2`, form, id)
	if err != nil {
		return fmt.Errorf("deleting draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDraft(row pgx.Row) (*Draft, error) {
	var d Draft
	var payload []byte
	if err := row.Scan(&d.ID, &d.Form, &payload, &d.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &d.Payload); err != nil {
		return nil, fmt.Errorf("decoding draft payload: %w", err)
	}
	return &d, nil
}
