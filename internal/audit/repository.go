package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/GyroZepelix/mithril-forms/internal/database"
)

// Entry is a row of the audit_log table.
type Entry struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	ActorID    *string        `json:"actor_id,omitempty"`
	Resource   *string        `json:"resource,omitempty"`
	ResourceID *string        `json:"resource_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filters narrows an audit listing. Empty fields do not filter.
type Filters struct {
	Action   string
	Resource string
	ActorID  string
}

// where builds the WHERE clause for f. Column names are constants; values
// are always bound as parameters.
func (f Filters) where() (string, []any) {
	var conds []string
	var args []any
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("action", f.Action)
	add("resource", f.Resource)
	add("actor_id::text", f.ActorID)

	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// Repository provides database operations for the audit_log table.
type Repository struct {
	db *database.DB
}

// NewRepository creates a new audit Repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes one event. Empty actor, resource and resource ID are stored
// as NULL.
func (r *Repository) Insert(ctx context.Context, event Event) error {
	var payload []byte
	if len(event.Payload) > 0 {
		var err error
		if payload, err = json.Marshal(event.Payload); err != nil {
			return fmt.Errorf("marshaling audit payload: %w", err)
		}
	}

	_, err := r.db.Pool().Exec(ctx,
		`INSERT INTO audit_log (action, actor_id, resource, resource_id, payload)
		 VALUES ($1, $2, $3, $4, $5)`,
		event.Action,
		nullIfEmpty(event.ActorID),
		nullIfEmpty(event.Resource),
		nullIfEmpty(event.ResourceID),
		nullableJSON(payload),
	)
	if err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}
	return nil
}

// List returns a page of entries ordered by created_at DESC and the total
// number of matching rows.
func (r *Repository) List(ctx context.Context, filters Filters, page, perPage int) ([]*Entry, int, error) {
	where, args := filters.where()

	var total int
	if err := r.db.Pool().QueryRow(ctx, "SELECT COUNT(*) FROM audit_log "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting audit entries: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT id, action, actor_id, resource, resource_id, payload, created_at
		 FROM audit_log %s
		 ORDER BY created_at DESC
		 LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2,
	)
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Entry, error) {
		var e Entry
		var payload []byte
		if err := row.Scan(&e.ID, &e.Action, &e.ActorID, &e.Resource, &e.ResourceID, &payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		if payload != nil {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("unmarshaling audit payload: %w", err)
			}
		}
		return &e, nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("scanning audit entries: %w", err)
	}
	return entries, total, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
